package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/syncronus/internal/server"
	"github.com/desertthunder/syncronus/internal/services"
	"github.com/desertthunder/syncronus/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin runs the interactive OAuth2 authorization flow for a service.
//
// Starts a local HTTP server, opens the browser for user authorization, and
// waits for the provider callback to complete the token exchange.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	serviceName := cmd.StringArg("service")
	if serviceName == "" {
		return fmt.Errorf("%w: service argument is required (spotify or tidal)", shared.ErrMissingArgument)
	}

	svc, err := r.resolveService(serviceName)
	if err != nil {
		return err
	}

	oauthSvc, ok := svc.(services.OAuthService)
	if !ok {
		return fmt.Errorf("%w: %s does not support interactive authorization", shared.ErrInvalidArgument, svc.Name())
	}

	session := oauthSvc.Session()

	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL, err := session.AuthURL(state)
	if err != nil {
		return fmt.Errorf("failed to build authorization URL: %w", err)
	}

	r.writePlain("→ Opening browser for %s authorization...\n", svc.Name())
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	handler := server.NewCallbackHandler(session, state)
	if err := server.WaitForCallback(ctx, addr, handler, 2*time.Minute, r.logger); err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens cached for %s\n\n", svc.Name())
	r.writePlain("You can now use: syncronus playlists list %s\n", serviceName)

	return nil
}

// AuthStatus reports the cached credential state for each configured service.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("checking auth status")

	for _, svc := range []services.Service{r.spotify, r.tidal} {
		if svc == nil {
			continue
		}

		authURL, err := svc.Authenticate(ctx)
		switch {
		case err != nil:
			r.writePlain("✗ %s: %v\n", svc.Name(), err)
		case authURL != "":
			r.writePlain("✗ %s: authorization required (run 'syncronus auth login')\n", svc.Name())
		default:
			r.writePlain("✓ %s: authenticated\n", svc.Name())
		}
	}

	return nil
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize a service with OAuth2 (spotify or tidal)",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Check cached credential state for each service",
				Action: r.AuthStatus,
			},
		},
	}
}
