// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/desertthunder/syncronus/internal/models"
)

// FakeService is a configurable test double for services.Service.
//
// Unset function fields return zero values without error.
type FakeService struct {
	ServiceName      string
	AuthenticateFn   func(ctx context.Context) (string, error)
	GetPlaylistsFn   func(ctx context.Context) ([]models.Playlist, error)
	GetPlaylistFn    func(ctx context.Context, playlistID string) (*models.Playlist, error)
	ExportPlaylistFn func(ctx context.Context, playlistID string) (*models.PlaylistExport, error)
	ImportPlaylistFn func(ctx context.Context, playlist *models.PlaylistExport) (*models.Playlist, error)
	FindByISRCFn     func(ctx context.Context, isrc string) (*models.Track, error)
}

func (f *FakeService) Authenticate(ctx context.Context) (string, error) {
	if f.AuthenticateFn != nil {
		return f.AuthenticateFn(ctx)
	}
	return "", nil
}

func (f *FakeService) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	if f.GetPlaylistsFn != nil {
		return f.GetPlaylistsFn(ctx)
	}
	return []models.Playlist{}, nil
}

func (f *FakeService) GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	if f.GetPlaylistFn != nil {
		return f.GetPlaylistFn(ctx, playlistID)
	}
	return nil, nil
}

func (f *FakeService) ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
	if f.ExportPlaylistFn != nil {
		return f.ExportPlaylistFn(ctx, playlistID)
	}
	return nil, nil
}

func (f *FakeService) ImportPlaylist(ctx context.Context, playlist *models.PlaylistExport) (*models.Playlist, error) {
	if f.ImportPlaylistFn != nil {
		return f.ImportPlaylistFn(ctx, playlist)
	}
	return nil, nil
}

func (f *FakeService) FindByISRC(ctx context.Context, isrc string) (*models.Track, error) {
	if f.FindByISRCFn != nil {
		return f.FindByISRCFn(ctx, isrc)
	}
	return nil, nil
}

func (f *FakeService) Name() string {
	if f.ServiceName != "" {
		return f.ServiceName
	}
	return "fake"
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
