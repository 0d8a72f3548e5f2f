package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestStore(t *testing.T) {
	t.Run("Load Missing File", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "nope", "token.json"))

		creds := store.Load()
		if creds == nil {
			t.Fatal("expected empty record, got nil")
		}
		if creds.AccessToken != "" || creds.RefreshToken != "" {
			t.Errorf("expected blank record, got %+v", creds)
		}
	})

	t.Run("Load Corrupt File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token.json")
		if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
			t.Fatal(err)
		}

		creds := NewStore(path).Load()
		if creds.AccessToken != "" {
			t.Errorf("expected blank record from corrupt file, got %+v", creds)
		}
	})

	t.Run("Round Trip", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "cache", "token.json"))

		saved := &Credentials{
			AccessToken:  "A",
			RefreshToken: "R",
			ExpiresAt:    1700000000,
			Verifier:     "v_v_v",
		}
		saved.SetExtra("user_id", "12345")
		saved.SetExtra("user_country", "US")

		if err := store.Save(saved); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		loaded := store.Load()
		if loaded.AccessToken != "A" {
			t.Errorf("access token mismatch: %q", loaded.AccessToken)
		}
		if loaded.RefreshToken != "R" {
			t.Errorf("refresh token mismatch: %q", loaded.RefreshToken)
		}
		if loaded.ExpiresAt != 1700000000 {
			t.Errorf("expires_at mismatch: %d", loaded.ExpiresAt)
		}
		if loaded.Verifier != "v_v_v" {
			t.Errorf("verifier mismatch: %q", loaded.Verifier)
		}
		if loaded.ExtraString("user_id") != "12345" {
			t.Errorf("user_id not preserved: %q", loaded.ExtraString("user_id"))
		}
		if loaded.ExtraString("user_country") != "US" {
			t.Errorf("user_country not preserved: %q", loaded.ExtraString("user_country"))
		}
	})

	t.Run("Save Overwrites Whole File", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "token.json"))

		first := &Credentials{AccessToken: "old", RefreshToken: "old_r", ExpiresAt: 100}
		first.SetExtra("stale", "yes")
		if err := store.Save(first); err != nil {
			t.Fatal(err)
		}

		second := &Credentials{AccessToken: "new", RefreshToken: "new_r", ExpiresAt: 200}
		if err := store.Save(second); err != nil {
			t.Fatal(err)
		}

		loaded := store.Load()
		if loaded.AccessToken != "new" || loaded.ExtraString("stale") != "" {
			t.Errorf("expected full replacement, got %+v", loaded)
		}
	})

	t.Run("Unknown Keys Passthrough", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token.json")
		raw := `{"access_token":"A","refresh_token":"R","expires_at":500,"user_country":"DE","beta_flag":true}`
		if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
			t.Fatal(err)
		}

		store := NewStore(path)
		creds := store.Load()
		creds.AccessToken = "B"
		if err := store.Save(creds); err != nil {
			t.Fatal(err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}

		var onDisk map[string]any
		if err := json.Unmarshal(data, &onDisk); err != nil {
			t.Fatal(err)
		}

		if onDisk["access_token"] != "B" {
			t.Errorf("access_token not rewritten: %v", onDisk["access_token"])
		}
		if onDisk["user_country"] != "DE" {
			t.Errorf("extension key dropped on rewrite: %v", onDisk["user_country"])
		}
		if onDisk["beta_flag"] != true {
			t.Errorf("non-string extension key dropped: %v", onDisk["beta_flag"])
		}
	})
}
