package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.AppPort != 8080 {
		t.Errorf("AppPort = %d, want 8080", cfg.AppPort)
	}
	if cfg.GraphVersion != "v19.0" {
		t.Errorf("GraphVersion = %q, want v19.0", cfg.GraphVersion)
	}
	if cfg.GraphBaseURL != "https://graph.facebook.com" {
		t.Errorf("GraphBaseURL = %q", cfg.GraphBaseURL)
	}
	if cfg.PrivacyProfile != ProfileStrict {
		t.Errorf("PrivacyProfile = %q, want strict default", cfg.PrivacyProfile)
	}
	if cfg.TestEventsEnabled {
		t.Error("TestEventsEnabled should default to false")
	}
	if cfg.HasCredentials() {
		t.Error("HasCredentials should be false with no env set")
	}
}

func TestLoad_InvalidProfile(t *testing.T) {
	t.Setenv("PRIVACY_PROFILE", "both")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown privacy profile")
	}
}

func TestCredentialFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		wantPixel string
		wantToken string
	}{
		{
			name: "private names win",
			env: map[string]string{
				"META_PIXEL_ID":         "private-pixel",
				"PUBLIC_META_PIXEL_ID":  "public-pixel",
				"META_ACCESS_TOKEN":     "private-token",
				"FACEBOOK_ACCESS_TOKEN": "legacy-token",
			},
			wantPixel: "private-pixel",
			wantToken: "private-token",
		},
		{
			name: "public fallbacks used when private absent",
			env: map[string]string{
				"PUBLIC_META_PIXEL_ID":  "public-pixel",
				"FACEBOOK_ACCESS_TOKEN": "legacy-token",
			},
			wantPixel: "public-pixel",
			wantToken: "legacy-token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got := cfg.PixelID(); got != tt.wantPixel {
				t.Errorf("PixelID() = %q, want %q", got, tt.wantPixel)
			}
			if got := cfg.AccessToken(); got != tt.wantToken {
				t.Errorf("AccessToken() = %q, want %q", got, tt.wantToken)
			}
			if !cfg.HasCredentials() {
				t.Error("HasCredentials() = false, want true")
			}
		})
	}
}

func TestGetCORSAllowedOrigins(t *testing.T) {
	cfg := &Config{CORSAllowedOrigins: " https://example.com , https://www.example.com ,"}

	got := cfg.GetCORSAllowedOrigins()
	want := []string{"https://example.com", "https://www.example.com"}
	if len(got) != len(want) {
		t.Fatalf("got %d origins, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("origin[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if (&Config{}).GetCORSAllowedOrigins() != nil {
		t.Error("empty origins should return nil")
	}
}
