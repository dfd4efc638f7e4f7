package cli

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/fable/internal/image"
	"github.com/felixgeelhaar/fable/internal/provider"
)

func TestCLI_Root(t *testing.T) {
	if len(RootCmd.Commands()) < 3 {
		t.Errorf("Expected at least 3 subcommands (play, config, saves), got %d", len(RootCmd.Commands()))
	}
}

func TestCLI_Config(t *testing.T) {
	found := false
	for _, cmd := range RootCmd.Commands() {
		if cmd.Name() == "config" {
			found = true
			if len(cmd.Commands()) < 2 {
				t.Errorf("Expected set and get subcommands for config, got %d", len(cmd.Commands()))
			}
		}
	}
	if !found {
		t.Error("config command not found")
	}
}

func TestCLI_Saves(t *testing.T) {
	t.Setenv("FABLE_DATA_DIR", t.TempDir())

	s := getStore()
	defer s.Close()

	saves, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(saves) != 0 {
		t.Errorf("Expected empty saves in fresh data dir, got %d", len(saves))
	}
}

func TestIsSecretKey(t *testing.T) {
	cases := map[string]bool{
		"gemini.api_key":  true,
		"dalle.api_key":   true,
		"comfyui.token":   true,
		"gemini.model":    false,
		"ollama.endpoint": false,
	}
	for key, want := range cases {
		if got := isSecretKey(key); got != want {
			t.Errorf("isSecretKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestKeyResolutionPrefersEnvironment(t *testing.T) {
	t.Setenv("FABLE_DATA_DIR", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("OPENAI_API_KEY", "")

	s := getStore()
	defer s.Close()
	v := getVault(s)

	if err := v.Put("gemini.api_key", "vault-key"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got := resolveTextKey(v, provider.KindGemini); got != "env-key" {
		t.Errorf("Expected environment to win, got %q", got)
	}

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	if got := resolveTextKey(v, provider.KindGemini); got != "vault-key" {
		t.Errorf("Expected vault fallback, got %q", got)
	}

	if got := resolveTextKey(v, provider.KindOllama); got != "" {
		t.Errorf("Local backend needs no key, got %q", got)
	}
	if got := resolveImageKey(v, image.KindNone); got != "" {
		t.Errorf("Disabled image backend needs no key, got %q", got)
	}
}
