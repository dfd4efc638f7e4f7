package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/fable/internal/credential"
	"github.com/felixgeelhaar/fable/internal/image"
	"github.com/felixgeelhaar/fable/internal/provider"
	"github.com/felixgeelhaar/fable/internal/store"
)

// dataDir is where the save database lives, overridable for tests and
// portable installs.
func dataDir() string {
	if dir := os.Getenv("FABLE_DATA_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fable")
}

func getStore() store.Storage {
	s, err := store.Open(filepath.Join(dataDir(), "fable.db"), bolt.New(bolt.NewConsoleHandler(os.Stderr)))
	if err != nil {
		fmt.Printf("Failed to open store: %v\n", err)
		os.Exit(1)
	}
	return s
}

func getVault(s store.Storage) *credential.Vault {
	v, err := credential.Open(s)
	if err != nil {
		fmt.Printf("Failed to open credential vault: %v\n", err)
		os.Exit(1)
	}
	return v
}

// resolveTextKey finds the API key for a text backend: environment first,
// then the sealed configuration store. Local backends need no key.
func resolveTextKey(v *credential.Vault, kind provider.Kind) string {
	switch kind {
	case provider.KindGemini:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			return key
		}
		key, _ := v.Get("gemini.api_key")
		return key
	case provider.KindLMStudio:
		key, _ := v.Get("lmstudio.api_key")
		return key
	default:
		return ""
	}
}

// resolveImageKey does the same for image backends.
func resolveImageKey(v *credential.Vault, kind image.Kind) string {
	if kind != image.KindDallE {
		return ""
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	key, _ := v.Get("dalle.api_key")
	return key
}
