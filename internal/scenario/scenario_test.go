package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/fable/internal/game"
)

func TestBuiltin(t *testing.T) {
	scenarios, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin failed: %v", err)
	}
	if len(scenarios) < 3 {
		t.Fatalf("Expected several built-in scenarios, got %d", len(scenarios))
	}
	for _, sc := range scenarios {
		if sc.StartPrompt == "" {
			t.Errorf("Built-in scenario %q has no start prompt", sc.Name)
		}
		if !sc.Theme.Valid() {
			t.Errorf("Built-in scenario %q has invalid theme %q", sc.Name, sc.Theme)
		}
	}

	if _, ok := Find(scenarios, "waystone"); !ok {
		t.Error("Expected the waystone scenario to ship built in")
	}
	if _, ok := Find(scenarios, "missing"); ok {
		t.Error("Find must miss unknown names")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("YAML", func(t *testing.T) {
		path := filepath.Join(dir, "mine.yaml")
		content := "name: mine\ntitle: My Story\ntheme: WESTERN\nstart_prompt: Begin a western.\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		sc, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if sc.Theme != game.ThemeWestern {
			t.Errorf("Expected WESTERN, got %s", sc.Theme)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		path := filepath.Join(dir, "mine.json")
		content := `{"name":"json-one","start_prompt":"Begin.","theme":"HORROR"}`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
	})

	t.Run("UnknownThemeNormalized", func(t *testing.T) {
		path := filepath.Join(dir, "odd.yaml")
		content := "name: odd\nstart_prompt: Begin.\ntheme: ROMANCE\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		sc, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if sc.Theme != game.ThemeFantasy {
			t.Errorf("Expected unknown theme to normalize, got %s", sc.Theme)
		}
	})

	t.Run("MissingStartPrompt", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("name: bad\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Expected validation failure without start_prompt")
		}
	})

	t.Run("UnsupportedExtension", func(t *testing.T) {
		path := filepath.Join(dir, "nope.txt")
		if err := os.WriteFile(path, []byte("name: nope"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Expected unsupported format error")
		}
	})
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o750); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"b.yaml":        "name: beta\nstart_prompt: Begin beta.\n",
		"nested/a.yml":  "name: alpha\nstart_prompt: Begin alpha.\n",
		"nested/c.json": `{"name":"gamma","start_prompt":"Begin gamma."}`,
		"ignored.txt":   "not a scenario",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	scenarios, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(scenarios) != 3 {
		t.Fatalf("Expected 3 scenarios, got %d", len(scenarios))
	}
	// Sorted by name.
	if scenarios[0].Name != "alpha" || scenarios[1].Name != "beta" || scenarios[2].Name != "gamma" {
		t.Errorf("Unexpected order: %s, %s, %s", scenarios[0].Name, scenarios[1].Name, scenarios[2].Name)
	}

	t.Run("InvalidFileAborts", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [unclosed"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadDir(dir); err == nil {
			t.Error("Expected a parse error from the broken template")
		}
	})
}
