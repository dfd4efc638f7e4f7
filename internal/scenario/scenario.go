// Package scenario supplies adventure starting points: a set of built-in
// templates shipped with the binary, plus user-authored YAML or JSON files
// loaded from a directory.
package scenario

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/fable/internal/game"
)

//go:embed templates/*.yaml
var builtinFS embed.FS

// Scenario is one adventure template. StartPrompt is handed verbatim to the
// text backend as the opening instruction.
type Scenario struct {
	Name        string     `json:"name" yaml:"name"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Theme       game.Theme `json:"theme" yaml:"theme"`
	StartPrompt string     `json:"start_prompt" yaml:"start_prompt"`
}

// Validate checks a scenario for the fields the engine cannot do without.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario is missing a name")
	}
	if s.StartPrompt == "" {
		return fmt.Errorf("scenario %q is missing a start_prompt", s.Name)
	}
	s.Theme = game.NormalizeTheme(string(s.Theme))
	return nil
}

// Builtin returns the templates compiled into the binary, sorted by name.
func Builtin() ([]Scenario, error) {
	return loadFS(builtinFS, "templates/*.yaml")
}

// Load reads a single scenario file, JSON or YAML by extension.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var sc Scenario
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON scenario: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML scenario: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported scenario format: %s (use .json or .yaml)", ext)
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadDir walks a directory tree for scenario files. Unreadable or invalid
// files abort the load; a broken template should be fixed, not skipped.
func LoadDir(dir string) ([]Scenario, error) {
	return loadFS(os.DirFS(dir), "**/*.{yaml,yml,json}")
}

func loadFS(fsys fs.FS, pattern string) ([]Scenario, error) {
	paths, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to match scenario files: %w", err)
	}

	scenarios := make([]Scenario, 0, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read scenario %s: %w", p, err)
		}

		var sc Scenario
		if strings.HasSuffix(p, ".json") {
			err = json.Unmarshal(data, &sc)
		} else {
			err = yaml.Unmarshal(data, &sc)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse scenario %s: %w", p, err)
		}
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("invalid scenario %s: %w", p, err)
		}
		scenarios = append(scenarios, sc)
	}

	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].Name < scenarios[j].Name })
	return scenarios, nil
}

// Find returns the scenario with the given name from a loaded set.
func Find(scenarios []Scenario, name string) (*Scenario, bool) {
	for i := range scenarios {
		if scenarios[i].Name == name {
			return &scenarios[i], true
		}
	}
	return nil, false
}
