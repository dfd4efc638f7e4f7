package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ParseError reports provider output that could not be coerced into a Scene
// after every fallback. Raw carries the offending text for diagnosis.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparsable scene: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseScene recovers a structured Scene from raw model output. Models wrap
// JSON in markdown fences, reasoning preambles and trailing remarks, so the
// candidates are tried from strictest to most permissive:
//
//  1. the interior of the first fenced code block, if any
//  2. the whole trimmed text
//  3. the substring from the first '{' to the last '}'
//
// The fenced block must be tried before the whole text because providers
// often wrap JSON in prose and fences at the same time; the brace slice is
// last because it can silently truncate malformed nesting.
func ParseScene(raw string) (*Scene, error) {
	trimmed := strings.TrimSpace(raw)

	var candidates []string
	if m := fencedBlock.FindStringSubmatch(trimmed); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	candidates = append(candidates, trimmed)
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		candidates = append(candidates, trimmed[start:end+1])
	}

	var lastErr error
	for _, c := range candidates {
		scene, err := decodeScene(c)
		if err == nil {
			return scene, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("empty response")
	}
	return nil, &ParseError{Raw: raw, Err: lastErr}
}

// decodeScene is the strict schema boundary: worldState values must be plain
// strings and a scene without a description is rejected. Untyped provider
// data never reaches the session state.
func decodeScene(text string) (*Scene, error) {
	var scene Scene
	if err := json.Unmarshal([]byte(text), &scene); err != nil {
		return nil, err
	}
	if scene.Description == "" {
		return nil, errors.New("scene has no description")
	}
	scene.Theme = NormalizeTheme(string(scene.Theme))
	return &scene, nil
}
