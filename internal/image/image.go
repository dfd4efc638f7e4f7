// Package image adapts image-generation backends to the adventure engine.
// Two backends are supported: the managed DALL-E API and a ComfyUI-style
// local REST server.
//
// Image generation is the one place in the system allowed to swallow errors:
// a turn must always complete visually, so every adapter resolves to the
// fixed placeholder reference on failure instead of raising.
package image

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/fable/internal/game"
)

// Placeholder is returned whenever a backend cannot produce an image.
const Placeholder = "https://picsum.photos/1280/720?grayscale&blur=2"

// Kind identifies an image-generation backend.
type Kind string

const (
	KindDallE   Kind = "dalle"
	KindComfyUI Kind = "comfyui"
	KindNone    Kind = "none"
)

// Kinds lists the selectable backends.
var Kinds = []Kind{KindDallE, KindComfyUI, KindNone}

// Config selects and authenticates an image backend.
type Config struct {
	Kind     Kind   `json:"kind"`
	APIKey   string `json:"-"`
	Endpoint string `json:"endpoint,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Request carries everything the prompt builder needs for one scene image.
type Request struct {
	Prompt         string
	Theme          game.Theme
	PreviousPrompt string
	Location       string
	Action         string
}

// Provider generates one image per scene. Generate never fails: adapters
// must return Placeholder on any transport or backend error.
type Provider interface {
	Name() Kind
	Generate(ctx context.Context, req Request) string
}

// For returns the adapter for the configured backend. Swallowed failures are
// reported through log so they stay diagnosable.
func For(cfg Config, log *bolt.Logger) (Provider, error) {
	switch cfg.Kind {
	case KindDallE:
		return &DallE{cfg: cfg, log: log}, nil
	case KindComfyUI:
		return &ComfyUI{cfg: cfg, log: log}, nil
	case KindNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown image provider %q", cfg.Kind)
	}
}

// None skips image generation entirely; every scene gets the placeholder.
type None struct{}

func (None) Name() Kind {
	return KindNone
}

func (None) Generate(ctx context.Context, req Request) string {
	return Placeholder
}

// themeStyles maps each visual theme to its style fragment. One entry per
// theme enum value.
var themeStyles = map[game.Theme]string{
	game.ThemeFantasy:         "dark fantasy art, epic, cinematic lighting, hyperdetailed, intricately detailed",
	game.ThemeCyberpunk:       "cyberpunk aesthetic, neon-drenched, dystopian, Blade Runner style, synthwave",
	game.ThemeSciFi:           "sci-fi concept art, futuristic, clean lines, starship interior, chrome details, high-tech",
	game.ThemeHorror:          "gothic horror aesthetic, unsettling, lovecraftian, dark, grainy, eerie silence",
	game.ThemeNoir:            "film noir style, high contrast, dramatic shadows, 1940s detective movie, grainy",
	game.ThemeSteampunk:       "steampunk style, gears, clockwork, brass and copper, Victorian, detailed illustration",
	game.ThemeSolarpunk:       "solarpunk aesthetic, lush greenery, art nouveau, sustainable technology, bright and optimistic, studio ghibli inspired",
	game.ThemePostApocalyptic: "post-apocalyptic setting, desolate, overgrown ruins, makeshift technology, gritty, atmospheric, The Last of Us style",
	game.ThemeWestern:         "wild west aesthetic, dusty town, spaghetti western film still, wide-angle shot, sun-drenched, cowboys",
	game.ThemePirate:          "pirate theme, tropical island, tall ships, skull and crossbones, treasure map, cinematic lighting",
}

// handVerbs trigger the hands-visibility clause. A plain substring check,
// not NLP.
var handVerbs = []string{"pick up", "use", "examine"}

// BuildPrompt composes the full backend prompt deterministically: the
// first-person directive, a continuity clause referencing the previous
// scene, location and action clauses, the hands-visibility clause and the
// theme's style fragment.
func BuildPrompt(req Request) string {
	style, ok := themeStyles[req.Theme]
	if !ok {
		style = themeStyles[game.ThemeFantasy]
	}

	var continuity, location, action string
	if req.PreviousPrompt != "" {
		continuity = fmt.Sprintf("Continuing from a scene described as '%s', the view now shows: ", req.PreviousPrompt)
	}
	if req.Location != "" {
		location = fmt.Sprintf("The scene takes place in %s. ", req.Location)
	}
	if req.Action != "" {
		action = fmt.Sprintf("The player is currently %s. ", req.Action)
	}

	hands := "No hands, arms, or any part of the player's body are visible."
	for _, verb := range handVerbs {
		if req.Action != "" && strings.Contains(req.Action, verb) {
			hands = "The player's hands are visible, interacting with the object."
			break
		}
	}

	return fmt.Sprintf(
		"first-person perspective, %s%s%s. %sThe scene is viewed through the character's own eyes. %s %s, cinematic, masterpiece, hyperrealistic",
		continuity, location, req.Prompt, action, hands, style,
	)
}
