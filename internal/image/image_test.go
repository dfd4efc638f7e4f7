package image

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/fable/internal/game"
)

func testLogger() *bolt.Logger {
	return bolt.New(bolt.NewConsoleHandler(io.Discard))
}

func TestBuildPrompt(t *testing.T) {
	t.Run("AllClauses", func(t *testing.T) {
		p := BuildPrompt(Request{
			Prompt:         "a ruined chapel",
			Theme:          game.ThemeHorror,
			PreviousPrompt: "a foggy graveyard",
			Location:       "the old cemetery",
			Action:         "pick up the lantern",
		})
		for _, want := range []string{
			"first-person perspective",
			"Continuing from a scene described as 'a foggy graveyard'",
			"The scene takes place in the old cemetery.",
			"a ruined chapel",
			"The player is currently pick up the lantern.",
			"The player's hands are visible",
			"gothic horror aesthetic",
		} {
			if !strings.Contains(p, want) {
				t.Errorf("Prompt missing %q:\n%s", want, p)
			}
		}
	})

	t.Run("NoHandsWithoutVerb", func(t *testing.T) {
		p := BuildPrompt(Request{Prompt: "a market square", Theme: game.ThemeFantasy, Action: "walk north"})
		if !strings.Contains(p, "No hands, arms, or any part of the player's body are visible.") {
			t.Error("Expected hands suppressed for non-interaction action")
		}
	})

	t.Run("UnknownThemeFallsBack", func(t *testing.T) {
		p := BuildPrompt(Request{Prompt: "somewhere", Theme: game.Theme("DISCO")})
		if !strings.Contains(p, "dark fantasy art") {
			t.Error("Expected FANTASY style fallback for unknown theme")
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		req := Request{Prompt: "a bridge", Theme: game.ThemePirate, Action: "use the rope"}
		if BuildPrompt(req) != BuildPrompt(req) {
			t.Error("Expected identical prompts for identical requests")
		}
	})
}

func TestComfyUI(t *testing.T) {
	t.Run("InlineImage", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"image":"aGVsbG8="}`))
		}))
		defer server.Close()

		p := &ComfyUI{cfg: Config{Kind: KindComfyUI, Endpoint: server.URL}, log: testLogger()}
		got := p.Generate(context.Background(), Request{Prompt: "a ship", Theme: game.ThemePirate})
		if got != "data:image/jpeg;base64,aGVsbG8=" {
			t.Errorf("Expected data URI, got '%s'", got)
		}
	})

	t.Run("URLResponse", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"url":"http://example.com/img.jpg"}`))
		}))
		defer server.Close()

		p := &ComfyUI{cfg: Config{Kind: KindComfyUI, Endpoint: server.URL}, log: testLogger()}
		if got := p.Generate(context.Background(), Request{Prompt: "x", Theme: game.ThemeNoir}); got != "http://example.com/img.jpg" {
			t.Errorf("Expected URL passthrough, got '%s'", got)
		}
	})

	t.Run("TransportFailureYieldsPlaceholder", func(t *testing.T) {
		// Endpoint refuses connections: the server is closed up front.
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		p := &ComfyUI{cfg: Config{Kind: KindComfyUI, Endpoint: server.URL}, log: testLogger()}
		if got := p.Generate(context.Background(), Request{Prompt: "x", Theme: game.ThemeFantasy}); got != Placeholder {
			t.Errorf("Expected placeholder, got '%s'", got)
		}
	})

	t.Run("ErrorStatusYieldsPlaceholder", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "queue full", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		p := &ComfyUI{cfg: Config{Kind: KindComfyUI, Endpoint: server.URL}, log: testLogger()}
		if got := p.Generate(context.Background(), Request{Prompt: "x", Theme: game.ThemeFantasy}); got != Placeholder {
			t.Errorf("Expected placeholder, got '%s'", got)
		}
	})

	t.Run("EmptyBodyYieldsPlaceholder", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		p := &ComfyUI{cfg: Config{Kind: KindComfyUI, Endpoint: server.URL}, log: testLogger()}
		if got := p.Generate(context.Background(), Request{Prompt: "x", Theme: game.ThemeFantasy}); got != Placeholder {
			t.Errorf("Expected placeholder, got '%s'", got)
		}
	})
}

func TestDallEWithoutKey(t *testing.T) {
	p := &DallE{cfg: Config{Kind: KindDallE}, log: testLogger()}
	if got := p.Generate(context.Background(), Request{Prompt: "x", Theme: game.ThemeSciFi}); got != Placeholder {
		t.Errorf("Expected placeholder without API key, got '%s'", got)
	}
}

func TestForFactory(t *testing.T) {
	for _, kind := range Kinds {
		p, err := For(Config{Kind: kind}, testLogger())
		if err != nil {
			t.Fatalf("For(%s) failed: %v", kind, err)
		}
		if p.Name() != kind {
			t.Errorf("Expected %s, got %s", kind, p.Name())
		}
	}
	if _, err := For(Config{Kind: "oilpaint"}, testLogger()); err == nil {
		t.Error("Expected error for unknown image kind")
	}
}
