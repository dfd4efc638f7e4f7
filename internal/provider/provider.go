// Package provider adapts heterogeneous text-generation backends to the
// adventure engine's capability interface. Three backends are supported: the
// managed Gemini API (native JSON output mode) and two OpenAI-style local
// servers, LM Studio and Ollama.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/fable/internal/game"
)

// Kind identifies a text-generation backend.
type Kind string

const (
	KindGemini   Kind = "gemini"
	KindLMStudio Kind = "lmstudio"
	KindOllama   Kind = "ollama"
	KindStub     Kind = "stub"
)

// Kinds lists the selectable backends.
var Kinds = []Kind{KindGemini, KindLMStudio, KindOllama}

// Config selects and authenticates a text backend. The session passes it
// explicitly into every call; adapters hold no ambient state. The API key is
// deliberately excluded from serialization so it never lands in a save file.
type Config struct {
	Kind     Kind   `json:"kind"`
	APIKey   string `json:"-"`
	Endpoint string `json:"endpoint,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Message is a plain role/content exchange, the transcript unit for
// chat-completion backends and the serialized form of every conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context is the opaque, provider-owned conversation handle that carries
// narrative continuity across turns. The session treats it as a capability
// object: it may serialize it for persistence but never inspects its shape.
type Context interface {
	Provider() Kind
	Serialize() (json.RawMessage, error)
}

// Error wraps a text-backend failure with the provider that produced it.
// Adapters never retry; retry policy belongs to the caller, and the session
// implements none.
type Error struct {
	Provider Kind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrRehydrateUnsupported is returned when a save names a provider that
// cannot restore a serialized conversation.
var ErrRehydrateUnsupported = errors.New("provider cannot rehydrate a saved conversation")

// Provider is the capability interface every text backend implements.
//
// Start opens a fresh conversation and produces the first scene. Continue
// advances an existing conversation with the player's action and the current
// authoritative world view; on success the passed Context has absorbed both
// the user turn and the assistant turn.
type Provider interface {
	Name() Kind
	Start(ctx context.Context, cfg Config, startPrompt string) (Context, *game.Scene, error)
	Continue(ctx context.Context, cfg Config, conv Context, action string, world game.WorldView) (*game.Scene, error)
}

// Rehydrator restores a conversation from its serialized form when a save is
// loaded. Providers that cannot do this simply don't implement it.
type Rehydrator interface {
	Rehydrate(ctx context.Context, cfg Config, saved json.RawMessage) (Context, error)
}

// TokenCounter optionally estimates the prompt size of the next turn. The
// result is advisory UI only.
type TokenCounter interface {
	CountTokens(ctx context.Context, cfg Config, conv Context, action string, world game.WorldView) (int, error)
}

// For returns the adapter for the configured backend.
func For(cfg Config) (Provider, error) {
	switch cfg.Kind {
	case KindGemini:
		return Gemini{}, nil
	case KindLMStudio:
		return LMStudio{}, nil
	case KindOllama:
		return Ollama{}, nil
	case KindStub:
		return NewStub(), nil
	default:
		return nil, fmt.Errorf("unknown text provider %q", cfg.Kind)
	}
}
