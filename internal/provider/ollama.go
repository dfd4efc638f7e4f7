package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/felixgeelhaar/fable/internal/game"
)

const defaultOllamaModel = "llama3.2"

// Ollama drives a local Ollama server through its native chat API. Like LM
// Studio it offers no structured-output guarantee, so responses go through
// the full parser fallback chain.
type Ollama struct{}

func (Ollama) Name() Kind {
	return KindOllama
}

func (Ollama) client(cfg Config) (*api.Client, error) {
	base := cfg.Endpoint
	if base == "" {
		base = os.Getenv("OLLAMA_HOST")
	}
	if base == "" {
		base = "http://localhost:11434"
	}
	uri, err := url.Parse(base)
	if err != nil {
		return nil, &Error{Provider: KindOllama, Err: fmt.Errorf("invalid endpoint %q: %w", base, err)}
	}
	return api.NewClient(uri, http.DefaultClient), nil
}

func (p Ollama) Start(ctx context.Context, cfg Config, startPrompt string) (Context, *game.Scene, error) {
	conv := newChatContext(KindOllama)
	scene, err := p.send(ctx, cfg, conv, startPrompt)
	if err != nil {
		return nil, nil, err
	}
	return conv, scene, nil
}

func (p Ollama) Continue(ctx context.Context, cfg Config, conv Context, action string, world game.WorldView) (*game.Scene, error) {
	cc, ok := conv.(*chatContext)
	if !ok || cc.kind != KindOllama {
		return nil, &Error{Provider: KindOllama, Err: fmt.Errorf("foreign conversation context %T", conv)}
	}
	return p.send(ctx, cfg, cc, turnContext(action, world))
}

func (p Ollama) send(ctx context.Context, cfg Config, conv *chatContext, userMsg string) (*game.Scene, error) {
	client, err := p.client(cfg)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}

	apiMsgs := make([]api.Message, 0, len(conv.msgs)+1)
	for _, m := range conv.msgs {
		apiMsgs = append(apiMsgs, api.Message{Role: m.Role, Content: m.Content})
	}
	apiMsgs = append(apiMsgs, api.Message{Role: "user", Content: userMsg})

	req := &api.ChatRequest{
		Model:    model,
		Messages: apiMsgs,
		Stream:   new(bool), // false
	}

	var text strings.Builder
	err = client.Chat(ctx, req, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, &Error{Provider: KindOllama, Err: fmt.Errorf("chat failed: %w", err)}
	}

	scene, err := game.ParseScene(text.String())
	if err != nil {
		return nil, err
	}

	conv.append("user", userMsg)
	conv.append("assistant", text.String())
	return scene, nil
}

func (Ollama) Rehydrate(ctx context.Context, cfg Config, saved json.RawMessage) (Context, error) {
	return rehydrateChatContext(KindOllama, saved)
}
