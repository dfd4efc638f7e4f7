package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/felixgeelhaar/fable/internal/game"
)

const (
	defaultLMStudioEndpoint = "http://localhost:1234/v1"
	defaultLocalModel       = "local-model"
)

// LMStudio drives an LM Studio server through its OpenAI-compatible
// chat-completion endpoint. No structured-output guarantee exists, so every
// response runs through the scene parser's full fallback chain.
type LMStudio struct{}

func (LMStudio) Name() Kind {
	return KindLMStudio
}

func (LMStudio) client(cfg Config) *openai.Client {
	key := cfg.APIKey
	if key == "" {
		// LM Studio ignores the key but the client requires one.
		key = "lm-studio"
	}
	c := openai.DefaultConfig(key)
	c.BaseURL = defaultLMStudioEndpoint
	if cfg.Endpoint != "" {
		c.BaseURL = cfg.Endpoint
	}
	return openai.NewClientWithConfig(c)
}

func (p LMStudio) Start(ctx context.Context, cfg Config, startPrompt string) (Context, *game.Scene, error) {
	conv := newChatContext(KindLMStudio)
	scene, err := p.send(ctx, cfg, conv, startPrompt)
	if err != nil {
		return nil, nil, err
	}
	return conv, scene, nil
}

func (p LMStudio) Continue(ctx context.Context, cfg Config, conv Context, action string, world game.WorldView) (*game.Scene, error) {
	cc, ok := conv.(*chatContext)
	if !ok || cc.kind != KindLMStudio {
		return nil, &Error{Provider: KindLMStudio, Err: fmt.Errorf("foreign conversation context %T", conv)}
	}
	return p.send(ctx, cfg, cc, turnContext(action, world))
}

func (p LMStudio) send(ctx context.Context, cfg Config, conv *chatContext, userMsg string) (*game.Scene, error) {
	model := cfg.Model
	if model == "" {
		model = defaultLocalModel
	}

	reqMsgs := make([]openai.ChatCompletionMessage, 0, len(conv.msgs)+1)
	for _, m := range conv.msgs {
		reqMsgs = append(reqMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	reqMsgs = append(reqMsgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userMsg})

	resp, err := p.client(cfg).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: reqMsgs,
		Stream:   false,
	})
	if err != nil {
		return nil, &Error{Provider: KindLMStudio, Err: fmt.Errorf("completion failed: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Provider: KindLMStudio, Err: errors.New("no choices returned")}
	}

	text := resp.Choices[0].Message.Content
	scene, err := game.ParseScene(text)
	if err != nil {
		return nil, err
	}

	// The transcript grows only after a fully successful exchange.
	conv.append(openai.ChatMessageRoleUser, userMsg)
	conv.append(openai.ChatMessageRoleAssistant, text)
	return scene, nil
}

func (LMStudio) Rehydrate(ctx context.Context, cfg Config, saved json.RawMessage) (Context, error) {
	return rehydrateChatContext(KindLMStudio, saved)
}
