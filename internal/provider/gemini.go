package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/felixgeelhaar/fable/internal/game"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini is the managed-cloud backend. It runs the model in native JSON
// output mode; responses still go through the scene parser, which also
// handles the fenced and chatty variants local models produce.
type Gemini struct{}

func (Gemini) Name() Kind {
	return KindGemini
}

// geminiContext wraps the SDK's chat session, which maintains its own
// history across SendMessage calls. It owns the underlying client for the
// lifetime of the conversation; Close releases it.
type geminiContext struct {
	client  *genai.Client
	session *genai.ChatSession
}

func (c *geminiContext) Provider() Kind {
	return KindGemini
}

func (c *geminiContext) Close() error {
	return c.client.Close()
}

// Serialize flattens the SDK history into plain role/content pairs. Only
// text parts carry narrative state here, so nothing is lost.
func (c *geminiContext) Serialize() (json.RawMessage, error) {
	msgs := make([]Message, 0, len(c.session.History))
	for _, content := range c.session.History {
		var text strings.Builder
		for _, part := range content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
		msgs = append(msgs, Message{Role: content.Role, Content: text.String()})
	}
	return json.Marshal(msgs)
}

// newChat builds a chat session carrying the narrative contract and JSON
// output mode. The Go SDK's response schema cannot express string-keyed maps
// (worldState), so shape enforcement rides on the instruction plus the
// parser's validating decode.
func newChat(ctx context.Context, cfg Config, history []Message) (*geminiContext, error) {
	if cfg.APIKey == "" {
		return nil, &Error{Provider: KindGemini, Err: errors.New("API key is required")}
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, &Error{Provider: KindGemini, Err: fmt.Errorf("failed to create client: %w", err)}
	}

	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}
	model := client.GenerativeModel(name)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.ResponseMIMEType = "application/json"

	cs := model.StartChat()
	for _, m := range history {
		cs.History = append(cs.History, &genai.Content{
			Role:  m.Role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return &geminiContext{client: client, session: cs}, nil
}

func (g Gemini) Start(ctx context.Context, cfg Config, startPrompt string) (Context, *game.Scene, error) {
	gc, err := newChat(ctx, cfg, nil)
	if err != nil {
		return nil, nil, err
	}

	scene, err := g.send(ctx, gc.session, startPrompt)
	if err != nil {
		gc.Close()
		return nil, nil, err
	}
	return gc, scene, nil
}

func (g Gemini) Continue(ctx context.Context, cfg Config, conv Context, action string, world game.WorldView) (*game.Scene, error) {
	gc, ok := conv.(*geminiContext)
	if !ok {
		return nil, &Error{Provider: KindGemini, Err: fmt.Errorf("foreign conversation context %T", conv)}
	}
	return g.send(ctx, gc.session, turnContext(action, world))
}

func (g Gemini) send(ctx context.Context, cs *genai.ChatSession, prompt string) (*game.Scene, error) {
	resp, err := cs.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return nil, &Error{Provider: KindGemini, Err: fmt.Errorf("completion failed: %w", err)}
	}

	text, err := candidateText(resp)
	if err != nil {
		return nil, &Error{Provider: KindGemini, Err: err}
	}
	return game.ParseScene(text)
}

// Rehydrate rebuilds a chat session from a serialized transcript so a saved
// adventure resumes with full continuity.
func (g Gemini) Rehydrate(ctx context.Context, cfg Config, saved json.RawMessage) (Context, error) {
	var msgs []Message
	if err := json.Unmarshal(saved, &msgs); err != nil {
		return nil, &Error{Provider: KindGemini, Err: err}
	}
	return newChat(ctx, cfg, msgs)
}

// CountTokens estimates the prompt size of the next turn: system
// instruction, accumulated transcript and the pending action context.
func (g Gemini) CountTokens(ctx context.Context, cfg Config, conv Context, action string, world game.WorldView) (int, error) {
	gc, ok := conv.(*geminiContext)
	if !ok {
		return 0, &Error{Provider: KindGemini, Err: fmt.Errorf("foreign conversation context %T", conv)}
	}
	if cfg.APIKey == "" {
		return 0, &Error{Provider: KindGemini, Err: errors.New("API key is required")}
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return 0, &Error{Provider: KindGemini, Err: err}
	}
	defer client.Close()

	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}

	parts := []genai.Part{genai.Text(systemInstruction)}
	for _, content := range gc.session.History {
		for _, part := range content.Parts {
			if t, ok := part.(genai.Text); ok {
				parts = append(parts, t)
			}
		}
	}
	parts = append(parts, genai.Text(turnContext(action, world)))

	resp, err := client.GenerativeModel(name).CountTokens(ctx, parts...)
	if err != nil {
		return 0, &Error{Provider: KindGemini, Err: err}
	}
	return int(resp.TotalTokens), nil
}

func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no candidates returned")
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String(), nil
}
