package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/fable/internal/game"
)

// Stub is a scripted in-memory backend. It powers offline demo play and
// tests: scripted scenes are served in order, and once exhausted it
// improvises a scene echoing the player's action.
type Stub struct {
	Scenes  []*game.Scene
	Errs    []error
	Prompts []string
	Tokens  int
}

// NewStub returns a stub with a small canned adventure, enough to exercise
// the whole turn loop without a live backend.
func NewStub() *Stub {
	return &Stub{
		Scenes: []*game.Scene{
			{
				Title:       "The Waystone Inn",
				Description: "You wake on a straw cot in a dim inn. Rain drums the shutters and a single candle gutters on the table beside a folded note.",
				Choices:     []string{"Read the note", "Look out the window", "Go downstairs"},
				ImagePrompt: "a dim medieval inn room with a guttering candle and a folded note",
				Theme:       game.ThemeFantasy,
				Inventory:   &[]string{"rusty key"},
				WorldState:  &map[string]string{"time_of_day": "night"},
				NPCs:        &[]game.NPC{},
			},
		},
		Tokens: 128,
	}
}

func (s *Stub) Name() Kind {
	return KindStub
}

func (s *Stub) Start(ctx context.Context, cfg Config, startPrompt string) (Context, *game.Scene, error) {
	conv := newChatContext(KindStub)
	scene, err := s.next(startPrompt)
	if err != nil {
		return nil, nil, err
	}
	conv.append("user", startPrompt)
	conv.append("assistant", scene.Description)
	return conv, scene, nil
}

func (s *Stub) Continue(ctx context.Context, cfg Config, conv Context, action string, world game.WorldView) (*game.Scene, error) {
	cc, ok := conv.(*chatContext)
	if !ok {
		return nil, &Error{Provider: KindStub, Err: fmt.Errorf("foreign conversation context %T", conv)}
	}
	scene, err := s.next(action)
	if err != nil {
		return nil, err
	}
	cc.append("user", action)
	cc.append("assistant", scene.Description)
	return scene, nil
}

func (s *Stub) next(prompt string) (*game.Scene, error) {
	s.Prompts = append(s.Prompts, prompt)

	if len(s.Errs) > 0 {
		err := s.Errs[0]
		s.Errs = s.Errs[1:]
		return nil, err
	}
	if len(s.Scenes) > 0 {
		scene := s.Scenes[0]
		s.Scenes = s.Scenes[1:]
		return scene, nil
	}
	return &game.Scene{
		Title:       "Onward",
		Description: fmt.Sprintf("You %s. The world shifts around you, waiting for what comes next.", prompt),
		Choices:     []string{"Press on", "Take stock", "Turn back"},
		ImagePrompt: "a winding path fading into mist",
		Theme:       game.ThemeFantasy,
	}, nil
}

func (s *Stub) Rehydrate(ctx context.Context, cfg Config, saved json.RawMessage) (Context, error) {
	return rehydrateChatContext(KindStub, saved)
}

func (s *Stub) CountTokens(ctx context.Context, cfg Config, conv Context, action string, world game.WorldView) (int, error) {
	return s.Tokens, nil
}
