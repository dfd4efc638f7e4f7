// Package session is the engine core: it owns the authoritative game state,
// drives the turn protocol against the text and image backends, reconciles
// provider output into validated state, and persists every successful turn.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/fable/internal/game"
	"github.com/felixgeelhaar/fable/internal/image"
	"github.com/felixgeelhaar/fable/internal/observe"
	"github.com/felixgeelhaar/fable/internal/provider"
	"github.com/felixgeelhaar/fable/internal/store"
)

// Status is the session lifecycle state. Nothing leaves StatusError except
// a full Reset back to the menu.
type Status string

const (
	StatusMenu    Status = "menu"
	StatusPlaying Status = "playing"
	StatusError   Status = "error"
)

// ErrTurnInFlight rejects a turn while another is outstanding. Two turns
// racing on one conversation would interleave transcript appends and corrupt
// narrative continuity, so this is correctness, not UI polish.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// ErrNoAdventure rejects actions when no adventure is being played.
var ErrNoAdventure = errors.New("no active adventure")

// ErrAdventureActive rejects starting or loading while a session exists.
// The error state included: the only way out of it is a full Reset.
var ErrAdventureActive = errors.New("an adventure is already active")

// Session is one playthrough's complete in-memory state. Callers receive it
// from Engine methods and must treat it as read-only.
type Session struct {
	ID           string
	Title        string
	Status       Status
	History      []game.HistoryEntry
	CurrentScene *game.Scene
	CurrentImage string
	Theme        game.Theme
	Inventory    []string
	WorldState   map[string]string
	NPCs         []game.NPC
	Conversation provider.Context
	TextConfig   provider.Config
	ImageConfig  image.Config
	ErrMsg       string
}

// Engine is the session state machine. Exactly one session is active at a
// time; starting or loading another requires a Reset back to the menu first.
// Provider configuration travels through explicit parameters and session
// state, never through globals.
type Engine struct {
	mu   sync.Mutex
	busy bool
	sess *Session

	store     store.Storage
	obs       *observe.Observer
	estimator *estimator

	// Factory seams; tests substitute scripted backends here.
	providerFor func(provider.Config) (provider.Provider, error)
	imageFor    func(image.Config) (image.Provider, error)

	// ResolveCredential supplies API keys when a save is loaded; keys are
	// never stored in snapshots.
	ResolveCredential func(kind provider.Kind) string

	// ResolveImageCredential does the same for the image backend.
	ResolveImageCredential func(kind image.Kind) string
}

// New creates an engine over the given store.
func New(st store.Storage, obs *observe.Observer) *Engine {
	e := &Engine{
		store:       st,
		obs:         obs,
		estimator:   newEstimator(0),
		providerFor: provider.For,
	}
	e.imageFor = func(cfg image.Config) (image.Provider, error) {
		return image.For(cfg, obs.Log())
	}
	return e
}

// Session returns the active session, or nil when in the menu.
func (e *Engine) Session() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

// beginTurn acquires the single turn slot. Every state transition that talks
// to a backend goes through it.
func (e *Engine) beginTurn() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrTurnInFlight
	}
	e.busy = true
	return nil
}

func (e *Engine) endTurn() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

// NewAdventure starts a fresh session: first scene from the text backend,
// matching image, initial state from the scene's deltas, then persist. Only
// legal from the menu; an existing session, errored or not, must be Reset
// first. Any failure lands in StatusError with no partial save.
func (e *Engine) NewAdventure(ctx context.Context, text provider.Config, img image.Config, startPrompt string) (*Session, error) {
	if err := e.beginTurn(); err != nil {
		return nil, err
	}
	defer e.endTurn()
	if e.Session() != nil {
		return nil, ErrAdventureActive
	}
	e.estimator.invalidate()

	ctx, span := e.obs.StartSpan(ctx, "session.start")
	defer span.End()

	p, err := e.providerFor(text)
	if err != nil {
		return e.fail(err)
	}
	imgProvider, err := e.imageFor(img)
	if err != nil {
		return e.fail(err)
	}

	conv, scene, err := p.Start(ctx, text, startPrompt)
	if err != nil {
		e.logTurnFailure(err)
		return e.fail(err)
	}
	e.guardChoices(scene)

	imageRef := imgProvider.Generate(ctx, image.Request{
		Prompt: scene.VisualPrompt(),
		Theme:  scene.Theme,
	})

	sess := &Session{
		ID:           uuid.NewString(),
		Title:        scene.Title,
		Status:       StatusPlaying,
		History:      []game.HistoryEntry{{Description: scene.Description, Image: imageRef}},
		CurrentScene: scene,
		CurrentImage: imageRef,
		Theme:        scene.Theme,
		Inventory:    []string{},
		WorldState:   map[string]string{},
		NPCs:         []game.NPC{},
		Conversation: conv,
		TextConfig:   text,
		ImageConfig:  img,
	}
	applyDeltas(sess, scene)

	if err := e.persist(ctx, sess); err != nil {
		closeConversation(conv)
		return e.fail(err)
	}

	e.mu.Lock()
	e.sess = sess
	e.mu.Unlock()

	e.obs.Log().Info().Str("session", sess.ID).Str("provider", string(text.Kind)).Msg("adventure started")
	return sess, nil
}

// Act runs one turn: text backend with the current world view, image backend
// with continuity from the previous scene, merge-by-presence reconciliation,
// then persist. Only a fully successful turn mutates or persists state.
func (e *Engine) Act(ctx context.Context, action string) (*Session, error) {
	if err := e.beginTurn(); err != nil {
		return nil, err
	}
	defer e.endTurn()
	e.estimator.invalidate()

	e.mu.Lock()
	sess := e.sess
	e.mu.Unlock()
	if sess == nil || sess.Status != StatusPlaying || sess.Conversation == nil {
		return nil, ErrNoAdventure
	}

	ctx, span := e.obs.StartSpan(ctx, "session.turn")
	defer span.End()

	p, err := e.providerFor(sess.TextConfig)
	if err != nil {
		return e.fail(err)
	}
	imgProvider, err := e.imageFor(sess.ImageConfig)
	if err != nil {
		return e.fail(err)
	}

	world := game.WorldView{
		Inventory:  sess.Inventory,
		WorldState: sess.WorldState,
		NPCs:       sess.NPCs,
	}
	scene, err := p.Continue(ctx, sess.TextConfig, sess.Conversation, action, world)
	if err != nil {
		e.logTurnFailure(err)
		return e.fail(err)
	}
	e.guardChoices(scene)

	// Old saves may predate per-scene prompts; continuity is best effort.
	previousPrompt := ""
	if sess.CurrentScene != nil {
		previousPrompt = sess.CurrentScene.VisualPrompt()
	}
	imageRef := imgProvider.Generate(ctx, image.Request{
		Prompt:         scene.VisualPrompt(),
		Theme:          scene.Theme,
		PreviousPrompt: previousPrompt,
		Action:         action,
	})

	e.mu.Lock()
	sess.History = append(sess.History, game.HistoryEntry{Description: scene.Description, Image: imageRef})
	sess.CurrentScene = scene
	sess.CurrentImage = imageRef
	sess.Theme = scene.Theme
	applyDeltas(sess, scene)
	e.mu.Unlock()

	if err := e.persist(ctx, sess); err != nil {
		return e.fail(err)
	}
	return sess, nil
}

// applyDeltas is the reconciliation rule: a delta replaces the session value
// only when the scene carried it. Presence, not truthiness, governs the
// merge, so an explicitly empty collection wins over the prior value.
func applyDeltas(sess *Session, scene *game.Scene) {
	if scene.Inventory != nil {
		sess.Inventory = *scene.Inventory
	}
	if scene.WorldState != nil {
		sess.WorldState = *scene.WorldState
	}
	if scene.NPCs != nil {
		sess.NPCs = *scene.NPCs
	}
}

// guardChoices keeps a Playing session actionable. A scene without choices
// is a provider defect, not a game-over: the engine has no terminal state.
func (e *Engine) guardChoices(scene *game.Scene) {
	if len(scene.Choices) == 0 {
		e.obs.Log().Warn().Str("scene", scene.Title).Msg("scene arrived without choices; injecting default")
		scene.Choices = []string{"Continue"}
	}
}

// LoadAdventure restores a persisted session verbatim, rehydrating the
// conversation through the provider named in the save. Like NewAdventure it
// is only legal from the menu.
func (e *Engine) LoadAdventure(ctx context.Context, id string) (*Session, error) {
	if err := e.beginTurn(); err != nil {
		return nil, err
	}
	defer e.endTurn()
	if e.Session() != nil {
		return nil, ErrAdventureActive
	}
	e.estimator.invalidate()

	ctx, span := e.obs.StartSpan(ctx, "session.load")
	defer span.End()

	snap, err := e.store.Load(ctx, id)
	if err != nil {
		return e.fail(err)
	}

	textCfg := snap.TextProvider
	if e.ResolveCredential != nil {
		textCfg.APIKey = e.ResolveCredential(textCfg.Kind)
	}
	imgCfg := snap.ImageProvider
	if e.ResolveImageCredential != nil {
		imgCfg.APIKey = e.ResolveImageCredential(imgCfg.Kind)
	}

	p, err := e.providerFor(textCfg)
	if err != nil {
		return e.fail(err)
	}
	r, ok := p.(provider.Rehydrator)
	if !ok {
		return e.fail(fmt.Errorf("%w: %s", provider.ErrRehydrateUnsupported, textCfg.Kind))
	}
	conv, err := r.Rehydrate(ctx, textCfg, snap.Conversation)
	if err != nil {
		return e.fail(err)
	}

	sess := &Session{
		ID:           snap.ID,
		Title:        snap.Title,
		Status:       StatusPlaying,
		History:      snap.History,
		CurrentScene: snap.CurrentScene,
		CurrentImage: snap.CurrentImage,
		Theme:        snap.Theme,
		Inventory:    snap.Inventory,
		WorldState:   snap.WorldState,
		NPCs:         snap.NPCs,
		Conversation: conv,
		TextConfig:   textCfg,
		ImageConfig:  imgCfg,
	}

	e.mu.Lock()
	e.sess = sess
	e.mu.Unlock()

	e.obs.Log().Info().Str("session", sess.ID).Msg("adventure loaded")
	return sess, nil
}

// Reset discards the in-memory session from any state and returns to the
// menu, releasing any provider resources the conversation holds. Persisted
// saves are untouched.
func (e *Engine) Reset() {
	e.estimator.invalidate()
	e.mu.Lock()
	sess := e.sess
	e.sess = nil
	e.mu.Unlock()

	if sess != nil {
		closeConversation(sess.Conversation)
	}
}

// closeConversation releases whatever the conversation context holds open,
// such as the Gemini adapter's API client.
func closeConversation(conv provider.Context) {
	if c, ok := conv.(io.Closer); ok {
		_ = c.Close()
	}
}

// Saves lists persisted adventures, most recently played first.
func (e *Engine) Saves(ctx context.Context) ([]store.Summary, error) {
	return e.store.List(ctx)
}

// DeleteSave removes a persisted adventure. The in-memory session, if it is
// the same adventure, keeps playing; destruction of the save is independent
// of the in-memory lifetime.
func (e *Engine) DeleteSave(ctx context.Context, id string) error {
	return e.store.Delete(ctx, id)
}

// persist snapshots the session and upserts it. Part of the sequential turn
// continuation: the save completes before the next turn can begin.
func (e *Engine) persist(ctx context.Context, sess *Session) error {
	raw, err := sess.Conversation.Serialize()
	if err != nil {
		return fmt.Errorf("serializing conversation: %w", err)
	}

	snap := &store.Snapshot{
		Version:       store.SnapshotVersion,
		ID:            sess.ID,
		Title:         sess.Title,
		LastPlayed:    time.Now().UTC(),
		Theme:         sess.Theme,
		History:       sess.History,
		CurrentScene:  sess.CurrentScene,
		CurrentImage:  sess.CurrentImage,
		Inventory:     sess.Inventory,
		WorldState:    sess.WorldState,
		NPCs:          sess.NPCs,
		Conversation:  raw,
		TextProvider:  sess.TextConfig,
		ImageProvider: sess.ImageConfig,
	}
	return e.store.Save(ctx, snap)
}

// fail converts any turn failure into the terminal error state, preserving
// the message for the player. There is no automatic retry anywhere in the
// core; recovery is an explicit Reset.
func (e *Engine) fail(err error) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		e.sess = &Session{Status: StatusError, ErrMsg: err.Error()}
	} else {
		e.sess.Status = StatusError
		e.sess.ErrMsg = err.Error()
	}
	return e.sess, err
}

// logTurnFailure records provider failures; parse failures carry the raw
// text for diagnosis.
func (e *Engine) logTurnFailure(err error) {
	var pe *game.ParseError
	if errors.As(err, &pe) {
		e.obs.Log().Warn().Str("raw", pe.Raw).Err(err).Msg("scene parse failed")
		return
	}
	e.obs.Log().Error().Err(err).Msg("turn failed")
}
