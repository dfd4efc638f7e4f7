package tui

import (
	"context"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/fable/internal/image"
	"github.com/felixgeelhaar/fable/internal/observe"
	"github.com/felixgeelhaar/fable/internal/provider"
	"github.com/felixgeelhaar/fable/internal/scenario"
	"github.com/felixgeelhaar/fable/internal/session"
	"github.com/felixgeelhaar/fable/internal/store"
)

func testModel(t *testing.T) Model {
	t.Helper()
	st, err := store.Open(":memory:", bolt.New(bolt.NewConsoleHandler(io.Discard)))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	eng := session.New(st, observe.New(io.Discard, false))
	scenarios, err := scenario.Builtin()
	if err != nil {
		t.Fatalf("failed to load scenarios: %v", err)
	}
	return NewModel(eng, provider.Config{Kind: provider.KindStub}, image.Config{Kind: image.KindNone}, scenarios)
}

func TestMenuViewListsScenarios(t *testing.T) {
	m := testModel(t)
	view := m.View()
	if !strings.Contains(view, "waystone") {
		t.Errorf("menu should list built-in scenarios, got:\n%s", view)
	}
	if !strings.Contains(view, "NEW ADVENTURE") {
		t.Error("menu should offer a new adventure section")
	}
}

func TestAdventureMsgEntersPlaying(t *testing.T) {
	m := testModel(t)
	m.width, m.height = 100, 40

	sess, err := m.engine.NewAdventure(context.Background(),
		provider.Config{Kind: provider.KindStub}, image.Config{Kind: image.KindNone}, "begin")
	if err != nil {
		t.Fatalf("NewAdventure failed: %v", err)
	}

	updated, _ := m.Update(adventureMsg{sess: sess})
	got := updated.(Model)
	if got.state != statePlaying {
		t.Fatalf("expected playing state, got %d", got.state)
	}

	view := got.View()
	if !strings.Contains(view, "1.") {
		t.Error("playing view should number the choices")
	}
	if !strings.Contains(view, "INVENTORY") {
		t.Error("playing view should render the sidebar")
	}
}

func TestAdventureMsgErrorEntersErrorState(t *testing.T) {
	m := testModel(t)
	updated, _ := m.Update(adventureMsg{err: io.ErrUnexpectedEOF})
	got := updated.(Model)
	if got.state != stateError {
		t.Fatalf("expected error state, got %d", got.state)
	}
	if !strings.Contains(got.View(), "snag") {
		t.Error("error view should surface the failure")
	}
}

func TestEscQuits(t *testing.T) {
	m := testModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit on escape")
	}
}
