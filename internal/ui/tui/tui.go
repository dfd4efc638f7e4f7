// Package tui is the terminal front end: a menu over saves and scenarios,
// and the turn loop view with the scene log, choices, and world sidebar.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/fable/internal/image"
	"github.com/felixgeelhaar/fable/internal/provider"
	"github.com/felixgeelhaar/fable/internal/scenario"
	"github.com/felixgeelhaar/fable/internal/session"
	"github.com/felixgeelhaar/fable/internal/store"
)

type uiState int

const (
	stateMenu uiState = iota
	stateLoading
	statePlaying
	stateError
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	narrationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	headingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))
)

// Model is the bubbletea model for the whole application.
type Model struct {
	state  uiState
	engine *session.Engine

	textCfg   provider.Config
	imageCfg  image.Config
	scenarios []scenario.Scenario
	saves     []store.Summary

	textInput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model

	gameLog string
	loading string
	tokens  int
	tokenCh chan int
	err     error
	width   int
	height  int
	vpReady bool
}

type adventureMsg struct {
	sess *session.Session
	err  error
}

type savesMsg struct {
	saves []store.Summary
	err   error
}

type tokensMsg int

// NewModel builds the initial menu model. The provider configurations are
// fixed for the lifetime of the program run.
func NewModel(eng *session.Engine, textCfg provider.Config, imageCfg image.Config, scenarios []scenario.Scenario) Model {
	ti := textinput.New()
	ti.Placeholder = "scenario name, save number, or a starting idea..."
	ti.Focus()
	ti.CharLimit = 300
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		state:     stateMenu,
		engine:    eng,
		textCfg:   textCfg,
		imageCfg:  imageCfg,
		scenarios: scenarios,
		textInput: ti,
		spinner:   sp,
		tokenCh:   make(chan int, 1),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.refreshSaves(), waitForTokens(m.tokenCh))
}

func waitForTokens(ch chan int) tea.Cmd {
	return func() tea.Msg { return tokensMsg(<-ch) }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.logWidth()
		m.viewport.Height = msg.Height - 8
		if m.state == statePlaying {
			m.viewport.SetContent(m.gameLog)
		}

	case spinner.TickMsg:
		if m.state == stateLoading {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case savesMsg:
		if msg.err == nil {
			m.saves = msg.saves
		}
		return m, nil

	case tokensMsg:
		m.tokens = int(msg)
		return m, waitForTokens(m.tokenCh)

	case adventureMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		return m.showTurn(msg.sess), nil
	}

	if m.state == stateMenu || m.state == statePlaying {
		before := m.textInput.Value()
		m.textInput, cmd = m.textInput.Update(msg)
		if m.state == statePlaying && m.textInput.Value() != before {
			m.engine.EstimateTokens(context.Background(), m.textInput.Value(), func(n int) {
				select {
				case m.tokenCh <- n:
				default:
				}
			})
		}
		return m, cmd
	}
	return m, nil
}

// submit routes the enter key by state: menu selections start or load an
// adventure; playing input resolves to a choice number or a free action.
func (m Model) submit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textInput.Value())

	switch m.state {
	case stateMenu:
		if input == "" {
			return m, nil
		}
		m.textInput.Reset()

		if rest, ok := strings.CutPrefix(input, "delete "); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil && n >= 1 && n <= len(m.saves) {
				id := m.saves[n-1].ID
				return m, func() tea.Msg {
					_ = m.engine.DeleteSave(context.Background(), id)
					return m.refreshSaves()()
				}
			}
			return m, nil
		}

		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(m.saves) {
			m.state = stateLoading
			m.loading = "Restoring your adventure"
			id := m.saves[n-1].ID
			return m, tea.Batch(m.spinner.Tick, m.loadAdventure(id))
		}

		prompt := input
		if sc, ok := scenario.Find(m.scenarios, input); ok {
			prompt = sc.StartPrompt
		}
		m.state = stateLoading
		m.loading = "Conjuring your adventure"
		return m, tea.Batch(m.spinner.Tick, m.startAdventure(prompt))

	case statePlaying:
		if input == "" {
			return m, nil
		}
		m.textInput.Reset()

		switch input {
		case "/quit":
			return m, tea.Quit
		case "/menu":
			m.engine.Reset()
			m.state = stateMenu
			m.gameLog = ""
			m.tokens = 0
			m.textInput.Placeholder = "scenario name, save number, or a starting idea..."
			return m, m.refreshSaves()
		}

		action := input
		sess := m.engine.Session()
		if n, err := strconv.Atoi(input); err == nil && sess != nil && sess.CurrentScene != nil {
			if n >= 1 && n <= len(sess.CurrentScene.Choices) {
				action = sess.CurrentScene.Choices[n-1]
			}
		}

		m.gameLog += "\n\n" + actionStyle.Width(m.logWidth()).Render("> "+action) + "\n\n"
		m.viewport.SetContent(m.gameLog)
		m.viewport.GotoBottom()
		m.state = stateLoading
		m.loading = "The story unfolds"
		return m, tea.Batch(m.spinner.Tick, m.act(action))

	case stateError:
		// Any entry returns to the menu.
		m.engine.Reset()
		m.state = stateMenu
		m.err = nil
		m.gameLog = ""
		return m, m.refreshSaves()
	}
	return m, nil
}

// showTurn appends the latest scene to the log and switches to playing.
func (m Model) showTurn(sess *session.Session) Model {
	scene := sess.CurrentScene

	if !m.vpReady {
		m.viewport = viewport.New(m.logWidth(), m.height-8)
		m.vpReady = true
	}
	if m.gameLog == "" {
		m.gameLog = narrationStyle.Bold(true).Render(scene.Title) + "\n\n"
	}
	m.gameLog += narrationStyle.Width(m.logWidth()).Render(scene.Description)
	if sess.CurrentImage != "" {
		m.gameLog += "\n" + helpStyle.Render("[illustration: "+truncate(sess.CurrentImage, 60)+"]")
	}

	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
	m.textInput.Placeholder = "choice number or your own action..."
	m.state = statePlaying
	m.tokens = 0
	return m
}

func (m Model) View() string {
	var s string

	switch m.state {
	case stateMenu:
		s = m.renderMenu()

	case stateLoading:
		s = fmt.Sprintf("\n  %s %s...\n", m.spinner.View(), m.loading)

	case statePlaying:
		main := lipgloss.JoinHorizontal(lipgloss.Top, m.viewport.View(), m.renderSidebar())
		footer := m.renderChoices() + "\n" + m.textInput.View()
		if m.tokens > 0 {
			footer += "  " + helpStyle.Render(fmt.Sprintf("~%d tokens", m.tokens))
		}
		help := helpStyle.Render("Commands: /menu, /quit, or type what you do.")
		s = lipgloss.JoinVertical(lipgloss.Left, main, "\n"+footer, "\n"+help)

	case stateError:
		s = fmt.Sprintf("\n  %s\n\n%s\n",
			errorStyle.Render("The adventure hit a snag: "+m.err.Error()),
			helpStyle.Render("Press Enter for the menu, Esc to quit."))
	}

	return "\n" + s + "\n"
}

func (m Model) renderMenu() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("FABLE") + "\n\n")

	if len(m.saves) > 0 {
		b.WriteString(headingStyle.Render("CONTINUE") + "\n")
		for i, sv := range m.saves {
			fmt.Fprintf(&b, "  %d. %s  %s\n", i+1,
				sv.Title,
				helpStyle.Render(fmt.Sprintf("(%s, %d turns, %s)", sv.Theme, sv.Turns, sv.LastPlayed.Local().Format("Jan 2 15:04"))))
		}
		b.WriteString("\n")
	}

	b.WriteString(headingStyle.Render("NEW ADVENTURE") + "\n")
	for _, sc := range m.scenarios {
		fmt.Fprintf(&b, "  %s  %s\n", choiceStyle.Render(sc.Name), helpStyle.Render(sc.Description))
	}
	b.WriteString("\n" + m.textInput.View() + "\n\n")
	b.WriteString(helpStyle.Render("Pick a save by number, a scenario by name, or describe your own opening. 'delete N' removes a save."))
	return b.String()
}

func (m Model) renderChoices() string {
	sess := m.engine.Session()
	if sess == nil || sess.CurrentScene == nil {
		return ""
	}
	var b strings.Builder
	for i, c := range sess.CurrentScene.Choices {
		b.WriteString(choiceStyle.Render(fmt.Sprintf("  %d. %s", i+1, c)) + "\n")
	}
	return b.String()
}

func (m Model) renderSidebar() string {
	sess := m.engine.Session()
	if sess == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(headingStyle.Render("THEME") + "\n" + string(sess.Theme) + "\n\n")

	b.WriteString(headingStyle.Render("INVENTORY") + "\n")
	if len(sess.Inventory) == 0 {
		b.WriteString("(empty)\n")
	} else {
		for _, item := range sess.Inventory {
			b.WriteString("- " + item + "\n")
		}
	}
	b.WriteString("\n")

	if len(sess.WorldState) > 0 {
		b.WriteString(headingStyle.Render("WORLD") + "\n")
		for k, v := range sess.WorldState {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
		b.WriteString("\n")
	}

	if len(sess.NPCs) > 0 {
		b.WriteString(headingStyle.Render("CHARACTERS") + "\n")
		for _, npc := range sess.NPCs {
			b.WriteString("- " + npc.Name + "\n")
		}
	}

	return sidebarStyle.Width(m.sidebarWidth()).Height(m.viewport.Height).Render(b.String())
}

func (m Model) logWidth() int {
	w := int(float64(m.width) * 0.72)
	if w < 20 {
		return 20
	}
	return w
}

func (m Model) sidebarWidth() int {
	w := int(float64(m.width) * 0.24)
	if w < 12 {
		return 12
	}
	return w
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (m Model) refreshSaves() tea.Cmd {
	return func() tea.Msg {
		saves, err := m.engine.Saves(context.Background())
		return savesMsg{saves: saves, err: err}
	}
}

func (m Model) startAdventure(prompt string) tea.Cmd {
	return func() tea.Msg {
		sess, err := m.engine.NewAdventure(context.Background(), m.textCfg, m.imageCfg, prompt)
		return adventureMsg{sess: sess, err: err}
	}
}

func (m Model) loadAdventure(id string) tea.Cmd {
	return func() tea.Msg {
		sess, err := m.engine.LoadAdventure(context.Background(), id)
		return adventureMsg{sess: sess, err: err}
	}
}

func (m Model) act(action string) tea.Cmd {
	return func() tea.Msg {
		sess, err := m.engine.Act(context.Background(), action)
		return adventureMsg{sess: sess, err: err}
	}
}

// Run starts the interactive program and blocks until it exits.
func Run(eng *session.Engine, textCfg provider.Config, imageCfg image.Config, scenarios []scenario.Scenario) error {
	p := tea.NewProgram(NewModel(eng, textCfg, imageCfg, scenarios), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
