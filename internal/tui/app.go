// Package tui is a local console that talks to the dispatcher as a
// registered user, without a chat transport.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/dispatch"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

type Panel int

const (
	StatusPanel Panel = iota
	EventsPanel
)

// Dispatcher answers one text message.
type Dispatcher interface {
	Dispatch(ctx context.Context, user *task.User, text string) dispatch.Reply
}

// Config describes the console session.
type Config struct {
	User       *task.User
	Dispatcher Dispatcher
	Store      string
	Lane       string
	Timezone   string
	Version    string
	// Timeout bounds one dispatch. Zero means no bound.
	Timeout time.Duration
}

// replyMsg carries a finished dispatch back into the update loop.
type replyMsg struct {
	text  string
	reply dispatch.Reply
	took  time.Duration
}

type App struct {
	cfg           Config
	width, height int
	currentPanel  Panel
	chat          *Chat
	status        *Status
	events        *Events
	input         *Input
	keys          KeyMap
	pending       bool
	started       time.Time
}

func NewApp(cfg Config) *App {
	return &App{
		cfg:          cfg,
		currentPanel: StatusPanel,
		chat:         NewChat(cfg.User.Name),
		status:       NewStatus(cfg),
		events:       NewEvents(),
		input:        NewInput(),
		keys:         DefaultKeyMap,
		started:      time.Now(),
	}
}

// Run starts the console and blocks until the user quits.
func Run(cfg Config) error {
	_, err := tea.NewProgram(NewApp(cfg), tea.WithAltScreen()).Run()
	return err
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.chat.Init(), a.status.Init(), a.events.Init(), a.input.Init())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, a.keys.Tab):
			a.currentPanel = (a.currentPanel + 1) % 2
		case key.Matches(msg, a.keys.Send):
			if cmd := a.submit(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
	case replyMsg:
		a.pending = false
		a.chat.AddMessage("bot", msg.reply.Text)
		a.status.Record(msg.reply.Branch, msg.took)
		a.events.AddEvent(msg.reply.Branch, fmt.Sprintf("%q %s", msg.text, msg.took.Round(time.Millisecond)))
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
	}

	var cmd tea.Cmd
	a.chat, cmd = a.chat.Update(msg)
	cmds = append(cmds, cmd)
	a.events, cmd = a.events.Update(msg)
	cmds = append(cmds, cmd)
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	return a, tea.Batch(cmds...)
}

// submit sends the input line to the dispatcher. One dispatch runs at a time.
func (a *App) submit() tea.Cmd {
	text := a.input.Value()
	if strings.TrimSpace(text) == "" || a.pending {
		return nil
	}
	a.input.Commit()
	a.chat.AddMessage(a.cfg.User.Name, text)
	a.pending = true
	return a.dispatch(text)
}

func (a *App) dispatch(text string) tea.Cmd {
	cfg := a.cfg
	return func() tea.Msg {
		ctx := context.Background()
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		start := time.Now()
		reply := cfg.Dispatcher.Dispatch(ctx, cfg.User, text)
		return replyMsg{text: text, reply: reply, took: time.Since(start)}
	}
}

func (a *App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}

	statusBar := a.statusBarView()
	inputBar := a.input.View()

	contentHeight := a.height - lipgloss.Height(statusBar) - lipgloss.Height(inputBar)

	leftWidth := int(float64(a.width) * 0.7)
	rightWidth := a.width - leftWidth

	chatView := a.chat.View(leftWidth, contentHeight)
	var rightView string
	switch a.currentPanel {
	case EventsPanel:
		rightView = a.events.View(rightWidth, contentHeight)
	default:
		rightView = a.status.View(rightWidth, contentHeight)
	}

	layout := lipgloss.JoinHorizontal(lipgloss.Top, chatView, rightView)

	return lipgloss.JoinVertical(lipgloss.Left, statusBar, layout, inputBar)
}

func (a *App) statusBarView() string {
	uptime := time.Since(a.started).Round(time.Second)
	state := "idle"
	if a.pending {
		state = "thinking..."
	}
	return StatusBarStyle.Width(a.width).Render(fmt.Sprintf("taskbot %s | %s | Uptime: %s | %s",
		a.cfg.Version, a.cfg.User.Phone, uptime, state))
}
