package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/dispatch"
)

// failureBranches are rendered in red in the event log.
var failureBranches = map[string]bool{
	dispatch.BranchQueryFailed:      true,
	dispatch.BranchCreationFailed:   true,
	dispatch.BranchCompletionFailed: true,
}

type Event struct {
	At      time.Time
	Branch  string
	Message string
}

// Events is the dispatch log panel.
type Events struct {
	viewport viewport.Model
	events   []Event
}

func NewEvents() *Events {
	vp := viewport.New(0, 0)
	vp.KeyMap = scrollKeys()
	vp.SetContent("Dispatch log\n")
	return &Events{
		viewport: vp,
		events:   []Event{},
	}
}

func (e *Events) Init() tea.Cmd {
	return nil
}

func (e *Events) Update(msg tea.Msg) (*Events, tea.Cmd) {
	var cmd tea.Cmd
	e.viewport, cmd = e.viewport.Update(msg)
	return e, cmd
}

func (e *Events) View(width, height int) string {
	e.viewport.Width = width - 2
	e.viewport.Height = height - 2
	return EventsPanelStyle.Width(width).Height(height).Render(e.viewport.View())
}

func (e *Events) AddEvent(branch, message string) {
	e.events = append(e.events, Event{At: time.Now(), Branch: branch, Message: message})
	e.updateContent()
}

func (e *Events) updateContent() {
	var sb strings.Builder
	for _, event := range e.events {
		color := Teal
		if failureBranches[event.Branch] {
			color = Red
		}
		style := EventStyle.Foreground(color)
		sb.WriteString(style.Render(fmt.Sprintf("%s [%s] %s", event.At.Format("15:04:05"), event.Branch, event.Message)))
		sb.WriteString("\n")
	}
	e.viewport.SetContent(sb.String())
}
