package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type Status struct {
	user       string
	phone      string
	store      string
	lane       string
	timezone   string
	lastBranch string
	lastTook   time.Duration
	messages   int
}

func NewStatus(cfg Config) *Status {
	return &Status{
		user:       cfg.User.Name,
		phone:      cfg.User.Phone,
		store:      cfg.Store,
		lane:       cfg.Lane,
		timezone:   cfg.Timezone,
		lastBranch: "-",
	}
}

func (s *Status) Init() tea.Cmd {
	return nil
}

// Record notes the outcome of one dispatch.
func (s *Status) Record(branch string, took time.Duration) {
	s.lastBranch = branch
	s.lastTook = took
	s.messages++
}

func (s *Status) View(width, height int) string {
	content := fmt.Sprintf(
		"User: %s\nPhone: %s\nStore: %s\nLane: %s\nTimezone: %s\nMessages: %d\nLast branch: %s\nLast latency: %s",
		s.user,
		s.phone,
		s.store,
		s.lane,
		s.timezone,
		s.messages,
		s.lastBranch,
		s.lastTook.Round(time.Millisecond),
	)
	return StatusPanelStyle.Width(width).Height(height).Render(content)
}
