package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// maxHistory bounds the recall list.
const maxHistory = 50

// Input is the message line with recall of previously sent messages.
type Input struct {
	textinput textinput.Model
	keys      KeyMap
	history   []string
	// cursor indexes history while recalling; len(history) means a fresh line.
	cursor int
}

func NewInput() *Input {
	ti := textinput.New()
	ti.Placeholder = "Mensagem (ex: hoje, pendentes, concluir 2)"
	ti.CharLimit = 1000
	ti.Prompt = "› "
	ti.PromptStyle = PromptStyle
	ti.Focus()
	return &Input{textinput: ti, keys: DefaultKeyMap}
}

func (i *Input) Init() tea.Cmd {
	return textinput.Blink
}

func (i *Input) Update(msg tea.Msg) (*Input, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(k, i.keys.Up):
			i.recall(-1)
			return i, nil
		case key.Matches(k, i.keys.Down):
			i.recall(1)
			return i, nil
		}
	}
	var cmd tea.Cmd
	i.textinput, cmd = i.textinput.Update(msg)
	return i, cmd
}

func (i *Input) View() string {
	return InputBarStyle.Render(i.textinput.View())
}

func (i *Input) Value() string {
	return i.textinput.Value()
}

func (i *Input) SetValue(value string) {
	i.textinput.SetValue(value)
	i.textinput.CursorEnd()
}

// Commit records the current line in history and clears it.
func (i *Input) Commit() {
	if v := i.textinput.Value(); v != "" {
		if n := len(i.history); n == 0 || i.history[n-1] != v {
			i.history = append(i.history, v)
		}
		if len(i.history) > maxHistory {
			i.history = i.history[len(i.history)-maxHistory:]
		}
	}
	i.cursor = len(i.history)
	i.textinput.Reset()
}

func (i *Input) recall(step int) {
	next := i.cursor + step
	if next < 0 || next > len(i.history) {
		return
	}
	i.cursor = next
	if next == len(i.history) {
		i.textinput.Reset()
		return
	}
	i.SetValue(i.history[next])
}
