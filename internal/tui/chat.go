package tui

import (
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const botAuthor = "bot"

// Message is one chat line as shown in the console.
type Message struct {
	Author  string
	Content string
	FromBot bool
	At      time.Time
}

// Chat renders the conversation the way a WhatsApp thread reads: replies
// on the left, the user's lines indented on the right.
type Chat struct {
	viewport viewport.Model
	user     string
	messages []Message
	width    int
	now      func() time.Time
}

func NewChat(user string) *Chat {
	vp := viewport.New(0, 0)
	vp.KeyMap = scrollKeys()
	vp.SetContent(MutedStyle.Render(`Digite "ajuda" para ver os comandos.`))
	return &Chat{viewport: vp, user: user, now: time.Now}
}

func (c *Chat) Init() tea.Cmd {
	return nil
}

func (c *Chat) Update(msg tea.Msg) (*Chat, tea.Cmd) {
	var cmd tea.Cmd
	c.viewport, cmd = c.viewport.Update(msg)
	return c, cmd
}

func (c *Chat) View(width, height int) string {
	inner := width - 2
	if inner != c.width {
		c.width = inner
		if len(c.messages) > 0 {
			c.render()
		}
	}
	c.viewport.Width = inner
	c.viewport.Height = height - 2
	return ChatPanelStyle.Width(width).Height(height).Render(c.viewport.View())
}

// AddMessage appends a line. The author "bot" renders as a reply.
func (c *Chat) AddMessage(author, content string) {
	c.messages = append(c.messages, Message{
		Author:  author,
		Content: content,
		FromBot: author == botAuthor,
		At:      c.now(),
	})
	c.render()
	c.viewport.GotoBottom()
}

func (c *Chat) Messages() []Message {
	return c.messages
}

func (c *Chat) render() {
	bubble := lipgloss.NewStyle()
	if c.width > 8 {
		bubble = bubble.Width(c.width * 3 / 4)
	}

	blocks := make([]string, 0, len(c.messages))
	for _, m := range c.messages {
		header := MutedStyle.Render(m.Author + " · " + m.At.Format("15:04"))
		body := AssistantMessageStyle.Inherit(bubble).Render(whatsappBold(m.Content))
		block := lipgloss.JoinVertical(lipgloss.Left, header, body)
		if !m.FromBot {
			body = UserMessageStyle.Inherit(bubble).Render(m.Content)
			block = lipgloss.JoinVertical(lipgloss.Right, header, body)
			if c.width > 0 {
				block = lipgloss.PlaceHorizontal(c.width, lipgloss.Right, block)
			}
		}
		blocks = append(blocks, block)
	}
	c.viewport.SetContent(strings.Join(blocks, "\n\n"))
}

var boldMarker = regexp.MustCompile(`\*([^*\n]+)\*`)

// whatsappBold renders *text* spans in bold, the way WhatsApp shows them.
func whatsappBold(s string) string {
	return boldMarker.ReplaceAllStringFunc(s, func(m string) string {
		return BoldStyle.Render(m[1 : len(m)-1])
	})
}
