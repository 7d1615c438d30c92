package receiver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message holds the parts of a raw message that ingestion uses.
type Message struct {
	MessageID  string
	Subject    string
	From       string
	Date       time.Time
	InReplyTo  []string
	References []string
	Text       string
	HTML       string
}

// Body returns the plain text body, falling back to the HTML body.
func (m *Message) Body() string {
	if strings.TrimSpace(m.Text) != "" {
		return m.Text
	}
	return m.HTML
}

// ThreadIDs returns the Message-IDs this message replies to, most direct
// parent first.
func (m *Message) ThreadIDs() []string {
	ids := make([]string, 0, len(m.InReplyTo)+len(m.References))
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] && id != m.MessageID {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range m.InReplyTo {
		add(id)
	}
	for i := len(m.References) - 1; i >= 0; i-- {
		add(m.References[i])
	}
	return ids
}

var replyPrefix = regexp.MustCompile(`(?i)^\s*((re|fwd?|aw|wg)\s*(\[\d+\])?\s*:\s*)+`)

// Title returns the subject with reply and forward prefixes removed.
func (m *Message) Title() string {
	title := strings.TrimSpace(replyPrefix.ReplaceAllString(m.Subject, ""))
	if title == "" {
		return "(no subject)"
	}
	return title
}

var (
	errEmpty    = errors.New("empty message")
	errNoSender = errors.New("message has no sender")
)

// Parse reads an RFC 5322 message.
func Parse(raw []byte) (*Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errEmpty
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	msg := &Message{}
	msg.MessageID, _ = h.MessageID()
	msg.Subject, _ = h.Subject()
	msg.Date, _ = h.Date()
	msg.InReplyTo, _ = h.MsgIDList("In-Reply-To")
	msg.References, _ = h.MsgIDList("References")

	from, err := h.AddressList("From")
	if err != nil || len(from) == 0 {
		return nil, errNoSender
	}
	msg.From = from[0].Address

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("reading message part: %w", err)
		}
		if part == nil {
			break
		}

		ih, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := ih.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case (contentType == "" || strings.HasPrefix(contentType, "text/plain")) && msg.Text == "":
			msg.Text = string(body)
		case strings.HasPrefix(contentType, "text/html") && msg.HTML == "":
			msg.HTML = string(body)
		}
	}

	return msg, nil
}
