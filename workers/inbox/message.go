package inbox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

type Attachment struct {
	Filename string
	Data     []byte
}

// Message is an inbound mail reduced to what order intake needs.
type Message struct {
	MessageID   string
	From        string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

func (m *Message) HasBody() bool {
	return strings.TrimSpace(m.Text) != "" || strings.TrimSpace(m.HTML) != ""
}

// ParseMessage reads an RFC 5322 message. Plain and HTML parts are
// concatenated per type; parts with a filename are attachments.
func ParseMessage(r io.Reader) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("read message: %w", err)
	}
	defer func() {
		_ = mr.Close()
	}()

	msg := &Message{
		MessageID: strings.TrimSpace(mr.Header.Get("Message-Id")),
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = mr.Header.Get("Subject")
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = strings.ToLower(strings.TrimSpace(from[0].Address))
	} else {
		msg.From = strings.ToLower(strings.TrimSpace(mr.Header.Get("From")))
	}

	var plain, html []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return msg, fmt.Errorf("read part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return msg, fmt.Errorf("read body: %w", err)
			}
			ct, _, _ := h.ContentType()
			switch strings.ToLower(ct) {
			case "text/html":
				html = append(html, string(body))
			case "text/plain", "":
				plain = append(plain, string(body))
			}
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			if name == "" {
				continue
			}
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return msg, fmt.Errorf("read attachment %s: %w", name, err)
			}
			if len(data) > 0 {
				msg.Attachments = append(msg.Attachments, Attachment{Filename: name, Data: data})
			}
		}
	}

	msg.Text = strings.Join(plain, "\n")
	msg.HTML = strings.Join(html, "\n")
	return msg, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func SafeFilename(name string) string {
	return unsafeName.ReplaceAllString(name, "_")
}

// SaveAttachments writes every attachment into dir and returns the saved
// file names. A later attachment with the same name overwrites the earlier.
func SaveAttachments(dir string, attachments []Attachment) ([]string, error) {
	saved := []string{}
	if len(attachments) == 0 {
		return saved, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return saved, err
	}
	for _, a := range attachments {
		name := SafeFilename(a.Filename)
		if err := os.WriteFile(filepath.Join(dir, name), a.Data, 0o644); err != nil {
			return saved, fmt.Errorf("save attachment %s: %w", name, err)
		}
		saved = append(saved, name)
	}
	return saved, nil
}
