package inbox

import (
	"context"
	"fmt"
	"io"
	"net"
	"packchicken-service/config"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// RawMessage is one fetched mail. Seq is the mailbox sequence number.
type RawMessage struct {
	Seq  uint32
	Body []byte
}

// Mailbox yields unseen mails. Fetching marks them seen on the server.
type Mailbox interface {
	Unseen(ctx context.Context, limit int) ([]RawMessage, error)
	Close() error
}

type imapMailbox struct {
	c *client.Client
}

// DialIMAP logs in over TLS and selects the configured folder.
func DialIMAP(_ context.Context, cfg *config.EmailConfig) (Mailbox, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c.Timeout = 30 * time.Second

	if err := c.Login(cfg.User, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(cfg.Folder, false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("select %s: %w", cfg.Folder, err)
	}
	return &imapMailbox{c: c}, nil
}

// Unseen returns the newest limit unseen mails, oldest first.
func (m *imapMailbox) Unseen(ctx context.Context, limit int) ([]RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	seqNums, err := m.c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}
	sort.Slice(seqNums, func(i, j int) bool { return seqNums[i] < seqNums[j] })
	if limit > 0 && len(seqNums) > limit {
		seqNums = seqNums[len(seqNums)-limit:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)
	section := &imap.BodySectionName{}

	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- m.c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var out []RawMessage
	for msg := range messages {
		literal := msg.GetBody(section)
		if literal == nil {
			continue
		}
		body, err := io.ReadAll(literal)
		if err != nil {
			continue
		}
		out = append(out, RawMessage{Seq: msg.SeqNum, Body: body})
	}
	if err := <-done; err != nil {
		return out, fmt.Errorf("fetch: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *imapMailbox) Close() error {
	return m.c.Logout()
}
