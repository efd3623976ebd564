package mailpin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"time"

	"euserv-renewer/internal/components/assert"
	"euserv-renewer/internal/components/telemetry"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

const (
	report_retriever_fetch = "retriever.fetch"
)

// ErrNotFound means no message from the portal with a PIN was found. The mail
// may simply not have arrived yet, retrying is up to the caller.
var ErrNotFound = errors.New("mailpin: no pin message found")

// Mailbox identifies the inbox the portal sends PIN mails to.
type Mailbox struct {
	Server   string
	Address  string
	Password string
}

// mailClient is the part of *client.Client the retriever uses.
type mailClient interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Logout() error
}

type dialFunc func(addr string) (mailClient, error)

func dialTLS(addr string) (mailClient, error) {
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, err
	}
	c.Timeout = time.Second * 30
	return c, nil
}

// Retriever reads the newest PIN mail from a mailbox over IMAP. It holds no
// connection between calls and is safe for concurrent use.
type Retriever struct {
	sender string
	dial   dialFunc
	tel    telemetry.API
}

func NewRetriever(sender string, tel telemetry.API) Retriever {
	assert.NotEmptyStr(sender)
	assert.NotNil(tel)

	return Retriever{
		sender: sender,
		dial:   dialTLS,
		tel:    telemetry.NewScopedAPI("mailpin", tel),
	}
}

func withDefaultPort(server string) string {
	_, _, err := net.SplitHostPort(server)
	if err == nil {
		return server
	}
	return net.JoinHostPort(server, "993")
}

// Fetch returns the PIN from the most recent message sent by the portal whose
// body contains "PIN". It makes a single attempt.
func (r Retriever) Fetch(ctx context.Context, mailbox Mailbox) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c, err := r.dial(withDefaultPort(mailbox.Server))
	if err != nil {
		r.tel.ReportBroken(report_retriever_fetch, fmt.Errorf("dial: %w", err), mailbox.Server)
		return "", fmt.Errorf("dial %s: %w", mailbox.Server, err)
	}
	defer c.Logout()

	err = c.Login(mailbox.Address, mailbox.Password)
	if err != nil {
		r.tel.ReportBroken(report_retriever_fetch, fmt.Errorf("login: %w", err), mailbox.Address)
		return "", fmt.Errorf("login %s: %w", mailbox.Address, err)
	}

	_, err = c.Select("INBOX", true)
	if err != nil {
		r.tel.ReportBroken(report_retriever_fetch, fmt.Errorf("select inbox: %w", err))
		return "", fmt.Errorf("select inbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("From", r.sender)
	criteria.Body = []string{"PIN"}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		r.tel.ReportBroken(report_retriever_fetch, fmt.Errorf("search: %w", err))
		return "", fmt.Errorf("search: %w", err)
	}
	if len(uids) == 0 {
		r.tel.ReportWarning(report_retriever_fetch, "no message from sender", r.sender)
		return "", ErrNotFound
	}

	raw, err := r.fetchBody(c, slices.Max(uids))
	if err != nil {
		r.tel.ReportBroken(report_retriever_fetch, fmt.Errorf("fetch: %w", err))
		return "", fmt.Errorf("fetch: %w", err)
	}

	pin, ok := ExtractPin(MessageText(raw))
	if !ok {
		r.tel.ReportWarning(report_retriever_fetch, "newest message has no pin")
		return "", ErrNotFound
	}

	r.tel.ReportDebug("found pin", mailbox.Address)
	return pin, nil
}

func (r Retriever) fetchBody(c mailClient, uid uint32) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		// only one section was requested
		for _, literal := range msg.Body {
			if literal == nil {
				continue
			}
			raw, readErr = io.ReadAll(literal)
			break
		}
	}

	if err := <-done; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	if raw == nil {
		return nil, fmt.Errorf("message %d has no body", uid)
	}
	return raw, nil
}
