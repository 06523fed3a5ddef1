package notify

import (
	"context"
	"net/mail"
	"strings"
	"sync"

	"github.com/wolfman30/legal-triage/pkg/logging"
)

const defaultFromName = "Legal Triage"

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a single outbound email. Tags are provider metadata
// (SendGrid custom args, SES message tags) used to trace a message back to
// the triage event that caused it.
type EmailMessage struct {
	To      string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
	Tags    map[string]string
}

// From is the sender identity shared by every provider.
type From struct {
	Address string
	Name    string
}

// NewFrom trims address and name and applies the default display name.
func NewFrom(address, name string) From {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultFromName
	}
	return From{Address: strings.TrimSpace(address), Name: name}
}

// String renders an RFC 5322 address, quoting the name when needed.
func (f From) String() string {
	return (&mail.Address{Name: f.Name, Address: f.Address}).String()
}

// StubEmailSender records messages instead of sending them.
type StubEmailSender struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []EmailMessage
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Sent returns the messages recorded so far.
func (s *StubEmailSender) Sent() []EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EmailMessage, len(s.sent))
	copy(out, s.sent)
	return out
}
