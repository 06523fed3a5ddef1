package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridSender delivers handoff emails through the SendGrid v3 API.
type SendGridSender struct {
	client sendgridAPI
	from   From
	logger *logging.Logger
}

// NewSendGridSender returns nil when apiKey is empty so callers can treat
// SendGrid as unconfigured.
func NewSendGridSender(apiKey string, from From, logger *logging.Logger) *SendGridSender {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(apiKey), from, logger)
}

func newSendGridSender(client sendgridAPI, from From, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{client: client, from: NewFrom(from.Address, from.Name), logger: logger}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return errors.New("notify: sendgrid client not configured")
	}

	resp, err := s.client.SendWithContext(ctx, s.build(msg))
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected email", "status", resp.StatusCode, "body", resp.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", "to", msg.To, "status", resp.StatusCode)
	return nil
}

func (s *SendGridSender) build(msg EmailMessage) *sgmail.SGMailV3 {
	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(s.from.Name, s.from.Address))
	m.Subject = msg.Subject
	if msg.ReplyTo != "" {
		m.SetReplyTo(sgmail.NewEmail("", msg.ReplyTo))
	}

	p := sgmail.NewPersonalization()
	p.AddTos(sgmail.NewEmail("", msg.To))
	for _, k := range sortedKeys(msg.Tags) {
		p.SetCustomArg(k, msg.Tags[k])
	}
	m.AddPersonalizations(p)

	// SendGrid requires text/plain before text/html.
	if msg.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ EmailSender = (*SendGridSender)(nil)
