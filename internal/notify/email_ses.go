package notify

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES tag names and values allow only ASCII letters, digits, '_' and '-'.
var sesTagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// SESSender delivers handoff emails through Amazon SES v2.
type SESSender struct {
	client sesAPI
	from   From
	logger *logging.Logger
}

func NewSESSender(client sesAPI, from From, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SESSender{client: client, from: NewFrom(from.Address, from.Name), logger: logger}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return errors.New("notify: SES client not configured")
	}

	out, err := s.client.SendEmail(ctx, s.build(msg))
	if err != nil {
		return fmt.Errorf("notify: SES send: %w", err)
	}
	s.logger.Info("email sent via SES", "to", msg.To, "message_id", aws.ToString(out.MessageId))
	return nil
}

func (s *SESSender) build(msg EmailMessage) *sesv2.SendEmailInput {
	body := &types.Body{}
	if msg.Text != "" {
		body.Text = utf8Content(msg.Text)
	}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.String()),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
	}
	if msg.ReplyTo != "" {
		in.ReplyToAddresses = []string{msg.ReplyTo}
	}
	for _, k := range sortedKeys(msg.Tags) {
		in.EmailTags = append(in.EmailTags, types.MessageTag{
			Name:  aws.String(sesTagUnsafe.ReplaceAllString(k, "_")),
			Value: aws.String(sesTagUnsafe.ReplaceAllString(msg.Tags[k], "_")),
		})
	}
	return in
}

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

var _ EmailSender = (*SESSender)(nil)
