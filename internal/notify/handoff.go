package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/legal-triage/internal/session"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

// Handoff is a routed conversation being passed to its assignee.
type Handoff struct {
	Assignee   string
	SessionKey string
	Transcript []session.Message
	RoutedAt   time.Time
}

// HandoffNotifier emails the assignee a copy of the conversation that was
// routed to them.
type HandoffNotifier struct {
	email   EmailSender
	orgName string
	logger  *logging.Logger
}

func NewHandoffNotifier(email EmailSender, orgName string, logger *logging.Logger) *HandoffNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(orgName) == "" {
		orgName = "Acme Corp"
	}
	return &HandoffNotifier{email: email, orgName: orgName, logger: logger}
}

// NotifyHandoff sends the handoff email. Assignees that are not email
// addresses are skipped.
func (n *HandoffNotifier) NotifyHandoff(ctx context.Context, h Handoff) error {
	if n.email == nil {
		n.logger.Debug("notify: email sender not configured, skipping handoff")
		return nil
	}
	to := strings.TrimSpace(h.Assignee)
	if !strings.Contains(to, "@") {
		n.logger.Debug("notify: assignee is not an email address, skipping handoff", "assignee", to)
		return nil
	}

	msg := EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("[%s Legal Triage] New request routed to you", n.orgName),
		Text:    handoffBody(n.orgName, h),
		Tags:    map[string]string{"event": "handoff", "session": h.SessionKey},
	}
	if err := n.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: handoff to %s: %w", to, err)
	}
	return nil
}

func handoffBody(orgName string, h Handoff) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A legal request at %s was routed to you", orgName)
	if !h.RoutedAt.IsZero() {
		fmt.Fprintf(&sb, " on %s", h.RoutedAt.UTC().Format(time.RFC1123))
	}
	sb.WriteString(".\n\n")
	if h.SessionKey != "" {
		fmt.Fprintf(&sb, "Conversation: %s\n\n", h.SessionKey)
	}
	sb.WriteString("Transcript:\n")
	for _, msg := range h.Transcript {
		fmt.Fprintf(&sb, "[%s] %s\n", msg.Role, msg.Content)
	}
	return sb.String()
}
