package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/legal-triage/internal/session"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

type errSender struct{}

func (errSender) Send(context.Context, EmailMessage) error { return errors.New("smtp down") }

func TestHandoffNotifierSendsTranscript(t *testing.T) {
	stub := NewStubEmailSender(logging.New("error"))
	n := NewHandoffNotifier(stub, "Acme Corp", logging.New("error"))

	err := n.NotifyHandoff(context.Background(), Handoff{
		Assignee:   " ip@acme.corp ",
		SessionKey: "triage:session:abc",
		Transcript: []session.Message{
			{ID: "1", Role: session.RoleUser, Content: "I need an NDA reviewed"},
			{ID: "2", Role: session.RoleAssistant, Content: "For this request, please email: ip@acme.corp"},
		},
		RoutedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	sent := stub.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ip@acme.corp", sent[0].To)
	assert.Contains(t, sent[0].Subject, "Acme Corp")
	assert.Contains(t, sent[0].Text, "[user] I need an NDA reviewed")
	assert.Contains(t, sent[0].Text, "triage:session:abc")
	assert.Equal(t, map[string]string{"event": "handoff", "session": "triage:session:abc"}, sent[0].Tags)
}

func TestHandoffNotifierSkipsNonEmailAssignee(t *testing.T) {
	stub := NewStubEmailSender(logging.New("error"))
	n := NewHandoffNotifier(stub, "", logging.New("error"))

	require.NoError(t, n.NotifyHandoff(context.Background(), Handoff{Assignee: "Legal Ops Team"}))
	assert.Empty(t, stub.Sent())
}

func TestHandoffNotifierWithoutSender(t *testing.T) {
	n := NewHandoffNotifier(nil, "", nil)
	assert.NoError(t, n.NotifyHandoff(context.Background(), Handoff{Assignee: "ip@acme.corp"}))
}

func TestHandoffNotifierWrapsSendError(t *testing.T) {
	n := NewHandoffNotifier(errSender{}, "", logging.New("error"))
	err := n.NotifyHandoff(context.Background(), Handoff{Assignee: "ip@acme.corp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
}
