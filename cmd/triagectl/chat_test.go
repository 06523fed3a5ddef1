package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/legal-triage/internal/app/bootstrap"
	appconfig "github.com/wolfman30/legal-triage/internal/config"
	"github.com/wolfman30/legal-triage/internal/inference"
	"github.com/wolfman30/legal-triage/internal/session"
)

type downModel struct{}

func (downModel) Complete(context.Context, inference.Request) (inference.Response, error) {
	return inference.Response{}, errors.New("provider unavailable")
}

func TestChatPersistsTranscript(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, "I need an NDA reviewed\n/quit\n", "chat"))
	assert.Contains(t, h.stdout.String(), "Please reach out to ip@acme.corp")
	assert.Equal(t, 1, h.model.calls)

	data, err := os.ReadFile(filepath.Join(h.cfg.SessionDir, chatSessionKey+".json"))
	require.NoError(t, err)
	msgs, err := session.Decode(data)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, session.RoleUser, msgs[0].Role)
	assert.Equal(t, "I need an NDA reviewed", msgs[0].Content)
	assert.Equal(t, session.RoleAssistant, msgs[1].Role)

	// A second run restores and prints the saved conversation.
	require.NoError(t, h.run(t, "", "chat"))
	out := h.stdout.String()
	assert.True(t, strings.HasPrefix(out, "> I need an NDA reviewed\nPlease reach out to ip@acme.corp\n"), out)
}

func TestChatClearRemovesTranscript(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "hello\n/clear\n", "chat"))
	assert.Contains(t, h.stdout.String(), "conversation cleared")

	_, err := os.Stat(filepath.Join(h.cfg.SessionDir, chatSessionKey+".json"))
	assert.True(t, os.IsNotExist(err))
}

func TestChatSkipsBlankLines(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "\n   \n", "chat"))
	assert.Zero(t, h.model.calls)
}

func TestChatSessionDirFlag(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()

	require.NoError(t, h.run(t, "hello\n", "chat", "--session-dir", dir))
	_, err := os.Stat(filepath.Join(dir, chatSessionKey+".json"))
	assert.NoError(t, err)
}

func TestChatInferenceFailureKeepsGoing(t *testing.T) {
	h := newHarness(t)
	c := newCLI(strings.NewReader("first\nsecond\n"), &strings.Builder{}, &strings.Builder{})
	stderr := &strings.Builder{}
	c.errOut = stderr
	c.loadConfig = func() *appconfig.Config {
		cfg := *h.cfg
		return &cfg
	}
	c.appOpts = []bootstrap.Option{bootstrap.WithInferenceClient(downModel{})}

	root := newRootCmd(c)
	root.SetArgs([]string{"chat"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, 2, strings.Count(stderr.String(), "the assistant is unavailable"))

	// Failed turns keep the user messages.
	kv := session.NewFileKV(h.cfg.SessionDir)
	sess := session.Restore(context.Background(), kv, chatSessionKey, nil)
	require.Len(t, sess.Messages(), 2)
	assert.Equal(t, "second", sess.Messages()[1].Content)
}
