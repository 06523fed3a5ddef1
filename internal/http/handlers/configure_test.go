package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/legal-triage/internal/rules"
)

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := do(t, f.router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestGetRulesEmpty(t *testing.T) {
	f := newFixture(t, nil)
	rec := do(t, f.router, http.MethodGet, "/api/configure", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rules":[]}`, rec.Body.String())
}

func TestReplaceRulesRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	body := `[
		{"conditions":{"type":"NDA"},"assignee":"ip@acme.corp"},
		{"conditions":{"type":"Employment","location":"Australia"},"assignee":"au-hr@acme.corp"}
	]`

	rec := do(t, f.router, http.MethodPost, "/api/configure", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"rules":`+body+`}`, rec.Body.String())

	rec = do(t, f.router, http.MethodGet, "/api/configure", "")
	assert.JSONEq(t, `{"rules":`+body+`}`, rec.Body.String())
	assert.Equal(t, ndaRules(), f.store.Load(context.Background()))
}

func TestReplaceRulesMissingAssigneeRejected(t *testing.T) {
	f := newFixture(t, rules.NewMemoryBackend(ndaRules()))

	rec := do(t, f.router, http.MethodPost, "/api/configure", `[
		{"conditions":{"type":"NDA"},"assignee":"ip@acme.corp"},
		{"conditions":{"type":"Lease"}}
	]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp validationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Problems, 1)
	assert.Equal(t, 1, resp.Problems[0].Index)
	assert.Equal(t, "assignee is required", resp.Problems[0].Reason)

	assert.Equal(t, ndaRules(), f.store.Load(context.Background()))
}

func TestReplaceRulesBadBodies(t *testing.T) {
	f := newFixture(t, rules.NewMemoryBackend(ndaRules()))
	for _, body := range []string{"", "{", `{"rules":[]}`, `[] []`} {
		rec := do(t, f.router, http.MethodPost, "/api/configure", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
	assert.Equal(t, ndaRules(), f.store.Load(context.Background()))
}

func TestReplaceRulesTooLarge(t *testing.T) {
	f := newFixture(t, nil)
	body := `[{"conditions":{"type":"` + strings.Repeat("x", 64) + `"},"assignee":"a@b.c"}]`
	req := httptest.NewRequest(http.MethodPost, "/api/configure", strings.NewReader(body))
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 16)

	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestReplaceRulesPersistenceFailure(t *testing.T) {
	f := newFixture(t, brokenBackend{rules.NewMemoryBackend(ndaRules())})
	rec := do(t, f.router, http.MethodPost, "/api/configure", `[{"conditions":{},"assignee":"desk@acme.corp"}]`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to save rules"}`, rec.Body.String())
	assert.Equal(t, ndaRules(), f.store.Load(context.Background()))
}

func TestReplaceRulesDeleteByOmission(t *testing.T) {
	f := newFixture(t, rules.NewMemoryBackend(ndaRules()))
	rec := do(t, f.router, http.MethodPost, "/api/configure", `[{"conditions":{"type":"NDA"},"assignee":"ip@acme.corp"}]`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.store.Load(context.Background()), 1)

	rec = do(t, f.router, http.MethodPost, "/api/configure", `[]`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rules":[]}`, rec.Body.String())
	assert.Empty(t, f.store.Load(context.Background()))
}

func TestMatch(t *testing.T) {
	f := newFixture(t, rules.NewMemoryBackend(ndaRules()))

	tests := []struct {
		name   string
		body   string
		status rules.MatchStatus
		reply  string
	}{
		{"routed", `{"slots":{"type":"nda"}}`, rules.MatchFound, "For this request, please email: ip@acme.corp"},
		{"needs location", `{"slots":{"type":"Employment"}}`, rules.MatchNeedsInfo, ""},
		{"fallback", `{"slots":{"type":"Tax"}}`, rules.MatchNone, "I cannot find a matching rule for this request. Please contact legal@acme.corp."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, f.router, http.MethodPost, "/api/match", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			var resp struct {
				Status rules.MatchStatus `json:"status"`
				Reply  string            `json:"reply"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.reply, resp.Reply)
		})
	}
}
