//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/workbench/internal/artifact"
	"github.com/sells-group/workbench/internal/config"
	"github.com/sells-group/workbench/internal/gateway"
	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/internal/workbench"
)

type fakeGateway struct {
	calls []gateway.Invocation
	res   gateway.Result
}

func (g *fakeGateway) Invoke(_ context.Context, inv gateway.Invocation) (gateway.Result, error) {
	g.calls = append(g.calls, inv)
	return g.res, nil
}

const serveDraft = `generatedAt: "2024-03-01T10:00:00Z"
patches:
  - objectType: Account
    fieldName: Name
    before: Acme
    after: Acme Corp
    confidence: high
  - objectType: Contact
    fieldName: Title
    after: CRO
    confidence: low
`

func writeAccountFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestRouter(t *testing.T, gw *fakeGateway) (http.Handler, string) {
	t.Helper()
	root := t.TempDir()
	c := &config.Config{}
	c.Workspace.AccountsRoot = root
	c.Backfill.ObjectType = "Opportunity"
	catalog := gateway.NewCatalog(config.AgentsConfig{Command: "npx", Args: []string{"tsx"}})
	svc := workbench.New(c, artifact.NewStore(root), gw, catalog, nil)
	return buildRouter(svc, 200), root
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServe_Health(t *testing.T) {
	h, _ := newTestRouter(t, &fakeGateway{})
	rec := doRequest(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestServe_ListAccounts(t *testing.T) {
	h, root := newTestRouter(t, &fakeGateway{})
	writeAccountFile(t, root, "acme-corp/raw/salesforce.json", `{}`)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "globex"), 0o755))

	rec := doRequest(t, h, http.MethodGet, "/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Accounts []accountView `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Accounts, 2)
	assert.Equal(t, "acme-corp", body.Accounts[0].Slug)
	assert.Equal(t, "Acme Corp", body.Accounts[0].Name)
	assert.Equal(t, "globex", body.Accounts[1].Slug)
}

func TestServe_Draft(t *testing.T) {
	h, root := newTestRouter(t, &fakeGateway{})
	writeAccountFile(t, root, "acme-corp/drafts/crm-draft-20240301T100000Z.yaml", serveDraft)

	rec := doRequest(t, h, http.MethodGet, "/accounts/acme-corp/draft", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view reviewView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "acme-corp", view.Account)
	assert.Equal(t, 2, view.Tally.Total)
	assert.Equal(t, 1, view.Tally.Approved)
	require.Len(t, view.Groups, 2)
	assert.Equal(t, "Account", view.Groups[0].ObjectType)
	assert.Equal(t, "Account.Name#0", view.Groups[0].Patches[0].Key)
	assert.True(t, view.Groups[0].Patches[0].Approved)
	assert.False(t, view.Groups[1].Patches[0].Approved)
}

func TestServe_DraftMissing(t *testing.T) {
	h, root := newTestRouter(t, &fakeGateway{})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "acme-corp"), 0o755))

	rec := doRequest(t, h, http.MethodGet, "/accounts/acme-corp/draft", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServe_ReviewAndConfirm(t *testing.T) {
	gw := &fakeGateway{res: gateway.Result{Success: true}}
	h, root := newTestRouter(t, gw)
	writeAccountFile(t, root, "acme-corp/drafts/crm-draft-20240301T100000Z.yaml", serveDraft)

	rec := doRequest(t, h, http.MethodGet, "/accounts/acme-corp/review", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/decisions", map[string]any{
		"decisions": map[string]bool{"Contact.Title": true},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var view reviewView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 2, view.Tally.Approved)

	rec = doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "applied", body["state"])
	assert.EqualValues(t, 2, body["patches"])

	require.Len(t, gw.calls, 1)
	var req model.ApplyRequest
	require.NoError(t, json.Unmarshal(gw.calls[0].Stdin, &req))
	assert.Len(t, req.Patches, 2)

	rec = doRequest(t, h, http.MethodGet, "/accounts/acme-corp/review", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = reviewView{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "applied", string(view.State))
	require.NotNil(t, view.Request)
	assert.Len(t, view.Request.Patches, 2)

	rec = doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/confirm", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, gw.calls, 1)

	rec = doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/decisions", map[string]any{"reset": true})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServe_DecisionsReset(t *testing.T) {
	h, root := newTestRouter(t, &fakeGateway{})
	writeAccountFile(t, root, "acme-corp/drafts/crm-draft-20240301T100000Z.yaml", serveDraft)

	rec := doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/decisions", map[string]any{"all": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/decisions", map[string]any{"reset": true})
	require.Equal(t, http.StatusOK, rec.Code)
	var view reviewView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 1, view.Tally.Approved)
	assert.Nil(t, view.Request)
}

func TestServe_Calls(t *testing.T) {
	h, root := newTestRouter(t, &fakeGateway{})
	writeAccountFile(t, root, "acme-corp/raw/gong_calls.json", `{"calls":[{"id":"c-1","title":"Discovery"}]}`)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "globex"), 0o755))

	rec := doRequest(t, h, http.MethodGet, "/accounts/acme-corp/calls", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	calls, ok := decodeBody(t, rec)["calls"].([]any)
	require.True(t, ok)
	require.Len(t, calls, 1)

	rec = doRequest(t, h, http.MethodGet, "/accounts/globex/calls", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["calls"])
}

func TestServe_ConfirmFailureKeepsStderr(t *testing.T) {
	gw := &fakeGateway{res: gateway.Result{ExitCode: 1, Stderr: "INVALID_FIELD: Title"}}
	h, root := newTestRouter(t, gw)
	writeAccountFile(t, root, "acme-corp/drafts/crm-draft-20240301T100000Z.yaml", serveDraft)

	rec := doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "failed", body["state"])
	assert.Equal(t, "INVALID_FIELD: Title", body["lastError"])

	rec = doRequest(t, h, http.MethodGet, "/accounts/acme-corp/review", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view reviewView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "INVALID_FIELD: Title", view.LastError)
}

func TestServe_ConfirmEmptySelection(t *testing.T) {
	gw := &fakeGateway{}
	h, root := newTestRouter(t, gw)
	writeAccountFile(t, root, "acme-corp/drafts/crm-draft-20240301T100000Z.yaml", serveDraft)

	rec := doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/decisions", map[string]any{"all": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/confirm", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, gw.calls)
}

func TestServe_ConfirmValidationFailure(t *testing.T) {
	gw := &fakeGateway{}
	h, root := newTestRouter(t, gw)
	writeAccountFile(t, root, "acme-corp/drafts/crm-draft-20240301T100000Z.yaml", `patches:
  - objectType: Account
    after: Acme Corp
    confidence: high
`)

	rec := doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/confirm", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	problems, ok := decodeBody(t, rec)["problems"].([]any)
	require.True(t, ok)
	assert.Len(t, problems, 1)
	assert.Empty(t, gw.calls)
}

func TestServe_DecisionsUnknownKey(t *testing.T) {
	h, root := newTestRouter(t, &fakeGateway{})
	writeAccountFile(t, root, "acme-corp/drafts/crm-draft-20240301T100000Z.yaml", serveDraft)

	rec := doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/decisions", map[string]any{
		"decisions": map[string]bool{"Opportunity.Amount": true},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/decisions", map[string]any{
		"decisions": map[string]bool{"nodot": true},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_DecisionsRejectedAsAWhole(t *testing.T) {
	h, root := newTestRouter(t, &fakeGateway{})
	writeAccountFile(t, root, "acme-corp/drafts/crm-draft-20240301T100000Z.yaml", serveDraft)

	rec := doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/decisions", map[string]any{
		"decisions": map[string]bool{"Contact.Title": true},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	for _, bad := range []string{"Opportunity.Amount", "nodot"} {
		rec = doRequest(t, h, http.MethodPost, "/accounts/acme-corp/review/decisions", map[string]any{
			"reset":     true,
			"all":       false,
			"decisions": map[string]bool{"Account.Name": false, "Contact.Title": false, bad: true},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}

	rec = doRequest(t, h, http.MethodGet, "/accounts/acme-corp/review", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view reviewView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 2, view.Tally.Approved)
}

func TestServe_Artifacts(t *testing.T) {
	h, root := newTestRouter(t, &fakeGateway{})
	writeAccountFile(t, root, "acme-corp/handoffs/handoff-20240301T100000Z.md", "# Handoff\n")

	rec := doRequest(t, h, http.MethodGet, "/accounts/acme-corp/artifacts/unknown", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/accounts/acme-corp/artifacts/brief", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/accounts/acme-corp/artifacts/handoff", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "handoff", decodeBody(t, rec)["category"])

	rec = doRequest(t, h, http.MethodGet, "/accounts/acme-corp/artifacts/postcall-summary?all=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["artifacts"])
}

func TestServe_RunAgent(t *testing.T) {
	gw := &fakeGateway{res: gateway.Result{Success: true, Stdout: "done"}}
	h, root := newTestRouter(t, gw)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "acme-corp"), 0o755))

	rec := doRequest(t, h, http.MethodPost, "/accounts/acme-corp/agents/postcall", map[string]string{"callId": "c-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "done", body["stdout"])

	require.Len(t, gw.calls, 1)
	assert.Equal(t, []string{"tsx", "scripts/test-postcall.ts", "Acme Corp", "c-1"}, gw.calls[0].Args)

	rec = doRequest(t, h, http.MethodPost, "/accounts/acme-corp/agents/nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_AppliedMissing(t *testing.T) {
	h, root := newTestRouter(t, &fakeGateway{})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "acme-corp"), 0o755))

	rec := doRequest(t, h, http.MethodGet, "/accounts/acme-corp/applied", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
