package transport

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentvault/internal/admin"
	"agentvault/internal/audit"
	"agentvault/internal/crypto"
	"agentvault/internal/platform/clock"
	"agentvault/internal/platform/logger"
	"agentvault/internal/ratelimit"
	"agentvault/internal/resolve"
	"agentvault/internal/storage"
)

const testAdminSecret = "router-test-secret"

type fixture struct {
	router  http.Handler
	clock   *clock.Fake
	session string
}

func newFixture(t *testing.T, opts ...resolve.Option) *fixture {
	t.Helper()

	raw := make([]byte, crypto.MasterKeySize)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	master, err := crypto.ParseMasterKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)

	return newFixtureWithKey(t, master, opts...)
}

func newFixtureWithKey(t *testing.T, master crypto.MasterKey, opts ...resolve.Option) *fixture {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	items := storage.NewInMemoryItemStore()
	tokens := storage.NewInMemoryTokenStore()
	ledger := storage.NewInMemoryAuditStore()
	engine := crypto.NewEngine(master)
	limiter := ratelimit.New(ratelimit.NewMemoryStore(clk), time.Minute, clk)
	auditSvc := audit.NewService(ledger, clk, nil)
	log := logger.New()

	resolver := resolve.New(items, tokens, auditSvc, engine, limiter, clk, opts...)
	adminSvc := admin.NewService(items, tokens, auditSvc, engine, clk, log)

	session, err := NewAdminSession(testAdminSecret, "admin@local", time.Hour)
	require.NoError(t, err)

	return &fixture{
		router:  NewRouter(NewHandler(resolver, adminSvc, log), testAdminSecret, prometheus.NewRegistry()),
		clock:   clk,
		session: session,
	}
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

// createItem drives the admin API and returns the item's ID.
func (f *fixture) createItem(t *testing.T, agent string, body map[string]any) string {
	t.Helper()
	rec, resp := f.do(t, http.MethodPost, "/vault/agents/"+agent+"/items", f.session, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := resp["item"].(map[string]any)
	return item["id"].(string)
}

// issueToken drives the admin API and returns the plaintext bearer token.
func (f *fixture) issueToken(t *testing.T, agent string) string {
	t.Helper()
	rec, resp := f.do(t, http.MethodPost, "/vault/agents/"+agent+"/tokens", f.session, map[string]any{"label": "test"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return resp["token"].(string)
}

func TestAgentCredentialLifecycle(t *testing.T) {
	f := newFixture(t)

	itemID := f.createItem(t, "main", map[string]any{
		"handle":       "github_pat",
		"type":         "api_key",
		"service":      "GitHub",
		"secret":       "ghp_123",
		"exposureMode": "inject_only",
	})
	bearer := f.issueToken(t, "main")

	// The agent resolves the credential by handle.
	rec, resp := f.do(t, http.MethodPost, "/vault/resolve-batch", bearer, map[string]any{
		"requests":   []map[string]any{{"key": "k", "handle": "github_pat"}},
		"sessionKey": "sess-1",
		"toolName":   "http_request",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, map[string]any{"k": "ghp_123"}, resp["values"])

	// The ledger recorded exactly one agent-side decision for the item.
	rec, resp = f.do(t, http.MethodGet, "/vault/audit?vaultItemId="+itemID+"&agentId=main", f.session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := resp["items"].([]any)
	var resolves []map[string]any
	for _, e := range entries {
		entry := e.(map[string]any)
		if entry["action"] == "resolve" {
			resolves = append(resolves, entry)
		}
	}
	require.Len(t, resolves, 1)
	assert.Equal(t, "ok", resolves[0]["status"])
	assert.Equal(t, "agent", resolves[0]["actorType"])
	assert.Equal(t, "sess-1", resolves[0]["sessionKey"])

	// Inject-only blocks the human reveal path.
	rec, resp = f.do(t, http.MethodPost, "/vault/items/"+itemID+"/reveal", f.session, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, resp["error"], "inject-only")
}

func TestResolveStatusContract(t *testing.T) {
	f := newFixture(t)
	itemID := f.createItem(t, "main", map[string]any{
		"handle": "db_pass", "type": "secret", "secret": "hunter2",
	})
	bearer := f.issueToken(t, "main")

	t.Run("missing token is 401", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPost, "/vault/resolve", "", map[string]any{"handle": "db_pass"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token is 401", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPost, "/vault/resolve", "avt_nope.bad", map[string]any{"handle": "db_pass"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown handle is 404", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPost, "/vault/resolve", bearer, map[string]any{"handle": "missing"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid body is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/vault/resolve", strings.NewReader("{not json"))
		req.Header.Set("Authorization", "Bearer "+bearer)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("disabled item is 403", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPatch, "/vault/items/"+itemID, f.session, map[string]any{"disabled": true})
		require.Equal(t, http.StatusOK, rec.Code)

		rec, _ = f.do(t, http.MethodPost, "/vault/resolve", bearer, map[string]any{"handle": "db_pass"})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec, _ = f.do(t, http.MethodPatch, "/vault/items/"+itemID, f.session, map[string]any{"disabled": false})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("resolve succeeds again", func(t *testing.T) {
		rec, resp := f.do(t, http.MethodPost, "/vault/resolve", bearer, map[string]any{"handle": "db_pass"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hunter2", resp["value"])
	})
}

func TestResolveRateLimitHeaders(t *testing.T) {
	f := newFixture(t, resolve.WithLimits(1, 600))
	f.createItem(t, "main", map[string]any{"handle": "gh", "type": "api_key", "secret": "x"})
	bearer := f.issueToken(t, "main")

	rec, _ := f.do(t, http.MethodPost, "/vault/resolve", bearer, map[string]any{"handle": "gh"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := f.do(t, http.MethodPost, "/vault/resolve", bearer, map[string]any{"handle": "gh"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, false, resp["ok"])
	retryAfter := rec.Header().Get("Retry-After")
	require.NotEmpty(t, retryAfter)
	assert.NotEqual(t, "0", retryAfter)

	// The next window admits the caller again.
	f.clock.Advance(61 * time.Second)
	rec, _ = f.do(t, http.MethodPost, "/vault/resolve", bearer, map[string]any{"handle": "gh"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminSessionRequired(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/vault/agents/main/items", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Signed with the wrong secret.
	forged, err := NewAdminSession("other-secret", "intruder", time.Hour)
	require.NoError(t, err)
	rec, _ = f.do(t, http.MethodGet, "/vault/agents/main/items", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// An expired session is rejected.
	expired, err := NewAdminSession(testAdminSecret, "admin@local", -time.Minute)
	require.NoError(t, err)
	rec, _ = f.do(t, http.MethodGet, "/vault/agents/main/items", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// An agent bearer token is not an admin session.
	bearer := f.issueToken(t, "main")
	rec, _ = f.do(t, http.MethodGet, "/vault/agents/main/items", bearer, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminStatusContract(t *testing.T) {
	f := newFixture(t)

	itemBody := map[string]any{"handle": "gh", "type": "api_key", "secret": "x"}
	f.createItem(t, "main", itemBody)

	t.Run("duplicate handle is 409", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPost, "/vault/agents/main/items", f.session, itemBody)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid type is 400", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPost, "/vault/agents/main/items", f.session,
			map[string]any{"handle": "ok", "type": "nope", "secret": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing item is 404", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPatch, "/vault/items/does-not-exist", f.session, map[string]any{"notes": "n"})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec, _ = f.do(t, http.MethodDelete, "/vault/items/does-not-exist", f.session, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUnconfiguredVaultStatusContract(t *testing.T) {
	f := newFixtureWithKey(t, crypto.MasterKey{})

	// Agent surface: gateway error.
	rec, resp := f.do(t, http.MethodPost, "/vault/resolve", "avt_dead.beef", map[string]any{"handle": "gh"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, resp["error"], "setup required")

	// Admin surface: conflict that steers the operator to setup.
	rec, _ = f.do(t, http.MethodPost, "/vault/agents/main/items", f.session,
		map[string]any{"handle": "gh", "type": "api_key", "secret": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRevealRevealableItem(t *testing.T) {
	f := newFixture(t)
	itemID := f.createItem(t, "main", map[string]any{
		"handle": "db", "type": "username_password", "username": "svc", "secret": "hunter2",
		"exposureMode": "revealable",
	})

	rec, resp := f.do(t, http.MethodPost, "/vault/items/"+itemID+"/reveal", f.session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hunter2", resp["value"])
	assert.Equal(t, "svc", resp["username"])
}

func TestResponsesNeverLeakStoredSecrets(t *testing.T) {
	f := newFixture(t)
	f.createItem(t, "main", map[string]any{"handle": "gh", "type": "api_key", "secret": "super-secret"})
	f.issueToken(t, "main")

	for _, path := range []string{"/vault/agents/main/items", "/vault/agents/main/tokens"} {
		rec, _ := f.do(t, http.MethodGet, path, f.session, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.NotContains(t, body, "super-secret")
		assert.NotContains(t, body, "iphertext")
		assert.NotContains(t, body, "okenHash")
		assert.NotContains(t, body, "scrypt$")
	}
}

func TestRotateViaAPI(t *testing.T) {
	f := newFixture(t)
	itemID := f.createItem(t, "main", map[string]any{
		"handle": "gh", "type": "api_key", "secret": "old", "exposureMode": "revealable",
	})

	rec, _ := f.do(t, http.MethodPost, "/vault/items/"+itemID+"/rotate", f.session, map[string]any{"secret": "new"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := f.do(t, http.MethodPost, "/vault/items/"+itemID+"/reveal", f.session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new", resp["value"])
}

func TestAuditPagination(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.createItem(t, "main", map[string]any{
			"handle": fmt.Sprintf("h%d", i), "type": "api_key", "secret": "x",
		})
	}

	rec, resp := f.do(t, http.MethodGet, "/vault/audit?page=2&perPage=2", f.session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), resp["page"])
	assert.Equal(t, float64(2), resp["perPage"])
	assert.Equal(t, float64(5), resp["totalItems"])
	assert.Len(t, resp["items"].([]any), 2)
}

func TestOperationalEndpoints(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRec := httptest.NewRecorder()
	f.router.ServeHTTP(metricsRec, req)
	assert.Equal(t, http.StatusOK, metricsRec.Code)
}
