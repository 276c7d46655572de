package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/loadrelay/go-download-gateway/internal/core"
	"github.com/loadrelay/go-download-gateway/internal/core/memory"
	"github.com/loadrelay/go-download-gateway/internal/session"
)

type testEnv struct {
	core     *memory.Core
	sessions session.Store
	router   *gin.Engine
}

func setupDispatcher(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	memCore := memory.New()
	sessions := session.NewMemoryStore(logger)
	registry := core.NewRegistry(memCore)

	d := NewDispatcher(memCore, registry, sessions, nil, time.Hour, logger)
	router := gin.New()
	d.RegisterRoutes(router)

	return &testEnv{core: memCore, sessions: sessions, router: router}
}

// addSession creates a user and a bound session, returning the token.
func (e *testEnv) addSession(t *testing.T, name string, perms core.Permission, admin bool) string {
	t.Helper()
	p, err := e.core.AddUser(name, "secret", perms, admin)
	if err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}
	s := session.New(p, time.Hour)
	if err := e.sessions.Put(context.Background(), s); err != nil {
		t.Fatalf("Session create failed: %v", err)
	}
	return s.ID
}

func (e *testEnv) do(method, target string, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	e.router.ServeHTTP(w, req)
	return w
}

func TestDispatch_Unauthenticated(t *testing.T) {
	env := setupDispatcher(t)

	w := env.do(http.MethodGet, "/api/get_server_version", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}
}

func TestDispatch_UnknownMethod(t *testing.T) {
	env := setupDispatcher(t)
	sid := env.addSession(t, "admin", core.PermAll, true)

	for _, target := range []string{
		"/api/no_such_method?session=" + sid,
		"/api/no_such_method", // unauthenticated, still 404
		"/api/_internal?session=" + sid,
	} {
		w := env.do(http.MethodGet, target, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", target, w.Code)
		}
	}
}

func TestDispatch_Forbidden(t *testing.T) {
	env := setupDispatcher(t)
	sid := env.addSession(t, "viewer", core.PermStatus, false)

	w := env.do(http.MethodGet, "/api/add_package/%22p%22/%5B%22http://x%22%5D?session="+sid, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", w.Code)
	}
}

func TestDispatch_AddPackagePositional(t *testing.T) {
	env := setupDispatcher(t)
	sid := env.addSession(t, "adder", core.PermAdd, false)

	w := env.do(http.MethodGet, "/api/add_package/%22MyPack%22/%5B%22http://x%22%5D?session="+sid, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	packs := env.core.Packages()
	if len(packs) != 1 {
		t.Fatalf("Expected 1 package, got %d", len(packs))
	}
	if packs[0].Name != "MyPack" {
		t.Errorf("Expected package name MyPack, got %q", packs[0].Name)
	}
	if len(packs[0].URLs) != 1 || packs[0].URLs[0] != "http://x" {
		t.Errorf("Expected urls [http://x], got %#v", packs[0].URLs)
	}
}

func TestDispatch_KwargsViaQuery(t *testing.T) {
	env := setupDispatcher(t)
	sid := env.addSession(t, "adder", core.PermAdd, false)

	q := url.Values{}
	q.Set("session", sid)
	q.Set("name", `"QPack"`)
	q.Set("links", `["http://q"]`)
	w := env.do(http.MethodGet, "/api/add_package?"+q.Encode(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	packs := env.core.Packages()
	if len(packs) != 1 || packs[0].Name != "QPack" {
		t.Fatalf("Expected QPack, got %#v", packs)
	}
}

func TestDispatch_UnsupportedInput(t *testing.T) {
	env := setupDispatcher(t)
	sid := env.addSession(t, "adder", core.PermAdd, false)

	w := env.do(http.MethodGet, "/api/add_package?session="+sid+"&name=notjson", "")
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("Expected 415, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "name") {
		t.Errorf("Diagnostic must name the parameter, got %s", w.Body.String())
	}
}

func TestDispatch_DomainError(t *testing.T) {
	env := setupDispatcher(t)
	sid := env.addSession(t, "adder", core.PermAdd, false)

	// Empty URL list is a business-rule rejection.
	w := env.do(http.MethodGet, "/api/add_package/%22p%22/%5B%5D?session="+sid, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "traceback") {
		t.Error("Domain failures must not leak a trace")
	}
}

func TestDispatch_BasicAuth(t *testing.T) {
	env := setupDispatcher(t)
	if _, err := env.core.AddUser("machine", "pw", core.PermAll, true); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/get_server_version", nil)
	req.SetBasicAuth("machine", "pw")
	env.router.ServeHTTP(w, req)

	// The minimal basic-auth principal carries only the uid; the core
	// re-derives its permission set.
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/get_server_version", nil)
	req.SetBasicAuth("machine", "wrong")
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Bad credentials must yield 401, got %d", w.Code)
	}
}

func TestLogin_Success(t *testing.T) {
	env := setupDispatcher(t)
	if _, err := env.core.AddUser("alice", "secret", core.PermAll, true); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}

	w := env.do(http.MethodPost, "/api/login", "username=alice&password=secret")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var sid string
	if err := json.Unmarshal(w.Body.Bytes(), &sid); err != nil {
		t.Fatalf("Expected a session id string, got %s", w.Body.String())
	}

	s, err := env.sessions.Get(context.Background(), sid)
	if err != nil {
		t.Fatalf("Returned id is not in the store: %v", err)
	}
	if s.Principal.Name != "alice" {
		t.Errorf("Session bound to %q, expected alice", s.Principal.Name)
	}
}

func TestLogin_FullPrincipal(t *testing.T) {
	env := setupDispatcher(t)
	if _, err := env.core.AddUser("alice", "secret", core.PermAll, true); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}

	w := env.do(http.MethodPost, "/api/login", "username=alice&password=secret&user=1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Expected principal object, got %s", w.Body.String())
	}
	if resp["name"] != "alice" {
		t.Errorf("Expected name alice, got %v", resp["name"])
	}
	if resp["session"] == nil || resp["session"] == "" {
		t.Error("Full principal response must include the session id")
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	env := setupDispatcher(t)

	w := env.do(http.MethodPost, "/api/login", "username=ghost&password=boo")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "false" {
		t.Errorf("Expected JSON false, got %s", w.Body.String())
	}
}

func TestLogout_Idempotent(t *testing.T) {
	env := setupDispatcher(t)
	sid := env.addSession(t, "alice", core.PermAll, true)

	for i := 0; i < 2; i++ {
		w := env.do(http.MethodPost, "/api/logout?session="+sid, "")
		if w.Code != http.StatusOK {
			t.Fatalf("logout #%d: expected 200, got %d", i+1, w.Code)
		}
		if strings.TrimSpace(w.Body.String()) != "true" {
			t.Errorf("logout #%d: expected true, got %s", i+1, w.Body.String())
		}
	}

	if _, err := env.sessions.Get(context.Background(), sid); err != session.ErrNotFound {
		t.Error("Session must be gone after logout")
	}
}

func TestSessionQuotesStripped(t *testing.T) {
	env := setupDispatcher(t)
	sid := env.addSession(t, "admin", core.PermAll, true)

	w := env.do(http.MethodGet, `/api/get_server_version?session=%22`+sid+`%22`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Quoted session token must resolve, got %d", w.Code)
	}
}
