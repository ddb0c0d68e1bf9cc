package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxmerge/internal/batch"
	"github.com/teemow/inboxmerge/internal/config"
	"github.com/teemow/inboxmerge/internal/gmail"
	"github.com/teemow/inboxmerge/internal/google"
	"github.com/teemow/inboxmerge/internal/kv"
)

// fakeGoogle serves userinfo and a minimal Gmail API keyed by bearer token.
type fakeGoogle struct {
	mu     sync.Mutex
	emails map[string]string
	inbox  map[string][]map[string]any
	sent   []string
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	email, ok := f.emails[tok]
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"invalid token"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path
	switch {
	case path == "/oauth2/v2/userinfo":
		_ = json.NewEncoder(w).Encode(map[string]any{"email": email})
	case path == "/gmail/v1/users/me/profile":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"emailAddress":  email,
			"messagesTotal": len(f.inbox[tok]),
			"threadsTotal":  len(f.inbox[tok]),
		})
	case path == "/gmail/v1/users/me/messages/send":
		f.sent = append(f.sent, email)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "sent"})
	case path == "/gmail/v1/users/me/messages":
		var refs []map[string]string
		for _, m := range f.inbox[tok] {
			refs = append(refs, map[string]string{"id": m["id"].(string)})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": refs})
	case strings.HasPrefix(path, "/gmail/v1/users/me/messages/"):
		id := strings.TrimPrefix(path, "/gmail/v1/users/me/messages/")
		for _, m := range f.inbox[tok] {
			if m["id"] == id {
				_ = json.NewEncoder(w).Encode(m)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func apiMessage(id, from, subject string, internalDate int64) map[string]any {
	return map[string]any{
		"id":           id,
		"threadId":     "t-" + id,
		"snippet":      "<b>hello</b> from " + id,
		"internalDate": strconv.FormatInt(internalDate, 10),
		"labelIds":     []string{"INBOX", "UNREAD"},
		"payload": map[string]any{"headers": []map[string]string{
			{"name": "From", "value": from},
			{"name": "Subject", "value": subject},
		}},
	}
}

type testAPI struct {
	t      *testing.T
	google *fakeGoogle
	sc     *ServerContext
	srv    *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	fg := &fakeGoogle{
		emails: map[string]string{"tok-main": "main@example.com", "tok-2": "second@example.com"},
		inbox: map[string][]map[string]any{
			"tok-main": {
				apiMessage("m1", "Shopee <deals@shopee.co.th>", "Flash sale", 300),
				apiMessage("m2", "friend@example.com", "Lunch?", 200),
			},
			"tok-2": {
				apiMessage("s1", "Lazada <hi@lazada.co.th>", "Order shipped", 400),
			},
		},
	}
	upstream := httptest.NewServer(fg)
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		OAuth: config.OAuthConfig{
			ClientID:         "client-123",
			RedirectURL:      "http://localhost:8080/callback",
			UserinfoEndpoint: upstream.URL + "/",
		},
		Gmail: config.GmailConfig{
			Endpoint:       upstream.URL + "/",
			PageSize:       50,
			BatchSize:      10,
			BatchDelay:     time.Millisecond,
			RequestTimeout: 5 * time.Second,
		},
		Filter:   config.FilterConfig{Senders: config.DefaultSenders},
		Timezone: "UTC",
	}

	sc, err := NewServerContext(context.Background(), cfg, kv.NewMemoryStore())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	srv := httptest.NewServer(NewRouter(sc, NewHealthChecker(sc)))
	t.Cleanup(srv.Close)
	return &testAPI{t: t, google: fg, sc: sc, srv: srv}
}

func (a *testAPI) do(method, path, body string, out any) int {
	a.t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, strings.NewReader(body))
	require.NoError(a.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *testAPI) link(tok, state string) google.CallbackResult {
	a.t.Helper()
	var res google.CallbackResult
	code := a.do(http.MethodPost, "/api/callback",
		`{"fragment":"access_token=`+tok+`&expires_in=3600&state=`+state+`"}`, &res)
	require.Equal(a.t, http.StatusOK, code)
	return res
}

func TestAPI_Health(t *testing.T) {
	a := newTestAPI(t)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/healthz", "", nil))

	var ready HealthResponse
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/readyz", "", &ready))
	assert.Equal(t, healthStatusOK, ready.Checks["storage"])

	require.NoError(t, a.sc.Shutdown())
	assert.Equal(t, http.StatusServiceUnavailable, a.do(http.MethodGet, "/readyz", "", &ready))
	assert.Equal(t, healthStatusShuttingDown, ready.Checks["shutdown"])
}

func TestAPI_LoginRedirect(t *testing.T) {
	a := newTestAPI(t)

	resp, err := (&http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}).Get(a.srv.URL + "/login?account=additional")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	loc := resp.Header.Get("Location")
	assert.True(t, strings.HasPrefix(loc, google.DefaultAuthURL+"?"))
	assert.Contains(t, loc, "state=additional")
	assert.Contains(t, loc, "response_type=token")
}

func TestAPI_CallbackPage(t *testing.T) {
	a := newTestAPI(t)

	resp, err := http.Get(a.srv.URL + "/callback")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestAPI_AccountLifecycle(t *testing.T) {
	a := newTestAPI(t)

	var session sessionResponse
	a.do(http.MethodGet, "/api/session", "", &session)
	assert.False(t, session.Authenticated)

	res := a.link("tok-main", "main")
	assert.True(t, res.Success)
	assert.Equal(t, "main@example.com", res.Email)
	assert.True(t, res.IsMain)

	res = a.link("tok-2", "additional")
	assert.True(t, res.Success)
	assert.False(t, res.IsMain)

	var failed google.CallbackResult
	code := a.do(http.MethodPost, "/api/callback", `{"url":"http://localhost/callback#access_token=nope&state=main"}`, &failed)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, google.StageFragmentPresent, failed.Stage)

	a.do(http.MethodGet, "/api/session", "", &session)
	assert.Equal(t, sessionResponse{
		Authenticated: true,
		MainAccount:   "main@example.com",
		Accounts:      2,
		Profile:       &gmail.Profile{EmailAddress: "main@example.com", MessagesTotal: 2, ThreadsTotal: 2},
	}, session)

	var accounts []accountView
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/accounts", "", &accounts))
	require.Len(t, accounts, 2)
	assert.True(t, accounts[0].Main)
	assert.False(t, accounts[1].Main)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/api/accounts/second@example.com", "", nil))
	accounts = nil
	a.do(http.MethodGet, "/api/accounts", "", &accounts)
	require.Len(t, accounts, 1)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodPost, "/api/logout", "", nil))
	a.do(http.MethodGet, "/api/session", "", &session)
	assert.False(t, session.Authenticated)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/api/refresh", "", nil))
}

func TestAPI_RefreshAndFeed(t *testing.T) {
	a := newTestAPI(t)
	a.link("tok-main", "main")
	a.link("tok-2", "additional")

	var feed feedResponse
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/refresh", "", &feed))
	require.Len(t, feed.Messages, 2)
	assert.Equal(t, "s1", feed.Messages[0].ID)
	assert.Equal(t, "second@example.com", feed.Messages[0].OwnerAccount)
	assert.Equal(t, "Lazada", feed.Messages[0].SenderName)
	assert.Equal(t, "lazada", feed.Messages[0].Category)
	assert.True(t, feed.Messages[0].New)
	assert.Equal(t, "m1", feed.Messages[1].ID)
	assert.Equal(t, "hello from m1", feed.Messages[1].Snippet)
	assert.Len(t, feed.Accounts, 2)

	var narrowed feedResponse
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/feed?sender=shopee", "", &narrowed))
	require.Len(t, narrowed.Messages, 1)
	assert.Equal(t, "m1", narrowed.Messages[0].ID)
	assert.False(t, narrowed.Messages[0].New)
	assert.Equal(t, feed.RefreshID, narrowed.RefreshID)
}

func TestAPI_FilteredViewMarksAllSeen(t *testing.T) {
	a := newTestAPI(t)
	a.link("tok-main", "main")
	a.link("tok-2", "additional")

	var narrowed feedResponse
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/refresh?sender=shopee", "", &narrowed))
	require.Len(t, narrowed.Messages, 1)
	assert.True(t, narrowed.Messages[0].New)

	var all feedResponse
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/feed?sender=all", "", &all))
	require.Len(t, all.Messages, 2)
	for _, m := range all.Messages {
		assert.False(t, m.New, m.ID)
	}
}

func TestAPI_Send(t *testing.T) {
	a := newTestAPI(t)

	assert.Equal(t, http.StatusUnauthorized,
		a.do(http.MethodPost, "/api/send", `{"recipients":["x@example.com"],"subject":"hi","body":"b"}`, nil))

	a.link("tok-main", "main")
	a.link("tok-2", "additional")

	var recipients []string
	a.do(http.MethodGet, "/api/recipients", "", &recipients)
	assert.Equal(t, []string{"main@example.com", "second@example.com"}, recipients)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/send", `{"recipients":[]}`, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/send", `not json`, nil))
	assert.Equal(t, http.StatusBadRequest,
		a.do(http.MethodPost, "/api/send", `{"recipients":["second@example.com\r\nBcc: x@example.com"],"subject":"hi"}`, nil))

	var report batch.Report
	require.Equal(t, http.StatusOK,
		a.do(http.MethodPost, "/api/send", `{"recipients":["second@example.com"],"subject":"hi","body":"b"}`, &report))
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, []string{"main@example.com"}, a.google.sent)

	var status struct {
		CanSend bool `json:"can_send"`
	}
	a.do(http.MethodGet, "/api/send", "", &status)
	assert.False(t, status.CanSend)

	assert.Equal(t, http.StatusTooManyRequests,
		a.do(http.MethodPost, "/api/send", `{"recipients":["second@example.com"],"subject":"again","body":"b"}`, nil))
}

func TestAPI_RejectsCrossSiteRequests(t *testing.T) {
	a := newTestAPI(t)
	a.link("tok-main", "main")
	a.link("tok-2", "additional")

	send := func(contentType, origin string) int {
		req, err := http.NewRequest(http.MethodPost, a.srv.URL+"/api/send",
			strings.NewReader(`{"recipients":["second@example.com"],"subject":"hi","body":"b"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", contentType)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	tests := []struct {
		name        string
		contentType string
		origin      string
		want        int
	}{
		{name: "plain text body", contentType: "text/plain", want: http.StatusUnsupportedMediaType},
		{name: "form body", contentType: "application/x-www-form-urlencoded", want: http.StatusUnsupportedMediaType},
		{name: "foreign origin", contentType: "application/json", origin: "http://evil.example", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, send(tt.contentType, tt.origin))
		})
	}
	assert.Empty(t, a.google.sent)

	req, err := http.NewRequest(http.MethodPost, a.srv.URL+"/api/logout", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var session sessionResponse
	a.do(http.MethodGet, "/api/session", "", &session)
	assert.True(t, session.Authenticated)

	assert.Equal(t, http.StatusOK, send("application/json; charset=utf-8", a.srv.URL))
	assert.Equal(t, []string{"main@example.com"}, a.google.sent)
}
