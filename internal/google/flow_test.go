package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxmerge/internal/config"
	"github.com/teemow/inboxmerge/internal/kv"
	"github.com/teemow/inboxmerge/internal/token"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func clock() time.Time { return fixedNow }

// userinfoServer answers userinfo lookups for the tokens in emails.
func userinfoServer(t *testing.T, emails map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/v2/userinfo" {
			http.NotFound(w, r)
			return
		}
		email, ok := emails[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":401,"message":"invalid token"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"email": email, "verified_email": true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFlow(t *testing.T, store CredentialSaver, emails map[string]string) *Flow {
	t.Helper()
	srv := userinfoServer(t, emails)
	cfg := config.OAuthConfig{
		ClientID:         "client-123",
		RedirectURL:      "http://localhost:8080/callback",
		UserinfoEndpoint: srv.URL + "/",
	}
	return NewFlow(cfg, store, WithClock(clock), WithHTTPClient(srv.Client()))
}

type fakeLocation struct {
	fragment string
	cleared  bool
}

func (l *fakeLocation) Fragment() string { return l.fragment }
func (l *fakeLocation) ClearFragment()   { l.cleared = true; l.fragment = "" }

type failingSaver struct{}

func (failingSaver) SaveCredential(context.Context, string, string, int64, bool) (token.Credential, error) {
	return token.Credential{}, errors.New("disk full")
}

func TestFlow_AuthorizationURL(t *testing.T) {
	f := NewFlow(config.OAuthConfig{ClientID: "client-123", RedirectURL: "http://localhost:8080/callback"}, nil)

	tests := []struct {
		name      string
		isMain    bool
		wantState string
	}{
		{name: "main", isMain: true, wantState: StateMain},
		{name: "additional", isMain: false, wantState: StateAdditional},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := f.AuthorizationURL(tt.isMain)
			assert.Equal(t, raw, f.AuthorizationURL(tt.isMain))

			u, err := url.Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, "accounts.google.com", u.Host)
			assert.Equal(t, "/o/oauth2/v2/auth", u.Path)

			q := u.Query()
			assert.Equal(t, "client-123", q.Get("client_id"))
			assert.Equal(t, "http://localhost:8080/callback", q.Get("redirect_uri"))
			assert.Equal(t, "token", q.Get("response_type"))
			assert.Equal(t, "online", q.Get("access_type"))
			assert.Equal(t, tt.wantState, q.Get("state"))
			assert.Equal(t,
				"https://www.googleapis.com/auth/gmail.readonly https://www.googleapis.com/auth/gmail.send",
				q.Get("scope"))
		})
	}
}

func TestFlow_ParseRedirectFragment(t *testing.T) {
	f := NewFlow(config.OAuthConfig{}, nil, WithClock(clock))
	now := fixedNow.UnixMilli()

	tests := []struct {
		name   string
		url    string
		want   Fragment
		wantOK bool
	}{
		{
			name:   "full fragment",
			url:    "http://localhost/callback#access_token=abc&expires_in=3600&state=main",
			want:   Fragment{AccessToken: "abc", ExpiresAt: now + 3_600_000, State: StateMain},
			wantOK: true,
		},
		{
			name:   "missing expires_in is already expired",
			url:    "http://localhost/callback#access_token=abc&state=additional",
			want:   Fragment{AccessToken: "abc", ExpiresAt: now, State: StateAdditional},
			wantOK: true,
		},
		{
			name:   "malformed expires_in is already expired",
			url:    "http://localhost/callback#access_token=abc&expires_in=soon",
			want:   Fragment{AccessToken: "abc", ExpiresAt: now},
			wantOK: true,
		},
		{
			name: "no token",
			url:  "http://localhost/callback#state=main",
		},
		{
			name: "no fragment",
			url:  "http://localhost/callback",
		},
		{
			name: "token in query is ignored",
			url:  "http://localhost/callback?access_token=abc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := f.ParseRedirectFragment(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlow_ResolveIdentity(t *testing.T) {
	f := newTestFlow(t, nil, map[string]string{"good": "me@example.com"})

	email, ok := f.ResolveIdentity(context.Background(), "good")
	assert.True(t, ok)
	assert.Equal(t, "me@example.com", email)

	email, ok = f.ResolveIdentity(context.Background(), "bad")
	assert.False(t, ok)
	assert.Empty(t, email)
}

func TestFlow_CompleteCallback(t *testing.T) {
	ctx := context.Background()
	store := token.NewStore(kv.NewMemoryStore(), token.WithClock(clock))
	f := newTestFlow(t, store, map[string]string{"tok-main": "main@example.com", "tok-2": "second@example.com"})

	t.Run("main account", func(t *testing.T) {
		loc := &fakeLocation{fragment: "access_token=tok-main&expires_in=3600&state=main"}
		res, err := f.CompleteCallback(ctx, loc)
		require.NoError(t, err)
		assert.Equal(t, CallbackResult{Success: true, Email: "main@example.com", IsMain: true, Stage: StagePersisted}, res)
		assert.True(t, loc.cleared)

		main, ok, err := store.MainCredential(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "main@example.com", main.Email)
		assert.Equal(t, "tok-main", main.AccessToken)
		assert.Equal(t, fixedNow.UnixMilli()+3_600_000, main.ExpiresAt)
	})

	t.Run("additional account", func(t *testing.T) {
		loc := &fakeLocation{fragment: "access_token=tok-2&expires_in=3600&state=additional"}
		res, err := f.CompleteCallback(ctx, loc)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.False(t, res.IsMain)

		main, _, err := store.MainCredential(ctx)
		require.NoError(t, err)
		assert.Equal(t, "main@example.com", main.Email)

		accounts, err := store.ListAccounts(ctx)
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		assert.Equal(t, "second@example.com", accounts[1].Email)
	})

	t.Run("no callback", func(t *testing.T) {
		loc := &fakeLocation{}
		res, err := f.CompleteCallback(ctx, loc)
		require.NoError(t, err)
		assert.Equal(t, CallbackResult{Stage: StageNoCallback}, res)
		assert.False(t, loc.cleared)
	})

	t.Run("identity lookup fails", func(t *testing.T) {
		loc := &fakeLocation{fragment: "access_token=unknown&expires_in=3600&state=main"}
		res, err := f.CompleteCallback(ctx, loc)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, StageFragmentPresent, res.Stage)
		assert.False(t, loc.cleared)
	})
}

func TestFlow_CompleteCallback_StoreFailure(t *testing.T) {
	f := newTestFlow(t, failingSaver{}, map[string]string{"tok": "me@example.com"})

	loc := &fakeLocation{fragment: "access_token=tok&expires_in=60&state=main"}
	res, err := f.CompleteCallback(context.Background(), loc)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, StageIdentityResolved, res.Stage)
	assert.False(t, loc.cleared)
}

func TestURLLocation(t *testing.T) {
	loc, err := NewURLLocation("http://localhost:8080/callback#access_token=abc&state=main")
	require.NoError(t, err)
	assert.Equal(t, "access_token=abc&state=main", loc.Fragment())

	loc.ClearFragment()
	assert.Empty(t, loc.Fragment())
	assert.Equal(t, "http://localhost:8080/callback", loc.String())

	bare, err := NewURLLocation("access_token=xyz&expires_in=10")
	require.NoError(t, err)
	assert.Equal(t, "access_token=xyz&expires_in=10", bare.Fragment())
}
