package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/teemow/inboxmerge/internal/config"
	"github.com/teemow/inboxmerge/internal/instrumentation"
	"github.com/teemow/inboxmerge/internal/logging"
	"github.com/teemow/inboxmerge/internal/token"
)

// DefaultAuthURL is the implicit-grant authorization endpoint.
const DefaultAuthURL = "https://accounts.google.com/o/oauth2/v2/auth"

// Values carried in the state parameter.
const (
	StateMain       = "main"
	StateAdditional = "additional"
)

// Stage is the furthest point a callback reached.
type Stage string

const (
	StageNoCallback       Stage = "no_callback"
	StageFragmentPresent  Stage = "fragment_present"
	StageIdentityResolved Stage = "identity_resolved"
	StagePersisted        Stage = "persisted"
)

// Fragment is the token data returned in the redirect fragment.
type Fragment struct {
	AccessToken string
	// ExpiresAt is in epoch milliseconds.
	ExpiresAt int64
	State     string
}

// IsMain reports whether the login was started for the main account.
func (f Fragment) IsMain() bool { return f.State == StateMain }

// CallbackResult is the outcome of CompleteCallback.
type CallbackResult struct {
	Success bool   `json:"success"`
	Email   string `json:"email,omitempty"`
	IsMain  bool   `json:"is_main"`
	Stage   Stage  `json:"stage"`
}

// Location is where the redirect landed. ClearFragment drops the token from it
// once it has been stored.
type Location interface {
	Fragment() string
	ClearFragment()
}

// CredentialSaver persists a linked account.
type CredentialSaver interface {
	SaveCredential(ctx context.Context, email, accessToken string, expiresAt int64, isMain bool) (token.Credential, error)
}

// Flow drives account linking.
type Flow struct {
	oauth            *oauth2.Config
	userinfoEndpoint string
	store            CredentialSaver
	httpClient       *http.Client
	now              func() time.Time
	metrics          *instrumentation.Metrics
	logger           *slog.Logger
}

// Option configures a Flow.
type Option func(*Flow)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// WithHTTPClient sets the client used for identity lookups.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Flow) { f.httpClient = hc }
}

// WithMetrics records callback outcomes.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(f *Flow) { f.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) { f.logger = logger }
}

// NewFlow returns a Flow for the configured OAuth client.
func NewFlow(cfg config.OAuthConfig, store CredentialSaver, opts ...Option) *Flow {
	endpoint := googleoauth.Endpoint
	endpoint.AuthURL = DefaultAuthURL
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}

	f := &Flow{
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Endpoint:    endpoint,
			Scopes:      Scopes,
		},
		userinfoEndpoint: cfg.UserinfoEndpoint,
		store:            store,
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logging.WithComponent(logging.OrDiscard(f.logger), "oauth")
	return f
}

// AuthorizationURL returns the URL that starts linking the main or an
// additional account. The query is sorted, so the result is deterministic.
func (f *Flow) AuthorizationURL(isMain bool) string {
	state := StateAdditional
	if isMain {
		state = StateMain
	}
	return f.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_type", "token"),
		oauth2.AccessTypeOnline,
	)
}

// ParseRedirectFragment extracts the token from the fragment of rawURL.
func (f *Flow) ParseRedirectFragment(rawURL string) (Fragment, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Fragment{}, false
	}
	return f.ParseFragment(u.EscapedFragment())
}

// ParseFragment parses a fragment without its leading '#'. It reports false
// when no access token is present. A missing or malformed expires_in yields a
// deadline of now, so the credential is already expired.
func (f *Flow) ParseFragment(fragment string) (Fragment, bool) {
	values, err := url.ParseQuery(strings.TrimPrefix(fragment, "#"))
	if err != nil {
		return Fragment{}, false
	}
	accessToken := values.Get("access_token")
	if accessToken == "" {
		return Fragment{}, false
	}

	now := f.now().UnixMilli()
	expiresAt := now
	if secs, err := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64); err == nil {
		expiresAt = now + secs*1000
	}

	return Fragment{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		State:       values.Get("state"),
	}, true
}

// ResolveIdentity returns the email of the token's owner. Any failure is
// logged and reported as false.
func (f *Flow) ResolveIdentity(ctx context.Context, accessToken string) (string, bool) {
	ctx, span := instrumentation.StartAPISpan(ctx, instrumentation.ServiceUserinfo, "get")
	start := time.Now()
	email, err := f.lookupEmail(ctx, accessToken)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		f.logger.Warn("identity lookup failed", logging.Err(err))
	}
	f.metrics.RecordAPIOperation(ctx, instrumentation.ServiceUserinfo, "get", status, time.Since(start))
	instrumentation.EndSpan(span, err)
	return email, err == nil
}

func (f *Flow) lookupEmail(ctx context.Context, accessToken string) (string, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	hc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, f.httpClient), ts)
	hc.Timeout = f.httpClient.Timeout

	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if f.userinfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(f.userinfoEndpoint))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	if info.Email == "" {
		return "", fmt.Errorf("userinfo response has no email")
	}
	return info.Email, nil
}

// CompleteCallback finishes a login that landed on loc. The fragment is
// cleared only after the credential has been stored. A storage failure is
// returned alongside an unsuccessful result.
func (f *Flow) CompleteCallback(ctx context.Context, loc Location) (CallbackResult, error) {
	logger := logging.WithOperation(f.logger, "complete_callback")

	frag, ok := f.ParseFragment(loc.Fragment())
	if !ok {
		f.metrics.RecordOAuthCallback(ctx, instrumentation.OAuthResultNoCallback)
		return CallbackResult{Stage: StageNoCallback}, nil
	}
	result := CallbackResult{IsMain: frag.IsMain(), Stage: StageFragmentPresent}

	email, ok := f.ResolveIdentity(ctx, frag.AccessToken)
	if !ok {
		f.metrics.RecordOAuthCallback(ctx, instrumentation.OAuthResultNoIdentity)
		logger.Info("callback rejected", logging.Status(logging.StatusError))
		return result, nil
	}
	result.Stage = StageIdentityResolved

	if _, err := f.store.SaveCredential(ctx, email, frag.AccessToken, frag.ExpiresAt, frag.IsMain()); err != nil {
		f.metrics.RecordOAuthCallback(ctx, instrumentation.OAuthResultStoreFailed)
		logger.Error("failed to store credential", logging.UserHash(email), logging.Err(err))
		return result, fmt.Errorf("failed to store credential: %w", err)
	}

	loc.ClearFragment()
	result.Success = true
	result.Email = email
	result.Stage = StagePersisted
	f.metrics.RecordOAuthCallback(ctx, instrumentation.OAuthResultSuccess)
	logger.Info("account linked",
		logging.UserHash(email),
		slog.Bool("main", frag.IsMain()),
		slog.String("token", logging.SanitizeToken(frag.AccessToken)),
		logging.Status(logging.StatusSuccess))
	return result, nil
}

// URLLocation is a Location backed by a redirect URL, used when the URL is
// pasted into the CLI or posted by the callback page.
type URLLocation struct {
	u *url.URL
}

// NewURLLocation parses rawURL. A bare fragment ("access_token=...") is
// accepted as well.
func NewURLLocation(rawURL string) (*URLLocation, error) {
	if !strings.Contains(rawURL, "#") && strings.Contains(rawURL, "access_token=") {
		rawURL = "#" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	return &URLLocation{u: u}, nil
}

// Fragment returns the escaped fragment.
func (l *URLLocation) Fragment() string { return l.u.EscapedFragment() }

// ClearFragment removes the fragment.
func (l *URLLocation) ClearFragment() {
	l.u.Fragment = ""
	l.u.RawFragment = ""
}

// String returns the URL without anything cleared.
func (l *URLLocation) String() string { return l.u.String() }
