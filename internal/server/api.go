package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"

	"github.com/teemow/inboxmerge/internal/compose"
	"github.com/teemow/inboxmerge/internal/filter"
	"github.com/teemow/inboxmerge/internal/gmail"
	"github.com/teemow/inboxmerge/internal/google"
	"github.com/teemow/inboxmerge/internal/inbox"
	"github.com/teemow/inboxmerge/internal/logging"
)

const maxBodyBytes = 1 << 20

// API serves the JSON endpoints and the login redirect pages.
type API struct {
	sc        *ServerContext
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
}

// NewAPI returns the handlers for sc.
func NewAPI(sc *ServerContext) *API {
	return &API{
		sc:        sc,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logging.WithComponent(sc.Logger(), "api"),
	}
}

// NewRouter returns the full HTTP handler: API routes, login pages and health
// probes.
func NewRouter(sc *ServerContext, health *HealthChecker) http.Handler {
	api := NewAPI(sc)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware(sc))

	health.RegisterHealthEndpoints(r)

	r.Get("/login", api.Login)
	r.Get("/callback", api.CallbackPage)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(sameOrigin)

		r.Post("/callback", api.CompleteCallback)
		r.Get("/session", api.Session)
		r.Post("/logout", api.Logout)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", api.ListAccounts)
			r.Delete("/{email}", api.RemoveAccount)
		})

		r.Post("/refresh", api.Refresh)
		r.Get("/feed", api.Feed)

		r.Get("/recipients", api.Recipients)
		r.Get("/send", api.SendStatus)
		r.Post("/send", api.Send)
	})

	return r
}

// sameOrigin rejects state-changing requests that a browser sent from another
// origin. Requests without an Origin header (CLI clients) pass.
func sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if origin := r.Header.Get("Origin"); origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host != r.Host {
				writeError(w, http.StatusForbidden, "cross-origin request rejected")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records request counts by route pattern, keeping
// account emails out of the path label.
func metricsMiddleware(sc *ServerContext) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				pattern = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			sc.Metrics().RecordHTTPRequest(r.Context(), r.Method, pattern, status, time.Since(start))
		})
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func (a *API) internalError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Error("request failed",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		logging.Err(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// Login redirects to the provider. ?account=additional links another account.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	isMain := r.URL.Query().Get("account") != google.StateAdditional
	http.Redirect(w, r, a.sc.Flow().AuthorizationURL(isMain), http.StatusFound)
}

// CallbackPage serves the redirect target. The token arrives in the URL
// fragment, which never reaches the server, so the page posts it back.
func (a *API) CallbackPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	_, _ = w.Write([]byte(callbackPage))
}

type callbackRequest struct {
	// Fragment is the URL fragment without '#'. URL may be sent instead.
	Fragment string `json:"fragment"`
	URL      string `json:"url"`
}

// fragmentLocation is a Location over a posted fragment.
type fragmentLocation struct {
	fragment string
	cleared  bool
}

func (l *fragmentLocation) Fragment() string { return l.fragment }
func (l *fragmentLocation) ClearFragment()   { l.fragment = ""; l.cleared = true }

// CompleteCallback stores the account from a posted redirect fragment.
func (a *API) CompleteCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var loc google.Location = &fragmentLocation{fragment: req.Fragment}
	if req.Fragment == "" && req.URL != "" {
		u, err := google.NewURLLocation(req.URL)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		loc = u
	}

	res, err := a.sc.Flow().CompleteCallback(r.Context(), loc)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	code := http.StatusOK
	if !res.Success {
		code = http.StatusUnauthorized
	}
	writeJSON(w, code, res)
}

type sessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	MainAccount   string         `json:"main_account,omitempty"`
	Accounts      int            `json:"accounts"`
	Profile       *gmail.Profile `json:"profile,omitempty"`
}

// Session reports whether a main account is signed in, with the main
// mailbox profile when the provider answers.
func (a *API) Session(w http.ResponseWriter, r *http.Request) {
	main, ok, err := a.sc.Tokens().MainCredential(r.Context())
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	accounts, err := a.sc.Tokens().ListAccounts(r.Context())
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	resp := sessionResponse{Authenticated: ok, Accounts: len(accounts)}
	if ok {
		resp.MainAccount = main.Email
		profile, err := a.sc.Mail().GetProfile(r.Context(), main.AccessToken)
		if err != nil {
			a.logger.Warn("failed to load mailbox profile", logging.UserHash(main.Email), logging.Err(err))
		} else {
			resp.Profile = profile
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout forgets every linked account.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.sc.Tokens().ClearAll(r.Context()); err != nil {
		a.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type accountView struct {
	Email     string    `json:"email"`
	Main      bool      `json:"main"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ListAccounts lists the valid linked accounts. Tokens are never returned.
func (a *API) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.sc.Tokens().ListAccounts(r.Context())
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	main, hasMain, err := a.sc.Tokens().MainCredential(r.Context())
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	out := make([]accountView, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, accountView{
			Email:     acc.Email,
			Main:      hasMain && acc.Email == main.Email,
			ExpiresAt: time.UnixMilli(acc.ExpiresAt).UTC(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// RemoveAccount unlinks one account.
func (a *API) RemoveAccount(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if err := a.sc.Tokens().RemoveAccount(r.Context(), email); err != nil {
		a.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type feedMessage struct {
	gmail.Message
	SenderName string `json:"sender_name"`
	Category   string `json:"category,omitempty"`
	New        bool   `json:"new"`
}

type feedResponse struct {
	RefreshID  string                `json:"refresh_id,omitempty"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
	Messages   []feedMessage         `json:"messages"`
	Accounts   []inbox.AccountResult `json:"accounts"`
}

func (a *API) feedView(f inbox.Feed, sender string) feedResponse {
	fresh := a.sc.Seen().Classify(f.Messages).NewIDs()
	msgs := filter.BySender(f.Messages, sender)

	resp := feedResponse{
		RefreshID: f.RefreshID,
		Messages:  make([]feedMessage, 0, len(msgs)),
		Accounts:  f.Accounts,
	}
	if resp.Accounts == nil {
		resp.Accounts = []inbox.AccountResult{}
	}
	if !f.FinishedAt.IsZero() {
		finished := f.FinishedAt
		resp.FinishedAt = &finished
	}
	for _, m := range msgs {
		m.Snippet = a.sanitizer.Sanitize(m.Snippet)
		m.Subject = a.sanitizer.Sanitize(m.Subject)
		name, _ := filter.ParseSender(m.Sender)
		resp.Messages = append(resp.Messages, feedMessage{
			Message:    m,
			SenderName: a.sanitizer.Sanitize(name),
			Category:   filter.Category(m.Sender),
			New:        fresh[m.ID],
		})
	}
	return resp
}

// Refresh rebuilds the feed now. It answers 409 while another refresh runs.
func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	ok, err := a.sc.Tokens().IsAuthenticated(r.Context())
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, compose.ErrNotAuthenticated.Error())
		return
	}

	// A client disconnect must not abort the refresh halfway.
	feed, err := a.sc.Refresh(a.sc.Context())
	if errors.Is(err, inbox.ErrRefreshInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.feedView(feed, r.URL.Query().Get("sender")))
}

// Feed returns the last refreshed feed, optionally narrowed by ?sender=.
func (a *API) Feed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.feedView(a.sc.Aggregator().Feed(), r.URL.Query().Get("sender")))
}

// Recipients lists the addresses the compose form offers.
func (a *API) Recipients(w http.ResponseWriter, r *http.Request) {
	recipients, err := a.sc.Compose().Recipients(r.Context())
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipients)
}

// SendStatus reports whether a send is allowed today.
func (a *API) SendStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.sc.Compose().Status(r.Context())
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Send sends a draft from the main account.
func (a *API) Send(w http.ResponseWriter, r *http.Request) {
	var d compose.Draft
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	report, err := a.sc.Compose().Send(r.Context(), d)
	switch {
	case errors.Is(err, compose.ErrNoRecipients), errors.Is(err, compose.ErrInvalidRecipient):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, compose.ErrDailyLimitReached):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, compose.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, compose.ErrAllFailed):
		writeJSON(w, http.StatusBadGateway, report)
	case err != nil:
		a.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}
