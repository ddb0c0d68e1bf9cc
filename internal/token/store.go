// Package token persists the main credential and the set of linked account
// credentials, and decides which of them are still valid.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/inboxmerge/internal/kv"
	"github.com/teemow/inboxmerge/internal/logging"
)

// Storage keys.
const (
	KeyMainAccount = "inboxmerge_main_account"
	KeyAccounts    = "inboxmerge_accounts"
)

// Credential is a bearer token bound to one account. Times are epoch milliseconds.
type Credential struct {
	Email       string `json:"email"`
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	CreatedAt   int64  `json:"created_at"`
}

// ValidAt reports whether the credential has not expired at nowMs.
func (c Credential) ValidAt(nowMs int64) bool {
	return c.ExpiresAt > nowMs
}

// Store manages credentials on top of a kv.Store.
type Store struct {
	kv     kv.Store
	now    func() time.Time
	logger *slog.Logger

	// mu serializes read-modify-write cycles on the account set.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore returns a credential store backed by store.
func NewStore(store kv.Store, opts ...Option) *Store {
	s := &Store{kv: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(logging.OrDiscard(s.logger), "token")
	return s
}

func (s *Store) nowMs() int64 {
	return s.now().UnixMilli()
}

// SaveCredential upserts the credential for email into the account set and,
// when isMain is set, also overwrites the main slot. A re-saved email keeps
// its position in the set.
func (s *Store) SaveCredential(ctx context.Context, email, accessToken string, expiresAt int64, isMain bool) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred := Credential{
		Email:       email,
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		CreatedAt:   s.nowMs(),
	}

	accounts, err := s.loadAccounts(ctx)
	if err != nil {
		return Credential{}, err
	}
	replaced := false
	for i := range accounts {
		if accounts[i].Email == email {
			accounts[i] = cred
			replaced = true
			break
		}
	}
	if !replaced {
		accounts = append(accounts, cred)
	}
	if err := s.writeJSON(ctx, KeyAccounts, accounts); err != nil {
		return Credential{}, err
	}

	if isMain {
		if err := s.writeJSON(ctx, KeyMainAccount, cred); err != nil {
			return Credential{}, err
		}
	}

	s.logger.Debug("credential saved",
		logging.UserHash(email),
		slog.Bool("main", isMain),
		slog.String("token", logging.SanitizeToken(accessToken)))
	return cred, nil
}

// MainCredential returns the main credential if present and valid. An
// expired main credential is evicted from storage.
func (s *Store) MainCredential(ctx context.Context) (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cred Credential
	found, err := s.readJSON(ctx, KeyMainAccount, &cred)
	if err != nil || !found {
		return Credential{}, false, err
	}
	if !cred.ValidAt(s.nowMs()) {
		s.logger.Info("main credential expired, evicting", logging.UserHash(cred.Email))
		if err := s.kv.Delete(ctx, KeyMainAccount); err != nil {
			return Credential{}, false, fmt.Errorf("failed to evict main credential: %w", err)
		}
		return Credential{}, false, nil
	}
	return cred, true, nil
}

// IsAuthenticated reports whether a valid main credential exists.
func (s *Store) IsAuthenticated(ctx context.Context) (bool, error) {
	_, ok, err := s.MainCredential(ctx)
	return ok, err
}

// ListAccounts returns the valid credentials of the account set in insertion
// order. Expired entries are filtered but left in storage; see PruneExpired.
func (s *Store) ListAccounts(ctx context.Context) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.loadAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return validOnly(accounts, s.nowMs()), nil
}

// PruneExpired drops expired credentials from storage and returns how many were removed.
func (s *Store) PruneExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.loadAccounts(ctx)
	if err != nil {
		return 0, err
	}
	valid := validOnly(accounts, s.nowMs())
	removed := len(accounts) - len(valid)
	if removed == 0 {
		return 0, nil
	}
	if err := s.writeJSON(ctx, KeyAccounts, valid); err != nil {
		return 0, err
	}
	return removed, nil
}

// RemoveAccount removes email from the account set and clears the main slot
// if it holds the same email. The written set contains only valid
// credentials. Removing an unknown email is a no-op apart from that pruning.
func (s *Store) RemoveAccount(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.loadAccounts(ctx)
	if err != nil {
		return err
	}
	kept := make([]Credential, 0, len(accounts))
	for _, c := range validOnly(accounts, s.nowMs()) {
		if c.Email != email {
			kept = append(kept, c)
		}
	}
	if err := s.writeJSON(ctx, KeyAccounts, kept); err != nil {
		return err
	}

	var main Credential
	found, err := s.readJSON(ctx, KeyMainAccount, &main)
	if err != nil {
		return err
	}
	if found && main.Email == email {
		if err := s.kv.Delete(ctx, KeyMainAccount); err != nil {
			return fmt.Errorf("failed to clear main credential: %w", err)
		}
	}

	s.logger.Info("account removed", logging.UserHash(email))
	return nil
}

// ClearAll wipes the main slot and the account set.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if err := s.kv.Delete(ctx, KeyMainAccount); err != nil {
		errs = append(errs, err)
	}
	if err := s.kv.Delete(ctx, KeyAccounts); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func validOnly(accounts []Credential, nowMs int64) []Credential {
	out := make([]Credential, 0, len(accounts))
	for _, c := range accounts {
		if c.ValidAt(nowMs) {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) loadAccounts(ctx context.Context) ([]Credential, error) {
	var accounts []Credential
	found, err := s.readJSON(ctx, KeyAccounts, &accounts)
	if err != nil || !found {
		return nil, err
	}
	return accounts, nil
}

// readJSON decodes key into v. Missing keys and corrupt JSON both report
// found=false; only storage failures return an error.
func (s *Store) readJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("ignoring corrupt stored value", slog.String("key", key), logging.Err(err))
		return false, nil
	}
	return true, nil
}

func (s *Store) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
