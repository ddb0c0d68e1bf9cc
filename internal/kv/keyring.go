package kv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/99designs/keyring"
)

const keyringService = "inboxmerge"

// KeyringStore keeps values in the OS credential store.
type KeyringStore struct {
	ring keyring.Keyring
}

// KeyringOptions tunes how the keyring is opened. FileDir is used by the
// encrypted-file fallback backend.
type KeyringOptions struct {
	Backends     []keyring.BackendType
	FileDir      string
	FilePassword string
}

// NewKeyringStore opens the system keyring with a file fallback.
func NewKeyringStore(opts KeyringOptions) (*KeyringStore, error) {
	backends := opts.Backends
	if len(backends) == 0 {
		backends = []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		}
	}
	fileDir := opts.FileDir
	if fileDir == "" {
		fileDir = "~/.config/inboxmerge/credentials"
	}
	password := opts.FilePassword
	if password == "" {
		password = "inboxmerge-file-key"
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              keyringService,
		AllowedBackends:          backends,
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(password),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &KeyringStore{ring: ring}, nil
}

func (k *KeyringStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	item, err := k.ring.Get(key)
	if isKeyringMissing(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", key, err)
	}
	return item.Data, nil
}

func (k *KeyringStore) Set(_ context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := k.ring.Set(keyring.Item{
		Key:         key,
		Data:        value,
		Label:       "inboxmerge " + key,
		Description: "inboxmerge account state",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

func (k *KeyringStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := k.ring.Remove(key)
	if err != nil && !isKeyringMissing(err) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

func (k *KeyringStore) Close() error { return nil }

func isKeyringMissing(err error) bool {
	return errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, fs.ErrNotExist)
}
