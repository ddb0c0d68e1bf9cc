package kv

import (
	"fmt"
	"path/filepath"

	"github.com/teemow/inboxmerge/internal/config"
)

// Open builds the backend selected by cfg.Type.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case config.StorageMemory:
		return NewMemoryStore(), nil
	case config.StorageFile:
		return NewFileStore(cfg.Path)
	case config.StorageSQLite:
		return NewSQLiteStore(cfg.Path)
	case config.StorageKeyring:
		opts := KeyringOptions{}
		if cfg.Path != "" {
			opts.FileDir = filepath.Join(cfg.Path, "credentials")
		}
		return NewKeyringStore(opts)
	case config.StorageValkey:
		return NewValkeyStore(ValkeyOptions{
			Addr:       cfg.Valkey.URL,
			Password:   cfg.Valkey.Password,
			DB:         cfg.Valkey.DB,
			TLSEnabled: cfg.Valkey.TLSEnabled,
			KeyPrefix:  cfg.Valkey.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
