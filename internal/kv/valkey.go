package kv

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/valkey-io/valkey-go"
)

// ValkeyOptions configures the valkey backend.
type ValkeyOptions struct {
	Addr       string
	Password   string
	DB         int
	TLSEnabled bool
	KeyPrefix  string
}

// ValkeyStore keeps values in a valkey server under KeyPrefix.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore connects to the server at opts.Addr.
func NewValkeyStore(opts ValkeyOptions) (*ValkeyStore, error) {
	co := valkey.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
		SelectDB:    opts.DB,
	}
	if opts.TLSEnabled {
		co.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client, err := valkey.NewClient(co)
	if err != nil {
		return nil, fmt.Errorf("connecting to valkey: %w", err)
	}
	return NewValkeyStoreFromClient(client, opts.KeyPrefix), nil
}

// NewValkeyStoreFromClient wraps an existing client.
func NewValkeyStoreFromClient(client valkey.Client, prefix string) *ValkeyStore {
	return &ValkeyStore{client: client, prefix: prefix}
}

func (v *ValkeyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := v.client.Do(ctx, v.client.B().Get().Key(v.prefix+key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}
	return data, nil
}

func (v *ValkeyStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	cmd := v.client.B().Set().Key(v.prefix + key).Value(valkey.BinaryString(value)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func (v *ValkeyStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := v.client.Do(ctx, v.client.B().Del().Key(v.prefix+key).Build()).Error(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Close releases the client connections.
func (v *ValkeyStore) Close() error {
	v.client.Close()
	return nil
}
