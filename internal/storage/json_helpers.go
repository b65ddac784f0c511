package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetJSON loads key and decodes it into v.
func GetJSON(ctx context.Context, b Backend, key string, v any) error {
	data, err := b.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, b Backend, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Set(ctx, key, data)
}

// DeleteIfExists deletes key, treating a missing key as success.
func DeleteIfExists(ctx context.Context, b Backend, key string) error {
	if err := b.Delete(ctx, key); err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}
