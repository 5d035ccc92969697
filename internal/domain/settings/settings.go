package settings

import (
	"context"
	"strings"
)

// KeyServiceEnabled holds "true" while reminders may be delivered.
const KeyServiceEnabled = "service_enabled"

// Repository is a key/value settings store.
type Repository interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// DeliveryEnabled reads the delivery flag. A missing key means disabled.
func DeliveryEnabled(ctx context.Context, repo Repository) (bool, error) {
	v, ok, err := repo.Get(ctx, KeyServiceEnabled)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return strings.EqualFold(strings.TrimSpace(v), "true"), nil
}

// SetDeliveryEnabled writes the delivery flag.
func SetDeliveryEnabled(ctx context.Context, repo Repository, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	return repo.Set(ctx, KeyServiceEnabled, value)
}
