// Package storage provides the device-local key-value store that holds the
// session token, the current user and the guest cart.
package storage

import (
	"context"

	"github.com/go-faster/errors"
)

// Keys used by the client.
const (
	KeyToken = "token"
	KeyUser  = "user"
	KeyCart  = "cart"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("key not found")

// Store is a process-wide key-value store. Writes are visible to subsequent
// reads as soon as Set or Delete returns. There is no cross-process change
// notification; the last writer wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
