// Package store defines the credential store contract and its backends.
// The user directory is a single table keyed by integer id, with a secondary
// lookup by username and an atomic counter record used for id allocation.
// All operations are single-item and strongly consistent.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist. Callers should use
// errors.Is to match it.
var ErrNotFound = errors.New("not found")

// counterID is the reserved record id that holds the user id counter.
// User ids start at 1 and are never reused.
const counterID = 0

// UserItem is the durable user record. PasswordHash is write-only from the
// caller's perspective; read paths above the store must redact it.
type UserItem struct {
	ID           int
	Username     string
	PasswordHash string
	Role         string
	Permissions  []string
	Name         string
	Email        string
	Phone        string
	Website      string
}

// Store is the credential store contract. Implementations must not enforce
// username uniqueness themselves; the directory service checks it at write
// time via QueryByUsername.
type Store interface {
	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id int) (*UserItem, error)

	// QueryByUsername returns the record with the given username via the
	// secondary index, or ErrNotFound.
	QueryByUsername(ctx context.Context, username string) (*UserItem, error)

	// Put writes the full record, overwriting any existing one with the same
	// id. Empty-valued attributes are not stored.
	Put(ctx context.Context, item *UserItem) error

	// Update applies a partial update to the record with the given id and
	// returns the attributes actually changed. A missing record yields
	// ErrNotFound.
	Update(ctx context.Context, id int, attrs map[string]any) (map[string]any, error)

	// Delete removes the record if it exists. Deleting a missing id is not an
	// error.
	Delete(ctx context.Context, id int) error

	// Scan returns all user records. The counter record is never included.
	Scan(ctx context.Context) ([]*UserItem, error)

	// NextID atomically increments the counter record and returns the new
	// value. Concurrent callers always receive distinct ids.
	NextID(ctx context.Context) (int, error)
}
