package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record version conflict")
	ErrBadKey   = errors.New("invalid record key")
)

// Record is one durable session payload. Version starts at 1 and increases on every save.
type Record struct {
	Key       string    `json:"key"`
	Data      []byte    `json:"data"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordStore persists opaque payloads under string keys with optimistic versioning.
type RecordStore interface {
	Load(ctx context.Context, key string) (Record, error)
	// Save writes data if the stored version still equals version (0 = must not exist yet)
	// and returns the new version. A mismatch yields ErrConflict.
	Save(ctx context.Context, key string, data []byte, version int64) (int64, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Record, error)
}

func checkKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return ErrBadKey
	}
	return nil
}
