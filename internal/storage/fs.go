package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// FSStore keeps one JSON envelope file per key under base.
// Versions are enforced in-process; run a single gateway per base directory.
type FSStore struct {
	base string
	mu   sync.Mutex
	now  func() time.Time
}

type envelope struct {
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Data      []byte    `json:"data"`
}

func NewFSStore(base string) (*FSStore, error) {
	if base == "" {
		base = "./data/sessions"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create session dir %s", base)
	}
	return &FSStore{base: base, now: time.Now}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.base, filepath.Clean(key)+".json")
}

func (s *FSStore) read(key string) (Record, error) {
	b, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, errors.Wrapf(err, "read %s", key)
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		// a torn envelope still surfaces as a record; the caller decides what corrupt data means
		return Record{Key: key, Data: b, Version: 0}, nil
	}
	return Record{Key: key, Data: env.Data, Version: env.Version, UpdatedAt: env.UpdatedAt}, nil
}

func (s *FSStore) Load(_ context.Context, key string) (Record, error) {
	if err := checkKey(key); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(key)
}

func (s *FSStore) Save(_ context.Context, key string, data []byte, version int64) (int64, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.read(key)
	switch {
	case errors.Is(err, ErrNotFound):
		if version != 0 {
			return 0, ErrConflict
		}
	case err != nil:
		return 0, err
	case cur.Version != version:
		return 0, ErrConflict
	}

	env := envelope{Version: version + 1, UpdatedAt: s.now(), Data: data}
	buf, err := json.Marshal(env)
	if err != nil {
		return 0, errors.Wrap(err, "encode envelope")
	}
	tmp, err := os.CreateTemp(s.base, key+".*.tmp")
	if err != nil {
		return 0, errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return 0, errors.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		return 0, errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return 0, errors.Wrapf(err, "replace %s", key)
	}
	return env.Version, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

func (s *FSStore) List(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.base)
	if err != nil {
		return nil, errors.Wrap(err, "list session dir")
	}
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		r, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
