package exam

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/mind-engage/sashakt-gateway/internal/storage"
)

const maxWriteAttempts = 5

// SessionKey is the storage key of one attempt. It depends only on the attempt id
// so sessions of different attempts never collide.
func SessionKey(c Candidate) string {
	return fmt.Sprintf("sashakt-answers-%d", c.CandidateTestID)
}

// SessionStore holds the selections of one active attempt. Every mutation is an
// explicit read-modify-persist cycle against the record store.
type SessionStore struct {
	key       string
	candidate Candidate
	records   storage.RecordStore

	mu sync.Mutex
}

func NewSessionStore(c Candidate, records storage.RecordStore) *SessionStore {
	return &SessionStore{key: SessionKey(c), candidate: c, records: records}
}

func (s *SessionStore) Key() string          { return s.key }
func (s *SessionStore) Candidate() Candidate { return s.candidate }

// read returns the stored session and its version. A corrupt payload reads as an
// empty session at the stored version, so the next write overwrites it.
func (s *SessionStore) read(ctx context.Context) (TestSession, int64, error) {
	rec, err := s.records.Load(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return s.empty(), 0, nil
	}
	if err != nil {
		return TestSession{}, 0, err
	}
	ts, derr := DecodeSession(rec.Data)
	if derr != nil {
		glog.Warningf("session %s: discarding corrupt record: %v", s.key, derr)
		return s.empty(), rec.Version, nil
	}
	ts.Candidate = s.candidate
	return ts, rec.Version, nil
}

func (s *SessionStore) empty() TestSession {
	return TestSession{Candidate: s.candidate, Selections: []Selection{}, CurrentPage: 1}
}

// Session never fails: a missing, corrupt or unreadable record yields an empty session.
func (s *SessionStore) Session(ctx context.Context) TestSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, _, err := s.read(ctx)
	if err != nil {
		glog.Errorf("session %s: load failed: %v", s.key, err)
		return s.empty()
	}
	return ts
}

func (s *SessionStore) Get(ctx context.Context) []Selection {
	return s.Session(ctx).Selections
}

func (s *SessionStore) Page(ctx context.Context) int {
	return s.Session(ctx).CurrentPage
}

// modify runs fn on the current session and persists the result, retrying when
// another writer bumped the version in between.
func (s *SessionStore) modify(ctx context.Context, fn func(*TestSession)) (TestSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last TestSession
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		ts, version, err := s.read(ctx)
		if err != nil {
			return TestSession{}, errors.Wrapf(err, "session %s: load", s.key)
		}
		ts.Selections = cloneSelections(ts.Selections)
		fn(&ts)
		last = ts

		data, err := EncodeSession(ts)
		if err != nil {
			return ts, err
		}
		_, err = s.records.Save(ctx, s.key, data, version)
		if errors.Is(err, storage.ErrConflict) {
			glog.V(3).Infof("session %s: version %d conflict, retrying", s.key, version)
			continue
		}
		if err != nil {
			return ts, errors.Wrapf(err, "session %s: save", s.key)
		}
		return ts, nil
	}
	return last, errors.Wrapf(storage.ErrConflict, "session %s: gave up after %d attempts", s.key, maxWriteAttempts)
}

// Set replaces the selection list. Unlike Update, a persistence failure is returned.
func (s *SessionStore) Set(ctx context.Context, next []Selection) error {
	_, err := s.modify(ctx, func(ts *TestSession) {
		ts.Selections = dedupe(cloneSelections(next))
	})
	return err
}

// Update applies fn to a copy of the selections and persists the result. Persistence
// is best effort: failures are logged and the mutated list is still returned.
func (s *SessionStore) Update(ctx context.Context, fn func([]Selection) []Selection) []Selection {
	ts, err := s.modify(ctx, func(ts *TestSession) {
		ts.Selections = fn(ts.Selections)
	})
	if err != nil {
		glog.Errorf("session %s: update not persisted: %v", s.key, err)
	}
	return ts.Selections
}

func (s *SessionStore) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	_, err := s.modify(ctx, func(ts *TestSession) { ts.CurrentPage = page })
	return err
}

// Clear destroys the record; used on submission and reattempt.
func (s *SessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Wrapf(s.records.Delete(ctx, s.key), "session %s: clear", s.key)
}
