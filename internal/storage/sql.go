package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// SQLStore keeps session records in the test_sessions table (see internal/db).
// The version column makes concurrent gateways safe: a stale writer gets ErrConflict.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Load(ctx context.Context, key string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_key, data, version, updated_at FROM test_sessions WHERE session_key=$1`, key)
	var (
		r       Record
		data    string
		updated int64
	)
	if err := row.Scan(&r.Key, &data, &r.Version, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, errors.Wrapf(err, "load session %s", key)
	}
	r.Data = []byte(data)
	r.UpdatedAt = time.Unix(updated, 0)
	return r, nil
}

func (s *SQLStore) Save(ctx context.Context, key string, data []byte, version int64) (int64, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	now := s.now().Unix()
	var (
		res sql.Result
		err error
	)
	if version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO test_sessions (session_key, data, version, updated_at)
			VALUES ($1,$2,1,$3)
			ON CONFLICT (session_key) DO NOTHING`,
			key, string(data), now)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE test_sessions SET data=$1, version=version+1, updated_at=$2
			WHERE session_key=$3 AND version=$4`,
			string(data), now, key, version)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "save session %s", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return 0, ErrConflict
	}
	return version + 1, nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM test_sessions WHERE session_key=$1`, key)
	return errors.Wrapf(err, "delete session %s", key)
}

func (s *SQLStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, data, version, updated_at FROM test_sessions ORDER BY session_key`)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			r       Record
			data    string
			updated int64
		)
		if err := rows.Scan(&r.Key, &data, &r.Version, &updated); err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		r.Data = []byte(data)
		r.UpdatedAt = time.Unix(updated, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}
