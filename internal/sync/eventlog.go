// Package syncx keeps an append-only log of attempt analytics events.
package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mind-engage/sashakt-gateway/internal/exam"
)

type Event struct {
	Seq        int64  `json:"seq"`
	EventID    string `json:"event_id"`
	Type       string `json:"type"`
	SessionKey string `json:"session_key"`
	QuestionID int64  `json:"question_id"`
	DataJSON   string `json:"data"`
	CreatedAt  int64  `json:"created_at"`
}

type EventRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db, now: time.Now} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (event_id, typ, session_key, question_id, data, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		e.EventID, e.Type, e.SessionKey, e.QuestionID, e.DataJSON, r.now().Unix())
	return errors.Wrap(err, "append event")
}

// Record implements exam.EventSink. Analytics never fail a candidate action,
// so errors are only logged.
func (r *EventRepo) Record(ctx context.Context, e exam.Event) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		glog.Warningf("event %s: encode: %v", e.Type, err)
		data = []byte("null")
	}
	err = r.Append(ctx, Event{Type: e.Type, SessionKey: e.SessionKey, QuestionID: e.QuestionID, DataJSON: string(data)})
	if err != nil {
		glog.Warningf("event %s for %s not recorded: %v", e.Type, e.SessionKey, err)
	}
}

// Since returns events of one session with seq greater than after, oldest first.
func (r *EventRepo) Since(ctx context.Context, sessionKey string, after int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, event_id, typ, session_key, question_id, data, created_at
		 FROM event_log WHERE session_key=$1 AND seq>$2 ORDER BY seq LIMIT $3`,
		sessionKey, after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.EventID, &e.Type, &e.SessionKey, &e.QuestionID, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
