package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mind-engage/sashakt-gateway/internal/backend"
	"github.com/mind-engage/sashakt-gateway/internal/candidate"
	"github.com/mind-engage/sashakt-gateway/internal/exam"
	"github.com/mind-engage/sashakt-gateway/internal/grading"
)

// Backend is the part of the remote API the handlers use; *backend.Client implements it.
type Backend interface {
	exam.AnswerClient
	TestDetails(ctx context.Context, slug string) (exam.TestDetails, error)
	PublicTimeLeft(ctx context.Context, link string) (exam.TimeLeft, error)
	PretestTimeLeft(ctx context.Context, c exam.Candidate) (exam.TimeLeft, error)
	StartTest(ctx context.Context, req backend.StartRequest) (exam.Candidate, error)
	Questions(ctx context.Context, c exam.Candidate) (exam.TestQuestions, error)
	TimeLeft(ctx context.Context, c exam.Candidate) (exam.TimeLeft, error)
	SubmitTest(ctx context.Context, c exam.Candidate) error
	Result(ctx context.Context, c exam.Candidate) (exam.ResultData, error)
	ReviewFeedback(ctx context.Context, c exam.Candidate) ([]exam.FeedbackEntry, error)
	Lookup(ctx context.Context, kind string, filters url.Values) ([]json.RawMessage, error)
	Certificate(ctx context.Context, ref string) (*http.Response, error)
}

type Deps struct {
	Backend   Backend
	Sessions  *exam.Registry
	Submitter *exam.Submitter
	Cookies   *candidate.Service
	Reviewer  *grading.Reviewer
	Events    exam.EventSink // optional

	questions questionCache
}

func (d *Deps) emit(ctx context.Context, e exam.Event) {
	if d.Events != nil {
		d.Events.Record(ctx, e)
	}
}

// questionTTL matches the candidate cookie lifetime; an attempt older than that
// cannot reach the cache again.
const questionTTL = 3 * time.Hour

// questionCache keeps each attempt's question list so answer calls need no backend round trip.
// Entries are keyed by session key and expire after questionTTL.
type questionCache struct {
	mu    sync.RWMutex
	items map[string]cachedQuestions
}

type cachedQuestions struct {
	tq exam.TestQuestions
	at time.Time
}

func (c *questionCache) get(key string) (exam.TestQuestions, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok || time.Since(e.at) > questionTTL {
		return exam.TestQuestions{}, false
	}
	return e.tq, true
}

func (c *questionCache) put(key string, tq exam.TestQuestions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = map[string]cachedQuestions{}
	}
	now := time.Now()
	for k, e := range c.items {
		if now.Sub(e.at) > questionTTL {
			delete(c.items, k)
		}
	}
	c.items[key] = cachedQuestions{tq: tq, at: now}
}

func (c *questionCache) drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// testQuestions returns the cached questions of an attempt, fetching them on a miss.
func (d *Deps) testQuestions(ctx context.Context, c exam.Candidate) (exam.TestQuestions, error) {
	key := exam.SessionKey(c)
	if tq, ok := d.questions.get(key); ok {
		return tq, nil
	}
	tq, err := d.Backend.Questions(ctx, c)
	if err != nil {
		return exam.TestQuestions{}, err
	}
	if tq.QuestionRevisions == nil {
		tq.QuestionRevisions = []exam.Question{}
	}
	d.questions.put(key, tq)
	return tq, nil
}

func findQuestion(tq exam.TestQuestions, id int64) (exam.Question, bool) {
	for _, q := range tq.QuestionRevisions {
		if q.ID == id {
			return q, true
		}
	}
	return exam.Question{}, false
}

// finish forgets everything held for a completed or abandoned attempt.
func (d *Deps) finish(ctx context.Context, c exam.Candidate) error {
	d.forget(exam.SessionKey(c))
	return d.Sessions.Finish(ctx, c)
}

// forget drops the in-memory state of a session: cached questions, pending
// answer intents and its SessionStore.
func (d *Deps) forget(key string) {
	d.questions.drop(key)
	d.Submitter.Forget(key)
	d.Sessions.Drop(key)
}
