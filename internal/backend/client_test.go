package backend_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mind-engage/sashakt-gateway/internal/backend"
	"github.com/mind-engage/sashakt-gateway/internal/exam"
)

var cand = exam.Candidate{CandidateUUID: "uuid-1", CandidateTestID: 42}

func newClient(t *testing.T, h http.HandlerFunc) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := backend.New(backend.Config{BaseURL: srv.URL + "/api/v1"})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	if _, err := backend.New(backend.Config{BaseURL: "not a url"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSubmitAnswer_WireFormat(t *testing.T) {
	var got map[string]any
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/candidate/submit_answer/42/" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("candidate_uuid") != "uuid-1" {
			t.Errorf("candidate_uuid=%q", r.URL.Query().Get("candidate_uuid"))
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing X-Request-ID")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"correct_answer":"[7]"}`)
	})

	ack, err := c.SubmitAnswer(context.Background(), cand, exam.AnswerPayload{
		QuestionRevisionID: 3,
		Response:           exam.ChoiceResponse(1, 2),
		Visited:            true,
		IsReviewed:         true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got["response"] != "[1,2]" || got["question_revision_id"] != float64(3) || got["is_reviewed"] != true {
		t.Fatalf("body=%v", got)
	}
	if len(ack.CorrectAnswer) != 1 || ack.CorrectAnswer[0] != 7 {
		t.Fatalf("ack=%+v", ack)
	}
}

func TestSubmitAnswer_NullAndText(t *testing.T) {
	var bodies []map[string]any
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		bodies = append(bodies, m)
	})
	ctx := context.Background()
	if _, err := c.SubmitAnswer(ctx, cand, exam.AnswerPayload{QuestionRevisionID: 1, Bookmarked: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SubmitAnswer(ctx, cand, exam.AnswerPayload{QuestionRevisionID: 2, Response: exam.TextResponse("essay")}); err != nil {
		t.Fatal(err)
	}
	if v, ok := bodies[0]["response"]; !ok || v != nil {
		t.Fatalf("empty response should be null, got %v", bodies[0])
	}
	if bodies[1]["response"] != "essay" {
		t.Fatalf("text response=%v", bodies[1]["response"])
	}
}

func TestStatusErrors(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail":"Test already submitted"}`)
	})
	err := c.SubmitTest(context.Background(), cand)
	if backend.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("status=%d err=%v", backend.StatusCode(err), err)
	}
	if backend.Detail(err) != "Test already submitted" {
		t.Fatalf("detail=%q", backend.Detail(err))
	}
}

func TestTransportErrorHasNoStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := backend.New(backend.Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.TimeLeft(context.Background(), cand)
	if err == nil || backend.StatusCode(err) != 0 {
		t.Fatalf("want transport error, got %v", err)
	}
}

func TestMalformedBodyIsAnError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"question_revisions": [`)
	})
	if _, err := c.Questions(context.Background(), cand); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestReviewFeedbackIsNormalised(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/candidate/review-feedback/42/") {
			t.Errorf("path=%s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `[{"question_revision_id":1,"submitted_answer":"[102]","correct_answer":[102]},
			{"question_revision_id":2,"submitted_answer":null,"correct_answer":[3]}]`)
	})
	fb, err := c.ReviewFeedback(context.Background(), cand)
	if err != nil {
		t.Fatal(err)
	}
	if !fb[0].SubmittedAnswer.Equal(exam.ChoiceResponse(102)) || fb[1].SubmittedAnswer.Kind != exam.KindChoice {
		t.Fatalf("feedback=%+v", fb)
	}
}

func TestLookupForwardsKnownFilters(t *testing.T) {
	var q url.Values
	var path string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q, path = r.URL.Query(), r.URL.Path
		_, _ = io.WriteString(w, `{"items":[{"id":1,"name":"Pune"}]}`)
	})
	items, err := c.Lookup(context.Background(), backend.LookupDistrict, url.Values{
		"name": {"Pu"}, "state_ids": {"4"}, "district_ids": {"9"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if path != "/api/v1/location/district/" || q.Get("size") != "50" || q.Get("state_ids") != "4" || q.Has("district_ids") {
		t.Fatalf("path=%s query=%v", path, q)
	}
	if len(items) != 1 {
		t.Fatalf("items=%d", len(items))
	}
	if _, err := c.Lookup(context.Background(), "country", nil); err != backend.ErrUnknownLookup {
		t.Fatalf("want ErrUnknownLookup, got %v", err)
	}
}

func TestCertificateResolvesAgainstOrigin(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media/cert.pdf" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF")
	})
	res, err := c.Certificate(context.Background(), "/media/cert.pdf")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	if string(b) != "%PDF" {
		t.Fatalf("body=%q", b)
	}
	if _, err := c.Certificate(context.Background(), "media/cert.pdf"); err != backend.ErrBadReference {
		t.Fatalf("want ErrBadReference, got %v", err)
	}
}

func TestStartTest(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req backend.StartRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.TestID != 9 || req.DeviceInfo == "" {
			t.Errorf("request=%+v", req)
		}
		_, _ = io.WriteString(w, `{"candidate_uuid":"abc","candidate_test_id":77}`)
	})
	got, err := c.StartTest(context.Background(), backend.StartRequest{TestID: 9, DeviceInfo: "firefox"})
	if err != nil {
		t.Fatal(err)
	}
	if got.CandidateTestID != 77 || got.CandidateUUID != "abc" {
		t.Fatalf("candidate=%+v", got)
	}
}

func TestCertificateStaysOnKnownOriginsWithoutToken(t *testing.T) {
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"SERVICE-SECRET","token_type":"bearer","expires_in":3600}`)
	}))
	t.Cleanup(tokens.Close)

	var foreignHits int
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignHits++
		_, _ = io.WriteString(w, "%PDF")
	}))
	t.Cleanup(foreign.Close)

	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a := r.Header.Get("Authorization"); a != "" {
			t.Errorf("certificate host got Authorization=%q", a)
		}
		_, _ = io.WriteString(w, "%PDF")
	}))
	t.Cleanup(files.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(r.URL.Path, "/api/v1/") {
			if auth != "Bearer SERVICE-SECRET" {
				t.Errorf("api call without service token: %q", auth)
			}
			_, _ = io.WriteString(w, `{"time_left": 60}`)
			return
		}
		if auth != "" {
			t.Errorf("certificate download got Authorization=%q", auth)
		}
		_, _ = io.WriteString(w, "%PDF")
	}))
	t.Cleanup(api.Close)

	c, err := backend.New(backend.Config{
		BaseURL:            api.URL + "/api/v1",
		TokenURL:           tokens.URL,
		ClientID:           "gateway",
		ClientSecret:       "x",
		CertificateOrigins: []string{files.URL},
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := c.TimeLeft(ctx, cand); err != nil {
		t.Fatal(err)
	}

	for _, ref := range []string{"/media/cert.pdf", api.URL + "/media/cert.pdf", files.URL + "/c/1.pdf"} {
		res, err := c.Certificate(ctx, ref)
		if err != nil {
			t.Fatalf("%s: %v", ref, err)
		}
		res.Body.Close()
	}

	for _, ref := range []string{foreign.URL + "/steal", "//" + strings.TrimPrefix(foreign.URL, "http://") + "/steal"} {
		if _, err := c.Certificate(ctx, ref); err != backend.ErrBadReference {
			t.Errorf("%s: want ErrBadReference, got %v", ref, err)
		}
	}
	if foreignHits != 0 {
		t.Fatalf("foreign host contacted %d times", foreignHits)
	}
}
