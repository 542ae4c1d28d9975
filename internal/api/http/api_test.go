package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	api "github.com/mind-engage/sashakt-gateway/internal/api/http"
	"github.com/mind-engage/sashakt-gateway/internal/backend"
	"github.com/mind-engage/sashakt-gateway/internal/candidate"
	"github.com/mind-engage/sashakt-gateway/internal/exam"
	"github.com/mind-engage/sashakt-gateway/internal/grading"
	"github.com/mind-engage/sashakt-gateway/internal/storage"
)

/* ---- fakes ---- */

const questionsJSON = `{
  "question_pagination": 1,
  "question_revisions": [
    {"id": 11, "question_type": "single-choice", "is_mandatory": true,
     "options": [{"id": 101, "key": "A"}, {"id": 102, "key": "B"}],
     "marking_scheme": {"correct": 4, "wrong": -1}},
    {"id": 12, "question_type": "multi-choice",
     "options": [{"id": 201, "key": "A"}, {"id": 202, "key": "B"}],
     "marking_scheme": {"correct": 4, "wrong": -1}}
  ]
}`

// fakeBackend plays the exam backend over HTTP so the real client is exercised.
type fakeBackend struct {
	mu           sync.Mutex
	details      string
	failAnswers  bool
	submitStatus int
	submitBody   string
	lookupStatus int
	answers      []map[string]any
	submitted    int
	fetched      int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		details: `{"id": 7, "name": "Demo", "link": "demo", "omr": "OPTIONAL",
		           "show_feedback_on_completion": true, "question_pagination": 1}`,
	}
}

// set mutates the fake under its lock; requests are served concurrently with the test.
func (f *fakeBackend) set(fn func(*fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) saved() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.answers...)
}

func (f *fakeBackend) questionFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetched
}

func (f *fakeBackend) submitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := strings.TrimPrefix(r.URL.Path, "/api/v1")
	switch {
	case p == "/test/public/demo":
		io.WriteString(w, f.details)
	case p == "/test/public/time_left/demo":
		io.WriteString(w, `{"time_left": 120}`)
	case p == "/candidate/start_test/":
		io.WriteString(w, `{"candidate_uuid": "c0ffee", "candidate_test_id": 42}`)
	case p == "/candidate/time_left/42":
		io.WriteString(w, `{"time_left": 3600}`)
	case p == "/candidate/test_questions/42/":
		f.fetched++
		io.WriteString(w, questionsJSON)
	case p == "/candidate/submit_answer/42/":
		if f.failAnswers {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.answers = append(f.answers, body)
		io.WriteString(w, `{}`)
	case p == "/candidate/submit_test/42/":
		f.submitted++
		if f.submitStatus != 0 {
			w.WriteHeader(f.submitStatus)
			io.WriteString(w, f.submitBody)
			return
		}
		io.WriteString(w, `{}`)
	case p == "/candidate/result/42/":
		io.WriteString(w, `{"correct_answer": 1, "incorrect_answer": 0, "total_questions": 2,
		                    "marks_obtained": 4, "marks_maximum": 8}`)
	case p == "/candidate/review-feedback/42/":
		io.WriteString(w, `[{"question_revision_id": 11, "submitted_answer": "[101]", "correct_answer": [101]},
		                    {"question_revision_id": 12, "submitted_answer": null, "correct_answer": [201]}]`)
	case p == "/entity/" || strings.HasPrefix(p, "/location/"):
		if f.lookupStatus != 0 {
			w.WriteHeader(f.lookupStatus)
			return
		}
		io.WriteString(w, `{"items": [{"id": 1, "name": "Pune"}]}`)
	case r.URL.Path == "/certs/1.pdf":
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4")
	default:
		http.NotFound(w, r)
	}
}

type env struct {
	t       *testing.T
	fb      *fakeBackend
	gw      *httptest.Server
	client  *http.Client
	records *storage.MemoryStore
}

var cand = exam.Candidate{CandidateUUID: "c0ffee", CandidateTestID: 42}

func newEnv(t *testing.T) *env {
	t.Helper()
	fb := newFakeBackend()
	bsrv := httptest.NewServer(fb)
	t.Cleanup(bsrv.Close)

	bc, err := backend.New(backend.Config{BaseURL: bsrv.URL + "/api/v1"})
	if err != nil {
		t.Fatal(err)
	}
	records := storage.NewMemoryStore()
	d := &api.Deps{
		Backend:   bc,
		Sessions:  exam.NewRegistry(records),
		Submitter: exam.NewSubmitter(bc),
		Cookies:   candidate.NewService("test-secret", false),
		Reviewer:  grading.NewReviewer(),
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	api.Mount(r, d)
	api.MountAdmin(r, d, "admin", string(hash), nil)
	gw := httptest.NewServer(r)
	t.Cleanup(gw.Close)

	jar, _ := cookiejar.New(nil)
	return &env{t: t, fb: fb, gw: gw, client: &http.Client{Jar: jar}, records: records}
}

func (e *env) do(method, path string, body any) (int, map[string]any) {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, e.gw.URL+path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := e.client.Do(req)
	if err != nil {
		e.t.Fatal(err)
	}
	defer res.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res.StatusCode, out
}

func (e *env) start() {
	e.t.Helper()
	if code, body := e.do("POST", "/api/tests/demo/start", map[string]any{"device_info": "test"}); code != 200 {
		e.t.Fatalf("start: %d %v", code, body)
	}
}

func answer(qid int64, extra map[string]any) map[string]any {
	m := map[string]any{"candidate": cand, "question_revision_id": qid}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

/* ---- tests ---- */

func TestSessionRequiresCookie(t *testing.T) {
	e := newEnv(t)
	code, body := e.do("GET", "/api/tests/demo/session", nil)
	if code != http.StatusUnauthorized || body["success"] != false {
		t.Fatalf("got %d %v", code, body)
	}
}

func TestStartThenLoadSession(t *testing.T) {
	e := newEnv(t)
	e.start()

	code, body := e.do("GET", "/api/tests/demo/session", nil)
	if code != 200 {
		t.Fatalf("session: %d %v", code, body)
	}
	if body["page_count"] != 2.0 || body["current_page"] != 1.0 {
		t.Fatalf("paging: %v %v", body["page_count"], body["current_page"])
	}
	if qs := body["questions"].([]any); len(qs) != 2 {
		t.Fatalf("questions: %d", len(qs))
	}
	if body["can_submit"] != false {
		t.Fatalf("can_submit before answering")
	}

	// a second start reuses the cookie
	_, again := e.do("POST", "/api/tests/demo/start", nil)
	if again["resumed"] != true {
		t.Fatalf("expected resumed start, got %v", again)
	}
}

func TestStartValidatesProfileForm(t *testing.T) {
	e := newEnv(t)
	e.fb.set(func(f *fakeBackend) {
		f.details = `{"id": 7, "link": "demo", "candidate_profile": true,
		  "form": {"id": 1, "name": "Profile", "fields": [
		    {"id": 1, "field_type": "email", "label": "Email", "name": "email", "is_required": true}]}}`
	})

	code, body := e.do("POST", "/api/tests/demo/start", map[string]any{"form_responses": map[string]any{}})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("got %d %v", code, body)
	}
	fields := body["fields"].(map[string]any)
	if fields["email"] != "Email is required" {
		t.Fatalf("fields: %v", fields)
	}

	code, _ = e.do("POST", "/api/tests/demo/start", map[string]any{
		"form_responses": map[string]any{"email": "a@b.co"},
	})
	if code != 200 {
		t.Fatalf("valid form rejected: %d", code)
	}
}

func TestAnswerSavesAndRollsBack(t *testing.T) {
	e := newEnv(t)
	e.start()

	code, body := e.do("POST", "/api/tests/demo/answer", answer(12, map[string]any{"option_id": 201}))
	if code != 200 {
		t.Fatalf("answer: %d %v", code, body)
	}
	if got := e.fb.saved()[0]["response"]; got != "[201]" {
		t.Fatalf("wire response = %v", got)
	}

	e.fb.set(func(f *fakeBackend) { f.failAnswers = true })
	code, body = e.do("POST", "/api/tests/demo/answer", answer(12, map[string]any{"option_id": 202}))
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
	if body["reverted"] != true || body["error"] != "Failed to save answer. Please try again." {
		t.Fatalf("body: %v", body)
	}
	sel := body["selection"].(map[string]any)
	if resp := sel["response"].([]any); len(resp) != 1 || resp[0] != 201.0 {
		t.Fatalf("not rolled back: %v", sel["response"])
	}

	got := exam.NewSessionStore(cand, e.records).Get(context.Background())
	if len(got) != 1 || !got[0].Response.Equal(exam.ChoiceResponse(201)) {
		t.Fatalf("stored: %+v", got)
	}
}

func TestAnswerRejectsForeignOrIncompleteBodies(t *testing.T) {
	e := newEnv(t)
	e.start()

	other := map[string]any{
		"candidate":            exam.Candidate{CandidateUUID: "someone-else", CandidateTestID: 42},
		"question_revision_id": 11,
		"option_id":            101,
	}
	if code, body := e.do("POST", "/api/tests/demo/answer", other); code != 401 || body["error"] != "Session mismatch" {
		t.Fatalf("mismatch: %d %v", code, body)
	}
	if code, body := e.do("POST", "/api/tests/demo/answer", answer(0, nil)); code != 400 || body["error"] != "Missing required fields" {
		t.Fatalf("missing: %d %v", code, body)
	}
	if code, _ := e.do("POST", "/api/tests/demo/answer", answer(11, map[string]any{"option_id": 999})); code != 400 {
		t.Fatalf("unknown option: %d", code)
	}
	if len(e.fb.saved()) != 0 {
		t.Fatalf("backend called %d times", len(e.fb.saved()))
	}
}

func TestBookmarkAndVisit(t *testing.T) {
	e := newEnv(t)
	e.start()

	if code, _ := e.do("POST", "/api/tests/demo/bookmark", answer(12, map[string]any{"bookmarked": true})); code != 200 {
		t.Fatalf("bookmark: %d", code)
	}
	code, body := e.do("POST", "/api/tests/demo/visit", answer(11, map[string]any{"time_spent": 5}))
	if code != 200 {
		t.Fatalf("visit: %d", code)
	}
	if sel := body["selection"].(map[string]any); sel["time_spent"] != 5.0 {
		t.Fatalf("visit selection: %v", sel)
	}
	if len(e.fb.saved()) != 1 {
		t.Fatalf("visit must stay local, backend saw %d calls", len(e.fb.saved()))
	}

	_, pal := e.do("GET", "/api/tests/demo/palette", nil)
	counts := pal["counts"].(map[string]any)
	if counts["bookmarked"] != 1.0 || counts["answered"] != 0.0 {
		t.Fatalf("counts: %v", counts)
	}
}

func TestPageNextNeedsMandatoryAnswers(t *testing.T) {
	e := newEnv(t)
	e.start()

	code, body := e.do("POST", "/api/tests/demo/page", map[string]any{"direction": "next"})
	if code != http.StatusConflict || body["current_page"] != 1.0 {
		t.Fatalf("got %d %v", code, body)
	}
	e.do("POST", "/api/tests/demo/answer", answer(11, map[string]any{"option_id": 101}))
	code, body = e.do("POST", "/api/tests/demo/page", map[string]any{"direction": "next"})
	if code != 200 || body["current_page"] != 2.0 || body["last_page"] != true {
		t.Fatalf("got %d %v", code, body)
	}

	// the page survives a reload
	_, sess := e.do("GET", "/api/tests/demo/session", nil)
	if sess["current_page"] != 2.0 {
		t.Fatalf("current_page after reload = %v", sess["current_page"])
	}
}

func TestOMRSheet(t *testing.T) {
	e := newEnv(t)
	e.start()
	code, body := e.do("GET", "/api/tests/demo/omr", nil)
	if code != 200 || len(body["entries"].([]any)) != 2 {
		t.Fatalf("got %d %v", code, body)
	}

	e.fb.set(func(f *fakeBackend) { f.details = `{"id": 7, "link": "demo", "omr": "NEVER"}` })
	if code, _ := e.do("GET", "/api/tests/demo/omr", nil); code != 404 {
		t.Fatalf("disabled omr: %d", code)
	}
}

func TestSubmitTest(t *testing.T) {
	e := newEnv(t)
	e.start()

	if code, _ := e.do("POST", "/api/tests/demo/submit", nil); code != http.StatusConflict {
		t.Fatalf("submit with mandatory unanswered: %d", code)
	}
	if e.fb.submitCalls() != 0 {
		t.Fatalf("backend submit called")
	}

	e.do("POST", "/api/tests/demo/answer", answer(11, map[string]any{"option_id": 101}))
	code, body := e.do("POST", "/api/tests/demo/submit", nil)
	if code != http.StatusConflict || body["error"] != exam.ErrNotLastPage.Error() {
		t.Fatalf("submit from page 1 of 2: %d %v", code, body)
	}
	if e.fb.submitCalls() != 0 {
		t.Fatalf("backend submit called before the last page")
	}

	e.do("POST", "/api/tests/demo/page", map[string]any{"direction": "next"})
	code, body = e.do("POST", "/api/tests/demo/submit", nil)
	if code != 200 || body["submit_test"] != true {
		t.Fatalf("submit: %d %v", code, body)
	}
	if res := body["result"].(map[string]any); res["correct_answer"] != 1.0 {
		t.Fatalf("result: %v", res)
	}
	fb := body["feedback"].([]any)
	first := fb[0].(map[string]any)
	if sub := first["submitted_answer"].([]any); len(sub) != 1 || sub[0] != 101.0 {
		t.Fatalf("feedback not normalised: %v", first)
	}
	summary := body["review"].(map[string]any)["summary"].(map[string]any)
	if summary["marks"] != 4.0 {
		t.Fatalf("summary: %v", summary)
	}

	recs, _ := e.records.List(context.Background())
	if len(recs) != 0 {
		t.Fatalf("session record kept after submit: %v", recs)
	}
	if code, _ := e.do("GET", "/api/tests/demo/session", nil); code != 401 {
		t.Fatalf("cookie survived submit: %d", code)
	}
}

func TestSubmitTestBackendErrors(t *testing.T) {
	e := newEnv(t)
	e.start()
	e.do("POST", "/api/tests/demo/answer", answer(11, map[string]any{"option_id": 101}))
	e.do("POST", "/api/tests/demo/page", map[string]any{"direction": "next"})

	e.fb.set(func(f *fakeBackend) { f.submitStatus, f.submitBody = 400, `{"detail": "Test already submitted"}` })
	code, body := e.do("POST", "/api/tests/demo/submit", nil)
	if code != 400 || body["error"] != "Test already submitted" || body["submit_test"] != false {
		t.Fatalf("400: %d %v", code, body)
	}

	e.fb.set(func(f *fakeBackend) { f.submitStatus, f.submitBody = 502, "" })
	code, body = e.do("POST", "/api/tests/demo/submit", nil)
	if code != 200 || body["success"] != false || body["submit_test"] != false {
		t.Fatalf("502: %d %v", code, body)
	}

	// the attempt is still live after a failed submit
	if code, _ := e.do("GET", "/api/tests/demo/session", nil); code != 200 {
		t.Fatalf("session after failed submit: %d", code)
	}
}

func TestSubmitFromOMRSheetSkipsLastPageRule(t *testing.T) {
	e := newEnv(t)
	e.start()
	e.do("POST", "/api/tests/demo/answer", answer(11, map[string]any{"option_id": 101}))

	code, body := e.do("POST", "/api/tests/demo/submit", map[string]any{"omr": true})
	if code != 200 || body["submit_test"] != true {
		t.Fatalf("optional sheet submit from page 1: %d %v", code, body)
	}
}

func TestSubmitFromOMRSheetNeedsSheetMode(t *testing.T) {
	e := newEnv(t)
	e.fb.set(func(f *fakeBackend) { f.details = `{"id": 7, "link": "demo", "omr": "NEVER"}` })
	e.start()
	e.do("POST", "/api/tests/demo/answer", answer(11, map[string]any{"option_id": 101}))

	code, body := e.do("POST", "/api/tests/demo/submit", map[string]any{"omr": true})
	if code != http.StatusConflict || body["current_page"] != 1.0 {
		t.Fatalf("sheet submit without a sheet: %d %v", code, body)
	}
}

func TestSubmitSheetOnlyTestHasNoLastPage(t *testing.T) {
	e := newEnv(t)
	e.fb.set(func(f *fakeBackend) { f.details = `{"id": 7, "link": "demo", "omr": "ALWAYS"}` })
	e.start()
	e.do("POST", "/api/tests/demo/answer", answer(11, map[string]any{"option_id": 101}))
	if code, body := e.do("POST", "/api/tests/demo/submit", nil); code != 200 {
		t.Fatalf("sheet-only test submit: %d %v", code, body)
	}
}

func TestReattemptClearsEverything(t *testing.T) {
	e := newEnv(t)
	e.start()
	e.do("POST", "/api/tests/demo/answer", answer(12, map[string]any{"option_id": 201}))

	if code, _ := e.do("POST", "/api/tests/demo/reattempt", nil); code != 200 {
		t.Fatalf("reattempt: %d", code)
	}
	recs, _ := e.records.List(context.Background())
	if len(recs) != 0 {
		t.Fatalf("records left: %d", len(recs))
	}
	if code, _ := e.do("GET", "/api/tests/demo/session", nil); code != 401 {
		t.Fatalf("cookie survived reattempt")
	}
}

func TestLookups(t *testing.T) {
	e := newEnv(t)
	code, body := e.do("GET", "/api/locations/state?name=Ma", nil)
	if code != 200 || len(body["items"].([]any)) != 1 {
		t.Fatalf("got %d %v", code, body)
	}
	if code, _ := e.do("GET", "/api/locations/planet", nil); code != 404 {
		t.Fatalf("unknown kind: %d", code)
	}

	e.fb.set(func(f *fakeBackend) { f.lookupStatus = 503 })
	code, body = e.do("GET", "/api/entities", nil)
	if code != 503 || len(body["items"].([]any)) != 0 {
		t.Fatalf("failed lookup: %d %v", code, body)
	}
}

func TestCertificateDownload(t *testing.T) {
	e := newEnv(t)

	res, err := e.client.Post(e.gw.URL+"/api/certificate", "application/json",
		strings.NewReader(`{"certificate_download_url": "/certs/1.pdf"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	if res.StatusCode != 200 || string(b) != "%PDF-1.4" {
		t.Fatalf("got %d %q", res.StatusCode, b)
	}
	if cd := res.Header.Get("Content-Disposition"); cd != `attachment; filename="certificate.pdf"` {
		t.Fatalf("disposition %q", cd)
	}

	cases := []struct {
		body map[string]any
		code int
		msg  string
	}{
		{map[string]any{}, 400, "Missing certificate URL"},
		{map[string]any{"certificate_download_url": "ftp://x/y"}, 400, "Invalid certificate URL"},
		{map[string]any{"certificate_download_url": "/certs/missing.pdf"}, 404, "Backend error: 404"},
	}
	for _, tc := range cases {
		code, body := e.do("POST", "/api/certificate", tc.body)
		if code != tc.code || body["error"] != tc.msg {
			t.Errorf("%v: got %d %v", tc.body, code, body)
		}
	}
}

func TestAdminSessions(t *testing.T) {
	e := newEnv(t)
	e.start()
	e.do("POST", "/api/tests/demo/answer", answer(12, map[string]any{"option_id": 201}))

	if code, _ := e.do("GET", "/admin/sessions", nil); code != 401 {
		t.Fatalf("no auth: %d", code)
	}

	req, _ := http.NewRequest("GET", e.gw.URL+"/admin/sessions", nil)
	req.SetBasicAuth("admin", "s3cret")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var out struct {
		Items []struct {
			Key        string `json:"key"`
			Selections int    `json:"selections"`
		} `json:"items"`
	}
	_ = json.NewDecoder(res.Body).Decode(&out)
	if res.StatusCode != 200 || len(out.Items) != 1 || out.Items[0].Key != exam.SessionKey(cand) || out.Items[0].Selections != 1 {
		t.Fatalf("got %d %+v", res.StatusCode, out)
	}

	del, _ := http.NewRequest("DELETE", e.gw.URL+"/admin/sessions/"+exam.SessionKey(cand), nil)
	del.SetBasicAuth("admin", "s3cret")
	dres, err := http.DefaultClient.Do(del)
	if err != nil {
		t.Fatal(err)
	}
	dres.Body.Close()
	if dres.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", dres.StatusCode)
	}
}

func TestAdminDeleteResetsLiveSession(t *testing.T) {
	e := newEnv(t)
	e.start()
	e.do("POST", "/api/tests/demo/answer", answer(12, map[string]any{"option_id": 201}))
	fetched := e.fb.questionFetches()

	del, _ := http.NewRequest("DELETE", e.gw.URL+"/admin/sessions/"+exam.SessionKey(cand), nil)
	del.SetBasicAuth("admin", "s3cret")
	res, err := http.DefaultClient.Do(del)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", res.StatusCode)
	}

	code, body := e.do("GET", "/api/tests/demo/session", nil)
	if code != 200 {
		t.Fatalf("session after delete: %d %v", code, body)
	}
	if sels, _ := body["selections"].([]any); len(sels) != 0 {
		t.Fatalf("deleted session still has selections: %v", body)
	}

	e.do("POST", "/api/tests/demo/answer", answer(11, map[string]any{"option_id": 101}))
	if e.fb.questionFetches() != fetched+1 {
		t.Fatalf("questions not refetched after delete: %d -> %d", fetched, e.fb.questionFetches())
	}
}
