package candidate

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/sashakt-gateway/internal/exam"
)

var alice = exam.Candidate{CandidateUUID: "a-1", CandidateTestID: 5}

func cookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", CookieName)
	return nil
}

func TestCookieRoundTrip(t *testing.T) {
	s := NewService("secret", true)
	rec := httptest.NewRecorder()
	if err := s.SetCookie(rec, alice, "algebra-1"); err != nil {
		t.Fatal(err)
	}
	ck := cookieFrom(t, rec)
	if !ck.HttpOnly || !ck.Secure || ck.Path != "/api/tests/algebra-1" || ck.SameSite != http.SameSiteStrictMode {
		t.Fatalf("cookie attributes %+v", ck)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tests/algebra-1/session", nil)
	req.AddCookie(ck)
	got, err := s.FromRequest(req, "algebra-1")
	if err != nil || got != alice {
		t.Fatalf("got %+v err=%v", got, err)
	}
	if _, err := s.FromRequest(req, "physics-2"); err != ErrNoCandidate {
		t.Fatalf("cookie for another test accepted: %v", err)
	}
}

func TestCookieRejectsTamperingAndExpiry(t *testing.T) {
	s := NewService("secret", false)
	tok, err := s.Issue(alice, "algebra-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewService("other", false).Parse(tok); err == nil {
		t.Fatalf("token signed with another secret accepted")
	}

	s.now = func() time.Time { return time.Now().Add(4 * time.Hour) }
	if _, err := s.Parse(tok); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestAttach(t *testing.T) {
	s := NewService("secret", false)
	var seen exam.Candidate
	var ok bool
	r := chi.NewRouter()
	r.With(Attach(s)).Get("/api/tests/{slug}/session", func(w http.ResponseWriter, r *http.Request) {
		seen, ok = FromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	_ = s.SetCookie(rec, alice, "algebra-1")
	req := httptest.NewRequest(http.MethodGet, "/api/tests/algebra-1/session", nil)
	req.AddCookie(cookieFrom(t, rec))
	r.ServeHTTP(httptest.NewRecorder(), req)
	if !ok || seen != alice {
		t.Fatalf("candidate not attached: %+v %v", seen, ok)
	}

	ok = false
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tests/algebra-1/session", nil))
	if ok {
		t.Fatalf("candidate attached without a cookie")
	}
}

func TestClearCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	NewService("secret", false).ClearCookie(rec, "algebra-1")
	if ck := cookieFrom(t, rec); ck.MaxAge >= 0 {
		t.Fatalf("cookie not expired: %+v", ck)
	}
}
