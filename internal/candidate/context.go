package candidate

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"

	"github.com/mind-engage/sashakt-gateway/internal/exam"
)

type ctxKey string

const ctxKeyCandidate ctxKey = "candidate"

func WithCandidate(ctx context.Context, c exam.Candidate) context.Context {
	return context.WithValue(ctx, ctxKeyCandidate, c)
}

func FromContext(ctx context.Context) (exam.Candidate, bool) {
	if v := ctx.Value(ctxKeyCandidate); v != nil {
		if c, ok := v.(exam.Candidate); ok {
			return c, true
		}
	}
	return exam.Candidate{}, false
}

// Attach puts the cookie candidate of the {slug} route into the request context.
// Requests without a valid cookie pass through untouched.
func Attach(s *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := chi.URLParam(r, "slug")
			c, err := s.FromRequest(r, slug)
			if err != nil {
				if err != ErrNoCandidate {
					glog.V(2).Infof("candidate cookie for %s rejected: %v", slug, err)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCandidate(r.Context(), c)))
		})
	}
}
