// Package candidate keeps the identity of an in-progress attempt in a signed,
// HTTP-only cookie scoped to the test's API path.
package candidate

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/mind-engage/sashakt-gateway/internal/exam"
)

const (
	CookieName = "sashakt-candidate"
	issuer     = "sashakt-gateway"
	defaultTTL = 3 * time.Hour
)

var ErrNoCandidate = errors.New("no candidate for this test")

type Service struct {
	hmac   []byte
	secure bool
	ttl    time.Duration
	now    func() time.Time
}

func NewService(secret string, secure bool) *Service {
	return &Service{hmac: []byte(secret), secure: secure, ttl: defaultTTL, now: time.Now}
}

type Claims struct {
	Candidate exam.Candidate `json:"candidate"`
	Slug      string         `json:"slug"`
	jwt.RegisteredClaims
}

func (s *Service) Issue(c exam.Candidate, slug string) (string, error) {
	now := s.now()
	claims := &Claims{
		Candidate: c,
		Slug:      slug,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   c.CandidateUUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.hmac)
}

func (s *Service) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, errors.Wrap(err, "parse candidate cookie")
	}
	if !token.Valid {
		return nil, ErrNoCandidate
	}
	c, _ := token.Claims.(*Claims)
	return c, nil
}

func cookiePath(slug string) string { return "/api/tests/" + slug }

// SetCookie stores c for the test identified by slug.
func (s *Service) SetCookie(w http.ResponseWriter, c exam.Candidate, slug string) error {
	tok, err := s.Issue(c, slug)
	if err != nil {
		return errors.Wrap(err, "sign candidate cookie")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tok,
		Path:     cookiePath(slug),
		Expires:  s.now().Add(s.ttl),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func (s *Service) ClearCookie(w http.ResponseWriter, slug string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     cookiePath(slug),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// FromRequest returns the candidate of the cookie when it is valid and was issued for slug.
func (s *Service) FromRequest(r *http.Request, slug string) (exam.Candidate, error) {
	ck, err := r.Cookie(CookieName)
	if err != nil || ck.Value == "" {
		return exam.Candidate{}, ErrNoCandidate
	}
	claims, err := s.Parse(ck.Value)
	if err != nil {
		return exam.Candidate{}, err
	}
	if claims.Slug != slug || !claims.Candidate.Valid() {
		return exam.Candidate{}, ErrNoCandidate
	}
	return claims.Candidate, nil
}
