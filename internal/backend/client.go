// Package backend talks to the remote test backend that owns test definitions,
// candidate records and grading.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/oauth2/clientcredentials"
)

type Config struct {
	BaseURL string
	// Optional service credentials; without TokenURL requests go out unauthenticated.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration

	// Extra origins ("https://files.example.org") certificates may be downloaded from,
	// besides the backend's own.
	CertificateOrigins []string
}

type Client struct {
	base    *url.URL
	http    *http.Client
	files   *http.Client // certificate downloads; never carries the service token
	origins map[string]bool
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("invalid backend url %q", cfg.BaseURL)
	}
	h := &http.Client{}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		h = cc.Client(context.Background())
	}
	files := &http.Client{}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
		files.Timeout = cfg.Timeout
	}
	origins := map[string]bool{originOf(base): true}
	for _, o := range cfg.CertificateOrigins {
		u, err := url.Parse(strings.TrimRight(o, "/"))
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, errors.Errorf("invalid certificate origin %q", o)
		}
		origins[originOf(u)] = true
	}
	return &Client{base: base, http: h, files: files, origins: origins}, nil
}

func originOf(u *url.URL) string {
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// StatusError is a non-2xx reply. Detail carries the backend's "detail" message when present.
type StatusError struct {
	Op     string
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

// StatusCode returns the backend status carried by err, or 0 when the request never got a reply.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Detail returns the backend's error message carried by err, if any.
func Detail(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Detail
	}
	return ""
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, target string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	id := middleware.GetReqID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", id)
	return req, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, c.endpoint(path, q), body)
	if err != nil {
		return errors.Wrap(err, op)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, op)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return statusError(op, res)
	}
	glog.V(3).Infof("backend %s %s -> %d", method, path, res.StatusCode)
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	// an empty 2xx body leaves out untouched
	if err := json.NewDecoder(res.Body).Decode(out); err != nil && err != io.EOF {
		return errors.Wrapf(err, "%s: decode response", op)
	}
	return nil
}

func statusError(op string, res *http.Response) error {
	se := &StatusError{Op: op, Status: res.StatusCode}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(b, &body) == nil && len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			se.Detail = s
		} else {
			se.Detail = string(body.Detail)
		}
	}
	glog.V(2).Infof("backend %s: %d", op, res.StatusCode)
	return se
}
