package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/mind-engage/sashakt-gateway/internal/exam"
)

func candidateQuery(c exam.Candidate) url.Values {
	return url.Values{"candidate_uuid": {c.CandidateUUID}}
}

func (c *Client) TestDetails(ctx context.Context, slug string) (exam.TestDetails, error) {
	var out exam.TestDetails
	err := c.do(ctx, "test details", http.MethodGet, "/test/public/"+url.PathEscape(slug), nil, nil, &out)
	return out, err
}

// PublicTimeLeft is the countdown until a scheduled test opens.
func (c *Client) PublicTimeLeft(ctx context.Context, link string) (exam.TimeLeft, error) {
	var out exam.TimeLeft
	err := c.do(ctx, "pre-test time left", http.MethodGet, "/test/public/time_left/"+url.PathEscape(link), nil, nil, &out)
	return out, err
}

// PretestTimeLeft is the candidate-specific wait before the questions unlock.
func (c *Client) PretestTimeLeft(ctx context.Context, cand exam.Candidate) (exam.TimeLeft, error) {
	var out exam.TimeLeft
	path := fmt.Sprintf("/candidate/pretest_timer/%d", cand.CandidateTestID)
	err := c.do(ctx, "pretest timer", http.MethodGet, path, candidateQuery(cand), nil, &out)
	return out, err
}

type StartRequest struct {
	TestID        int64          `json:"test_id"`
	DeviceInfo    string         `json:"device_info"`
	EntityID      *int64         `json:"entity_id,omitempty"`
	FormResponses map[string]any `json:"form_responses,omitempty"`
}

func (c *Client) StartTest(ctx context.Context, req StartRequest) (exam.Candidate, error) {
	var out exam.Candidate
	if err := c.do(ctx, "start test", http.MethodPost, "/candidate/start_test/", nil, req, &out); err != nil {
		return exam.Candidate{}, err
	}
	if !out.Valid() {
		return exam.Candidate{}, errors.New("start test: backend returned no candidate")
	}
	return out, nil
}

func (c *Client) Questions(ctx context.Context, cand exam.Candidate) (exam.TestQuestions, error) {
	var out exam.TestQuestions
	path := fmt.Sprintf("/candidate/test_questions/%d/", cand.CandidateTestID)
	err := c.do(ctx, "test questions", http.MethodGet, path, candidateQuery(cand), nil, &out)
	return out, err
}

func (c *Client) TimeLeft(ctx context.Context, cand exam.Candidate) (exam.TimeLeft, error) {
	var out exam.TimeLeft
	path := fmt.Sprintf("/candidate/time_left/%d", cand.CandidateTestID)
	err := c.do(ctx, "time left", http.MethodGet, path, candidateQuery(cand), nil, &out)
	return out, err
}

// answerWire is the submit-answer body. The backend stores choice answers as a
// JSON-encoded string, so [3,4] travels as "[3,4]".
type answerWire struct {
	QuestionRevisionID int64   `json:"question_revision_id"`
	Response           *string `json:"response"`
	Visited            bool    `json:"visited"`
	Bookmarked         bool    `json:"bookmarked"`
	IsReviewed         bool    `json:"is_reviewed"`
}

func wireResponse(r exam.Response) (*string, error) {
	switch r.Kind {
	case exam.KindChoice:
		b, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		s := string(b)
		return &s, nil
	case exam.KindText:
		s := r.Text
		return &s, nil
	default:
		return nil, nil
	}
}

// SubmitAnswer implements exam.AnswerClient.
func (c *Client) SubmitAnswer(ctx context.Context, cand exam.Candidate, p exam.AnswerPayload) (exam.AnswerAck, error) {
	resp, err := wireResponse(p.Response)
	if err != nil {
		return exam.AnswerAck{}, errors.Wrap(err, "submit answer: encode response")
	}
	body := answerWire{
		QuestionRevisionID: p.QuestionRevisionID,
		Response:           resp,
		Visited:            p.Visited,
		Bookmarked:         p.Bookmarked,
		IsReviewed:         p.IsReviewed,
	}
	var raw struct {
		CorrectAnswer exam.Response `json:"correct_answer"`
	}
	path := fmt.Sprintf("/candidate/submit_answer/%d/", cand.CandidateTestID)
	if err := c.do(ctx, "submit answer", http.MethodPost, path, candidateQuery(cand), body, &raw); err != nil {
		return exam.AnswerAck{}, err
	}
	ack := exam.AnswerAck{}
	if ca := exam.NormalizeSubmitted(raw.CorrectAnswer); ca.Kind == exam.KindChoice && len(ca.OptionIDs) > 0 {
		ack.CorrectAnswer = ca.OptionIDs
	}
	return ack, nil
}

func (c *Client) SubmitTest(ctx context.Context, cand exam.Candidate) error {
	path := fmt.Sprintf("/candidate/submit_test/%d/", cand.CandidateTestID)
	return c.do(ctx, "submit test", http.MethodPost, path, candidateQuery(cand), nil, nil)
}

func (c *Client) Result(ctx context.Context, cand exam.Candidate) (exam.ResultData, error) {
	var out exam.ResultData
	path := fmt.Sprintf("/candidate/result/%d/", cand.CandidateTestID)
	err := c.do(ctx, "result", http.MethodGet, path, candidateQuery(cand), nil, &out)
	return out, err
}

// ReviewFeedback returns the per-question answers with submitted answers normalised.
func (c *Client) ReviewFeedback(ctx context.Context, cand exam.Candidate) ([]exam.FeedbackEntry, error) {
	var out []exam.FeedbackEntry
	path := fmt.Sprintf("/candidate/review-feedback/%d/", cand.CandidateTestID)
	if err := c.do(ctx, "review feedback", http.MethodGet, path, candidateQuery(cand), nil, &out); err != nil {
		return nil, err
	}
	return exam.NormalizeFeedback(out), nil
}

// Certificate fetches a certificate document. ref is either a path on the backend
// origin or an absolute URL on the backend origin or a configured certificate
// origin. The request carries no service credentials. The caller closes the body.
func (c *Client) Certificate(ctx context.Context, ref string) (*http.Response, error) {
	target, err := c.resolveOrigin(ref)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/pdf")
	res, err := c.files.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "certificate")
	}
	if res.StatusCode/100 != 2 {
		defer res.Body.Close()
		return nil, statusError("certificate", res)
	}
	return res, nil
}

var ErrBadReference = errors.New("invalid certificate url")

func (c *Client) resolveOrigin(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	absolute := strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
	if !absolute && (!strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "//")) {
		return "", ErrBadReference
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", ErrBadReference
	}
	if !absolute {
		base := url.URL{Scheme: c.base.Scheme, Host: c.base.Host}
		u = base.ResolveReference(u)
	}
	if u.Host == "" || u.User != nil || !c.origins[originOf(u)] {
		return "", ErrBadReference
	}
	return u.String(), nil
}
