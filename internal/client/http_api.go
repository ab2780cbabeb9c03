package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cybersafe-assessment-service/internal/domain"
)

// HTTPClient talks to the assessment REST surface with a bearer token.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) Start(ctx context.Context, quizID string) (domain.PublicQuizView, error) {
	var view domain.PublicQuizView
	err := c.post(ctx, fmt.Sprintf("%s/quiz/%s/start", c.baseURL, quizID), nil, &view)
	return view, err
}

func (c *HTTPClient) Submit(ctx context.Context, sessionID string, answers map[string]domain.Answer) (domain.GradeResult, error) {
	body := struct {
		Answers map[string]domain.Answer `json:"answers"`
	}{Answers: answers}
	var result domain.GradeResult
	err := c.post(ctx, fmt.Sprintf("%s/quiz-session/%s/submit", c.baseURL, sessionID), body, &result)
	return result, err
}

func (c *HTTPClient) post(ctx context.Context, url string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", domain.ErrUnauthorized, apiErr.Error)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", domain.ErrForbidden, apiErr.Error)
		case http.StatusNotFound:
			return fmt.Errorf("not found: %s", apiErr.Error)
		case http.StatusConflict:
			return fmt.Errorf("conflict: %s", apiErr.Error)
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", domain.ErrInvalidAnswer, apiErr.Error)
		default:
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Error)
		}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
