// Package commentary talks to the commentary generation service.
package commentary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// ErrInvalidResponse is returned when the service answers without both a
// commentary and an evaluation. Callers treat it as transient.
var ErrInvalidResponse = errors.New("commentary: invalid response")

// Request describes the position to comment on.
type Request struct {
	FEN       string `json:"fen"`
	LastMove  string `json:"last_move"`
	WhiteName string `json:"white_name"`
	BlackName string `json:"black_name"`
}

// Response is a validated service answer.
type Response struct {
	Text       string
	Evaluation float64
}

// ServiceError carries the error field reported by the service.
type ServiceError struct{ Message string }

func (e *ServiceError) Error() string { return "commentary service: " + e.Message }

// Client posts requests to the service URL.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Generate requests commentary for one position.
func (c *Client) Generate(ctx context.Context, r Request) (*Response, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var out struct {
		Commentary *string  `json:"commentary"`
		Eval       *float64 `json:"stockfish_eval"`
		Error      string   `json:"error"`
	}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, fmt.Errorf("%w: empty body (status %d)", ErrInvalidResponse, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.Error != "" {
		return nil, &ServiceError{Message: out.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("commentary service: status %d", resp.StatusCode)
	}
	if out.Commentary == nil || strings.TrimSpace(*out.Commentary) == "" || out.Eval == nil {
		return nil, ErrInvalidResponse
	}
	return &Response{Text: strings.TrimSpace(*out.Commentary), Evaluation: *out.Eval}, nil
}
