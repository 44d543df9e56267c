// Package media produces the illustrative board image for a commentary and
// hands it to a media host, returning the host's opaque media id.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ImageRequest is the payload understood by the image service.
type ImageRequest struct {
	FEN              string   `json:"fen"`
	WhiteName        string   `json:"whiteName"`
	BlackName        string   `json:"blackName"`
	Evaluation       float64  `json:"evaluation"`
	HighlightSquares []string `json:"highlightSquares"`
}

// Image is rendered binary content.
type Image struct {
	Data        []byte
	ContentType string
}

// Renderer calls the image service.
type Renderer struct {
	URL        string
	HTTPClient *http.Client
}

func (r *Renderer) http() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return http.DefaultClient
}

// Render posts the request and returns the image bytes.
func (r *Renderer) Render(ctx context.Context, ir ImageRequest) (*Image, error) {
	if ir.HighlightSquares == nil {
		ir.HighlightSquares = []string{}
	}
	body, err := json.Marshal(ir)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("image service: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image service: empty image")
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &Image{Data: data, ContentType: ct}, nil
}
