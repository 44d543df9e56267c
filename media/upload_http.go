package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// HTTPUploader posts images as multipart form data to a media host.
type HTTPUploader struct {
	URL        string
	FieldName  string
	HTTPClient *http.Client
}

// OAuthConfig enables client-credentials auth on the media host.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// NewHTTPUploader builds an uploader. When oc is non-nil and has a token URL
// requests carry a bearer token obtained via the client-credentials grant.
func NewHTTPUploader(ctx context.Context, url string, oc *OAuthConfig, base *http.Client) *HTTPUploader {
	u := &HTTPUploader{URL: url, FieldName: "media", HTTPClient: base}
	if oc != nil && oc.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     oc.ClientID,
			ClientSecret: oc.ClientSecret,
			TokenURL:     oc.TokenURL,
			Scopes:       oc.Scopes,
		}
		if base != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
		}
		u.HTTPClient = cc.Client(ctx)
	}
	return u
}

func (u *HTTPUploader) http() *http.Client {
	if u.HTTPClient != nil {
		return u.HTTPClient
	}
	return http.DefaultClient
}

// Upload sends the image and returns the host's media id.
func (u *HTTPUploader) Upload(ctx context.Context, img *Image) (string, error) {
	field := u.FieldName
	if field == "" {
		field = "media"
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="board%s"`, field, extensionFor(img.ContentType)))
	h.Set("Content-Type", img.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := u.http().Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("media upload: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	var out struct {
		MediaIDString string      `json:"media_id_string"`
		MediaID       json.Number `json:"media_id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("media upload: decode: %w", err)
	}
	if out.MediaIDString != "" {
		return out.MediaIDString, nil
	}
	if out.MediaID != "" {
		return out.MediaID.String(), nil
	}
	return "", fmt.Errorf("media upload: response without media id")
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	}
	return ""
}
