// Package media talks to the Cloudinary upload API, the external host
// for book cover images.
package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"bookcatalog/internal/book"
)

// Config carries the Cloudinary credentials. Hosting is enabled only when
// all three credentials are present.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

func (c Config) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// Client implements book.MediaHost against the Cloudinary HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	now        func() time.Time
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    fmt.Sprintf("https://api.cloudinary.com/v1_1/%s", cfg.CloudName),
		logger:     logger.With(slog.String("component", "media")),
		now:        time.Now,
	}
}

func (c *Client) Enabled() bool {
	return c.cfg.Enabled()
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
}

type destroyResponse struct {
	Result string `json:"result"`
}

// Upload sends a signed image upload and returns the hosted reference.
func (c *Client) Upload(ctx context.Context, data []byte, contentType string) (book.ImageRef, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
		"tags":      "book_cover",
	}
	if c.cfg.Folder != "" {
		params["folder"] = c.cfg.Folder
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	for key, value := range params {
		if err := form.WriteField(key, value); err != nil {
			return book.ImageRef{}, fmt.Errorf("media: build upload form: %w", err)
		}
	}
	if err := form.WriteField("api_key", c.cfg.APIKey); err != nil {
		return book.ImageRef{}, fmt.Errorf("media: build upload form: %w", err)
	}
	if err := form.WriteField("signature", signParams(params, c.cfg.APISecret)); err != nil {
		return book.ImageRef{}, fmt.Errorf("media: build upload form: %w", err)
	}

	part, err := form.CreateFormFile("file", "cover")
	if err != nil {
		return book.ImageRef{}, fmt.Errorf("media: build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return book.ImageRef{}, fmt.Errorf("media: build upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return book.ImageRef{}, fmt.Errorf("media: build upload form: %w", err)
	}

	var resp uploadResponse
	if err := c.post(ctx, "/image/upload", form.FormDataContentType(), body, &resp); err != nil {
		return book.ImageRef{}, err
	}
	if resp.SecureURL == "" || resp.PublicID == "" {
		return book.ImageRef{}, fmt.Errorf("media: upload response missing asset reference")
	}

	return book.ImageRef{URL: resp.SecureURL, PublicID: resp.PublicID}, nil
}

// Delete destroys a hosted asset. It reports success and never returns an
// error: callers treat asset removal as best effort.
func (c *Client) Delete(ctx context.Context, publicID string) bool {
	params := map[string]string{
		"public_id": publicID,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}

	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}
	form.Set("api_key", c.cfg.APIKey)
	form.Set("signature", signParams(params, c.cfg.APISecret))

	var resp destroyResponse
	err := c.post(ctx, "/image/destroy", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), &resp)
	if err != nil {
		c.logger.Warn("asset destroy failed",
			slog.String("public_id", publicID),
			slog.Any("error", err),
		)
		return false
	}
	if resp.Result != "ok" {
		c.logger.Warn("asset destroy rejected",
			slog.String("public_id", publicID),
			slog.String("result", resp.Result),
		)
		return false
	}
	return true
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("media: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("media: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("media: %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("media: %s: decode response: %w", path, err)
	}
	return nil
}

// signParams produces the Cloudinary request signature: the sorted
// key=value pairs joined with & and suffixed with the API secret, hashed
// with SHA-1. api_key and signature itself are excluded.
func signParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return fmt.Sprintf("%x", sum)
}
