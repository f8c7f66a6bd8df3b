// Package storage uploads raw statement bytes to the object store over HTTP.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kieranpgray/coinbag-sub006/internal/core"
)

// TokenProvider returns a fresh bearer token for one request. It is called
// per upload rather than once at construction, because credentials can
// expire in the middle of a long batch.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken adapts a fixed token to the TokenProvider shape. Useful for
// service keys that do not rotate.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// Client writes statement files to the object store. It implements
// core.Uploader.
type Client struct {
	endpoint string
	bucket   string
	token    TokenProvider
	http     *http.Client
	log      *slog.Logger
}

// NewClient builds a storage client. timeout bounds a single upload; log may
// be nil.
func NewClient(endpoint, bucket string, token TokenProvider, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		bucket:   bucket,
		token:    token,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

// Upload PUTs the file under a content-addressed object key and returns the
// storage path. The key embeds the hash, so re-uploading identical bytes is
// harmless; deduplication proper happens at record creation.
func (c *Client) Upload(ctx context.Context, req core.UploadRequest) (string, error) {
	objectKey := fmt.Sprintf("%s/%s/%s/%s",
		url.PathEscape(req.OwnerID), url.PathEscape(req.AccountID),
		req.FileHash, url.PathEscape(req.FileName))
	target := fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, objectKey)

	token, err := c.token(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire storage token: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(req.Data))
	if err != nil {
		return "", fmt.Errorf("build storage request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", req.MimeType)
	httpReq.ContentLength = int64(len(req.Data))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", req.FileName, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload %s: storage returned %d: %s",
			req.FileName, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.log.Debug("statement uploaded",
		"object_key", objectKey,
		"size_bytes", len(req.Data),
	)
	return c.bucket + "/" + objectKey, nil
}
