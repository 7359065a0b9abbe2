// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package publish uploads blog figures to the WeChat official account
// material API and rewrites the assembled document to reference the hosted
// URLs. Upload failures degrade to local paths; publishing never breaks a
// document that assembly already validated.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/paperblog/pkg/types"
)

// apiBase is the WeChat API root. Package-level var for test substitution.
var apiBase = "https://api.weixin.qq.com"

const (
	// maxImageBytes is the material API limit for image uploads.
	maxImageBytes = 2 * 1024 * 1024

	// tokenSlack refreshes the access token a minute before it expires.
	tokenSlack = 60 * time.Second

	// errInvalidCredential is the WeChat errcode for a stale access token.
	errInvalidCredential = 40001
)

// Client talks to the WeChat official account API. It caches the access
// token until shortly before expiry and consults the media cache before
// every upload. Safe for concurrent use.
type Client struct {
	cfg   types.PublishConfig
	http  *http.Client
	cache *MediaCache

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient builds a publish client. cache may be nil to upload without
// deduplication.
func NewClient(cfg types.PublishConfig, cache *MediaCache, httpClient *http.Client) (*Client, error) {
	if cfg.AppID == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("weixin appid and secret are not configured")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient, cache: cache}, nil
}

// tokenResponse is the body of both token endpoints.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
}

// AccessToken returns a valid access token, fetching one when the cached
// token is absent or near expiry. The stable_token endpoint is tried first;
// the legacy token endpoint is the fallback.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenSlack)) {
		return c.token, nil
	}

	tok, expiresIn, err := c.fetchStableToken(ctx)
	if err != nil {
		tok, expiresIn, err = c.fetchLegacyToken(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("fetching weixin access token: %w", err)
	}

	c.token = tok
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return c.token, nil
}

// invalidateToken drops the cached token after the API rejects it.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) fetchStableToken(ctx context.Context) (string, int, error) {
	body, err := json.Marshal(map[string]any{
		"grant_type":    "client_credential",
		"appid":         c.cfg.AppID,
		"secret":        c.cfg.Secret,
		"force_refresh": false,
	})
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		apiBase+"/cgi-bin/stable_token", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doTokenRequest(req)
}

func (c *Client) fetchLegacyToken(ctx context.Context) (string, int, error) {
	q := url.Values{
		"grant_type": {"client_credential"},
		"appid":      {c.cfg.AppID},
		"secret":     {c.cfg.Secret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		apiBase+"/cgi-bin/token?"+q.Encode(), nil)
	if err != nil {
		return "", 0, err
	}
	return c.doTokenRequest(req)
}

func (c *Client) doTokenRequest(req *http.Request) (string, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("token request failed: errcode %d: %s", tr.ErrCode, tr.ErrMsg)
	}
	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 7200
	}
	return tr.AccessToken, expiresIn, nil
}

// uploadResponse is the body of the material upload endpoint.
type uploadResponse struct {
	MediaID string `json:"media_id"`
	URL     string `json:"url"`
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// UploadMedia uploads an image file as permanent material and returns its
// media id and hosted URL. Previously uploaded content is served from the
// cache by content hash. A stale-token rejection (errcode 40001) refreshes
// the token and retries once.
func (c *Client) UploadMedia(ctx context.Context, filePath string) (mediaID, mediaURL string, err error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return "", "", fmt.Errorf("stat %s: %w", filePath, err)
	}
	if info.Size() > maxImageBytes {
		return "", "", fmt.Errorf("%s is %d bytes, over the %d byte image limit",
			filePath, info.Size(), maxImageBytes)
	}

	var sha string
	if c.cache != nil {
		sha, err = FileSHA256(filePath)
		if err != nil {
			return "", "", err
		}
		id, u, ok, lookupErr := c.cache.Lookup(sha)
		switch {
		case lookupErr != nil:
			// A broken cache degrades to a re-upload, but not silently.
			fmt.Fprintf(os.Stderr, "warning: upload cache read failed: %v\n", lookupErr)
		case ok:
			return id, u, nil
		}
	}

	for attempt := 0; ; attempt++ {
		token, err := c.AccessToken(ctx)
		if err != nil {
			return "", "", err
		}

		ur, err := c.postMedia(ctx, token, filePath)
		if err != nil {
			return "", "", err
		}
		if ur.MediaID != "" {
			if c.cache != nil && sha != "" {
				if err := c.cache.Store(sha, ur.MediaID, ur.URL); err != nil {
					fmt.Fprintf(os.Stderr, "warning: upload cache write failed: %v\n", err)
				}
			}
			return ur.MediaID, ur.URL, nil
		}
		if ur.ErrCode == errInvalidCredential && attempt == 0 {
			c.invalidateToken()
			continue
		}
		return "", "", fmt.Errorf("uploading %s: errcode %d: %s", filePath, ur.ErrCode, ur.ErrMsg)
	}
}

// postMedia performs the multipart upload round trip.
func (c *Client) postMedia(ctx context.Context, token, filePath string) (uploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("media", filepath.Base(filePath))
	if err != nil {
		return uploadResponse{}, err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return uploadResponse{}, fmt.Errorf("opening %s: %w", filePath, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		f.Close()
		return uploadResponse{}, fmt.Errorf("reading %s: %w", filePath, err)
	}
	f.Close()
	if err := mw.Close(); err != nil {
		return uploadResponse{}, err
	}

	q := url.Values{"access_token": {token}, "type": {"image"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		apiBase+"/cgi-bin/material/add_material?"+q.Encode(), &body)
	if err != nil {
		return uploadResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return uploadResponse{}, err
	}
	defer resp.Body.Close()

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return uploadResponse{}, fmt.Errorf("decoding upload response: %w", err)
	}
	return ur, nil
}

// imageRefRe matches Markdown image references with local figure paths.
var imageRefRe = regexp.MustCompile(`(!\[[^\]\n]*\]\()([^)\n]+)(\))`)

// RewriteForPublish uploads every local image the document references and
// replaces its path with the hosted URL. An upload failure keeps the local
// path and records a warning; the document is never left with a dangling
// reference it did not already have.
func RewriteForPublish(ctx context.Context, c *Client, markdown, workDir string, w io.Writer) (string, []string) {
	var warnings []string
	uploaded := make(map[string]string)

	out := imageRefRe.ReplaceAllStringFunc(markdown, func(match string) string {
		parts := imageRefRe.FindStringSubmatch(match)
		path := parts[2]
		if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
			return match
		}

		if u, ok := uploaded[path]; ok {
			return parts[1] + u + parts[3]
		}

		_, mediaURL, err := c.UploadMedia(ctx, filepath.Join(workDir, path))
		if err != nil || mediaURL == "" {
			if err == nil {
				err = fmt.Errorf("API returned no URL")
			}
			warnings = append(warnings, fmt.Sprintf("upload failed for %s, keeping local path: %v", path, err))
			return match
		}

		fmt.Fprintf(w, "uploaded: %s\n", path)
		uploaded[path] = mediaURL
		return parts[1] + mediaURL + parts[3]
	})

	return out, warnings
}
