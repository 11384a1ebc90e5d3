// File: internal/usecase/preflight.go
package usecase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"render-studio/internal/domain"
)

// ImageChecker verifies that a source image reference is publicly fetchable
// and actually an image, before any provider call is made.
type ImageChecker interface {
	Check(ctx context.Context, imageURL string) error
}

var bareIP = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// IsPublicHTTPURL reports whether the value is an http(s) URL a remote
// provider could plausibly fetch: not localhost, not a .local name, not a
// bare IP address.
func IsPublicHTTPURL(value string) bool {
	if value == "" {
		return false
	}
	u, err := url.Parse(value)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host == "" || host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return false
	}
	if strings.HasSuffix(host, ".local") {
		return false
	}
	if bareIP.MatchString(host) {
		return false
	}
	return true
}

// HTTPImageChecker probes the reference with a HEAD request, falling back to
// a ranged GET for servers that reject HEAD, and requires an image/*
// content type.
type HTTPImageChecker struct {
	client  *http.Client
	timeout time.Duration
}

func NewHTTPImageChecker(timeout time.Duration) *HTTPImageChecker {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &HTTPImageChecker{client: &http.Client{Timeout: timeout}, timeout: timeout}
}

var _ ImageChecker = (*HTTPImageChecker)(nil)

func (c *HTTPImageChecker) Check(ctx context.Context, imageURL string) error {
	if !IsPublicHTTPURL(imageURL) {
		return fmt.Errorf("%w: not a public http(s) url", domain.ErrUnreachableImage)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.probe(ctx, http.MethodHead, imageURL)
	if err != nil || resp.StatusCode == http.StatusMethodNotAllowed {
		if resp != nil {
			resp.Body.Close()
		}
		resp, err = c.probe(ctx, http.MethodGet, imageURL)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrUnreachableImage, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", domain.ErrUnreachableImage, resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "image/") {
		return fmt.Errorf("%w: content type %q", domain.ErrUnreachableImage, ct)
	}
	return nil
}

func (c *HTTPImageChecker) probe(ctx context.Context, method, imageURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, imageURL, nil)
	if err != nil {
		return nil, err
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	return c.client.Do(req)
}
