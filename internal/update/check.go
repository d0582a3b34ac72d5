// Package update asks the release manifest whether a newer cordsync exists.
//
// The manifest is a small JSON object mapping channels to versions; the
// stable release lives under ".":
//
//	{".": "0.4.0", "beta": "0.5.0-rc.1"}
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultManifestURL is overridden at build time via
//
//	-X tools.zach/dev/cordsync/internal/update.DefaultManifestURL=...
var DefaultManifestURL = "https://raw.githubusercontent.com/zachthedev/cordsync/main/.release-manifest.json"

// maxManifestBytes caps the manifest download.
const maxManifestBytes = 64 << 10

// Checker fetches the manifest and compares versions.
type Checker struct {
	URL    string
	Client *retryablehttp.Client
	Log    *slog.Logger
}

// NewChecker returns a Checker for url with a small retry budget.
func NewChecker(url string, log *slog.Logger) *Checker {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 5 * time.Second
	client.Logger = nil // retryablehttp logs every attempt otherwise
	if log == nil {
		log = slog.Default()
	}
	return &Checker{URL: url, Client: client, Log: log}
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Check logs when the manifest advertises a release newer than current.
// Failures are logged at debug and otherwise ignored.
func (c *Checker) Check(ctx context.Context, current string) {
	if c.URL == "" {
		c.Log.Debug("skipping version check: no manifest URL configured")
		return
	}
	latest, err := c.Latest(ctx)
	if err != nil {
		c.Log.Debug("version check failed", "error", err)
		return
	}
	if Newer(current, latest) {
		c.Log.Info("new version available", "current", current, "latest", latest)
	}
}

// Latest returns the stable version listed in the manifest.
func (c *Checker) Latest(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", c.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", c.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return "", fmt.Errorf("reading manifest: %w", err)
	}
	var manifest map[string]string
	if err := json.Unmarshal(body, &manifest); err != nil {
		return "", fmt.Errorf("parsing manifest: %w", err)
	}
	latest := manifest["."]
	if latest == "" {
		return "", fmt.Errorf("manifest has no stable version")
	}
	return latest, nil
}

// ///////////////////////////////////////////////
// Versions
// ///////////////////////////////////////////////

// version is a parsed "MAJOR.MINOR.PATCH[-pre][+build]" string.
type version struct {
	core [3]int
	pre  bool
}

// parseVersion accepts an optional "v" prefix. Build metadata is ignored.
func parseVersion(s string) (version, bool) {
	s = strings.TrimPrefix(s, "v")
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i]
	}
	var v version
	if i := strings.IndexByte(s, '-'); i >= 0 {
		v.pre = true
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return version{}, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || p == "" || p[0] == '+' {
			return version{}, false
		}
		v.core[i] = n
	}
	return v, true
}

// Newer reports whether latest is a higher version than current. A
// pre-release sorts below the release it precedes; pre-releases of the
// same core version are not ordered. Unparseable input is never newer.
func Newer(current, latest string) bool {
	a, ok := parseVersion(current)
	if !ok {
		return false
	}
	b, ok := parseVersion(latest)
	if !ok {
		return false
	}
	for i := range a.core {
		if a.core[i] != b.core[i] {
			return a.core[i] < b.core[i]
		}
	}
	return a.pre && !b.pre
}
