// Package update implements the loader's self-update version check:
// `clink info --check-update` (or the update.auto_check setting) asks
// GitHub for the latest release tag and reports whether it is newer than
// the running build. Installing the
// update is deliberately out of scope here (the original C++ loader's
// updater shells out to PowerShell and re-execs itself elevated; doing
// that from Go would need the same OS-specific elevation dance for no
// gain), so this package only ever answers "is one available."
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Release describes the latest published version.
type Release struct {
	Tag     string
	URL     string
	Current bool // true if Tag is not newer than the running version
}

// Checker asks an update feed for the latest release.
type Checker struct {
	client  *http.Client
	feedURL string
}

// NewChecker builds a Checker pointed at the GitHub releases API for
// owner/repo. A caller that wants a different feed (a private mirror,
// a test server) can set feedURL directly via NewCheckerWithURL.
func NewChecker(owner, repo string) *Checker {
	return NewCheckerWithURL(fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/latest", owner, repo))
}

// NewCheckerWithURL builds a Checker against an arbitrary feed URL,
// matching the ProviderConfig.BaseURL-is-overridable convention used
// elsewhere for HTTP-backed components.
func NewCheckerWithURL(feedURL string) *Checker {
	return &Checker{
		client:  &http.Client{Timeout: 10 * time.Second},
		feedURL: feedURL,
	}
}

type releaseResponse struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Check fetches the latest release and compares it against current,
// a "vMAJOR.MINOR.PATCH"-or-bare "MAJOR.MINOR.PATCH" version string.
func (c *Checker) Check(ctx context.Context, current string) (Release, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.feedURL, nil)
	if err != nil {
		return Release{}, fmt.Errorf("update: create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("update: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Release{}, fmt.Errorf("update: feed returned status %d", resp.StatusCode)
	}

	var rr releaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return Release{}, fmt.Errorf("update: decode response: %w", err)
	}

	newer, err := IsNewer(rr.TagName, current)
	if err != nil {
		return Release{}, err
	}

	return Release{Tag: rr.TagName, URL: rr.HTMLURL, Current: !newer}, nil
}

// IsNewer reports whether candidate is a strictly greater version than
// base, comparing major/minor/patch numerically. A "v" prefix on
// either string is ignored.
func IsNewer(candidate, base string) (bool, error) {
	c, err := parseVersion(candidate)
	if err != nil {
		return false, err
	}
	b, err := parseVersion(base)
	if err != nil {
		return false, err
	}
	for i := 0; i < 3; i++ {
		if c[i] != b[i] {
			return c[i] > b[i], nil
		}
	}
	return false, nil
}

func parseVersion(v string) ([3]int, error) {
	var out [3]int
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	parts := strings.SplitN(v, ".", 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return out, fmt.Errorf("update: malformed version %q: %w", v, err)
		}
		out[i] = n
	}
	return out, nil
}
