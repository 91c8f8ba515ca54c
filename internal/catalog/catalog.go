// Package catalog fetches and parses the remote alias-to-URL script
// repository.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Catalog maps script aliases to their source URLs. It is fetched once per
// run; the only persisted form is the verbatim staging copy.
type Catalog map[string]string

// Lookup returns the source URL for alias. Unknown aliases are absent, not
// an error; the caller must branch.
func (c Catalog) Lookup(alias string) (string, bool) {
	url, ok := c[alias]
	return url, ok
}

// Fetcher retrieves the remote catalog and stages a verbatim copy at
// <staging>/repository.json.
type Fetcher struct {
	Client     *http.Client
	StagingDir string
}

// Fetch downloads the catalog, persists the raw body and parses it as a
// flat JSON object of alias to URL. Transport and parse failures both
// surface as errors the caller downgrades to a "failed" repository status.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("download catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download catalog: unexpected status %d", resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog body: %w", err)
	}

	staged := filepath.Join(f.StagingDir, "repository.json")
	if err := os.WriteFile(staged, content, 0o644); err != nil {
		return nil, fmt.Errorf("stage catalog copy: %w", err)
	}
	log.Info().Str("preview", preview(content)).Msg("downloaded scripts repository")

	var cat Catalog
	if err := json.Unmarshal(content, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return cat, nil
}

// preview keeps catalog logging short regardless of repository size.
func preview(content []byte) string {
	if len(content) > 100 {
		return string(content[:100]) + "..."
	}
	return string(content)
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}
