// Package metadata queries the instance-identity service over its
// token-gated request/response protocol.
package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hostboot-dev/hostboot/internal/report"
)

const (
	tokenTTLSeconds = 60

	sentinelUnknown = "unknown"
	sentinelNA      = "N/A"
)

// Client looks up identity fields from the metadata endpoint. Lookups never
// fail outward: every failure degrades to a sentinel value so report
// publication is not blocked by a broken identity service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Resolve implements report.Resolver.
func (c *Client) Resolve(ctx context.Context) report.Identity {
	token, err := c.token(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("metadata token request failed")
	}
	return report.Identity{
		InstanceID: c.Field(ctx, token, "instance-id"),
		PrivateIP:  c.Field(ctx, token, "local-ipv4"),
		PublicIP:   c.Field(ctx, token, "public-ipv4"),
	}
}

// token requests a short-lived session token.
func (c *Client) token(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.BaseURL+"/api/token", nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("X-aws-ec2-metadata-token-ttl-seconds", strconv.Itoa(tokenTTLSeconds))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request token: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return string(body), nil
}

// Field fetches one metadata field by name. Any failure yields "unknown",
// or "N/A" for the public address field.
func (c *Client) Field(ctx context.Context, token, field string) string {
	sentinel := sentinelUnknown
	if field == "public-ipv4" {
		sentinel = sentinelNA
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/meta-data/"+field, nil)
	if err != nil {
		return sentinel
	}
	req.Header.Set("X-aws-ec2-metadata-token", token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return sentinel
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return sentinel
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return sentinel
	}
	return string(body)
}
