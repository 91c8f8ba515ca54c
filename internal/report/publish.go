package report

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Identity holds the host identity fields added to the report at publish
// time.
type Identity struct {
	InstanceID string
	PrivateIP  string
	PublicIP   string
}

// Resolver supplies host identity for report enrichment. Implementations
// must degrade to sentinel values instead of failing; publication never
// waits on a working identity service.
type Resolver interface {
	Resolve(ctx context.Context) Identity
}

// Publisher POSTs the final StatusReport as JSON to the configured webhook.
type Publisher struct {
	Client     *http.Client
	WebhookURL string
	Resolver   Resolver
}

// Publish snapshots the aggregate, enriches it with host identity and sends
// it. Transport errors are logged and swallowed; the response body is
// logged but never interpreted.
func (p *Publisher) Publish(ctx context.Context, agg *Aggregator) {
	if p.WebhookURL == "" {
		log.Info().Msg("no webhook URL provided, skipping status report")
		return
	}
	log.Info().Msg("sending script execution status report to webhook")

	rep := agg.Snapshot()
	if p.Resolver != nil {
		id := p.Resolver.Resolve(ctx)
		rep.InstanceID = id.InstanceID
		rep.PrivateIP = id.PrivateIP
		rep.PublicIP = id.PublicIP
	}

	body, err := json.Marshal(rep)
	if err != nil {
		log.Error().Err(err).Msg("encode status report")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.WebhookURL, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("build status report request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client().Do(req)
	if err != nil {
		log.Error().Err(err).Msg("send status report")
		return
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	log.Info().
		Int("status", resp.StatusCode).
		Str("response", strings.TrimSpace(string(respBody))).
		Msg("status report sent to webhook")
}

func (p *Publisher) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}
