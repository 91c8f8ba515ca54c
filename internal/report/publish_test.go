package report

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostboot-dev/hostboot/pkg/api"
)

type staticResolver struct{ id Identity }

func (s staticResolver) Resolve(ctx context.Context) Identity { return s.id }

func TestPublishEnrichesAndSends(t *testing.T) {
	var received api.StatusReport
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		_, _ = w.Write([]byte("ack"))
	}))
	defer srv.Close()

	agg := NewAggregator("web-1", "prod")
	agg.RecordScript("setup", ErrorRecord("x", time.Now(), time.Now()))

	p := &Publisher{
		WebhookURL: srv.URL,
		Resolver:   staticResolver{Identity{InstanceID: "i-123", PrivateIP: "10.0.0.5", PublicIP: "N/A"}},
	}
	p.Publish(context.Background(), agg)

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "web-1", received.InstanceName)
	assert.Equal(t, "i-123", received.InstanceID)
	assert.Equal(t, "10.0.0.5", received.PrivateIP)
	assert.Equal(t, "N/A", received.PublicIP)
	assert.Contains(t, received.Scripts, "setup")
}

func TestPublishSkipsWithoutURL(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	p := &Publisher{WebhookURL: ""}
	p.Publish(context.Background(), NewAggregator("web-1", "prod"))
	assert.Zero(t, hits)
}

func TestPublishSwallowsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // endpoint now unreachable

	p := &Publisher{WebhookURL: srv.URL}
	// must not panic and must not propagate anything
	p.Publish(context.Background(), NewAggregator("web-1", "prod"))
}
