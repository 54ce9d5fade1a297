package fanout

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// WebhookPublisher POSTs envelopes as JSON to a fixed URL.
type WebhookPublisher struct {
	client  *http.Client
	url     string
	headers map[string]string
}

// WebhookOption configures a WebhookPublisher.
type WebhookOption func(*WebhookPublisher)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(p *WebhookPublisher) {
		p.client = client
	}
}

// WithHeader adds a header to every request, e.g. Authorization.
func WithHeader(key, value string) WebhookOption {
	return func(p *WebhookPublisher) {
		if p.headers == nil {
			p.headers = make(map[string]string)
		}
		p.headers[key] = value
	}
}

// NewWebhookPublisher constructs a publisher for the given endpoint.
func NewWebhookPublisher(url string, options ...WebhookOption) *WebhookPublisher {
	publisher := &WebhookPublisher{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
	}
	for _, option := range options {
		option(publisher)
	}
	return publisher
}

// Publish implements Publisher.
func (p *WebhookPublisher) Publish(ctx context.Context, payload []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range p.headers {
		request.Header.Set(key, value)
	}
	response, err := p.client.Do(request)
	if err != nil {
		return err
	}
	response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("fanout: webhook endpoint returned status %d", response.StatusCode)
	}
	return nil
}

var _ Publisher = (*WebhookPublisher)(nil)
var _ Publisher = (*SNSPublisher)(nil)
var _ Publisher = NoopPublisher{}
