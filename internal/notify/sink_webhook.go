package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HeaderProvider supplies per-request headers, e.g. auth tokens.
type HeaderProvider func() map[string]string

// WebhookSink POSTs each event as JSON. Retries belong to the Dispatcher;
// a single Send makes one request.
type WebhookSink struct {
	url     string
	http    *fasthttp.Client
	headers HeaderProvider
	timeout time.Duration
}

type WebhookOption func(*WebhookSink)

func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(s *WebhookSink) { s.timeout = d }
}

func WithWebhookHeaders(h HeaderProvider) WebhookOption {
	return func(s *WebhookSink) { s.headers = h }
}

func NewWebhookSink(url string, opts ...WebhookOption) *WebhookSink {
	s := &WebhookSink{
		url:     strings.TrimSpace(url),
		http:    &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WebhookSink) Send(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Permanent(fmt.Errorf("encode event: %w", err))
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(s.url)
	req.Header.SetContentType("application/json")
	req.Header.Set("X-Rps-Destination", ev.Destination)
	req.Header.Set("X-Rps-Event", string(ev.Type))
	if s.headers != nil {
		for k, v := range s.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	req.SetBody(payload)

	if err := s.http.DoDeadline(req, resp, s.deadline(ctx)); err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		return nil
	}
	err = fmt.Errorf("webhook status=%d body=%s", status, truncate(string(resp.Body()), 512))
	if shouldRetryStatus(status) {
		return err
	}
	return Permanent(err)
}

func (s *WebhookSink) deadline(ctx context.Context) time.Time {
	own := time.Now().Add(s.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(own) {
		return dl
	}
	return own
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
