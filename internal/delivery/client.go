// Package delivery submits documents to the remote endpoint.
package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"docsync/internal/model"
)

var (
	// ErrTransport wraps network-level failures: no connectivity, DNS, timeouts.
	ErrTransport = errors.New("transport error")
	// ErrRemoteRejected is returned when the response is observable and not 2xx.
	ErrRemoteRejected = errors.New("remote rejected document")
	// ErrNoEndpoint is returned when no endpoint is configured.
	ErrNoEndpoint = errors.New("delivery endpoint is not configured")
)

// Outcome is the result of one delivery attempt.
type Outcome int

const (
	Rejected Outcome = iota
	Accepted
)

func (o Outcome) String() string {
	if o == Accepted {
		return "accepted"
	}
	return "rejected"
}

// ContentType is sent with every request body.
const ContentType = "text/plain;charset=utf-8"

// Deliverer is what the sync engine needs from a delivery client.
type Deliverer interface {
	Deliver(ctx context.Context, meta model.Metadata, payload []byte) (Outcome, error)
}

// Request is the JSON body posted for each document.
type Request struct {
	FileName    string `json:"fileName"`
	PDFBase64   string `json:"pdfBase64"`
	CompanyCode string `json:"companyCode"`
	CompanyName string `json:"companyName"`
	Date        string `json:"date"`
	Brand       string `json:"brand"`
	Model       string `json:"model"`
}

// Options configure a Client.
type Options struct {
	Endpoint string
	// ObserveResponse upgrades acknowledgment from "request completed" to
	// "server answered 2xx". Leave false for endpoints whose responses cannot
	// be read (opaque transport).
	ObserveResponse bool
	Timeout         time.Duration
	Namer           model.FileNamer
	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client posts documents to a remote endpoint over HTTP.
type Client struct {
	endpoint        string
	observeResponse bool
	namer           model.FileNamer
	http            *http.Client
	now             func() time.Time
}

var _ Deliverer = (*Client)(nil)

// NewClient builds a Client. The default HTTP client is traced with otelhttp.
func NewClient(opt Options) *Client {
	hc := opt.HTTPClient
	if hc == nil {
		timeout := opt.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	now := opt.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		endpoint:        opt.Endpoint,
		observeResponse: opt.ObserveResponse,
		namer:           opt.Namer,
		http:            hc,
		now:             now,
	}
}

// CanObserveResponse reports whether Accepted means a 2xx answer rather
// than a completed round trip.
func (c *Client) CanObserveResponse() bool {
	return c.observeResponse
}

// NewRequest builds the request body with a freshly computed file name.
func (c *Client) NewRequest(meta model.Metadata, payload []byte) Request {
	return Request{
		FileName:    c.namer.Name(meta, c.now()),
		PDFBase64:   base64.StdEncoding.EncodeToString(payload),
		CompanyCode: meta.CompanyCode,
		CompanyName: meta.CompanyName,
		Date:        meta.Date,
		Brand:       meta.Car.Brand,
		Model:       meta.Car.Model,
	}
}

// Deliver submits one document. Any transport failure yields Rejected with an
// error wrapping ErrTransport; the caller must keep the document.
func (c *Client) Deliver(ctx context.Context, meta model.Metadata, payload []byte) (Outcome, error) {
	if c.endpoint == "" {
		return Rejected, ErrNoEndpoint
	}

	body, err := json.Marshal(c.NewRequest(meta, payload))
	if err != nil {
		return Rejected, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Rejected, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return Rejected, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if !c.observeResponse {
		return Accepted, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Rejected, fmt.Errorf("%w: status %d", ErrRemoteRejected, resp.StatusCode)
	}
	return Accepted, nil
}
