package fetcher

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
	"github.com/earningsdesk/transcript-pipeline/internal/requestid"
	"github.com/earningsdesk/transcript-pipeline/internal/retry"
)

// ObservationKind is the oracle's classification of one lookup.
type ObservationKind string

const (
	ObservationAvailable    ObservationKind = "available"
	ObservationUpcoming     ObservationKind = "upcoming"
	ObservationNone         ObservationKind = "none"
	ObservationTransientErr ObservationKind = "transient_error"
	ObservationPermanentErr ObservationKind = "permanent_error"
)

type Observation struct {
	Kind      ObservationKind
	SourceURL string
	EventDate *time.Time
	Err       error
}

// Oracle answers "what is the transcript status for this equity's quarter",
// abstracting over whatever third-party data provider backs it.
type Oracle interface {
	Lookup(ctx context.Context, equity *domain.Equity, quarter, year int) Observation
}

// HTTPOracle calls a configured transcript-discovery endpoint through a
// tuned client (TLS floor, bounded redirects, idle-conn pooling) and
// classifies each GET response.
type HTTPOracle struct {
	client  *http.Client
	baseURL string
}

func NewHTTPOracle(baseURL string) *HTTPOracle {
	return &HTTPOracle{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

type oracleResponse struct {
	Status    string     `json:"status"`
	SourceURL string     `json:"source_url"`
	EventDate *time.Time `json:"event_date"`
}

func (o *HTTPOracle) Lookup(ctx context.Context, equity *domain.Equity, quarter, year int) Observation {
	url := fmt.Sprintf("%s/transcripts?identifier=%s&quarter=%d&year=%d", o.baseURL, equity.Identifier, quarter, year)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Observation{Kind: ObservationTransientErr, Err: fmt.Errorf("build oracle request: %w", err)}
	}

	reqID := requestid.New()
	req.Header.Set("X-Request-ID", reqID)

	var resp *http.Response
	doErr := retry.Do(ctx, func() error {
		var err error
		resp, err = o.client.Do(req)
		return err
	})
	if doErr != nil {
		return Observation{Kind: ObservationTransientErr, Err: fmt.Errorf("oracle request: %w", doErr)}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Observation{Kind: ObservationTransientErr, Err: fmt.Errorf("oracle rate limited")}
	case resp.StatusCode >= 500:
		return Observation{Kind: ObservationTransientErr, Err: fmt.Errorf("oracle returned %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return Observation{Kind: ObservationPermanentErr, Err: fmt.Errorf("oracle returned %d", resp.StatusCode)}
	}

	var body oracleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Observation{Kind: ObservationTransientErr, Err: fmt.Errorf("decode oracle response: %w", err)}
	}

	switch body.Status {
	case string(domain.TranscriptAvailable):
		return Observation{Kind: ObservationAvailable, SourceURL: body.SourceURL, EventDate: body.EventDate}
	case string(domain.TranscriptUpcoming):
		return Observation{Kind: ObservationUpcoming, EventDate: body.EventDate}
	default:
		return Observation{Kind: ObservationNone}
	}
}
