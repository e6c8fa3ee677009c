package organs

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/borglife-labs/borglife/pkg/wealth"
)

// CallResult is a successful capability response. MeteredCost is what the
// host charged for the call, before the genome's price cap is applied.
type CallResult struct {
	Payload     []byte
	MeteredCost wealth.Amount
	Latency     time.Duration
}

// Host is the transport to an organ fleet. The two implementations are a
// real HTTP client and a deterministic stub; the caller picks one at
// construction and the choice is never made implicitly.
type Host interface {
	ListCapabilities(ctx context.Context) ([]Descriptor, error)
	Call(ctx context.Context, endpoint, capabilityID string, payload []byte) (*CallResult, error)
	Ping(ctx context.Context, endpoint string) error
}

const meteredCostHeader = "X-Metered-Cost"

// HTTPHost calls organs over JSON-over-HTTP. Every outbound request
// carries a W3C traceparent header so organ-side logs correlate with ours.
type HTTPHost struct {
	client      *http.Client
	registryURL string
}

// NewHTTPHost creates a host client. registryURL serves the capability
// catalog; individual calls go to each organ's own endpoint.
func NewHTTPHost(registryURL string, timeout time.Duration) *HTTPHost {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPHost{
		client:      &http.Client{Timeout: timeout},
		registryURL: registryURL,
	}
}

func (h *HTTPHost) ListCapabilities(ctx context.Context) ([]Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.registryURL+"/capabilities", nil)
	if err != nil {
		return nil, fmt.Errorf("capability catalog request: %w", err)
	}
	injectTrace(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capability catalog fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capability catalog fetch: status %d", resp.StatusCode)
	}

	var descriptors []Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptors); err != nil {
		return nil, fmt.Errorf("capability catalog decode: %w", err)
	}
	return descriptors, nil
}

func (h *HTTPHost) Call(ctx context.Context, endpoint, capabilityID string, payload []byte) (*CallResult, error) {
	body := struct {
		CapabilityID string          `json:"capability_id"`
		Payload      json.RawMessage `json:"payload"`
	}{CapabilityID: capabilityID, Payload: payload}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("call encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	injectTrace(req)

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", capabilityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("call %s: status %d", capabilityID, resp.StatusCode)
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("call %s: read response: %w", capabilityID, err)
	}

	cost := wealth.Zero(wealth.WND)
	if raw := resp.Header.Get(meteredCostHeader); raw != "" {
		cost, err = wealth.ParseAmount(raw, wealth.WND)
		if err != nil {
			return nil, fmt.Errorf("call %s: metered cost header %q: %w", capabilityID, raw, err)
		}
	}

	return &CallResult{
		Payload:     out,
		MeteredCost: cost,
		Latency:     time.Since(start),
	}, nil
}

func (h *HTTPHost) Ping(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return err
	}
	injectTrace(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

func injectTrace(req *http.Request) {
	var traceBytes [16]byte
	traceID := ""
	if _, err := rand.Read(traceBytes[:]); err == nil {
		traceID = hex.EncodeToString(traceBytes[:])
	} else {
		traceID = fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	req.Header.Set("traceparent", fmt.Sprintf("00-%s-0000000000000001-01", traceID))
}

// StubHost is the deterministic test double. Responses, costs, and
// failures are scripted per capability; every call is recorded.
type StubHost struct {
	mu           sync.Mutex
	descriptors  []Descriptor
	responses    map[string][]byte
	costs        map[string]wealth.Amount
	failures     map[string]error
	latency      time.Duration
	CallLog      []string
	PingFailures map[string]error
}

// NewStubHost creates an empty stub. Script it with Respond and Fail.
func NewStubHost(descriptors ...Descriptor) *StubHost {
	return &StubHost{
		descriptors:  descriptors,
		responses:    make(map[string][]byte),
		costs:        make(map[string]wealth.Amount),
		failures:     make(map[string]error),
		PingFailures: make(map[string]error),
	}
}

// Respond scripts a successful response and metered cost for a capability.
func (s *StubHost) Respond(capabilityID string, payload []byte, cost wealth.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[capabilityID] = payload
	s.costs[capabilityID] = cost
	delete(s.failures, capabilityID)
}

// Fail scripts a failure for a capability.
func (s *StubHost) Fail(capabilityID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[capabilityID] = err
}

// SetLatency makes every call block for d, honoring context cancellation.
func (s *StubHost) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

func (s *StubHost) ListCapabilities(context.Context) ([]Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Descriptor, len(s.descriptors))
	copy(out, s.descriptors)
	return out, nil
}

func (s *StubHost) Call(ctx context.Context, endpoint, capabilityID string, _ []byte) (*CallResult, error) {
	s.mu.Lock()
	s.CallLog = append(s.CallLog, capabilityID)
	delay := s.latency
	failure := s.failures[capabilityID]
	payload, ok := s.responses[capabilityID]
	cost := s.costs[capabilityID]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	if !ok {
		return nil, fmt.Errorf("stub host: no script for capability %s", capabilityID)
	}
	return &CallResult{Payload: payload, MeteredCost: cost, Latency: delay}, nil
}

func (s *StubHost) Ping(_ context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PingFailures[endpoint]
}
