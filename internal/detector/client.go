// Package detector is the HTTP client for the external fraud detection engine.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/projection"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the correlation id to the engine.
const RequestIDHeader = "X-Request-ID"

// maxResponseSize caps how much of an engine response is read.
const maxResponseSize = 256 << 20

var tracer = otel.Tracer("kestrel-detector")

type requestIDKey struct{}

// WithRequestID stores a correlation id that outgoing engine calls reuse.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok && v != "" {
		return v
	}
	return uuid.New().String()
}

// Client talks to the detection engine over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a new engine client.
// The endpoint defaults to "http://localhost:8000" if empty.
func NewClient(cfg domain.EngineConfig) *Client {
	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if endpoint == "" {
		endpoint = "http://localhost:8000"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// Analyze uploads a transactions file and returns the decoded analysis together
// with the exact bytes the engine sent.
func (c *Client) Analyze(ctx context.Context, filename string, file io.Reader) (*domain.AnalysisResponse, []byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "/api/analyze", mw.FormDataContentType(), &body,
		attribute.String("upload.filename", filename))
	if err != nil {
		return nil, nil, err
	}

	resp, err := projection.Decode(raw)
	if err != nil {
		return nil, nil, err
	}
	return resp, raw, nil
}

// Simulate asks the engine to evaluate a hypothetical transaction.
func (c *Client) Simulate(ctx context.Context, req domain.SimulationRequest) (*domain.SimulationResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal simulation request: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "/api/simulate", "application/json", bytes.NewReader(payload),
		attribute.String("simulation.sender", req.SenderID),
		attribute.String("simulation.receiver", req.ReceiverID))
	if err != nil {
		return nil, err
	}

	return projection.DecodeSimulation(raw)
}

// Accounts lists every account id the engine knows for the loaded analysis.
func (c *Client) Accounts(ctx context.Context) ([]string, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/accounts", "", nil)
	if err != nil {
		return nil, err
	}

	var list domain.AccountList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: accounts: %v", domain.ErrMalformedResponse, err)
	}
	if list.Accounts == nil {
		list.Accounts = []string{}
	}
	return list.Accounts, nil
}

// Health checks that the engine is reachable.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/health", "", nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, attrs ...attribute.KeyValue) ([]byte, error) {
	reqID := requestID(ctx)

	ctx, span := tracer.Start(ctx, "engine "+method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs,
			attribute.String("http.method", method),
			attribute.String("http.path", path),
			attribute.String("request.id", reqID),
		)...),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine unreachable")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.EngineError{Message: fmt.Sprintf("engine unreachable: %v", err)}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read engine response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		engineErr := &domain.EngineError{Status: resp.StatusCode, Message: errorDetail(resp.StatusCode, raw)}
		span.SetStatus(codes.Error, engineErr.Message)
		return nil, engineErr
	}

	return raw, nil
}

// errorDetail extracts the engine's "detail" field, falling back to the
// status text when the body carries none.
func errorDetail(status int, raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 && string(body.Detail) != "null" {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			if s != "" {
				return s
			}
		} else {
			return string(body.Detail)
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}
