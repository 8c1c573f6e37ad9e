package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/pulseguard/internal/model"
)

// ErrMalformedPayload is returned when the sensor answers with a body
// that does not carry a numeric heart rate and a status string.
var ErrMalformedPayload = errors.New("malformed sensor payload")

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 64 << 10
)

// Source yields the current sensor reading.
type Source interface {
	Fetch(ctx context.Context) (model.Sample, error)
}

// HTTPSource polls a JSON endpoint with GET.
type HTTPSource struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewHTTPSource creates a source for the given endpoint.
// A zero timeout uses 10s.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// payload is the wire shape. Pointers distinguish absent fields from zero.
type payload struct {
	HeartRate *float64        `json:"current_heart_rate"`
	Status    *string         `json:"status"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// Fetch performs one GET and decodes the reading.
func (s *HTTPSource) Fetch(ctx context.Context) (model.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return model.Sample{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return model.Sample{}, fmt.Errorf("sensor request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.Sample{}, fmt.Errorf("read sensor response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Sample{}, fmt.Errorf("sensor HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return Decode(body, s.now())
}

// Decode parses a sensor body received at receivedAt.
func Decode(body []byte, receivedAt time.Time) (model.Sample, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return model.Sample{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.HeartRate == nil {
		return model.Sample{}, fmt.Errorf("%w: missing current_heart_rate", ErrMalformedPayload)
	}
	if math.IsNaN(*p.HeartRate) || math.IsInf(*p.HeartRate, 0) {
		return model.Sample{}, fmt.Errorf("%w: non-finite current_heart_rate", ErrMalformedPayload)
	}
	if p.Status == nil {
		return model.Sample{}, fmt.Errorf("%w: missing status", ErrMalformedPayload)
	}

	deviceTime, err := parseTimestamp(p.Timestamp)
	if err != nil {
		return model.Sample{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if deviceTime.IsZero() {
		deviceTime = receivedAt
	}

	return model.Sample{
		HeartRate:  *p.HeartRate,
		Status:     *p.Status,
		DeviceTime: deviceTime.UTC(),
		ReceivedAt: receivedAt.UTC(),
	}, nil
}

// parseTimestamp accepts unix seconds (int or float) or an RFC 3339 string.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err == nil {
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)), nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %v", err)
	}
	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %v", err)
	}
	return t, nil
}
