package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthProviderStatus(t *testing.T) {
	h := NewHealth()
	ctx := context.Background()

	h.SetProvider("email_sender", true)
	status, err := h.Check(ctx, "provider/email_sender")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)
	assert.Equal(t, 1.0, testutil.ToFloat64(ProviderUp.WithLabelValues("email_sender")))

	h.SetProvider("email_sender", false)
	status, err = h.Check(ctx, "provider/email_sender")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)
	assert.Equal(t, 0.0, testutil.ToFloat64(ProviderUp.WithLabelValues("email_sender")))
}

func TestHealthOverallServing(t *testing.T) {
	status, err := NewHealth().Check(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)
}

func TestHealthUnknownService(t *testing.T) {
	_, err := NewHealth().Check(context.Background(), "provider/missing")
	assert.Error(t, err)
}

func TestSetProviderNilHealth(t *testing.T) {
	var h *Health
	h.SetProvider("translate", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(ProviderUp.WithLabelValues("translate")))
}
