package metrics

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Health serves the standard gRPC health protocol. The empty service name
// reports overall process health; providers report as "provider/<namespace>".
type Health struct {
	srv *health.Server
}

// NewHealth creates a health registry with overall status SERVING.
func NewHealth() *Health {
	return &Health{srv: health.NewServer()}
}

// SetProvider records a provider session's liveness. Safe on a nil receiver.
func (h *Health) SetProvider(namespace string, up bool) {
	if up {
		ProviderUp.WithLabelValues(namespace).Set(1)
	} else {
		ProviderUp.WithLabelValues(namespace).Set(0)
	}
	if h == nil {
		return
	}
	h.Set("provider/"+namespace, up)
}

// Set records the status of a named service.
func (h *Health) Set(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.srv.SetServingStatus(service, status)
}

// Check returns the current status of a service, as a remote client would see it.
func (h *Health) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.srv.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Serve listens on addr until ctx is cancelled.
func (h *Health) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, h.srv)

	go func() {
		<-ctx.Done()
		h.srv.Shutdown()
		gs.GracefulStop()
	}()

	if err := gs.Serve(lis); err != nil && ctx.Err() == nil {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
