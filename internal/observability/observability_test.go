package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"encounter-scribe-service/internal/observability/metrics"
)

func TestServer_Probes(t *testing.T) {
	var readyErr error
	s := NewServer(":0", func(context.Context) error { return readyErr })
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	tests := []struct {
		name   string
		path   string
		err    error
		status int
	}{
		{"healthz", "/healthz", nil, http.StatusOK},
		{"ready", "/readyz", nil, http.StatusOK},
		{"not ready", "/readyz", errors.New("db closed"), http.StatusServiceUnavailable},
		{"metrics", "/metrics", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readyErr = tt.err
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("get %s: %v", tt.path, err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestUnaryServerInterceptor_PassesThrough(t *testing.T) {
	interceptor := UnaryServerInterceptor(metrics.DefaultMetrics)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "resp", nil
	})
	if err != nil || resp != "resp" {
		t.Errorf("expected resp with no error, got %v, %v", resp, err)
	}

	want := status.Error(codes.Unavailable, "down")
	_, err = interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected handler error to propagate, got %v", err)
	}
}

func TestStreamServerInterceptor_PassesThrough(t *testing.T) {
	interceptor := StreamServerInterceptor(metrics.DefaultMetrics)
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true}

	want := status.Error(codes.Canceled, "client gone")
	err := interceptor(nil, nil, info, func(srv interface{}, ss grpc.ServerStream) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected handler error to propagate, got %v", err)
	}
}
