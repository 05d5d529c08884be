package handlers

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// freePort asks the kernel for an unused TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func TestServer_RegisterHTTPHandler(t *testing.T) {
	logger := zaptest.NewLogger(t)
	s := NewServer(50051, 8080, logger)

	err := s.RegisterHTTPHandler(NewHandler(nil, "secret", logger), "secret")
	require.NoError(t, err)
	require.NotNil(t, s.httpServer.Handler)
	assert.Equal(t, s.httpEndpoint, s.httpServer.Addr)

	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_StartStop(t *testing.T) {
	logger := zaptest.NewLogger(t)
	s := NewServer(freePort(t), freePort(t), logger, grpc.Creds(insecure.NewCredentials()))
	require.NoError(t, s.RegisterHTTPHandler(NewHandler(nil, "secret", logger), "secret"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	conn, err := grpc.NewClient(
		"127.0.0.1"+s.grpcEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	assert.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 3*time.Second, 50*time.Millisecond)

	assert.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1" + s.httpEndpoint + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 50*time.Millisecond)

	s.Stop()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for server to stop")
	}

	lis, err := net.Listen("tcp", s.grpcEndpoint)
	require.NoError(t, err, "gRPC endpoint should be free after shutdown")
	lis.Close()
}
