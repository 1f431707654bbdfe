package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ewilliams-labs/setlist/internal/logging"
)

type mockHTTPServer struct {
	listenErr     error
	started       chan struct{}
	stopCh        chan struct{}
	shutdownCount atomic.Int32
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{started: make(chan struct{}, 1), stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	select {
	case m.started <- struct{}{}:
	default:
	}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(ctx context.Context) error {
	m.shutdownCount.Add(1)
	close(m.stopCh)
	return nil
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	srv := newMockHTTPServer()
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case <-srv.started:
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	if srv.shutdownCount.Load() != 1 {
		t.Fatalf("shutdown calls: got %d, want 1", srv.shutdownCount.Load())
	}
}

func TestHTTPServerService_ListenError(t *testing.T) {
	srv := newMockHTTPServer()
	srv.listenErr = errors.New("address already in use")
	svc := NewHTTPServerService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, srv.listenErr) {
		t.Fatalf("expected wrapped listen error, got %v", err)
	}
	if svc.String() != "http-server" {
		t.Fatalf("String() = %q", svc.String())
	}
}

type countingService struct {
	runs atomic.Int32
}

func (s *countingService) Serve(ctx context.Context) error {
	s.runs.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestTree_RunsServicesUntilCancelled(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), TreeConfig{ShutdownTimeout: time.Second})
	worker := &countingService{}
	api := &countingService{}
	tree.AddWorkerService(worker)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for worker.runs.Load() == 0 || api.runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("services were not started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}
	report, err := tree.UnstoppedServiceReport()
	if err != nil {
		t.Fatalf("unstopped report: %v", err)
	}
	if len(report) != 0 {
		t.Fatalf("unstopped services: %v", report)
	}
}
