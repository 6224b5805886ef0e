package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/example/go-simscore/internal/config"
	"github.com/example/go-simscore/internal/similarity"
)

func TestStart_LifecycleHealthAndShutdown(t *testing.T) {
	// Find an available port.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	addr := ln.Addr().String()
	ln.Close()

	cfg := config.DefaultConfig().Server
	cfg.ListenAddr = addr

	s := New(cfg, similarity.Cosine{}).WithShutdownTimeout(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.Start(ctx)
	}()

	client := &http.Client{Timeout: 2 * time.Second}

	var resp *http.Response

	for range 50 {
		resp, err = client.Get(fmt.Sprintf("http://%s/health", addr))
		if err == nil {
			break
		}

		time.Sleep(20 * time.Millisecond)
	}

	if err != nil {
		t.Fatalf("server never became ready: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d; want 200", resp.StatusCode)
	}

	if err := ProbeHTTP(addr); err != nil {
		t.Fatalf("ProbeHTTP: %v", err)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start returned %v; want nil after shutdown", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStart_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := config.DefaultConfig().Server
	cfg.ListenAddr = ln.Addr().String()

	if err := New(cfg, similarity.Cosine{}).Start(context.Background()); err == nil {
		t.Fatal("Start on a busy port = nil; want error")
	}
}

func TestProbeHTTP_Unreachable(t *testing.T) {
	if err := ProbeHTTP("127.0.0.1:1"); err == nil {
		t.Fatal("ProbeHTTP on closed port = nil; want error")
	}
}
