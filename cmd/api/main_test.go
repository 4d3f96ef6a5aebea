package main

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/zhouzirui/z-relay/backend/internal/config"
	"github.com/zhouzirui/z-relay/backend/internal/service/session"
)

type closeRecorder struct {
	closed chan struct{}
}

func (c *closeRecorder) ReadMessage() (int, []byte, error) { return 0, nil, errors.New("idle") }
func (c *closeRecorder) Emit(string, any) error            { return nil }

func (c *closeRecorder) Close() error {
	close(c.closed)
	return nil
}

func TestRunServerClosesSessionsOnShutdown(t *testing.T) {
	registry := session.NewRegistry(0)
	conn := &closeRecorder{closed: make(chan struct{})}
	if _, err := registry.Register("live", conn); err != nil {
		t.Fatalf("Register err: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() {
		done <- runServer(ctx, srv, registry)
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer err: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServer did not return after cancellation")
	}

	select {
	case <-conn.closed:
	default:
		t.Fatal("expected live session to be closed on shutdown")
	}
}

func TestRootCommandFlagsBindToConfig(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("LOG_FORMAT", "text")

	v := viper.New()
	cmd := newRootCmd(v)
	if err := cmd.Flags().Set("addr", "9090"); err != nil {
		t.Fatalf("Set addr err: %v", err)
	}
	if err := cmd.Flags().Set("log-format", "json"); err != nil {
		t.Fatalf("Set log-format err: %v", err)
	}

	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("expected flag to override PORT, got %s", cfg.Server.Addr)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected flag to override LOG_FORMAT, got %s", cfg.Logging.Format)
	}
}
