// Package fedidetect wires the platform-detection service together: the
// detection handler, the status endpoint, and the HTTP(S) transport.
package fedidetect

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fedidetect/fedidetect/config"
	"github.com/fedidetect/fedidetect/detecting"
	"github.com/fedidetect/fedidetect/extra"
	"github.com/fedidetect/fedidetect/transport"
	"go.uber.org/zap"
)

// Node represents the main service component that coordinates the handlers
// and the HTTP server lifecycle.
type Node struct {
	logger     *zap.Logger
	cfg        config.IConfig
	httpServer *http.Server
	done       chan struct{}
}

// New creates a new detection node with the provided logger and config.
func New(logger *zap.Logger, cfg config.IConfig) (*Node, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return &Node{
		logger: logger,
		cfg:    cfg,
		done:   make(chan struct{}),
	}, nil
}

// Start registers the handlers and starts the HTTP server. The server shuts
// down when ctx is cancelled.
func (n *Node) Start(ctx context.Context, mux *http.ServeMux, overwriteListenAddr string) error {
	n.logger.Info("Starting detection node")

	detectPath, err := n.cfg.DetectHandlerPath()
	if err != nil || detectPath == "" {
		n.logger.Warn("Failed to get detect handler path, using default", zap.Error(err))
		detectPath = config.DefaultDetectHandlerPath
	}
	detectTimeout, err := n.cfg.DetectTimeout()
	if err != nil || detectTimeout <= 0 {
		n.logger.Warn("Failed to get detect timeout, using default", zap.Error(err))
		detectTimeout = config.DefaultDetectTimeout
	}

	// One outbound client shared by all detection requests; phase timeouts
	// are enforced per request by the detector.
	httpClient := &http.Client{}

	n.logger.Info("Registering detect handler", zap.String("path", detectPath))
	mux.HandleFunc(detectPath, detecting.Handler(n.logger, httpClient, detectTimeout))

	n.logger.Info("Registering status handler", zap.String("path", "/status"))
	mux.HandleFunc("/status", extra.StatusHandler(n.cfg, n.logger))

	server, listenerErrChan, err := transport.StartHTTPServer(ctx, n.logger, n.cfg, mux, overwriteListenAddr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	n.httpServer = server

	go func() {
		defer close(n.done)
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				n.logger.Error("HTTP server shutdown error", zap.Error(err))
			}
			n.logger.Info("Detection node stopped")
		case err, ok := <-listenerErrChan:
			if ok && err != nil {
				n.logger.Error("HTTP server failed", zap.Error(err))
			}
		}
	}()

	n.logger.Info("Detection node started successfully", zap.String("addr", server.Addr))
	return nil
}

// WaitForShutdown blocks until the node has stopped or the timeout elapses.
// It reports whether shutdown completed in time.
func (n *Node) WaitForShutdown(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-n.done:
		return true
	case <-timer.C:
		n.logger.Warn("Shutdown timeout reached, forcing exit")
		return false
	}
}

// Start creates and starts a node in one call.
func Start(ctx context.Context, logger *zap.Logger, cfg config.IConfig, overwriteListenAddr string) (*Node, error) {
	node, err := New(logger, cfg)
	if err != nil {
		return nil, err
	}
	if err := node.Start(ctx, http.NewServeMux(), overwriteListenAddr); err != nil {
		return nil, err
	}
	return node, nil
}
