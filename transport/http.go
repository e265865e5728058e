package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fedidetect/fedidetect/config"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

// StartHTTPServer starts the HTTP/HTTPS server based on the provided
// configuration. It returns the server instance and a channel that signals
// listener errors after startup. An immediate error is returned if setup
// fails before starting the listener.
func StartHTTPServer(ctx context.Context, logger *zap.Logger, cfg config.IConfig, mux http.Handler, overwriteListenAddr string) (*http.Server, <-chan error, error) {
	if logger == nil {
		return nil, nil, errors.New("logger cannot be nil")
	}
	if cfg == nil {
		return nil, nil, errors.New("config cannot be nil")
	}
	if mux == nil {
		return nil, nil, errors.New("http handler (mux) cannot be nil")
	}

	listenAddr := overwriteListenAddr
	if listenAddr == "" {
		var err error
		listenAddr, err = cfg.ListenAddr()
		if err != nil {
			logger.Error("Failed to get listen address from config", zap.Error(err))
			return nil, nil, fmt.Errorf("failed to get listen address: %w", err)
		}
	}

	server := &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second, // Longer for SSE detection streams
		IdleTimeout:  90 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	sslEnabled, err := cfg.SSLEnabled()
	if err != nil {
		logger.Warn("Failed to read SSL enabled setting, assuming disabled", zap.Error(err))
		sslEnabled = false
	}

	var certFile, keyFile string
	isACME := false
	if sslEnabled {
		sslMode, _ := cfg.SSLMode()
		if sslMode == "acme" {
			isACME = true
			tlsConfig, err := acmeTLSConfig(cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			server.TLSConfig = tlsConfig
		} else {
			certFile, err = cfg.SSLCertFile()
			if err != nil || certFile == "" {
				return nil, nil, fmt.Errorf("manual SSL mode requires a certificate file path (config key 'cert_file'): %w", err)
			}
			keyFile, err = cfg.SSLKeyFile()
			if err != nil || keyFile == "" {
				return nil, nil, fmt.Errorf("manual SSL mode requires a private key file path (config key 'key_file'): %w", err)
			}
		}
	}

	listenerErrChan := make(chan error, 1)

	go func() {
		defer close(listenerErrChan)

		var err error
		if sslEnabled {
			logger.Info("Starting HTTPS server", zap.String("addr", listenAddr), zap.Bool("isACME", isACME))
			if isACME {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServeTLS(certFile, keyFile)
			}
		} else {
			logger.Info("Starting HTTP server", zap.String("addr", listenAddr))
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server listener error", zap.Error(err))
			listenerErrChan <- err
			return
		}
		logger.Info("HTTP server listener stopped gracefully")
	}()

	return server, listenerErrChan, nil
}

// acmeTLSConfig builds an autocert-backed TLS config and starts the HTTP
// challenge listener ACME requires.
func acmeTLSConfig(cfg config.IConfig, logger *zap.Logger) (*tls.Config, error) {
	domains, err := cfg.SSLAcmeDomains()
	if err != nil || len(domains) == 0 {
		return nil, fmt.Errorf("ACME mode requires at least one domain in config (key 'acme_domains'): %w", err)
	}
	email, _ := cfg.SSLAcmeEmail() // Optional but recommended
	cacheDir, err := cfg.SSLAcmeCacheDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get ACME cache directory: %w", err)
	}
	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create ACME cache directory '%s': %w", cacheDir, err)
	}

	certManager := autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Email:      email,
		Cache:      autocert.DirCache(cacheDir),
	}

	go func() {
		challengeServer := &http.Server{
			Addr:    ":80",
			Handler: certManager.HTTPHandler(nil),
		}
		logger.Info("Starting ACME HTTP challenge listener", zap.String("addr", ":80"))
		if err := challengeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ACME HTTP challenge listener error", zap.Error(err))
		}
	}()

	return certManager.TLSConfig(), nil
}
