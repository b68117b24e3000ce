// Copyright 2026 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package serverutil holds code for running tilelog HTTP servers.
package serverutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
)

// Main encapsulates the data and logic to start a tilelog server.
type Main struct {
	// HTTPEndpoint is the address the server listens on.
	HTTPEndpoint string

	// TLS Certificate and Key files for the server.
	TLSCertFile, TLSKeyFile string

	// Close is called when the server exits, if set.
	Close func() error

	// IsHealthy will be called whenever "/healthz" is called on the mux.
	// A nil return value from this function will result in a 200-OK response
	// on the /healthz endpoint.
	IsHealthy func(context.Context) error
	// HealthyDeadline is the maximum duration to wait for a successful
	// IsHealthy() call.
	HealthyDeadline time.Duration

	// ShutdownTimeout bounds the wait for open requests when ctx is done.
	ShutdownTimeout time.Duration
}

func (m *Main) healthz(rw http.ResponseWriter, req *http.Request) {
	if m.IsHealthy != nil {
		ctx, cancel := context.WithTimeout(req.Context(), m.HealthyDeadline)
		defer cancel()
		if err := m.IsHealthy(ctx); err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_, _ = rw.Write([]byte(err.Error()))
			return
		}
	}
	_, _ = rw.Write([]byte("ok"))
}

// Mux returns the handler for all the server's endpoints. It does not use
// http.DefaultServeMux.
func (m *Main) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", m.healthz)
	return mux
}

// Run starts the configured server. Blocks until the server exits, which it
// does when ctx is done.
func (m *Main) Run(ctx context.Context) error {
	if m.HealthyDeadline == 0 {
		m.HealthyDeadline = 5 * time.Second
	}
	if m.ShutdownTimeout == 0 {
		m.ShutdownTimeout = 10 * time.Second
	}
	if m.Close != nil {
		defer func() {
			if err := m.Close(); err != nil {
				klog.Errorf("Close: %v", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", m.HTTPEndpoint)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           m.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		klog.Infof("HTTP server starting on %v", lis.Addr())
		// Let ServeTLS handle the error case when only one of the flags is set.
		if m.TLSCertFile != "" || m.TLSKeyFile != "" {
			errCh <- srv.ServeTLS(lis, m.TLSCertFile, m.TLSKeyFile)
		} else {
			errCh <- srv.Serve(lis)
		}
	}()

	select {
	case err := <-errCh:
		klog.Errorf("HTTP server stopped: %v", err)
		return err
	case <-ctx.Done():
	}

	klog.Info("Stopping HTTP server")
	sctx, cancel := context.WithTimeout(context.Background(), m.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
