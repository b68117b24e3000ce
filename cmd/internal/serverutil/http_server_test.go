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

package serverutil_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/google/tilelog/cmd/internal/serverutil"

	_ "net/http/pprof"
)

func pickFreePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected addr type: %T", ln.Addr())
	}
	return addr.Port
}

func httpGet(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url) //nolint:gosec
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func waitForStatus(t *testing.T, url string, want int) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url) //nolint:gosec
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == want {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d from %s", want, url)
}

// start runs m until the test ends, and returns its base URL.
func start(t *testing.T, m *serverutil.Main) string {
	t.Helper()
	httpPort := pickFreePort(t)
	m.HTTPEndpoint = fmt.Sprintf("127.0.0.1:%d", httpPort)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for server shutdown")
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		}
	})
	return fmt.Sprintf("http://127.0.0.1:%d", httpPort)
}

func TestHTTPServerDoesNotExposeDefaultServeMux(t *testing.T) {
	closed := false
	t.Cleanup(func() {
		if !closed {
			t.Error("Close not called")
		}
	})
	baseURL := start(t, &serverutil.Main{
		Close: func() error { closed = true; return nil },
	})
	waitForStatus(t, baseURL+"/healthz", http.StatusOK)

	if got, _ := httpGet(t, baseURL+"/metrics"); got != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", got)
	}

	if got, _ := httpGet(t, baseURL+"/debug/pprof/"); got != http.StatusNotFound {
		t.Fatalf("expected 404 from /debug/pprof/, got %d", got)
	}
}

func TestUnhealthy(t *testing.T) {
	errUnhealthy := errors.New("storage unreachable")
	baseURL := start(t, &serverutil.Main{
		IsHealthy: func(context.Context) error { return errUnhealthy },
	})
	waitForStatus(t, baseURL+"/healthz", http.StatusServiceUnavailable)

	if code, body := httpGet(t, baseURL+"/healthz"); body != errUnhealthy.Error() {
		t.Errorf("GET /healthz = %d %q, want %q", code, body, errUnhealthy)
	}
}
