package server

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// upstream starts a fake app and registers it as the running app "demo".
func upstream(t *testing.T, svc *fakeService, h http.Handler) {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	_, port, _ := net.SplitHostPort(u.Host)

	p, err := strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}

	svc.setPort("demo", p)
}

func TestProxy_HTTP(t *testing.T) {
	svc := newFakeService("demo", "idle")
	upstream(t, svc, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			http.Error(w, "nope", http.StatusInternalServerError)

			return
		}

		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Upstream", "yes")
		_, _ = io.WriteString(w, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery+" "+string(body))
	}))

	s := newTestServer(t, svc)

	rec := do(t, s, http.MethodPost, "/proxy/demo/api/items?limit=2", "payload")
	if rec.Code != http.StatusOK {
		t.Fatalf("proxy = %d %s", rec.Code, rec.Body.String())
	}

	if got := rec.Body.String(); got != "POST /api/items?limit=2 payload" {
		t.Errorf("upstream saw %q", got)
	}

	if rec.Header().Get("X-Upstream") != "yes" {
		t.Error("upstream headers not forwarded")
	}

	if rec := do(t, s, http.MethodGet, "/proxy/demo", ""); !strings.HasPrefix(rec.Body.String(), "GET /?") {
		t.Errorf("root proxy = %q", rec.Body.String())
	}

	if n := svc.heartbeatCount("demo"); n != 2 {
		t.Errorf("heartbeats after success = %d, want 2", n)
	}

	if rec := do(t, s, http.MethodGet, "/proxy/demo/fail", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("failing upstream = %d", rec.Code)
	}

	if n := svc.heartbeatCount("demo"); n != 2 {
		t.Errorf("error responses counted as heartbeats: %d", n)
	}

	if rec := do(t, s, http.MethodGet, "/proxy/idle/", ""); rec.Code != http.StatusConflict {
		t.Errorf("proxy to stopped app = %d", rec.Code)
	}

	if rec := do(t, s, http.MethodGet, "/proxy/nope/", ""); rec.Code != http.StatusNotFound {
		t.Errorf("proxy to unknown app = %d", rec.Code)
	}
}

func TestProxy_BadGateway(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	svc := newFakeService("demo")
	svc.setPort("demo", port)

	rec := do(t, newTestServer(t, svc), http.MethodGet, "/proxy/demo/", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("proxy to closed port = %d", rec.Code)
	}
}

func TestProxy_WebSocket(t *testing.T) {
	svc := newFakeService("demo")

	var upgrader websocket.Upgrader

	upstream(t, svc, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			reply := r.URL.Path + ":" + strings.ToUpper(string(msg))
			if err := conn.WriteMessage(kind, []byte(reply)); err != nil {
				return
			}
		}
	}))

	front := httptest.NewServer(newTestServer(t, svc).Handler())
	t.Cleanup(front.Close)

	wsURL := "ws" + strings.TrimPrefix(front.URL, "http") + "/proxy/demo/stream"

	conn, resp, err := websocket.DefaultDialer.DialContext(t.Context(), wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	defer conn.Close()

	for _, msg := range []string{"hello", "again"} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatal(err)
		}

		_, got, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}

		if want := "/stream:" + strings.ToUpper(msg); string(got) != want {
			t.Errorf("relayed %q, want %q", got, want)
		}
	}

	// Each message crosses the relay twice.
	deadline := time.Now().Add(5 * time.Second)
	for svc.heartbeatCount("demo") < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("heartbeats = %d, want at least 4", svc.heartbeatCount("demo"))
		}

		time.Sleep(10 * time.Millisecond)
	}
}
