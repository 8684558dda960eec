package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// closeGrace bounds the close handshake when a relay ends.
const closeGrace = 500 * time.Millisecond

// proxy forwards a request under /proxy/<name>/ to the app's port. Requests
// that upgrade to a websocket are relayed message by message.
func (s *Server) proxy(c echo.Context) error {
	name := c.Param("name")

	port, err := s.svc.Port(name)
	if err != nil {
		return writeErr(c, err)
	}

	target := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(s.cfg.UpstreamHost, strconv.Itoa(port)),
	}

	path := "/" + c.Param("*")

	if websocket.IsWebSocketUpgrade(c.Request()) {
		return s.relay(c, name, target, path)
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.Out.URL.Path = path
			r.Out.URL.RawPath = ""
			r.SetXForwarded()
		},
		ModifyResponse: func(resp *http.Response) error {
			if resp.StatusCode < http.StatusBadRequest {
				s.touch(name)
			}

			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.log.WarnContext(r.Context(), "proxy error",
				slog.String("app", name),
				slogErr(ErrProxy.Wrap(err)),
			)
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("proxy error: " + err.Error()))
		},
	}

	rp.ServeHTTP(c.Response(), c.Request())

	return nil
}

// touch records a heartbeat for traffic through the proxy.
func (s *Server) touch(name string) {
	if err := s.svc.Heartbeat(name); err != nil {
		s.log.Debug("proxy heartbeat failed", slog.String("app", name), slogErr(err))
	}
}

// relay connects to the app's websocket endpoint and copies messages in
// both directions until either side closes.
func (s *Server) relay(c echo.Context, name string, target *url.URL, path string) error {
	req := c.Request()

	upstreamURL := *target
	upstreamURL.Scheme = "ws"
	upstreamURL.Path = path
	upstreamURL.RawQuery = req.URL.RawQuery

	header := http.Header{}
	for _, h := range []string{"Cookie", "Authorization", "User-Agent"} {
		if v := req.Header.Get(h); v != "" {
			header.Set(h, v)
		}
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
		Subprotocols:     websocket.Subprotocols(req),
	}

	upstream, resp, err := dialer.DialContext(req.Context(), upstreamURL.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		s.log.WarnContext(req.Context(), "websocket dial failed",
			slog.String("app", name),
			slog.String("url", upstreamURL.String()),
			slogErr(ErrProxy.Wrap(err)),
		)

		return writeError(c, http.StatusBadGateway, "proxy error: "+err.Error())
	}
	defer upstream.Close()

	var respHeader http.Header
	if proto := upstream.Subprotocol(); proto != "" {
		respHeader = http.Header{"Sec-WebSocket-Protocol": {proto}}
	}

	client, err := s.upgrader.Upgrade(c.Response(), req, respHeader)
	if err != nil {
		return nil //nolint:nilerr // Upgrade has already written the response
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	var wg sync.WaitGroup

	errs := make(chan error, 2) //nolint:mnd

	wg.Go(func() { errs <- s.pump(ctx, name, upstream, client) })
	wg.Go(func() { errs <- s.pump(ctx, name, client, upstream) })

	err = <-errs
	cancel()

	deadline := time.Now().Add(closeGrace)
	closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		closing = websocket.FormatCloseMessage(ce.Code, ce.Text)
	}

	_ = client.WriteControl(websocket.CloseMessage, closing, deadline)
	_ = upstream.WriteControl(websocket.CloseMessage, closing, deadline)
	_ = client.Close()
	_ = upstream.Close()

	wg.Wait()

	return nil
}

// pump copies messages from src to dst. Each relayed message counts as a
// heartbeat.
func (s *Server) pump(ctx context.Context, name string, dst, src *websocket.Conn) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		kind, payload, err := src.ReadMessage()
		if err != nil {
			return err
		}

		if err := dst.WriteMessage(kind, payload); err != nil {
			return err
		}

		s.touch(name)
	}
}
