// Package server exposes a [nanny.Service] over HTTP.
//
// Responses use JSend envelopes. Running apps are reachable through the
// path-based reverse proxy at /proxy/<name>/, which also relays websocket
// connections; proxied traffic counts as a heartbeat for the app.
package server
