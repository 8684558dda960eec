// Package dashboard implements a terminal dashboard for a nanny server.
//
// The dashboard lists every app with its state, port, uptime, and idle time,
// refreshing on an interval. Apps can be filtered by fuzzy-matching their
// names and started, stopped, or restarted from the keyboard.
//
// # Keys
//
//	up/k, down/j  move the selection
//	/             filter by name (enter keeps the filter, esc clears it)
//	s             start the selected app
//	x             stop the selected app
//	r             pull and restart the selected app
//	g             refresh now
//	q, ctrl+c     quit
package dashboard
