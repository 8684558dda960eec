// Package nanny manages long-running web apps checked out from git
// repositories.
//
// A [Service] clones each app into its own directory under the storage
// directory, launches it on a port from the configured ranges, and stops it
// on request or once it has been idle for too long (see [Reaper]). App
// metadata is kept in a JSON file shared safely between processes (see
// [Store]), and each app's environment is kept both in that file and in a
// .env file next to its checkout.
//
// Apps outlive the manager. A new [Service] re-adopts apps whose PID files
// name live processes.
package nanny
