// Package cmd implements the nanny subcommands.
//
// Commands receive the parent [context.Context] through Kong's singleton
// binding. The [kong.Context] is stored in that context with [WithContext]
// so commands can reach model variables and the configured writers.
package cmd

//nolint:gochecknoglobals
var (
	// ConfigIdentifier is the kong variable identifier containing the path to
	// the YAML configuration file.
	ConfigIdentifier = "config"

	// StorageIdentifier is the kong variable identifier containing the
	// default directory holding app checkouts and metadata.
	StorageIdentifier = "storage"

	// ServerIdentifier is the kong variable identifier containing the default
	// base URL of the nanny server used by the client commands.
	ServerIdentifier = "server"
)
