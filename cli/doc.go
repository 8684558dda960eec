// Package cli contains the command line interface for nanny.
//
// # Usage
//
//	nanny serve --listen :5000 --port-range 8080-8089
//	nanny app create demo --type flask --repo https://example.com/demo.git --path app.py
//	nanny app start demo
//	nanny app list --where 'running && idle > 3600'
//	nanny env parse .env
//	nanny env merge --mode overwrite base.env new.env -o json
//
// # Configuration
//
// Flag defaults are read from config.yaml and config.toml in the user
// configuration directory (for example, ~/.config/nanny). Keys name flags
// without their leading dashes, and nested mappings are joined with "-":
//
//	log:
//	  level: debug
//	listen: ":8000"
//	port-range: [8080-8089, 4040-4049]
//
// When both files set a flag, the YAML file wins. Command-line flags
// override both. "nanny init" writes config.yaml from the current flag
// values.
//
// # Logging Options
//
//   - --log-level: Set minimum log level (trace, debug, info, warn, error)
//   - --log-format: Set log output format (json, text)
//   - --log-time-layout: Set timestamp format (RFC3339, RFC3339Nano, etc.)
//   - --log-caller: Include caller information in log output
//   - --log-pretty: Colorize log output
//
// # Profiling Options
//
// Profiling is only available when built with the pprof build tag:
//
//	go build -tags pprof -o nanny .
//
// With the tag, the HTTP API also serves /debug/pprof/.
//
//   - --pprof-mode: Enable profiling (allocs, block, clock, cpu, goroutine,
//     heap, mem, mutex, thread, trace)
//   - --pprof-dir: Set profile output directory
package cli
