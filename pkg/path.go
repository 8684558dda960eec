package pkg

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/adrg/xdg"
)

// DirMode is the permission mode used for directories created by nanny.
const DirMode os.FileMode = 0o700

// Prefix returns the base prefix string used to construct the path to the
// configuration directory and the prefix for environment variable identifiers.
//
// By default, Prefix is the base name of the executable file unless it matches
// one of the following substitution rules:
//   - "*.test" (go test binaries): replaced with [Name]
//   - "__debug_bin" (default output of the dlv debugger): replaced with [Name]
//   - "^\.+" (dot-prefixed names): remove the dot prefix
//
//nolint:gochecknoglobals
var Prefix = sync.OnceValue(
	func() string {
		id := os.Args[0]
		exe, err := os.Executable()
		if err == nil {
			id = exe
		}

		ext := filepath.Ext(filepath.Base(id))
		id = strings.TrimSuffix(filepath.Base(id), ext)

		if ext == ".test" { // go test binaries
			id = Name
		}

		for rex, rep := range map[*regexp.Regexp]string{
			regexp.MustCompile(`^__debug_bin\d+$`): Name, // default output from dlv
			regexp.MustCompile(`^\.+`):             "",   // remove leading dot(s)
		} {
			id = rex.ReplaceAllString(id, rep)
		}

		if id == "" {
			id = Name
		}

		return id
	},
)

// ConfigDir returns the configuration directory path.
//
//nolint:gochecknoglobals
var ConfigDir = sync.OnceValue(
	func() string {
		return filepath.Join(xdg.ConfigHome, Prefix())
	},
)

// CacheDir returns the cache directory path used for transient files.
//
//nolint:gochecknoglobals
var CacheDir = sync.OnceValue(
	func() string {
		return filepath.Join(xdg.CacheHome, Prefix())
	},
)

// DataDir returns the directory holding managed application checkouts and
// their metadata.
//
//nolint:gochecknoglobals
var DataDir = sync.OnceValue(
	func() string {
		return filepath.Join(xdg.DataHome, Prefix())
	},
)

// ConfigPath returns the path formed by joining the configuration directory
// with the given path elements.
//
// If no elements are given, it is equivalent to calling [ConfigDir].
func ConfigPath(elem ...string) string {
	return filepath.Join(append([]string{ConfigDir()}, elem...)...)
}

// MkdirAll creates the configuration, cache, and data directories.
func MkdirAll() error {
	for _, dir := range []string{ConfigDir(), CacheDir(), DataDir()} {
		if err := os.MkdirAll(dir, DirMode); err != nil {
			return err
		}
	}

	return nil
}
