// Package version holds build-time version information for the tdsqa binary.
// The variables in this package are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/tdsqa-go/internal/version.Version=v1.2.3 \
//	                    -X github.com/54b3r/tdsqa-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/tdsqa-go/internal/version.BuildDate=2025-01-01"
//
// Version is also reported by the service health endpoint (GET /) and is
// recorded in every index artifact the builder writes.
package version

import "fmt"

// Version is the semantic version of the binary (e.g. "v1.2.3").
// Set at build time via -ldflags. Defaults to "dev" for local builds.
var Version = "dev"

// Commit is the short git SHA of the commit the binary was built from.
// Set at build time via -ldflags. Defaults to "unknown".
var Commit = "unknown"

// BuildDate is the UTC date the binary was built (RFC3339 format).
// Set at build time via -ldflags. Defaults to "unknown".
var BuildDate = "unknown"

// String renders the full version line printed by `tdsqa version`.
func String() string {
	return fmt.Sprintf("tdsqa %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
