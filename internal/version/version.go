// Package version carries build metadata stamped in at link time.
package version

import "runtime"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the long form printed by `vochat version`.
func String() string {
	return "vochat " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// UserAgent is sent on outbound HTTP requests.
func UserAgent() string {
	return "vochat/" + Version
}
