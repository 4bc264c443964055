// Package hlchttp contains common constants, functions, and types for working
// with HTTP.
package hlchttp

import "github.com/AdguardTeam/HostlistCompiler/internal/version"

// HTTP header value constants.
const (
	HdrValApplicationJSON = "application/json"
	HdrValTextEventStream = "text/event-stream"
	HdrValTextPlain       = "text/plain"
)

// RobotsDisallowAll is a predefined robots disallow all content.
const RobotsDisallowAll = "User-agent: *\nDisallow: /\n"

// userAgent is the cached User-Agent string for HostlistCompiler.
var userAgent = version.Name() + "/" + version.Version()

// UserAgent returns the ID of the service as a User-Agent string.  It can also
// be used as the value of the Server HTTP header.
func UserAgent() (ua string) {
	return userAgent
}
