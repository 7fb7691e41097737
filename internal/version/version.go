// Package version holds the build version, overridable at link time with
// -ldflags "-X spotter/internal/version.Version=...".
package version

var Version = "0.4.0"
