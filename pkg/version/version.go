// Package version carries the build version, overridable at link time with
// -ldflags "-X racepulse/pkg/version.Version=...".
package version

// Version is the current build version.
var Version = "0.1.0-dev"
