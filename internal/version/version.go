// Package version carries ingestd's build version for startup logging and
// the ObsConfig.ServiceVersion field passed to OTel resource attribution.
package version

// Version is the build version string.
//
// It is typically set at build time via:
//
//	-ldflags "-X github.com/autollama/autollama-sub002/internal/version.Version=<version>"
//
// The default is "dev".
var Version = "dev"
