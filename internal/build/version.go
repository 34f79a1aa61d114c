package build

import (
	"fmt"
	"runtime/debug"
	"strings"
)

const (
	appMajor = 0
	appMinor = 1
	appPatch = 0

	// appPreRelease must only contain characters from semver's
	// alphanumeric set.
	appPreRelease = "beta"
)

var (
	// Commit is the commit the binary was built from, set at link time
	// with -ldflags "-X .../internal/build.Commit=...".
	Commit string

	// CommitHash is the VCS revision recorded by the Go toolchain. It
	// is used when Commit is not set.
	CommitHash string

	// GoVersion is the Go version the binary was built with.
	GoVersion string

	// RawTags is the comma separated list of build tags, set at link
	// time.
	RawTags string
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	GoVersion = info.GoVersion
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			CommitHash = s.Value
		}
	}
}

// Version returns the semantic version of the application.
func Version() string {
	v := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appPreRelease != "" {
		v += "-" + appPreRelease
	}

	return v
}

// Tags returns the build tags the binary was built with.
func Tags() []string {
	if RawTags == "" {
		return nil
	}

	return strings.Split(RawTags, ",")
}
