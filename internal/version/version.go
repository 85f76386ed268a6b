// Package version provides build-time version information for avpump.
//
// The variables are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/jmylchreest/avpump/internal/version.Version=x.y.z \
//	                   -X github.com/jmylchreest/avpump/internal/version.Commit=$(git rev-parse HEAD)"
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
)

// Build-time variables injected via ldflags.
var (
	// Version is the semantic version. Snapshots look like
	// "1.2.3-SNAPSHOT.abc1234".
	Version = "dev"

	// Commit is the full git commit SHA.
	Commit = "unknown"

	// Date is the build timestamp in RFC3339 format.
	Date = "unknown"

	// Branch is the git branch the binary was built from.
	Branch = ""

	// TreeState is "clean" or "dirty".
	TreeState = ""
)

// ApplicationName is the canonical name of this application.
const ApplicationName = "avpump"

// Info contains structured version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	CommitSHA string `json:"commit_sha"`
	Date      string `json:"date"`
	Branch    string `json:"branch,omitempty"`
	TreeState string `json:"tree_state,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo returns all version information as a structured type.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		CommitSHA: shortCommit(),
		Date:      Date,
		Branch:    Branch,
		TreeState: TreeState,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

func shortCommit() string {
	if Commit == "unknown" || len(Commit) < 8 {
		return ""
	}
	return Commit[:8]
}

// commitLabel is the short commit with a "*" suffix for dirty trees.
func commitLabel() string {
	sha := shortCommit()
	if sha != "" && TreeState == "dirty" {
		sha += "*"
	}
	return sha
}

// String returns a human-readable version string.
func String() string {
	platform := runtime.GOOS + "/" + runtime.GOARCH
	sha := commitLabel()
	if sha == "" {
		return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, Version, runtime.Version(), platform)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s version %s (commit: %s, built: %s", ApplicationName, Version, sha, Date)
	if Branch != "" {
		fmt.Fprintf(&b, ", branch: %s", Branch)
	}
	fmt.Fprintf(&b, ", %s, %s)", runtime.Version(), platform)
	return b.String()
}

// Short returns a short version string for CLI --version output. Cobra
// prefixes the application name.
func Short() string {
	if sha := commitLabel(); sha != "" {
		return fmt.Sprintf("%s (%s)", Version, sha)
	}
	return Version
}

// JSON returns the version information as a JSON document.
func JSON() string {
	data, err := json.MarshalIndent(GetInfo(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// IsSnapshot returns true if this is a snapshot/prerelease build.
func IsSnapshot() bool {
	return Version == "dev" || strings.Contains(Version, "-SNAPSHOT")
}

// IsRelease returns true if this is a tagged release build.
func IsRelease() bool {
	return !IsSnapshot()
}
