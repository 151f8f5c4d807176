package version

import (
	"fmt"
	"os"
	"runtime"
)

var (
	// Set during the build process using ldflags
	Version   = "development"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

func init() {
	if v := os.Getenv("BENCHD_VERSION"); v != "" {
		Version = v
	}
}

// Info describes the running binary
type Info struct {
	Version   string `json:"version" yaml:"version"`
	CommitSHA string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the build information
func Get() Info {
	return Info{
		Version:   Version,
		CommitSHA: CommitSHA,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s (%s) built at %s with %s for %s", i.Version, i.CommitSHA, i.BuildTime, i.GoVersion, i.Platform)
}
