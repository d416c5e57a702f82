package meta

import (
	"fmt"
	"runtime"
)

// Set with -ldflags "-X github.com/luma/ninep/internal/meta.Version=..."
var (
	Version      = "dev"
	Build        string
	Branch       string
	BuildTimeUTC string
	GoTag        string
)

// Info is the build information of the running binary.
type Info struct {
	Version   string `json:"version"`
	Build     string `json:"build,omitempty"`
	Branch    string `json:"branch,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
	Platform  string `json:"platform"`
	GoVersion string `json:"goVersion"`
	GoTag     string `json:"goTag,omitempty"`
}

func GetInfo() Info {
	return Info{
		Version:   Version,
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		GoVersion: runtime.Version(),
		GoTag:     GoTag,
	}
}

// String is a one line summary, e.g. "ninep dev (abc123, main) linux/amd64".
func (i Info) String() string {
	s := "ninep " + i.Version

	switch {
	case i.Build != "" && i.Branch != "":
		s += fmt.Sprintf(" (%s, %s)", i.Build, i.Branch)
	case i.Build != "":
		s += fmt.Sprintf(" (%s)", i.Build)
	}

	return s + " " + i.Platform
}
