// Package version хранит данные сборки, заданные через -ldflags:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/storefront/internal/version.version=v1.0.0"
package version

import (
	"fmt"
	"runtime"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает собранный бинарник.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

func Get() Build {
	return Build{Version: version, Commit: commit, Date: date, GoVersion: runtime.Version()}
}

func (b Build) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s go=%s", b.Version, b.Commit, b.Date, b.GoVersion)
}
