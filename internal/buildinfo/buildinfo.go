// Package buildinfo holds version data stamped at link time:
//   go build -ldflags "-X fleetroute/internal/buildinfo.Version=v1.2.0 -X fleetroute/internal/buildinfo.Commit=$(git rev-parse HEAD)"
package buildinfo

import (
    "runtime"
    "runtime/debug"
)

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    commit := Commit
    if commit == "" {
        if bi, ok := debug.ReadBuildInfo(); ok {
            for _, s := range bi.Settings {
                if s.Key == "vcs.revision" { commit = s.Value }
            }
        }
    }
    return map[string]string{
        "version":   Version,
        "commit":    commit,
        "builtAt":   BuiltAt,
        "goVersion": runtime.Version(),
    }
}
