package vaultkeyring

import "fmt"

// Version of the vaultkeyring library
const Version = "1.0.0"

// Build information (set by ldflags during build)
var (
	GitCommit string
	BuildDate string
	BuildUser string
)

// VersionInfo returns formatted version information
func VersionInfo() string {
	if GitCommit == "" {
		return fmt.Sprintf("keyring-vault v%s", Version)
	}
	return fmt.Sprintf("keyring-vault v%s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
}

// FullVersionInfo returns complete version information including build user
func FullVersionInfo() VersionDetails {
	return VersionDetails{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		BuildUser: BuildUser,
	}
}

// VersionDetails contains detailed version information
type VersionDetails struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"git_commit,omitempty" yaml:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty" yaml:"build_date,omitempty"`
	BuildUser string `json:"build_user,omitempty" yaml:"build_user,omitempty"`
}

// String returns a formatted version string
func (v VersionDetails) String() string {
	if v.GitCommit == "" {
		return fmt.Sprintf("v%s", v.Version)
	}
	commit := v.GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("v%s-%s (%s)", v.Version, commit, v.BuildDate)
}
