package core

import "testing"

func TestGetVersionInfo(t *testing.T) {
	origVersion, origBuild, origCommit := Version, BuildTime, GitCommit
	defer func() {
		Version, BuildTime, GitCommit = origVersion, origBuild, origCommit
	}()

	Version = "v1.2.3"
	BuildTime = "2024-01-15T10:30:00Z"
	GitCommit = "abc1234"

	want := "v1.2.3 (built 2024-01-15T10:30:00Z, commit abc1234)"
	if got := GetVersionInfo(); got != want {
		t.Errorf("GetVersionInfo() = %q, want %q", got, want)
	}
}

func TestGetVersionInfo_Defaults(t *testing.T) {
	if Version != "dev" {
		t.Skip("version injected at build time")
	}
	want := "dev (built unknown, commit unknown)"
	if got := GetVersionInfo(); got != want {
		t.Errorf("GetVersionInfo() = %q, want %q", got, want)
	}
}
