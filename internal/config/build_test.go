package config

import "testing"

func TestNewBuildInfo_DefaultsWithoutLdflags(t *testing.T) {
	info := NewBuildInfo()

	if info.Version != "dev" {
		t.Errorf("Version = %q, want dev", info.Version)
	}
	if info.Commit != "none" {
		t.Errorf("Commit = %q, want none", info.Commit)
	}
	if info.BuildTime != "unknown" {
		t.Errorf("BuildTime = %q, want unknown", info.BuildTime)
	}
}
