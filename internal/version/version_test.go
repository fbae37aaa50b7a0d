package version

import (
	"strings"
	"testing"
)

func TestInfoString(t *testing.T) {
	got := Info{Version: "v1.2.3", Commit: "0123456789abcdef", GoVersion: "go1.25.3", BuildDate: "2026-01-02"}.String()
	want := "cardq v1.2.3 (commit 0123456789ab, go1.25.3) built 2026-01-02"
	if got != want {
		t.Fatalf("String()=%q want %q", got, want)
	}
	if got := (Info{Version: "dev", GoVersion: "go1.25.3"}).String(); !strings.Contains(got, "commit unknown") {
		t.Fatalf("String()=%q", got)
	}
}

func TestGetUsesLinkedVersion(t *testing.T) {
	if Get().Version != Version {
		t.Fatalf("Get().Version=%q want %q", Get().Version, Version)
	}
}
