package version

import "testing"

func TestString(t *testing.T) {
	defer func(v, sha, bt string) { Version, GitSHA, BuildTime = v, sha, bt }(Version, GitSHA, BuildTime)

	if got := String(); got != "dev (unknown, unknown)" {
		t.Errorf("String() = %q", got)
	}

	Version, GitSHA, BuildTime = "v0.3.0", "abc1234def5678", "2026-03-01T12:00:00Z"
	if got, want := String(), "v0.3.0 (abc1234, 2026-03-01T12:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
