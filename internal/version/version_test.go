package version

import "testing"

func TestShortCommit(t *testing.T) {
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("got %q", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveStamped(t *testing.T) {
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })

	Version, Commit = "v1.2.0", "0123456789abcdef0123"
	info := Resolve()
	if info.Version != "v1.2.0" {
		t.Fatalf("Version = %q", info.Version)
	}
	if got := String(); got != "v1.2.0 (0123456789ab)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestResolveFallback(t *testing.T) {
	oldV, oldB := Version, BuildTime
	t.Cleanup(func() { Version, BuildTime = oldV, oldB })

	Version, BuildTime = "", ""
	if Resolve().Version == "" {
		t.Fatal("expected a fallback version")
	}
}
