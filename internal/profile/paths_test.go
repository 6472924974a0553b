package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirHonoursHomeOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("WLITE_HOME", tmp)

	got := Dir("main")
	want := filepath.Join(tmp, "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("test")
	if !strings.HasSuffix(got, filepath.Join("profiles", "test", "daemon.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix profiles/test/daemon.sock", got)
	}
}

func TestEnsureDirAndList(t *testing.T) {
	t.Setenv("WLITE_HOME", t.TempDir())

	if err := EnsureDir("work"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(LogDir("work"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}

	names, err := List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "work" {
		t.Errorf("List() = %v, want [work]", names)
	}
}

func TestResolveFlagAndDefault(t *testing.T) {
	t.Setenv("WLITE_HOME", t.TempDir())

	if got := Resolve("flag"); got != "flag" {
		t.Errorf("Resolve(flag) = %q, want flag", got)
	}
	if got := Resolve(""); got != DefaultName {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultName)
	}
}
