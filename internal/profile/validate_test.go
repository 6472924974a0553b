package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-profile", false},
		{"valid with underscore", "my_profile", false},
		{"valid single char", "a", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my profile", true},
		{"dot", "my.profile", true},
		{"too long", strings.Repeat("a", 65), true},
		{"special chars", "my@profile", true},
		{"slash", "my/profile", true},
		{"leading hyphen", "-json", true},
		{"leading underscore", "_tmp", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSocketPath(t *testing.T) {
	// 45-byte base: "main" fits, a 64-byte name does not.
	t.Setenv("WLITE_HOME", "/tmp/"+strings.Repeat("h", 40))
	if err := ValidateSocketPath("main"); err != nil {
		t.Errorf("short path rejected: %v", err)
	}
	if err := ValidateSocketPath(strings.Repeat("a", 64)); err == nil {
		t.Error("expected an error for a socket path over the limit")
	}
}

func TestResolvePrecedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("WLITE_HOME", home)
	t.Setenv("WLITE_PROFILE", "")

	if got := Resolve(""); got != DefaultName {
		t.Errorf("no config: Resolve() = %q, want %q", got, DefaultName)
	}

	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(`default_profile = "work"`+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "work" {
		t.Errorf("config: Resolve() = %q, want work", got)
	}

	t.Setenv("WLITE_PROFILE", "env")
	if got := Resolve(""); got != "env" {
		t.Errorf("env: Resolve() = %q, want env", got)
	}
	if got := Resolve("flag"); got != "flag" {
		t.Errorf("flag: Resolve() = %q, want flag", got)
	}
}
