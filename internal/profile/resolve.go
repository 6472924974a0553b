package profile

import (
	"os"

	"github.com/matheus3301/wlite/internal/config"
)

const DefaultName = "main"

// Resolve picks the active profile: the --profile flag, then
// $WLITE_PROFILE, then default_profile from config.toml, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv("WLITE_PROFILE"); env != "" {
		return env
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}
