package config

import (
	"os"

	"github.com/kkyr/fig"
)

const EnvPrefix = "GREENROOM"
const configFile = "config.yaml"

// LoadConfig loads the configuration file into the given struct.
// The path param specifies a custom directory of the configuration file.
// Environment variables with the GREENROOM_ prefix override file values,
// nested keys separated with _.
func LoadConfig(config any, path string) error {
	dirs := []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs", "../../configs", "../../../configs")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, home+"/.greenroom")
		}
	}
	return fig.Load(config, fig.File(configFile), fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
}

// LoadConfigEnv reads the config from the environment only.
func LoadConfigEnv(config any) error {
	return fig.Load(config, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
}
