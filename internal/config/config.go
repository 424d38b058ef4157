// Package config implements C10: the layered Config struct, loaded the way
// the teacher's consumer cmd/root.go layers a compiled-in struct, a YAML
// config file, and flags through spf13/viper — generalized here to add the
// third layer viper supports natively, environment variables, between the
// file and the flags.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is TFS's full runtime configuration, per spec.md §4.10.
type Config struct {
	ConfigRoot string `mapstructure:"config_root"`
	MountPath  string `mapstructure:"mount_path"`

	PersistenceCadence         time.Duration `mapstructure:"persistence_cadence"`
	PersistenceCooldown        time.Duration `mapstructure:"persistence_cooldown"`
	DestroyRetryInitialBackoff time.Duration `mapstructure:"destroy_retry_initial_backoff"`
	DestroyRetryMaxAttempts    int           `mapstructure:"destroy_retry_max_attempts"`

	DefaultFileMode os.FileMode `mapstructure:"default_file_mode"`
	DefaultTagMode  os.FileMode `mapstructure:"default_tag_mode"`

	LogLevel string `mapstructure:"log_level"`
}

// setDefaults installs the compiled-in defaults, the lowest-precedence
// layer.
func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	v.SetDefault("config_root", filepath.Join(home, ".config", "tfs"))
	v.SetDefault("mount_path", "")
	v.SetDefault("persistence_cadence", time.Second)
	v.SetDefault("persistence_cooldown", 5*time.Second)
	v.SetDefault("destroy_retry_initial_backoff", time.Second)
	v.SetDefault("destroy_retry_max_attempts", 4)
	v.SetDefault("default_file_mode", os.FileMode(0644))
	v.SetDefault("default_tag_mode", os.FileMode(0755))
	v.SetDefault("log_level", "info")
}

// BindFlags registers a CLI flag for each Config field except the two
// default modes, and binds every flag on the given flag set to the Config
// key of the same name (hyphens read as underscores). The config-root flag
// itself is registered by the command layer before this call; this package
// owns defaults and precedence.
func BindFlags(flags *pflag.FlagSet) error {
	flags.String("mount-path", "", "path to mount the filesystem at")
	flags.Duration("persistence-cadence", 0, "interval between persistence attempts")
	flags.Duration("persistence-cooldown", 0, "minimum interval between successful saves")
	flags.Duration("destroy-retry-initial-backoff", 0, "initial backoff between destroy persistence retries")
	flags.Int("destroy-retry-max-attempts", 0, "maximum destroy persistence retry attempts")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	return bindErr
}

// Load resolves a Config by layering defaults, an optional YAML file under
// configRoot (or the XDG default if configRoot is empty), TFS_-prefixed
// environment variables, and whatever flags BindFlags already bound.
func Load(configRootFlag string) (*Config, error) {
	v := viper.GetViper()
	setDefaults(v)

	v.SetEnvPrefix("TFS")
	v.AutomaticEnv()

	root := configRootFlag
	if root == "" {
		root = v.GetString("config_root")
	}
	v.SetConfigFile(filepath.Join(root, "config.yaml"))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if configRootFlag != "" || cfg.ConfigRoot == "" {
		cfg.ConfigRoot = root
	}
	return &cfg, nil
}
