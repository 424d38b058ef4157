package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesCompiledInDefaults(t *testing.T) {
	viper.Reset()
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.PersistenceCadence)
	assert.Equal(t, 5*time.Second, cfg.PersistenceCooldown)
	assert.Equal(t, 4, cfg.DestroyRetryMaxAttempts)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadReadsYamlFileOverDefaults(t *testing.T) {
	viper.Reset()
	root := t.TempDir()
	contents := "log_level: debug\npersistence_cadence: 2s\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.yaml"), []byte(contents), 0644))

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.PersistenceCadence)
}

func TestLoadEnvOverridesFileAndDefaults(t *testing.T) {
	viper.Reset()
	root := t.TempDir()
	contents := "log_level: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.yaml"), []byte(contents), 0644))
	t.Setenv("TFS_LOG_LEVEL", "warn")

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadFillsConfigRootWhenUnset(t *testing.T) {
	viper.Reset()
	root := t.TempDir()

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, root, cfg.ConfigRoot)
}

func TestLoadToleratesMissingConfigFile(t *testing.T) {
	viper.Reset()
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}
