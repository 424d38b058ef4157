package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandNames(cmds []*cobra.Command) []string {
	var out []string
	for _, c := range cmds {
		out = append(out, c.Name())
	}
	return out
}

func TestCommandTreeIsWired(t *testing.T) {
	assert.Contains(t, commandNames(rootCmd.Commands()), "mount")
	assert.Contains(t, commandNames(rootCmd.Commands()), "tags")
	assert.Contains(t, commandNames(mountCmd.Commands()), "plain")
	assert.Contains(t, commandNames(mountCmd.Commands()), "systemd")
	assert.Contains(t, commandNames(tagsCmd.Commands()), "setup")
	assert.Contains(t, commandNames(tagsCmd.Commands()), "change")
}

func TestLoadConfigSetsMountPathWhenProvided(t *testing.T) {
	viper.Reset()
	configRootFlag = t.TempDir()
	defer func() { configRootFlag = "" }()

	cfg, err := loadConfig("/mnt/tfs")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/tfs", cfg.MountPath)
}

func TestLoadConfigLeavesMountPathEmptyWhenNotProvided(t *testing.T) {
	viper.Reset()
	configRootFlag = t.TempDir()
	defer func() { configRootFlag = "" }()

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "", cfg.MountPath)
}

func TestOpenFacadeCreatesAFreshEmptyFilesystem(t *testing.T) {
	viper.Reset()
	root := t.TempDir()
	configRootFlag = root
	defer func() { configRootFlag = "" }()

	cfg, err := loadConfig("")
	require.NoError(t, err)

	fs, err := openFacade(cfg)
	require.NoError(t, err)
	assert.Empty(t, fs.Tags.All())
}
