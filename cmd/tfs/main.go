// Command tfs implements C12: the CLI surface, built the way the teacher's
// consumer builds its root command (cmd/root.go) — spf13/cobra for the
// command tree, spf13/viper (via internal/config) for layered
// configuration, one persistent --dry flag that, when set, makes the tags
// subcommands log each mutation without applying it. The mount subcommands
// do not read --dry: a mount started with it applies every operation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JoshuaXOng/tag-filesystem/internal/config"
	"github.com/JoshuaXOng/tag-filesystem/internal/delegatestore"
	"github.com/JoshuaXOng/tag-filesystem/internal/inodeid"
	"github.com/JoshuaXOng/tag-filesystem/internal/logging"
	"github.com/JoshuaXOng/tag-filesystem/internal/model"
	"github.com/JoshuaXOng/tag-filesystem/internal/mountloop"
	"github.com/JoshuaXOng/tag-filesystem/internal/snapshot"
	"github.com/JoshuaXOng/tag-filesystem/internal/tagfs"
	"github.com/JoshuaXOng/tag-filesystem/internal/vfsadapter"
)

var (
	configRootFlag string
	dryRun         bool
)

var rootCmd = &cobra.Command{
	Use:   "tfs",
	Short: "Tag-based userspace filesystem",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configRootFlag, "config-root", "", "root directory for persisted state and config")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry", false, "log mutating operations without applying them")
	if err := config.BindFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	mountCmd.AddCommand(mountPlainCmd, mountSystemdCmd)
	tagsCmd.AddCommand(tagsSetupCmd, tagsChangeCmd)
	rootCmd.AddCommand(mountCmd, tagsCmd)
}

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Mount the filesystem",
}

var mountPlainCmd = &cobra.Command{
	Use:   "plain <mountpoint>",
	Short: "Mount synchronously in the foreground",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(args[0])
		if err != nil {
			return err
		}
		return runMount(cfg)
	},
}

// mountSystemdCmd only prints the invocation systemd should run; templating
// the unit file itself is out of scope (spec.md §1).
var mountSystemdCmd = &cobra.Command{
	Use:   "systemd <mountpoint>",
	Short: "Print a mount-unit-compatible invocation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("ExecStart=%s mount plain --config-root=%s %s\n",
			os.Args[0], cfg.ConfigRoot, cfg.MountPath)
		return nil
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Manage tags without mounting",
}

var tagsSetupCmd = &cobra.Command{
	Use:   "setup <name...>",
	Short: "Bulk-create tags at the root",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig("")
		if err != nil {
			return err
		}
		log := logging.New(cfg.ConfigRoot, cfg.LogLevel)
		fs, err := openFacade(cfg)
		if err != nil {
			return err
		}

		for _, name := range args {
			if dryRun {
				log.Info("dry run: would create tag", "name", name)
				continue
			}
			id, err := inodeid.Free(inodeid.Tag, fs.Tags.Inodes())
			if err != nil {
				logging.LogError(log, "allocating tag inode", err)
				return err
			}
			tag := model.Tag{Inode: id, Name: name, Attrs: tagfs.NowAttrs(0, 0, cfg.DefaultTagMode|os.ModeDir)}
			if err := fs.AddTag(tag); err != nil {
				logging.LogError(log, "adding tag", err)
				return err
			}
		}
		if dryRun {
			return nil
		}
		return fs.SavePersistently()
	},
}

var tagsChangeCmd = &cobra.Command{
	Use:   "change <old> <new>",
	Short: "Rename a tag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig("")
		if err != nil {
			return err
		}
		log := logging.New(cfg.ConfigRoot, cfg.LogLevel)
		if dryRun {
			log.Info("dry run: would rename tag", "old", args[0], "new", args[1])
			return nil
		}
		fs, err := openFacade(cfg)
		if err != nil {
			return err
		}
		if err := fs.RenameTag(args[0], args[1]); err != nil {
			logging.LogError(log, "renaming tag", err)
			return err
		}
		return fs.SavePersistently()
	},
}

func loadConfig(mountPath string) (*config.Config, error) {
	cfg, err := config.Load(configRootFlag)
	if err != nil {
		return nil, err
	}
	if mountPath != "" {
		cfg.MountPath = mountPath
	}
	return cfg, nil
}

func openFacade(cfg *config.Config) (*tagfs.TagFilesystem, error) {
	snap, err := snapshot.New(cfg.ConfigRoot)
	if err != nil {
		return nil, err
	}
	storageRoot := cfg.ConfigRoot + "/delegate_storage"
	storage, err := delegatestore.NewFSDelegate(storageRoot)
	if err != nil {
		return nil, err
	}
	fs := tagfs.New(storage, snap, model.Attrs{Mode: os.ModeDir | 0755})
	if err := fs.LoadPersisted(); err != nil {
		return nil, err
	}
	return fs, nil
}

func runMount(cfg *config.Config) error {
	log := logging.New(cfg.ConfigRoot, cfg.LogLevel)

	fs, err := openFacade(cfg)
	if err != nil {
		logging.LogError(log, "opening facade", err)
		return err
	}

	adapter := vfsadapter.New(fs, log)
	return mountloop.Run(context.Background(), cfg, adapter, log)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
