package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/docsearch/docsearch/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage docsearch configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigBackupCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after all layers are merged",
		RunE: func(c *cobra.Command, args []string) error {
			cfg := loadCLIConfig()
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(c.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file with the current defaults",
		Long: `Writes a .docsearch.yaml into the config directory (or, with --user, the
user config under $XDG_CONFIG_HOME/docsearch/). An existing user config is
backed up before being overwritten.`,
		RunE: func(c *cobra.Command, args []string) error {
			cfg := config.NewConfig()

			if user {
				if backup, err := config.BackupUserConfig(); err != nil {
					return fmt.Errorf("backup existing user config: %w", err)
				} else if backup != "" {
					fmt.Fprintf(c.OutOrStdout(), "backed up existing config to %s\n", backup)
				}
				if err := os.MkdirAll(config.GetUserConfigDir(), 0o755); err != nil {
					return err
				}
				path := config.GetUserConfigPath()
				if err := cfg.WriteYAML(path); err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "wrote %s\n", path)
				return nil
			}

			path := filepath.Join(flagConfigDir, ".docsearch.yaml")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists; remove it first or use --user", path)
			}
			if err := cfg.WriteYAML(path); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&user, "user", false, "write the user/global config instead of a project config")
	return cmd
}

func newConfigBackupCmd() *cobra.Command {
	var restore string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up, list, or restore the user configuration",
		RunE: func(c *cobra.Command, args []string) error {
			if restore != "" {
				if err := config.RestoreUserConfig(restore); err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "restored %s\n", restore)
				return nil
			}

			path, err := config.BackupUserConfig()
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintln(c.OutOrStdout(), "no user config to back up")
			} else {
				fmt.Fprintf(c.OutOrStdout(), "backed up to %s\n", path)
			}

			backups, err := config.ListUserConfigBackups()
			if err != nil {
				return err
			}
			for _, b := range backups {
				fmt.Fprintln(c.OutOrStdout(), b)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&restore, "restore", "", "restore the user config from the given backup file")
	return cmd
}
