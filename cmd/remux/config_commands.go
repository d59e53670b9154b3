package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"remux/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand())
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a starter configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveConfigTarget(targetPath)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}

			if _, err := os.Stat(target); err == nil && !overwrite {
				return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
			} else if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("check config path: %w", err)
			}

			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("write sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Starter configuration written to %s\n", target)
			fmt.Fprintln(out, "Set s5_portal_url (or export REMUX_S5_PORTAL_URL), then run `remux config validate`.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing configuration file")
	return cmd
}

func resolveConfigTarget(flagValue string) (string, error) {
	target := strings.TrimSpace(flagValue)
	if target == "" {
		return config.DefaultConfigPath()
	}
	return config.ExpandPath(target)
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and show the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load("")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintf(out, "Configuration valid: %s\n", path)
			} else {
				fmt.Fprintf(out, "No config file at %s; built-in defaults apply\n", path)
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Setting", "Value"},
				settingsRows(cfg),
				[]columnAlignment{alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func settingsRows(cfg *config.Config) [][]string {
	ipfs := "not configured"
	if strings.TrimSpace(cfg.Storage.IPFSAPIURL) != "" {
		ipfs = cfg.Storage.IPFSAPIURL
	}
	notifications := "disabled"
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		notifications = "ntfy: " + cfg.Notifications.NtfyTopic
	}
	return [][]string{
		{"Cache dir", cfg.Paths.CacheDir},
		{"Data dir", cfg.Paths.DataDir},
		{"API bind", cfg.Paths.APIBind},
		{"Socket", cfg.Paths.SocketPath},
		{"S5 portal", cfg.Storage.S5PortalURL},
		{"IPFS API", ipfs},
		{"Source cache budget", fmt.Sprintf("%.1f GiB", cfg.Cache.SourceMaxGiB)},
		{"Output cache budget", fmt.Sprintf("%.1f GiB", cfg.Cache.OutputMaxGiB)},
		{"GC interval", cfg.GCInterval().String()},
		{"Encoder binary", cfg.Encoder.Binary},
		{"Encode slots", fmt.Sprintf("%d cpu, %d gpu", cfg.Encoder.CPUSlots, cfg.Encoder.GPUSlots)},
		{"Notifications", notifications},
	}
}
