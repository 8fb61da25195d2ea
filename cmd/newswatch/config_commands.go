package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"newswatch/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolvedPath, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", resolvedPath)
			if !exists {
				fmt.Fprintln(out, "Config file does not exist; built-in defaults are in effect")
			}
			fmt.Fprintf(out, "Data directory:     %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "Log directory:      %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "Database:           %s\n", cfg.DatabasePath())
			fmt.Fprintf(out, "Redis:              %s\n", redisDisplay(cfg.Redis.Addr))
			fmt.Fprintf(out, "Fetch concurrency:  %d\n", cfg.Queues.FetchConcurrency)
			fmt.Fprintf(out, "Classifier:         %s\n", serviceDisplay(cfg.Classifier.BaseURL))
			fmt.Fprintf(out, "Generator:          %s (enabled: %s)\n",
				serviceDisplay(cfg.Generator.BaseURL), yesNo(cfg.Generator.Enabled))
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			}

			if err := config.WriteSample(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	return cmd
}

func redisDisplay(addr string) string {
	if strings.TrimSpace(addr) == "" {
		return "disabled"
	}
	return addr
}

func serviceDisplay(baseURL string) string {
	if strings.TrimSpace(baseURL) == "" {
		return "not configured"
	}
	return baseURL
}
