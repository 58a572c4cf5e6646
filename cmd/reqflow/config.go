package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/reqflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify reqflow configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/reqflow/config.yaml
Project-specific overrides can be placed in .reqflow.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch len(args) {
		case 0:
			for _, key := range config.Keys() {
				v, err := config.Value(cfg, key)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s\n", key, v)
			}
			cred, err := config.ResolveCredential(cfg)
			if err != nil {
				fmt.Fprintf(out, "credential: %s\n", color.YellowString("none (set ANTHROPIC_API_KEY or anthropic.api_key)"))
				return nil
			}
			fmt.Fprintf(out, "credential: %s from %s\n", cred.Masked(), cred.Source)
			return nil
		case 1:
			v, err := config.Value(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, v)
			return nil
		default:
			if err := config.Set(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			v, _ := config.Value(cfg, args[0])
			fmt.Fprintf(out, "Set %s = %s\n", args[0], v)
			return nil
		}
	},
}
