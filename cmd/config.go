package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/voicememo/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage VoiceMemo configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var configProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List configuration profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := config.LoadRoot(cfgFile)
		if err != nil {
			return err
		}
		names := root.ProfileNames()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No profiles defined.")
			return nil
		}
		for _, name := range names {
			marker := " "
			if name == cfg.Profile {
				marker = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
		}
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use <profile>",
	Short: "Set the active configuration profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		// validate the profile before writing it
		if _, err := config.LoadWithProfile(cfgFile, name); err != nil {
			return err
		}
		if err := config.UpdateActiveConfig(cfgFile, name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Active profile set to %s\n", name)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configProfilesCmd)
	configCmd.AddCommand(configUseCmd)
}
