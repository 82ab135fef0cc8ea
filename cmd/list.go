package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/voicememo/internal/library"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded clips",
	Long:    `List the clips in the recordings directory, in directory order.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		svc, err := newService(false)
		if err != nil {
			return err
		}
		defer closeService(svc)

		clips, err := svc.ListClips(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list clips: %w", err)
		}

		return printClips(cmd.OutOrStdout(), clips, output)
	},
}

func printClips(w io.Writer, clips []library.Clip, output string) error {
	switch output {
	case "yaml":
		out, err := yaml.Marshal(clips)
		if err != nil {
			return fmt.Errorf("error marshaling clips: %w", err)
		}
		_, err = w.Write(out)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(clips)
	case "", "table":
		if len(clips) == 0 {
			fmt.Fprintln(w, "No recordings yet.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tDURATION\tSIZE\tRECORDED")
		for _, clip := range clips {
			duration := "-"
			if clip.Duration > 0 {
				total := int(clip.Duration + 0.5)
				duration = fmt.Sprintf("%02d:%02d", total/60, total%60)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", clip.Name, duration, clip.Size, clip.ModTime.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q (valid: table, yaml, json)", output)
	}
}

func init() {
	listCmd.Flags().StringP("output", "o", "table", "output format: table, yaml or json")
}
