package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicememo/internal/audio"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available microphone sources",
	Long: `List the capture devices ffmpeg can record from with the configured backend.
Use one of them as recorder.device in the configuration file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend := audio.DetermineBackend(cfg.Recorder.Backend)

		sources, err := audio.ListSources(cmd.Context(), backend)
		if err != nil {
			return fmt.Errorf("failed to get %s sources: %w", backend, err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Audio Sources (%s, %s backend)\n\n", runtime.GOOS, backend)
		if len(sources) == 0 {
			fmt.Fprintln(out, "  none found")
			return nil
		}
		for i, source := range sources {
			marker := " "
			if source == cfg.Recorder.Device {
				marker = "*"
			}
			fmt.Fprintf(out, " %s %d. %s\n", marker, i+1, source)
		}
		fmt.Fprintf(out, "\nConfigure with recorder.device (current: %s)\n", cfg.Recorder.Device)
		return nil
	},
}
