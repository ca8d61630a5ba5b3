package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var transcriptsCmd = &cobra.Command{
	Use:   "transcripts",
	Short: "List saved conversations",
	RunE:  runTranscripts,
}

func runTranscripts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	keys, err := a.store.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list transcripts: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		fmt.Fprintln(out, "No saved transcripts found.")
		return nil
	}
	for _, key := range keys {
		fmt.Fprintln(out, key)
	}
	return nil
}
