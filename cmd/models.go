package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/bz888/modeler/internal/api/client"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the API can serve",
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	models, err := a.sup.Models(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	printModels(cmd, models, cfg.Model)
	return nil
}

func printModels(cmd *cobra.Command, models []client.Model, current string) {
	out := cmd.OutOrStdout()
	if len(models) == 0 {
		fmt.Fprintln(out, "No models available.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tFAMILY\t")
	for _, m := range models {
		name := m.Name
		if name == current {
			name += " *"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", name, m.Details.ParameterSize, m.Details.Family)
	}
	w.Flush()
}
