package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marcus/daybreak/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers",
	Long: `List configured providers with their kind, model, and validation
status. A provider that fails validation is still listed so the config
problem is visible.`,
	RunE: runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(cfg.Providers) == 0 {
		fmt.Println("no providers configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tMODEL\tSTATUS")
	for _, entry := range cfg.Providers {
		status := "ok"
		desc, err := entry.Descriptor()
		if err == nil {
			_, err = provider.New(desc)
		}
		if err != nil {
			status = err.Error()
		}

		model := entry.Model
		if model == "" {
			model = "-"
		}
		def := ""
		if entry.Name == cfg.Defaults.Provider {
			def = " (default)"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n", entry.Name, def, entry.Kind, model, status)
	}
	return w.Flush()
}
