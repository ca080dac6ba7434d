package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"otchat/provider"
	"otchat/render"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available on every configured backend",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	listings := provider.ListAllModels(cmd.Context(), cfg.Models, nil)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BACKEND\tMODEL\tSIZE")
	for _, l := range listings {
		if l.Err != nil {
			fmt.Fprintf(w, "%s\t%s\t\n", l.Config.ClientType, render.Error(l.Err.Error()))
			continue
		}
		for _, m := range l.Models {
			size := ""
			if m.Size > 0 {
				size = fmt.Sprintf("%.1f GB", float64(m.Size)/1e9)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", l.Config.ClientType, m.Name, size)
		}
	}
	return w.Flush()
}
