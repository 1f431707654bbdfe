package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func modelsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the generation models available on OpenRouter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			llm, err := newGenerator(cfg)
			if err != nil {
				return err
			}

			models, err := llm.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\n", m.ID, m.Name)
			}
			return tw.Flush()
		},
	}
}
