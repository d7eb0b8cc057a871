package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/registry"
	"torrentstream/aggregator/internal/search"
)

func newProvidersCmd(env *environment, logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers with their category and enabled flag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			store, closeStore, err := env.openSettings(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			reg := registry.New(registry.NewMemoryStore(), logger(), env.providers(cfg)...)
			orchestrator := search.NewOrchestrator(reg, store, nil, nil, logger())
			items, err := orchestrator.Providers(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tENABLED")
			for _, item := range items {
				category := string(item.Category)
				if item.NSFW {
					category += " (nsfw)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", item.ID, item.Name, category, item.Enabled)
			}
			return tw.Flush()
		},
	}
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List search categories",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, c := range domain.Categories() {
				if c.IsNSFW() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (nsfw)\n", c)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
		},
	}
}
