package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"torrentstream/aggregator/internal/settings"
)

func newSettingsCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change persisted search settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings as JSON",
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
			return printSettings(cmd, store)
		},
	}

	var (
		enable     string
		allEnabled bool
		maxResults int
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change enabled providers and the result limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("enable") && !flags.Changed("all") && !flags.Changed("max-results") {
				return errors.New("nothing to change: pass --enable, --all or --max-results")
			}
			if flags.Changed("enable") && allEnabled {
				return errors.New("--enable and --all are mutually exclusive")
			}

			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			store, closeStore, err := env.openSettings(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx := cmd.Context()
			if flags.Changed("max-results") {
				if err := store.SetMaxResults(ctx, maxResults); err != nil {
					return err
				}
			}
			switch {
			case allEnabled:
				err = store.SetEnabledProviderIDs(ctx, nil)
			case flags.Changed("enable"):
				err = store.SetEnabledProviderIDs(ctx, parseIDList(enable))
			}
			if err != nil {
				return err
			}
			return printSettings(cmd, store)
		},
	}
	set.Flags().StringVar(&enable, "enable", "", "Comma-separated provider ids to enable; others are disabled")
	set.Flags().BoolVar(&allEnabled, "all", false, "Enable every provider")
	set.Flags().IntVar(&maxResults, "max-results", 0, "Maximum results per search, 0 for unlimited")

	cmd.AddCommand(show, set)
	return cmd
}

func printSettings(cmd *cobra.Command, store settings.Store) error {
	snapshot, err := settings.Load(cmd.Context(), store)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(snapshot)
}
