package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/registry"
	"torrentstream/aggregator/internal/search"
)

type outcomeLine struct {
	Provider string           `json:"provider"`
	Status   string           `json:"status"`
	Error    string           `json:"error,omitempty"`
	Items    []domain.Torrent `json:"items,omitempty"`
}

func newSearchCmd(env *environment, logger func() *slog.Logger) *cobra.Command {
	var (
		categoryRaw string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "search [QUERY...]",
		Short: "Search every enabled provider and print results as they arrive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := domain.ParseCategory(categoryRaw)
			if err != nil {
				return fmt.Errorf("category %q: %w", categoryRaw, err)
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

			log := logger()
			reg := registry.New(registry.NewMemoryStore(), log, env.providers(cfg)...)
			engine := search.NewEngine(search.WithLogger(log))
			orchestrator := search.NewOrchestrator(reg, store, engine, env.client(cfg), log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			query := strings.Join(args, " ")
			stream, err := orchestrator.Search(ctx, query, category)
			if err != nil {
				return err
			}
			return printStream(ctx, cmd.OutOrStdout(), stream, asJSON)
		},
	}
	cmd.Flags().StringVarP(&categoryRaw, "category", "c", "all", "Restrict the search to a category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per provider outcome")
	return cmd
}

func printStream(ctx context.Context, w io.Writer, stream *search.Stream, asJSON bool) error {
	defer stream.Close()
	encoder := json.NewEncoder(w)
	results, failed, total := 0, 0, 0
	for {
		var (
			outcome search.Outcome
			ok      bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case outcome, ok = <-stream.Outcomes():
		}
		if !ok {
			break
		}
		total++
		if outcome.Failed() {
			failed++
		} else {
			results += len(outcome.Torrents)
		}

		if asJSON {
			line := outcomeLine{Provider: outcome.ProviderID, Status: "ok", Items: outcome.Torrents}
			if outcome.Failed() {
				line.Status = "failed"
				line.Error = outcome.Err.Error()
			}
			if err := encoder.Encode(line); err != nil {
				return err
			}
			continue
		}
		printOutcome(w, outcome)
	}
	if !asJSON {
		fmt.Fprintf(w, "%d results, %d of %d providers failed\n", results, failed, total)
	}
	return nil
}

func printOutcome(w io.Writer, outcome search.Outcome) {
	if outcome.Failed() {
		fmt.Fprintf(w, "[%s] failed: %v\n", outcome.ProviderID, outcome.Err)
		return
	}
	fmt.Fprintf(w, "[%s] %d results\n", outcome.ProviderID, len(outcome.Torrents))
	for _, t := range outcome.Torrents {
		marker := ""
		if t.IsDead() {
			marker = " (dead)"
		}
		fmt.Fprintf(w, "  %s | %s | S:%d P:%d%s\n    %s\n", t.Name, t.Size, t.Seeders, t.Peers, marker, t.Magnet())
	}
}
