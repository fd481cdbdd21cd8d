package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quantmill/marketcache/config"
	"github.com/quantmill/marketcache/logger"
	"github.com/quantmill/marketcache/store"
)

var (
	flagConfig  string
	flagDB      string
	flagVerbose bool
)

func newStore() (*store.Store, error) {
	cfg := config.Default()
	if flagConfig != "" {
		loaded, err := config.LoadFile(flagConfig)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DurablePath = flagDB
	}

	level := logger.GetLevelFromEnv()
	if flagVerbose {
		level = logger.LevelDebug
	}
	return store.New(cfg, logger.New(level))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	root := &cobra.Command{
		Use:           "marketcache",
		Short:         "Inspect and manage the market-data file cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "override the durable SQLite file")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		statsCmd(),
		docCmd(),
		tableCmd(),
		latestCmd(),
		listingCmd(),
		countCmd(),
		writeCmd(),
		invalidateCmd(),
		statusCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-tier entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStore()
			if err != nil {
				return err
			}
			stats, err := s.Stats(cmd.Context())
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(stats))
			for k := range stats {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%-32s %d\n", k, stats[k])
			}
			return nil
		},
	}
}

func docCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doc <path>",
		Short: "Load a JSON document through the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStore()
			if err != nil {
				return err
			}
			doc, err := s.LoadDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
}

func tableCmd() *cobra.Command {
	var columns []string
	cmd := &cobra.Command{
		Use:   "table <path>",
		Short: "Load a tabular file through the cache, optionally projected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStore()
			if err != nil {
				return err
			}
			tbl, err := s.LoadTable(cmd.Context(), args[0], columns...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, strings.Join(tbl.Columns, ","))
			for _, row := range tbl.Rows {
				fmt.Fprintln(out, strings.Join(row, ","))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&columns, "columns", "c", nil, "columns to project")
	return cmd
}

func latestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest <path> <key-column>",
		Short: "Show the latest row per key value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStore()
			if err != nil {
				return err
			}
			latest, err := s.LatestPerKey(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(latest))
			for k := range latest {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			out := cmd.OutOrStdout()
			for _, k := range keys {
				fmt.Fprintf(out, "%s: %s\n", k, strings.Join(latest[k], ","))
			}
			return nil
		},
	}
}

func listingCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "listing <glob>",
		Short: "Aggregate the most recent documents matching a pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStore()
			if err != nil {
				return err
			}
			docs, err := s.Listing(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), docs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum documents to return")
	return cmd
}

func countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <path>",
		Short: "Count data rows in a tabular file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStore()
			if err != nil {
				return err
			}
			n, err := s.RowCount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <path>",
		Short: "Atomically replace a file with stdin, invalidating cache entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStore()
			if err != nil {
				return err
			}
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return s.Write(args[0], data)
		},
	}
}

func invalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <path>",
		Short: "Drop cache entries for a file modified outside the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStore()
			if err != nil {
				return err
			}
			s.Invalidate(args[0])
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job>",
		Short: "Show a background job's last recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStore()
			if err != nil {
				return err
			}
			status, ok := s.JobStatus(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("no status recorded for job %q", args[0])
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}
