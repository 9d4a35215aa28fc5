package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"squeeze/internal/capacity"
	"squeeze/internal/fileutil"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the local result cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCachePurgeCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage against the capacity budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(sess *session) error {
				type cacheStats struct {
					Available   bool   `json:"available"`
					Reason      string `json:"reason,omitempty"`
					Entries     int64  `json:"entries"`
					TotalBytes  int64  `json:"total_bytes"`
					BudgetBytes int64  `json:"budget_bytes"`
					Path        string `json:"path,omitempty"`
				}

				if sess.degraded() {
					if jsonOutput {
						return writeJSON(cmd, cacheStats{Available: false, Reason: sess.degradedReason, BudgetBytes: capacity.DefaultBudget})
					}
					printDegradedNotice(cmd.OutOrStdout(), sess)
					return nil
				}

				count, err := sess.store.Count(cmd.Context())
				if err != nil {
					return err
				}
				total, err := sess.store.TotalSize(cmd.Context())
				if err != nil {
					return err
				}

				if jsonOutput {
					return writeJSON(cmd, cacheStats{
						Available:   true,
						Entries:     count,
						TotalBytes:  total,
						BudgetBytes: capacity.DefaultBudget,
						Path:        sess.store.Path(),
					})
				}

				out := cmd.OutOrStdout()
				percent := float64(total) / float64(capacity.DefaultBudget) * 100
				fmt.Fprintf(out, "Entries: %d\n", count)
				fmt.Fprintf(out, "Size:    %s of %s (%.1f%%)\n", fileutil.FormatBytes(total), fileutil.FormatBytes(capacity.DefaultBudget), percent)
				fmt.Fprintf(out, "Store:   %s\n", sess.store.Path())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")
	return cmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List cached entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(sess *session) error {
				out := cmd.OutOrStdout()
				if sess.degraded() {
					printDegradedNotice(out, sess)
					return nil
				}

				infos, err := sess.store.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(infos) == 0 {
					fmt.Fprintln(out, "Cache is empty")
					return nil
				}

				const stampLayout = "2006-01-02 15:04"
				rows := make([][]string, 0, len(infos))
				for _, info := range infos {
					name := info.DisplayName
					if name == "" {
						name = "(unnamed)"
					}
					rows = append(rows, []string{
						info.Key,
						name,
						fileutil.FormatBytes(info.SizeBytes),
						info.MimeType,
						info.InsertedAt.Local().Format(stampLayout),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Key", "Name", "Size", "MIME", "Inserted"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(sess *session) error {
				out := cmd.OutOrStdout()
				if sess.degraded() {
					printDegradedNotice(out, sess)
					return nil
				}

				removed, err := sess.coordinator.ClearAll(cmd.Context())
				if err != nil {
					return err
				}
				if removed == 0 {
					fmt.Fprintln(out, "Cache is already empty")
					return nil
				}
				fmt.Fprintf(out, "Removed %d cached entr%s\n", removed, pluralY(int(removed)))
				return nil
			})
		},
	}
}

func newCachePurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <task-id|current>",
		Short: "Remove cached entries for one task or the current staged file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(sess *session) error {
				out := cmd.OutOrStdout()
				if sess.degraded() {
					printDegradedNotice(out, sess)
					return nil
				}

				removed := sess.coordinator.PurgeNamespace(cmd.Context(), args[0])
				if removed == 0 {
					fmt.Fprintf(out, "Nothing cached for %s\n", args[0])
					return nil
				}
				fmt.Fprintf(out, "Purged %d cached entr%s for %s\n", removed, pluralY(removed), args[0])
				return nil
			})
		},
	}
}
