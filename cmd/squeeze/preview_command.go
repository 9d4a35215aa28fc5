package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"squeeze/internal/cachekey"
	"squeeze/internal/services"
)

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var index int
	var original bool

	cmd := &cobra.Command{
		Use:   "preview [task-id]",
		Short: "Print a cached payload as a data URL",
		Long: `Resolves a cached entry and prints it as a data: URL suitable for
embedding. Without arguments the currently staged single file is
previewed; with a task id the compressed result is previewed. Use
--index to address one file of a batch and --original for the uploaded
original instead of the result.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(sess *session) error {
				key, err := previewKey(args, index, original)
				if err != nil {
					return err
				}

				dataURL := sess.coordinator.ResolveForDisplay(cmd.Context(), key)
				if dataURL == "" {
					out := cmd.OutOrStdout()
					printDegradedNotice(out, sess)
					fmt.Fprintln(out, renderStatusLine("Preview", statusInfo,
						fmt.Sprintf("no cached entry for %s", key), shouldColorize(out)))
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), dataURL)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&index, "index", "i", cachekey.SingleFileIndex, "Batch file index")
	cmd.Flags().BoolVar(&original, "original", false, "Preview the uploaded original instead of the compressed result")
	return cmd
}

func previewKey(args []string, index int, original bool) (cachekey.BusinessKey, error) {
	if len(args) == 0 {
		if index >= 0 {
			return cachekey.BusinessKey{}, services.Wrap(services.ErrValidation, "cli", "preview",
				"--index addresses a batch file and needs a task id", nil)
		}
		return cachekey.Original(), nil
	}

	taskID := args[0]
	if original {
		if index < 0 {
			return cachekey.BusinessKey{}, services.Wrap(services.ErrValidation, "cli", "preview",
				"batch originals need --index; the single-file original is previewed without a task id", nil)
		}
		return cachekey.BatchFile(taskID, index), nil
	}
	return cachekey.Compressed(taskID, index), nil
}
