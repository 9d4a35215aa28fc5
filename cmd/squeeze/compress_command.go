package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"squeeze/internal/cachekey"
	"squeeze/internal/config"
	"squeeze/internal/fileutil"
	"squeeze/internal/lifecycle"
	"squeeze/internal/services"
)

func newCompressCommand(ctx *commandContext) *cobra.Command {
	var watch bool
	var download bool
	var keepRemote bool
	var outputDir string

	cmd := &cobra.Command{
		Use:   "compress <file>...",
		Short: "Upload media files and start compression",
		Long: `Stages the given files in the local cache, uploads them to the
compression service, and starts compression. One file becomes a
single-file task; several files become one batch task.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if download {
				watch = true
			}
			return ctx.withSession(func(sess *session) error {
				out := cmd.OutOrStdout()
				printDegradedNotice(out, sess)

				staged, err := stageInputs(args)
				if err != nil {
					return err
				}

				var taskID string
				if len(staged) == 1 {
					taskID, err = compressSingle(cmd, sess, staged[0])
				} else {
					taskID, err = compressBatch(cmd, sess, staged)
				}
				if err != nil {
					return err
				}

				if err := sess.client.StartCompress(cmd.Context(), taskID); err != nil {
					return err
				}
				fmt.Fprintf(out, "Compression started for task %s\n", taskID)

				if !watch {
					fmt.Fprintf(out, "Follow progress with: squeeze task watch %s\n", taskID)
					return nil
				}

				status, err := watchTask(cmd, sess, taskID)
				if err != nil {
					return err
				}
				if download {
					if err := downloadTask(cmd, sess, status, outputDir, keepRemote); err != nil {
						return err
					}
				}
				printCacheSummary(out, sess)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll the task until it finishes")
	cmd.Flags().BoolVarP(&download, "download", "d", false, "Download the results when done (implies --watch)")
	cmd.Flags().BoolVar(&keepRemote, "keep-remote", false, "Leave the task on the service after downloading")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory to write results to (default: configured download dir)")
	return cmd
}

// stageInputs reads every input file into memory once; the same bytes feed
// both the cache write and the upload.
func stageInputs(args []string) ([]*fileutil.StagedFile, error) {
	files := make([]*fileutil.StagedFile, 0, len(args))
	for _, arg := range args {
		path, err := config.ExpandPath(arg)
		if err != nil {
			return nil, err
		}
		staged, err := fileutil.ReadStaged(path)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "cli", "compress", fmt.Sprintf("read %s", arg), err)
		}
		if !fileutil.IsSupportedMedia(staged.Name) {
			return nil, services.Wrap(services.ErrValidation, "cli", "compress",
				fmt.Sprintf("unsupported media type %q for %s", filepath.Ext(staged.Name), staged.Name), nil)
		}
		files = append(files, staged)
	}
	return files, nil
}

func compressSingle(cmd *cobra.Command, sess *session, staged *fileutil.StagedFile) (string, error) {
	out := cmd.OutOrStdout()

	// A new single-file selection replaces the previous session.
	if purged := sess.coordinator.PurgeNamespace(cmd.Context(), lifecycle.CurrentNamespace); purged > 0 {
		fmt.Fprintf(out, "Replaced previously staged file (purged %d cache entr%s)\n", purged, pluralY(purged))
	}
	if _, err := sess.coordinator.StageOriginal(cmd.Context(), cachekey.Original(), staged); err != nil {
		return "", err
	}
	fmt.Fprintf(out, "Staged %s (%s)\n", staged.Name, fileutil.FormatBytes(staged.Size))

	result, err := sess.client.UploadFile(cmd.Context(), staged)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(out, "Uploaded as task %s\n", result.TaskID)
	return result.TaskID, nil
}

func compressBatch(cmd *cobra.Command, sess *session, staged []*fileutil.StagedFile) (string, error) {
	out := cmd.OutOrStdout()

	result, err := sess.client.UploadBatch(cmd.Context(), staged)
	if err != nil {
		return "", err
	}

	rows := make([][]string, 0, len(staged))
	for idx, file := range staged {
		if _, err := sess.coordinator.StageOriginal(cmd.Context(), cachekey.BatchFile(result.TaskID, idx), file); err != nil {
			return "", err
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", idx),
			file.Name,
			fileutil.FormatBytes(file.Size),
		})
	}

	fmt.Fprintf(out, "Uploaded %d files as task %s\n", len(staged), result.TaskID)
	fmt.Fprintln(out, renderTable(
		[]string{"#", "File", "Size"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight},
	))
	return result.TaskID, nil
}
