package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"squeeze/internal/cachekey"
	"squeeze/internal/config"
	"squeeze/internal/fileutil"
	"squeeze/internal/metrics"
	"squeeze/internal/remote"
	"squeeze/internal/textutil"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and retrieve compression tasks",
	}

	taskCmd.AddCommand(newTaskStatusCommand(ctx))
	taskCmd.AddCommand(newTaskWatchCommand(ctx))
	taskCmd.AddCommand(newTaskDownloadCommand(ctx))

	return taskCmd
}

func newTaskStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the current state of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(sess *session) error {
				status, err := sess.client.TaskStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				// Harvest finished artifacts even on a one-shot status check.
				if _, err := sess.observer.HandleStatus(cmd.Context(), status); err != nil {
					return err
				}

				if asJSON {
					return writeJSON(cmd, status)
				}
				printTaskStatus(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the raw status as JSON")
	return cmd
}

func newTaskWatchCommand(ctx *commandContext) *cobra.Command {
	var download bool
	var keepRemote bool
	var outputDir string

	cmd := &cobra.Command{
		Use:   "watch <task-id>",
		Short: "Poll a task until it finishes, caching results as they appear",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(sess *session) error {
				printDegradedNotice(cmd.OutOrStdout(), sess)

				status, err := watchTask(cmd, sess, args[0])
				if err != nil {
					return err
				}
				if download {
					if err := downloadTask(cmd, sess, status, outputDir, keepRemote); err != nil {
						return err
					}
				}
				printCacheSummary(cmd.OutOrStdout(), sess)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&download, "download", "d", false, "Download the results once the task finishes")
	cmd.Flags().BoolVar(&keepRemote, "keep-remote", false, "Leave the task on the service after downloading")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory to write results to (default: configured download dir)")
	return cmd
}

func newTaskDownloadCommand(ctx *commandContext) *cobra.Command {
	var keepRemote bool
	var outputDir string

	cmd := &cobra.Command{
		Use:   "download <task-id>",
		Short: "Download a finished task's results, cache-first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(sess *session) error {
				printDegradedNotice(cmd.OutOrStdout(), sess)

				status, err := sess.client.TaskStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if _, err := sess.observer.HandleStatus(cmd.Context(), status); err != nil {
					return err
				}
				if err := downloadTask(cmd, sess, status, outputDir, keepRemote); err != nil {
					return err
				}
				printCacheSummary(cmd.OutOrStdout(), sess)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&keepRemote, "keep-remote", false, "Leave the task on the service after downloading")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory to write results to (default: configured download dir)")
	return cmd
}

// watchTask polls until the task reaches a terminal state, handing every
// snapshot to the observer so compressed results are cached as soon as the
// service finishes them.
func watchTask(cmd *cobra.Command, sess *session, taskID string) (*remote.TaskStatus, error) {
	out := cmd.OutOrStdout()
	interval := time.Duration(sess.cfg.Workflow.PollInterval) * time.Second
	timeout := time.Duration(sess.cfg.Workflow.PollTimeout) * time.Second
	deadline := time.Now().Add(timeout)

	var lastLine string
	for {
		status, err := sess.client.TaskStatus(cmd.Context(), taskID)
		if err != nil {
			return nil, err
		}
		if _, err := sess.observer.HandleStatus(cmd.Context(), status); err != nil {
			return nil, err
		}

		if line := progressLine(status); line != lastLine {
			fmt.Fprintln(out, line)
			lastLine = line
		}
		if status.Terminal() {
			return status, nil
		}
		if time.Now().After(deadline) {
			return status, fmt.Errorf("task %s still %s after %s; retry with squeeze task watch %s", taskID, status.Status, timeout, taskID)
		}

		select {
		case <-cmd.Context().Done():
			return nil, cmd.Context().Err()
		case <-time.After(interval):
		}
	}
}

func progressLine(status *remote.TaskStatus) string {
	if status.IsBatch() {
		return fmt.Sprintf("Task %s: %s (%d/%d completed, %d failed)",
			status.TaskID, status.Status, status.Completed, status.Total, status.Failed)
	}
	switch status.Status {
	case remote.StatusProcessing:
		return fmt.Sprintf("Task %s: processing %d%%", status.TaskID, status.Progress)
	case remote.StatusCompleted:
		return fmt.Sprintf("Task %s: completed (saved %.1f%%)", status.TaskID, status.CompressionRatio)
	case remote.StatusFailed:
		return fmt.Sprintf("Task %s: failed: %s", status.TaskID, status.Error)
	default:
		return fmt.Sprintf("Task %s: %s", status.TaskID, status.Status)
	}
}

// downloadTask writes a finished task's results to the output directory,
// serving from the cache where possible and falling back to the service
// for anything missing. On success it removes the remote task unless the
// configuration or --keep-remote says otherwise.
func downloadTask(cmd *cobra.Command, sess *session, status *remote.TaskStatus, outputDir string, keepRemote bool) error {
	if status.Status == remote.StatusFailed {
		return fmt.Errorf("task %s failed: %s", status.TaskID, status.Error)
	}
	if !status.Terminal() {
		return fmt.Errorf("task %s is still %s; wait for it with squeeze task watch %s", status.TaskID, status.Status, status.TaskID)
	}

	dest, err := resolveOutputDir(sess.cfg, outputDir)
	if err != nil {
		return err
	}

	if status.IsBatch() {
		return downloadBatch(cmd, sess, status, dest, keepRemote)
	}
	return downloadSingle(cmd, sess, status, dest, keepRemote)
}

func downloadSingle(cmd *cobra.Command, sess *session, status *remote.TaskStatus, dest string, keepRemote bool) error {
	out := cmd.OutOrStdout()

	name := status.OutputFilename
	if name == "" {
		name = "compressed_" + status.Filename
	}

	key := cachekey.Compressed(status.TaskID, cachekey.SingleFileIndex)
	source := sess.coordinator.ResolveDownloadSource(cmd.Context(), key, status.DownloadURL, status.DownloadToken)

	var payload []byte
	if source.Local() {
		payload = source.Entry.Payload
		fmt.Fprintf(out, "Serving %s from cache\n", name)
	} else {
		if source.RemoteURL == "" {
			return fmt.Errorf("task %s has no downloadable result", status.TaskID)
		}
		data, _, err := sess.client.FetchBlob(cmd.Context(), source.RemoteURL)
		if err != nil {
			return err
		}
		payload = data
	}

	target := filepath.Join(dest, textutil.SanitizeFileName(name))
	if err := fileutil.WriteFileAtomic(target, payload, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	fmt.Fprintf(out, "Wrote %s (%s)\n", target, fileutil.FormatBytes(int64(len(payload))))

	return finishRemoteTask(cmd, sess, status.TaskID, keepRemote)
}

func downloadBatch(cmd *cobra.Command, sess *session, status *remote.TaskStatus, dest string, keepRemote bool) error {
	out := cmd.OutOrStdout()

	written := make(map[string]bool)
	cached := 0
	needRemote := false
	for idx, file := range status.Files {
		if file.Status != remote.StatusCompleted {
			continue
		}
		name := file.OutputFilename
		if name == "" {
			name = "compressed_" + file.OriginalFilename
		}

		key := cachekey.Compressed(status.TaskID, idx)
		source := sess.coordinator.ResolveDownloadSource(cmd.Context(), key, file.DownloadURL, file.DownloadToken)
		if !source.Local() {
			needRemote = true
			continue
		}

		target := filepath.Join(dest, textutil.SanitizeFileName(name))
		if err := fileutil.WriteFileAtomic(target, source.Entry.Payload, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		written[name] = true
		cached++
	}

	if needRemote {
		_, data, err := sess.client.DownloadArchive(cmd.Context(), status.TaskID)
		if err != nil {
			return err
		}
		files, err := remote.ExtractArchive(data)
		if err != nil {
			return err
		}
		for _, file := range files {
			if written[file.Name] {
				continue
			}
			target := filepath.Join(dest, textutil.SanitizeFileName(file.Name))
			if err := fileutil.WriteFileAtomic(target, file.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", file.Name, err)
			}
			written[file.Name] = true
		}
	}

	if len(written) == 0 {
		return fmt.Errorf("task %s has no downloadable results", status.TaskID)
	}
	fmt.Fprintf(out, "Wrote %d file(s) to %s (%d from cache)\n", len(written), dest, cached)

	return finishRemoteTask(cmd, sess, status.TaskID, keepRemote)
}

// finishRemoteTask removes the finished task from the service and purges
// its cached entries. Remote removal failing is not fatal: the cache is
// kept so a later download can still be served locally.
func finishRemoteTask(cmd *cobra.Command, sess *session, taskID string, keepRemote bool) error {
	out := cmd.OutOrStdout()

	if keepRemote || !sess.cfg.Workflow.DeleteAfterDownload {
		return nil
	}
	if err := sess.client.DeleteTask(cmd.Context(), taskID); err != nil {
		fmt.Fprintln(out, renderStatusLine("Remote cleanup", statusWarn, err.Error(), shouldColorize(out)))
		return nil
	}
	purged := sess.coordinator.PurgeNamespace(cmd.Context(), taskID)
	fmt.Fprintf(out, "Removed remote task %s and purged %d cached entr%s\n", taskID, purged, pluralY(purged))
	return nil
}

func printTaskStatus(out io.Writer, status *remote.TaskStatus) {
	if status.IsBatch() {
		fmt.Fprintf(out, "Task:   %s\n", status.TaskID)
		fmt.Fprintf(out, "Status: %s (%d/%d completed, %d failed)\n", status.Status, status.Completed, status.Total, status.Failed)
		rows := make([][]string, 0, len(status.Files))
		for idx, file := range status.Files {
			detail := file.Error
			if detail == "" && file.CompressedSize > 0 {
				detail = fmt.Sprintf("%.1f%% saved", file.CompressionRatio)
			}
			rows = append(rows, []string{
				fmt.Sprintf("%d", idx),
				file.OriginalFilename,
				file.Status,
				fileutil.FormatBytes(file.UploadSize),
				fileutil.FormatBytes(file.CompressedSize),
				detail,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"#", "File", "Status", "Uploaded", "Compressed", "Detail"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
		return
	}

	fmt.Fprintf(out, "Task:     %s\n", status.TaskID)
	fmt.Fprintf(out, "Title:    %s\n", textutil.DisplayTitle(status.Filename))
	fmt.Fprintf(out, "File:     %s\n", status.Filename)
	fmt.Fprintf(out, "Status:   %s\n", status.Status)
	switch status.Status {
	case remote.StatusProcessing:
		fmt.Fprintf(out, "Progress: %d%%\n", status.Progress)
	case remote.StatusCompleted:
		fmt.Fprintf(out, "Result:   %s (%s, saved %.1f%%)\n",
			status.OutputFilename, fileutil.FormatBytes(status.CompressedSize), status.CompressionRatio)
	case remote.StatusFailed:
		fmt.Fprintf(out, "Error:    %s\n", status.Error)
	}
}

// printCacheSummary reports what the cache contributed to this invocation.
func printCacheSummary(out io.Writer, sess *session) {
	hits := sess.tracker.Counter(metrics.CounterCacheHit)
	fetches := sess.tracker.Counter(metrics.CounterRemoteFetch)
	if hits == 0 && fetches == 0 {
		return
	}
	line := fmt.Sprintf("Cache: %d hit(s), %d remote fetch(es)", hits, fetches)
	if p95, err := sess.tracker.Quantile("remote_fetch", 0.95); err == nil {
		line += fmt.Sprintf(", fetch p95 %.0fms", p95)
	}
	fmt.Fprintln(out, line)
}

func resolveOutputDir(cfg *config.Config, flagValue string) (string, error) {
	dir := strings.TrimSpace(flagValue)
	if dir == "" {
		dir = cfg.Paths.DownloadDir
	}
	expanded, err := config.ExpandPath(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	return expanded, nil
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
