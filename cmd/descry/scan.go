package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/archivist-descry/descry"
	"github.com/archivist-descry/descry/internal/config"
	"github.com/archivist-descry/descry/pkg/codec"
)

func newScanCmd() *cobra.Command {
	var (
		flagSet     []string
		flagOut     string
		flagFormat  string
		flagTimeout time.Duration
		flagMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "scan <device>",
		Short: "Scan every page from a device and write the pages to disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyScanDefaults(cmd, &flagTimeout, &flagMetrics)
			format, err := codec.ParseFormat(flagFormat)
			if err != nil {
				return err
			}
			assignments, err := parseAssignments(flagSet)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			dev, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			for _, kv := range assignments {
				if _, err := a.svc.SetOption(ctx, dev.ID, kv[0], kv[1]); err != nil {
					return err
				}
			}

			job, err := a.svc.Scan(ctx, dev.ID)
			if err != nil {
				return err
			}
			waitCtx := ctx
			if flagTimeout > 0 {
				var cancel context.CancelFunc
				waitCtx, cancel = context.WithTimeout(ctx, flagTimeout)
				defer cancel()
			}
			job, err = a.svc.WaitJob(waitCtx, dev.ID, job.Number)
			if err != nil {
				return err
			}

			files, err := writePages(a.svc, dev.ID, job, flagOut, format)
			if err != nil {
				return err
			}
			log.Info().
				Str("device", dev.Name).
				Int64("job", job.Number).
				Str("status", string(job.Status)).
				Int("pages", job.PageCount).
				Str("out", flagOut).
				Msg("scan finished")
			if err := printJSON(cmd.OutOrStdout(), struct {
				descry.JobInfo
				Files []string `json:"files"`
			}{job, files}); err != nil {
				return err
			}
			if flagMetrics {
				if err := a.dumpMetrics(cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			if job.Status == descry.JobError {
				return fmt.Errorf("job %d failed: %s", job.Number, job.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&flagSet, "set", nil, "Option assignment key=value applied before scanning (repeatable)")
	cmd.Flags().StringVar(&flagOut, "out", ".", "Directory the pages are written to")
	cmd.Flags().StringVar(&flagFormat, "format", "jpeg", "Page format: jpeg or png")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "Give up waiting for the scan after this duration (default from DESCRY_SCAN_TIMEOUT; 0 waits forever)")
	cmd.Flags().BoolVar(&flagMetrics, "metrics", false, "Print collected metrics to stderr after the scan (default from DESCRY_METRICS)")
	return cmd
}

// applyScanDefaults fills --timeout and --metrics from the environment when
// they were not given on the command line.
func applyScanDefaults(cmd *cobra.Command, timeout *time.Duration, dumpMetrics *bool) {
	if !cmd.Flags().Changed("timeout") {
		*timeout = config.Duration(config.EnvScanTimeout, *timeout)
	}
	if !cmd.Flags().Changed("metrics") {
		*dumpMetrics = config.Bool(config.EnvMetrics, *dumpMetrics)
	}
}

// writePages stores every acquired page of job, including the pages of a
// job that failed part way.
func writePages(svc *descry.Service, deviceID string, job descry.JobInfo, dir string, format codec.Format) ([]string, error) {
	if job.PageCount == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	files := make([]string, 0, job.PageCount)
	for n := 1; n <= job.PageCount; n++ {
		img, err := svc.Page(deviceID, job.Number, n)
		if err != nil {
			return files, err
		}
		data, err := codec.Bytes(img, format)
		if err != nil {
			return files, err
		}
		path := filepath.Join(dir, fmt.Sprintf("job-%d-page-%03d.%s", job.Number, n, format.Ext()))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return files, fmt.Errorf("write page %s: %w", path, err)
		}
		files = append(files, path)
		log.Debug().Str("file", path).Int("page", n).Msg("page written")
	}
	return files, nil
}
