package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Maryclair03/Latest-LittleWatch/internal/history"
	"github.com/Maryclair03/Latest-LittleWatch/internal/models"
	"github.com/Maryclair03/Latest-LittleWatch/internal/vitals"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	Period string
	Pages  int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past readings and averages",
		Long: `Show readings for a time window (24H, 1W or 1M). Readings are loaded in
pages; --pages controls how many pages to load. The summary comes from the
first page.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Pages <= 0 {
				return NewExitError(ExitCommandError, "--pages must be positive")
			}
			app, pager, err := newPager(cmd, rootOpts, opts.Period)
			if err != nil {
				return err
			}

			readings, err := pager.LoadAll(cmd.Context(), opts.Pages)
			if err != nil {
				return requestError("load history", err)
			}
			app.Logger.Debug("History loaded", zap.Int("readings", len(readings)), zap.Bool("has_more", pager.HasMore()))

			out := struct {
				Period   models.HistoryPeriod    `json:"period"`
				Summary  *models.HistorySummary  `json:"summary"`
				Readings []models.HistoryReading `json:"readings"`
				HasMore  bool                    `json:"has_more"`
			}{pager.Period(), pager.Summary(), readings, pager.HasMore()}

			return rootOpts.printer(cmd).Emit(out, func(w io.Writer) {
				writeSummary(w, pager.Period(), pager.Summary(), len(readings))
				fmt.Fprintln(w)
				for _, r := range readings {
					writeReading(w, r)
				}
				if pager.HasMore() {
					fmt.Fprintln(w, "More readings available, use --pages to load more.")
				}
			})
		},
	}

	cmd.Flags().StringVar(&opts.Period, "period", string(models.Period24H), "time window (24H|1W|1M)")
	cmd.Flags().IntVar(&opts.Pages, "pages", 1, "number of pages to load")
	return cmd
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	Period   string
	Output   string
	MaxPages int
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export history to an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.MaxPages <= 0 {
				return NewExitError(ExitCommandError, "--max-pages must be positive")
			}
			if opts.Output == "" {
				opts.Output = fmt.Sprintf("littlewatch-%s.xlsx", opts.Period)
			}
			_, pager, err := newPager(cmd, rootOpts, opts.Period)
			if err != nil {
				return err
			}

			readings, err := pager.LoadAll(cmd.Context(), opts.MaxPages)
			if err != nil {
				return requestError("load history", err)
			}

			f, err := os.Create(opts.Output)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to create output file", err)
			}
			defer f.Close()
			if err := history.ExportXLSX(f, pager.Period(), pager.Summary(), readings); err != nil {
				return WrapExitError(ExitFailure, "failed to export history", err)
			}
			if err := f.Close(); err != nil {
				return WrapExitError(ExitFailure, "failed to write output file", err)
			}

			return rootOpts.printer(cmd).Emit(map[string]any{
				"status":   "ok",
				"file":     opts.Output,
				"readings": len(readings),
			}, func(w io.Writer) {
				fmt.Fprintf(w, "Exported %d readings to %s\n", len(readings), opts.Output)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Period, "period", string(models.Period24H), "time window (24H|1W|1M)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default littlewatch-<period>.xlsx)")
	cmd.Flags().IntVar(&opts.MaxPages, "max-pages", 50, "maximum pages to load")
	return cmd
}

func newPager(cmd *cobra.Command, rootOpts *RootOptions, period string) (*App, *history.Pager, error) {
	p := models.HistoryPeriod(period)
	if !p.Valid() {
		return nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid period %q: must be 24H, 1W or 1M", period))
	}
	app, err := rootOpts.App()
	if err != nil {
		return nil, nil, err
	}
	sess, err := app.RequireDevice(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	fetch := func(ctx context.Context, q models.HistoryQuery) (*models.HistoryPage, error) {
		return app.API.GetHistory(ctx, sess, sess.DeviceSerial, q)
	}
	pager, err := history.NewPager(fetch, p, app.Config.History.PageSize)
	if err != nil {
		return nil, nil, NewExitError(ExitCommandError, err.Error())
	}
	return app, pager, nil
}

func writeSummary(w io.Writer, period models.HistoryPeriod, s *models.HistorySummary, loaded int) {
	total := loaded
	var hr, temp, spo2 *float64
	if s != nil {
		hr, temp, spo2 = s.AvgHeartRate, s.AvgTemperature, s.AvgOxygenSaturation
		if s.TotalReadings > 0 {
			total = s.TotalReadings
		}
	}
	fmt.Fprintf(w, "Period %s, %d readings\n", period, total)
	fmt.Fprintf(w, "  Avg Heart Rate   %s BPM\n", history.FormatAverage(hr, 0))
	fmt.Fprintf(w, "  Avg Temperature  %s °C\n", history.FormatAverage(temp, 1))
	fmt.Fprintf(w, "  Avg SpO2         %s %%\n", history.FormatAverage(spo2, 0))
}

func writeReading(w io.Writer, r models.HistoryReading) {
	ts := vitals.Placeholder
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.Local().Format("2006-01-02 15:04")
	}
	hr := vitals.ClassifyHeartRate(r.HeartRate)
	temp := vitals.ClassifyTemperature(r.Temperature)
	spo2 := vitals.ClassifyOxygen(r.OxygenSaturation)
	alert := ""
	if r.IsAlert {
		alert = "  ALERT"
	}
	fmt.Fprintf(w, "%s  HR %s (%s)  Temp %s (%s)  SpO2 %s (%s)%s\n",
		ts,
		history.FormatAverage(r.HeartRate, 0), hr.Status,
		history.FormatAverage(r.Temperature, 1), temp.Status,
		history.FormatAverage(r.OxygenSaturation, 0), spo2.Status,
		alert,
	)
}
