package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Maryclair03/Latest-LittleWatch/internal/models"

	"github.com/spf13/cobra"
)

// NewSleepCommand creates the sleep command.
func NewSleepCommand(rootOpts *RootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "sleep",
		Short: "Show sleep hours, statistics and current status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return NewExitError(ExitCommandError, "--days must be positive")
			}
			app, err := rootOpts.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := app.RequireDevice(ctx)
			if err != nil {
				return err
			}

			data, err := app.API.GetSleepData(ctx, sess, sess.DeviceSerial, days)
			if err != nil {
				return requestError("load sleep data", err)
			}
			stats, err := app.API.GetSleepStatistics(ctx, sess, sess.DeviceSerial, days)
			if err != nil {
				return requestError("load sleep statistics", err)
			}
			current, err := app.API.GetCurrentSleep(ctx, sess, sess.DeviceSerial)
			if err != nil {
				return requestError("load sleep status", err)
			}

			out := struct {
				Days       []models.SleepDay      `json:"days"`
				Statistics models.SleepStatistics `json:"statistics"`
				Current    *models.CurrentSleep   `json:"current"`
			}{data, stats, current}

			return rootOpts.printer(cmd).Emit(out, func(w io.Writer) {
				if current.IsSleeping {
					fmt.Fprintf(w, "Sleeping for %s\n", formatMinutes(current.CurrentDurationMinutes))
				} else {
					fmt.Fprintln(w, "Awake")
				}
				fmt.Fprintln(w)
				for _, d := range data {
					fmt.Fprintf(w, "%-12s %5.1fh %s\n", d.Date, d.Hours, strings.Repeat("#", int(d.Hours+0.5)))
				}
				if len(stats) > 0 {
					fmt.Fprintln(w)
					keys := make([]string, 0, len(stats))
					for k := range stats {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					for _, k := range keys {
						fmt.Fprintf(w, "%-24s %v\n", k, stats[k])
					}
				}
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "number of days")
	return cmd
}

func formatMinutes(m float64) string {
	total := int(m)
	return fmt.Sprintf("%dh %02dm", total/60, total%60)
}
