package cli

import (
	"fmt"
	"io"

	"github.com/Maryclair03/Latest-LittleWatch/internal/vitals"

	"github.com/spf13/cobra"
)

// NewVitalsCommand creates the vitals command.
func NewVitalsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vitals",
		Short: "Show the latest vitals once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rootOpts.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := app.RequireDevice(ctx)
			if err != nil {
				return err
			}

			payload, err := app.API.GetLatestVitals(ctx, sess, sess.DeviceSerial)
			if err != nil {
				return requestError("load latest vitals", err)
			}

			projection := vitals.NewProjection()
			projection.ApplySnapshot(payload, vitals.SourcePoll)
			view := projection.Render()

			return rootOpts.printer(cmd).Emit(view, func(w io.Writer) {
				writeVitalRow(w, "Heart Rate", view.HeartRate)
				writeVitalRow(w, "Temperature", view.Temperature)
				writeVitalRow(w, "SpO2", view.Oxygen)
				fmt.Fprintf(w, "%-12s %s\n", "Movement", view.Movement)
				fmt.Fprintf(w, "%-12s %s\n", "Battery", view.Battery)
				if !view.DeviceConnected {
					fmt.Fprintln(w, "Band is offline")
				}
				if view.HasAlert {
					fmt.Fprintln(w, "Alert raised for this reading")
				}
			})
		},
	}
}

func writeVitalRow(w io.Writer, name string, vv vitals.VitalView) {
	value := vv.Value
	if value != vitals.Placeholder {
		value += " " + vv.Unit
	}
	fmt.Fprintf(w, "%-12s %-10s %s\n", name, value, vv.Label)
}
