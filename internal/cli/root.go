package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"

	newApp AppFactory
	app    *App
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// App returns the shared App, creating it on first use.
func (o *RootOptions) App() (*App, error) {
	if o.app != nil {
		return o.app, nil
	}
	app, err := o.newApp()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	o.app = app
	return app, nil
}

func (o *RootOptions) printer(cmd *cobra.Command) *Printer {
	return &Printer{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// NewRootCommand creates the root command for the littlewatch CLI.
func NewRootCommand(factory AppFactory) *cobra.Command {
	opts := &RootOptions{newApp: factory}

	cmd := &cobra.Command{
		Use:   "littlewatch",
		Short: "LittleWatch baby monitor client",
		Long: `Command-line client for the LittleWatch baby monitoring backend.

Shows live heart rate, temperature and SpO2 from the linked band, with a
realtime channel and a fallback poller keeping the view current.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.app != nil {
				opts.app.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewSignupCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewProfileCommand(opts))
	cmd.AddCommand(NewLinkCommand(opts))
	cmd.AddCommand(NewUnlinkCommand(opts))
	cmd.AddCommand(NewMonitorCommand(opts))
	cmd.AddCommand(NewVitalsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewNotificationsCommand(opts))
	cmd.AddCommand(NewSleepCommand(opts))
	cmd.AddCommand(NewFCMTokenCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
