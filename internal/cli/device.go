package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewProfileCommand creates the profile command.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the account profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rootOpts.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := app.RequireSession(ctx)
			if err != nil {
				return err
			}

			profile, err := app.API.GetProfile(ctx, sess)
			if err != nil {
				return requestError("load profile", err)
			}
			// Keep the local session in step with the server-side link.
			if profile.DeviceSerial != sess.DeviceSerial {
				if _, err := app.Store.SetDeviceSerial(ctx, profile.DeviceSerial); err != nil {
					app.Logger.Warn("Failed to sync device serial", zap.Error(err))
				}
			}

			return rootOpts.printer(cmd).Emit(profile, func(w io.Writer) {
				fmt.Fprintf(w, "Name:          %s\n", orPlaceholder(profile.Name))
				fmt.Fprintf(w, "Email:         %s\n", orPlaceholder(profile.Email))
				fmt.Fprintf(w, "Phone:         %s\n", orPlaceholder(profile.Phone))
				fmt.Fprintf(w, "Device:        %s\n", orPlaceholder(profile.DeviceSerial))
				if profile.NotificationEnabled != nil {
					fmt.Fprintf(w, "Notifications: %s\n", onOff(*profile.NotificationEnabled))
				}
			})
		},
	}
}

// NewLinkCommand creates the link command.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "link <serial>",
		Short: "Link a band by its serial number",
		Long: `Link the band printed on the device QR code to this account. The serial is
stored in the local session so monitor, history and sleep commands can use it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[0]) == "" {
				return NewExitError(ExitCommandError, "device serial is required")
			}
			app, err := rootOpts.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := app.RequireSession(ctx)
			if err != nil {
				return err
			}

			serial, err := app.API.LinkDevice(ctx, sess, args[0])
			if err != nil {
				return requestError("link device", err)
			}
			if _, err := app.Store.SetDeviceSerial(ctx, serial); err != nil {
				return WrapExitError(ExitFailure, "failed to save device serial", err)
			}
			return rootOpts.printer(cmd).Emit(map[string]string{"status": "ok", "device_serial": serial}, func(w io.Writer) {
				fmt.Fprintf(w, "Linked device %s\n", serial)
			})
		},
	}
}

// NewUnlinkCommand creates the unlink command.
func NewUnlinkCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink",
		Short: "Unlink the current band",
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
			if err := app.API.UnlinkDevice(ctx, sess); err != nil {
				return requestError("unlink device", err)
			}
			if _, err := app.Store.SetDeviceSerial(ctx, ""); err != nil {
				return WrapExitError(ExitFailure, "failed to update session", err)
			}
			return rootOpts.printer(cmd).Status("ok", "Device unlinked")
		},
	}
}

func orPlaceholder(s string) string {
	if s == "" {
		return "--"
	}
	return s
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
