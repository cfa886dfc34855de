package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewFCMTokenCommand creates the fcm-token command.
func NewFCMTokenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fcm-token <token>",
		Short: "Register a push notification token",
		Long: `Register the push token for this account. When logged out the token is kept
and uploaded after the next login.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(args[0])
			if token == "" {
				return NewExitError(ExitCommandError, "token is required")
			}
			app, err := rootOpts.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := app.Store.Get(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read session", err)
			}

			if !sess.Valid() {
				if err := app.Store.SetPendingFCMToken(ctx, token); err != nil {
					return WrapExitError(ExitFailure, "failed to save token", err)
				}
				return rootOpts.printer(cmd).Status("pending", "Token saved, it will be uploaded after login")
			}
			if err := app.API.UpdateFCMToken(ctx, sess, token); err != nil {
				return requestError("upload token", err)
			}
			return rootOpts.printer(cmd).Status("ok", "Token uploaded")
		},
	}
}

// NewSettingsCommand creates the settings command.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	var notifications string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Update account settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(notifications) {
			case "on", "true":
				enabled = true
			case "off", "false":
				enabled = false
			case "":
				return NewExitError(ExitCommandError, "nothing to update, use --notifications on|off")
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid --notifications value %q: must be on or off", notifications))
			}

			app, err := rootOpts.App()
			if err != nil {
				return err
			}
			sess, err := app.RequireSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.API.UpdateNotificationSettings(cmd.Context(), sess, enabled); err != nil {
				return requestError("update settings", err)
			}
			return rootOpts.printer(cmd).Emit(map[string]any{"status": "ok", "notifications": enabled}, func(w io.Writer) {
				fmt.Fprintf(w, "Notifications %s\n", onOff(enabled))
			})
		},
	}

	cmd.Flags().StringVar(&notifications, "notifications", "", "push notifications (on|off)")
	return cmd
}
