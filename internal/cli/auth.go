package cli

import (
	"fmt"
	"io"

	"github.com/Maryclair03/Latest-LittleWatch/internal/api"
	"github.com/Maryclair03/Latest-LittleWatch/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Long: `Log in with email and password. The session is stored in the configured
backend (redis or postgres) and used by every other command. A push token saved
while logged out is uploaded after a successful login.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return NewExitError(ExitCommandError, "--email and --password are required")
			}
			app, err := rootOpts.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			result, err := app.API.Login(ctx, email, password)
			if err != nil {
				if api.IsUnauthorized(err) {
					return WrapExitError(ExitFailure, "invalid email or password", err)
				}
				return requestError("log in", err)
			}

			sess := models.Session{
				UserID:       result.ResolvedUserID(),
				AuthToken:    result.Token,
				DeviceSerial: result.User.DeviceSerial,
			}
			if err := app.Store.Set(ctx, sess); err != nil {
				return WrapExitError(ExitFailure, "failed to save session", err)
			}

			// Upload a push token saved while logged out.
			token, err := app.Store.TakePendingFCMToken(ctx)
			if err != nil {
				app.Logger.Warn("Failed to read pending push token", zap.Error(err))
			} else if token != "" {
				if err := app.API.UpdateFCMToken(ctx, &sess, token); err != nil {
					app.Logger.Warn("Failed to upload pending push token", zap.Error(err))
					if err := app.Store.SetPendingFCMToken(ctx, token); err != nil {
						app.Logger.Warn("Failed to keep pending push token", zap.Error(err))
					}
				}
			}

			return rootOpts.printer(cmd).Emit(map[string]string{
				"user_id":       sess.UserID,
				"name":          result.User.Name,
				"device_serial": sess.DeviceSerial,
			}, func(w io.Writer) {
				name := result.User.Name
				if name == "" {
					name = email
				}
				fmt.Fprintf(w, "Logged in as %s\n", name)
				if sess.DeviceSerial == "" {
					fmt.Fprintln(w, "No device linked yet. Run `littlewatch link <serial>`.")
				}
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	return cmd
}

// NewSignupCommand creates the signup command.
func NewSignupCommand(rootOpts *RootOptions) *cobra.Command {
	var in models.SignupRequest

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a parent account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Name == "" || in.Email == "" || in.Password == "" {
				return NewExitError(ExitCommandError, "--name, --email and --password are required")
			}
			app, err := rootOpts.App()
			if err != nil {
				return err
			}
			if err := app.API.Signup(cmd.Context(), in); err != nil {
				return requestError("sign up", err)
			}
			return rootOpts.printer(cmd).Status("ok", "Account created. Run `littlewatch login` to continue.")
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "parent name")
	cmd.Flags().StringVarP(&in.Email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	cmd.Flags().StringVarP(&in.Password, "password", "p", "", "account password")
	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rootOpts.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			sess, err := app.Store.Get(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read session", err)
			}
			if sess.Valid() {
				// The local session is cleared even if the server logout fails.
				if err := app.API.Logout(ctx, sess); err != nil {
					app.Logger.Warn("Server logout failed", zap.Error(err))
				}
			}
			if err := app.Store.Clear(ctx); err != nil {
				return WrapExitError(ExitFailure, "failed to clear session", err)
			}
			return rootOpts.printer(cmd).Status("ok", "Logged out")
		},
	}
}
