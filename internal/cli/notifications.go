package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewNotificationsCommand creates the notifications command group.
func NewNotificationsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "List and manage alert notifications",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listNotifications(cmd, rootOpts, false)
		},
	}

	var unreadOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listNotifications(cmd, rootOpts, unreadOnly)
		},
	}
	list.Flags().BoolVar(&unreadOnly, "unread", false, "only show unread notifications")

	read := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark one notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rootOpts.App()
			if err != nil {
				return err
			}
			sess, err := app.RequireSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.API.MarkNotificationRead(cmd.Context(), sess, args[0]); err != nil {
				return requestError("mark notification as read", err)
			}
			return rootOpts.printer(cmd).Status("ok", "Marked as read")
		},
	}

	readAll := &cobra.Command{
		Use:   "read-all",
		Short: "Mark all notifications as read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rootOpts.App()
			if err != nil {
				return err
			}
			sess, err := app.RequireSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.API.MarkAllNotificationsRead(cmd.Context(), sess); err != nil {
				return requestError("mark notifications as read", err)
			}
			return rootOpts.printer(cmd).Status("ok", "All notifications marked as read")
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rootOpts.App()
			if err != nil {
				return err
			}
			sess, err := app.RequireSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.API.ClearNotifications(cmd.Context(), sess); err != nil {
				return requestError("clear notifications", err)
			}
			return rootOpts.printer(cmd).Status("ok", "Notifications cleared")
		},
	}

	cmd.AddCommand(list, read, readAll, clearCmd)
	return cmd
}

func listNotifications(cmd *cobra.Command, rootOpts *RootOptions, unreadOnly bool) error {
	app, err := rootOpts.App()
	if err != nil {
		return err
	}
	sess, err := app.RequireSession(cmd.Context())
	if err != nil {
		return err
	}
	items, err := app.API.ListNotifications(cmd.Context(), sess)
	if err != nil {
		return requestError("load notifications", err)
	}
	if unreadOnly {
		unread := items[:0]
		for _, n := range items {
			if !n.Read {
				unread = append(unread, n)
			}
		}
		items = unread
	}

	return rootOpts.printer(cmd).Emit(items, func(w io.Writer) {
		if len(items) == 0 {
			fmt.Fprintln(w, "No notifications")
			return
		}
		for _, n := range items {
			mark := " "
			if !n.Read {
				mark = "*"
			}
			when := n.Time
			if when == "" && !n.CreatedAt.IsZero() {
				when = n.CreatedAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s [%s] %s  %s\n", mark, n.ID, n.Title, when)
			if n.Message != "" {
				fmt.Fprintf(w, "    %s\n", n.Message)
			}
		}
	})
}
