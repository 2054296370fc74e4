package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmcleod/docsession/gateway"
	"github.com/jmcleod/docsession/internal/util"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administer users and files (admin role required)",
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
}

var adminFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage every user's files",
}

var adminUsersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()

		users, err := c.Documents().ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tSTATUS")
		for _, u := range users {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.FullName, u.Role, status(u.Deleted))
		}
		return tw.Flush()
	},
}

var adminFilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()

		files, err := c.Documents().ListAllFiles(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tOWNER\tSIZE\tUPLOADED\tSTATUS")
		for _, f := range files {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n",
				f.ID, f.Filename, f.UploadedBy, util.FormatSize(deref(f.Size)), f.UploadedTime, status(f.Deleted))
		}
		return tw.Flush()
	},
}

type adminAction func(d *gateway.Documents, ctx context.Context, id int64) error

// idCommand builds a subcommand that applies one admin action to an id.
func idCommand(use, short, done string, action adminAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, closeClient, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer closeClient()

			if err := action(c.Documents(), cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), done+"\n", id)
			return nil
		},
	}
}

func status(deleted bool) string {
	if deleted {
		return "deleted"
	}
	return "active"
}

func init() {
	adminUsersCmd.AddCommand(
		adminUsersListCmd,
		idCommand("promote", "Grant the admin role", "User %d promoted", (*gateway.Documents).PromoteUser),
		idCommand("demote", "Revoke the admin role", "User %d demoted", (*gateway.Documents).DemoteUser),
		idCommand("delete", "Soft-delete a user", "User %d deleted", (*gateway.Documents).SoftDeleteUser),
		idCommand("restore", "Restore a soft-deleted user", "User %d restored", (*gateway.Documents).RestoreUser),
		idCommand("purge", "Permanently delete a user", "User %d permanently deleted", (*gateway.Documents).PurgeUser),
	)
	adminFilesCmd.AddCommand(
		adminFilesListCmd,
		idCommand("delete", "Soft-delete a file", "File %d deleted", (*gateway.Documents).SoftDeleteFile),
		idCommand("restore", "Restore a soft-deleted file", "File %d restored", (*gateway.Documents).RestoreFile),
		idCommand("purge", "Permanently delete a file", "File %d permanently deleted", (*gateway.Documents).PurgeFile),
	)
	adminCmd.AddCommand(adminUsersCmd, adminFilesCmd)
	rootCmd.AddCommand(adminCmd)
}
