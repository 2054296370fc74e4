package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/docsession/gateway"
)

// minPasswordLength matches what the service's sign-in form enforces.
const minPasswordLength = 6

var (
	loginEmail    string
	loginPassword string

	registerName     string
	registerEmail    string
	registerPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and keep the session for later commands",
	Long: `Sign in with email and password. When --password is omitted the password
is read from the first line of standard input.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFrom(cmd, loginPassword)
		if err != nil {
			return err
		}
		if len(password) < minPasswordLength {
			return fmt.Errorf("password must be at least %d characters long", minPasswordLength)
		}

		c, done, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer done()

		s, err := c.Login(cmd.Context(), loginEmail, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", s.User.Email, s.User.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer done()

		if !c.Session().IsLoggedIn {
			fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
			return nil
		}
		if err := c.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer done()

		s := c.Session()
		if !s.IsLoggedIn {
			fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
			return nil
		}
		claims, err := c.Claims()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "User:\t%s <%s>\n", s.User.FullName, s.User.Email)
		fmt.Fprintf(tw, "Role:\t%s\n", s.User.Role)
		fmt.Fprintf(tw, "Expires:\t%s (in %s)\n",
			claims.ExpiresAt.Local().Format(time.RFC1123),
			time.Until(claims.ExpiresAt).Round(time.Second))
		return tw.Flush()
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFrom(cmd, registerPassword)
		if err != nil {
			return err
		}
		c, done, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer done()

		msg, err := c.Documents().Register(cmd.Context(), gateway.Registration{
			FullName: registerName,
			Email:    registerEmail,
			Password: password,
		})
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

func passwordFrom(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("reading password from stdin: %w", err)
		}
		return "", errors.New("password is required")
	}
	return line, nil
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password (read from stdin when empty)")
	_ = loginCmd.MarkFlagRequired("email")

	registerCmd.Flags().StringVar(&registerName, "name", "", "Full name")
	registerCmd.Flags().StringVarP(&registerEmail, "email", "e", "", "Account email")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "Account password (read from stdin when empty)")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd, registerCmd)
}
