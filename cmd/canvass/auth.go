package main

import (
	"errors"
	"fmt"

	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/identity"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in, sign out and manage the account",
	Long: `Manage the signed-in account. Passwords can be passed with --password or
the CANVASS_PASSWORD environment variable.

Example:
  canvass auth signup rep@example.com --password hunter22 --name "Sam Rivera"
  canvass auth signin rep@example.com
  canvass auth guest
  canvass auth convert rep@example.com
  canvass auth signout`,
}

var authSignUpCmd = &cobra.Command{
	Use:   "signup <email>",
	Short: "Create an account and start syncing",
	Args:  cobra.ExactArgs(1),
	RunE:  runSignUp,
}

var authSignInCmd = &cobra.Command{
	Use:   "signin <email>",
	Short: "Sign in and start syncing",
	Args:  cobra.ExactArgs(1),
	RunE:  runSignIn,
}

var authSignOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Push pending changes, clear local data and sign out",
	Long: `Sign out. Pending leads and check-ins are pushed first (bounded by the
sign-out sync timeout), then local data and the cache directory are cleared.
Appointments already in the shared store are left untouched.`,
	RunE: runSignOut,
}

var authGuestCmd = &cobra.Command{
	Use:   "guest",
	Short: "Use canvass without an account",
	RunE:  runGuest,
}

var authConvertCmd = &cobra.Command{
	Use:   "convert <email>",
	Short: "Turn guest data into an account",
	Long: `Create (or sign in to) an account and upload everything captured in guest
mode. Fails without changing anything locally if the account already holds data.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

var authResetCmd = &cobra.Command{
	Use:   "reset-password <email>",
	Short: "Request a password reset",
	Args:  cobra.ExactArgs(1),
	RunE:  runResetPassword,
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete-account",
	Short: "Delete all remote and local data and the account",
	RunE:  runDeleteAccount,
}

var (
	authPassword    string
	authDisplayName string
	authConfirm     bool
)

func init() {
	for _, c := range []*cobra.Command{authSignUpCmd, authSignInCmd, authConvertCmd} {
		c.Flags().StringVar(&authPassword, "password", "", "Account password")
	}
	authSignUpCmd.Flags().StringVar(&authDisplayName, "name", "", "Display name")
	authConvertCmd.Flags().StringVar(&authDisplayName, "name", "", "Display name")
	authDeleteCmd.Flags().BoolVar(&authConfirm, "confirm", false, "Confirm deletion (required)")

	authCmd.AddCommand(authSignUpCmd, authSignInCmd, authSignOutCmd, authGuestCmd,
		authConvertCmd, authResetCmd, authDeleteCmd)
	rootCmd.AddCommand(authCmd)
}

func password() string {
	if authPassword != "" {
		return authPassword
	}
	return v.GetString("password")
}

func outputUser(cmd *cobra.Command, verb string, u *identity.User) error {
	if outputJSON {
		return outputAsJSON(cmd, u)
	}
	printSuccess(cmd.OutOrStdout(), "%s as %s", verb, u.Email)
	return nil
}

func runSignUp(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	u, err := a.SignUp(cmd.Context(), args[0], password(), authDisplayName)
	if errors.Is(err, canvass.ErrGuestMode) {
		return fmt.Errorf("guest data is waiting; run 'canvass auth convert %s' to keep it: %w", args[0], err)
	}
	if err != nil {
		return fmt.Errorf("sign up: %w", err)
	}
	return outputUser(cmd, "Signed up", u)
}

func runSignIn(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	u, err := a.SignIn(cmd.Context(), args[0], password())
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	return outputUser(cmd, "Signed in", u)
}

func runSignOut(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var report *signOutOutput
	err = runWithSpinner(cmd.ErrOrStderr(), "Signing out", func() error {
		r, serr := a.SignOut(cmd.Context())
		if r != nil {
			report = &signOutOutput{
				WaitResult:   r.WaitResult,
				SyncTimedOut: r.SyncTimedOut,
				Errors:       r.Errors,
			}
			if r.Push != nil {
				report.Pushed = r.Push.Pushed
				report.Failed = r.Push.Failed()
			}
		}
		return serr
	})
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, report)
	}
	out := cmd.OutOrStdout()
	printSuccess(out, "Signed out")
	if report == nil {
		return nil
	}
	if report.SyncTimedOut {
		printWarning(out, "Final sync timed out; unsynced changes on this device were cleared")
	} else if report.Pushed > 0 {
		printMuted(out, "Pushed %d records before clearing", report.Pushed)
	}
	for _, e := range report.Errors {
		printWarning(out, "%s", e)
	}
	return nil
}

type signOutOutput struct {
	WaitResult   string   `json:"wait_result"`
	Pushed       int      `json:"pushed"`
	Failed       int      `json:"failed"`
	SyncTimedOut bool     `json:"sync_timed_out"`
	Errors       []string `json:"errors,omitempty"`
}

func runGuest(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.ContinueAsGuest(); err != nil {
		return err
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]bool{"guest": true})
	}
	printSuccess(cmd.OutOrStdout(), "Guest mode on; data stays on this device until you convert")
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var u *identity.User
	err = runWithSpinner(cmd.ErrOrStderr(), "Uploading guest data", func() error {
		var cerr error
		u, cerr = a.ConvertGuestToAccount(cmd.Context(), args[0], password(), authDisplayName)
		return cerr
	})
	switch {
	case errors.Is(err, canvass.ErrRemoteSubtreeExists):
		return fmt.Errorf("account %s already has data; sign in instead (guest data was kept): %w", args[0], err)
	case errors.Is(err, canvass.ErrNotGuest):
		return fmt.Errorf("not in guest mode: %w", err)
	case err != nil:
		return fmt.Errorf("convert: %w", err)
	}
	return outputUser(cmd, "Converted guest data; signed in", u)
}

func runResetPassword(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.ResetPassword(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]string{"email": args[0], "status": "sent"})
	}
	printInfo(cmd.OutOrStdout(), "If %s has an account, a reset link is on its way", args[0])
	return nil
}

func runDeleteAccount(cmd *cobra.Command, args []string) error {
	if !authConfirm {
		return fmt.Errorf("deleting the account removes all data everywhere; pass --confirm")
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.DeleteAllData(cmd.Context()); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]bool{"deleted": true})
	}
	printSuccess(cmd.OutOrStdout(), "Account and all data deleted")
	return nil
}
