package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/surreal-wow/sdbeditor/internal/auth"
)

var (
	accountUsername string
	accountEmail    string
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Game account administration",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a game account in the auth database",
	Long: `Create a game account: a random SRP-6 salt and verifier are computed from
the password and inserted into the server's account table. The password
itself is never stored.

Without flags an interactive form collects the fields. With --username the
password is read from the terminal without echo.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scfg, err := loadStarterConfig()
		if err != nil {
			return err
		}

		username := accountUsername
		email := accountEmail
		var password string

		if username == "" {
			u, e, p, err := accountForm()
			if err != nil {
				return err
			}
			if u == "" {
				fmt.Fprintln(os.Stderr, "account creation cancelled")
				return nil
			}
			username, email, password = u, e, p
		} else {
			fmt.Fprint(os.Stderr, "Password: ")
			pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr) // newline after password
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			password = string(pwBytes)
		}

		svc := auth.NewService(scfg.AccountDSN(), log)
		if err := svc.Signup(cmd.Context(), username, password, email); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("account " + strings.ToUpper(strings.TrimSpace(username)) + " created"))
		return nil
	},
}

// accountForm collects the signup fields interactively. A zero username
// means the user aborted.
func accountForm() (username, email, password string, err error) {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Description("3-16 letters and digits").
				Value(&username).
				Validate(func(s string) error {
					s = strings.TrimSpace(s)
					if len(s) < 3 || len(s) > 16 {
						return fmt.Errorf("username must be 3-16 characters")
					}
					return nil
				}),

			huh.NewInput().
				Title("Email").
				Placeholder("user@example.com").
				Value(&email).
				Validate(func(s string) error {
					if !strings.Contains(s, "@") {
						return fmt.Errorf("email address is not valid")
					}
					return nil
				}),

			huh.NewInput().
				Title("Password").
				Description("4-16 characters").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(func(s string) error {
					if n := utf8.RuneCountInString(s); n < 4 || n > 16 {
						return fmt.Errorf("password must be 4-16 characters")
					}
					return nil
				}),

			huh.NewConfirm().
				Title("Create this account?").
				Affirmative("Create").
				Negative("Cancel").
				Value(&confirmed),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", "", "", nil
		}
		return "", "", "", fmt.Errorf("form error: %w", err)
	}
	if !confirmed {
		return "", "", "", nil
	}
	return username, email, password, nil
}

func init() {
	accountCreateCmd.Flags().StringVar(&accountUsername, "username", "", "Account name (skips the interactive form)")
	accountCreateCmd.Flags().StringVar(&accountEmail, "email", "", "Account email")
	accountCmd.AddCommand(accountCreateCmd)
	rootCmd.AddCommand(accountCmd)
}
