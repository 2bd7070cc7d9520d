package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/samsaffron/pulse/internal/config"
	"github.com/samsaffron/pulse/internal/signal"
)

var (
	loginEmail  string
	loginSignup bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to a pulse server and store the session token",
	Long: `Sign in (or sign up with --signup) against client.server_url. The
session token is saved next to the config file and sent as a bearer token
by build and sites.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().BoolVar(&loginSignup, "signup", false, "Create the account first")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context())
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	email := loginEmail
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&email).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("email is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return err
	}

	// Log in without a stale token.
	client, err := newAPIClient(config.ClientConfig{ServerURL: cfg.Client.ServerURL})
	if err != nil {
		return err
	}
	path := "/api/auth/login"
	if loginSignup {
		path = "/api/auth/signup"
	}
	resp, err := client.request(ctx, http.MethodPost, path, map[string]string{
		"email":    strings.TrimSpace(email),
		"password": password,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	token := authCookie(resp)
	if token == "" {
		return errors.New("server did not return a session token")
	}
	if err := config.SaveToken(token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Signed in to %s as %s\n", cfg.Client.ServerURL, strings.TrimSpace(email))
	return nil
}
