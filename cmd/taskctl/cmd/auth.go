package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pribylovaa/go-taskboard/internal/client"
	"github.com/pribylovaa/go-taskboard/internal/pkg/redact"
	"github.com/pribylovaa/go-taskboard/internal/tokens"
)

var loginEmail string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the taskctl session",
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save the token pair",
	RunE: func(cmd *cobra.Command, _ []string) error {
		email := strings.TrimSpace(loginEmail)
		if email == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "Email: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read email: %w", err)
			}
			email = strings.TrimSpace(line)
		}
		if email == "" {
			return errors.New("email is required")
		}

		password, err := readPassword(cmd)
		if err != nil {
			return err
		}

		c := newClient(newStore())
		if _, err := c.Login(cmd.Context(), email, password); err != nil {
			return err
		}

		log.Debug("login_ok", "email", redact.Email(email), "token_file", tokenFile)
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", email)
		return nil
	},
}

// readPassword - без эха на терминале; из пайпа читается строка как есть.
func readPassword(cmd *cobra.Command) (string, error) {
	if pw := os.Getenv("TASKCTL_PASSWORD"); pw != "" {
		return pw, nil
	}

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and remove stored tokens",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := newClient(newStore()).Logout(cmd.Context()); err != nil {
			// Локальные токены к этому моменту уже удалены.
			fmt.Fprintf(cmd.ErrOrStderr(), "server logout failed: %v\n", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store := newStore()

		var me json.RawMessage
		if err := newClient(store).Do(cmd.Context(), http.MethodGet, "/api/auth/me", nil, &me); err != nil {
			if errors.Is(err, client.ErrAuthExpired) {
				return fmt.Errorf("%w Run `%s auth login`", err, appName)
			}
			return err
		}

		if t, err := store.Get(cmd.Context()); err == nil {
			if p := tokens.DecodePayloadUnsafe(t.Access); p != nil && !p.ExpiresAt.IsZero() {
				fmt.Fprintf(cmd.ErrOrStderr(), "access token expires in %s\n",
					time.Until(p.ExpiresAt).Round(time.Second))
			}
		}

		return printJSON(cmd, me)
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "account email (prompted if empty)")

	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
