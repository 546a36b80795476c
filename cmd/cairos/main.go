package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aspect-build/cairos/internal/apperr"
	"github.com/aspect-build/cairos/internal/client"
	"github.com/aspect-build/cairos/internal/logx"
	"github.com/aspect-build/cairos/internal/version"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "cairos",
		Short:   "Cairos - record where you spend time in your editor",
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logx.Configure(logLevel, verbose)
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate(version.String("cairos") + "\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: $CAIROS_CONFIG or <user config dir>/cairos/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error (or CAIROS_LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose debug logs (same as --log-level debug)")

	rootCmd.AddCommand(newSetupCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newLanguageServerCmd())
	rootCmd.AddCommand(newVersionCmd())

	err := rootCmd.Execute()
	logx.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return client.DefaultConfigPath()
}

func loadConfig() (string, *client.Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return "", nil, err
	}
	cfg, err := client.LoadConfig(path)
	if err != nil {
		return "", nil, err
	}
	return path, cfg, nil
}

func newSetupCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write a fresh config file for a server (logs out)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigPath()
			if err != nil {
				return err
			}
			cfg, err := client.ResetConfig(path, baseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s (base_url=%s)\n", path, cfg.BaseURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", client.DefaultBaseURL, "Base URL of the cairos server")
	return cmd
}

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in to or out of the cairos server",
	}
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	return cmd
}

func newLoginCmd() *cobra.Command {
	var (
		useGitHub bool
		clientID  string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with the OAuth device flow",
		Long: `Sign in with GitHub using the OAuth device flow. A one-time code is
printed; enter it at the verification URL. On success the cairos token is
saved to the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !useGitHub {
				return fmt.Errorf("choose a provider: --github")
			}
			path, cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stderr := cmd.ErrOrStderr()
			flow := &client.DeviceFlow{
				Provider: client.NewGitHubDevice(clientID, client.GitHubDeviceEndpoint, nil),
				Backend:  client.NewAPIClient(cfg.BaseURL, ""),
				Persist: func(token string) error {
					cfg.Token = token
					return client.SaveConfig(path, cfg)
				},
				Prompt: func(code *client.DeviceCode) {
					fmt.Fprintf(stderr, "Open %s and enter the code: %s\n", code.VerificationURI, code.UserCode)
					fmt.Fprintf(stderr, "Waiting for authorization (expires in %s)...\n", code.ExpiresIn.Round(time.Second))
				},
			}

			state, err := flow.Run(ctx)
			logx.Debugf("device flow finished in state %s", state)
			if err != nil {
				return loginError(err)
			}
			fmt.Fprintln(stderr, "Logged in.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&useGitHub, "github", false, "Sign in with GitHub")
	cmd.Flags().StringVar(&clientID, "client-id", client.DefaultGitHubClientID, "GitHub OAuth app client ID")
	return cmd
}

func loginError(err error) error {
	switch {
	case errors.Is(err, apperr.ErrExpired):
		return fmt.Errorf("login code expired; run `cairos auth login --github` again")
	case errors.Is(err, apperr.ErrDenied):
		return fmt.Errorf("login was denied: %w", err)
	case errors.Is(err, apperr.ErrAborted):
		return fmt.Errorf("login aborted")
	case errors.Is(err, apperr.ErrNoPrimaryEmail):
		return fmt.Errorf("your GitHub account has no primary email address")
	default:
		return err
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the saved token and remove it from the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Token == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "Not logged in.")
				return nil
			}

			err = client.NewAPIClient(cfg.BaseURL, cfg.Token).Logout(cmd.Context())
			// A token the server already rejects is as good as revoked.
			if err != nil && !errors.Is(err, apperr.ErrUnauthenticated) {
				return fmt.Errorf("revoke token: %w", err)
			}

			cfg.Token = ""
			if err := client.SaveConfig(path, cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Logged out.")
			return nil
		},
	}
}

func newLanguageServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "language-server",
		Short: "Run the LSP server over stdio",
		Long: `Run a language server on stdin/stdout. Editors start this command;
document open, change and save notifications are sent to the cairos server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Token == "" {
				return fmt.Errorf("not logged in: run `cairos auth login --github` first")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			api := client.NewAPIClient(cfg.BaseURL, cfg.Token)
			ls := client.NewLanguageServer(client.NewDebouncer(api))
			logx.Infof("language server started (base_url=%s)", cfg.BaseURL)
			if err := ls.Serve(ctx, client.Stdio{}); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String("cairos"))
		},
	}
}
