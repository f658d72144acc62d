// @title        Secret Code Contest API
// @version      1.0
// @description  Anonymous guessing of a shared secret code with a single winner.
// @BasePath     /
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"secretcontest/internal/app"
	"secretcontest/internal/config"
	"secretcontest/internal/repositories"
	"secretcontest/internal/services"
)

var rootCmd = &cobra.Command{
	Use:   "secretcontest",
	Short: "Secret code contest server",
	Long: `secretcontest runs a one-time promotional contest: visitors guess a short secret
code, the first correct guess wins and may leave contact details once.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CONTEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to YAML config, e.g. config/config.example.yaml (empty: environment only)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(hashCodeCmd())
	rootCmd.AddCommand(stateCmd())
	rootCmd.AddCommand(resetCmd())
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetString("config"))
}

func withDB(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, db *repositories.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := repositories.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := repositories.Migrate(ctx, db); err != nil {
		return err
	}
	return fn(ctx, cfg, db)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, cfg *config.Config, db *repositories.DB) error {
				fmt.Printf("migrations applied (%s)\n", cfg.Database.Driver)
				return nil
			})
		},
	}
}

func hashCodeCmd() *cobra.Command {
	p := services.DefaultArgon2Params
	cmd := &cobra.Command{
		Use:   "hash-code [code]",
		Short: "Print the argon2id hash for contest.code_hash",
		Long:  "Hashes the secret code given as argument, or read from the first line of stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var code string
			if len(args) == 1 {
				code = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read code from stdin: %w", err)
				}
				code = line
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return errors.New("code is empty")
			}
			hash, err := services.HashCode(code, p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&p.Memory, "memory", p.Memory, "argon2 memory in KiB")
	cmd.Flags().Uint32Var(&p.Iterations, "iterations", p.Iterations, "argon2 iterations")
	cmd.Flags().Uint8Var(&p.Parallelism, "parallelism", p.Parallelism, "argon2 parallelism")
	return cmd
}

func stateCmd() *cobra.Command {
	var showContact bool
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show contest state and counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, cfg *config.Config, db *repositories.DB) error {
				st, err := repositories.NewContestStateRepository(db).Get(ctx)
				if err != nil {
					return err
				}
				locks := repositories.NewAttemptLockRepository(db)
				lockCount, err := locks.Count(ctx)
				if err != nil {
					return err
				}
				blocked, err := locks.CountBlocked(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				tokens, err := repositories.NewClaimTokenRepository(db).CountUnused(ctx)
				if err != nil {
					return err
				}
				contacts := repositories.NewWinnerContactRepository(db)
				contactCount, err := contacts.Count(ctx)
				if err != nil {
					return err
				}

				claimedAt := "-"
				if st.WinnerClaimedAt != nil {
					claimedAt = st.WinnerClaimedAt.UTC().Format(time.RFC3339)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"Field", "Value"})
				tw.AppendRow(table.Row{"closed", st.Closed()})
				tw.AppendRow(table.Row{"winner claimed at", claimedAt})
				tw.AppendRow(table.Row{"contact submitted", st.ContactSubmitted})
				tw.AppendRow(table.Row{"attempt locks", lockCount})
				tw.AppendRow(table.Row{"blocked actors", blocked})
				tw.AppendRow(table.Row{"unused claim tokens", tokens})
				tw.AppendRow(table.Row{"contacts", contactCount})
				tw.AppendRow(table.Row{"test mode", cfg.Contest.TestMode})
				tw.Render()

				if !showContact {
					return nil
				}
				c, err := contacts.GetLatest(ctx)
				if err != nil {
					return err
				}
				if c == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "no contact submitted")
					return nil
				}
				phone := ""
				if c.Phone != nil {
					phone = *c.Phone
				}
				ct := table.NewWriter()
				ct.SetOutputMirror(cmd.OutOrStdout())
				ct.AppendHeader(table.Row{"Name", "Email", "Phone", "Submitted"})
				ct.AppendRow(table.Row{c.Name, c.Email, phone, c.CreatedAt.UTC().Format(time.RFC3339)})
				ct.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showContact, "show-contact", false, "also print the winner's contact details")
	return cmd
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the contest (test mode only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, cfg *config.Config, db *repositories.DB) error {
				if !cfg.Contest.TestMode {
					return errors.New("reset is only available with contest.test_mode enabled")
				}
				verifier, err := services.NewCodeVerifier(cfg.Contest.CodeHash)
				if err != nil {
					return err
				}
				svc := services.NewContestService(db, verifier, nil, cfg.Contest.Settings(), nil)
				if err := svc.Reset(ctx, cfg.Contest.AdminResetKey); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "contest reset")
				return nil
			})
		},
	}
}
