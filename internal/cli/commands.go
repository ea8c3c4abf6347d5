package cli

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmeijer/socmon/internal/config"
	"github.com/jmeijer/socmon/internal/domain"
	"github.com/jmeijer/socmon/internal/orchestrator"
	"github.com/jmeijer/socmon/internal/store"
)

// Execute builds the command tree and runs it.
func Execute() error {
	root := &cobra.Command{
		Use:           "socmon",
		Short:         "Social media monitoring pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		initCmd(),
		collectCmd(),
		backfillCmd(),
		analyzeCmd(),
		reportCmd(),
		statusCmd(),
		runCmd(),
		serveCmd(),
	)
	return root.Execute()
}

// withApp wires the application, runs fn, and tears everything down.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Apply database migrations and sync the account roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.cfg.PostgresDSN != "" {
					if err := store.Migrate(ctx, a.cfg.PostgresDSN); err != nil {
						return err
					}
					a.logger.Info("migrations applied")
				}
				count, err := config.SyncAccounts(ctx, a.cfg.AccountsPath, a.store)
				if err != nil {
					return err
				}
				a.logger.Info("accounts synced", zap.Int("count", count))
				fmt.Printf("initialized: %d accounts synced\n", count)
				return nil
			})
		},
	}
}

func scopeFlags(cmd *cobra.Command) {
	cmd.Flags().String("country", "", "limit to one country")
	cmd.Flags().String("platform", "", "limit to one platform (instagram, facebook, twitter)")
}

func readScope(cmd *cobra.Command) (orchestrator.CollectScope, error) {
	country, _ := cmd.Flags().GetString("country")
	platformName, _ := cmd.Flags().GetString("platform")

	scope := orchestrator.CollectScope{Country: country}
	if platformName != "" {
		platform, err := domain.ParsePlatform(platformName)
		if err != nil {
			return scope, err
		}
		scope.Platform = platform
	}
	return scope, nil
}

func collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Plan incremental collection for active accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				scope, err := readScope(cmd)
				if err != nil {
					return err
				}
				ids, err := a.orch.PlanCollect(ctx, scope)
				if err != nil {
					return err
				}
				fmt.Printf("planned %d collect jobs\n", len(ids))
				return nil
			})
		},
	}
	scopeFlags(cmd)
	return cmd
}

func backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Plan historical collection, walking back month by month",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				scope, err := readScope(cmd)
				if err != nil {
					return err
				}
				months, _ := cmd.Flags().GetInt("months")
				ids, err := a.orch.PlanBackfill(ctx, scope, months)
				if err != nil {
					return err
				}
				fmt.Printf("planned %d backfill jobs over %d months\n", len(ids), months)
				return nil
			})
		},
	}
	scopeFlags(cmd)
	cmd.Flags().Int("months", 12, "how many months back to collect")
	return cmd
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Plan metric calculation for a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				month, _ := cmd.Flags().GetString("month")
				if month != "" && !domain.ValidMonth(month) {
					return fmt.Errorf("month %q is not YYYY-MM", month)
				}
				account, _ := cmd.Flags().GetString("account")
				id, err := a.orch.PlanAnalyze(ctx, account, month)
				if err != nil {
					return err
				}
				fmt.Printf("planned analyze job %s\n", id)
				return nil
			})
		},
	}
	cmd.Flags().String("month", "", "month to analyze (YYYY-MM, default current)")
	cmd.Flags().String("account", "", "single account id (default all active)")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Plan report generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				typeName, _ := cmd.Flags().GetString("type")
				month, _ := cmd.Flags().GetString("month")
				year, _ := cmd.Flags().GetInt("year")
				formatNames, _ := cmd.Flags().GetStringSlice("format")

				reportType := domain.ReportType(typeName)
				if reportType != domain.ReportTypeMonthly && reportType != domain.ReportTypeYearly {
					return fmt.Errorf("unknown report type %q", typeName)
				}
				formats := make([]domain.ReportFormat, 0, len(formatNames))
				for _, name := range formatNames {
					formats = append(formats, domain.ReportFormat(name))
				}

				ids, err := a.orch.PlanReport(ctx, orchestrator.ReportRequest{
					Type:    reportType,
					Month:   month,
					Year:    year,
					Formats: formats,
				})
				if err != nil {
					return err
				}
				fmt.Printf("planned %d report jobs\n", len(ids))
				return nil
			})
		},
	}
	cmd.Flags().String("type", "monthly", "report type (monthly, yearly)")
	cmd.Flags().String("month", "", "month for monthly reports (YYYY-MM, default current)")
	cmd.Flags().Int("year", 0, "year for yearly reports (default current)")
	cmd.Flags().StringSlice("format", []string{"dashboard"}, "formats (dashboard, excel, pdf)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts and the account roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				status, err := a.orch.RunStatus(ctx)
				if err != nil {
					return err
				}

				fmt.Printf("accounts: %d total, %d active\n\n", status.Accounts, status.ActiveAccounts)
				kinds := make([]string, 0, len(status.Jobs))
				for kind := range status.Jobs {
					kinds = append(kinds, string(kind))
				}
				sort.Strings(kinds)
				for _, kind := range kinds {
					byState := status.Jobs[domain.JobKind(kind)]
					fmt.Printf("%s:\n", kind)
					for _, state := range domain.JobStates {
						if n := byState[state]; n > 0 {
							fmt.Printf("  %-10s %d\n", state, n)
						}
					}
				}
				return nil
			})
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent pools until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				workers, _ := cmd.Flags().GetInt("workers")
				a.setWorkers(workers)
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				a.logger.Info("starting agents", zap.Int("workers", a.cfg.Workers))
				return a.orch.StartAgents(ctx, a.handlers())
			})
		},
	}
	cmd.Flags().Int("workers", 0, "runners per agent (default from WORKERS)")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the status and dashboard HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return a.serveHTTP(ctx)
			})
		},
	}
}
