package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/headcorn/dashboard-api/internal/auth"
	"github.com/headcorn/dashboard-api/internal/config"
	"github.com/headcorn/dashboard-api/internal/crm"
	"github.com/headcorn/dashboard-api/internal/database"
	"github.com/headcorn/dashboard-api/internal/datawarehouse"
	"github.com/headcorn/dashboard-api/internal/domain"
	"github.com/headcorn/dashboard-api/internal/logger"
	"github.com/headcorn/dashboard-api/internal/repository"
	"github.com/headcorn/dashboard-api/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	probeEmail  string
	bcryptCost  int
	fiscalYear  string
	orderStatus string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Ping the database and the CRM",
	Long: `Checks that the accounts database answers and that the CRM is reachable.
With --email the address is also resolved through the CRM.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <email>",
	Short: "Resolve an email through the CRM",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookup,
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Read a password from stdin and print its bcrypt hash",
	Args:  cobra.NoArgs,
	RunE:  runHashPassword,
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <email>",
	Short: "Print the dashboard of a registered user as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runDashboard,
}

// setup loads configuration with secrets and a logger that stays quiet
// unless --verbose is set
func setup(ctx context.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := zap.NewNop()
	if verbose {
		log, err = logger.NewLogger(&cfg.Logging, &cfg.App)
		if err != nil {
			return nil, nil, err
		}
	}

	cfg, err = config.LoadWithSecrets(ctx, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	return cfg, log, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	failed := false

	db, err := database.NewDatabase(&cfg.Database, false)
	if err != nil {
		fmt.Fprintf(out, "database: FAIL (%v)\n", err)
		failed = true
	} else {
		defer func() { _ = database.Close(db) }()
		if err := database.HealthCheck(db); err != nil {
			fmt.Fprintf(out, "database: FAIL (%v)\n", err)
			failed = true
		} else {
			fmt.Fprintln(out, "database: OK")
		}
	}

	client := crm.NewClient(&cfg.CRM, log)
	if err := client.Ping(ctx); err != nil {
		fmt.Fprintf(out, "crm: FAIL (%v)\n", err)
		failed = true
	} else {
		fmt.Fprintln(out, "crm: OK")
	}

	if probeEmail != "" {
		user, err := client.LookupByEmail(ctx, probeEmail)
		if err != nil {
			fmt.Fprintf(out, "crm lookup %s: FAIL (%v)\n", probeEmail, err)
			failed = true
		} else {
			fmt.Fprintf(out, "crm lookup %s: OK (%s)\n", probeEmail, user.DisplayName())
		}
	}

	if failed {
		return errors.New("one or more checks failed")
	}
	return nil
}

func runLookup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}

	user, err := crm.NewClient(&cfg.CRM, log).LookupByEmail(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), user)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	cost := bcryptCost
	if cost == 0 {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cost = cfg.Auth.BcryptCost
	}

	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password, cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

// readPassword returns the first line of r without its line ending
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	fy, err := domain.ParseFiscalYearSelector(fiscalYear)
	if err != nil {
		return err
	}
	status, err := domain.ParseOrderStatusFilter(orderStatus)
	if err != nil {
		return err
	}

	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}

	db, err := database.NewDatabase(&cfg.Database, false)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = database.Close(db) }()

	user, err := repository.NewUserRepository(db).GetByEmail(ctx, args[0])
	if err != nil {
		return fmt.Errorf("user %s: %w", args[0], err)
	}

	warehouse, err := datawarehouse.NewClient(&cfg.Warehouse, &cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to reporting warehouse: %w", err)
	}
	defer warehouse.Close()

	reports, err := repository.NewReportRepository(warehouse, &cfg.Reports)
	if err != nil {
		return err
	}
	dashboards := service.NewDashboardService(reports, crm.NewClient(&cfg.CRM, log), &cfg.Reports, log)

	resp, err := dashboards.Build(ctx, service.DashboardRequest{
		UserName:    user.FullName,
		FiscalYear:  fy,
		OrderStatus: status,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
