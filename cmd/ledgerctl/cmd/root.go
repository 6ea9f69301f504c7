package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/signal"
	"syscall"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/config"
	"github.com/STTM-NSU/paper-trader/internal/ledger"
	"github.com/STTM-NSU/paper-trader/internal/logger"
	"github.com/STTM-NSU/paper-trader/internal/store"
	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Inspect and maintain the paper trading ledger",
	Long: `ledgerctl talks to the ledger store directly.

The store is chosen with STORE_DRIVER (postgres or sqlite3). Postgres settings
come from POSTGRES_* variables, the sqlite file from SQLITE_PATH. A .env file in
the working directory is loaded first.`,
	SilenceUsage: true,
}

var (
	cfgPath  string
	logLevel string
)

func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./configs/paper-trader.yaml", "bot config, used for symbols and the initial balance")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
}

func loadConfig() (config.TradingBotConfig, error) {
	cfg, err := config.LoadTradingBotConfig(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.TradingBotConfig{}
		err = cfg.ValidateAndSetup()
	}
	return cfg, err
}

// withLedger opens the store, runs fn and prints its result as JSON.
func withLedger(cmd *cobra.Command, fn func(ctx context.Context, cfg config.TradingBotConfig, l *ledger.Ledger) (any, error)) error {
	_ = godotenv.Load()

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	zapLogger, loggerSync, err := logger.NewZapLogger(level)
	if err != nil {
		return err
	}
	defer loggerSync()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("%w: can't load config", err)
	}

	ctx := cmd.Context()
	s, err := store.OpenFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("%w: can't open store", err)
	}
	defer s.Close()

	out, err := fn(ctx, cfg, ledger.New(s, cfg.SymbolConfigs, zapLogger))
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	body, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: can't encode output", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return err
}

// timeFlag parses an optional RFC 3339 flag value.
func timeFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	raw, err := cmd.Flags().GetString(name)
	if err != nil || raw == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid --%s", err, name)
	}
	return &t, nil
}
