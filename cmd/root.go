package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/shelfmatch/internal/config"
	"github.com/sells-group/shelfmatch/internal/store"
)

var (
	cfg *config.Config

	logLevelFlag    string
	storeDriverFlag string
)

var rootCmd = &cobra.Command{
	Use:   "shelfmatch",
	Short: "Unify retail product listings across shops",
	Long:  "Extracts brand, size and package from free-text listing titles, groups listings by hard constraints, then clusters each group semantically into unified products.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyFlagOverrides(c, cmd)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&storeDriverFlag, "store", "", "override store.driver (none, sqlite, postgres)")
}

// applyFlagOverrides copies explicitly set persistent flags over the loaded
// configuration. Unset flags leave file and environment values alone.
func applyFlagOverrides(c *config.Config, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.Log.Level = logLevelFlag
	}
	if flags.Changed("store") {
		c.Store.Driver = storeDriverFlag
	}
}

// openStore opens and migrates the configured result store. It returns a nil
// store when store.driver is none.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", c.Store.Driver)
	}
	if st != nil {
		zap.L().Debug("result store ready", zap.String("driver", c.Store.Driver))
	}
	return st, nil
}

func main() {
	// Interrupts cancel the running command; in-flight buckets stop at the
	// next context check.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
