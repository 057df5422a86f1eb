package commands

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grez-lucas/iframe-bridge/internal/config"
	"github.com/grez-lucas/iframe-bridge/internal/logger"
)

var (
	cfg *config.Cfg
	log *zap.Logger

	timeout  time.Duration
	logLevel string
	headful  bool
)

func Execute() error {
	root := &cobra.Command{
		Use:           "iframe-bridge",
		Short:         "Drive form fields inside dynamically loaded iframes",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Bridge.Timeout = timeout
			}
			if logLevel != "" {
				cfg.Logger.Level = logLevel
			}
			if headful {
				cfg.Browser.Headless = false
			}
			log, err = logger.New(cfg.Logger.Env, cfg.Logger.Level)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}

	root.PersistentFlags().DurationVar(&timeout, "timeout", 0, "per-operation wait deadline, 0 waits until interrupted (default BRIDGE_TIMEOUT)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&headful, "headful", false, "show the browser window")

	root.AddCommand(runCmd(), discoverCmd(), captureCmd(), sanitizeCmd())
	return root.Execute()
}
