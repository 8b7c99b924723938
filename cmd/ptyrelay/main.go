package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PiranhaCodes/ptyrelay/internal/config"
	"github.com/PiranhaCodes/ptyrelay/internal/logging"
)

type rootOptions struct {
	logLevel string
	logDev   bool
	fifoDir  string

	cfg    *config.Config
	logger *zap.Logger
}

func (r *rootOptions) prepare(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = r.logLevel
	}
	if flags.Changed("log-dev") {
		cfg.Logging.Development = r.logDev
	}
	if flags.Changed("fifo-dir") {
		cfg.FIFO.Dir = r.fifoDir
	}

	dir, err := expandPath(cfg.FIFO.Dir)
	if err != nil {
		return err
	}
	cfg.FIFO.Dir = dir

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Development = cfg.Logging.Development
	if cfg.Logging.Output != "" {
		logCfg.OutputPaths = []string{cfg.Logging.Output}
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	r.cfg = cfg
	r.logger = logger
	return nil
}

// expandPath expands the tilde (~) character to the user's home directory.
func expandPath(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return homeDir, nil
	}
	if path[1] == '/' || path[1] == '\\' {
		return filepath.Join(homeDir, path[2:]), nil
	}
	return path, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "ptyrelay",
		Short:         "Run an interactive shell on a pseudo-terminal and relay it over a byte stream",
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug|info|warn|error); overrides PTYRELAY_LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVar(&opts.logDev, "log-dev", false, "human-readable console logs; overrides PTYRELAY_LOG_DEV")
	rootCmd.PersistentFlags().StringVar(&opts.fifoDir, "fifo-dir", "", "directory holding per-session input pipes; overrides PTYRELAY_FIFO_DIR")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		// Arguments are validated by now; later failures are not usage errors.
		cmd.SilenceUsage = true
		return opts.prepare(cmd)
	}

	rootCmd.AddCommand(newShellCmd(opts))
	rootCmd.AddCommand(newProxyCmd(opts))
	rootCmd.AddCommand(newReadCmd(opts))
	rootCmd.AddCommand(newSendCmd(opts))
	return rootCmd
}

func main() {
	// A vanished reader on stdout should end the session, not the process.
	signal.Ignore(syscall.SIGPIPE)

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ptyrelay:", err)
		os.Exit(1)
	}
}
