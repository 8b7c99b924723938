package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PiranhaCodes/ptyrelay/internal/api"
	"github.com/PiranhaCodes/ptyrelay/internal/fifo"
	"github.com/PiranhaCodes/ptyrelay/internal/pty"
)

const sessionUse = "[session-id] [rows] [cols]"

// sessionArgs holds the positional arguments shared by shell and proxy.
type sessionArgs struct {
	id   string
	rows int
	cols int
}

func parseSessionArgs(args []string) (sessionArgs, error) {
	sa := sessionArgs{rows: pty.DefaultRows, cols: pty.DefaultCols}
	if len(args) > 0 {
		sa.id = args[0]
	}
	if len(args) > 1 {
		n, err := parseDimension("rows", args[1])
		if err != nil {
			return sa, err
		}
		sa.rows = n
	}
	if len(args) > 2 {
		n, err := parseDimension("cols", args[2])
		if err != nil {
			return sa, err
		}
		sa.cols = n
	}
	return sa, nil
}

func parseDimension(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 || n > 65535 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", name, value)
	}
	return n, nil
}

func validateSessionArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.MaximumNArgs(3)(cmd, args); err != nil {
		return err
	}
	_, err := parseSessionArgs(args)
	return err
}

func newShellCmd(opts *rootOptions) *cobra.Command {
	var rawInput bool
	cmd := &cobra.Command{
		Use:   "shell " + sessionUse,
		Short: "Read input from the session's named pipe and write JSON envelopes to stdout",
		Args:  validateSessionArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sa, _ := parseSessionArgs(args)
			return runShell(cmd.Context(), opts, sa, rawInput, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&rawInput, "raw-input", false, "write pipe input to the shell verbatim instead of base64-decoding it")
	return cmd
}

func newProxyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "proxy " + sessionUse,
		Short: "Relay raw bytes between stdin/stdout and the shell",
		Args:  validateSessionArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sa, _ := parseSessionArgs(args)
			return runProxy(cmd.Context(), opts, sa)
		},
	}
}

func runShell(ctx context.Context, opts *rootOptions, sa sessionArgs, rawInput bool, out io.Writer) error {
	sa = withSessionID(sa, opts.logger)
	stream := api.NewStream(sa.id, out, opts.logger)

	registry := fifo.NewRegistry(opts.cfg.FIFO.Dir, opts.logger)
	// the engine closes the pipe on every path it sees; this catches the rest
	defer registry.CloseAll()

	pipe, err := registry.Create(sa.id)
	if err != nil {
		if serr := stream.Send(api.Error(sa.id, err.Error())); serr != nil {
			opts.logger.Debug("Failed to send error message", zap.String("session_id", sa.id), zap.Error(serr))
		}
		return err
	}

	var decoder pty.ChunkDecoder
	if !rawInput {
		decoder = api.DecodeChunk
	}

	return runSession(ctx, opts, sa, pty.Options{
		Input:     pipe.File(),
		Output:    stream,
		Decoder:   decoder,
		Notify:    stream.Notify,
		Resources: []io.Closer{pipe},
	})
}

func runProxy(ctx context.Context, opts *rootOptions, sa sessionArgs) error {
	sa = withSessionID(sa, opts.logger)
	return runSession(ctx, opts, sa, pty.Options{
		Input:  os.Stdin,
		Output: os.Stdout,
	})
}

// runSession fills in the session-independent options and runs the engine
// until the session ends or a termination signal arrives.
func runSession(ctx context.Context, opts *rootOptions, sa sessionArgs, po pty.Options) error {
	cfg := opts.cfg
	log := opts.logger.Named("pty")
	defer log.Sync()

	po.SessionID = sa.id
	po.Rows = sa.rows
	po.Cols = sa.cols

	shellPath, err := pty.ResolveShell(cfg.Shell.Path)
	if err != nil {
		return releaseOnError(log, po, err)
	}
	if shellPath != cfg.Shell.Path {
		log.Warn("Configured shell unavailable, using fallback",
			zap.String("configured", cfg.Shell.Path),
			zap.String("shell", shellPath))
	}

	po.Shell = pty.ShellSpec{
		Path: shellPath,
		Args: append([]string{}, cfg.Shell.Args...),
		Env: map[string]string{
			"TERM":  cfg.Shell.Term,
			"SHELL": shellPath,
		},
	}
	po.ChunkSize = cfg.Relay.ChunkSize
	po.PollInterval = cfg.Relay.PollInterval
	po.StartupGrace = cfg.Relay.StartupGrace
	po.TerminateGrace = cfg.Relay.TerminateGrace
	po.Logger = log

	engine, err := pty.New(po)
	if err != nil {
		return releaseOnError(log, po, err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	return engine.Run(ctx)
}

// releaseOnError reports a session that never reached the engine and frees
// the resources handed to it.
func releaseOnError(log *zap.Logger, po pty.Options, err error) error {
	if po.Notify != nil {
		po.Notify(pty.Event{Type: pty.EventFailed, SessionID: po.SessionID, ExitCode: -1, Err: err})
	}
	for _, r := range po.Resources {
		if cerr := r.Close(); cerr != nil {
			log.Debug("Failed to release session resource", zap.String("session_id", po.SessionID), zap.Error(cerr))
		}
	}
	return err
}

func withSessionID(sa sessionArgs, log *zap.Logger) sessionArgs {
	if sa.id == "" {
		sa.id = uuid.NewString()
		log.Info("Generated session id", zap.String("session_id", sa.id))
	}
	return sa
}
