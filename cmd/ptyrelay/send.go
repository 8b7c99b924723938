package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PiranhaCodes/ptyrelay/internal/fifo"
	"github.com/PiranhaCodes/ptyrelay/internal/pty"
)

type sendOptions struct {
	resize  string
	exit    bool
	encode  bool
	newline bool
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	so := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send <session-id> [data]",
		Short: "Write input or a control message into a running session's pipe",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data string
			if len(args) > 1 {
				data = args[1]
			}
			chunk, err := so.chunk(data)
			if err != nil {
				return err
			}

			registry := fifo.NewRegistry(opts.cfg.FIFO.Dir, opts.logger)
			w, err := registry.OpenWriter(args[0])
			if err != nil {
				return err
			}
			defer w.Close()

			if _, err := w.Write(chunk); err != nil {
				return fmt.Errorf("failed to write to session %s: %w", args[0], err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&so.resize, "resize", "", "send a resize control message, ROWSxCOLS")
	cmd.Flags().BoolVar(&so.exit, "exit", false, "send the exit control message")
	cmd.Flags().BoolVar(&so.encode, "base64", false, "base64-encode the data (for sessions decoding input)")
	cmd.Flags().BoolVarP(&so.newline, "newline", "n", false, "append a newline to the data")
	cmd.MarkFlagsMutuallyExclusive("resize", "exit")
	return cmd
}

func (so *sendOptions) chunk(data string) ([]byte, error) {
	switch {
	case so.exit:
		return append([]byte(nil), pty.ExitMarker...), nil
	case so.resize != "":
		rowsStr, colsStr, ok := strings.Cut(so.resize, "x")
		if !ok {
			return nil, fmt.Errorf("invalid --resize %q: expected ROWSxCOLS", so.resize)
		}
		rows, err := parseDimension("rows", rowsStr)
		if err != nil {
			return nil, err
		}
		cols, err := parseDimension("cols", colsStr)
		if err != nil {
			return nil, err
		}
		return pty.ResizeMessage(rows, cols), nil
	}

	if data == "" && !so.newline {
		return nil, errors.New("nothing to send: pass data, --resize or --exit")
	}
	if so.newline {
		data += "\n"
	}
	if so.encode {
		return []byte(base64.StdEncoding.EncodeToString([]byte(data))), nil
	}
	return []byte(data), nil
}
