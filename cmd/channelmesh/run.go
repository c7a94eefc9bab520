package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/channelmesh"
	"github.com/hupe1980/channelmesh/config"
	"github.com/hupe1980/channelmesh/core"
)

const consoleSource = "console"

type runFlags struct {
	configPath      string
	conversation    string
	sender          string
	showStatus      bool
	shutdownTimeout time.Duration
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Chat with the agent on stdin and stdout",
		Long: "run reads one message per line from stdin and prints the agent's replies. " +
			"At end of input, queued messages are answered and running branches and workers " +
			"report back before the command exits, bounded by --shutdown-timeout.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if flags.configPath != "" {
				var err error
				if cfg, err = config.Load(flags.configPath); err != nil {
					return err
				}
			}

			mesh, err := channelmesh.New(cfg, func(o *channelmesh.Options) {
				o.LogOutput = cmd.ErrOrStderr()
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runConsole(ctx, mesh, cmd.InOrStdin(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file (defaults run with the mock model)")
	cmd.Flags().StringVar(&flags.conversation, "conversation", "local", "conversation id of the console session")
	cmd.Flags().StringVar(&flags.sender, "sender", consoleSource, "sender id attached to every message")
	cmd.Flags().BoolVar(&flags.showStatus, "status", false, "print typing and thinking signals")
	cmd.Flags().DurationVar(&flags.shutdownTimeout, "shutdown-timeout", 30*time.Second, "how long to wait for in-flight turns at exit")

	return cmd
}

// runConsole pumps stdin lines into the mesh until end of input or ctx ends,
// then shuts the mesh down and waits for every reply to be printed.
func runConsole(ctx context.Context, mesh *channelmesh.Mesh, in io.Reader, out io.Writer, flags runFlags) error {
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for env := range mesh.Responses() {
			switch r := env.Response.(type) {
			case core.TextResponse:
				fmt.Fprintln(out, r.Text)
			case core.StatusResponse:
				if flags.showStatus {
					fmt.Fprintf(out, "[%s]\n", r.Status)
				}
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var dispatchErr error
read:
	for {
		select {
		case <-ctx.Done():
			break read
		case line, ok := <-lines:
			if !ok {
				break read
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			msg := core.NewTextMessage(consoleSource, flags.conversation, flags.sender, line)
			if err := mesh.Dispatch(ctx, msg); err != nil {
				dispatchErr = fmt.Errorf("dispatch failed: %w", err)
				break read
			}
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), flags.shutdownTimeout)
	defer cancel()

	err := mesh.Close(closeCtx)
	<-printed

	if dispatchErr != nil {
		return dispatchErr
	}
	return err
}
