// Package cli wires configuration, logging, metrics and the session into
// the netcraft command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"netcraft/internal/ui"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "0.1.0"

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, closeApp := newRootCmd()
	err := root.ExecuteContext(ctx)
	if cerr := closeApp(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// newRootCmd returns the command tree and a func releasing whatever the
// command that ran opened. Cobra skips post-run hooks on error, so the
// caller closes.
func newRootCmd() (*cobra.Command, func() error) {
	var (
		opts appOptions
		a    *app
	)

	root := &cobra.Command{
		Use:   "netcraft",
		Short: "Network diagnostics and packet crafting driven by a language model",
		Long: `netcraft turns plain-language requests into network probes.

Usage modes:
  netcraft              Start the interactive TUI
  netcraft craft "..."  Run one request through the agent and print the report
  netcraft tools ...    List, describe or run tools directly`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			opts.interactive = cmd == cmd.Root() && isTerminal()
			var err error
			a, err = newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			cmd.SetContext(withApp(cmd.Context(), a))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal() {
				return cmd.Help()
			}
			a := appFrom(cmd.Context())
			p := ui.NewProgram(cmd.Context(), a.session, a.cfg.Agent.MaxIterations)
			_, err := p.Run()
			return err
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default ./netcraft.yaml or <config dir>/netcraft/netcraft.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")

	root.AddCommand(craftCmd(), toolsCmd(), providersCmd(), historyCmd())
	return root, func() error {
		if a == nil {
			return nil
		}
		return a.Close()
	}
}

type appKey struct{}

func withApp(ctx context.Context, a *app) context.Context {
	return context.WithValue(ctx, appKey{}, a)
}

func appFrom(ctx context.Context) *app {
	a, _ := ctx.Value(appKey{}).(*app)
	return a
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// printMarkdown renders md for a terminal, or writes it as is when the
// output is piped.
func printMarkdown(w io.Writer, md string) {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		style := "dark"
		if !lipgloss.HasDarkBackground() {
			style = "light"
		}
		if out, err := glamour.Render(md, style); err == nil {
			fmt.Fprint(w, out)
			return
		}
	}
	fmt.Fprintln(w, md)
}
