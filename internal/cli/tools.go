package cli

import (
	"encoding/json"
	"fmt"

	"netcraft/internal/tools"
	"netcraft/internal/ui"

	"github.com/spf13/cobra"
)

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List, describe and run network tools directly",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			printMarkdown(cmd.OutOrStdout(), ui.ToolCatalog(a.session.ListTools()))
			return nil
		},
	}

	describeCmd := &cobra.Command{
		Use:   "describe <tool>",
		Short: "Show a tool's parameters and defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			spec, err := a.session.DescribeTool(args[0])
			if err != nil {
				return err
			}
			printMarkdown(cmd.OutOrStdout(), ui.ToolDescription(spec))
			return nil
		},
	}

	var (
		asJSON bool
		asks   []string
	)
	runCmd := &cobra.Command{
		Use:   "run <tool> [key=value ...]",
		Short: "Run a tool with explicit parameters",
		Example: `  netcraft tools run ping_host target=10.0.0.1 count=2
  netcraft tools run quick_port_scan target=10.0.0.5 ports=22,80 --ask "what is exposed?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			spec, err := a.session.DescribeTool(args[0])
			if err != nil {
				return err
			}
			params, err := tools.ParseAssignments(spec, args[1:])
			if err != nil {
				return err
			}
			ex, err := a.session.ExecuteTool(cmd.Context(), spec.Name, params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(ex); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, tools.Summarize(ex))
				printMarkdown(out, ui.FormatPayload(ex))
			}

			for _, q := range asks {
				answer, err := a.session.AskAssistant(cmd.Context(), q)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\n> %s\n", q)
				printMarkdown(out, answer)
			}
			if !ex.Outcome.Success {
				return fmt.Errorf("%s failed: %s", spec.Name, ex.Outcome.Error)
			}
			return nil
		},
	}
	runCmd.Flags().BoolVar(&asJSON, "json", false, "Print the execution record as JSON")
	runCmd.Flags().StringArrayVar(&asks, "ask", nil, "Follow-up question about the result (repeatable)")

	cmd.AddCommand(listCmd, describeCmd, runCmd)
	return cmd
}
