package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"netcraft/internal/agent"
	"netcraft/internal/llm"
	"netcraft/internal/tools"

	"github.com/spf13/cobra"
)

func craftCmd() *cobra.Command {
	var (
		maxIterations int
		providerID    string
		passive       bool
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "craft <request>",
		Short: "Run a request through the agent and print its report",
		Long: `Run a plain-language request such as "scan ports 22 and 80 on 10.0.0.5"
through the reasoning loop. Each step is printed to stderr as it completes.

With --passive the agent only builds the packet description and never
sends anything.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			prompt := strings.Join(args, " ")
			if passive {
				prompt = agent.PassivePrompt(prompt)
				if !cmd.Flags().Changed("max-iterations") {
					maxIterations = agent.PassiveIterations
				}
			}

			progress := cmd.ErrOrStderr()
			report, err := a.session.Craft(cmd.Context(), prompt, maxIterations, providerID,
				agent.OnStep(func(s agent.Step) { printStep(progress, s) }))
			if err != nil && len(report.Steps) == 0 {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(craftResult{
					Provider:   report.Provider,
					Report:     report.Text,
					Exhausted:  report.Exhausted,
					Executions: report.Executions(),
				}); encErr != nil {
					return encErr
				}
				return err
			}
			printMarkdown(out, report.Text)
			return err
		},
	}
	cmd.Flags().IntVarP(&maxIterations, "max-iterations", "n", 0, "Reasoning budget (default from config)")
	cmd.Flags().StringVarP(&providerID, "provider", "p", "", "Provider id or auto")
	cmd.Flags().BoolVar(&passive, "passive", false, "Only craft the packet description, do not send")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report and executions as JSON")
	return cmd
}

type craftResult struct {
	Provider   string            `json:"provider"`
	Report     string            `json:"report"`
	Exhausted  bool              `json:"exhausted"`
	Executions []tools.Execution `json:"executions"`
}

func printStep(w io.Writer, s agent.Step) {
	switch {
	case s.Execution != nil:
		mark := "ok"
		if !s.Execution.Outcome.Success {
			mark = "failed: " + s.Execution.Outcome.Error
		}
		fmt.Fprintf(w, "[%d] %s (%s)\n", s.Index+1, tools.Summarize(*s.Execution), mark)
	case s.Err != nil:
		fmt.Fprintf(w, "[%d] error: %v\n", s.Index+1, s.Err)
	default:
		if _, ok := s.Decision.(llm.FinalReport); ok {
			fmt.Fprintf(w, "[%d] report\n", s.Index+1)
		}
	}
}
