package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"netcraft/internal/ui"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List audited craft runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			if a.db == nil {
				return fmt.Errorf("history is unavailable: the audit database is disabled")
			}
			total, crafts, err := a.session.History(limit, offset)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(crafts) == 0 {
				fmt.Fprintln(out, "no crafts recorded")
				return nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%d crafts\n\n| id | when | provider | steps | prompt |\n|---|---|---|---|---|\n", total)
			for _, c := range crafts {
				steps := strconv.Itoa(c.Steps)
				if c.Exhausted {
					steps += " (exhausted)"
				}
				fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", c.ID,
					ui.RelativeTime(time.Unix(c.CreatedAtUnix, 0)), c.Provider, steps,
					strings.ReplaceAll(ui.TruncateRunes(ui.PromptPreview(c.Prompt), 60), "|", `\|`))
			}
			printMarkdown(out, b.String())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Crafts to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Crafts to skip")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a craft's report and the tool executions it made",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			if a.db == nil {
				return fmt.Errorf("history is unavailable: the audit database is disabled")
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid craft id %q", args[0])
			}
			c, err := a.session.CraftRecord(id)
			if err != nil {
				return err
			}
			execs, err := a.session.CraftExecutions(id)
			if err != nil {
				return err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "### craft %d (%s)\n\n> %s\n\n%s\n\n", c.ID, c.Provider, ui.PromptPreview(c.Prompt), c.Report)
			if len(execs) == 0 {
				b.WriteString("no tool executions\n")
				printMarkdown(cmd.OutOrStdout(), b.String())
				return nil
			}
			b.WriteString("| tool | params | result | ms |\n|---|---|---|---|\n")
			for _, e := range execs {
				result := "ok"
				if !e.Success {
					result = "failed: " + e.Error
				}
				fmt.Fprintf(&b, "| %s | `%s` | %s | %d |\n", e.Tool, e.Params, strings.ReplaceAll(result, "|", `\|`), e.DurationMS)
			}
			printMarkdown(cmd.OutOrStdout(), b.String())
			return nil
		},
	}
	cmd.AddCommand(showCmd)
	return cmd
}
