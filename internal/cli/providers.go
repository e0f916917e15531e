package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show configured reasoning providers and whether they are usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			var b strings.Builder
			b.WriteString("| id | name | model | status |\n|---|---|---|---|\n")
			for _, p := range a.session.Providers(cmd.Context()) {
				status := "unavailable"
				switch {
				case p.Available && p.Local:
					status = "reachable"
				case p.Available:
					status = "ready"
				}
				fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", p.ID, p.Name, p.Model, status)
			}
			printMarkdown(cmd.OutOrStdout(), b.String())
			return nil
		},
	}
}
