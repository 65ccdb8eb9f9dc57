package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/toolshub/internal/pdf"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return printTools(cmd.OutOrStdout(), pdf.Operations(), asJSON)
	},
}

func init() {
	listCmd.Flags().Bool("json", false, "output the catalog as JSON")

	rootCmd.AddCommand(listCmd)
}

func printTools(w io.Writer, ops []pdf.Operation, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ops)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tTITLE\tFILES\tPARAMS\tRESULT")
	for _, op := range ops {
		files := "1"
		if op.MultiFile {
			files = fmt.Sprintf("%d+", op.MinFiles)
		}
		params := "-"
		if len(op.RequiredParams) > 0 {
			params = strings.Join(op.RequiredParams, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", op.Type, op.Title, files, params, op.Result)
	}
	return tw.Flush()
}
