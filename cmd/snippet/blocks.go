package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sakif/js2py-docs/internal/content"
)

var blocksCmd = &cobra.Command{
	Use:   "blocks FILE",
	Short: "List the playgrounds of a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadDocument(args[0])
		if err != nil {
			return err
		}
		printBlocks(cmd.OutOrStdout(), doc.Title, content.Playgrounds(doc.Body))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(blocksCmd)
}

func printBlocks(w io.Writer, title string, blocks []*content.PlaygroundBlock) {
	bold := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(w, "%s: %d playground(s)\n", bold(title), len(blocks))
	for _, b := range blocks {
		var langs, flags []string
		if strings.TrimSpace(b.Snippets.Python) != "" {
			langs = append(langs, "python")
		}
		if strings.TrimSpace(b.Snippets.JavaScript) != "" {
			langs = append(langs, "javascript")
		}
		if b.Compare {
			flags = append(flags, "compare")
		}
		if b.ReadOnly {
			flags = append(flags, "read-only")
		}
		if !b.ShowOutput {
			flags = append(flags, "no-output")
		}

		line := fmt.Sprintf("  [%d] %s  %s", b.Index, b.Title, strings.Join(langs, ", "))
		if len(flags) > 0 {
			line += "  " + faint("("+strings.Join(flags, ", ")+")")
		}
		fmt.Fprintln(w, line)
	}
}
