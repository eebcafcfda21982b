package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sakif/js2py-docs/internal/config"
	"github.com/sakif/js2py-docs/internal/content"
	"github.com/sakif/js2py-docs/internal/execution"
	"github.com/sakif/js2py-docs/internal/executor"
	"github.com/sakif/js2py-docs/internal/executor/jsengine"
	"github.com/sakif/js2py-docs/internal/loader"
	"github.com/sakif/js2py-docs/internal/model"
	"github.com/sakif/js2py-docs/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Run the playgrounds of a page",
	Long: `Run one playground (--block N) or all of them (the default) and print
the captured output of each language.

Examples:
  snippet run content/docs/basics/lists.mdx
  snippet run content/docs/basics/lists.mdx --block 2 --lang js`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntP("block", "b", -1, "Playground index (default: all)")
	runCmd.Flags().StringP("lang", "l", "both", "Language: python, js or both")
	runCmd.Flags().Duration("timeout", 30*time.Second, "Per-run timeout")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}

	blockFlag, _ := cmd.Flags().GetInt("block")
	langFlag, _ := cmd.Flags().GetString("lang")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	langs, err := parseLangs(langFlag)
	if err != nil {
		return err
	}
	blocks, err := selectBlocks(content.Playgrounds(doc.Body), blockFlag)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cmd)

	factory, err := server.NewPythonFactory(cfg.Python, cfg.S3, logger)
	if err != nil {
		return err
	}
	python := loader.New("python", factory, logger, loader.WithLoadTimeout(cfg.Python.LoadTimeout))
	defer python.Shutdown(func(in executor.Interpreter) error {
		return in.Close(context.Background())
	})

	js, err := jsengine.New(logger)
	if err != nil {
		return err
	}
	registry, err := execution.NewRegistry(len(blocks)+1, python, js, timeout, logger)
	if err != nil {
		return err
	}
	defer registry.Purge()

	failed := runBlocks(cmd.Context(), cmd.OutOrStdout(), registry, blocks, langs)
	if failed > 0 {
		return fmt.Errorf("%d run(s) failed", failed)
	}
	return nil
}

func parseLangs(s string) ([]model.Language, error) {
	if strings.EqualFold(strings.TrimSpace(s), "both") {
		return []model.Language{model.Python, model.JavaScript}, nil
	}
	lang, err := model.ParseLanguage(s)
	if err != nil {
		return nil, err
	}
	return []model.Language{lang}, nil
}

func selectBlocks(blocks []*content.PlaygroundBlock, index int) ([]*content.PlaygroundBlock, error) {
	if index < 0 {
		if len(blocks) == 0 {
			return nil, fmt.Errorf("the page has no playgrounds")
		}
		return blocks, nil
	}
	if index >= len(blocks) {
		return nil, fmt.Errorf("block %d out of range: the page has %d playground(s)", index, len(blocks))
	}
	return blocks[index : index+1], nil
}

// runBlocks mounts each block as an instance and runs the requested
// languages on it. It returns the number of failed runs.
func runBlocks(ctx context.Context, w io.Writer, registry *execution.Registry, blocks []*content.PlaygroundBlock, langs []model.Language) int {
	bold := color.New(color.Bold).SprintFunc()
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	failed := 0
	for _, b := range blocks {
		fmt.Fprintf(w, "%s %s\n", bold(fmt.Sprintf("[%d]", b.Index)), bold(b.Title))

		c := registry.Mount(b.Snippets)
		for _, lang := range langs {
			status, err := c.Run(ctx, lang)
			if err != nil {
				fmt.Fprintf(w, "  %s %s\n", bad(lang), err)
				failed++
				continue
			}
			if status == execution.RunSkipped {
				fmt.Fprintf(w, "  %s %s\n", faint(lang), faint("(no source)"))
				continue
			}

			res := c.Snapshot().Result
			if res.OK {
				fmt.Fprintf(w, "  %s %s\n", ok(lang), faint(res.Duration.Round(time.Millisecond)))
				printIndented(w, res.Output)
			} else {
				fmt.Fprintf(w, "  %s %s\n", bad(lang), faint(res.Duration.Round(time.Millisecond)))
				printIndented(w, bad(res.Error))
				failed++
			}
		}
		registry.Unmount(c.ID())
	}
	return failed
}

func printIndented(w io.Writer, text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
}
