// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/evidence-engine/internal/export"
	"github.com/pdiddy/evidence-engine/internal/pipeline"
)

var evidenceCmd = &cobra.Command{
	Use:   "evidence [query]",
	Short: "Gather and rank evidence for a clinical query",
	Long: `Evidence queries every enabled source in parallel, ranks the candidates of
each source (semantic filter, cross-encoder reranker, tag filter), fuses the
per-source lists and grades the package for sufficiency. When the evidence is
insufficient and the fallback is enabled, a web search supplements it.

Use --save to write the result to a query file and --load to render a saved
result again without querying the sources.`,
	RunE: runEvidence,
}

func runEvidence(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	if load, _ := cmd.Flags().GetString("load"); load != "" {
		qf, err := export.ReadQueryFile(load)
		if err != nil {
			return err
		}
		return render(qf.Result(), format, out)
	}

	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("query required: provide the clinical question as arguments, or --load a saved query file")
	}

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if srcs, _ := cmd.Flags().GetStringSlice("sources"); len(srcs) > 0 {
		cfg.Sources.Enabled = srcs
	}
	if cmd.Flags().Changed("fallback") {
		cfg.Fallback.Enabled, _ = cmd.Flags().GetBool("fallback")
	}

	p, err := pipeline.FromConfig(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := p.GatherAndRankEvidence(ctx, query)
	if err != nil {
		return err
	}

	if save, _ := cmd.Flags().GetString("save"); save != "" {
		if err := export.WriteQueryFile(save, res, cfg); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Saved to", save)
	}
	return render(res, format, out)
}

func outputFormat(cmd *cobra.Command) (string, error) {
	jsonOut, _ := cmd.Flags().GetBool("json")
	csl, _ := cmd.Flags().GetBool("csl")
	switch {
	case jsonOut && csl:
		return "", fmt.Errorf("--json and --csl are mutually exclusive")
	case jsonOut:
		return "json", nil
	case csl:
		return "csl", nil
	default:
		return "table", nil
	}
}

func render(res pipeline.Result, format string, w io.Writer) error {
	switch format {
	case "json":
		return export.FormatJSON(res, w)
	case "csl":
		return export.FormatCSL(res.Package, w)
	default:
		export.FormatTable(res, w)
		return nil
	}
}

func init() {
	evidenceCmd.Flags().Bool("json", false, "output the full result as JSON")
	evidenceCmd.Flags().Bool("csl", false, "output the ranked evidence as CSL-YAML")
	evidenceCmd.Flags().String("save", "", "save the result to a query file")
	evidenceCmd.Flags().String("load", "", "render a saved query file instead of querying")
	evidenceCmd.Flags().StringSlice("sources", nil, "sources to query (comma-separated; default all)")
	evidenceCmd.Flags().Bool("fallback", false, "run the web-search fallback when evidence is insufficient")

	rootCmd.AddCommand(evidenceCmd)
}
