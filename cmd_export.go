package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fmuoria/CV-Analyzer/internal/export"
	"github.com/fmuoria/CV-Analyzer/internal/requirements"
	"github.com/fmuoria/CV-Analyzer/internal/scoring"
)

func newExportCommand() *cobra.Command {
	var (
		output     string
		reqsPath   string
		reqsText   string
		scoresPath string
		filePaths  []string
		jdID       string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an Excel report from saved requirements and scores",
		Example: `  cv-analyzer export --requirements reqs.json --scores scores.json -o report.xlsx
  cv-analyzer export --requirements-text "python 5, sql 3" --scores scores.json --file ada.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reqsPath != "" && reqsText != "" {
				return fmt.Errorf("use either --requirements or --requirements-text")
			}
			reqs, err := readRequirements(cmd, reqsPath)
			if err != nil {
				return err
			}
			if reqsText != "" {
				reqs = requirements.Parse(reqsText)
			}

			raw, err := readSource(cmd, scoresPath)
			if err != nil {
				return err
			}
			cands := scoring.Rank(raw, fileRefs(filePaths))

			written, err := export.ExportToExcel(reqs, cands, jdID, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d candidate(s) to %s\n", len(cands), written)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "cv-analysis.xlsx", "Output path (.xlsx is added when missing)")
	cmd.Flags().StringVar(&reqsPath, "requirements", "", "JSON file with [{skill, weight}]")
	cmd.Flags().StringVar(&reqsText, "requirements-text", "", "Free-text requirements to parse")
	cmd.Flags().StringVar(&scoresPath, "scores", "-", "Scoring response JSON (- for stdin)")
	cmd.Flags().StringArrayVar(&filePaths, "file", nil, "CV file for the next response position (repeatable)")
	cmd.Flags().StringVar(&jdID, "jd-id", "", "Job description id for the summary sheet")
	return cmd
}
