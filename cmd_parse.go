package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fmuoria/CV-Analyzer/internal/models"
	"github.com/fmuoria/CV-Analyzer/internal/requirements"
)

func newParseCommand() *cobra.Command {
	var segments bool

	cmd := &cobra.Command{
		Use:   "parse [text]",
		Short: "Parse free-text requirements into weighted skills",
		Long: `Parse "label score" requirement text into weighted skills.

Segments are separated by commas; a trailing 1-2 digit score (clamped to
1-5, default 5) sets the weight. Text is read from the argument or, when
omitted, from stdin.`,
		Example: `  cv-analyzer parse "python 5, sql 3, docker"
  echo "go 4, kubernetes 2" | cv-analyzer parse --segments`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readTextArg(cmd, args)
			if err != nil {
				return err
			}

			if segments {
				return writeJSON(cmd.OutOrStdout(), requirements.NewParser().Segments(text))
			}

			reqs := requirements.Parse(text)
			sum := requirements.Sum(reqs)
			return writeJSON(cmd.OutOrStdout(), models.RequirementsResponse{
				Requirements: reqs,
				WeightSum:    requirements.Round2(sum),
				OverBudget:   requirements.OverBudget(reqs),
			})
		},
	}

	cmd.Flags().BoolVar(&segments, "segments", false, "Print the raw label/score segments instead of weights")
	return cmd
}

// readTextArg returns the single argument, or stdin when there is none
func readTextArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// readSource reads a file path, or stdin for "" and "-"
func readSource(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
