package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fmuoria/CV-Analyzer/internal/ingestion"
	"github.com/fmuoria/CV-Analyzer/internal/models"
	"github.com/fmuoria/CV-Analyzer/internal/scoring"
)

func newRankCommand(opts *rootOptions) *cobra.Command {
	var (
		filePaths []string
		batchID   string
		ascending bool
	)

	cmd := &cobra.Command{
		Use:   "rank [response.json]",
		Short: "Rank candidates from a saved scoring response",
		Long: `Normalise a scoring response (an array, an {"items": ...} object or a
single object) into ranked candidates. Files given with --file are matched
to response entries by position. --batch matches them against a CV batch
stored under the uploads directory instead. Reads stdin when no path is
given.`,
		Example: `  cv-analyzer rank scores.json --file ada.pdf --file bob.pdf
  cv-analyzer rank scores.json --batch 6f1c1f64-8d7e-4a4b-9a57-1f1de0c5a0a1
  curl -s $API/api/cv/score ... | cv-analyzer rank --asc`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			raw, err := readSource(cmd, path)
			if err != nil {
				return err
			}

			files := fileRefs(filePaths)
			if batchID != "" {
				batch, err := ingestion.NewFileHandler(opts.cfg.UploadsDir).LoadBatch(batchID)
				if err != nil {
					return err
				}
				files = batch.Files
			}

			cands := scoring.Sorted(scoring.Rank(raw, files), !ascending)
			order := "desc"
			if ascending {
				order = "asc"
			}
			return writeJSON(cmd.OutOrStdout(), models.CandidatesResponse{
				Candidates: cands,
				Order:      order,
				Count:      len(cands),
			})
		},
	}

	cmd.Flags().StringArrayVar(&filePaths, "file", nil, "CV file for the next response position (repeatable)")
	cmd.Flags().StringVar(&batchID, "batch", "", "Stored CV batch id to match response positions against")
	cmd.Flags().BoolVar(&ascending, "asc", false, "Sort lowest score first")
	cmd.MarkFlagsMutuallyExclusive("file", "batch")
	return cmd
}

// fileRefs describes local files in the given order. Missing files keep
// their name so positions still line up.
func fileRefs(paths []string) []*models.FileRef {
	refs := make([]*models.FileRef, 0, len(paths))
	for _, p := range paths {
		ref := &models.FileRef{Name: filepath.Base(p), Path: p}
		if info, err := os.Stat(p); err == nil {
			ref.Size = info.Size()
			ref.ContentType = ingestion.DetectContentType(p, nil)
		}
		refs = append(refs, ref)
	}
	return refs
}

func readRequirements(cmd *cobra.Command, path string) ([]models.Requirement, error) {
	if path == "" {
		return []models.Requirement{}, nil
	}
	data, err := readSource(cmd, path)
	if err != nil {
		return nil, err
	}
	var reqs []models.Requirement
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("invalid requirements in %s: %w", path, err)
	}
	return reqs, nil
}
