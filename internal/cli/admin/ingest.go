package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docuhub/internal/config"
	"github.com/cloo-solutions/docuhub/internal/domain"
	"github.com/cloo-solutions/docuhub/internal/logging"
	"github.com/cloo-solutions/docuhub/internal/service"
)

// Ingester indexes a document without answering a question.
type Ingester interface {
	Ingest(ctx context.Context, in service.IngestInput) (*domain.IndexReceipt, error)
}

func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Extract and index documents",
		Long:  "Extract text from each file and append its chunks to the vector index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logging.Setup(cfg.Debug)

			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			owner, _ := cmd.Flags().GetString("owner")
			output, _ := cmd.Flags().GetString("output")
			return runIngest(ctx, cmd, a.pipeline, args, owner, output)
		},
	}

	cmd.Flags().String("owner", "", "Owner subject recorded on the indexed chunks")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")

	return cmd
}

type ingestResult struct {
	File       string `json:"file"`
	DocumentID string `json:"document_id,omitempty"`
	Indexed    int    `json:"indexed"`
	Skipped    int    `json:"skipped"`
	Error      string `json:"error,omitempty"`
}

// runIngest keeps going after a failed file and reports every result.
func runIngest(ctx context.Context, cmd *cobra.Command, ingester Ingester, files []string, owner, output string) error {
	results := make([]ingestResult, 0, len(files))
	failed := 0

	for _, file := range files {
		res := ingestResult{File: file}
		receipt, err := ingester.Ingest(ctx, service.IngestInput{
			Path:      file,
			Extension: filepath.Ext(file),
			OwnerID:   owner,
			FileName:  filepath.Base(file),
		})
		if err != nil {
			res.Error = err.Error()
			failed++
		} else {
			res.DocumentID = receipt.DocumentID
			res.Indexed = receipt.Indexed
			res.Skipped = receipt.Skipped
		}
		results = append(results, res)
	}

	out := cmd.OutOrStdout()
	if output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(out, "%s: failed: %s\n", r.File, r.Error)
				continue
			}
			fmt.Fprintf(out, "%s: document %s, %d chunks indexed, %d skipped\n", r.File, r.DocumentID, r.Indexed, r.Skipped)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}
