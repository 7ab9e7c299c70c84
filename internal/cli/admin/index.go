package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docuhub/internal/config"
	"github.com/cloo-solutions/docuhub/internal/domain"
	"github.com/cloo-solutions/docuhub/internal/logging"
	"github.com/cloo-solutions/docuhub/internal/repository"
)

// ChunkReader is the read side of the vector index used by the index commands.
type ChunkReader interface {
	Count(ctx context.Context) (int64, error)
	ListByDocument(ctx context.Context, documentID string) ([]domain.IndexEntry, error)
}

func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the vector index",
		Long:  "Report on the chunks stored in the document_chunks index",
	}
	cmd.PersistentFlags().StringP("output", "", "text", "Output format (text or json)")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print the number of indexed chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChunkReader(cmd, func(r ChunkReader) error {
				output, _ := cmd.Flags().GetString("output")
				return runIndexStats(cmd.Context(), cmd.OutOrStdout(), r, output)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <document-id>",
		Short: "List a document's chunks in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChunkReader(cmd, func(r ChunkReader) error {
				output, _ := cmd.Flags().GetString("output")
				return runIndexShow(cmd.Context(), cmd.OutOrStdout(), r, args[0], output)
			})
		},
	})

	return cmd
}

func withChunkReader(cmd *cobra.Command, fn func(r ChunkReader) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.Debug)

	pool, err := getDBPool(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(repository.NewChunkRepository(pool))
}

func runIndexStats(ctx context.Context, out io.Writer, r ChunkReader, output string) error {
	n, err := r.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}
	if output == "json" {
		return json.NewEncoder(out).Encode(map[string]int64{"chunks": n})
	}
	fmt.Fprintf(out, "Chunks: %d\n", n)
	return nil
}

type chunkView struct {
	Index     int    `json:"chunk_index"`
	FileType  string `json:"file_type"`
	FileName  string `json:"file_name,omitempty"`
	ObjectKey string `json:"object_key,omitempty"`
	OwnerID   string `json:"owner_id,omitempty"`
	Content   string `json:"content"`
}

func runIndexShow(ctx context.Context, out io.Writer, r ChunkReader, documentID, output string) error {
	entries, err := r.ListByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("document %s has no indexed chunks", documentID)
	}

	if output == "json" {
		views := make([]chunkView, 0, len(entries))
		for _, e := range entries {
			views = append(views, chunkView{
				Index:     e.ChunkIndex,
				FileType:  string(e.Source.FileType),
				FileName:  e.Source.FileName,
				ObjectKey: e.Source.ObjectKey,
				OwnerID:   e.Source.OwnerID,
				Content:   e.Content,
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	first := entries[0].Source
	fmt.Fprintf(out, "Document: %s\n", documentID)
	fmt.Fprintf(out, "Type: %s\n", first.FileType)
	if first.FileName != "" {
		fmt.Fprintf(out, "File: %s\n", first.FileName)
	}
	if first.ObjectKey != "" {
		fmt.Fprintf(out, "Archived: %s\n", first.ObjectKey)
	}
	for _, e := range entries {
		fmt.Fprintf(out, "\n[%d] %s\n", e.ChunkIndex, e.Content)
	}
	return nil
}
