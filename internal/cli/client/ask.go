package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "ask <file> <question>",
		Short: "Ask a question about a document",
		Long: `Uploads an image, audio recording or PDF and prints an answer written
for the role bound to your API token.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			client, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var onProgress ProgressFunc
			if !quiet && !outputJSON {
				onProgress = uploadProgress(cmd.ErrOrStderr())
			}

			question := strings.Join(args[1:], " ")
			answer, err := client.Ask(cmd.Context(), args[0], question, onProgress)
			if err != nil {
				return err
			}
			return writeAnswer(cmd.OutOrStdout(), answer, outputJSON)
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not report upload progress")

	return cmd
}

func writeAnswer(out io.Writer, answer string, outputJSON bool) error {
	if outputJSON {
		data, err := json.MarshalIndent(map[string]string{"generated_answer": answer}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprintln(out, answer)
	return nil
}

func uploadProgress(w io.Writer) ProgressFunc {
	if w == nil {
		w = os.Stderr
	}
	last := -1
	return func(current, total int64) {
		if total <= 0 {
			return
		}
		pct := int(current * 100 / total)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(w, "\rUploading... %3d%%", pct)
		if current >= total {
			fmt.Fprintln(w, "\r\033[KWaiting for answer...")
		}
	}
}
