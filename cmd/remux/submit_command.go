package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"remux/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var formats string
	var formatsFile string
	var encrypted bool
	var gpu bool

	cmd := &cobra.Command{
		Use:   "submit <source_cid>",
		Short: "Queue a transcode job for a source CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := strings.TrimSpace(formats)
			if payload == "" && strings.TrimSpace(formatsFile) != "" {
				raw, err := os.ReadFile(formatsFile)
				if err != nil {
					return fmt.Errorf("read formats file: %w", err)
				}
				payload = string(raw)
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(ipc.SubmitRequest{
					SourceCID:   args[0],
					FormatsJSON: payload,
					Encrypted:   encrypted,
					GPU:         gpu,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued task %s\n", resp.TaskID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&formats, "formats", "", "media_formats JSON array")
	cmd.Flags().StringVar(&formatsFile, "formats-file", "", "Path to a media_formats JSON file")
	cmd.Flags().BoolVar(&encrypted, "encrypted", false, "Fetch the source through the encrypted portal")
	cmd.Flags().BoolVar(&gpu, "gpu", false, "Prefer GPU encoding for formats without an override")
	return cmd
}
