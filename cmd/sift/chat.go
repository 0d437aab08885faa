package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/sift/internal/pipeline"
	"github.com/efebarandurmaz/sift/internal/tui"
)

func newChatCmd(configPath *string) *cobra.Command {
	var (
		src        sourceFlags
		transcript string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively about one document or chat history",
		Long: `Opens an interactive session over one corpus. Every question is answered
with retrieval: the corpus is fetched, split and indexed anew for each question.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := src.request()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			e, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer e.close()

			comps, err := pipeline.Build(e.cfg, e.logger)
			if err != nil {
				return err
			}
			orch, err := comps.ChatOrchestrator()
			if err != nil {
				return err
			}

			session, err := tui.RunChat(ctx, orch, tui.NewSession(src.label(), req))
			if err != nil {
				return err
			}

			fmt.Println(tui.RenderSummary(session, nil))
			if transcript != "" {
				if err := tui.SaveTranscript(session, transcript); err != nil {
					return err
				}
				fmt.Printf("Transcript saved to %s\n", transcript)
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&transcript, "transcript", "", "Write the session as JSON to this path on exit")
	return cmd
}
