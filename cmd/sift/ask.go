package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/sift/internal/pipeline"
)

func newAskCmd(configPath *string) *cobra.Command {
	var (
		src      sourceFlags
		question string
		strategy string
		jsonOut  bool
		report   bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question about a document or chat history",
		Example: `  sift ask -f handbook.pdf "What is the on-call rotation?"
  sift ask --chat-id 42 --from 2024-05-01 --strategy rag -q "Who owns the release?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if question == "" {
				question = strings.Join(args, " ")
			}
			if strings.TrimSpace(question) == "" {
				return fmt.Errorf("a question is required (argument or -q)")
			}
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

			if strategy == "" {
				strategy = e.cfg.Answer.Strategy
			}
			s, err := pipeline.ParseStrategy(strategy)
			if err != nil {
				return err
			}

			comps, err := pipeline.Build(e.cfg, e.logger)
			if err != nil {
				return err
			}

			reply, err := comps.Orchestrator.Ask(ctx, pipeline.Request{
				Question: question,
				Strategy: s,
				Source:   req,
			})
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(reply)
			}
			fmt.Println(reply.Text())
			if report {
				fmt.Fprintln(os.Stderr)
				reply.Run.PrintSummary(os.Stderr)
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVarP(&question, "question", "q", "", "Question to answer")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "Answering strategy: map-reduce or rag (default from config)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the reply and run metrics as JSON")
	cmd.Flags().BoolVar(&report, "report", false, "Print a run report to stderr")
	return cmd
}
