package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"

	"github.com/efebarandurmaz/sift/internal/pipeline"
	"github.com/efebarandurmaz/sift/internal/temporal"
)

func newSubmitCmd(configPath *string) *cobra.Command {
	var (
		src      sourceFlags
		question string
		strategy string
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "submit [question]",
		Short: "Answer a question as a durable workflow on the worker fleet",
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

			c, err := temporalclient.Dial(temporalclient.Options{
				HostPort:  e.cfg.Temporal.Host,
				Namespace: e.cfg.Temporal.Namespace,
				Logger:    temporallog.NewStructuredLogger(e.logger),
			})
			if err != nil {
				return fmt.Errorf("temporal client: %w", err)
			}
			defer c.Close()

			id, out, err := temporal.Submit(ctx, c, e.cfg.Temporal.TaskQueue, temporal.AnswerInput{
				Question:    question,
				Strategy:    s,
				Source:      req,
				Parallelism: e.cfg.Answer.Parallelism,
			})
			if err != nil {
				return err
			}
			e.logger.Info("workflow completed", "workflow_id", id, "chunks", out.Chunks, "findings", out.Findings)

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					WorkflowID string `json:"workflow_id"`
					*temporal.AnswerOutput
				}{id, out})
			}
			fmt.Println(out.Text())
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVarP(&question, "question", "q", "", "Question to answer")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "Answering strategy: map-reduce or rag (default from config)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the workflow result as JSON")
	return cmd
}
