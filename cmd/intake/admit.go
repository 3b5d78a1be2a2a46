package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"intake/internal/app"
	"intake/internal/domain"
	"intake/internal/engine"
	intakesdk "intake/sdk/go"
)

func readEvents(path string) ([]domain.ApplicationEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []domain.ApplicationEvent
	if err := json.Unmarshal(data, &events); err == nil {
		return events, nil
	}
	var single domain.ApplicationEvent
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return []domain.ApplicationEvent{single}, nil
}

type outcome struct {
	EventID        string `json:"event_id"`
	Outcome        string `json:"outcome"`
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

func outcomeOf(ev domain.ApplicationEvent, res engine.Result) outcome {
	o := outcome{EventID: ev.ID, Outcome: res.Kind.String(), ConversationID: res.Conversation.ID}
	if res.Err != nil {
		o.Error = res.Err.Error()
	}
	return o
}

func printOutcomes(items []outcome) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Event", "Outcome", "Conversation", "Error"})
	for _, o := range items {
		tw.AppendRow(table.Row{o.EventID, o.Outcome, o.ConversationID, o.Error})
	}
	tw.Render()
	return nil
}

func admitCmd() *cobra.Command {
	var file, remote, apiKey string
	cmd := &cobra.Command{
		Use:   "admit",
		Short: "Admit one application event",
		Long:  "Reads an ApplicationEvent JSON file and runs admission against the local store, or against a running server with --remote.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			events, err := readEvents(file)
			if err != nil {
				return err
			}
			if len(events) != 1 {
				return fmt.Errorf("admit takes one event, got %d; use replay", len(events))
			}
			ev := events[0]
			if err := ev.Validate(); err != nil {
				return err
			}
			if remote != "" {
				return admitRemote(cmd.Context(), remote, apiKey, ev)
			}
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				res := ac.Engine.Admit(ctx, ev)
				if res.Kind == engine.StoreFailure {
					return res.Err
				}
				if res.Kind == engine.Admitted && viper.GetBool("json") {
					return printJSON(res.Conversation)
				}
				return printOutcomes([]outcome{outcomeOf(ev, res)})
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "ApplicationEvent JSON file")
	cmd.Flags().StringVar(&remote, "remote", "", "API base URL, e.g. http://127.0.0.1:8080/api")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("INTAKE_API_KEY"), "API key for --remote")
	return cmd
}

func admitRemote(ctx context.Context, baseURL, apiKey string, ev domain.ApplicationEvent) error {
	client := intakesdk.New(baseURL, apiKey)
	conv, err := client.SubmitApplication(ctx, intakesdk.Application{
		ID:          ev.ID,
		JobID:       ev.JobID,
		CandidateID: ev.CandidateID,
		Candidate: intakesdk.Candidate{
			PhoneNumber:  ev.Candidate.PhoneNumber,
			FirstName:    ev.Candidate.FirstName,
			LastName:     ev.Candidate.LastName,
			EmailAddress: ev.Candidate.EmailAddress,
		},
	})
	var apiErr *intakesdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		return printOutcomes([]outcome{{EventID: ev.ID, Outcome: apiErr.Code, Error: apiErr.Message}})
	}
	if err != nil {
		return err
	}
	return printOutcomes([]outcome{{EventID: ev.ID, Outcome: engine.Admitted.String(), ConversationID: conv.ID}})
}

func replayCmd() *cobra.Command {
	var file string
	var concurrency int
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Admit a batch of application events concurrently",
		Long:  "Reads a JSON array of ApplicationEvents and admits them with bounded concurrency. Outcomes are printed in input order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1")
			}
			events, err := readEvents(file)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				results := make([]outcome, len(events))
				failures := 0
				g, gctx := errgroup.WithContext(ctx)
				g.SetLimit(concurrency)
				for i, ev := range events {
					i, ev := i, ev
					g.Go(func() error {
						if err := ev.Validate(); err != nil {
							results[i] = outcome{EventID: ev.ID, Outcome: "invalid", Error: err.Error()}
							return nil
						}
						res := ac.Engine.Admit(gctx, ev)
						results[i] = outcomeOf(ev, res)
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}
				for _, o := range results {
					if o.Outcome == engine.StoreFailure.String() {
						failures++
					}
				}
				if err := printOutcomes(results); err != nil {
					return err
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d events failed with store errors", failures, len(events))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array of ApplicationEvents")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "concurrent admissions")
	return cmd
}
