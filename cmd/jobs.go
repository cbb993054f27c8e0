package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lusia-studio/cli/internal/api"
	"github.com/lusia-studio/cli/internal/domain"
	"github.com/lusia-studio/cli/internal/logger"
	"github.com/lusia-studio/cli/internal/realtime"
	"github.com/lusia-studio/cli/internal/services"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and follow document processing jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents currently being processed",
	RunE:  runJobsList,
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow processing jobs until they finish",
	RunE:  runJobsWatch,
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <artifact-id>",
	Short: "Re-enqueue a failed document",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRetry,
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsWatchCmd)
	jobsCmd.AddCommand(jobsRetryCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := api.NewClient(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)

	tracker := services.NewProcessingTracker(client, pollInterval(), nil)
	if err := tracker.Load(ctx); err != nil {
		return fmt.Errorf("failed to load processing items: %w", err)
	}

	items := tracker.Items()
	if len(items) == 0 {
		fmt.Println("No documents are being processed.")
		return nil
	}

	printItems(items)
	return nil
}

func runJobsWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := api.NewClient(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	return watchProcessing(ctx, client, nil)
}

func runJobsRetry(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := api.NewClient(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)

	tracker := services.NewProcessingTracker(client, pollInterval(), nil)
	if err := tracker.Load(ctx); err != nil {
		return fmt.Errorf("failed to load processing items: %w", err)
	}

	if err := tracker.RetryItem(ctx, args[0]); err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}

	fmt.Printf("Retry enqueued for %s\n", args[0])
	return nil
}

func pollInterval() time.Duration {
	return time.Duration(cfg.Processing.PollIntervalMs) * time.Millisecond
}

// watchProcessing follows the tracked items until every one of them is
// completed or failed, printing step transitions as they happen. The
// push channel is best effort: when it cannot be opened the watch
// degrades to polling only.
func watchProcessing(ctx context.Context, client domain.DocumentService, seed []domain.Artifact) error {
	tracker := services.NewProcessingTracker(client, pollInterval(), func(artifact domain.Artifact) {
		fmt.Printf("ready: %s (%s)\n", artifact.ArtifactName, artifact.ID)
	})
	defer tracker.Close()

	if err := tracker.Load(ctx); err != nil {
		return fmt.Errorf("failed to load processing items: %w", err)
	}
	tracker.AddItems(seed...)

	if len(tracker.Items()) == 0 {
		fmt.Println("Nothing to watch.")
		return nil
	}

	tracker.Start(ctx)

	channel, err := realtime.NewPushChannel(cfg.Realtime, cfg.Gateway.APIKey)
	if err != nil {
		logger.Warn("push channel unavailable, falling back to polling", "error", err)
	} else {
		defer func() {
			_ = channel.Close()
		}()
		events, err := channel.Subscribe(ctx, cfg.Processing.Table, cfg.Processing.Filter)
		if err != nil {
			logger.Warn("push subscription failed, falling back to polling", "error", err)
		} else {
			tracker.Listen(ctx, events)
		}
	}

	printItems(tracker.Items())

	steps := make(map[string]domain.ProcessingStep)
	for _, item := range tracker.Items() {
		steps[item.ID] = item.CurrentStep
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		items := tracker.Items()
		pending := 0
		for _, item := range items {
			if prev, ok := steps[item.ID]; !ok || prev != item.CurrentStep {
				steps[item.ID] = item.CurrentStep
				fmt.Printf("%s: %s\n", item.DisplayName, item.CurrentStep.DisplayName())
			}
			if item.Failed {
				continue
			}
			pending++
		}

		if pending == 0 {
			break
		}
	}

	failed := 0
	for _, item := range tracker.Items() {
		if item.Failed {
			failed++
			fmt.Printf("failed: %s: %s\n", item.DisplayName, item.ErrorMessage)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d document(s) failed processing", failed)
	}
	return nil
}

func printItems(items []domain.ProcessingItem) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTEP\tSTATUS")
	for _, item := range items {
		status := "in progress"
		if item.Failed {
			status = "failed: " + item.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.ID, item.DisplayName, item.CurrentStep.DisplayName(), status)
	}
	_ = w.Flush()
}
