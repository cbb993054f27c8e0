package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lusia-studio/cli/internal/api"
	"github.com/lusia-studio/cli/internal/domain"
	"github.com/lusia-studio/cli/internal/infra/storage"
	"github.com/lusia-studio/cli/internal/logger"
	"github.com/lusia-studio/cli/internal/services"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message and stream the assistant response",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().String("conversation", "", "conversation ID (a new one is created when empty)")
	chatCmd.Flags().StringArray("image", nil, "image URL to attach (repeatable, max 4)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")
	images, _ := cmd.Flags().GetStringArray("image")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.Chat.StreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Chat.StreamTimeout)*time.Second)
		defer cancel()
	}

	client := api.NewClient(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)

	conversationID, _ := cmd.Flags().GetString("conversation")
	if conversationID == "" {
		conversationID = cfg.Chat.DefaultConversation
	}
	if conversationID == "" {
		conversation, err := client.CreateConversation(ctx, "")
		if err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		conversationID = conversation.ID
		fmt.Fprintf(os.Stderr, "conversation: %s\n", conversationID)
	}

	session := services.NewChatSession(client)
	events, err := session.Start(ctx, conversationID, message, images)
	if err != nil {
		return err
	}

	for event := range events {
		switch e := event.(type) {
		case domain.ChatChunkEvent:
			fmt.Print(e.Delta)
		case domain.ToolCallUpdateEvent:
			printToolCall(e)
		case domain.ChatErrorEvent:
			fmt.Fprintf(os.Stderr, "\nstream error: %v\n", e.Error)
		}
	}
	fmt.Println()

	switch session.Status() {
	case domain.StreamErrored:
		return fmt.Errorf("chat failed: %s", session.ErrorMessage())
	case domain.StreamIdle:
		fmt.Fprintln(os.Stderr, "cancelled")
		return nil
	}

	cacheTranscript(conversationID, message, session.Text())
	return nil
}

func printToolCall(event domain.ToolCallUpdateEvent) {
	switch {
	case event.State.Final:
		fmt.Fprintf(os.Stderr, "\n[tool %s done]\n", event.Key)
	case len(event.State.Args) > 0:
		fmt.Fprintf(os.Stderr, "\n[tool %s running: %s]\n", event.Key, event.State.Args)
	default:
		fmt.Fprintf(os.Stderr, "\n[tool %s started]\n", event.Key)
	}
}

// cacheTranscript appends the exchange to the local transcript cache.
// Cache failures never fail the chat.
func cacheTranscript(conversationID, message, response string) {
	store, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		logger.Debug("transcript cache unavailable", "error", err)
		return
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, metadata, err := store.LoadTranscript(ctx, conversationID)
	if err != nil {
		metadata = storage.TranscriptMetadata{
			ID:        conversationID,
			Title:     transcriptTitle(message),
			CreatedAt: time.Now(),
		}
	}

	now := time.Now()
	messages = append(messages,
		domain.ChatMessage{Role: "user", Content: message, CreatedAt: now},
		domain.ChatMessage{Role: "assistant", Content: response, CreatedAt: now},
	)

	if err := store.SaveTranscript(ctx, conversationID, messages, metadata); err != nil {
		logger.Debug("failed to cache transcript", "error", err)
	}
}

// transcriptTitle derives a short title from the first user message
func transcriptTitle(message string) string {
	title := strings.TrimSpace(message)
	if len(title) <= 60 {
		return title
	}
	title = title[:60]
	if idx := strings.LastIndex(title, " "); idx > 0 {
		title = title[:idx]
	}
	return title + "..."
}
