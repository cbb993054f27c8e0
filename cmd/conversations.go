package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lusia-studio/cli/internal/api"
	"github.com/lusia-studio/cli/internal/domain"
	"github.com/lusia-studio/cli/internal/infra/storage"
	"github.com/lusia-studio/cli/internal/logger"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage chat conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE:  runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsDelete,
}

func init() {
	conversationsListCmd.Flags().Bool("cached", false, "list locally cached transcripts instead of the remote list")
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	rootCmd.AddCommand(conversationsCmd)
}

func conversationService() domain.ConversationService {
	return api.NewClient(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
}

func runConversationsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cached, _ := cmd.Flags().GetBool("cached")
	if cached {
		store, err := storage.NewStorage(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to open transcript cache: %w", err)
		}
		defer func() {
			_ = store.Close()
		}()

		summaries, err := store.ListTranscripts(ctx, 0, 0)
		if err != nil {
			return fmt.Errorf("failed to list cached transcripts: %w", err)
		}
		if len(summaries) == 0 {
			fmt.Println("No cached transcripts.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED")
		for _, summary := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				summary.ID, summary.Title, summary.MessageCount,
				summary.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	}

	conversations, err := conversationService().ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(conversations) == 0 {
		fmt.Println("No conversations.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCREATED")
	for _, conversation := range conversations {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			conversation.ID, conversation.Title,
			conversation.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	messages, err := conversationService().ListMessages(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if len(messages) == 0 {
		fmt.Println("Conversation is empty.")
		return nil
	}

	for _, message := range messages {
		fmt.Printf("%s: %s\n", message.Role, message.Content)
	}
	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	if err := conversationService().DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	// the cached copy goes too; a cache miss is not an error
	if store, err := storage.NewStorage(cfg.Storage); err == nil {
		if err := store.DeleteTranscript(ctx, id); err != nil {
			logger.Debug("no cached transcript to delete", "conversation_id", id, "error", err)
		}
		_ = store.Close()
	}

	fmt.Printf("Deleted conversation %s\n", id)
	return nil
}
