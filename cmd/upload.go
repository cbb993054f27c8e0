package cmd

import (
	"context"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lusia-studio/cli/internal/api"
	"github.com/lusia-studio/cli/internal/domain"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document and enqueue its processing pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

func init() {
	uploadCmd.Flags().String("name", "", "artifact name (defaults to the file name)")
	uploadCmd.Flags().String("category", api.CategoryStudy, "document category: study, exercises or study_exercises")
	uploadCmd.Flags().String("subject", "", "subject ID (required)")
	uploadCmd.Flags().String("year", "", "year level for study documents")
	uploadCmd.Flags().StringSlice("years", nil, "year levels for exercise documents")
	uploadCmd.Flags().String("component", "", "subject component")
	uploadCmd.Flags().String("icon", "", "icon identifier")
	uploadCmd.Flags().Bool("public", false, "make the document public")
	uploadCmd.Flags().Bool("watch", false, "follow the processing pipeline until it finishes")
	_ = uploadCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	path := args[0]
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	fileName := filepath.Base(path)

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = fileName
	}
	category, _ := cmd.Flags().GetString("category")
	subject, _ := cmd.Flags().GetString("subject")
	year, _ := cmd.Flags().GetString("year")
	years, _ := cmd.Flags().GetStringSlice("years")
	component, _ := cmd.Flags().GetString("component")
	icon, _ := cmd.Flags().GetString("icon")
	public, _ := cmd.Flags().GetBool("public")

	meta := api.UploadMetadata{
		ArtifactName:     name,
		DocumentCategory: category,
		SubjectID:        subject,
		YearLevel:        year,
		YearLevels:       years,
		SubjectComponent: component,
		Icon:             icon,
		IsPublic:         public,
	}

	contentType := mime.TypeByExtension(filepath.Ext(fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	client := api.NewClient(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)

	artifact, err := client.UploadDocument(ctx, file, fileName, contentType, meta)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	fmt.Printf("Uploaded %s (artifact %s, job %s)\n", artifact.ArtifactName, artifact.ID, artifact.JobID)

	watch, _ := cmd.Flags().GetBool("watch")
	if !watch {
		return nil
	}

	return watchProcessing(ctx, client, []domain.Artifact{*artifact})
}
