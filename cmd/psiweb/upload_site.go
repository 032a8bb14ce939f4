package main

import (
	"fmt"

	"github.com/diamondpsi/psiweb/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var uploadSiteDir string

var uploadSiteCmd = &cobra.Command{
	Use:   "upload-site",
	Short: "Upload the site directory to remote storage",
	Long:  `Upload a built site directory to S3-compatible storage using the config file settings.`,
	RunE:  runUploadSite,
}

func init() {
	rootCmd.AddCommand(uploadSiteCmd)
	uploadSiteCmd.Flags().StringVar(&uploadSiteDir, "dir", "",
		"site directory to upload (defaults to site.output_dir)")
}

func runUploadSite(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s3cfg := cfg.Site.Upload.S3
	if s3cfg == nil || !s3cfg.Enabled {
		return fmt.Errorf("S3 upload is not configured or not enabled in config")
	}

	dir := uploadSiteDir
	if dir == "" {
		dir = cfg.Site.OutputDir
	}

	uploader, err := upload.NewS3Uploader(log, s3cfg)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	ctx := cmd.Context()

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("preflight check: %w", err)
	}

	log.WithField("dir", dir).Info("Uploading site")

	n, err := uploader.Upload(ctx, dir)
	if err != nil {
		return fmt.Errorf("uploading site: %w", err)
	}

	log.WithFields(logrus.Fields{
		"files":  n,
		"bucket": s3cfg.Bucket,
	}).Info("Upload completed successfully")

	return nil
}
