package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fflog/fflog-go/pkg/fflog"
)

var (
	// upload flags
	uploadRegion      string
	uploadVisibility  string
	uploadDescription string
	uploadGuildID     int
	uploadFileName    string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file.log>",
	Short: "Upload a finished combat log as one report",
	Long: `Parse a finished ACT combat log file and upload every fight in it as
a single report. Prints the report URL on success.

The whole file is parsed before the first byte is uploaded, so large
files take a moment. The first run downloads and caches the parser
bundle.

Examples:
  # Upload with config defaults
  fflog upload Network_26560_20260825.log

  # Private report in the European region
  fflog upload --region EU --visibility private Network_26560_20260825.log

  # File under a guild (IDs from 'fflog login')
  fflog upload --guild 1234 --description "Tuesday prog" Network_26560_20260825.log`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadRegion, "region", "r", "",
		"reporting region: NA, EU, JP, CN, KR (default from config)")
	uploadCmd.Flags().StringVar(&uploadVisibility, "visibility", "",
		"report visibility: public, private, unlisted (default from config)")
	uploadCmd.Flags().StringVarP(&uploadDescription, "description", "m", "",
		"report description")
	uploadCmd.Flags().IntVar(&uploadGuildID, "guild", -1,
		"guild ID to file the report under (-1 = config value, 0 = personal logs)")
	uploadCmd.Flags().StringVar(&uploadFileName, "filename", "",
		"file name recorded on the report (default: the file's base name)")

	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	region, err := resolveRegion(uploadRegion)
	if err != nil {
		return err
	}
	visibility, err := resolveVisibility(uploadVisibility)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Login(ctx, cfg.Email, cfg.Password); err != nil {
		return err
	}

	code, err := client.UploadLog(ctx, args[0], fflog.UploadOptions{
		Region:      region,
		Visibility:  visibility,
		Description: uploadDescription,
		GuildID:     resolveGuild(uploadGuildID),
		FileName:    uploadFileName,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Report uploaded: %s\n", reportURL(code))
	return nil
}
