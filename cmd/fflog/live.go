package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fflog/fflog-go/pkg/fflog"
)

var (
	// live flags
	liveRegion       string
	liveVisibility   string
	liveDescription  string
	liveGuildID      int
	liveUploadPrev   bool
	liveStatusPeriod = 2 * time.Second
)

var liveCmd = &cobra.Command{
	Use:   "live [log-dir]",
	Short: "Live log: upload fights as they finish",
	Long: `Watch the ACT log directory and upload fights to a live report as
they complete. The report is created when the first fight ends; its URL
is printed as soon as it exists.

The directory argument is optional when FFLOG_LOGDIR or log_dir in the
config file points at the ACT log directory. The session follows ACT's
file rotation automatically.

Runs until interrupted (Ctrl-C); remaining data is flushed and the
report finalized on the way out.

Examples:
  # Live log the configured directory
  fflog live

  # Explicit directory, also upload fights already in the current file
  fflog live --upload-previous "C:\Users\me\AppData\Roaming\Advanced Combat Tracker\FFXIVLogs"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLive,
}

func init() {
	liveCmd.Flags().StringVarP(&liveRegion, "region", "r", "",
		"reporting region: NA, EU, JP, CN, KR (default from config)")
	liveCmd.Flags().StringVar(&liveVisibility, "visibility", "",
		"report visibility: public, private, unlisted (default from config)")
	liveCmd.Flags().StringVarP(&liveDescription, "description", "m", "",
		"report description")
	liveCmd.Flags().IntVar(&liveGuildID, "guild", -1,
		"guild ID to file the report under (-1 = config value, 0 = personal logs)")
	liveCmd.Flags().BoolVar(&liveUploadPrev, "upload-previous", false,
		"also parse what the current log file already contains")

	rootCmd.AddCommand(liveCmd)
}

func runLive(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	region, err := resolveRegion(liveRegion)
	if err != nil {
		return err
	}
	visibility, err := resolveVisibility(liveVisibility)
	if err != nil {
		return err
	}
	dir := cfg.LogDir
	if len(args) == 1 {
		dir = args[0]
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

	err = client.StartLiveLog(ctx, dir, fflog.LiveOptions{
		Region:         region,
		Visibility:     visibility,
		Description:    liveDescription,
		GuildID:        resolveGuild(liveGuildID),
		UploadPrevious: liveUploadPrev,
	})
	if err != nil {
		return err
	}

	fmt.Println("Live logging; press Ctrl-C to stop.")

	ticker := time.NewTicker(liveStatusPeriod)
	defer ticker.Stop()

	var lastCode string
	var lastFights int
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopping; flushing remaining data...")
			if err := client.StopLiveLog(); err != nil {
				return err
			}
			if code := client.CurrentReportCode(); code != "" {
				fmt.Printf("Report finalized: %s (%d fights)\n",
					reportURL(code), client.LiveFightCount())
			} else {
				fmt.Println("No fights were uploaded.")
			}
			return nil

		case <-ticker.C:
			if code := client.CurrentReportCode(); code != lastCode {
				lastCode = code
				fmt.Printf("Report created: %s\n", reportURL(code))
			}
			if n := client.LiveFightCount(); n != lastFights {
				lastFights = n
				fmt.Printf("Uploaded %d fight(s)\n", n)
			}
		}
	}
}
