// Package fflog uploads FFXIV combat logs to FF Logs.
//
// This package allows you to:
//   - Upload finished ACT log files as complete reports
//   - Live log a growing log directory, uploading fights as they end
//   - Drive the service's own parser, fetched and cached automatically
//
// The vendor's parser is a JavaScript bundle executed by a local
// Node.js interpreter; a working `node` binary on PATH (or via
// [WithNodePath]) is required for uploads.
//
// # Basic Usage
//
// To upload a finished log file:
//
//	client, err := fflog.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Login(ctx, email, password); err != nil {
//	    log.Fatal(err)
//	}
//
//	code, err := client.UploadLog(ctx, "Network_26560_20260825.log", fflog.UploadOptions{
//	    Region:     fflog.RegionNA,
//	    Visibility: fflog.VisibilityPrivate,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("https://www.fflogs.com/reports/%s\n", code)
//
// # Live Logging
//
// To upload fights as they happen, point a live session at the ACT log
// directory:
//
//	err := client.StartLiveLog(ctx, logDir, fflog.LiveOptions{
//	    Region: fflog.RegionEU,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.StopLiveLog()
//
// The session tails the newest log file, switches to newer files as ACT
// rotates them, and creates the report lazily when the first fight
// completes. [Client.CurrentReportCode] and [Client.LiveFightCount]
// report progress.
//
// # Errors
//
// Failures carry typed errors where the cause matters: [AuthError] for
// rejected credentials, [RequestError] for other remote failures,
// [StartupError] when the parser subprocess never becomes ready.
// Sentinel values such as [ErrNotLoggedIn] and [ErrNoFights] guard
// state preconditions and are matched with errors.Is.
//
// # Disclaimer
//
// This is an unofficial client and is not affiliated with the FF Logs
// service.
package fflog
