package fflog

import (
	"errors"

	"github.com/fflog/fflog-go/internal/bridge"
	"github.com/fflog/fflog-go/internal/logfinder"
	"github.com/fflog/fflog-go/internal/upload"
)

// Sentinel errors returned by Client methods.
var (
	// ErrNotLoggedIn is returned by operations that need an
	// authenticated session before Login succeeded.
	ErrNotLoggedIn = errors.New("fflog: not logged in")

	// ErrLiveSessionActive is returned when an operation cannot run
	// next to an active live session (the parser subprocess holds one
	// logical session at a time).
	ErrLiveSessionActive = errors.New("fflog: live session active")

	// ErrNoLiveSession is returned by StopLiveLog without a session.
	ErrNoLiveSession = errors.New("fflog: no live session")

	// ErrNoFights is returned by UploadLog when the parser found no
	// finished fight in the file; nothing is created remotely.
	ErrNoFights = errors.New("fflog: no fights in log file")

	// ErrParserTimeout surfaces when the parser stops answering within
	// its timeout tier. Same value the bridge reports, so errors.Is
	// works at either level.
	ErrParserTimeout = bridge.ErrWaitTimeout

	// ErrParserUnavailable surfaces commands against a stopped parser
	// subprocess.
	ErrParserUnavailable = bridge.ErrNotRunning

	// ErrNoLogFiles mirrors the log discovery sentinel for callers that
	// only import this package.
	ErrNoLogFiles = logfinder.ErrNoLogFiles
)

// AuthError reports rejected credentials or an expired session.
type AuthError = upload.AuthError

// RequestError reports a non-auth remote failure with the operation,
// status and response preview attached.
type RequestError = upload.RequestError

// StartupError reports an interpreter subprocess that never became
// ready.
type StartupError = bridge.StartupError
