package upload

import (
	"archive/zip"
	"bytes"
	"fmt"
	"mime/multipart"
	"strings"
)

// segmentHeader is the fixed first line of every segment payload. It is
// a protocol literal, independent of whatever log version the parser
// reported for the master table.
const segmentHeader = "72|1"

// Segment is one fight's upload payload plus its wire metadata. Start
// and end are the unit-global timestamps shared by all segments of one
// processing unit, not the fight's own.
type Segment struct {
	// Index is the 1-based position of the fight within the report.
	Index int

	// Name is the fight's display name, used for logging only.
	Name string

	// Events is the fight's raw combat event text.
	Events string

	StartTime int64
	EndTime   int64

	// Live sets both wire booleans (isLiveLog, isRealTime); they never
	// diverge in this client.
	Live bool
}

// payload frames the raw event text: the fixed header line, an event
// count line, then the event lines themselves.
func (s Segment) payload() []byte {
	lines := eventLines(s.Events)
	var b bytes.Buffer
	b.WriteString(segmentHeader)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "%d\n", len(lines))
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// parameters returns the form metadata accompanying the segment zip.
func (s Segment) parameters() map[string]any {
	return map[string]any{
		"start":                s.StartTime,
		"end":                  s.EndTime,
		"mythic":               0,
		"inProgressEventCount": 0,
		"isLiveLog":            s.Live,
		"isRealTime":           s.Live,
		"segmentId":            s.Index,
	}
}

// eventLines splits raw event text, tolerating a trailing newline
// without producing a phantom empty line in the count.
func eventLines(events string) []string {
	if events == "" {
		return nil
	}
	lines := strings.Split(events, "\n")
	if n := len(lines); lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// zipSingle compresses one named file into an in-memory zip archive.
func zipSingle(name string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// multipartZip builds a multipart body holding one zip attachment under
// fieldName plus any extra plain form fields. Returns the body and its
// content type.
func multipartZip(fieldName, fileName string, zipData []byte, extra map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile(fieldName, fileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(zipData); err != nil {
		return nil, "", err
	}
	for k, v := range extra {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
