// Package bridge owns the external interpreter process that runs the
// vendor parser bundle and layers a call/response model over its
// line-delimited stdio streams.
package bridge

import (
	"bytes"

	"github.com/tidwall/gjson"
)

// ipcMarker prefixes every protocol event on the interpreter's stdout.
// Lines without it are diagnostic output and never enter the queue.
const ipcMarker = "__IPC__:"

// Message is one command sent to the interpreter: a command name under
// the "message" key, a correlation "id" (assigned by Send when absent),
// and command-specific payload fields. Treated as immutable once sent.
type Message map[string]any

// Event is one protocol event received from the interpreter. The vendor
// code emits two shapes: host-callback wrappers carrying a "channel"
// label with payload under "data", and direct postMessage echoes with
// payload fields at the top level. Event therefore keeps the raw JSON
// and is probed rather than decoded into a single struct.
type Event struct {
	raw []byte
}

// EventFromJSON wraps a raw JSON document as an Event, as if it had
// arrived marked on the interpreter's stdout. Useful when simulating
// interpreter output.
func EventFromJSON(raw []byte) Event {
	return Event{raw: bytes.Clone(raw)}
}

// Raw returns the event's JSON document.
func (e Event) Raw() []byte { return e.raw }

// Channel returns the event's topic label, or "" when it has none.
func (e Event) Channel() string {
	return gjson.GetBytes(e.raw, "channel").String()
}

// Field looks up a named payload field, preferring the nested "data"
// location over the top level. Both locations must stay supported: they
// correspond to the two emission paths inside the vendor code.
func (e Event) Field(name string) (gjson.Result, bool) {
	if res := gjson.GetBytes(e.raw, "data."+name); res.Exists() {
		return res, true
	}
	if res := gjson.GetBytes(e.raw, name); res.Exists() {
		return res, true
	}
	return gjson.Result{}, false
}

// HasField reports whether the named field is present at the top level
// or one level under "data".
func (e Event) HasField(name string) bool {
	_, ok := e.Field(name)
	return ok
}

// Predicate selects events during a WaitFor scan.
type Predicate func(Event) bool

// OnChannel matches events carrying the given topic label. Used for the
// startup handshake, which is the only emission with a stable channel.
func OnChannel(name string) Predicate {
	return func(e Event) bool { return e.Channel() == name }
}

// HasField matches events carrying the named payload field in either
// location. Used for all parsed-content responses.
func HasField(name string) Predicate {
	return func(e Event) bool { return e.HasField(name) }
}

// decodeLine extracts the protocol event from one stdout line. Returns
// ok=false for diagnostic lines: no marker, or a marked payload that is
// not a JSON object.
func decodeLine(line []byte) (Event, bool) {
	rest, found := bytes.CutPrefix(line, []byte(ipcMarker))
	if !found {
		return Event{}, false
	}
	rest = bytes.TrimSpace(rest)
	if len(rest) == 0 || rest[0] != '{' || !gjson.ValidBytes(rest) {
		return Event{}, false
	}
	// The scanner reuses its buffer; events outlive the read loop.
	return Event{raw: bytes.Clone(rest)}, true
}
