package pty

import (
	"bytes"
	"fmt"
	"strconv"
)

// In-band markers. A chunk is a control message only when it starts with
// one of them; markers split across reads are treated as payload.
var (
	ResizeMarker = []byte("__RESIZE__:")
	ExitMarker   = []byte("__EXIT__")

	markerClose = []byte("__")
)

// ControlKind classifies an input chunk.
type ControlKind int

const (
	// ControlNone means the chunk is payload for the shell.
	ControlNone ControlKind = iota
	ControlResize
	ControlExit
)

func (k ControlKind) String() string {
	switch k {
	case ControlResize:
		return "resize"
	case ControlExit:
		return "exit"
	default:
		return "payload"
	}
}

// Control is the result of classifying one input chunk.
type Control struct {
	Kind ControlKind
	Rows int
	Cols int
	// Valid is false for resize markers whose arguments did not parse.
	Valid bool
}

// ParseControl classifies chunk. Payload chunks return Kind ControlNone.
func ParseControl(chunk []byte) Control {
	switch {
	case bytes.HasPrefix(chunk, ResizeMarker):
		rows, cols, ok := parseResize(chunk[len(ResizeMarker):])
		return Control{Kind: ControlResize, Rows: rows, Cols: cols, Valid: ok}
	case bytes.HasPrefix(chunk, ExitMarker):
		return Control{Kind: ControlExit, Valid: true}
	default:
		return Control{Kind: ControlNone}
	}
}

// parseResize reads "<rows>:<cols>__" from the start of rest. Anything after
// the closing marker is ignored.
func parseResize(rest []byte) (rows, cols int, ok bool) {
	rowsField, after, found := bytes.Cut(rest, []byte(":"))
	if !found {
		return 0, 0, false
	}
	colsField, _, found := bytes.Cut(after, markerClose)
	if !found {
		return 0, 0, false
	}

	rows, ok = parseDimension(rowsField)
	if !ok {
		return 0, 0, false
	}
	cols, ok = parseDimension(colsField)
	if !ok {
		return 0, 0, false
	}
	return rows, cols, true
}

func parseDimension(field []byte) (int, bool) {
	if len(field) == 0 {
		return 0, false
	}
	for _, c := range field {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(string(field))
	if err != nil || n <= 0 || n > maxDimension {
		return 0, false
	}
	return n, true
}

// ResizeMessage builds the resize marker for rows x cols.
func ResizeMessage(rows, cols int) []byte {
	return []byte(fmt.Sprintf("%s%d:%d__", ResizeMarker, rows, cols))
}
