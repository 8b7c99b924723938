package pty

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseControl(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  Control
	}{
		{"resize", "__RESIZE__:30:100__", Control{Kind: ControlResize, Rows: 30, Cols: 100, Valid: true}},
		{"resize with trailing bytes", "__RESIZE__:40:120__ls\n", Control{Kind: ControlResize, Rows: 40, Cols: 120, Valid: true}},
		{"resize max", "__RESIZE__:65535:65535__", Control{Kind: ControlResize, Rows: 65535, Cols: 65535, Valid: true}},
		{"resize missing closing marker", "__RESIZE__:30:100", Control{Kind: ControlResize}},
		{"resize non-numeric rows", "__RESIZE__:abc:100__", Control{Kind: ControlResize}},
		{"resize non-numeric cols", "__RESIZE__:30:1x0__", Control{Kind: ControlResize}},
		{"resize signed", "__RESIZE__:+30:100__", Control{Kind: ControlResize}},
		{"resize zero", "__RESIZE__:0:100__", Control{Kind: ControlResize}},
		{"resize too large", "__RESIZE__:70000:100__", Control{Kind: ControlResize}},
		{"resize missing cols", "__RESIZE__:30__", Control{Kind: ControlResize}},
		{"resize empty", "__RESIZE__:", Control{Kind: ControlResize}},
		{"exit", "__EXIT__", Control{Kind: ControlExit, Valid: true}},
		{"exit with trailing bytes", "__EXIT__\n", Control{Kind: ControlExit, Valid: true}},
		{"payload", "ls -la\n", Control{Kind: ControlNone}},
		{"marker not at start", "echo __EXIT__\n", Control{Kind: ControlNone}},
		{"lowercase marker", "__exit__", Control{Kind: ControlNone}},
		{"partial marker", "__RESI", Control{Kind: ControlNone}},
		{"empty", "", Control{Kind: ControlNone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseControl([]byte(tt.chunk)))
		})
	}
}

func TestResizeMessage(t *testing.T) {
	msg := ResizeMessage(30, 100)
	assert.Equal(t, "__RESIZE__:30:100__", string(msg))

	ctl := ParseControl(msg)
	assert.True(t, ctl.Valid)
	assert.Equal(t, 30, ctl.Rows)
	assert.Equal(t, 100, ctl.Cols)
}

func TestControlKindString(t *testing.T) {
	assert.Equal(t, "resize", ControlResize.String())
	assert.Equal(t, "exit", ControlExit.String())
	assert.Equal(t, "payload", ControlNone.String())
}
