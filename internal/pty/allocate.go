package pty

import (
	"fmt"
	"os"

	ptylib "github.com/creack/pty"
)

// maxDimension is the largest value a winsize field can hold.
const maxDimension = 65535

// Pair holds both ends of a pseudo-terminal.
type Pair struct {
	Master *os.File
	Slave  *os.File
}

// Close releases whichever ends are still open.
func (p *Pair) Close() {
	if p.Slave != nil {
		p.Slave.Close()
		p.Slave = nil
	}
	if p.Master != nil {
		p.Master.Close()
		p.Master = nil
	}
}

// Allocate opens a fresh master/slave pair sized rows x cols.
func Allocate(rows, cols int) (*Pair, error) {
	master, slave, err := ptylib.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	p := &Pair{Master: master, Slave: slave}
	if err := Resize(master, rows, cols); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: failed to set initial size: %v", ErrAllocation, err)
	}
	return p, nil
}

// Resize applies a new window size to the terminal behind master. Values
// outside 1..65535 are ignored without error.
func Resize(master *os.File, rows, cols int) error {
	if !validDimensions(rows, cols) {
		return nil
	}
	return ptylib.Setsize(master, &ptylib.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// Size reports the current window size of the terminal behind master.
func Size(master *os.File) (rows, cols int, err error) {
	ws, err := ptylib.GetsizeFull(master)
	if err != nil {
		return 0, 0, err
	}
	return int(ws.Rows), int(ws.Cols), nil
}

func validDimensions(rows, cols int) bool {
	return rows > 0 && cols > 0 && rows <= maxDimension && cols <= maxDimension
}
