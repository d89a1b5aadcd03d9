// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package busmap renders the result of an I²C bus scan to a terminal as a
// grid of 8 rows of 16 addresses, in the layout of i2cdetect.
//
// Useful to see at a glance which targets answered on a bus.
package busmap

import (
	"bytes"
	"fmt"
	"image/color"
	"io"

	"github.com/GermanBionicSystems/dwi2c"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

// Opts represents the options available for the map.
type Opts struct {
	// Color draws each cell as a coloured block in front of its label.
	Color   bool
	Palette *ansi256.Palette

	_ struct{}
}

// Colours of the cells.
var (
	Found    = color.NRGBA{0x00, 0xC0, 0x00, 0xFF}
	Missing  = color.NRGBA{0x40, 0x40, 0x40, 0xFF}
	Reserved = color.NRGBA{0x00, 0x00, 0x00, 0xFF}
)

// Dev writes bus maps to a terminal.
type Dev struct {
	w       io.Writer
	color   bool
	palette ansi256.Palette

	buf bytes.Buffer
}

// New returns a Dev that writes to stdout, translating the ANSI codes on
// terminals that need it.
func New(opts *Opts) *Dev {
	return NewWriter(colorable.NewColorableStdout(), opts)
}

// NewWriter returns a Dev that writes to w.
func NewWriter(w io.Writer, opts *Opts) *Dev {
	if opts == nil {
		opts = &Opts{}
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	return &Dev{w: w, color: opts.Color, palette: *p}
}

func (d *Dev) String() string {
	return "BusMap"
}

// Halt implements conn.Resource.
//
// It resets the terminal colours so the following output is not affected.
func (d *Dev) Halt() error {
	if !d.color {
		return nil
	}
	_, err := d.w.Write([]byte("\033[0m"))
	return err
}

// Render writes the map of a bus where the addresses in found answered.
//
// Reserved addresses are left blank, addresses that didn't answer show as
// "--".
func (d *Dev) Render(found []uint16) error {
	var present [0x80]bool
	for _, addr := range found {
		if addr < 0x80 {
			present[addr] = true
		}
	}
	// This code is designed to minimize the amount of memory allocated per call.
	d.buf.Reset()
	_, _ = d.buf.WriteString("    ")
	for col := 0; col < 16; col++ {
		_, _ = fmt.Fprintf(&d.buf, "  %x", col)
	}
	_ = d.buf.WriteByte('\n')
	for row := uint16(0); row < 0x80; row += 16 {
		_, _ = fmt.Fprintf(&d.buf, "%02x:", row)
		for col := uint16(0); col < 16; col++ {
			addr := row + col
			_ = d.buf.WriteByte(' ')
			switch {
			case dwi2c.Reserved(addr):
				d.cell(Reserved, "  ")
			case present[addr]:
				d.cell(Found, fmt.Sprintf("%02x", addr))
			default:
				d.cell(Missing, "--")
			}
		}
		_ = d.buf.WriteByte('\n')
	}
	_, err := d.buf.WriteTo(d.w)
	return err
}

func (d *Dev) cell(c color.NRGBA, label string) {
	if d.color {
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
		_, _ = d.buf.WriteString("\033[0m")
	}
	_, _ = d.buf.WriteString(label)
}

var _ fmt.Stringer = &Dev{}
