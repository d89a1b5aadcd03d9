// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dwi2c

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

// Opts contains the options to pass to New.
type Opts struct {
	// Name identifies the block in String, e.g. "I2C0".
	Name string
	// Frequency is the bus frequency, at most 1MHz.
	Frequency physic.Frequency
	// SystemClock is clk_sys, the clock feeding the block.
	SystemClock physic.Frequency
	// Waiter bounds every poll of the hardware. nil means Spin.
	Waiter Waiter
	// Logger receives configuration details and aborts at V(1). The zero
	// value discards.
	Logger logr.Logger
}

// DefaultOpts is a 400kHz bus on an RP2040 running at its default 125MHz.
var DefaultOpts = Opts{
	Name:        "I2C0",
	Frequency:   400 * physic.KiloHertz,
	SystemClock: 125 * physic.MegaHertz,
}

// Dev is a DesignWare I²C block configured as a bus controller.
//
// A Dev is the only owner of its registers and is not safe for concurrent
// use; wrap it in a Bus to share it.
type Dev struct {
	b      block
	w      Waiter
	log    logr.Logger
	name   string
	sysclk physic.Frequency
	freq   physic.Frequency
	timing Timing
}

// New configures the block behind r as a 7-bit bus controller and enables it.
//
// The block must already be out of reset. If opts is nil, DefaultOpts is
// used. No Dev is returned when the requested frequency cannot be derived
// from the system clock.
func New(r Registers, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	t, err := NewTiming(opts.Frequency, opts.SystemClock)
	if err != nil {
		return nil, err
	}
	d := &Dev{
		b:      block{r: r},
		w:      opts.Waiter,
		log:    opts.Logger,
		name:   opts.Name,
		sysclk: opts.SystemClock,
	}
	if d.w == nil {
		d.w = Spin{}
	}
	if d.log.GetSink() == nil {
		d.log = logr.Discard()
	}
	if d.name == "" {
		d.name = "dwi2c"
	}
	d.b.reconfigure(func(c config) {
		c.setControl(controlWord)
		// Interrupt thresholds at a single entry.
		c.setFIFOThresholds(0, 0)
		c.setTiming(t)
	})
	d.commit(opts.Frequency, t)
	return d, nil
}

// MustNew is New for callers that treat an impossible timing as a
// programming error.
func MustNew(r Registers, opts *Opts) *Dev {
	d, err := New(r, opts)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.name, d.freq)
}

// Timing returns the counts currently programmed.
func (d *Dev) Timing() Timing {
	return d.timing
}

// SetSpeed reprograms the timing for a new bus frequency. On error the
// previous timing stays in effect.
func (d *Dev) SetSpeed(f physic.Frequency) error {
	t, err := NewTiming(f, d.sysclk)
	if err != nil {
		return err
	}
	d.b.reconfigure(func(c config) {
		c.setTiming(t)
	})
	d.commit(f, t)
	return nil
}

func (d *Dev) commit(f physic.Frequency, t Timing) {
	d.freq = f
	d.timing = t
	d.log.V(1).Info("configured", "bus", d.name, "frequency", f.String(), "sysclk", d.sysclk.String(),
		"hcnt", t.HighCount, "lcnt", t.LowCount, "spklen", t.SpikeLen, "sda_hold", t.SDAHold)
}

// Halt implements conn.Resource. It disables the block; the next transaction
// re-enables it.
func (d *Dev) Halt() error {
	d.b.disable()
	return nil
}

// setup points the block at addr. The first command pushed afterwards makes
// the hardware emit START and the address byte.
func (d *Dev) setup(addr uint16) {
	d.b.reconfigure(func(c config) {
		c.setTarget(addr)
		// A read transaction does not consume its STOP_DET; drop it so the
		// next write waits for its own STOP.
		c.clearStopDet()
	})
}

// Write sends w to the target at the 7-bit address addr in one transaction.
func (d *Dev) Write(addr uint16, w []byte) error {
	if err := validate(addr, isEmpty(w), nil); err != nil {
		return err
	}
	d.setup(addr)
	return d.check(addr, d.writeAll(w, true))
}

// Read fills r from the target at the 7-bit address addr in one transaction.
func (d *Dev) Read(addr uint16, r []byte) error {
	if err := validate(addr, nil, isEmpty(r)); err != nil {
		return err
	}
	d.setup(addr)
	return d.check(addr, d.readN(r, true, true))
}

// WriteRead sends w then fills r in a single transaction, with exactly one
// repeated START between the two.
func (d *Dev) WriteRead(addr uint16, w, r []byte) error {
	if err := validate(addr, isEmpty(w), isEmpty(r)); err != nil {
		return err
	}
	d.setup(addr)
	if err := d.writeAll(w, false); err != nil {
		return d.check(addr, err)
	}
	return d.check(addr, d.readN(r, true, true))
}

// WriteIter sends every byte of src until io.EOF in one transaction.
//
// An empty src is ErrInvalidWriteBufferLength. If src fails after some bytes
// went out, the last byte obtained is sent with STOP and src's error is
// returned.
func (d *Dev) WriteIter(addr uint16, src io.ByteReader) error {
	p := peeker{src: src}
	_, ok := p.peek()
	if err := validate(addr, boolPtr(!ok), nil); err != nil {
		if p.err != nil {
			return p.err
		}
		return err
	}
	d.setup(addr)
	for {
		b, _ := p.next()
		_, more := p.peek()
		if err := d.writeOne(b, !more); err != nil {
			return d.check(addr, err)
		}
		if !more {
			return p.err
		}
	}
}

// WriteIterRead sends every byte of src, then fills r, in one transaction.
//
// If src fails part way, the transaction is terminated with a STOP on the
// last byte obtained and src's error is returned; r is left untouched.
func (d *Dev) WriteIterRead(addr uint16, src io.ByteReader, r []byte) error {
	p := peeker{src: src}
	_, ok := p.peek()
	if err := validate(addr, boolPtr(!ok), isEmpty(r)); err != nil {
		if p.err != nil {
			return p.err
		}
		return err
	}
	d.setup(addr)
	for {
		b, _ := p.next()
		_, more := p.peek()
		if !more && p.err != nil {
			if err := d.writeOne(b, true); err != nil {
				return d.check(addr, err)
			}
			return p.err
		}
		if err := d.writeOne(b, false); err != nil {
			return d.check(addr, err)
		}
		if !more {
			break
		}
	}
	return d.check(addr, d.readN(r, true, true))
}

// OpKind is the direction of an Op.
type OpKind uint8

const (
	OpWrite OpKind = iota
	OpRead
)

func (k OpKind) String() string {
	if k == OpRead {
		return "Read"
	}
	return "Write"
}

// Op is one operation of a Transaction: the bytes to send for OpWrite, the
// buffer to fill for OpRead.
type Op struct {
	Kind OpKind
	Buf  []byte
}

// ReadOp returns an Op filling buf.
func ReadOp(buf []byte) Op {
	return Op{Kind: OpRead, Buf: buf}
}

// WriteOp returns an Op sending buf.
func WriteOp(buf []byte) Op {
	return Op{Kind: OpWrite, Buf: buf}
}

// Transaction runs ops against addr as a single bus transaction.
//
// START and the address are sent before the first operation. Data of
// adjacent operations in the same direction follows back to back; a change of
// direction makes the hardware send a repeated START and the address again.
// STOP follows the last byte of the last operation, and if that operation is
// a read its final byte is not acknowledged.
//
// Unlike WriteRead, no repeated START is forced between operations.
func (d *Dev) Transaction(addr uint16, ops []Op) error {
	if err := validateOps(addr, ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	d.setup(addr)
	for i, op := range ops {
		lastOp := i == len(ops)-1
		var err error
		if op.Kind == OpRead {
			err = d.readN(op.Buf, false, lastOp)
		} else {
			err = d.writeAll(op.Buf, lastOp)
		}
		if err != nil {
			return d.check(addr, err)
		}
	}
	return nil
}

// Tx implements i2c.Bus and drivers.I2C: w is written, then r is read, in
// one transaction. Either may be empty but not both.
func (d *Dev) Tx(addr uint16, w, r []byte) error {
	switch {
	case len(r) == 0:
		return d.Write(addr, w)
	case len(w) == 0:
		return d.Read(addr, r)
	default:
		return d.WriteRead(addr, w, r)
	}
}

// Probe reports whether a target acknowledges addr, by reading one byte.
func (d *Dev) Probe(addr uint16) (bool, error) {
	var b [1]byte
	err := d.Read(addr, b[:])
	var abort *AbortError
	if errors.As(err, &abort) && abort.Reason&Abort7bAddrNoAck != 0 {
		return false, nil
	}
	return err == nil, err
}

// Scan probes every non-reserved 7-bit address and returns those that
// answered, in increasing order.
func (d *Dev) Scan() ([]uint16, error) {
	var found []uint16
	for addr := uint16(0); addr < 0x80; addr++ {
		if Reserved(addr) {
			continue
		}
		ok, err := d.Probe(addr)
		if err != nil {
			return found, err
		}
		if ok {
			found = append(found, addr)
		}
	}
	return found, nil
}

// writeAll sends w, the last byte carrying STOP if stop is set.
func (d *Dev) writeAll(w []byte, stop bool) error {
	last := len(w) - 1
	for i, b := range w {
		if err := d.writeOne(b, stop && i == last); err != nil {
			return err
		}
	}
	return nil
}

// check logs aborts and passes err through.
func (d *Dev) check(addr uint16, err error) error {
	var abort *AbortError
	if errors.As(err, &abort) {
		d.log.V(1).Info("transaction aborted", "bus", d.name, "addr", fmt.Sprintf("%#02x", addr), "reason", abort.Reason.String())
	} else if err != nil {
		d.log.Error(err, "transaction failed", "bus", d.name, "addr", fmt.Sprintf("%#02x", addr))
	}
	return err
}

// peeker reads one byte ahead of its consumer.
type peeker struct {
	src  io.ByteReader
	b    byte
	full bool
	done bool
	err  error // first error from src other than io.EOF
}

func (p *peeker) peek() (byte, bool) {
	if !p.full && !p.done {
		b, err := p.src.ReadByte()
		if err != nil {
			p.done = true
			if err != io.EOF {
				p.err = err
			}
		} else {
			p.b, p.full = b, true
		}
	}
	return p.b, p.full
}

func (p *peeker) next() (byte, bool) {
	b, ok := p.peek()
	p.full = false
	return b, ok
}

func boolPtr(v bool) *bool {
	return &v
}

var _ conn.Resource = &Dev{}
var _ drivers.I2C = &Dev{}
