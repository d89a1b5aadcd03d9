// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dwi2ctest simulates a DesignWare I²C block and the targets on its
// bus, for testing code built on dwi2c without hardware.
//
// The simulated bus is instantaneous but the TX FIFO is not: a queued
// command executes only when a status register is polled, optionally after a
// number of polls set by Latency. This exercises every wait of the driver.
package dwi2ctest

import (
	"fmt"
	"sync"

	"github.com/GermanBionicSystems/dwi2c"
)

// EventKind is the type of a bus Event.
type EventKind int

const (
	Start EventKind = iota
	Restart
	Write
	Read
	Stop
)

func (k EventKind) String() string {
	switch k {
	case Start:
		return "START"
	case Restart:
		return "RESTART"
	case Write:
		return "WRITE"
	case Read:
		return "READ"
	case Stop:
		return "STOP"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one condition or byte seen on the simulated bus.
type Event struct {
	Kind EventKind
	// Addr and Read are set for Start and Restart.
	Addr uint16
	Read bool
	// Data is set for Write and Read.
	Data byte
	// Ack is the target's acknowledge for Start, Restart and Write, and the
	// controller's for Read.
	Ack bool
}

func (e Event) String() string {
	switch e.Kind {
	case Start, Restart:
		return fmt.Sprintf("%s %#02x read=%t ack=%t", e.Kind, e.Addr, e.Read, e.Ack)
	case Write, Read:
		return fmt.Sprintf("%s %#02x ack=%t", e.Kind, e.Data, e.Ack)
	}
	return e.Kind.String()
}

// Target is a device on the simulated bus.
type Target interface {
	// Addressed is called after START or repeated START selected the target
	// and returns its acknowledge.
	Addressed(read bool) bool
	// WriteByte receives a byte from the controller and returns the
	// acknowledge.
	WriteByte(b byte) bool
	// ReadByte supplies a byte to the controller.
	ReadByte() byte
	// Stop is called on STOP, or when an abort ends the transaction.
	Stop()
}

// Peripheral is a simulated register block. It implements dwi2c.Registers
// and is safe for concurrent use.
type Peripheral struct {
	// Targets maps 7-bit addresses to the devices answering them.
	Targets map[uint16]Target
	// Latency is the number of status polls a queued command waits before it
	// executes.
	Latency int
	// StopDelay is the number of polls between a STOP being issued and
	// STOP_DET asserting. New sets it to DefaultStopDelay.
	StopDelay int
	// Stalled freezes the bus, like a target holding SCL low.
	Stalled bool

	mu       sync.Mutex
	regs     map[dwi2c.Offset]uint32
	enabled  bool
	tx       []uint32
	rx       []byte
	abort    uint32
	stopDet  bool
	stopIn   int
	active   bool
	reading  bool
	target   Target
	wait     int
	executed int
	failAt   int
	failWith dwi2c.AbortReason

	events  []Event
	pushed  []uint32
	ignored int
	clears  int
}

// DefaultStopDelay is long enough that STOP_DET asserts after TX_EMPTY, as
// on hardware where the STOP condition takes a fraction of an SCL period.
const DefaultStopDelay = 3

// New returns a Peripheral with the given targets, out of reset and
// disabled.
func New(targets map[uint16]Target) *Peripheral {
	if targets == nil {
		targets = map[uint16]Target{}
	}
	return &Peripheral{
		Targets:   targets,
		StopDelay: DefaultStopDelay,
		regs:      map[dwi2c.Offset]uint32{},
		failAt:    -1,
	}
}

// AbortAfter makes the command following the first n data commands abort
// with reason, as if the hardware had detected it.
func (p *Peripheral) AbortAfter(n int, reason dwi2c.AbortReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failAt = p.executed + n
	p.failWith = reason
}

// Events returns a copy of the bus trace.
func (p *Peripheral) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Pushed returns every IC_DATA_CMD value accepted in the TX FIFO.
func (p *Peripheral) Pushed() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint32(nil), p.pushed...)
}

// Reg returns the last value written to a configuration register, without
// the side effects of Load.
func (p *Peripheral) Reg(off dwi2c.Offset) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regs[off]
}

// Enabled reports whether IC_ENABLE is set.
func (p *Peripheral) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// IgnoredWrites counts writes the hardware dropped: configuration registers
// written while enabled, and commands pushed while disabled.
func (p *Peripheral) IgnoredWrites() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ignored
}

// PendingAbort returns the abort source not yet cleared through
// IC_CLR_TX_ABRT.
func (p *Peripheral) PendingAbort() dwi2c.AbortReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return dwi2c.AbortReason(p.abort)
}

// Interrupts returns IC_RAW_INTR_STAT without letting the bus progress.
func (p *Peripheral) Interrupts() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intr()
}

// StopInFlight reports that a STOP was issued and STOP_DET has not asserted
// yet.
func (p *Peripheral) StopInFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopIn != 0
}

// AbortClears counts the reads of IC_CLR_TX_ABRT.
func (p *Peripheral) AbortClears() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}

// Load implements dwi2c.Registers.
func (p *Peripheral) Load(off dwi2c.Offset) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch off {
	case dwi2c.RegDataCmd:
		if len(p.rx) == 0 {
			return 0
		}
		b := p.rx[0]
		p.rx = p.rx[1:]
		return uint32(b)
	case dwi2c.RegRawIntrStat:
		p.tick()
		return p.intr()
	case dwi2c.RegStatus:
		p.tick()
		var v uint32
		if p.active || len(p.tx) != 0 {
			v |= dwi2c.StatusActivity
		}
		if len(p.tx) < dwi2c.FIFODepth {
			v |= dwi2c.StatusTFNF
		}
		if len(p.tx) == 0 {
			v |= dwi2c.StatusTFE
		}
		if len(p.rx) != 0 {
			v |= dwi2c.StatusRFNE
		}
		if len(p.rx) == dwi2c.FIFODepth {
			v |= dwi2c.StatusRFF
		}
		return v
	case dwi2c.RegTxFLR:
		return uint32(len(p.tx))
	case dwi2c.RegRxFLR:
		p.tick()
		return uint32(len(p.rx))
	case dwi2c.RegTxAbrtSource:
		p.tick()
		return p.abort
	case dwi2c.RegClrTxAbrt:
		p.abort = 0
		p.clears++
		return 0
	case dwi2c.RegClrStopDet:
		p.stopDet = false
		return 0
	case dwi2c.RegEnable:
		if p.enabled {
			return 1
		}
		return 0
	case dwi2c.RegCompParam1:
		return (dwi2c.FIFODepth-1)<<16 | (dwi2c.FIFODepth-1)<<8
	case dwi2c.RegCompType:
		return dwi2c.CompType
	}
	return p.regs[off]
}

// Store implements dwi2c.Registers.
func (p *Peripheral) Store(off dwi2c.Offset, v uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch off {
	case dwi2c.RegEnable:
		p.enabled = v&1 != 0
		if !p.enabled {
			p.disable()
		}
	case dwi2c.RegDataCmd:
		switch {
		case !p.enabled:
			p.ignored++
		case p.abort != 0:
			// The FIFO stays flushed until the abort is cleared.
			p.abort += 1 << 23
		case len(p.tx) >= dwi2c.FIFODepth:
		default:
			p.tx = append(p.tx, v)
			p.pushed = append(p.pushed, v)
		}
	case dwi2c.RegCon, dwi2c.RegTar, dwi2c.RegSSSCLHcnt, dwi2c.RegSSSCLLcnt,
		dwi2c.RegFSSCLHcnt, dwi2c.RegFSSCLLcnt, dwi2c.RegRxTL, dwi2c.RegTxTL,
		dwi2c.RegSDAHold, dwi2c.RegFSSpkLen:
		if p.enabled {
			p.ignored++
			return
		}
		p.regs[off] = v
	default:
		p.regs[off] = v
	}
}

func (p *Peripheral) intr() uint32 {
	var v uint32
	if len(p.tx) == 0 {
		v |= dwi2c.IntrTxEmpty
	}
	if p.abort != 0 {
		v |= dwi2c.IntrTxAbrt
	}
	if p.active {
		v |= dwi2c.IntrActivity
	}
	if p.stopDet {
		v |= dwi2c.IntrStopDet
	}
	return v
}

// disable flushes both FIFOs and the abort source. A transaction in
// progress is ended with a STOP, and a STOP in flight completes, so
// STOP_DET is left set for the driver to clear.
func (p *Peripheral) disable() {
	p.tx = nil
	p.rx = nil
	p.wait = 0
	p.abort = 0
	p.stop()
	if p.stopIn != 0 {
		p.stopIn = 0
		p.stopDet = true
	}
}

// tick lets the bus make progress by one step.
func (p *Peripheral) tick() {
	if p.Stalled {
		return
	}
	if p.stopIn != 0 {
		if p.stopIn--; p.stopIn == 0 {
			p.stopDet = true
		}
	}
	if len(p.tx) == 0 {
		return
	}
	if p.wait < p.Latency {
		p.wait++
		return
	}
	p.wait = 0
	cmd := p.tx[0]
	p.tx = p.tx[1:]
	p.execute(cmd)
}

func (p *Peripheral) execute(cmd uint32) {
	read := cmd&dwi2c.DataCmdRead != 0
	if p.failAt >= 0 && p.executed >= p.failAt {
		p.failAt = -1
		p.abortNow(p.failWith)
		return
	}
	switch {
	case !p.active:
		if !p.address(Start, read) {
			return
		}
	case cmd&dwi2c.DataCmdRestart != 0 || read != p.reading:
		if p.regs[dwi2c.RegCon]&dwi2c.ConRestartEn == 0 {
			p.stop()
			if !p.address(Start, read) {
				return
			}
		} else if !p.address(Restart, read) {
			return
		}
	}
	p.executed++
	stop := cmd&dwi2c.DataCmdStop != 0
	if read {
		b := p.target.ReadByte()
		if len(p.rx) < dwi2c.FIFODepth {
			p.rx = append(p.rx, b)
		}
		p.events = append(p.events, Event{Kind: Read, Data: b, Ack: !stop})
	} else {
		b := byte(cmd & dwi2c.DataCmdDatMask)
		ack := p.target.WriteByte(b)
		p.events = append(p.events, Event{Kind: Write, Data: b, Ack: ack})
		if !ack {
			p.abortNow(dwi2c.AbortTxDataNoAck)
			return
		}
	}
	if stop {
		p.stop()
	}
}

// address emits START or RESTART with the target address and returns
// whether a target acknowledged it.
func (p *Peripheral) address(kind EventKind, read bool) bool {
	addr := uint16(p.regs[dwi2c.RegTar] & 0x3ff)
	t := p.Targets[addr]
	ack := t != nil && t.Addressed(read)
	p.events = append(p.events, Event{Kind: kind, Addr: addr, Read: read, Ack: ack})
	p.active = true
	p.reading = read
	p.target = t
	if !ack {
		p.abortNow(dwi2c.Abort7bAddrNoAck)
	}
	return ack
}

// abortNow ends the transaction the way the hardware does: STOP, both FIFOs
// flushed, reason latched until IC_CLR_TX_ABRT is read.
func (p *Peripheral) abortNow(reason dwi2c.AbortReason) {
	p.abort = uint32(reason) | uint32(len(p.tx))<<23
	p.tx = nil
	p.rx = nil
	p.wait = 0
	if !p.active {
		p.stopDet = true
		return
	}
	p.stop()
}

// stop issues a STOP if a transaction is in progress. STOP_DET asserts
// after StopDelay polls.
func (p *Peripheral) stop() {
	if !p.active {
		return
	}
	p.events = append(p.events, Event{Kind: Stop})
	if p.target != nil {
		p.target.Stop()
	}
	p.active = false
	p.target = nil
	if p.StopDelay <= 0 {
		p.stopDet = true
		return
	}
	p.stopIn = p.StopDelay
}

var _ dwi2c.Registers = &Peripheral{}
