// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dwi2c_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/GermanBionicSystems/dwi2c"
	"github.com/GermanBionicSystems/dwi2c/dwi2ctest"
	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

type ev = dwi2ctest.Event

func start(addr uint16, read bool) ev   { return ev{Kind: dwi2ctest.Start, Addr: addr, Read: read, Ack: true} }
func restart(addr uint16, read bool) ev { return ev{Kind: dwi2ctest.Restart, Addr: addr, Read: read, Ack: true} }
func wr(b byte) ev                      { return ev{Kind: dwi2ctest.Write, Data: b, Ack: true} }
func rd(b byte, ack bool) ev            { return ev{Kind: dwi2ctest.Read, Data: b, Ack: ack} }

var stop = ev{Kind: dwi2ctest.Stop}

func newDev(t *testing.T, targets map[uint16]dwi2ctest.Target) (*dwi2c.Dev, *dwi2ctest.Peripheral) {
	p := dwi2ctest.New(targets)
	opts := dwi2c.DefaultOpts
	opts.Logger = testr.NewWithOptions(t, testr.Options{Verbosity: 1})
	d, err := dwi2c.New(p, &opts)
	if err != nil {
		t.Fatal(err)
	}
	return d, p
}

func eeprom(data map[byte]byte) *dwi2ctest.Memory {
	m := &dwi2ctest.Memory{}
	for k, v := range data {
		m.Data[k] = v
	}
	return m
}

func TestNew(t *testing.T) {
	d, p := newDev(t, nil)
	if !p.Enabled() {
		t.Fatal("block left disabled")
	}
	if n := p.IgnoredWrites(); n != 0 {
		t.Fatalf("%d configuration writes while enabled", n)
	}
	want := dwi2c.ConSpeedFast | dwi2c.ConMasterMode | dwi2c.ConSlaveDisable | dwi2c.ConRestartEn | dwi2c.ConTxEmptyCtrl
	if got := p.Reg(dwi2c.RegCon); got != want {
		t.Fatalf("IC_CON = %#x, want %#x", got, want)
	}
	tm := d.Timing()
	if diff := cmp.Diff(dwi2c.Timing{HighCount: 126, LowCount: 187, SpikeLen: 11, SDAHold: 38}, tm); diff != "" {
		t.Fatalf("timing mismatch (-want +got):\n%s", diff)
	}
	regs := map[dwi2c.Offset]uint32{
		dwi2c.RegFSSCLHcnt: 126,
		dwi2c.RegFSSCLLcnt: 187,
		dwi2c.RegFSSpkLen:  11,
		dwi2c.RegSDAHold:   38,
		dwi2c.RegTxTL:      0,
		dwi2c.RegRxTL:      0,
	}
	for off, v := range regs {
		if got := p.Reg(off); got != v {
			t.Errorf("register %#x = %d, want %d", uint32(off), got, v)
		}
	}
	if s := d.String(); s != "I2C0{400kHz}" {
		t.Fatal(s)
	}
}

func TestNew_keepsRxHold(t *testing.T) {
	p := dwi2ctest.New(nil)
	p.Store(dwi2c.RegSDAHold, 5<<16|1)
	if _, err := dwi2c.New(p, nil); err != nil {
		t.Fatal(err)
	}
	if got := p.Reg(dwi2c.RegSDAHold); got != 5<<16|38 {
		t.Fatalf("IC_SDA_HOLD = %#x", got)
	}
}

func TestNew_idempotent(t *testing.T) {
	offsets := []dwi2c.Offset{
		dwi2c.RegCon, dwi2c.RegFSSCLHcnt, dwi2c.RegFSSCLLcnt, dwi2c.RegFSSpkLen,
		dwi2c.RegSDAHold, dwi2c.RegTxTL, dwi2c.RegRxTL,
	}
	snapshot := func(p *dwi2ctest.Peripheral) map[dwi2c.Offset]uint32 {
		m := map[dwi2c.Offset]uint32{dwi2c.RegEnable: p.Load(dwi2c.RegEnable)}
		for _, off := range offsets {
			m[off] = p.Reg(off)
		}
		return m
	}
	p := dwi2ctest.New(nil)
	if _, err := dwi2c.New(p, nil); err != nil {
		t.Fatal(err)
	}
	first := snapshot(p)
	if _, err := dwi2c.New(p, nil); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, snapshot(p)); diff != "" {
		t.Fatalf("second init changed registers (-first +second):\n%s", diff)
	}
}

// storeLog records the order of register writes.
type storeLog struct {
	dwi2c.Registers
	offs []dwi2c.Offset
	vals []uint32
}

func (s *storeLog) Store(off dwi2c.Offset, v uint32) {
	s.offs = append(s.offs, off)
	s.vals = append(s.vals, v)
	s.Registers.Store(off, v)
}

func TestNew_order(t *testing.T) {
	s := &storeLog{Registers: dwi2ctest.New(nil)}
	if _, err := dwi2c.New(s, nil); err != nil {
		t.Fatal(err)
	}
	n := len(s.offs)
	if n < 3 || s.offs[0] != dwi2c.RegEnable || s.vals[0] != 0 || s.offs[n-1] != dwi2c.RegEnable || s.vals[n-1] != 1 {
		t.Fatalf("configuration not bracketed by disable and enable: %#x", s.offs)
	}
	for _, off := range s.offs[1 : n-1] {
		if off == dwi2c.RegEnable || off == dwi2c.RegDataCmd {
			t.Fatalf("unexpected write to %#x during configuration", uint32(off))
		}
	}
}

func TestNew_invalidTiming(t *testing.T) {
	opts := dwi2c.DefaultOpts
	opts.Frequency = physic.MegaHertz
	opts.SystemClock = 12 * physic.MegaHertz
	p := dwi2ctest.New(nil)
	d, err := dwi2c.New(p, &opts)
	if !errors.Is(err, dwi2c.ErrInvalidTiming) {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatal("expected no Dev")
	}
	if p.Enabled() {
		t.Fatal("block touched")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("MustNew didn't panic")
		}
	}()
	dwi2c.MustNew(p, &opts)
}

func TestDev_SetSpeed(t *testing.T) {
	d, p := newDev(t, nil)
	if err := d.SetSpeed(100 * physic.KiloHertz); err != nil {
		t.Fatal(err)
	}
	if got := p.Reg(dwi2c.RegFSSCLLcnt); got != 750 {
		t.Fatalf("lcnt = %d", got)
	}
	if err := d.SetSpeed(2 * physic.MegaHertz); !errors.Is(err, dwi2c.ErrInvalidFrequency) {
		t.Fatal(err)
	}
	if got := d.Timing().LowCount; got != 750 {
		t.Fatalf("failed SetSpeed changed timing: lcnt=%d", got)
	}
	if s := d.String(); s != "I2C0{100kHz}" {
		t.Fatal(s)
	}
	if !p.Enabled() || p.IgnoredWrites() != 0 {
		t.Fatal("reconfiguration must happen while disabled")
	}
}

func TestDev_Write(t *testing.T) {
	m := &dwi2ctest.Memory{}
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x50: m})
	if err := d.Write(0x50, []byte{0x01, 0x02}); err != nil {
		t.Fatal(err)
	}
	if got := p.Reg(dwi2c.RegTar); got != 0x50 {
		t.Fatalf("IC_TAR = %#x", got)
	}
	if diff := cmp.Diff([]uint32{0x01, 0x02 | dwi2c.DataCmdStop}, p.Pushed()); diff != "" {
		t.Fatalf("pushes (-want +got):\n%s", diff)
	}
	want := []ev{start(0x50, false), wr(0x01), wr(0x02), stop}
	if diff := cmp.Diff(want, p.Events()); diff != "" {
		t.Fatalf("bus (-want +got):\n%s", diff)
	}
	if m.Data[0x01] != 0x02 {
		t.Fatalf("memory not written: %#x", m.Data[0x01])
	}
}

func TestDev_Read(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x50: eeprom(map[byte]byte{0: 1, 1: 2, 2: 3})})
	r := make([]byte, 3)
	if err := d.Read(0x50, r); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3}, r); diff != "" {
		t.Fatal(diff)
	}
	pushes := []uint32{
		dwi2c.DataCmdRead | dwi2c.DataCmdRestart,
		dwi2c.DataCmdRead,
		dwi2c.DataCmdRead | dwi2c.DataCmdStop,
	}
	if diff := cmp.Diff(pushes, p.Pushed()); diff != "" {
		t.Fatalf("pushes (-want +got):\n%s", diff)
	}
	want := []ev{start(0x50, true), rd(1, true), rd(2, true), rd(3, false), stop}
	if diff := cmp.Diff(want, p.Events()); diff != "" {
		t.Fatalf("bus (-want +got):\n%s", diff)
	}
}

func TestDev_Read_abort(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x50: eeprom(map[byte]byte{0: 1, 1: 2, 2: 3})})
	p.AbortAfter(2, dwi2c.AbortArbLost)
	r := []byte{0xEE, 0xEE, 0xEE}
	err := d.Read(0x50, r)
	var abort *dwi2c.AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("got %v, want AbortError", err)
	}
	if !abort.ArbitrationLost() {
		t.Fatalf("reason %s", abort.Reason)
	}
	if r[2] != 0xEE {
		t.Fatalf("third byte written after abort: %#x", r[2])
	}
	if p.PendingAbort() != 0 || p.AbortClears() != 1 {
		t.Fatalf("abort not cleared exactly once: pending=%s clears=%d", p.PendingAbort(), p.AbortClears())
	}
}

func TestDev_WriteRead(t *testing.T) {
	for latency := 0; latency < 5; latency++ {
		d, p := newDev(t, map[uint16]dwi2ctest.Target{0x50: eeprom(map[byte]byte{0x10: 0xAA, 0x11: 0xBB})})
		p.Latency = latency
		r := make([]byte, 2)
		if err := d.WriteRead(0x50, []byte{0x10}, r); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]byte{0xAA, 0xBB}, r); diff != "" {
			t.Fatalf("latency %d: %s", latency, diff)
		}
		pushes := []uint32{0x10, dwi2c.DataCmdRead | dwi2c.DataCmdRestart, dwi2c.DataCmdRead | dwi2c.DataCmdStop}
		if diff := cmp.Diff(pushes, p.Pushed()); diff != "" {
			t.Fatalf("latency %d: pushes (-want +got):\n%s", latency, diff)
		}
		want := []ev{start(0x50, false), wr(0x10), restart(0x50, true), rd(0xAA, true), rd(0xBB, false), stop}
		if diff := cmp.Diff(want, p.Events()); diff != "" {
			t.Fatalf("latency %d: bus (-want +got):\n%s", latency, diff)
		}
	}
}

func TestDev_addressNack(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x50: &dwi2ctest.Memory{}})
	err := d.Write(0x51, []byte{0x01, 0x02})
	var abort *dwi2c.AbortError
	if !errors.As(err, &abort) || !abort.NoAck() || abort.Reason&dwi2c.Abort7bAddrNoAck == 0 {
		t.Fatalf("got %v", err)
	}
	if p.PendingAbort() != 0 {
		t.Fatalf("abort left pending: %s", p.PendingAbort())
	}
	nack := ev{Kind: dwi2ctest.Start, Addr: 0x51}
	if diff := cmp.Diff([]ev{nack, stop}, p.Events()); diff != "" {
		t.Fatalf("bus (-want +got):\n%s", diff)
	}
	// The bus recovers.
	if err := d.Write(0x50, []byte{0x00, 0x42}); err != nil {
		t.Fatal(err)
	}
}

func TestDev_dataNack(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x30: &dwi2ctest.Limited{Accept: 1}})
	err := d.Write(0x30, []byte{1, 2, 3})
	var abort *dwi2c.AbortError
	if !errors.As(err, &abort) || abort.Reason&dwi2c.AbortTxDataNoAck == 0 {
		t.Fatalf("got %v", err)
	}
	want := []ev{start(0x30, false), wr(1), {Kind: dwi2ctest.Write, Data: 2}, stop}
	if diff := cmp.Diff(want, p.Events()); diff != "" {
		t.Fatalf("bus (-want +got):\n%s", diff)
	}
}

func TestDev_staleStopDet(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x50: eeprom(map[byte]byte{0: 1, 1: 2})})
	if err := d.Read(0x50, make([]byte, 2)); err != nil {
		t.Fatal(err)
	}
	// A read doesn't wait for its STOP_DET; let it assert and stay set.
	for p.StopInFlight() {
		p.Load(dwi2c.RegRawIntrStat)
	}
	if p.Interrupts()&dwi2c.IntrStopDet == 0 {
		t.Fatal("read left no STOP_DET behind")
	}

	if err := d.Write(0x50, []byte{0x00, 0x42}); err != nil {
		t.Fatal(err)
	}
	if p.StopInFlight() {
		t.Fatal("Write returned before its own STOP was detected")
	}
	if p.Interrupts()&dwi2c.IntrStopDet != 0 {
		t.Fatal("Write left STOP_DET set")
	}
	want := []ev{
		start(0x50, true), rd(1, true), rd(2, false), stop,
		start(0x50, false), wr(0x00), wr(0x42), stop,
	}
	if diff := cmp.Diff(want, p.Events()); diff != "" {
		t.Fatalf("bus (-want +got):\n%s", diff)
	}
}

func TestDev_invalidArgs(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x50: &dwi2ctest.Memory{}})
	data := []struct {
		name string
		fn   func() error
		want error
	}{
		{"write empty", func() error { return d.Write(0x50, nil) }, dwi2c.ErrInvalidWriteBufferLength},
		{"read empty", func() error { return d.Read(0x50, nil) }, dwi2c.ErrInvalidReadBufferLength},
		{"write read empty read", func() error { return d.WriteRead(0x50, []byte{1}, nil) }, dwi2c.ErrInvalidReadBufferLength},
		{"write read both empty", func() error { return d.WriteRead(0x80, nil, nil) }, dwi2c.ErrInvalidWriteBufferLength},
		{"out of range", func() error { return d.Write(0x80, []byte{1}) }, dwi2c.ErrAddressOutOfRange},
		{"reserved", func() error { return d.Read(0x7b, []byte{0}) }, dwi2c.ErrAddressReserved},
		{"iter empty", func() error { return d.WriteIter(0x50, bytes.NewReader(nil)) }, dwi2c.ErrInvalidWriteBufferLength},
		{"iter reserved", func() error { return d.WriteIter(0x03, bytes.NewReader([]byte{1})) }, dwi2c.ErrAddressReserved},
		{"tx nothing", func() error { return d.Tx(0x50, nil, nil) }, dwi2c.ErrInvalidWriteBufferLength},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			if err := line.fn(); !errors.Is(err, line.want) {
				t.Fatalf("got %v, want %v", err, line.want)
			}
		})
	}
	if n := len(p.Events()) + len(p.Pushed()); n != 0 {
		t.Fatalf("invalid arguments reached the bus: %v", p.Events())
	}
	if got := p.Reg(dwi2c.RegTar); got != 0 {
		t.Fatalf("IC_TAR programmed: %#x", got)
	}
}

func TestDev_echoRoundTrip(t *testing.T) {
	d, _ := newDev(t, map[uint16]dwi2ctest.Target{0x42: &dwi2ctest.Echo{}})
	for n := 1; n <= 2*dwi2c.FIFODepth; n++ {
		w := make([]byte, n)
		for i := range w {
			w[i] = byte(n*7 + i)
		}
		if err := d.Write(0x42, w); err != nil {
			t.Fatal(err)
		}
		r := make([]byte, n)
		if err := d.Read(0x42, r); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(w, r); diff != "" {
			t.Fatalf("n=%d (-write +read):\n%s", n, diff)
		}
	}
}

// failing yields its bytes then err.
type failing struct {
	b   []byte
	err error
}

func (f *failing) ReadByte() (byte, error) {
	if len(f.b) == 0 {
		return 0, f.err
	}
	c := f.b[0]
	f.b = f.b[1:]
	return c, nil
}

func TestDev_WriteIter(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x50: &dwi2ctest.Memory{}})
	if err := d.WriteIter(0x50, bytes.NewReader([]byte{0x00, 0x11, 0x22})); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{0x00, 0x11, 0x22 | dwi2c.DataCmdStop}, p.Pushed()); diff != "" {
		t.Fatalf("pushes (-want +got):\n%s", diff)
	}
	want := []ev{start(0x50, false), wr(0x00), wr(0x11), wr(0x22), stop}
	if diff := cmp.Diff(want, p.Events()); diff != "" {
		t.Fatalf("bus (-want +got):\n%s", diff)
	}
}

func TestDev_WriteIter_sourceError(t *testing.T) {
	boom := errors.New("boom")

	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x50: &dwi2ctest.Memory{}})
	if err := d.WriteIter(0x50, &failing{b: []byte{1, 2}, err: boom}); err != boom {
		t.Fatalf("got %v", err)
	}
	want := []ev{start(0x50, false), wr(1), wr(2), stop}
	if diff := cmp.Diff(want, p.Events()); diff != "" {
		t.Fatalf("bus (-want +got):\n%s", diff)
	}

	d, p = newDev(t, map[uint16]dwi2ctest.Target{0x50: &dwi2ctest.Memory{}})
	if err := d.WriteIter(0x50, &failing{err: boom}); err != boom {
		t.Fatalf("got %v", err)
	}
	if len(p.Events()) != 0 {
		t.Fatalf("bus used: %v", p.Events())
	}

	d, p = newDev(t, map[uint16]dwi2ctest.Target{0x50: &dwi2ctest.Memory{}})
	r := []byte{0xEE}
	if err := d.WriteIterRead(0x50, &failing{b: []byte{1}, err: boom}, r); err != boom {
		t.Fatalf("got %v", err)
	}
	if r[0] != 0xEE {
		t.Fatal("read buffer modified")
	}
	if diff := cmp.Diff([]ev{start(0x50, false), wr(1), stop}, p.Events()); diff != "" {
		t.Fatalf("bus (-want +got):\n%s", diff)
	}
}

func TestDev_WriteIterRead(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x50: eeprom(map[byte]byte{0x10: 0xAA, 0x11: 0xBB})})
	r := make([]byte, 2)
	if err := d.WriteIterRead(0x50, bytes.NewReader([]byte{0x10}), r); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0xAA, 0xBB}, r); diff != "" {
		t.Fatal(diff)
	}
	want := []ev{start(0x50, false), wr(0x10), restart(0x50, true), rd(0xAA, true), rd(0xBB, false), stop}
	if diff := cmp.Diff(want, p.Events()); diff != "" {
		t.Fatalf("bus (-want +got):\n%s", diff)
	}
	if err := d.WriteIterRead(0x50, bytes.NewReader([]byte{0x10}), nil); !errors.Is(err, dwi2c.ErrInvalidReadBufferLength) {
		t.Fatal(err)
	}
}

func TestDev_Transaction(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x42: &dwi2ctest.Echo{}})
	r := make([]byte, 2)
	ops := []dwi2c.Op{
		dwi2c.WriteOp([]byte{0x00}),
		dwi2c.WriteOp([]byte{0x01, 0x02}),
		dwi2c.ReadOp(r),
	}
	if err := d.Transaction(0x42, ops); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x00, 0x01}, r); diff != "" {
		t.Fatal(diff)
	}
	for _, c := range p.Pushed() {
		if c&dwi2c.DataCmdRestart != 0 {
			t.Fatalf("forced restart in %#x", c)
		}
	}
	want := []ev{
		start(0x42, false), wr(0x00), wr(0x01), wr(0x02),
		restart(0x42, true), rd(0x00, true), rd(0x01, false),
		stop,
	}
	if diff := cmp.Diff(want, p.Events()); diff != "" {
		t.Fatalf("bus (-want +got):\n%s", diff)
	}
}

func TestDev_Transaction_writeRead(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x20: &dwi2ctest.Echo{}})
	r := make([]byte, 2)
	if err := d.Transaction(0x20, []dwi2c.Op{dwi2c.WriteOp([]byte{0xAA}), dwi2c.ReadOp(r)}); err != nil {
		t.Fatal(err)
	}
	if got := p.Reg(dwi2c.RegTar); got != 0x20 {
		t.Fatalf("IC_TAR = %#x", got)
	}
	pushes := []uint32{0xAA, dwi2c.DataCmdRead, dwi2c.DataCmdRead | dwi2c.DataCmdStop}
	if diff := cmp.Diff(pushes, p.Pushed()); diff != "" {
		t.Fatalf("pushes (-want +got):\n%s", diff)
	}
	want := []ev{start(0x20, false), wr(0xAA), restart(0x20, true), rd(0xAA, true), rd(0xFF, false), stop}
	if diff := cmp.Diff(want, p.Events()); diff != "" {
		t.Fatalf("bus (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{0xAA, 0xFF}, r); diff != "" {
		t.Fatal(diff)
	}
}

func TestDev_Transaction_readThenWrite(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x50: eeprom(map[byte]byte{0: 9})})
	r := make([]byte, 1)
	if err := d.Transaction(0x50, []dwi2c.Op{dwi2c.ReadOp(r), dwi2c.WriteOp([]byte{0x05})}); err != nil {
		t.Fatal(err)
	}
	want := []ev{start(0x50, true), rd(9, true), restart(0x50, false), wr(0x05), stop}
	if diff := cmp.Diff(want, p.Events()); diff != "" {
		t.Fatalf("bus (-want +got):\n%s", diff)
	}
}

func TestDev_Transaction_abort(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x30: &dwi2ctest.Limited{Accept: 1}})
	r := []byte{0xEE}
	ops := []dwi2c.Op{dwi2c.WriteOp([]byte{1}), dwi2c.WriteOp([]byte{2}), dwi2c.ReadOp(r)}
	err := d.Transaction(0x30, ops)
	var abort *dwi2c.AbortError
	if !errors.As(err, &abort) || !abort.NoAck() {
		t.Fatalf("got %v", err)
	}
	want := []ev{start(0x30, false), wr(1), {Kind: dwi2ctest.Write, Data: 2}, stop}
	if diff := cmp.Diff(want, p.Events()); diff != "" {
		t.Fatalf("bus (-want +got):\n%s", diff)
	}
	if r[0] != 0xEE {
		t.Fatal("read operation ran after the abort")
	}
}

func TestDev_Transaction_empty(t *testing.T) {
	d, p := newDev(t, nil)
	if err := d.Transaction(0x50, nil); err != nil {
		t.Fatal(err)
	}
	if err := d.Transaction(0x78, nil); !errors.Is(err, dwi2c.ErrAddressReserved) {
		t.Fatal(err)
	}
	if len(p.Events()) != 0 || p.Reg(dwi2c.RegTar) != 0 {
		t.Fatal("empty transaction touched the bus")
	}
}

func TestDev_Tx(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x50: &dwi2ctest.Memory{}})
	var bus drivers.I2C = d
	if err := bus.Tx(0x50, []byte{0x20, 'o', 'k'}, nil); err != nil {
		t.Fatal(err)
	}
	r := make([]byte, 2)
	if err := bus.Tx(0x50, []byte{0x20}, r); err != nil {
		t.Fatal(err)
	}
	if string(r) != "ok" {
		t.Fatalf("%q", r)
	}
	// The pointer was left after "ok".
	if err := bus.Tx(0x50, nil, r[:1]); err != nil {
		t.Fatal(err)
	}
	if r[0] != 0 {
		t.Fatalf("%#x", r[0])
	}
	if n := len(p.Events()); n == 0 {
		t.Fatal("no bus activity")
	}
}

func TestDev_ProbeScan(t *testing.T) {
	d, _ := newDev(t, map[uint16]dwi2ctest.Target{
		0x20: &dwi2ctest.Memory{},
		0x50: &dwi2ctest.Memory{},
		0x77: &dwi2ctest.Echo{},
	})
	ok, err := d.Probe(0x20)
	if err != nil || !ok {
		t.Fatalf("Probe(0x20) = %t, %v", ok, err)
	}
	ok, err = d.Probe(0x21)
	if err != nil || ok {
		t.Fatalf("Probe(0x21) = %t, %v", ok, err)
	}
	if _, err = d.Probe(0x00); !errors.Is(err, dwi2c.ErrAddressReserved) {
		t.Fatal(err)
	}
	found, err := d.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint16{0x20, 0x50, 0x77}, found); diff != "" {
		t.Fatal(diff)
	}
}

func TestDev_Halt(t *testing.T) {
	d, p := newDev(t, map[uint16]dwi2ctest.Target{0x50: &dwi2ctest.Memory{}})
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if p.Enabled() {
		t.Fatal("still enabled")
	}
	if err := d.Write(0x50, []byte{0}); err != nil {
		t.Fatal(err)
	}
	if !p.Enabled() {
		t.Fatal("not re-enabled")
	}
}

func TestWaiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data := []struct {
		name string
		w    dwi2c.Waiter
		want error
	}{
		{"timeout", dwi2c.Timeout(10 * time.Millisecond), dwi2c.ErrTimeout},
		{"context", dwi2c.Context(ctx), context.Canceled},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			p := dwi2ctest.New(map[uint16]dwi2ctest.Target{0x50: &dwi2ctest.Memory{}})
			opts := dwi2c.DefaultOpts
			opts.Waiter = line.w
			d, err := dwi2c.New(p, &opts)
			if err != nil {
				t.Fatal(err)
			}
			p.Stalled = true
			if err := d.Write(0x50, []byte{1}); !errors.Is(err, line.want) {
				t.Fatalf("Write = %v, want %v", err, line.want)
			}
			if err := d.Read(0x50, []byte{0}); !errors.Is(err, line.want) {
				t.Fatalf("Read = %v, want %v", err, line.want)
			}

			// Once the bus is released, the next transaction starts from
			// flushed FIFOs.
			p.Stalled = false
			d, err = dwi2c.New(p, nil)
			if err != nil {
				t.Fatal(err)
			}
			if err := d.Write(0x50, []byte{0x10, 0x5A}); err != nil {
				t.Fatal(err)
			}
			r := make([]byte, 1)
			if err := d.WriteRead(0x50, []byte{0x10}, r); err != nil {
				t.Fatal(err)
			}
			if r[0] != 0x5A {
				t.Fatalf("read %#x", r[0])
			}
			if diff := cmp.Diff([]ev{start(0x50, false), wr(0x10), wr(0x5A), stop}, p.Events()[:4]); diff != "" {
				t.Fatalf("stale commands reached the bus (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSpin(t *testing.T) {
	n := 0
	if err := (dwi2c.Spin{}).Wait(func() bool { n++; return n == 3 }); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatal(n)
	}
}

var _ io.ByteReader = &failing{}
