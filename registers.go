// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dwi2c

// Registers is raw 32-bit access to one controller's register block.
//
// Loads of the IC_CLR_* registers have side effects, so an implementation
// must perform every access in program order; none may be cached or elided.
type Registers interface {
	Load(off Offset) uint32
	Store(off Offset, v uint32)
}

// Offset is the byte offset of a register within the block.
type Offset uint32

// Register offsets, RP2040 datasheet section 4.3.17.
const (
	RegCon          Offset = 0x00
	RegTar          Offset = 0x04
	RegSar          Offset = 0x08
	RegDataCmd      Offset = 0x10
	RegSSSCLHcnt    Offset = 0x14
	RegSSSCLLcnt    Offset = 0x18
	RegFSSCLHcnt    Offset = 0x1c
	RegFSSCLLcnt    Offset = 0x20
	RegIntrStat     Offset = 0x2c
	RegIntrMask     Offset = 0x30
	RegRawIntrStat  Offset = 0x34
	RegRxTL         Offset = 0x38
	RegTxTL         Offset = 0x3c
	RegClrIntr      Offset = 0x40
	RegClrTxAbrt    Offset = 0x54
	RegClrStopDet   Offset = 0x60
	RegEnable       Offset = 0x6c
	RegStatus       Offset = 0x70
	RegTxFLR        Offset = 0x74
	RegRxFLR        Offset = 0x78
	RegSDAHold      Offset = 0x7c
	RegTxAbrtSource Offset = 0x80
	RegFSSpkLen     Offset = 0xa0
	RegCompParam1   Offset = 0xf4
	RegCompVersion  Offset = 0xf8
	RegCompType     Offset = 0xfc

	// BlockSize is the size of the register block in bytes.
	BlockSize = 0x100
)

// IC_CON bits.
const (
	ConMasterMode         uint32 = 1 << 0
	ConSpeedStandard      uint32 = 1 << 1
	ConSpeedFast          uint32 = 2 << 1
	ConSpeedMask          uint32 = 3 << 1
	Con10BitAddrSlave     uint32 = 1 << 3
	Con10BitAddrMaster    uint32 = 1 << 4
	ConRestartEn          uint32 = 1 << 5
	ConSlaveDisable       uint32 = 1 << 6
	ConStopDetIfAddressed uint32 = 1 << 7
	ConTxEmptyCtrl        uint32 = 1 << 8
	ConRxFIFOFullHldCtrl  uint32 = 1 << 9
)

// IC_DATA_CMD bits.
const (
	DataCmdDatMask uint32 = 0xff
	DataCmdRead    uint32 = 1 << 8
	DataCmdStop    uint32 = 1 << 9
	DataCmdRestart uint32 = 1 << 10
)

// IC_RAW_INTR_STAT bits.
const (
	IntrRxFull   uint32 = 1 << 2
	IntrTxEmpty  uint32 = 1 << 4
	IntrTxAbrt   uint32 = 1 << 6
	IntrActivity uint32 = 1 << 8
	IntrStopDet  uint32 = 1 << 9
	IntrStartDet uint32 = 1 << 10
)

// IC_STATUS bits.
const (
	StatusActivity uint32 = 1 << 0
	StatusTFNF     uint32 = 1 << 1 // transmit FIFO not full
	StatusTFE      uint32 = 1 << 2 // transmit FIFO empty
	StatusRFNE     uint32 = 1 << 3 // receive FIFO not empty
	StatusRFF      uint32 = 1 << 4 // receive FIFO full
)

// IC_SDA_HOLD fields.
const (
	SDATxHoldMask uint32 = 0xffff
	SDARxHoldMask uint32 = 0xff << 16
)

// CompType is the value of IC_COMP_TYPE on every DesignWare APB I²C block.
const CompType uint32 = 0x44570140

// FIFODepth is the depth of the TX and RX FIFOs on the RP2040.
const FIFODepth = 16

// controlWord is the IC_CON value used for controller mode: fast speed,
// 7-bit addressing, target disabled, repeated start allowed, and TX_EMPTY
// reflecting the shift register rather than the FIFO.
const controlWord = ConSpeedFast | ConMasterMode | ConSlaveDisable | ConRestartEn | ConTxEmptyCtrl

// block provides named accessors over a Registers.
type block struct {
	r Registers
}

// reconfigure disables the block, runs fn and enables it again. The
// configuration registers are ignored by the hardware while it is enabled,
// so every configuration write goes through here.
func (b block) reconfigure(fn func(c config)) {
	b.r.Store(RegEnable, 0)
	fn(config{r: b.r})
	b.r.Store(RegEnable, 1)
}

// disable turns the block off.
func (b block) disable() {
	b.r.Store(RegEnable, 0)
}

// push queues one command in the TX FIFO.
func (b block) push(cmd uint32) {
	b.r.Store(RegDataCmd, cmd)
}

// pop takes one byte from the RX FIFO.
func (b block) pop() byte {
	return byte(b.r.Load(RegDataCmd) & DataCmdDatMask)
}

func (b block) txFIFOFull() bool {
	return b.r.Load(RegStatus)&StatusTFNF == 0
}

func (b block) rxFIFOLevel() uint32 {
	return b.r.Load(RegRxFLR)
}

// txEmpty reports that the last byte left the shift register. It depends on
// ConTxEmptyCtrl being set.
func (b block) txEmpty() bool {
	return b.r.Load(RegRawIntrStat)&IntrTxEmpty != 0
}

func (b block) stopDetected() bool {
	return b.r.Load(RegRawIntrStat)&IntrStopDet != 0
}

func (b block) clearStopDet() {
	b.r.Load(RegClrStopDet)
}

// takeAbortReason returns the abort reason and clears it.
//
// IC_TX_ABRT_SOURCE is clear-on-read for the flags but the reason stays
// latched until IC_CLR_TX_ABRT is read, which always reads as 0. Both loads
// must happen together; this is the only place that touches either register.
func (b block) takeAbortReason() AbortReason {
	reason := AbortReason(b.r.Load(RegTxAbrtSource))
	if reason != 0 {
		b.r.Load(RegClrTxAbrt)
	}
	return reason
}

// config exposes the registers that may only be written while the block is
// disabled. It is only handed out by block.reconfigure.
type config struct {
	r Registers
}

func (c config) setControl(v uint32) {
	c.r.Store(RegCon, v)
}

func (c config) setTarget(addr uint16) {
	c.r.Store(RegTar, uint32(addr))
}

func (c config) setFIFOThresholds(tx, rx uint8) {
	c.r.Store(RegTxTL, uint32(tx))
	c.r.Store(RegRxTL, uint32(rx))
}

func (c config) setTiming(t Timing) {
	c.r.Store(RegFSSCLHcnt, uint32(t.HighCount))
	c.r.Store(RegFSSCLLcnt, uint32(t.LowCount))
	c.r.Store(RegFSSpkLen, uint32(t.SpikeLen))
	// Only the TX hold field is ours; keep the RX hold as found.
	v := c.r.Load(RegSDAHold)
	c.r.Store(RegSDAHold, v&^SDATxHoldMask|uint32(t.SDAHold))
}

// clearStopDet is the disabled-block variant of block.clearStopDet, used to
// drop a STOP_DET left over from a previous read.
func (c config) clearStopDet() {
	c.r.Load(RegClrStopDet)
}
