// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dwi2c

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidWriteBufferLength is returned when a write has no data.
	ErrInvalidWriteBufferLength = errors.New("dwi2c: write buffer is empty")
	// ErrInvalidReadBufferLength is returned when a read has no room.
	ErrInvalidReadBufferLength = errors.New("dwi2c: read buffer is empty")
	// ErrAddressOutOfRange is wrapped by AddressError for addresses above 0x7f.
	ErrAddressOutOfRange = errors.New("dwi2c: address out of range")
	// ErrAddressReserved is wrapped by AddressError for the reserved
	// 0b0000xxx and 0b1111xxx ranges.
	ErrAddressReserved = errors.New("dwi2c: address is reserved")
	// ErrInvalidFrequency is returned for a bus frequency of 0 or above 1MHz.
	ErrInvalidFrequency = errors.New("dwi2c: invalid bus frequency")
	// ErrInvalidTiming is returned when the system clock cannot produce the
	// requested bus frequency within the counter ranges.
	ErrInvalidTiming = errors.New("dwi2c: invalid bus timing")
	// ErrTimeout is returned by a Timeout waiter that gave up.
	ErrTimeout = errors.New("dwi2c: timeout waiting for the controller")
	// ErrClosed is returned by a Bus used after Close.
	ErrClosed = errors.New("dwi2c: bus is closed")
)

// AddressError reports a target address rejected before any bus activity.
type AddressError struct {
	Addr uint16
	Err  error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("%s: %#x", e.Err, e.Addr)
}

func (e *AddressError) Unwrap() error {
	return e.Err
}

// AbortError is a transaction aborted by the hardware.
//
// The controller has already issued a STOP and flushed its FIFOs, so a fresh
// transaction can be started right away. Bytes read before the abort are
// undefined.
type AbortError struct {
	Reason AbortReason
}

func (e *AbortError) Error() string {
	return "dwi2c: transaction aborted: " + e.Reason.String()
}

// BusError marks the error as originating on the bus, not in the caller's
// arguments.
func (e *AbortError) BusError() bool { return true }

// NoAck reports that the target did not acknowledge its address or data.
func (e *AbortError) NoAck() bool {
	return e.Reason&(Abort7bAddrNoAck|AbortTxDataNoAck) != 0
}

// ArbitrationLost reports that another controller won the bus.
func (e *AbortError) ArbitrationLost() bool {
	return e.Reason&AbortArbLost != 0
}

// AbortReason is the IC_TX_ABRT_SOURCE bit field.
type AbortReason uint32

// Abort reasons. Bits 23..31 hold the number of TX FIFO entries flushed.
const (
	Abort7bAddrNoAck    AbortReason = 1 << 0
	Abort10Addr1NoAck   AbortReason = 1 << 1
	Abort10Addr2NoAck   AbortReason = 1 << 2
	AbortTxDataNoAck    AbortReason = 1 << 3
	AbortGCallNoAck     AbortReason = 1 << 4
	AbortGCallRead      AbortReason = 1 << 5
	AbortHSAckDet       AbortReason = 1 << 6
	AbortSByteAckDet    AbortReason = 1 << 7
	AbortHSNoRestart    AbortReason = 1 << 8
	AbortSByteNoRestart AbortReason = 1 << 9
	Abort10bRdNoRestart AbortReason = 1 << 10
	AbortMasterDis      AbortReason = 1 << 11
	AbortArbLost        AbortReason = 1 << 12
	AbortSlvFlushTxFIFO AbortReason = 1 << 13
	AbortSlvArbLost     AbortReason = 1 << 14
	AbortSlvRdInTx      AbortReason = 1 << 15
	AbortUser           AbortReason = 1 << 16

	abortFlushCntShift = 23
)

var abortNames = [...]string{
	"ADDR_NOACK",
	"10ADDR1_NOACK",
	"10ADDR2_NOACK",
	"TXDATA_NOACK",
	"GCALL_NOACK",
	"GCALL_READ",
	"HS_ACKDET",
	"SBYTE_ACKDET",
	"HS_NORSTRT",
	"SBYTE_NORSTRT",
	"10B_RD_NORSTRT",
	"MASTER_DIS",
	"ARB_LOST",
	"SLVFLUSH_TXFIFO",
	"SLV_ARBLOST",
	"SLVRD_INTX",
	"USER_ABRT",
}

// TxFlushCount is the number of TX FIFO commands dropped by the abort.
func (a AbortReason) TxFlushCount() int {
	return int(a >> abortFlushCntShift)
}

func (a AbortReason) String() string {
	var out []string
	for i, name := range abortNames {
		if a&(1<<uint(i)) != 0 {
			out = append(out, name)
		}
	}
	if unknown := a &^ (1<<len(abortNames) - 1) &^ (0x1ff << abortFlushCntShift); unknown != 0 {
		out = append(out, fmt.Sprintf("%#x", uint32(unknown)))
	}
	if n := a.TxFlushCount(); n != 0 {
		out = append(out, fmt.Sprintf("TX_FLUSH_CNT=%d", n))
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, "|")
}
