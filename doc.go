// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dwi2c drives the Synopsys DesignWare I²C block in controller mode,
// as found on the RP2040 (I2C0 and I2C1).
//
// The driver programs the SCL high/low counts, spike suppression length and
// SDA hold time for a requested bus frequency, then runs transactions byte by
// byte through the block's TX and RX FIFOs. A transaction is a sequence of
// read and write operations against one 7-bit target address, framed by a
// single START and a single STOP. Repeated STARTs are inserted by the
// hardware when the direction changes.
//
// Every blocking step polls a status register. By default polling never gives
// up, which hangs the caller if a target holds SCL low; use Opts.Waiter with
// Timeout or Context to bound it.
//
// Dev is not safe for concurrent use. Bus wraps a Dev with a lock and
// implements periph's i2c.BusCloser; Dev itself also satisfies tinygo's
// drivers.I2C.
//
// 10-bit addressing and target mode are not supported.
//
// Datasheet
//
// https://datasheets.raspberrypi.com/rp2040/rp2040-datasheet.pdf section 4.3.
package dwi2c
