// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dwi2c

// writeOne sends one byte, ending the transaction with a STOP if stop is set.
//
// It waits for the byte to leave the shift register so that an abort caused
// by this byte is attributed to it.
func (d *Dev) writeOne(b byte, stop bool) error {
	cmd := uint32(b)
	if stop {
		cmd |= DataCmdStop
	}
	d.b.push(cmd)

	if err := d.w.Wait(d.b.txEmpty); err != nil {
		return err
	}

	reason := d.b.takeAbortReason()
	if reason != 0 || stop {
		// Either the hardware is issuing a STOP on its own after the abort or
		// we asked for one; wait until it is on the bus.
		if err := d.w.Wait(d.b.stopDetected); err != nil {
			return err
		}
		d.b.clearStopDet()
	}
	// On abort the hardware flushed both FIFOs, nothing to recover.
	if reason != 0 {
		return &AbortError{Reason: reason}
	}
	return nil
}

// readN fills buf one byte at a time.
//
// restart forces a repeated START before the first byte; stop requests a STOP
// after the last one, which also makes the controller NACK that byte.
func (d *Dev) readN(buf []byte, restart, stop bool) error {
	last := len(buf) - 1
	for i := range buf {
		// The read command takes a TX FIFO slot like any write.
		if err := d.w.Wait(d.txFIFONotFull); err != nil {
			return err
		}

		cmd := DataCmdRead
		if restart && i == 0 {
			cmd |= DataCmdRestart
		}
		if stop && i == last {
			cmd |= DataCmdStop
		}
		d.b.push(cmd)

		var reason AbortReason
		err := d.w.Wait(func() bool {
			if reason = d.b.takeAbortReason(); reason != 0 {
				return true
			}
			return d.b.rxFIFOLevel() != 0
		})
		if err != nil {
			return err
		}
		if reason != 0 {
			return &AbortError{Reason: reason}
		}

		buf[i] = d.b.pop()
	}
	return nil
}

func (d *Dev) txFIFONotFull() bool {
	return !d.b.txFIFOFull()
}
