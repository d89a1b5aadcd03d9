// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dwi2c

// Reserved reports whether addr falls in one of the 7-bit ranges UM10204
// sets aside: general call, CBUS, HS-mode and the 10-bit prefix.
func Reserved(addr uint16) bool {
	return addr&0x78 == 0 || addr&0x78 == 0x78
}

// validate checks the arguments of a transaction before any register is
// touched. txEmpty and rxEmpty are nil when the transaction has no write or
// no read part.
//
// Buffer lengths are checked before the address.
func validate(addr uint16, txEmpty, rxEmpty *bool) error {
	if txEmpty != nil && *txEmpty {
		return ErrInvalidWriteBufferLength
	}
	if rxEmpty != nil && *rxEmpty {
		return ErrInvalidReadBufferLength
	}
	return validateAddr(addr)
}

func validateAddr(addr uint16) error {
	if addr >= 0x80 {
		return &AddressError{Addr: addr, Err: ErrAddressOutOfRange}
	}
	if Reserved(addr) {
		return &AddressError{Addr: addr, Err: ErrAddressReserved}
	}
	return nil
}

// validateOps checks every operation's buffer then the address.
func validateOps(addr uint16, ops []Op) error {
	for _, op := range ops {
		if len(op.Buf) != 0 {
			continue
		}
		if op.Kind == OpRead {
			return ErrInvalidReadBufferLength
		}
		return ErrInvalidWriteBufferLength
	}
	return validateAddr(addr)
}

func isEmpty(b []byte) *bool {
	e := len(b) == 0
	return &e
}
