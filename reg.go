// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dwi2c

import (
	"errors"
	"strconv"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

// Register makes the block at base available through periph's i2creg as
// name, with optional aliases and bus number. The block is only mapped and
// configured when the bus is opened.
func Register(name string, aliases []string, number int, base uint64, opts *Opts) error {
	if base == 0 {
		return errors.New("dwi2c: can't register bus " + strconv.Quote(name) + " without a base address")
	}
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	o.Name = name
	return i2creg.Register(name, aliases, number, func() (i2c.BusCloser, error) {
		return Open(base, &o)
	})
}
