// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dwi2c

import (
	"io"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Bus shares a Dev between goroutines and exposes it as a periph
// i2c.BusCloser.
type Bus struct {
	mu     sync.Mutex
	d      *Dev
	closer io.Closer
	closed bool
}

// NewBus wraps d. closer, if not nil, is closed after the block is halted by
// Close; typically it releases the register mapping.
func NewBus(d *Dev, closer io.Closer) *Bus {
	return &Bus{d: d, closer: closer}
}

func (b *Bus) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.d.String()
}

// Tx implements i2c.Bus.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return b.d.Tx(addr, w, r)
}

// SetSpeed implements i2c.Bus.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return b.d.SetSpeed(f)
}

// Transaction runs Dev.Transaction under the bus lock.
func (b *Bus) Transaction(addr uint16, ops []Op) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return b.d.Transaction(addr, ops)
}

// Scan runs Dev.Scan under the bus lock.
func (b *Bus) Scan() ([]uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	return b.d.Scan()
}

// Close implements io.Closer. It halts the block then releases closer.
//
// The registers are not touched again afterwards; every other method returns
// ErrClosed and further calls to Close do nothing.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	err := b.d.Halt()
	if b.closer != nil {
		if err2 := b.closer.Close(); err == nil {
			err = err2
		}
		b.closer = nil
	}
	return err
}

var _ i2c.BusCloser = &Bus{}
