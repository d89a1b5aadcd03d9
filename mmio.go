// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dwi2c

import (
	"fmt"
	"sync/atomic"

	"periph.io/x/host/v3/pmem"
)

// Physical base addresses of the RP2040 blocks.
const (
	I2C0Base uint64 = 0x40044000
	I2C1Base uint64 = 0x40048000
)

// Mapped is a register block mapped from physical memory.
type Mapped struct {
	view  *pmem.View
	words []uint32
	base  uint64
}

// Map maps the register block at the physical address base, usually through
// /dev/mem, and checks that it identifies as a DesignWare I²C block.
func Map(base uint64) (*Mapped, error) {
	v, err := pmem.Map(base, BlockSize)
	if err != nil {
		return nil, fmt.Errorf("dwi2c: failed to map %#x: %w", base, err)
	}
	m := &Mapped{view: v, words: v.Uint32(), base: base}
	if t := m.Load(RegCompType); t != CompType {
		_ = v.Close()
		return nil, fmt.Errorf("dwi2c: no DesignWare I²C block at %#x; IC_COMP_TYPE=%#x", base, t)
	}
	return m, nil
}

// Load implements Registers.
func (m *Mapped) Load(off Offset) uint32 {
	return atomic.LoadUint32(&m.words[off/4])
}

// Store implements Registers.
func (m *Mapped) Store(off Offset, v uint32) {
	atomic.StoreUint32(&m.words[off/4], v)
}

// Close unmaps the block.
func (m *Mapped) Close() error {
	return m.view.Close()
}

func (m *Mapped) String() string {
	return fmt.Sprintf("dwi2c@%#x", m.base)
}

// Open maps the block at base, configures it and returns it as a Bus whose
// Close also unmaps it.
func Open(base uint64, opts *Opts) (*Bus, error) {
	m, err := Map(base)
	if err != nil {
		return nil, err
	}
	d, err := New(m, opts)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return NewBus(d, m), nil
}
