// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dwi2ctest

// Memory is a 256-byte register file behind a one-byte pointer, like a
// 24C02 EEPROM: the first byte of a write sets the pointer, following bytes
// are stored there and reads start at the pointer. The pointer auto
// increments and wraps.
type Memory struct {
	Data [256]byte

	ptr     byte
	pointer bool
}

// Addressed implements Target.
func (m *Memory) Addressed(read bool) bool {
	m.pointer = !read
	return true
}

// WriteByte implements Target.
func (m *Memory) WriteByte(b byte) bool {
	if m.pointer {
		m.ptr = b
		m.pointer = false
		return true
	}
	m.Data[m.ptr] = b
	m.ptr++
	return true
}

// ReadByte implements Target.
func (m *Memory) ReadByte() byte {
	b := m.Data[m.ptr]
	m.ptr++
	return b
}

// Stop implements Target.
func (m *Memory) Stop() {}

// Echo returns written bytes on later reads, in order. Reading past what was
// written returns 0xFF, the idle level of SDA.
type Echo struct {
	buf []byte
}

// Addressed implements Target.
func (e *Echo) Addressed(read bool) bool { return true }

// WriteByte implements Target.
func (e *Echo) WriteByte(b byte) bool {
	e.buf = append(e.buf, b)
	return true
}

// ReadByte implements Target.
func (e *Echo) ReadByte() byte {
	if len(e.buf) == 0 {
		return 0xFF
	}
	b := e.buf[0]
	e.buf = e.buf[1:]
	return b
}

// Stop implements Target.
func (e *Echo) Stop() {}

// Limited acknowledges its address and the first Accept data bytes of each
// write transaction, then NACKs, like a device with a small input buffer.
type Limited struct {
	Accept int

	n int
}

// Addressed implements Target.
func (l *Limited) Addressed(read bool) bool {
	l.n = 0
	return true
}

// WriteByte implements Target.
func (l *Limited) WriteByte(b byte) bool {
	l.n++
	return l.n <= l.Accept
}

// ReadByte implements Target.
func (l *Limited) ReadByte() byte { return 0 }

// Stop implements Target.
func (l *Limited) Stop() {}

var (
	_ Target = &Memory{}
	_ Target = &Echo{}
	_ Target = &Limited{}
)
