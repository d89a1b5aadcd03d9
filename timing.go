// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dwi2c

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

const (
	// MaxFrequency is the fastest supported bus, Fast-mode Plus.
	MaxFrequency = physic.MegaHertz
	// minFMPlusClock is the slowest system clock that can drive Fast-mode Plus.
	minFMPlusClock = 32 * physic.MegaHertz
	// minCount is the smallest usable SCL high or low count.
	minCount = 8
)

// Timing is the set of clock counts programmed into the block for one bus
// frequency.
type Timing struct {
	HighCount uint16 // IC_FS_SCL_HCNT, system clock cycles SCL is high
	LowCount  uint16 // IC_FS_SCL_LCNT, system clock cycles SCL is low
	SpikeLen  uint8  // IC_FS_SPKLEN, longest spike suppressed
	SDAHold   uint16 // IC_SDA_HOLD.IC_SDA_TX_HOLD, SDA hold after SCL falls
}

// NewTiming derives the counts for a bus running at bus from a block clocked
// at sysclk.
//
// The period is split 60% low and 40% high. SDA is held for at least 300ns
// after the falling edge of SCL, 120ns in Fast-mode Plus, as UM10204
// requires of a transmitter.
//
// Both frequencies must be a whole number of hertz.
func NewTiming(bus, sysclk physic.Frequency) (Timing, error) {
	if bus < physic.Hertz || bus > MaxFrequency || bus%physic.Hertz != 0 {
		return Timing{}, fmt.Errorf("%w: %s; must be a whole number of hertz between 1Hz and %s", ErrInvalidFrequency, bus, MaxFrequency)
	}
	if sysclk < physic.Hertz || sysclk%physic.Hertz != 0 {
		return Timing{}, fmt.Errorf("%w: system clock %s", ErrInvalidTiming, sysclk)
	}
	freq := uint64(bus / physic.Hertz)
	freqIn := uint64(sysclk / physic.Hertz)

	period := (freqIn + freq/2) / freq
	lcnt := period * 3 / 5
	hcnt := period - lcnt
	if hcnt > 0xffff || lcnt > 0xffff {
		return Timing{}, fmt.Errorf("%w: %s is too slow for a %s clock (hcnt=%d lcnt=%d)", ErrInvalidTiming, bus, sysclk, hcnt, lcnt)
	}
	if hcnt < minCount || lcnt < minCount {
		return Timing{}, fmt.Errorf("%w: %s is too fast for a %s clock (hcnt=%d lcnt=%d)", ErrInvalidTiming, bus, sysclk, hcnt, lcnt)
	}

	var hold uint64
	if bus < MaxFrequency {
		// freqIn * 300ns, reduced to 3/1e7; +1 so truncation never
		// shortens the hold.
		hold = freqIn*3/10000000 + 1
	} else {
		if sysclk < minFMPlusClock {
			return Timing{}, fmt.Errorf("%w: Fast-mode Plus needs a system clock of at least %s, got %s", ErrInvalidTiming, minFMPlusClock, sysclk)
		}
		// freqIn * 120ns, reduced to 3/25e6.
		hold = freqIn*3/25000000 + 1
	}
	if hold > lcnt-2 {
		return Timing{}, fmt.Errorf("%w: SDA hold of %d cycles does not fit in an SCL low count of %d", ErrInvalidTiming, hold, lcnt)
	}

	spklen := uint64(1)
	if lcnt >= 16 {
		spklen = lcnt / 16
	}
	if spklen > 0xff {
		spklen = 0xff
	}
	return Timing{
		HighCount: uint16(hcnt),
		LowCount:  uint16(lcnt),
		SpikeLen:  uint8(spklen),
		SDAHold:   uint16(hold),
	}, nil
}

// Period is the SCL period in system clock cycles.
func (t Timing) Period() uint32 {
	return uint32(t.HighCount) + uint32(t.LowCount)
}

func (t Timing) String() string {
	return fmt.Sprintf("Timing{hcnt=%d lcnt=%d spklen=%d sda_hold=%d}", t.HighCount, t.LowCount, t.SpikeLen, t.SDAHold)
}
