// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// dwi2c-io scans, writes to and reads from an I²C bus driven through the
// memory mapped registers of an RP2040 I2C block.
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/GermanBionicSystems/dwi2c"
	"github.com/GermanBionicSystems/dwi2c/busmap"
	"github.com/go-logr/logr/funcr"
	"github.com/mattn/go-isatty"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

func mainImpl() error {
	block := flag.Int("i", 0, "I2C block number, 0 or 1")
	base := flag.String("base", "", "physical base address of the block, overrides -i")
	sysclk := 125 * physic.MegaHertz
	flag.Var(&sysclk, "sysclk", "clk_sys feeding the block")
	hz := 400 * physic.KiloHertz
	flag.Var(&hz, "hz", "bus frequency")
	addr := flag.Uint("a", 0, "target 7-bit address")
	write := flag.String("w", "", "hex encoded bytes to write")
	read := flag.Int("r", 0, "number of bytes to read")
	scan := flag.Bool("scan", false, "probe every address and print a map of the bus")
	timeout := flag.Duration("timeout", 100*time.Millisecond, "longest wait on the controller, 0 to wait forever")
	verbose := flag.Int("v", 0, "log verbosity")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	log := funcr.New(func(prefix, args string) {
		fmt.Fprintln(os.Stderr, prefix, args)
	}, funcr.Options{Verbosity: *verbose})

	opts := dwi2c.DefaultOpts
	opts.Name = "I2C" + strconv.Itoa(*block)
	opts.Frequency = hz
	opts.SystemClock = sysclk
	opts.Logger = log
	if *timeout != 0 {
		opts.Waiter = dwi2c.Timeout(*timeout)
	}
	var b uint64
	switch {
	case *base != "":
		v, err := strconv.ParseUint(*base, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid -base: %w", err)
		}
		b = v
		opts.Name = fmt.Sprintf("I2C@%#x", v)
	case *block == 0:
		b = dwi2c.I2C0Base
	case *block == 1:
		b = dwi2c.I2C1Base
	default:
		return fmt.Errorf("invalid -i %d", *block)
	}

	var w []byte
	if *write != "" {
		var err error
		if w, err = hex.DecodeString(*write); err != nil {
			return fmt.Errorf("invalid -w: %w", err)
		}
	}
	if !*scan && len(w) == 0 && *read == 0 {
		return errors.New("specify -scan, -w or -r")
	}
	if *read < 0 {
		return errors.New("-r must be positive")
	}
	if *addr > 0x7f {
		return fmt.Errorf("-a %#x is not a 7-bit address", *addr)
	}

	if _, err := host.Init(); err != nil {
		return err
	}
	bus, err := dwi2c.Open(b, &opts)
	if err != nil {
		return err
	}
	defer bus.Close()
	log.V(1).Info("opened", "bus", bus.String())

	if *scan {
		found, err := bus.Scan()
		if err != nil {
			return err
		}
		m := busmap.New(&busmap.Opts{Color: isatty.IsTerminal(os.Stdout.Fd())})
		defer m.Halt()
		return m.Render(found)
	}

	var r []byte
	if *read != 0 {
		r = make([]byte, *read)
	}
	if err := bus.Tx(uint16(*addr), w, r); err != nil {
		return err
	}
	if len(r) != 0 {
		fmt.Println(hex.EncodeToString(r))
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "dwi2c-io: %s.\n", err)
		os.Exit(1)
	}
}
