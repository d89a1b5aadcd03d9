// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dwi2c

import (
	"context"
	"fmt"
	"time"
)

// Waiter blocks until cond returns true.
//
// cond polls hardware registers and must be called again on every iteration;
// it may have side effects such as clearing an abort reason. A Waiter that
// gives up returns an error, which the transfer in progress returns as is.
type Waiter interface {
	Wait(cond func() bool) error
}

// Spin polls forever. It is the default Waiter.
//
// A target that stretches SCL indefinitely hangs the caller.
type Spin struct{}

// Wait implements Waiter.
func (Spin) Wait(cond func() bool) error {
	for !cond() {
	}
	return nil
}

// Timeout returns a Waiter that gives up with ErrTimeout after d has elapsed
// in a single wait.
func Timeout(d time.Duration) Waiter {
	return timeoutWaiter(d)
}

type timeoutWaiter time.Duration

func (t timeoutWaiter) Wait(cond func() bool) error {
	deadline := time.Now().Add(time.Duration(t))
	for !cond() {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s", ErrTimeout, time.Duration(t))
		}
	}
	return nil
}

// Context returns a Waiter that gives up once ctx is done, returning ctx's
// error.
func Context(ctx context.Context) Waiter {
	return ctxWaiter{ctx: ctx}
}

type ctxWaiter struct {
	ctx context.Context
}

func (c ctxWaiter) Wait(cond func() bool) error {
	done := c.ctx.Done()
	for !cond() {
		select {
		case <-done:
			return fmt.Errorf("dwi2c: %w", c.ctx.Err())
		default:
		}
	}
	return nil
}
