// Copyright 2026 The s3transfer Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package clocktest adapts clockwork's fake clock to the clock.Clock
// interface used throughout this module, so retry-backoff and DNS
// host-listener poll timers can be advanced deterministically in tests.
package clocktest

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/s3transfer/s3transfer/internal/clock"
)

// FakeClock is a manually-advanceable clock.Clock.
type FakeClock interface {
	clock.Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, waiters int) error
}

// NewFakeClock creates a new FakeClock using clockwork.
func NewFakeClock() FakeClock {
	return fakeClock{clockwork.NewFakeClock()}
}

// fakeClock re-boxes clockwork's return types as clock.Timer, since Go
// interface compatibility is nominal rather than structural for methods
// returning other interfaces.
type fakeClock struct {
	*clockwork.FakeClock
}

var _ FakeClock = fakeClock{}

func (f fakeClock) NewTimer(d time.Duration) clock.Timer {
	return f.FakeClock.NewTimer(d)
}

func (f fakeClock) AfterFunc(d time.Duration, fn func()) clock.Timer {
	return f.FakeClock.AfterFunc(d, fn)
}
