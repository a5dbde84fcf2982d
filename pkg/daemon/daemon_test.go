/*
Copyright 2023 The Credentials Fetcher Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package daemon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/engine"
)

type countingSweeper struct {
	calls int64
}

func (c *countingSweeper) RenewAll(context.Context) engine.SweepResult {
	atomic.AddInt64(&c.calls, 1)
	return engine.SweepResult{Checked: 1}
}

func TestRenewalRunnerSweepsUntilStopped(t *testing.T) {
	sweeper := &countingSweeper{}
	runner := NewRenewalRunner(sweeper, 10*time.Millisecond, time.Second)

	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		runner.Run(stopCh)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	close(stopCh)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Greater(t, atomic.LoadInt64(&sweeper.calls), int64(0))
}

type blockingSweeper struct {
	sawDeadline chan bool
}

func (b *blockingSweeper) RenewAll(ctx context.Context) engine.SweepResult {
	_, ok := ctx.Deadline()
	select {
	case b.sawDeadline <- ok:
	default:
	}
	return engine.SweepResult{}
}

func TestRenewalRunnerBoundsEachSweep(t *testing.T) {
	sweeper := &blockingSweeper{sawDeadline: make(chan bool, 1)}
	runner := NewRenewalRunner(sweeper, 10*time.Millisecond, time.Second)

	stopCh := make(chan struct{})
	go runner.Run(stopCh)
	defer close(stopCh)

	select {
	case ok := <-sweeper.sawDeadline:
		assert.True(t, ok, "sweep context carries no deadline")
	case <-time.After(time.Second):
		t.Fatal("no sweep happened")
	}
}
