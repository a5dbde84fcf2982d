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

// Package daemon runs the background renewal cadence over the engine.
package daemon

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/engine"
	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/metrics"
)

// Sweeper performs one renewal pass. Satisfied by *engine.Engine.
type Sweeper interface {
	RenewAll(ctx context.Context) engine.SweepResult
}

// RenewalRunner invokes the sweeper periodically until stopped. Each sweep
// runs under its own timeout so a hung external tool cannot stall the loop
// forever.
type RenewalRunner struct {
	sweeper Sweeper
	period  time.Duration
	timeout time.Duration
}

func NewRenewalRunner(sweeper Sweeper, period, timeout time.Duration) *RenewalRunner {
	return &RenewalRunner{sweeper: sweeper, period: period, timeout: timeout}
}

func (r *RenewalRunner) Run(stopCh <-chan struct{}) {
	tick := time.NewTicker(r.period)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			r.sweep()
		case <-stopCh:
			return
		}
	}
}

func (r *RenewalRunner) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	result := r.sweeper.RenewAll(ctx)
	metrics.RenewalSweepsTotal.Inc()
	metrics.TicketOperationsTotal.WithLabelValues("renewed").Add(float64(result.Renewed))
	metrics.TicketOperationsTotal.WithLabelValues("reissued").Add(float64(result.Reissued))
	metrics.TicketOperationsTotal.WithLabelValues("failed").Add(float64(result.Failed))
	klog.V(4).Infof("renewal sweep: checked %d renewed %d reissued %d failed %d",
		result.Checked, result.Renewed, result.Reissued, result.Failed)
}
