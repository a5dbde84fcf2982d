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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/engine"
)

var (
	leaseTicketsMetric = prometheus.NewDesc(
		"credentials_fetcher_lease_tickets",
		"number of ticket caches registered per lease",
		[]string{"lease_id"},
		nil)
	leasesMetric = prometheus.NewDesc(
		"credentials_fetcher_leases",
		"number of active leases",
		nil,
		nil)

	// RenewalSweepsTotal counts renewal passes over the registered tickets.
	RenewalSweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credentials_fetcher_renewal_sweeps_total",
		Help: "number of renewal sweeps performed",
	})

	// TicketOperationsTotal counts per-ticket lifecycle outcomes by kind
	// (renewed, reissued, failed).
	TicketOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credentials_fetcher_ticket_operations_total",
		Help: "ticket lifecycle operations by outcome",
	}, []string{"outcome"})
)

// LeaseSnapshotter exposes the current lease registry. Satisfied by
// *engine.Engine.
type LeaseSnapshotter interface {
	Leases() map[string][]engine.TicketInfo
}

// EngineCollector exports per-lease ticket counts from the engine registry.
type EngineCollector struct {
	engine LeaseSnapshotter
}

func NewEngineCollector(e LeaseSnapshotter) *EngineCollector {
	return &EngineCollector{engine: e}
}

func (c *EngineCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- leaseTicketsMetric
	descs <- leasesMetric
}

func (c *EngineCollector) Collect(metrics chan<- prometheus.Metric) {
	leases := c.engine.Leases()
	metrics <- prometheus.MustNewConstMetric(
		leasesMetric,
		prometheus.GaugeValue,
		float64(len(leases)),
	)
	for leaseID, tickets := range leases {
		metrics <- prometheus.MustNewConstMetric(
			leaseTicketsMetric,
			prometheus.GaugeValue,
			float64(len(tickets)),
			leaseID,
		)
	}
}

// Register installs the collector and counters on reg.
func Register(reg prometheus.Registerer, e LeaseSnapshotter) {
	reg.MustRegister(NewEngineCollector(e), RenewalSweepsTotal, TicketOperationsTotal)
}
