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

package main

import (
	"context"
	goflag "flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/SergeyDuvanskiy/credentials-fetcher/cmd/credentials-fetcherd/options"
	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/daemon"
	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/engine"
	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/executor"
	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/gmsa"
	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/metrics"
	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/resolver"
	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/ticket"
)

func main() {
	conf := options.NewConfiguration()
	klog.InitFlags(goflag.CommandLine)
	flag.StringVar(&conf.KrbFilesDir, "krb-files-dir", conf.KrbFilesDir, "directory holding per-lease kerberos ticket caches.")
	flag.StringVar(&conf.DomainName, "domain-name", conf.DomainName, "active directory domain this host is joined to; issues the machine ticket at startup when set.")
	flag.DurationVar(&conf.RenewalPeriod, "renewal-period", conf.RenewalPeriod, "period between ticket renewal sweeps.")
	flag.DurationVar(&conf.SweepTimeout, "sweep-timeout", conf.SweepTimeout, "timeout for one renewal sweep.")
	flag.StringVar(&conf.MetricsEndpoint, "metrics-endpoint", conf.MetricsEndpoint, "listen address of the prometheus metrics endpoint.")
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	flag.Parse()

	flag.VisitAll(func(f *flag.Flag) {
		klog.Infof("args: %s = %s", f.Name, f.Value)
	})

	stopCh := setupSignalHandler()

	exec := executor.NewShellExecutor()
	res := resolver.New(exec)
	retriever := gmsa.NewRetriever(exec, res)
	issuer := ticket.NewIssuer(exec, res, retriever)
	renewer := ticket.NewRenewer(exec)
	store := ticket.NewStore(exec)
	eng := engine.New(issuer, renewer, store, conf.KrbFilesDir)

	if conf.DomainName != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := issuer.IssueMachineTicket(ctx, conf.DomainName)
		cancel()
		if err != nil {
			klog.Fatalf("machine ticket for %s: %v", conf.DomainName, err)
		}
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry, eng)
	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(conf.MetricsEndpoint, nil); err != nil {
			klog.Error(err)
		}
	}()

	daemon.NewRenewalRunner(eng, conf.RenewalPeriod, conf.SweepTimeout).Run(stopCh)
}

func setupSignalHandler() <-chan struct{} {
	stopCh := make(chan struct{})
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		close(stopCh)
		<-sigCh
		os.Exit(1)
	}()
	return stopCh
}
