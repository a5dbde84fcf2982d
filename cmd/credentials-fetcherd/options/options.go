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

package options

import "time"

const (
	DefaultKrbFilesDir     = "/var/credentials_fetcher/krb_dir"
	DefaultRenewalPeriod   = time.Minute * 10
	DefaultSweepTimeout    = time.Minute * 2
	DefaultMetricsEndpoint = ":9126"
)

type Configuration struct {
	KrbFilesDir     string
	DomainName      string
	RenewalPeriod   time.Duration
	SweepTimeout    time.Duration
	MetricsEndpoint string
}

func NewConfiguration() *Configuration {
	return &Configuration{
		KrbFilesDir:     DefaultKrbFilesDir,
		DomainName:      "",
		RenewalPeriod:   DefaultRenewalPeriod,
		SweepTimeout:    DefaultSweepTimeout,
		MetricsEndpoint: DefaultMetricsEndpoint,
	}
}
