// Copyright 2020 Ipalfish, Inc.
// Copyright 2022 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics defines the prometheus collectors of statement compilation.
package metrics

import (
	"io"
	"sync"

	"github.com/pingcap/stmtkit/lib/util/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const (
	ModuleStmtKit = "stmtkit"
)

// metrics labels.
const (
	LabelCache    = "cache"
	LabelBatch    = "batch"
	LabelCallable = "callable"
	LabelBackend  = "backend"
)

var registerOnce sync.Once

// Register registers all collectors to reg once. A nil reg means the
// default registerer.
func Register(reg prometheus.Registerer) (err error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registerOnce.Do(func() {
		for _, c := range collectors() {
			if err = reg.Register(c); err != nil {
				return
			}
		}
	})
	return errors.WithStack(err)
}

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		CacheCounter,
		CacheSizeGauge,
		BatchStrategyCounter,
		BatchRowsHistogram,
		BatchChunkCounter,
		BatchChunkDurationHistogram,
		OutParamRoundTripCounter,
		QueryDurationHistogram,
	}
}

// WriteText writes everything in g in the prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return errors.WithStack(err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// ReadCounter reads the value from the counter. It is only used for testing.
func ReadCounter(counter prometheus.Counter) (int, error) {
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		return 0, err
	}
	return int(metric.Counter.GetValue()), nil
}

// ReadGauge reads the value from the gauge. It is only used for testing.
func ReadGauge(gauge prometheus.Gauge) (int, error) {
	var metric dto.Metric
	if err := gauge.Write(&metric); err != nil {
		return 0, err
	}
	return int(metric.Gauge.GetValue()), nil
}

// ReadHistogramCount reads the sample count of the histogram. It is only used
// for testing.
func ReadHistogramCount(observer prometheus.Observer) (uint64, error) {
	metric, ok := observer.(prometheus.Metric)
	if !ok {
		return 0, errors.Errorf("%T is not a metric", observer)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		return 0, err
	}
	return m.Histogram.GetSampleCount(), nil
}
