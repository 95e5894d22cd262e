/*
Copyright 2020 GramLabs, Inc.

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

// Package telemetry exposes the engine's monitoring hook points: Prometheus
// metrics and a pluggable event reporter for external observers.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StudyActiveTrials is a Prometheus gauge metric which holds the number
	// of currently running trials per study
	StudyActiveTrials = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "optimize_study_active_trials",
		Help: "Number of currently running trials per study",
	}, []string{"study"})

	// TODO Study is an unbounded label, that might be problematic

	// StudyTrialsTotal is a Prometheus counter metric which holds the total
	// number of terminal trials per study and terminal status
	StudyTrialsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optimize_study_trials_total",
		Help: "Total number of terminal trials per study and status",
	}, []string{"study", "status"})

	// StudyObservationsTotal is a Prometheus counter metric which holds the
	// total number of intermediate observations recorded per study
	StudyObservationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optimize_study_observations_total",
		Help: "Total number of intermediate observations recorded per study",
	}, []string{"study"})
)

func init() {
	prometheus.MustRegister(
		StudyActiveTrials,
		StudyTrialsTotal,
		StudyObservationsTotal,
	)
}
