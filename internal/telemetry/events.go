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

package telemetry

import (
	"github.com/go-logr/logr"
)

// Reporter receives engine lifecycle events. Implementations must be safe for
// concurrent use; events for different trials arrive from different workers.
type Reporter interface {
	TrialStarted(studyID string, trialNumber int64)
	TrialReported(studyID string, trialNumber int64, rung int, value float64)
	TrialPruned(studyID string, trialNumber int64)
	TrialSucceeded(studyID string, trialNumber int64, value float64)
	TrialFailed(studyID string, trialNumber int64, reason string)
	StudyCompleted(studyID string)
}

// NopReporter discards all events.
type NopReporter struct{}

var _ Reporter = NopReporter{}

func (NopReporter) TrialStarted(string, int64)                {}
func (NopReporter) TrialReported(string, int64, int, float64) {}
func (NopReporter) TrialPruned(string, int64)                 {}
func (NopReporter) TrialSucceeded(string, int64, float64)     {}
func (NopReporter) TrialFailed(string, int64, string)         {}
func (NopReporter) StudyCompleted(string)                     {}

// LogReporter writes every event to a logr sink.
type LogReporter struct {
	Log logr.Logger
}

var _ Reporter = &LogReporter{}

func (r *LogReporter) TrialStarted(studyID string, trialNumber int64) {
	r.Log.Info("Trial started", "study", studyID, "trial", trialNumber)
}

func (r *LogReporter) TrialReported(studyID string, trialNumber int64, rung int, value float64) {
	r.Log.Info("Trial reported", "study", studyID, "trial", trialNumber, "rung", rung, "value", value)
}

func (r *LogReporter) TrialPruned(studyID string, trialNumber int64) {
	r.Log.Info("Trial pruned", "study", studyID, "trial", trialNumber)
}

func (r *LogReporter) TrialSucceeded(studyID string, trialNumber int64, value float64) {
	r.Log.Info("Trial succeeded", "study", studyID, "trial", trialNumber, "value", value)
}

func (r *LogReporter) TrialFailed(studyID string, trialNumber int64, reason string) {
	r.Log.Info("Trial failed", "study", studyID, "trial", trialNumber, "reason", reason)
}

func (r *LogReporter) StudyCompleted(studyID string) {
	r.Log.Info("Study completed", "study", studyID)
}
