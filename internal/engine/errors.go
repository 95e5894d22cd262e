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

package engine

import (
	"errors"
	"fmt"
)

// Failure reasons recorded on failed trials.
const (
	// ReasonObjectiveError marks a trial whose objective returned an error.
	ReasonObjectiveError = "ObjectiveError"
	// ReasonObjectivePanic marks a trial whose objective panicked.
	ReasonObjectivePanic = "ObjectivePanic"
	// ReasonOrphaned marks a trial left running by a crashed worker and
	// failed on resume; the store cannot tell the two apart.
	ReasonOrphaned = "Orphaned"
)

var (
	// ErrStudyFailed indicates the study aborted; the wrapped cause is either
	// a persistence failure or corrupt pruner bookkeeping, both of which take
	// precedence over progress.
	ErrStudyFailed = errors.New("study failed")
)

// storeFatal marks a persistence failure as fatal to the study.
func storeFatal(err error) error {
	return fmt.Errorf("%w: store: %s", ErrStudyFailed, err)
}

// prunerFatal marks corrupt pruner bookkeeping as fatal to the study.
func prunerFatal(err error) error {
	return fmt.Errorf("%w: pruner: %s", ErrStudyFailed, err)
}

// IsStudyFailed checks whether the error aborted a whole study rather than a
// single trial.
func IsStudyFailed(err error) bool {
	return errors.Is(err, ErrStudyFailed)
}
