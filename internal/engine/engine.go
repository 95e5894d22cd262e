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

// Package engine turns a study specification into a completed study: it
// drives the sampler, schedules trials onto a bounded worker pool, mediates
// intermediate reports with the pruner and commits everything to the store.
// The store is the only shared mutable surface; sampler state is owned by the
// executor loop and every random draw is keyed by (seed, trial number).
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/internal/pruner"
	"github.com/thestormforge/optimize-engine/internal/rng"
	"github.com/thestormforge/optimize-engine/internal/sampler"
	"github.com/thestormforge/optimize-engine/internal/searchspace"
	"github.com/thestormforge/optimize-engine/internal/status"
	"github.com/thestormforge/optimize-engine/internal/storage"
	"github.com/thestormforge/optimize-engine/internal/telemetry"
)

// Engine coordinates parallel trial evaluation for one study at a time.
type Engine struct {
	// Store persists studies, trials and observations; a write failure here
	// is fatal to the study.
	Store storage.Store
	// Reporter receives lifecycle events; nil discards them.
	Reporter telemetry.Reporter
	// Log is the engine's structured log sink; the zero value discards.
	Log logr.Logger
	// Deadline optionally bounds the wall time of Run; when it expires the
	// study completes after the running trials drain.
	Deadline time.Duration
}

// completion is the event a worker sends when its trial finishes for any reason.
type completion struct {
	trial    *v1alpha1.Trial
	value    float64
	err      error
	panicked bool
	pruned   bool
	fatal    error
}

// Run executes the study to a terminal state and returns the final study
// value together with the best trial by the study's goal. Per-trial errors
// are absorbed into failed trials; a returned error means the study itself
// could not reach its budget.
func (e *Engine) Run(ctx context.Context, in *v1alpha1.Study, space searchspace.Resolver, objective Objective) (*v1alpha1.Study, *v1alpha1.Trial, error) {
	study := *in
	study.Default()
	if err := study.Validate(); err != nil {
		return nil, nil, err
	}
	if study.ID == "" {
		study.ID = uuid.NewString()
	}
	if study.CreatedAt.IsZero() {
		study.CreatedAt = time.Now()
	}

	log := e.logger().WithValues("study", study.ID)
	reporter := e.reporter()

	smplr, err := newSampler(&study)
	if err != nil {
		return nil, nil, err
	}
	prnr, err := newPruner(&study)
	if err != nil {
		return nil, nil, err
	}

	if err := e.Store.CreateStudy(ctx, &study); err != nil {
		if !errors.Is(err, storage.ErrStudyExists) {
			return nil, nil, storeFatal(err)
		}
		// Resuming: adopt the persisted study and fail anything a previous
		// process left running
		stored, err := e.Store.GetStudy(ctx, study.ID)
		if err != nil {
			return nil, nil, storeFatal(err)
		}
		study = *stored
		study.Default()
		if err := e.failOrphans(ctx, &study); err != nil {
			return nil, nil, err
		}
		log.Info("Resuming study", "status", study.Status)
	}

	if study.IsTerminal() {
		best, err := e.bestTrial(ctx, &study)
		return &study, best, err
	}

	final, err := e.run(ctx, &study, space, smplr, prnr, objective, reporter, log)
	best, bestErr := e.bestTrial(ctx, final)
	if err == nil {
		err = bestErr
	}
	return final, best, err
}

func (e *Engine) run(ctx context.Context, study *v1alpha1.Study, space searchspace.Resolver, smplr sampler.Sampler, prnr pruner.Pruner, objective Objective, reporter telemetry.Reporter, log logr.Logger) (*v1alpha1.Study, error) {
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var deadline <-chan time.Time
	if e.Deadline > 0 {
		timer := time.NewTimer(e.Deadline)
		defer timer.Stop()
		deadline = timer.C
	}

	trials, err := e.Store.ListTrials(ctx, study.ID)
	if err != nil {
		return study, storeFatal(err)
	}
	terminal := len(storage.TerminalTrials(trials))
	next := int64(len(trials))

	var (
		workers  errgroup.Group
		results  = make(chan completion, study.Parallelism)
		inFlight = make(map[int64]*v1alpha1.Trial, study.Parallelism)

		draining  bool
		cancelled bool
		expired   bool
		fatalErr  error
	)

	fail := func(err error) {
		if fatalErr == nil {
			fatalErr = err
		}
		draining = true
		cancelWorkers()
	}

	for {
		// Refresh the status so external pause and cancel requests are honored
		// at the next dispatch opportunity
		current, err := e.Store.GetStudy(ctx, study.ID)
		if err != nil {
			fail(storeFatal(err))
		} else {
			study.Status = current.Status
		}
		if study.Status == v1alpha1.StudyCancelled && !draining {
			draining = true
			cancelled = true
			cancelWorkers()
		}

		for !draining && study.Status == v1alpha1.StudyRunning &&
			len(inFlight) < study.Parallelism && terminal+len(inFlight) < study.MaxTrials {
			trial, err := e.dispatch(ctx, workerCtx, study, space, smplr, prnr, next, inFlight, objective, results, &workers, reporter, log)
			if err != nil {
				fail(err)
				break
			}
			inFlight[trial.Number] = trial
			next++
		}

		if len(inFlight) == 0 {
			break
		}

		select {
		case c := <-results:
			delete(inFlight, c.trial.Number)
			terminal++
			if c.fatal != nil {
				fail(c.fatal)
			}
			if err := e.finalize(ctx, study, c, reporter, log); err != nil {
				fail(err)
			}
		case <-ctx.Done():
			draining = true
			cancelled = true
			cancelWorkers()
		case <-deadline:
			// Let the running trials drain, then complete
			draining = true
			expired = true
			deadline = nil
		}
	}

	_ = workers.Wait()

	switch {
	case fatalErr != nil:
		study.Status = v1alpha1.StudyFailed
		if err := e.Store.SetStudyStatus(ctx, study.ID, study.Status); err != nil {
			log.Error(err, "Unable to persist failed study status")
		}
		return study, fatalErr
	case cancelled, study.Status == v1alpha1.StudyCancelled:
		study.Status = v1alpha1.StudyCancelled
	case study.Status == v1alpha1.StudyPaused:
		// Leave the study paused and resumable
		return study, nil
	case terminal >= study.MaxTrials, expired:
		study.Status = v1alpha1.StudyCompleted
	}

	if err := e.Store.SetStudyStatus(ctx, study.ID, study.Status); err != nil {
		return study, storeFatal(err)
	}
	reporter.StudyCompleted(study.ID)
	log.Info("Study finished", "status", study.Status, "trials", terminal)
	return study, nil
}

// dispatch asks the sampler for the next assignment, persists the pending
// trial, transitions it to running and hands it to a worker.
func (e *Engine) dispatch(ctx, workerCtx context.Context, study *v1alpha1.Study, space searchspace.Resolver, smplr sampler.Sampler, prnr pruner.Pruner, number int64, inFlight map[int64]*v1alpha1.Trial, objective Objective, results chan<- completion, workers *errgroup.Group, reporter telemetry.Reporter, log logr.Logger) (*v1alpha1.Trial, error) {
	params, err := space.Resolve(number)
	if err != nil {
		return nil, err
	}

	trials, err := e.Store.ListTrials(ctx, study.ID)
	if err != nil {
		return nil, storeFatal(err)
	}
	history := storage.TerminalTrials(trials)

	if aware, ok := smplr.(sampler.InFlightAware); ok {
		running := make([]v1alpha1.Trial, 0, len(inFlight))
		for _, t := range inFlight {
			running = append(running, *t)
		}
		aware.SetInFlight(running)
	}

	var assignments v1alpha1.Assignments
	if number == 0 && len(study.Baselines) > 0 {
		assignments = study.Baselines
	} else {
		r := rng.New(study.Seed, number)
		assignments, err = smplr.Sample(params, number, history, r)
		if err != nil {
			// Numerical failure in the model is recovered locally with a
			// random proposal for this step
			log.Error(err, "Sampler error, falling back to random proposal", "trial", number)
			assignments, err = sampler.Random{}.Sample(params, number, history, r)
			if err != nil {
				return nil, err
			}
		}
	}
	if err := searchspace.CheckAssignments(params, assignments); err != nil {
		// An out of range proposal is a sampler bug, not a trial failure
		return nil, fmt.Errorf("invalid proposal for trial %d: %w", number, err)
	}

	trial := &v1alpha1.Trial{
		StudyID:     study.ID,
		Assignments: assignments,
		Status:      v1alpha1.TrialPending,
		Bracket:     prnr.AssignBracket(number),
		CreatedAt:   time.Now(),
	}
	if err := e.Store.AddTrial(ctx, trial); err != nil {
		return nil, storeFatal(err)
	}
	trial.Status = v1alpha1.TrialRunning
	if err := e.Store.UpdateTrial(ctx, trial); err != nil {
		return nil, storeFatal(err)
	}

	telemetry.StudyActiveTrials.WithLabelValues(study.ID).Inc()
	reporter.TrialStarted(study.ID, trial.Number)

	workers.Go(func() error {
		return e.evaluate(workerCtx, study, prnr, trial, objective, results, reporter)
	})
	return trial, nil
}

// evaluate runs the objective for one trial, mediating its intermediate
// reports with the store and the pruner.
func (e *Engine) evaluate(ctx context.Context, study *v1alpha1.Study, prnr pruner.Pruner, trial *v1alpha1.Trial, objective Objective, results chan<- completion, reporter telemetry.Reporter) error {
	c := completion{trial: trial}

	report := func(value float64, rung int) Decision {
		// Cooperative cancellation surfaces as a synthetic prune
		if ctx.Err() != nil {
			c.pruned = true
			return Prune
		}

		if err := e.Store.RecordObservation(ctx, study.ID, trial.Number, v1alpha1.Observation{Rung: rung, Value: value}); err != nil {
			if storage.IgnoreAlreadyExists(err) == nil {
				// The objective re-reported a rung; stop it without failing the study
				c.pruned = true
				return Prune
			}
			c.fatal = storeFatal(err)
			c.pruned = true
			return Prune
		}
		telemetry.StudyObservationsTotal.WithLabelValues(study.ID).Inc()
		reporter.TrialReported(study.ID, trial.Number, rung, value)

		keep, err := prnr.Keep(ctx, e.Store, study, trial, rung)
		if err != nil {
			c.fatal = prunerFatal(err)
			c.pruned = true
			return Prune
		}
		if !keep {
			c.pruned = true
			return Prune
		}
		return Continue
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				c.err = fmt.Errorf("objective panic: %v", r)
				c.panicked = true
			}
		}()
		c.value, c.err = objective(ctx, trial.Assignments, report)
	}()

	results <- c
	return c.fatal
}

// finalize commits a trial's terminal state; exactly one terminal status is
// ever written because the store rejects updates of finalized trials.
func (e *Engine) finalize(ctx context.Context, study *v1alpha1.Study, c completion, reporter telemetry.Reporter, log logr.Logger) error {
	now := time.Now()
	trial := c.trial
	trial.CompletedAt = &now

	switch {
	case c.pruned:
		trial.Status = v1alpha1.TrialPruned
	case c.err != nil:
		trial.Status = v1alpha1.TrialFailed
		trial.FailureReason = ReasonObjectiveError
		if c.panicked {
			trial.FailureReason = ReasonObjectivePanic
		}
	default:
		trial.Status = v1alpha1.TrialSucceeded
		value := c.value
		trial.FinalValue = &value
	}

	if err := e.Store.UpdateTrial(ctx, trial); err != nil {
		return storeFatal(err)
	}

	telemetry.StudyActiveTrials.WithLabelValues(study.ID).Dec()
	telemetry.StudyTrialsTotal.WithLabelValues(study.ID, string(trial.Status)).Inc()
	switch trial.Status {
	case v1alpha1.TrialPruned:
		reporter.TrialPruned(study.ID, trial.Number)
	case v1alpha1.TrialFailed:
		log.Info("Trial failed", "trial", trial.Number, "reason", trial.FailureReason, "error", c.err)
		reporter.TrialFailed(study.ID, trial.Number, trial.FailureReason)
	default:
		reporter.TrialSucceeded(study.ID, trial.Number, c.value)
	}
	return nil
}

// failOrphans fails any trial a previous process left non-terminal; a worker
// crash is indistinguishable from a trial failure to the store.
func (e *Engine) failOrphans(ctx context.Context, study *v1alpha1.Study) error {
	trials, err := e.Store.ListTrials(ctx, study.ID)
	if err != nil {
		return storeFatal(err)
	}
	now := time.Now()
	for i := range trials {
		t := &trials[i]
		if t.IsTerminal() {
			continue
		}
		t.Status = v1alpha1.TrialFailed
		t.FailureReason = ReasonOrphaned
		t.CompletedAt = &now
		if err := e.Store.UpdateTrial(ctx, t); err != nil {
			return storeFatal(err)
		}
	}
	return nil
}

func (e *Engine) bestTrial(ctx context.Context, study *v1alpha1.Study) (*v1alpha1.Trial, error) {
	trials, err := e.Store.ListTrials(ctx, study.ID)
	if err != nil {
		return nil, storeFatal(err)
	}
	return status.BestTrial(study.Goal, trials), nil
}

func (e *Engine) logger() logr.Logger {
	if e.Log.GetSink() == nil {
		return logr.Discard()
	}
	return e.Log
}

func (e *Engine) reporter() telemetry.Reporter {
	if e.Reporter == nil {
		return telemetry.NopReporter{}
	}
	return e.Reporter
}
