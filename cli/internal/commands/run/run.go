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

package run

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/cli/internal/commander"
	"github.com/thestormforge/optimize-engine/internal/engine"
	"github.com/thestormforge/optimize-engine/internal/searchspace"
	"github.com/thestormforge/optimize-engine/internal/storage"
	"github.com/thestormforge/optimize-engine/internal/telemetry"
)

// Options is the configuration for running a study to completion
type Options struct {
	// IOStreams are used to access the standard process streams
	commander.IOStreams

	// Filename is the study definition to run, "-" reads from stdin
	Filename string
	// DatabaseURL selects a relational store; trials are held in memory when empty
	DatabaseURL string
	// Deadline bounds the wall time of the run
	Deadline time.Duration
	// Verbose enables debug logging
	Verbose bool
}

// studyFile is the on disk study definition.
type studyFile struct {
	v1alpha1.Study `yaml:",inline"`
	Parameters     v1alpha1.Parameters `yaml:"parameters"`
	Objective      string              `yaml:"objective"`
}

// NewCommand creates a command for running a study against one of the built
// in demonstration objectives.
func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a study",
		Long:  "Run a study definition against a built in objective, reporting the best trial when it finishes.",

		PreRun: commander.StreamsPreRun(&o.IOStreams),
		RunE:   commander.WithContextE(o.run),
	}

	cmd.Flags().StringVarP(&o.Filename, "filename", "f", "-", "`file` containing the study to run")
	cmd.Flags().StringVar(&o.DatabaseURL, "database-url", "", "PostgreSQL `url` used to persist trials")
	cmd.Flags().DurationVar(&o.Deadline, "deadline", 0, "maximum `duration` to run before draining")
	cmd.Flags().BoolVarP(&o.Verbose, "verbose", "v", false, "enable debug logging")

	_ = cmd.MarkFlagFilename("filename", "yml", "yaml")

	return cmd
}

func (o *Options) run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sf, err := o.readStudy()
	if err != nil {
		return err
	}

	objective, err := DemoObjective(sf.Objective)
	if err != nil {
		return err
	}

	log, err := commander.NewLogger(o.Verbose)
	if err != nil {
		return err
	}

	store, closeStore, err := o.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	eng := &engine.Engine{
		Store:    store,
		Log:      log,
		Deadline: o.Deadline,
	}
	if o.Verbose {
		eng.Reporter = &telemetry.LogReporter{Log: log.WithName("events")}
	}

	study, best, err := eng.Run(ctx, &sf.Study, searchspace.Static(sf.Parameters), objective)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(o.Out, "Study %s %s\n", study.ID, study.Status)
	if best != nil {
		_, _ = fmt.Fprintf(o.Out, "Best trial: %d (value: %g)\n", best.Number, *best.FinalValue)
		for _, a := range best.Assignments {
			_, _ = fmt.Fprintf(o.Out, "  %s: %s\n", a.ParameterName, a.Value.String())
		}
	}
	return nil
}

func (o *Options) readStudy() (*studyFile, error) {
	r, err := o.OpenFile(o.Filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	sf := &studyFile{}
	if err := yaml.Unmarshal(data, sf); err != nil {
		return nil, fmt.Errorf("unable to parse study %s: %w", o.Filename, err)
	}
	if len(sf.Parameters) == 0 {
		return nil, fmt.Errorf("study %s does not define any parameters", o.Filename)
	}
	return sf, nil
}

func (o *Options) openStore(ctx context.Context) (storage.Store, func(), error) {
	if o.DatabaseURL == "" {
		return storage.NewInMemory(), func() {}, nil
	}

	db, err := storage.Open(ctx, o.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}
