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

package status

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/thestormforge/optimize-engine/cli/internal/commander"
	"github.com/thestormforge/optimize-engine/internal/status"
	"github.com/thestormforge/optimize-engine/internal/storage"
)

// Options is the configuration for summarizing a study
type Options struct {
	// IOStreams are used to access the standard process streams
	commander.IOStreams

	// DatabaseURL is the PostgreSQL store holding the study
	DatabaseURL string
	// StudyID identifies the study to summarize
	StudyID string
	// Output is the summary format
	Output string
}

// NewCommand creates a command for inspecting the progress of a study.
func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status STUDY_ID",
		Short: "Show study status",
		Long:  "Show the progress of a study, including trial counts and the best trial so far.",

		Args: cobra.ExactArgs(1),

		PreRun: func(cmd *cobra.Command, args []string) {
			commander.SetStreams(&o.IOStreams, cmd)
			o.StudyID = args[0]
		},
		RunE: commander.WithContextE(o.status),
	}

	cmd.Flags().StringVar(&o.DatabaseURL, "database-url", "", "PostgreSQL `url` holding the study")
	cmd.Flags().StringVarP(&o.Output, "output", "o", "yaml", "output `format`")

	_ = cmd.MarkFlagRequired("database-url")
	commander.SetFlagValues(cmd, "output", "yaml", "json")

	return cmd
}

func (o *Options) status(ctx context.Context) error {
	db, err := storage.Open(ctx, o.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	summary, err := status.Summarize(ctx, db, o.StudyID)
	if err != nil {
		return err
	}

	switch o.Output {
	case "yaml", "":
		return yaml.NewEncoder(o.Out).Encode(summary)
	case "json":
		enc := json.NewEncoder(o.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	default:
		return fmt.Errorf("unknown output format: %s", o.Output)
	}
}
