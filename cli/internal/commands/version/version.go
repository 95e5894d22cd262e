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

package version

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thestormforge/optimize-engine/cli/internal/commander"
	"github.com/thestormforge/optimize-engine/internal/version"
)

// Options is the configuration for reporting version information
type Options struct {
	// IOStreams are used to access the standard process streams
	commander.IOStreams

	// ShowComponents toggles the JSON output with the full build information
	ShowComponents bool
}

// NewCommand creates a command for reporting the version.
func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version information",

		PreRun: commander.StreamsPreRun(&o.IOStreams),
		RunE:   commander.WithContextE(o.version),
	}

	cmd.Flags().BoolVar(&o.ShowComponents, "components", false, "show the full build information")

	return cmd
}

func (o *Options) version(_ context.Context) error {
	if o.ShowComponents {
		enc := json.NewEncoder(o.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(version.GetInfo())
	}

	_, _ = fmt.Fprintf(o.Out, "optimize-engine version %s\n", version.GetInfo())
	return nil
}
