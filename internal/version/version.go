/*
Copyright 2019 GramLabs, Inc.

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
	"fmt"
	"strings"
)

// The default version must be in the format of a "pre-release" version, e.g. it
// must end with "-X" where X is the name of the unreleased version
const defaultVersion = "v0.0.0-source"

// Overwritten during builds using linker flags
var (
	Version       = defaultVersion
	BuildMetadata = ""
	GitCommit     = ""
)

// Info is the version information
type Info struct {
	Version       string `json:"version"`
	BuildMetadata string `json:"buildMetadata,omitempty"`
	GitCommit     string `json:"gitCommit,omitempty"`
}

// String returns a semver formatted version string
func (i *Info) String() string {
	version := i.Version
	if version == "" {
		version = defaultVersion
	}
	// Only append build metadata on pre-release versions
	if i.BuildMetadata != "" && strings.Contains(version, "-") {
		version = fmt.Sprintf("%s+%s", version, i.BuildMetadata)
	}
	return version
}

// GetInfo returns the current version information
func GetInfo() *Info {
	return &Info{
		Version:       Version,
		BuildMetadata: BuildMetadata,
		GitCommit:     GitCommit,
	}
}
