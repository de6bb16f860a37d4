// Copyright 2018 Bull S.A.S. Atos Technologies - Bull, Rue Jean Jaures, B.P.68, 78340, Les Clayes-sous-Bois, France.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hpcforge/sbatcher/jobs"
	"github.com/hpcforge/sbatcher/runner"
	"github.com/hpcforge/sbatcher/telemetry"
)

func init() {
	var runCmd = &cobra.Command{
		Use:   "run <JobFile>",
		Short: "Run the pipeline of a job file on this host",
		Long: `Run the pipeline of a job file directly on this host, without going
through Slurm: environment activation, requirements installation then each
step in order. A step runs only if every step before it succeeded and step
error streams are captured into their files, exactly as the batch script
would do inside an allocation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.Errorf("Expecting a job file (got %d parameters)", len(args))
			}
			cfg := getConfig()
			if err := telemetry.Setup(cfg); err != nil {
				errExit(err)
			}
			spec, err := jobs.LoadSpec(cfg, args[0])
			if err != nil {
				errExit(err)
			}

			ctx, cancel := interruptibleContext()
			defer cancel()
			if err := runner.FromSpec(spec).Run(ctx); err != nil {
				errExit(err)
			}
			return nil
		},
	}
	RootCmd.AddCommand(runCmd)
}
