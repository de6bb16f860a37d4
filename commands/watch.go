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
)

func init() {
	var watchCmd = &cobra.Command{
		Use:   "watch <JobID>",
		Short: "Watch a job until it reaches a terminal state",
		Long: `Poll the state of a submitted job and relay its captured outputs as
they grow, until the job reaches a terminal state. The command exits with an
error when the job finished unsuccessfully. Interrupting the watch does not
cancel the job itself.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.Errorf("Expecting a job id (got %d parameters)", len(args))
			}
			monitor, err := jobs.NewMonitor(getConfig())
			if err != nil {
				errExit(err)
			}
			// watching an already submitted job never cleans up its
			// artifacts, they belong to the submission
			monitor.KeepArtifacts = true

			ctx, cancel := interruptibleContext()
			defer cancel()
			err = monitor.Run(ctx, &jobs.Submission{JobID: args[0]})
			if jobs.IsJobFailureError(err) {
				errExit(err)
			}
			if err != nil {
				errExit(errors.Wrapf(err, "failed to monitor job with id:%q", args[0]))
			}
			return nil
		},
	}
	RootCmd.AddCommand(watchCmd)
}
