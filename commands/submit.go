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
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hpcforge/sbatcher/jobs"
	"github.com/hpcforge/sbatcher/telemetry"
)

func init() {
	var scriptFile string
	var follow bool
	var submitCmd = &cobra.Command{
		Use:   "submit <JobFile>",
		Short: "Submit a job to the cluster",
		Long: `Submit the job described by a job file. The batch script is rendered
from the job file and submitted with sbatch on the login node. With the
script flag an existing batch script is submitted instead, the job file
directives being passed as sbatch options.`,
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
			submitter, err := jobs.NewSubmitter(cfg)
			if err != nil {
				errExit(err)
			}

			ctx, cancel := interruptibleContext()
			defer cancel()

			var sub *jobs.Submission
			if scriptFile != "" {
				sub, err = submitter.SubmitScript(ctx, spec, scriptFile)
			} else {
				sub, err = submitter.Submit(ctx, spec)
			}
			if err != nil {
				errExit(err)
			}
			fmt.Printf("Submitted batch job %s\n", sub.JobID)

			if !follow {
				return nil
			}
			monitor := &jobs.Monitor{
				Client:        submitter.Client,
				TimeInterval:  spec.MonitoringInterval(cfg),
				KeepArtifacts: cfg.KeepJobRemoteArtifacts,
			}
			err = monitor.Run(ctx, sub)
			if jobs.IsJobFailureError(err) {
				errExit(err)
			}
			if err != nil {
				errExit(errors.Wrapf(err, "failed to monitor job with id:%q", sub.JobID))
			}
			return nil
		},
	}
	submitCmd.PersistentFlags().StringVarP(&scriptFile, "script", "s", "", "submit this existing batch script instead of rendering one from the job file")
	submitCmd.PersistentFlags().BoolVarP(&follow, "follow", "f", false, "watch the job state and relay its outputs until it reaches a terminal state")
	RootCmd.AddCommand(submitCmd)
}
