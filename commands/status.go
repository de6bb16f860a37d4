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

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hpcforge/sbatcher/helper/stringutil"
	"github.com/hpcforge/sbatcher/helper/tabutil"
	"github.com/hpcforge/sbatcher/jobs"
)

func init() {
	var jobName string
	var statusCmd = &cobra.Command{
		Use:   "status [<JobID>]",
		Short: "Show the state of a job",
		Long: `Show the state of a job as reported by the cluster, looked up by job
id or by job name.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var jobID string
			if len(args) == 1 {
				jobID = args[0]
			} else if len(args) > 1 || (len(args) == 0 && jobName == "") {
				return errors.Errorf("Expecting a job id or a job name (got %d parameters)", len(args))
			}
			client, err := jobs.GetClient(getConfig())
			if err != nil {
				errExit(err)
			}
			info, err := jobs.GetInfo(client, jobID, jobName)
			if err != nil {
				errExit(err)
			}

			colorize := !noColor
			if colorize {
				defer color.Unset()
			}
			statusTable := tabutil.NewTable()
			statusTable.AddHeaders("Id", "Name", "State", "Reason", "Execution Time")
			reason, runTime := "", ""
			if details, err := jobs.ShowJob(client, info.ID); err == nil {
				if details["Reason"] != "None" {
					reason = stringutil.Truncate(details["Reason"], 40)
				}
				runTime = details["RunTime"]
			}
			statusTable.AddRow(info.ID, info.Name, coloredState(colorize, info.State), reason, runTime)
			fmt.Println(statusTable.Render())
			return nil
		},
	}
	statusCmd.PersistentFlags().StringVarP(&jobName, "name", "n", "", "look the job up by name instead of id")
	RootCmd.AddCommand(statusCmd)
}
