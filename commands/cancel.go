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
)

func init() {
	var cancelCmd = &cobra.Command{
		Use:   "cancel <JobID>",
		Short: "Cancel a job",
		Long:  `Cancel a submitted job with scancel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.Errorf("Expecting a job id (got %d parameters)", len(args))
			}
			client, err := jobs.GetClient(getConfig())
			if err != nil {
				errExit(err)
			}
			if err := jobs.CancelJob(client, args[0]); err != nil {
				errExit(err)
			}
			fmt.Printf("Cancellation requested for job %s\n", args[0])
			return nil
		},
	}
	RootCmd.AddCommand(cancelCmd)
}
