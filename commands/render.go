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
	"io/ioutil"

	"github.com/blang/semver"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hpcforge/sbatcher/jobs"
)

func init() {
	var outputFile string
	var slurmVersion string
	var renderCmd = &cobra.Command{
		Use:   "render <JobFile>",
		Short: "Render the batch script of a job file",
		Long: `Render the batch script a job file would be submitted with, without
submitting anything. The script is printed on standard output unless an
output file is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.Errorf("Expecting a job file (got %d parameters)", len(args))
			}
			spec, err := jobs.LoadSpec(getConfig(), args[0])
			if err != nil {
				errExit(err)
			}
			var v *semver.Version
			if slurmVersion != "" {
				parsed, err := jobs.ParseVersion(slurmVersion)
				if err != nil {
					errExit(err)
				}
				v = &parsed
			}
			script, err := jobs.BatchScript(spec, v)
			if err != nil {
				errExit(err)
			}
			if outputFile == "" {
				fmt.Print(script)
				return nil
			}
			if err := ioutil.WriteFile(outputFile, []byte(script), 0755); err != nil {
				errExit(err)
			}
			return nil
		},
	}
	renderCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write the batch script to this file instead of standard output")
	renderCmd.PersistentFlags().StringVar(&slurmVersion, "slurm-version", "", "render for this Slurm release (as \"slurm 17.11.9-2\") instead of an up to date cluster")
	RootCmd.AddCommand(renderCmd)
}
