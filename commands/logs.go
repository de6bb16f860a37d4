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
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hpcforge/sbatcher/config"
	"github.com/hpcforge/sbatcher/helper/sshutil"
	"github.com/hpcforge/sbatcher/jobs"
	"github.com/hpcforge/sbatcher/log"
)

func init() {
	var fromBeginning bool
	var noStream bool
	var logsCmd = &cobra.Command{
		Use:     "logs <JobID>",
		Short:   "Stream the captured outputs of a job",
		Aliases: []string{"log"},
		Long: `Stream the files capturing the outputs of a job, as reported by the
cluster, until the job reaches a terminal state. By default only new content
is relayed, starting at the current end of the files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.Errorf("Expecting a job id (got %d parameters)", len(args))
			}
			jobID := args[0]
			cfg := getConfig()
			client, err := jobs.GetClient(cfg)
			if err != nil {
				errExit(err)
			}
			info, err := jobs.ShowJob(client, jobID)
			if err != nil {
				errExit(err)
			}
			paths := outputPaths(jobID, info)

			streamLogs(client, cfg, jobID, paths, fromBeginning, noStream)
			return nil
		},
	}
	logsCmd.PersistentFlags().BoolVarP(&fromBeginning, "from-beginning", "b", false, "Show the job outputs from the beginning of the files")
	logsCmd.PersistentFlags().BoolVarP(&noStream, "no-stream", "n", false, "Show the job outputs then exit. Do not stream them. It implies --from-beginning")
	RootCmd.AddCommand(logsCmd)
}

// outputPaths returns the files capturing the outputs of a job from its
// scontrol description, falling back to the default Slurm output file.
func outputPaths(jobID string, info map[string]string) []string {
	paths := make([]string, 0, 2)
	if stdOut := info["StdOut"]; stdOut != "" {
		paths = append(paths, stdOut)
	}
	if stdErr := info["StdErr"]; stdErr != "" && stdErr != info["StdOut"] {
		paths = append(paths, stdErr)
	}
	if len(paths) == 0 {
		paths = append(paths, fmt.Sprintf("slurm-%s.out", jobID))
	}
	return paths
}

func streamLogs(client sshutil.Client, cfg config.Configuration, jobID string, paths []string, fromBeginning, noStream bool) {
	lastIndexes := make(map[string]int, len(paths))
	relay := func() {
		for _, p := range paths {
			output, err := jobs.TailFile(client, p, lastIndexes[p]+1)
			if err != nil {
				log.Debugf("failed to tail file %q: %v", p, err)
				continue
			}
			if strings.TrimSpace(output) != "" {
				fmt.Print(output)
			}
			lastIndexes[p] += strings.Count(output, "\n")
		}
	}

	if noStream {
		relay()
		return
	}
	if !fromBeginning {
		// start at the current end of the files, relaying only new content
		for _, p := range paths {
			output, err := jobs.TailFile(client, p, 1)
			if err != nil {
				continue
			}
			lastIndexes[p] = strings.Count(output, "\n")
		}
	}

	interval := cfg.JobMonitoringTimeInterval
	if interval <= 0 {
		interval = config.DefaultJobMonitoringTimeInterval
	}
	ctx, cancel := interruptibleContext()
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			relay()
			info, err := jobs.GetInfo(client, jobID, "")
			if jobs.IsNoJobFoundError(err) || (err == nil && !jobs.IsTransientState(info.State)) {
				// final relay, the job may have written between the
				// last tail and its completion
				relay()
				return
			}
		}
	}
}
