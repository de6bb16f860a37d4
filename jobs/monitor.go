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

package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hpcforge/sbatcher/config"
	"github.com/hpcforge/sbatcher/helper/sshutil"
	"github.com/hpcforge/sbatcher/log"
)

const bashLogger = `
if [ -f %s ]; then
    tail -n +%d %s
fi

`

// TailFile returns the content of a file on the login node starting at a
// 1-based line index. A missing file yields an empty content.
func TailFile(client sshutil.Client, filePath string, fromLine int) (string, error) {
	output, err := client.RunCommand(fmt.Sprintf(bashLogger, filePath, fromLine, filePath))
	if err != nil {
		return "", errors.Wrap(err, output)
	}
	return output, nil
}

// Monitor polls the state of a submitted job until it reaches a terminal
// state, relaying its captured outputs as they grow.
type Monitor struct {
	Client sshutil.Client
	// TimeInterval is the delay between two polls
	TimeInterval time.Duration
	// Out receives the job outputs, defaults to standard output
	Out io.Writer
	// KeepArtifacts prevents the cleanup of the uploaded artifacts once
	// the job successfully completed
	KeepArtifacts bool

	lastIndexes map[string]int
}

// NewMonitor returns a Monitor relying on the configured cluster access.
func NewMonitor(cfg config.Configuration) (*Monitor, error) {
	client, err := GetClient(cfg)
	if err != nil {
		return nil, err
	}
	interval := cfg.JobMonitoringTimeInterval
	if interval <= 0 {
		interval = config.DefaultJobMonitoringTimeInterval
	}
	return &Monitor{
		Client:        client,
		TimeInterval:  interval,
		KeepArtifacts: cfg.KeepJobRemoteArtifacts,
	}, nil
}

// Run polls the job until it reaches a terminal state. It returns nil when
// the job completed successfully and a job failure error when it reached any
// other terminal state, see IsJobFailureError. Cancelling the context stops
// the monitoring without cancelling the job itself.
func (m *Monitor) Run(ctx context.Context, sub *Submission) error {
	if m.lastIndexes == nil {
		m.lastIndexes = make(map[string]int)
	}
	interval := m.TimeInterval
	if interval <= 0 {
		interval = config.DefaultJobMonitoringTimeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("Monitoring has been cancelled. The job state polling is stopping now")
			return ctx.Err()
		case <-ticker.C:
			done, err := m.poll(sub)
			if done || err != nil {
				return err
			}
		}
	}
}

func (m *Monitor) poll(sub *Submission) (bool, error) {
	info, err := ShowJob(m.Client, sub.JobID)
	if err != nil {
		return true, errors.Wrapf(err, "failed to get job info with jobID:%q", sub.JobID)
	}

	state := info["JobState"]
	if info["Reason"] != "" && info["Reason"] != "None" {
		log.Printf("Job Name:%s, ID:%s, State:%s, Reason:%s, Execution Time:%s", info["JobName"], info["JobId"], state, info["Reason"], info["RunTime"])
	} else {
		log.Printf("Job Name:%s, ID:%s, State:%s, Execution Time:%s", info["JobName"], info["JobId"], state, info["RunTime"])
	}

	stdOut, existStdOut := info["StdOut"]
	stdErr, existStdErr := info["StdErr"]
	if existStdOut && existStdErr && stdOut == stdErr {
		m.logFile(stdOut, "StdOut/StdErr")
	} else {
		if existStdOut {
			m.logFile(stdOut, "StdOut")
		}
		if existStdErr {
			m.logFile(stdErr, "StdErr")
		}
	}
	for _, o := range sub.Outputs {
		if o != stdOut && o != stdErr {
			m.logFile(o, "Output")
		}
	}
	// See default output if nothing is specified here
	if !existStdOut && !existStdErr && len(sub.Outputs) == 0 {
		m.logFile(fmt.Sprintf("slurm-%s.out", sub.JobID), "StdOut/StdErr")
	}

	switch {
	case IsSuccessState(state):
		// job has been done successfully: stop monitoring and cleanup
		if !m.KeepArtifacts {
			m.removeArtifacts(sub)
		}
		return true, nil
	case IsTransientState(state):
		// job is still running or its state is about to be set
		// definitively: monitoring is keeping on
		return false, nil
	default:
		// other cases as FAILED, CANCELLED, TIMEOUT, etc
		log.Printf("job info:%+v", info)
		return true, &jobFailure{jobID: sub.JobID, state: state}
	}
}

func (m *Monitor) logFile(filePath, fileType string) {
	lastInd := m.lastIndexes[filePath]
	output, err := TailFile(m.Client, filePath, lastInd+1)
	if err != nil {
		log.Debugf("fail to log file (%s)due to error:%+v:", filePath, err)
		return
	}
	if strings.TrimSpace(output) != "" {
		fmt.Fprintf(m.out(), "%s %s:\n%s", fileType, filePath, output)
	}
	m.lastIndexes[filePath] = lastInd + strings.Count(output, "\n")
}

func (m *Monitor) removeArtifacts(sub *Submission) {
	for _, art := range sub.Artifacts {
		if art != "" {
			p := path.Join(sub.WorkingDir, art)
			log.Debugf("Remove artifact %q", p)
			cmd := fmt.Sprintf("rm -rf %s", p)
			if _, err := m.Client.RunCommand(cmd); err != nil {
				log.Printf("an error:%+v occurred during removing artifact %q", err, p)
			}
		}
	}
}

func (m *Monitor) out() io.Writer {
	if m.Out != nil {
		return m.Out
	}
	return os.Stdout
}
