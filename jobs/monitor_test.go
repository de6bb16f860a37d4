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
	"bytes"
	"context"
	"io/ioutil"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpcforge/sbatcher/helper/sshutil"
)

var tailRegexp = regexp.MustCompile(`tail -n \+(\d+) (\S+)`)

// monitorRecorder mocks the cluster access of a Monitor: scontrol answers
// are served from a canned sequence and tail commands read from an in-memory
// file content, honoring the starting line.
type monitorRecorder struct {
	scontrolOutputs []string
	files           map[string]string
	commands        []string

	polls int
}

func (r *monitorRecorder) client() *sshutil.MockSSHClient {
	return &sshutil.MockSSHClient{
		MockRunCommand: func(cmd string) (string, error) {
			r.commands = append(r.commands, cmd)
			if strings.HasPrefix(cmd, "scontrol show job") {
				out := r.scontrolOutputs[r.polls]
				if r.polls < len(r.scontrolOutputs)-1 {
					r.polls++
				}
				return out, nil
			}
			if m := tailRegexp.FindStringSubmatch(cmd); m != nil {
				content, ok := r.files[m[2]]
				if !ok {
					return "", nil
				}
				fromLine, err := strconv.Atoi(m[1])
				if err != nil {
					return "", err
				}
				lines := strings.SplitAfter(content, "\n")
				if fromLine > len(lines) {
					return "", nil
				}
				return strings.Join(lines[fromLine-1:], ""), nil
			}
			return "", nil
		},
	}
}

func mustReadTestFile(t *testing.T, path string) string {
	data, err := ioutil.ReadFile(path)
	require.Nil(t, err, "unexpected error reading %s", path)
	return string(data)
}

func TestMonitorRunUntilCompleted(t *testing.T) {
	t.Parallel()
	recorder := &monitorRecorder{
		scontrolOutputs: []string{
			mustReadTestFile(t, "testdata/scontrol_running.txt"),
			mustReadTestFile(t, "testdata/scontrol_completed.txt"),
		},
		files: map[string]string{
			"/home/jdoe/slurm-4567.out": "epoch 1\nepoch 2\n",
		},
	}
	var out bytes.Buffer
	m := &Monitor{Client: recorder.client(), TimeInterval: time.Millisecond, Out: &out}

	sub := &Submission{JobID: "4567", WorkingDir: "/home/jdoe", Artifacts: []string{"train.py"}}
	err := m.Run(context.Background(), sub)
	require.Nil(t, err, "a COMPLETED job should not be reported as an error")
	assert.Contains(t, out.String(), "epoch 1\nepoch 2\n")
	assert.Contains(t, strings.Join(recorder.commands, "\n"), "rm -rf /home/jdoe/train.py", "artifacts should be cleaned up after a successful run")
}

func TestMonitorRunRelaysNewContentOnly(t *testing.T) {
	t.Parallel()
	recorder := &monitorRecorder{
		scontrolOutputs: []string{
			mustReadTestFile(t, "testdata/scontrol_running.txt"),
			mustReadTestFile(t, "testdata/scontrol_completed.txt"),
		},
		files: map[string]string{
			"/home/jdoe/slurm-4567.out": "epoch 1\n",
		},
	}
	var out bytes.Buffer
	m := &Monitor{Client: recorder.client(), TimeInterval: time.Millisecond, Out: &out, KeepArtifacts: true}

	err := m.Run(context.Background(), &Submission{JobID: "4567"})
	require.Nil(t, err)
	assert.Equal(t, 1, strings.Count(out.String(), "epoch 1"), "already relayed lines should not be repeated on the next poll")
}

func TestMonitorRunWithFailedJob(t *testing.T) {
	t.Parallel()
	recorder := &monitorRecorder{
		scontrolOutputs: []string{mustReadTestFile(t, "testdata/scontrol_failed.txt")},
	}
	m := &Monitor{Client: recorder.client(), TimeInterval: time.Millisecond, Out: ioutil.Discard, KeepArtifacts: true}

	err := m.Run(context.Background(), &Submission{JobID: "4568"})
	require.NotNil(t, err, "a FAILED job should be reported as an error")
	assert.True(t, IsJobFailureError(err))
	assert.Equal(t, "FAILED", JobFailureState(err))
}

func TestMonitorRunCancelled(t *testing.T) {
	t.Parallel()
	recorder := &monitorRecorder{
		scontrolOutputs: []string{mustReadTestFile(t, "testdata/scontrol_running.txt")},
	}
	m := &Monitor{Client: recorder.client(), TimeInterval: time.Millisecond, Out: ioutil.Discard}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := m.Run(ctx, &Submission{JobID: "4567"})
	assert.Equal(t, context.Canceled, err, "cancelling the monitoring should not fail the job")
}

func TestTailFile(t *testing.T) {
	t.Parallel()
	recorder := &monitorRecorder{
		files: map[string]string{"/home/jdoe/train.log": "one\ntwo\nthree\n"},
	}
	output, err := TailFile(recorder.client(), "/home/jdoe/train.log", 2)
	require.Nil(t, err)
	assert.Equal(t, "two\nthree\n", output)
}
