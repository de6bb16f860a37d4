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
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpcforge/sbatcher/helper/sshutil"
)

func TestGetInfo(t *testing.T) {
	t.Parallel()
	type args struct {
		sshCli  sshutil.Client
		jobID   string
		jobName string
	}

	tests := []struct {
		name    string
		args    args
		want    *Info
		wantErr bool
		err     error
	}{
		{"TestWithJobID", args{&sshutil.MockSSHClient{
			MockRunCommand: func(cmd string) (string, error) {
				return "my_test,123,RUNNING", nil
			}}, "123", ""}, &Info{ID: "123", Name: "my_test", State: "RUNNING"}, false, nil},
		{"TestWithJobName", args{&sshutil.MockSSHClient{
			MockRunCommand: func(cmd string) (string, error) {
				return "my_test,123,RUNNING", nil
			}}, "", "my_test"}, &Info{ID: "123", Name: "my_test", State: "RUNNING"}, false, nil},
		{"TestWithoutParams", args{&sshutil.MockSSHClient{
			MockRunCommand: func(cmd string) (string, error) {
				return "", nil
			}}, "", ""}, nil, true, nil},
		{"TestWithMalformedOutput", args{&sshutil.MockSSHClient{
			MockRunCommand: func(cmd string) (string, error) {
				return "MALFORMED", nil
			}}, "123", ""}, nil, true, nil},
		{"TestWithJobNotFound", args{&sshutil.MockSSHClient{
			MockRunCommand: func(cmd string) (string, error) {
				return "", nil
			}}, "123", ""}, nil, true, &noJobFound{msg: fmt.Sprintf("no information found for job with id:%q, name:%q", "123", "")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := GetInfo(tt.args.sshCli, tt.args.jobID, tt.args.jobName)
			if (err != nil) != tt.wantErr {
				t.Errorf("TestGetInfo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.err != nil && !reflect.DeepEqual(err, tt.err) {
				t.Errorf("TestGetInfo() error = %v, expected err:%v", err, tt.err)
			}
			if !reflect.DeepEqual(info, tt.want) {
				t.Fatalf("TestGetInfo() = %v, want %v", info, tt.want)
			}
		})
	}
}

func TestShowJob(t *testing.T) {
	t.Parallel()
	data, err := ioutil.ReadFile("testdata/scontrol_running.txt")
	require.Nil(t, err, "unexpected error while reading test file")
	client := &sshutil.MockSSHClient{
		MockRunCommand: func(cmd string) (string, error) {
			assert.Equal(t, "scontrol show job 4567", cmd)
			return string(data), nil
		},
	}

	info, err := ShowJob(client, "4567")
	require.Nil(t, err, "unexpected error showing job")
	assert.Equal(t, "4567", info["JobId"])
	assert.Equal(t, "cta-train", info["JobName"])
	assert.Equal(t, "RUNNING", info["JobState"])
	assert.Equal(t, "None", info["Reason"])
	assert.Equal(t, "00:02:10", info["RunTime"])
	assert.Equal(t, "/home/jdoe/slurm-4567.out", info["StdOut"])
	assert.Equal(t, "/home/jdoe/slurm-4567.out", info["StdErr"])
}

func TestShowJobWithUnknownJob(t *testing.T) {
	t.Parallel()
	client := &sshutil.MockSSHClient{
		MockRunCommand: func(cmd string) (string, error) {
			return "slurm_load_jobs error: Invalid job id specified", errors.New("exited with status 1")
		},
	}
	_, err := ShowJob(client, "666")
	require.Error(t, err, "expected a no job found error")
	assert.True(t, IsNoJobFoundError(err))
}

func TestShowJobWithEmptyOutput(t *testing.T) {
	t.Parallel()
	client := &sshutil.MockSSHClient{
		MockRunCommand: func(cmd string) (string, error) {
			return "", nil
		},
	}
	_, err := ShowJob(client, "666")
	require.Error(t, err, "expected a no job found error")
	assert.True(t, IsNoJobFoundError(err))
}

func TestCancelJob(t *testing.T) {
	t.Parallel()
	var ranCmd string
	client := &sshutil.MockSSHClient{
		MockRunCommand: func(cmd string) (string, error) {
			ranCmd = cmd
			return "", nil
		},
	}
	err := CancelJob(client, "1234")
	require.Nil(t, err, "unexpected error cancelling job")
	assert.Equal(t, "scancel 1234", ranCmd)
}

func TestCancelJobWithFailure(t *testing.T) {
	t.Parallel()
	client := &sshutil.MockSSHClient{
		MockRunCommand: func(cmd string) (string, error) {
			return "scancel: error: Invalid job id 1234", errors.New("exited with status 1")
		},
	}
	err := CancelJob(client, "1234")
	require.Error(t, err, "expected an error cancelling an unknown job")
	assert.Contains(t, err.Error(), "1234")
}

func TestParseSubmitOutput(t *testing.T) {
	t.Parallel()
	str := "Submitted batch job 4567"
	ret, err := ParseSubmitOutput(str)
	require.Nil(t, err, "unexpected error")
	require.Equal(t, "4567", ret, "unexpected JobID parsing")
}

func TestParseSubmitOutputWithMalformedOutput(t *testing.T) {
	t.Parallel()
	_, err := ParseSubmitOutput("sbatch: error: Batch job submission failed")
	require.Error(t, err, "expected an error parsing a submission failure")
}

func TestParseScriptOutputsWithAll(t *testing.T) {
	t.Parallel()
	expected := []string{"c.out", "file", "b.out"}
	data, err := os.Open("testdata/submit.sh")
	require.Nil(t, err, "unexpected error while opening test file")
	defer data.Close()
	outputParams, err := ParseScriptOutputs(data, true)
	require.Nil(t, err, "unexpected error while parsing output params from test file")
	require.Equal(t, expected, outputParams)
}

func TestParseScriptOutputs(t *testing.T) {
	t.Parallel()
	expected := []string{"file", "b.out"}
	data, err := os.Open("testdata/submit.sh")
	require.Nil(t, err, "unexpected error while opening test file")
	defer data.Close()
	outputParams, err := ParseScriptOutputs(data, false)
	require.Nil(t, err, "unexpected error while parsing output params from test file")
	require.Equal(t, expected, outputParams)
}

func TestParseOptsOutputs(t *testing.T) {
	t.Parallel()
	type args struct {
		opts []string
	}
	tests := []struct {
		name string
		args args
		want []string
	}{
		{"TestWithDashes", args{[]string{"--output=b.out"}}, []string{"b.out"}},
		{"TestWithoutDashes", args{[]string{"output=b.out", "error=e.log", "export=ALL"}}, []string{"b.out", "e.log"}},
		{"TestWithNoOutput", args{[]string{"export=ALL"}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOptsOutputs(tt.args.opts))
		})
	}
}

func TestParseKeyValue(t *testing.T) {
	t.Parallel()
	type args struct {
		str string
	}
	type checks struct {
		is    bool
		key   string
		value string
	}

	tests := []struct {
		name string
		args args
		want checks
	}{
		{"TestKeyValueSimple", args{"aaa=bbb"}, checks{true, "aaa", "bbb"}},
		{"TestNoKeyValue", args{"azerty"}, checks{false, "", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is, k, v := parseKeyValue(tt.args.str)
			assert.Equal(t, tt.want.is, is)
			assert.Equal(t, tt.want.key, k)
			assert.Equal(t, tt.want.value, v)
		})
	}
}

func TestParseVersion(t *testing.T) {
	t.Parallel()
	type want struct {
		version string
		perGPU  bool
	}
	tests := []struct {
		name    string
		output  string
		want    want
		wantErr bool
	}{
		{"TestModernRelease", "slurm 20.11.8", want{"20.11.8", true}, false},
		{"TestZeroPaddedMinor", "slurm 19.05.5", want{"19.5.5", true}, false},
		{"TestFirstPerGPURelease", "slurm 19.05", want{"19.5.0", true}, false},
		{"TestLegacyRelease", "slurm 17.11.9-2", want{"17.11.9-2", false}, false},
		{"TestMalformedOutput", "slurm", want{}, true},
		{"TestGarbageOutput", "bash: sbatch: command not found", want{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVersion(tt.output)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.Nil(t, err, "unexpected error parsing version")
			assert.Equal(t, tt.want.version, v.String())
			assert.Equal(t, tt.want.perGPU, SupportsPerGPUDirectives(v))
		})
	}
}

func TestGetVersion(t *testing.T) {
	t.Parallel()
	client := &sshutil.MockSSHClient{
		MockRunCommand: func(cmd string) (string, error) {
			assert.Equal(t, "sbatch --version", cmd)
			return "slurm 20.11.8\n", nil
		},
	}
	v, err := GetVersion(client)
	require.Nil(t, err, "unexpected error getting version")
	assert.Equal(t, "20.11.8", v.String())
}
