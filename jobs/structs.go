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

// Package jobs handles the description, submission and monitoring of Slurm
// batch jobs.
package jobs

import (
	"fmt"

	"github.com/pkg/errors"
)

// A Step is a single program of a job pipeline.
//
// Its command runs only if every step before it succeeded. When Stderr is set
// the command standard error is captured into this file, relative to the job
// working directory. Standard output is left untouched and goes to the
// regular Slurm output file.
type Step struct {
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`
	Command string `yaml:"command" json:"command"`
	Stderr  string `yaml:"stderr,omitempty" json:"stderr,omitempty"`
}

// A Spec is the description of a batch job as read from a job file.
//
// Resource quantities are expressed per GPU as the Slurm per-GPU directives
// do. On clusters too old to support those directives equivalent aggregated
// options are computed at submission time.
type Spec struct {
	// Name of the job, defaults to the job file base name
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// MailUser is the address receiving job event notifications
	MailUser string `yaml:"mail_user,omitempty" json:"mail_user,omitempty"`
	// MailTypes are the event types triggering a notification, defaults to
	// ALL when a mail user is set
	MailTypes []string `yaml:"mail_types,omitempty" json:"mail_types,omitempty"`

	// Tasks is the number of tasks of the job, defaults to 1
	Tasks int `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	// Nodes is the number of nodes allocated to the job, defaults to 1
	Nodes int `yaml:"nodes,omitempty" json:"nodes,omitempty"`
	// GPUs is the total number of GPUs allocated to the job
	GPUs int `yaml:"gpus,omitempty" json:"gpus,omitempty"`
	// CPUsPerGPU is the number of CPUs allocated per GPU
	CPUsPerGPU int `yaml:"cpus_per_gpu,omitempty" json:"cpus_per_gpu,omitempty"`
	// MemPerGPU is the memory allocated per GPU, as a Slurm quantity
	// ("16G") or a human readable one ("16 GB")
	MemPerGPU string `yaml:"mem_per_gpu,omitempty" json:"mem_per_gpu,omitempty"`

	// Time is the wall-clock limit of the job in a Slurm acceptable format
	// or as a Go duration
	Time string `yaml:"time,omitempty" json:"time,omitempty"`
	// Partition requests a specific partition for resource allocation
	Partition string `yaml:"partition,omitempty" json:"partition,omitempty"`

	// WorkingDir is the directory the job runs in, overriding the
	// configured working directory
	WorkingDir string `yaml:"working_dir,omitempty" json:"working_dir,omitempty"`
	// EnvFile is an environment setup script sourced before the first step,
	// typically a virtualenv activation script
	EnvFile string `yaml:"env_file,omitempty" json:"env_file,omitempty"`
	// Requirements is a pip requirements file installed after the
	// environment setup and before the first step
	Requirements string `yaml:"requirements,omitempty" json:"requirements,omitempty"`

	// Steps is the ordered pipeline of programs run by the job
	Steps []Step `yaml:"steps" json:"steps"`

	// Inputs are environment variables exported to the job
	Inputs map[string]string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	// Artifacts are files or directories, relative to the job file, copied
	// into the working directory before submission
	Artifacts []string `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`

	// ExtraOptions are additional sbatch options given without their
	// leading dashes, as "export=ALL"
	ExtraOptions []string `yaml:"extra_options,omitempty" json:"extra_options,omitempty"`
	// InScriptOptions are raw comment lines inserted after the directives
	// block, for site specific prologues as burst buffer directives
	InScriptOptions []string `yaml:"in_script_options,omitempty" json:"in_script_options,omitempty"`

	// MonitoringTimeInterval overrides the configured delay between two
	// job state polls
	MonitoringTimeInterval string `yaml:"monitoring_time_interval,omitempty" json:"monitoring_time_interval,omitempty"`

	// baseDir is the directory of the job file, artifacts are resolved
	// against it
	baseDir string
}

// Info is the short description of a job as reported by squeue.
type Info struct {
	ID    string
	Name  string
	State string
}

// Submission is the result of a job submission.
type Submission struct {
	// JobID is the ID attributed by Slurm
	JobID string
	// WorkingDir is the directory the job runs in
	WorkingDir string
	// Outputs are the files capturing the job outputs, to be watched
	// during monitoring
	Outputs []string
	// Artifacts are the working directory entries uploaded for this
	// submission, removed once the job ends unless the configuration asks
	// to keep them
	Artifacts []string
}

type noJobFound struct {
	msg string
}

func (jid *noJobFound) Error() string {
	return jid.msg
}

// IsNoJobFoundError checks if the given error is due to a missing job
func IsNoJobFoundError(err error) bool {
	_, ok := errors.Cause(err).(*noJobFound)
	return ok
}

type jobFailure struct {
	jobID string
	state string
}

func (jf *jobFailure) Error() string {
	return fmt.Sprintf("job with ID:%q finished unsuccessfully with state:%q", jf.jobID, jf.state)
}

// IsJobFailureError checks if the given error is due to a job finished in a
// failed state
func IsJobFailureError(err error) bool {
	_, ok := errors.Cause(err).(*jobFailure)
	return ok
}

// JobFailureState returns the final state of the job a failure error reports,
// or an empty string if the error is not a job failure
func JobFailureState(err error) string {
	if jf, ok := errors.Cause(err).(*jobFailure); ok {
		return jf.state
	}
	return ""
}
