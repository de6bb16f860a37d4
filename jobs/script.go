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
	"fmt"
	"strings"

	"github.com/blang/semver"
	uuid "github.com/satori/go.uuid"
)

const shebang = "#!/bin/bash"

// directives returns the ordered sbatch options of a job spec. A nil version
// stands for an up to date cluster. On clusters missing the per-GPU options
// equivalent aggregated options are rendered instead.
func directives(s *Spec, v *semver.Version) ([]string, error) {
	perGPU := v == nil || SupportsPerGPUDirectives(*v)

	opts := make([]string, 0, 12)
	opts = append(opts, fmt.Sprintf("--job-name=%s", s.Name))
	if s.MailUser != "" {
		opts = append(opts, fmt.Sprintf("--mail-user=%s", s.MailUser))
	}
	if len(s.MailTypes) > 0 {
		opts = append(opts, fmt.Sprintf("--mail-type=%s", strings.Join(s.MailTypes, ",")))
	}
	opts = append(opts, fmt.Sprintf("--ntasks=%d", s.Tasks))
	opts = append(opts, fmt.Sprintf("--nodes=%d", s.Nodes))
	if s.GPUs > 0 {
		if perGPU {
			opts = append(opts, fmt.Sprintf("--gpus=%d", s.GPUs))
		} else {
			opts = append(opts, fmt.Sprintf("--gres=gpu:%d", s.GPUs))
		}
	}
	if s.CPUsPerGPU > 0 {
		if perGPU {
			opts = append(opts, fmt.Sprintf("--cpus-per-gpu=%d", s.CPUsPerGPU))
		} else {
			opts = append(opts, fmt.Sprintf("--cpus-per-task=%d", s.CPUsPerGPU*s.GPUs))
		}
	}
	if s.MemPerGPU != "" {
		if perGPU {
			opts = append(opts, fmt.Sprintf("--mem-per-gpu=%s", s.MemPerGPU))
		} else {
			mem, err := scaleMemory(s.MemPerGPU, s.GPUs)
			if err != nil {
				return nil, err
			}
			opts = append(opts, fmt.Sprintf("--mem=%s", mem))
		}
	}
	if s.Time != "" {
		opts = append(opts, fmt.Sprintf("--time=%s", s.Time))
	}
	if s.Partition != "" {
		opts = append(opts, fmt.Sprintf("--partition=%s", s.Partition))
	}
	for _, opt := range s.ExtraOptions {
		opts = append(opts, fmt.Sprintf("--%s", opt))
	}
	return opts, nil
}

// CommandOptions returns the sbatch command line options equivalent to the
// directives of a job spec, used when submitting an existing batch script.
func CommandOptions(s *Spec, v *semver.Version) ([]string, error) {
	opts, err := directives(s, v)
	if err != nil {
		return nil, err
	}
	for i, opt := range opts {
		if strings.HasPrefix(opt, "--job-name=") {
			opts[i] = fmt.Sprintf("--job-name='%s'", s.Name)
		}
	}
	return opts, nil
}

// BatchScript renders the batch script of a job spec: the sbatch directive
// block, site specific comment directives if any, then the job pipeline.
func BatchScript(s *Spec, v *semver.Version) (string, error) {
	opts, err := directives(s, v)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(shebang + "\n")
	for _, opt := range opts {
		b.WriteString(fmt.Sprintf("#SBATCH %s\n", opt))
	}
	for _, opt := range s.InScriptOptions {
		b.WriteString(opt + "\n")
	}
	b.WriteString("\n")
	b.WriteString(Pipeline(s) + "\n")
	return b.String(), nil
}

// Pipeline returns the command chain of a job spec: environment activation,
// requirements installation then each step in order. The commands are joined
// with && so a failure prevents the following ones from running and the
// chain exit code is the one of the last command run. Step error streams are
// redirected to their capture files, standard output is left to Slurm.
func Pipeline(s *Spec) string {
	cmds := make([]string, 0, len(s.Steps)+2)
	if s.EnvFile != "" {
		cmds = append(cmds, fmt.Sprintf("source %s", s.EnvFile))
	}
	if s.Requirements != "" {
		cmds = append(cmds, fmt.Sprintf("pip install -r %s", s.Requirements))
	}
	for _, step := range s.Steps {
		cmd := step.Command
		if step.Stderr != "" {
			cmd = fmt.Sprintf("%s 2> %s", cmd, step.Stderr)
		}
		cmds = append(cmds, cmd)
	}
	return strings.Join(cmds, " && ")
}

// scriptFileName returns a unique batch script file name for a submission.
func scriptFileName() string {
	return fmt.Sprintf("b-%s.batch", fmt.Sprint(uuid.NewV4()))
}
