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

// Package runner executes a job pipeline directly on this host, with the
// same semantics as the generated batch script: steps run in order, a step
// runs only if every step before it succeeded and step error streams are
// captured into their files.
//
// It is used inside an allocation, where the batch script itself would run,
// or on a workstation for dry runs.
package runner

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/pkg/errors"

	"github.com/hpcforge/sbatcher/helper/executil"
	"github.com/hpcforge/sbatcher/helper/metricsutil"
	"github.com/hpcforge/sbatcher/jobs"
	"github.com/hpcforge/sbatcher/log"
)

// A Pipeline is an ordered chain of job steps run locally.
type Pipeline struct {
	// Name of the job the pipeline belongs to, used in metric keys
	Name string
	// WorkingDir is the directory the steps run in, and the anchor of
	// relative error capture paths. Empty means the current directory.
	WorkingDir string
	// Shell interpreting the step commands, defaults to /bin/bash so
	// "source" works in environment activation steps
	Shell string
	// Steps is the ordered command chain
	Steps []jobs.Step
	// Out receives the standard output of the steps, defaults to the
	// process standard output. Step standard error goes to the process
	// standard error unless the step captures it into a file.
	Out io.Writer
}

// FromSpec builds the pipeline of a job spec: environment activation,
// requirements installation then each step in order, as in the generated
// batch script.
func FromSpec(spec *jobs.Spec) *Pipeline {
	steps := make([]jobs.Step, 0, len(spec.Steps)+2)
	if spec.EnvFile != "" {
		steps = append(steps, jobs.Step{Name: "activate", Command: "source " + spec.EnvFile})
	}
	if spec.Requirements != "" {
		steps = append(steps, jobs.Step{Name: "install", Command: "pip install -r " + spec.Requirements})
	}
	steps = append(steps, spec.Steps...)
	return &Pipeline{
		Name:       spec.Name,
		WorkingDir: spec.WorkingDir,
		Steps:      steps,
	}
}

// Run executes the pipeline steps in order. The first step exiting with a
// non zero status stops the chain, the following steps do not run and the
// returned error names the failing step. Cancelling the context kills the
// process group of the step being run.
func (p *Pipeline) Run(ctx context.Context) error {
	for _, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.runStep(ctx, step); err != nil {
			metrics.IncrCounter(metricsutil.CleanupMetricKey([]string{"runner", p.Name, "step", step.Name, "failures"}), 1)
			return errors.Wrapf(err, "step %q failed", step.Name)
		}
	}
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, step jobs.Step) error {
	shell := p.Shell
	if shell == "" {
		shell = "/bin/bash"
	}
	log.Debugf("Run the step %q command: %q", step.Name, step.Command)
	cmd := executil.Command(ctx, shell, "-c", step.Command)
	cmd.Dir = p.WorkingDir
	cmd.Stdout = p.out()
	cmd.Stderr = os.Stderr

	if step.Stderr != "" {
		stderrFile, err := os.Create(p.resolve(step.Stderr))
		if err != nil {
			return errors.Wrapf(err, "failed to create error capture file %q", step.Stderr)
		}
		defer stderrFile.Close()
		cmd.Stderr = stderrFile
	}

	defer metrics.MeasureSince(metricsutil.CleanupMetricKey([]string{"runner", p.Name, "step", step.Name}), time.Now())
	return cmd.Run()
}

func (p *Pipeline) resolve(path string) string {
	if filepath.IsAbs(path) || p.WorkingDir == "" {
		return path
	}
	return filepath.Join(p.WorkingDir, path)
}

func (p *Pipeline) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return os.Stdout
}
