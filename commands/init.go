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
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	survey "gopkg.in/AlecAivazis/survey.v1"
	yaml "gopkg.in/yaml.v2"

	"github.com/hpcforge/sbatcher/jobs"
)

func init() {
	var initCmd = &cobra.Command{
		Use:   "init [<JobFile>]",
		Short: "Create a job file interactively",
		Long: `Ask for the job metadata, resources and pipeline steps, then write
the resulting job file. The file is validated before being kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return errors.Errorf("Expecting at most a job file (got %d parameters)", len(args))
			}
			spec, err := askSpec()
			if err != nil {
				errExit(err)
			}

			path := spec.Name + ".yaml"
			if len(args) == 1 {
				path = args[0]
			}
			data, err := yaml.Marshal(spec)
			if err != nil {
				errExit(err)
			}
			if err := ioutil.WriteFile(path, data, 0644); err != nil {
				errExit(err)
			}
			// round trip through the loader so an inconsistent answer set
			// does not leave a job file submissions would reject
			if _, err := jobs.LoadSpec(getConfig(), path); err != nil {
				errExit(err)
			}
			fmt.Printf("Job file written to %s\n", path)
			return nil
		},
	}
	RootCmd.AddCommand(initCmd)
}

func askSpec() (*jobs.Spec, error) {
	answers := struct {
		Name         string
		MailUser     string
		Tasks        string
		GPUs         string
		CPUsPerGPU   string
		MemPerGPU    string
		Time         string
		Partition    string
		EnvFile      string
		Requirements string
	}{}
	err := survey.Ask([]*survey.Question{
		{
			Name:     "name",
			Prompt:   &survey.Input{Message: "Job name:"},
			Validate: survey.Required,
		},
		{
			Name:   "mailUser",
			Prompt: &survey.Input{Message: "Mail address for job notifications (empty to disable):"},
		},
		{
			Name:   "tasks",
			Prompt: &survey.Input{Message: "Number of tasks:", Default: "1"},
		},
		{
			Name:   "gpus",
			Prompt: &survey.Input{Message: "Number of GPUs:", Default: "4"},
		},
		{
			Name:   "cpusPerGPU",
			Prompt: &survey.Input{Message: "CPUs per GPU:", Default: "4"},
		},
		{
			Name:   "memPerGPU",
			Prompt: &survey.Input{Message: "Memory per GPU:", Default: "16G"},
		},
		{
			Name:   "time",
			Prompt: &survey.Input{Message: "Wall-clock limit:", Default: "24:00:00"},
		},
		{
			Name:   "partition",
			Prompt: &survey.Input{Message: "Partition (empty for the cluster default):"},
		},
		{
			Name:   "envFile",
			Prompt: &survey.Input{Message: "Environment activation script (empty to skip):", Default: "venv/bin/activate"},
		},
		{
			Name:   "requirements",
			Prompt: &survey.Input{Message: "Requirements file to pip install (empty to skip):", Default: "requirements.txt"},
		},
	}, &answers)
	if err != nil {
		return nil, err
	}

	spec := &jobs.Spec{
		Name:         answers.Name,
		MailUser:     answers.MailUser,
		MemPerGPU:    answers.MemPerGPU,
		Time:         answers.Time,
		Partition:    answers.Partition,
		EnvFile:      answers.EnvFile,
		Requirements: answers.Requirements,
	}
	if answers.MailUser != "" {
		spec.MailTypes = []string{"ALL"}
	}
	if spec.Tasks, err = strconv.Atoi(answers.Tasks); err != nil {
		return nil, errors.Errorf("invalid number of tasks:%q", answers.Tasks)
	}
	if spec.GPUs, err = strconv.Atoi(answers.GPUs); err != nil {
		return nil, errors.Errorf("invalid number of GPUs:%q", answers.GPUs)
	}
	if spec.CPUsPerGPU, err = strconv.Atoi(answers.CPUsPerGPU); err != nil {
		return nil, errors.Errorf("invalid number of CPUs per GPU:%q", answers.CPUsPerGPU)
	}

	if spec.Steps, err = askSteps(); err != nil {
		return nil, err
	}
	return spec, nil
}

// stepDefaults pre-fills the usual two program pipeline, a training run then
// an evaluation run
var stepDefaults = []jobs.Step{
	{Name: "train", Command: "python train.py", Stderr: "train.log"},
	{Name: "test", Command: "python test.py", Stderr: "test.log"},
}

func askSteps() ([]jobs.Step, error) {
	steps := make([]jobs.Step, 0, len(stepDefaults))
	for {
		def := jobs.Step{}
		if len(steps) < len(stepDefaults) {
			def = stepDefaults[len(steps)]
		}
		answers := struct {
			Name    string
			Command string
			Stderr  string
		}{}
		err := survey.Ask([]*survey.Question{
			{
				Name:   "name",
				Prompt: &survey.Input{Message: fmt.Sprintf("Step %d name:", len(steps)+1), Default: def.Name},
			},
			{
				Name:     "command",
				Prompt:   &survey.Input{Message: fmt.Sprintf("Step %d command:", len(steps)+1), Default: def.Command},
				Validate: survey.Required,
			},
			{
				Name:   "stderr",
				Prompt: &survey.Input{Message: fmt.Sprintf("Step %d error capture file (empty to skip):", len(steps)+1), Default: def.Stderr},
			},
		}, &answers)
		if err != nil {
			return nil, err
		}
		steps = append(steps, jobs.Step{Name: answers.Name, Command: answers.Command, Stderr: answers.Stderr})

		more := len(steps) < len(stepDefaults)
		if err := survey.AskOne(&survey.Confirm{Message: "Add another step?", Default: more}, &more, nil); err != nil {
			return nil, err
		}
		if !more {
			return steps, nil
		}
	}
}
