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
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/blang/semver"
	"github.com/pkg/errors"

	"github.com/hpcforge/sbatcher/helper/sshutil"
)

// perGPUDirectivesVersion is the first Slurm release shipping the per-GPU
// allocation options (--gpus, --cpus-per-gpu, --mem-per-gpu)
var perGPUDirectivesVersion = semver.MustParse("19.5.0")

var redirectionRegexp = regexp.MustCompile(`^(&>|[12]?>{1,2})(.*)$`)

// GetInfo returns the short description of a job as reported by squeue,
// looked up by job ID or by job name. A *noJobFound error is returned for a
// job unknown to the queue, see IsNoJobFoundError.
func GetInfo(client sshutil.Client, jobID, jobName string) (*Info, error) {
	var cmd string
	if jobID != "" {
		cmd = fmt.Sprintf("squeue --noheader -j %s -o \"%%j,%%i,%%T\"", jobID)
	} else if jobName != "" {
		cmd = fmt.Sprintf("squeue --noheader -n %s -o \"%%j,%%i,%%T\"", jobName)
	} else {
		return nil, errors.New("request job information is not allowed without jobID or jobName parameter")
	}

	output, err := client.RunCommand(cmd)
	if err != nil {
		return nil, errors.Wrap(err, output)
	}
	out := strings.Trim(output, "\" \t\n")
	if out == "" {
		return nil, &noJobFound{msg: fmt.Sprintf("no information found for job with id:%q, name:%q", jobID, jobName)}
	}
	// A lookup by name may match several jobs, the first one is enough
	line := strings.SplitN(out, "\n", 2)[0]
	d := strings.Split(strings.Trim(line, "\""), ",")
	if len(d) != 3 {
		return nil, errors.Errorf("unexpected squeue output format:%q", output)
	}
	return &Info{Name: d[0], ID: d[1], State: d[2]}, nil
}

// ShowJob returns the detailed description of a job as reported by scontrol,
// as a map of scontrol keys (JobState, Reason, RunTime, StdOut, StdErr, ...).
// A *noJobFound error is returned for a job unknown to the controller.
func ShowJob(client sshutil.Client, jobID string) (map[string]string, error) {
	output, err := client.RunCommand(fmt.Sprintf("scontrol show job %s", jobID))
	if err != nil {
		if strings.Contains(output, "Invalid job id specified") {
			return nil, &noJobFound{msg: fmt.Sprintf("no information found for job with id:%q, name:%q", jobID, "")}
		}
		return nil, errors.Wrap(err, output)
	}
	if strings.TrimSpace(output) == "" {
		return nil, &noJobFound{msg: fmt.Sprintf("no information found for job with id:%q, name:%q", jobID, "")}
	}

	info := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		if is, k, v := parseKeyValue(scanner.Text()); is {
			info[k] = v
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to parse scontrol output")
	}
	return info, nil
}

// CancelJob cancels a job with scancel.
func CancelJob(client sshutil.Client, jobID string) error {
	output, err := client.RunCommand(fmt.Sprintf("scancel %s", jobID))
	if err != nil {
		return errors.Wrapf(err, "failed to cancel job with id:%q, output:%q", jobID, output)
	}
	return nil
}

// GetVersion returns the Slurm version of the target cluster.
func GetVersion(client sshutil.Client) (semver.Version, error) {
	output, err := client.RunCommand("sbatch --version")
	if err != nil {
		return semver.Version{}, errors.Wrap(err, output)
	}
	return ParseVersion(output)
}

// ParseVersion extracts the version from an sbatch or sinfo version banner as
// "slurm 19.05.5" or "slurm 17.11.9-2". Slurm zero-pads its minor release
// numbers so the raw string is not always a valid semantic version.
func ParseVersion(output string) (semver.Version, error) {
	fields := strings.Fields(output)
	if len(fields) < 2 {
		return semver.Version{}, errors.Errorf("unexpected version output format:%q", output)
	}
	raw := fields[len(fields)-1]
	parts := strings.SplitN(raw, ".", 3)
	for i := range parts {
		numEnd := strings.IndexFunc(parts[i], func(r rune) bool { return r < '0' || r > '9' })
		if numEnd == -1 {
			numEnd = len(parts[i])
		}
		trimmed := strings.TrimLeft(parts[i][:numEnd], "0")
		if trimmed == "" {
			trimmed = "0"
		}
		parts[i] = trimmed + parts[i][numEnd:]
	}
	v, err := semver.ParseTolerant(strings.Join(parts, "."))
	if err != nil {
		return semver.Version{}, errors.Wrapf(err, "unexpected version output format:%q", output)
	}
	return v, nil
}

// SupportsPerGPUDirectives reports whether this Slurm release accepts the
// per-GPU allocation options. On older releases equivalent aggregated
// options are used instead.
func SupportsPerGPUDirectives(v semver.Version) bool {
	return v.GTE(perGPUDirectivesVersion)
}

// ParseSubmitOutput extracts the job ID from an sbatch submission message as
// "Submitted batch job 4567".
func ParseSubmitOutput(output string) (string, error) {
	split := strings.Split(strings.TrimSpace(output), " ")
	if len(split) != 4 || strings.Join(split[:3], " ") != "Submitted batch job" {
		return "", errors.Errorf("unexpected sbatch output format:%q", output)
	}
	return split[3], nil
}

// ParseScriptOutputs returns the files capturing outputs of an existing batch
// script: targets of shell redirections and srun output options found in
// command lines, plus #SBATCH --output/--error parameters when all is true.
func ParseScriptOutputs(r io.Reader, all bool) ([]string, error) {
	outputs := make([]string, 0)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#SBATCH") {
			if all {
				outputs = append(outputs, parseOutputsFromFields(strings.Fields(line))...)
			}
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		outputs = append(outputs, parseOutputsFromFields(strings.Fields(line))...)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read batch script")
	}
	return outputs, nil
}

// ParseOptsOutputs returns the files capturing outputs declared in a list of
// sbatch options, given with or without their leading dashes.
func ParseOptsOutputs(opts []string) []string {
	outputs := make([]string, 0)
	for _, opt := range opts {
		opt = strings.TrimLeft(opt, "-")
		if strings.HasPrefix(opt, "output=") || strings.HasPrefix(opt, "error=") {
			outputs = append(outputs, opt[strings.Index(opt, "=")+1:])
		}
	}
	return outputs
}

func parseOutputsFromFields(fields []string) []string {
	var outputs []string
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case strings.HasPrefix(f, "--output="):
			outputs = append(outputs, strings.TrimPrefix(f, "--output="))
		case strings.HasPrefix(f, "--error="):
			outputs = append(outputs, strings.TrimPrefix(f, "--error="))
		case f == "-o" || f == "-e" || f == "--output" || f == "--error":
			if i+1 < len(fields) {
				outputs = append(outputs, fields[i+1])
				i++
			}
		default:
			m := redirectionRegexp.FindStringSubmatch(f)
			if m == nil {
				continue
			}
			target := m[2]
			if target == "" && i+1 < len(fields) {
				target = fields[i+1]
				i++
			}
			// file descriptor duplications as 2>&1 target no file
			if target != "" && !strings.HasPrefix(target, "&") {
				outputs = append(outputs, target)
			}
		}
	}
	return outputs
}

// parseKeyValue allows to extract a boolean (is) and the key/value from a
// formatted string as "property=value"
func parseKeyValue(str string) (bool, string, string) {
	keyVal := strings.Split(str, "=")
	if len(keyVal) == 2 && keyVal[0] != "" && keyVal[1] != "" {
		return true, keyVal[0], keyVal[1]
	}
	return false, "", ""
}
