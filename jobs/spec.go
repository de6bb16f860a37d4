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
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	yaml "gopkg.in/yaml.v2"

	"github.com/hpcforge/sbatcher/config"
	"github.com/hpcforge/sbatcher/helper/collections"
	"github.com/hpcforge/sbatcher/helper/sizeutil"
	"github.com/hpcforge/sbatcher/log"
)

// mailTypes are the event types accepted by the sbatch --mail-type option
var mailTypes = []string{
	"NONE", "BEGIN", "END", "FAIL", "REQUEUE", "ALL",
	"INVALID_DEPEND", "STAGE_OUT",
	"TIME_LIMIT", "TIME_LIMIT_90", "TIME_LIMIT_80", "TIME_LIMIT_50",
	"ARRAY_TASKS",
}

var (
	memoryRegexp    = regexp.MustCompile(`^([0-9]+)([KMGT]?)$`)
	slurmTimeRegexp = regexp.MustCompile(`^\d+(:\d{1,2}(:\d{1,2})?)?$|^\d+-\d{1,2}(:\d{1,2}(:\d{1,2})?)?$`)
	envNameRegexp   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// LoadSpec reads a job spec from a YAML job file, applies the configured
// defaults and validates it.
func LoadSpec(cfg config.Configuration, path string) (*Spec, error) {
	return loadSpec(afero.NewOsFs(), cfg, path)
}

func loadSpec(fs afero.Fs, cfg config.Configuration, path string) (*Spec, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read job file:%q", path)
	}
	spec := &Spec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, errors.Wrapf(err, "failed to parse job file:%q", path)
	}
	spec.baseDir = filepath.Dir(path)
	spec.applyDefaults(cfg, path)
	if err := spec.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid job file:%q", path)
	}
	return spec, nil
}

func (s *Spec) applyDefaults(cfg config.Configuration, path string) {
	if s.Name == "" {
		s.Name = cfg.DefaultJobName
	}
	if s.Name == "" {
		base := filepath.Base(path)
		s.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if s.Tasks == 0 {
		s.Tasks = 1
	}
	if s.Nodes == 0 {
		s.Nodes = 1
	}
	if s.MailUser != "" && len(s.MailTypes) == 0 {
		s.MailTypes = []string{"ALL"}
	}
	if s.WorkingDir == "" {
		s.WorkingDir = cfg.WorkingDirectory
	}
	for i := range s.Steps {
		if s.Steps[i].Name == "" {
			s.Steps[i].Name = fmt.Sprintf("step-%d", i+1)
		}
	}
}

func (s *Spec) validate() error {
	if s.Name == "" {
		return errors.New("a job requires a name")
	}
	if s.Tasks < 1 {
		return errors.Errorf("tasks must be at least 1, got %d", s.Tasks)
	}
	if s.Nodes < 1 {
		return errors.Errorf("nodes must be at least 1, got %d", s.Nodes)
	}
	if s.GPUs < 0 {
		return errors.Errorf("gpus cannot be negative, got %d", s.GPUs)
	}
	if s.CPUsPerGPU < 0 {
		return errors.Errorf("cpus_per_gpu cannot be negative, got %d", s.CPUsPerGPU)
	}
	if s.CPUsPerGPU > 0 && s.GPUs == 0 {
		return errors.New("cpus_per_gpu requires gpus to be set")
	}
	if s.MemPerGPU != "" {
		if s.GPUs == 0 {
			return errors.New("mem_per_gpu requires gpus to be set")
		}
		mem, err := ParseMemory(s.MemPerGPU)
		if err != nil {
			return errors.Wrap(err, "invalid mem_per_gpu")
		}
		s.MemPerGPU = mem
	}
	if s.Time != "" {
		t, err := ParseTimeLimit(s.Time)
		if err != nil {
			return errors.Wrap(err, "invalid time")
		}
		s.Time = t
	}
	for i, mt := range s.MailTypes {
		mt = strings.ToUpper(strings.TrimSpace(mt))
		if !collections.ContainsString(mailTypes, mt) {
			return errors.Errorf("unknown mail type:%q", s.MailTypes[i])
		}
		s.MailTypes[i] = mt
	}

	if len(s.Steps) == 0 {
		return errors.New("a job requires at least one step")
	}
	stderrFiles := make(map[string]string, len(s.Steps))
	for _, step := range s.Steps {
		if step.Command == "" {
			return errors.Errorf("step %q has no command", step.Name)
		}
		if step.Stderr == "" {
			continue
		}
		if previous, ok := stderrFiles[step.Stderr]; ok {
			return errors.Errorf("steps %q and %q capture their error streams into the same file:%q", previous, step.Name, step.Stderr)
		}
		stderrFiles[step.Stderr] = step.Name
	}

	for i, opt := range s.ExtraOptions {
		opt = strings.TrimLeft(opt, "-")
		if opt == "" {
			return errors.Errorf("empty extra option at index %d", i)
		}
		s.ExtraOptions[i] = opt
	}
	for _, opt := range s.InScriptOptions {
		if !strings.HasPrefix(opt, "#") {
			return errors.Errorf("in-script option %q is not a comment directive", opt)
		}
	}
	for k := range s.Inputs {
		if !envNameRegexp.MatchString(k) {
			return errors.Errorf("input %q is not a valid environment variable name", k)
		}
	}
	for _, art := range s.Artifacts {
		if art == "" || filepath.IsAbs(art) || strings.HasPrefix(filepath.Clean(art), "..") {
			return errors.Errorf("artifact path %q must be relative to the job file directory", art)
		}
	}
	return nil
}

// MonitoringInterval returns the delay between two state polls for this job:
// the job file value, the configured value or a default.
func (s *Spec) MonitoringInterval(cfg config.Configuration) time.Duration {
	if s.MonitoringTimeInterval != "" {
		d, err := time.ParseDuration(s.MonitoringTimeInterval)
		if err == nil && d > 0 {
			return d
		}
		log.Printf("Invalid format for job monitoring time interval:%q. Default %s time interval will be used instead.", s.MonitoringTimeInterval, config.DefaultJobMonitoringTimeInterval)
	}
	if cfg.JobMonitoringTimeInterval > 0 {
		return cfg.JobMonitoringTimeInterval
	}
	return config.DefaultJobMonitoringTimeInterval
}

// ParseMemory normalizes a memory quantity into a Slurm acceptable form.
// Slurm quantities as "4000" (megabytes) or "16G" pass through unchanged,
// human readable ones as "16 GB" are converted to gigabytes.
func ParseMemory(quantity string) (string, error) {
	norm := strings.ToUpper(strings.Replace(quantity, " ", "", -1))
	if memoryRegexp.MatchString(norm) {
		return norm, nil
	}
	gb, err := sizeutil.ConvertToGB(quantity)
	if err != nil {
		return "", errors.Errorf("invalid memory quantity:%q", quantity)
	}
	return fmt.Sprintf("%dG", gb), nil
}

// scaleMemory multiplies an already normalized memory quantity, keeping its
// unit.
func scaleMemory(quantity string, factor int) (string, error) {
	m := memoryRegexp.FindStringSubmatch(quantity)
	if m == nil {
		return "", errors.Errorf("invalid memory quantity:%q", quantity)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return "", errors.Errorf("invalid memory quantity:%q", quantity)
	}
	return fmt.Sprintf("%d%s", n*factor, m[2]), nil
}

// ParseTimeLimit normalizes a wall-clock limit into a Slurm acceptable form.
// Slurm forms as "30" (minutes), "24:00:00" or "2-12" pass through unchanged,
// a Go duration as "26h30m" is converted to "days-hours:minutes:seconds".
func ParseTimeLimit(limit string) (string, error) {
	if slurmTimeRegexp.MatchString(limit) {
		return limit, nil
	}
	d, err := time.ParseDuration(limit)
	if err != nil {
		return "", errors.Errorf("invalid time limit:%q, expected a Slurm time as \"minutes\", \"hours:minutes:seconds\", \"days-hours\" or a duration as \"26h30m\"", limit)
	}
	if d <= 0 {
		return "", errors.Errorf("invalid time limit:%q, expected a positive duration", limit)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) - days*24
	minutes := int(d.Minutes()) - int(d.Hours())*60
	seconds := int(d.Seconds()) - int(d.Minutes())*60
	return fmt.Sprintf("%d-%02d:%02d:%02d", days, hours, minutes, seconds), nil
}
