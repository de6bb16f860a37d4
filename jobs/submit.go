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
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/armon/go-metrics"
	"github.com/blang/semver"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hpcforge/sbatcher/config"
	"github.com/hpcforge/sbatcher/helper/collections"
	"github.com/hpcforge/sbatcher/helper/metricsutil"
	"github.com/hpcforge/sbatcher/helper/sshutil"
	"github.com/hpcforge/sbatcher/log"
)

// Submitter submits job specs to the cluster through a command runner.
type Submitter struct {
	Client sshutil.Client

	cfg            config.Configuration
	version        *semver.Version
	versionFetched bool
}

// NewSubmitter returns a Submitter for the configured cluster access.
func NewSubmitter(cfg config.Configuration) (*Submitter, error) {
	client, err := GetClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Submitter{Client: client, cfg: cfg}, nil
}

// Submit renders the batch script of a job spec and submits it with sbatch.
//
// The script is written in the job working directory on the login node and
// removed once submitted, unless the configuration asks to keep remote
// artifacts. Spec artifacts are uploaded before submission.
func (s *Submitter) Submit(ctx context.Context, spec *Spec) (*Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wd := s.workingDir(spec)
	script, err := BatchScript(spec, s.slurmVersion())
	if err != nil {
		return nil, err
	}
	if err := s.uploadArtifacts(ctx, spec, wd); err != nil {
		return nil, errors.Wrap(err, "failed to upload artifact")
	}

	scriptPath := path.Join(wd, scriptFileName())
	cmd := s.envPrefix() + exports(spec) + wrapScript(script, scriptPath)
	cmd += fmt.Sprintf("sbatch -D %s %s", wd, scriptPath)
	if !s.cfg.KeepJobRemoteArtifacts {
		cmd += fmt.Sprintf("; rm -f %s", scriptPath)
	}

	jobID, err := s.runSubmitCommand(spec, cmd)
	if err != nil {
		return nil, err
	}

	outputs := ParseOptsOutputs(spec.ExtraOptions)
	if len(outputs) == 0 {
		outputs = []string{fmt.Sprintf("slurm-%s.out", jobID)}
	}
	for _, step := range spec.Steps {
		if step.Stderr != "" {
			outputs = append(outputs, step.Stderr)
		}
	}

	return &Submission{
		JobID:      jobID,
		WorkingDir: wd,
		Outputs:    resolveOutputs(wd, outputs),
		Artifacts:  spec.Artifacts,
	}, nil
}

// SubmitScript submits an existing batch script, uploaded as is into the job
// working directory. The spec directives are passed as sbatch command line
// options, overriding the script own SBATCH parameters. Files capturing the
// job outputs are discovered by scanning the options and the script.
func (s *Submitter) SubmitScript(ctx context.Context, spec *Spec, scriptPath string) (*Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	script, err := ioutil.ReadFile(scriptPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read batch script:%q", scriptPath)
	}
	wd := s.workingDir(spec)
	opts, err := CommandOptions(spec, s.slurmVersion())
	if err != nil {
		return nil, err
	}

	outputs := ParseOptsOutputs(spec.ExtraOptions)
	// options override SBATCH parameters, only get command outputs options
	all := len(outputs) == 0
	scriptOutputs, err := ParseScriptOutputs(bytes.NewReader(script), all)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse batch script to retrieve outputs with path:%q", scriptPath)
	}
	outputs = append(outputs, scriptOutputs...)

	if err := s.uploadArtifacts(ctx, spec, wd); err != nil {
		return nil, errors.Wrap(err, "failed to upload artifact")
	}
	remoteScript := path.Base(scriptPath)
	if err := s.Client.CopyFile(bytes.NewReader(script), path.Join(wd, remoteScript), "0755"); err != nil {
		return nil, errors.Wrapf(err, "failed to upload batch script:%q", scriptPath)
	}

	cmd := s.envPrefix() + exports(spec) + fmt.Sprintf("cd %s;sbatch %s %s", wd, strings.Join(opts, " "), remoteScript)
	jobID, err := s.runSubmitCommand(spec, cmd)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		outputs = []string{fmt.Sprintf("slurm-%s.out", jobID)}
	}

	return &Submission{
		JobID:      jobID,
		WorkingDir: wd,
		Outputs:    resolveOutputs(wd, outputs),
		Artifacts:  append(spec.Artifacts, remoteScript),
	}, nil
}

func (s *Submitter) runSubmitCommand(spec *Spec, cmd string) (string, error) {
	log.Debugf("Run the command: %q", cmd)
	output, err := s.Client.RunCommand(cmd)
	if err != nil {
		metrics.IncrCounter(metricsutil.CleanupMetricKey([]string{"jobs", "submission", spec.Name, "failures"}), 1)
		return "", errors.Wrap(err, output)
	}
	jobID, err := ParseSubmitOutput(strings.Trim(output, "\n"))
	if err != nil {
		metrics.IncrCounter(metricsutil.CleanupMetricKey([]string{"jobs", "submission", spec.Name, "failures"}), 1)
		return "", err
	}
	metrics.IncrCounter(metricsutil.CleanupMetricKey([]string{"jobs", "submission", spec.Name, "successes"}), 1)
	log.Debugf("JobID:%q", jobID)
	return jobID, nil
}

// workingDir returns the directory the job runs in, the login node home by
// default.
func (s *Submitter) workingDir(spec *Spec) string {
	if spec.WorkingDir != "" {
		return spec.WorkingDir
	}
	return "~"
}

// envPrefix returns a command prefix sourcing the cluster profile file if one
// is configured, so the Slurm client tools are found in non interactive
// sessions.
func (s *Submitter) envPrefix() string {
	envFile := s.cfg.Cluster.GetString("env_file")
	if envFile == "" {
		return ""
	}
	return fmt.Sprintf("[ -f %s ] && { source %s ; } ;", envFile, envFile)
}

// slurmVersion returns the cluster Slurm version, queried once per
// Submitter. An undetermined version is treated as an up to date cluster.
func (s *Submitter) slurmVersion() *semver.Version {
	if s.versionFetched {
		return s.version
	}
	s.versionFetched = true
	v, err := GetVersion(s.Client)
	if err != nil {
		log.Debugf("failed to get the cluster Slurm version, assuming an up to date cluster: %v", err)
		return nil
	}
	s.version = &v
	return s.version
}

func (s *Submitter) uploadArtifacts(ctx context.Context, spec *Spec, wd string) error {
	var g errgroup.Group
	for _, artPath := range spec.Artifacts {
		log.Debugf("handle artifact path:%q", artPath)
		func(artPath string) {
			g.Go(func() error {
				sourcePath := filepath.Join(spec.baseDir, artPath)
				fileInfo, err := os.Stat(sourcePath)
				if err != nil {
					return err
				}
				if fileInfo.IsDir() {
					return s.walkArtifactDirectory(ctx, sourcePath, spec.baseDir, wd)
				}
				return s.uploadFile(ctx, sourcePath, spec.baseDir, wd)
			})
		}(artPath)
	}
	return g.Wait()
}

func (s *Submitter) walkArtifactDirectory(ctx context.Context, rootPath, artifactBaseDir, wd string) error {
	return filepath.Walk(rootPath, func(pathFile string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		log.Debugf("Walk path:%s", pathFile)
		if !info.IsDir() {
			return s.uploadFile(ctx, pathFile, artifactBaseDir, wd)
		}
		return nil
	})
}

func (s *Submitter) uploadFile(ctx context.Context, pathFile, artifactBaseDir, wd string) error {
	relPath, err := filepath.Rel(artifactBaseDir, pathFile)
	if err != nil {
		return err
	}
	remotePath := path.Join(wd, filepath.ToSlash(relPath))

	// a local run from the job file directory would copy files onto
	// themselves
	if src, err := filepath.Abs(pathFile); err == nil {
		if dst, err := filepath.Abs(remotePath); err == nil && src == dst {
			log.Debugf("skipping upload of %q onto itself", pathFile)
			return nil
		}
	}

	source, err := ioutil.ReadFile(pathFile)
	if err != nil {
		return err
	}
	log.Debugf("uploadFile file from source path:%q to remote relative path:%q", pathFile, remotePath)
	return s.Client.CopyFile(bytes.NewReader(source), remotePath, "0755")
}

// wrapScript returns a command writing a script at the given path with a
// quoted heredoc, so no shell expansion rewrites its content.
func wrapScript(script, scriptPath string) string {
	return fmt.Sprintf("cat <<'EOF' > %s\n%sEOF\n", scriptPath, script)
}

// exports returns a command prefix exporting the spec inputs, copied into
// the job environment at submission.
func exports(spec *Spec) string {
	if len(spec.Inputs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(spec.Inputs))
	for k := range spec.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		log.Debugf("Add env var with key:%q and value:%q", k, spec.Inputs[k])
		b.WriteString(fmt.Sprintf("export %s=%s;", k, quoteShell(spec.Inputs[k])))
	}
	return b.String()
}

// resolveOutputs anchors relative output files into the job working
// directory.
func resolveOutputs(wd string, outputs []string) []string {
	resolved := make([]string, 0, len(outputs))
	for _, o := range outputs {
		if !path.IsAbs(o) {
			o = path.Join(wd, o)
		}
		if !collections.ContainsString(resolved, o) {
			resolved = append(resolved, o)
		}
	}
	return resolved
}
