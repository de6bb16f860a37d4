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
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goware/urlx"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/hpcforge/sbatcher/config"
	"github.com/hpcforge/sbatcher/helper/executil"
	"github.com/hpcforge/sbatcher/helper/sshutil"
	"github.com/hpcforge/sbatcher/log"
)

// LocalClient runs commands directly on this host through a shell. It
// implements sshutil.Client so Slurm interactions are transparent regarding
// a local or a remote access to the login node.
type LocalClient struct {
	// Shell interpreting the commands, defaults to /bin/bash
	Shell string
}

// RunCommand runs a command locally returning its combined output
func (c *LocalClient) RunCommand(cmd string) (string, error) {
	shell := c.Shell
	if shell == "" {
		shell = "/bin/bash"
	}
	log.Debugf("[LocalExec] %q", cmd)
	execCmd := executil.Command(context.Background(), shell, "-c", cmd)
	var b bytes.Buffer
	execCmd.Stdout = &b
	execCmd.Stderr = &b
	err := execCmd.Run()
	return b.String(), err
}

// CopyFile copies a reader to a local path with the given permissions
func (c *LocalClient) CopyFile(source io.Reader, path, permissions string) error {
	perm, err := strconv.ParseUint(permissions, 8, 32)
	if err != nil {
		return errors.Wrapf(err, "invalid permissions %q for file %q", permissions, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for file %q", path)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(perm))
	if err != nil {
		return errors.Wrapf(err, "failed to create file %q", path)
	}
	defer f.Close()
	if _, err := io.Copy(f, source); err != nil {
		return errors.Wrapf(err, "failed to write file %q", path)
	}
	return nil
}

// GetClient returns the command runner matching the configuration: commands
// run locally when no endpoint is configured, through SSH otherwise.
func GetClient(cfg config.Configuration) (sshutil.Client, error) {
	if cfg.Endpoint == "" {
		return &LocalClient{}, nil
	}
	return GetSSHClient(cfg)
}

// GetSSHClient returns an SSH client connecting the configured login node.
//
// The endpoint has the form [ssh://][user@]host[:port]. A user name in the
// endpoint takes precedence over the configured one. Authentication relies on
// the configured private key, given as a path or as the key content, or on
// the configured password.
func GetSSHClient(cfg config.Configuration) (*sshutil.SSHClient, error) {
	endpoint := cfg.Endpoint
	if !strings.Contains(endpoint, "//") {
		endpoint = "ssh://" + endpoint
	}
	url, err := urlx.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed endpoint:%q", cfg.Endpoint)
	}
	host, portStr, err := urlx.SplitHostPort(url)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed endpoint:%q", cfg.Endpoint)
	}
	port := config.DefaultSSHPort
	if portStr != "" {
		if port, err = strconv.Atoi(portStr); err != nil {
			return nil, errors.Wrapf(err, "malformed endpoint port:%q", portStr)
		}
	}

	userName := cfg.UserName
	if url.User != nil && url.User.Username() != "" {
		userName = url.User.Username()
	}
	if userName == "" {
		return nil, errors.New("missing mandatory parameter user_name to connect to the login node")
	}

	authMethods := make([]ssh.AuthMethod, 0, 2)
	if cfg.PrivateKey != "" {
		keyAuth, err := sshutil.ReadPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		authMethods = append(authMethods, keyAuth)
	}
	if cfg.Password != "" {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}
	if len(authMethods) == 0 {
		return nil, errors.New("missing mandatory parameter private_key or password to connect to the login node")
	}

	return &sshutil.SSHClient{
		Config: &ssh.ClientConfig{
			User:            userName,
			Auth:            authMethods,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		},
		Host: host,
		Port: port,
	}, nil
}

// quoteShell escapes a value for a shell command line
func quoteShell(arg string) string {
	return fmt.Sprintf("'%s'", strings.Replace(arg, "'", `'\''`, -1))
}
