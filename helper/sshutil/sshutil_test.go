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

package sshutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func generatePrivateKeyContent(t *testing.T) string {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.Nil(t, err, "unexpected error while generating a private key")
	bArray := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY",
		Headers: nil,
		Bytes:   x509.MarshalPKCS1PrivateKey(priv)})
	return string(bArray)
}

func TestReadPrivateKeyFromContent(t *testing.T) {
	t.Parallel()
	privateKeyContent := generatePrivateKeyContent(t)
	auth, err := ReadPrivateKey(privateKeyContent)
	require.Nil(t, err, "unexpected error while reading a private key from its content")
	require.NotNil(t, auth)
}

func TestReadPrivateKeyWithMalformedContent(t *testing.T) {
	t.Parallel()
	_, err := ReadPrivateKey("malformed key content")
	require.NotNil(t, err, "expected an error while reading a malformed private key")
}

func TestRunCommand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr := newServer(ctx, nil)

	host, portStr, err := net.SplitHostPort(addr.String())
	require.Nil(t, err)
	port, err := strconv.Atoi(portStr)
	require.Nil(t, err)

	client := &SSHClient{
		Config: &ssh.ClientConfig{
			User:            "testuser",
			Auth:            []ssh.AuthMethod{ssh.Password("tiger")},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		},
		Host: host,
		Port: port,
	}

	// The test server default exec handler echoes back the submitted command
	out, err := client.RunCommand("squeue --noheader")
	require.Nil(t, err, "unexpected error while running a command over SSH")
	require.Equal(t, "squeue --noheader", out)
}

func TestRunCommandWithFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr := newServer(ctx, func(cfg *serverConfig) {
		cfg.execCommandHandler = func(command string) (string, uint32) {
			return "sbatch: error: Batch job submission failed", 1
		}
	})

	host, portStr, err := net.SplitHostPort(addr.String())
	require.Nil(t, err)
	port, err := strconv.Atoi(portStr)
	require.Nil(t, err)

	client := &SSHClient{
		Config: &ssh.ClientConfig{
			User:            "testuser",
			Auth:            []ssh.AuthMethod{ssh.Password("tiger")},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		},
		Host: host,
		Port: port,
	}

	out, err := client.RunCommand("sbatch invalid.batch")
	require.NotNil(t, err, "expected an error for a non-zero exit status")
	require.Contains(t, out, "submission failed")
}
