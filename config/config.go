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

// Package config defines configuration structures
package config

import (
	"bytes"
	"strings"
	"text/template"
	"time"

	"github.com/spf13/cast"

	"github.com/hpcforge/sbatcher/log"
)

// DefaultJobMonitoringTimeInterval is the default duration between two polls of a submitted job state
const DefaultJobMonitoringTimeInterval = 5 * time.Second

// DefaultSSHPort is the default port used to connect to the cluster login node
const DefaultSSHPort = 22

// DefaultKeepJobRemoteArtifacts is set to false by default in order to remove files uploaded on the login node once a job is done
const DefaultKeepJobRemoteArtifacts = false

// Configuration holds config information filled by Cobra and Viper (see commands package for more information)
type Configuration struct {
	WorkingDirectory          string
	Endpoint                  string
	UserName                  string
	PrivateKey                string
	Password                  string
	DefaultJobName            string
	JobMonitoringTimeInterval time.Duration
	KeepJobRemoteArtifacts    bool
	NoColor                   bool
	Telemetry                 Telemetry
	Cluster                   DynamicMap
}

// Telemetry holds the configuration for the telemetry service
type Telemetry struct {
	StatsdAddress           string
	StatsiteAddress         string
	ServiceName             string
	DisableHostName         bool
	DisableGoRuntimeMetrics bool
}

// DynamicMap allows to store configuration parameters that are not known in advance.
// This is particularly useful for cluster-specific parameters.
//
// It has methods to automatically cast data to the desired type.
type DynamicMap map[string]interface{}

// NewDynamicMapWithPayload creates a DynamicMap filled with the given payload
func NewDynamicMapWithPayload(payload map[string]interface{}) DynamicMap {
	dm := make(DynamicMap, len(payload))
	for k, v := range payload {
		dm[k] = v
	}
	return dm
}

// Keys returns registered keys in the dynamic map
func (dm DynamicMap) Keys() []string {
	keys := make([]string, 0, len(dm))
	for k := range dm {
		keys = append(keys, k)
	}
	return keys
}

// Set sets a value for a given key
func (dm DynamicMap) Set(name string, value interface{}) {
	dm[name] = value
}

// IsSet checks if a given configuration key is defined
func (dm DynamicMap) IsSet(name string) bool {
	_, ok := dm[name]
	return ok
}

// Get returns the raw value of a given configuration key
func (dm DynamicMap) Get(name string) interface{} {
	return checkForTemplatesValue(dm[name])
}

// GetString returns the value of the given key casted into a string.
// An empty string is returned if not found.
func (dm DynamicMap) GetString(name string) string {
	return cast.ToString(dm.Get(name))
}

// GetStringOrDefault returns the value of the given key casted into a string.
// The given default value is returned if not found or if the corresponding value is empty
func (dm DynamicMap) GetStringOrDefault(name, defaultValue string) string {
	if !dm.IsSet(name) {
		return defaultValue
	}
	if res := dm.GetString(name); res != "" {
		return res
	}
	return defaultValue
}

// GetBool returns the value of the given key casted into a boolean.
// False is returned if not found.
func (dm DynamicMap) GetBool(name string) bool {
	return cast.ToBool(dm.Get(name))
}

// GetInt returns the value of the given key casted into an int.
// 0 is returned if not found.
func (dm DynamicMap) GetInt(name string) int {
	return cast.ToInt(dm.Get(name))
}

// GetDuration returns the value of the given key casted into a Duration.
// A 0 duration is returned if not found.
func (dm DynamicMap) GetDuration(name string) time.Duration {
	return cast.ToDuration(dm.Get(name))
}

// GetStringSlice returns the value of the given key casted into a slice of string.
// If the corresponding raw value is a string, it is split on comas.
// A nil or empty slice is returned if not found.
func (dm DynamicMap) GetStringSlice(name string) []string {
	val := dm.Get(name)
	switch v := val.(type) {
	case string:
		return strings.Split(v, ",")
	default:
		return cast.ToStringSlice(val)
	}
}

// String values may be Go templates, this allows to inject dynamic values at
// resolution time. If the template can't be parsed or executed the raw value
// is returned as it is.
func checkForTemplatesValue(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok || !strings.Contains(s, "{{") {
		return value
	}
	tmpl, err := template.New("configValue").Parse(s)
	if err != nil {
		log.Debugf("Failed to parse configuration value %q as template: %v", s, err)
		return value
	}
	b := bytes.Buffer{}
	if err := tmpl.Execute(&b, nil); err != nil {
		log.Debugf("Failed to execute configuration value template %q: %v", s, err)
		return value
	}
	return b.String()
}
