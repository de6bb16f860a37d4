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
	"github.com/hpcforge/sbatcher/helper/collections"
)

// Job states as reported by squeue (%T) and scontrol (JobState).
const (
	StateCompleted   = "COMPLETED"
	StateCompleting  = "COMPLETING"
	StateConfiguring = "CONFIGURING"
	StatePending     = "PENDING"
	StateResizing    = "RESIZING"
	StateRunning     = "RUNNING"
	StateSignaling   = "SIGNALING"
)

// transientStates are the states of a job still progressing toward
// completion. Any other state is terminal.
var transientStates = []string{
	StateCompleting,
	StateConfiguring,
	StatePending,
	StateResizing,
	StateRunning,
	StateSignaling,
}

// IsTransientState reports whether a job in this state should still be
// monitored.
func IsTransientState(state string) bool {
	return collections.ContainsString(transientStates, state)
}

// IsSuccessState reports whether this state is the successful terminal state.
func IsSuccessState(state string) bool {
	return state == StateCompleted
}

// IsFailureState reports whether this state is terminal without being a
// success, as FAILED, CANCELLED, TIMEOUT, OUT_OF_MEMORY or NODE_FAIL.
func IsFailureState(state string) bool {
	return !IsTransientState(state) && !IsSuccessState(state)
}
