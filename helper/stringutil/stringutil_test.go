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

package stringutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	t.Parallel()
	type args struct {
		str       string
		maxLength int
	}
	tests := []struct {
		name     string
		args     args
		expected string
	}{
		{name: "TestNoTruncation", args: args{str: "gpu_test", maxLength: 20}, expected: "gpu_test"},
		{name: "TestTruncation", args: args{str: "a_very_long_job_name_that_does_not_fit", maxLength: 10}, expected: "a_very_..."},
		{name: "TestTooSmallMax", args: args{str: "gpu_test", maxLength: 3}, expected: "gpu_test"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, Truncate(tt.args.str, tt.args.maxLength))
	}
}
