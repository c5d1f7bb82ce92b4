// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package idgen

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlakeIncreasing(t *testing.T) {
	f, err := NewFlake()
	if err != nil {
		t.Skipf("sonyflake unavailable here: %v", err)
	}
	a, err := f.Next()
	require.NoError(t, err)
	b, err := f.Next()
	require.NoError(t, err)
	assert.Greater(t, b, a)
}

func TestInstanceIDStable(t *testing.T) {
	id := InstanceID()
	assert.NotEmpty(t, id)
	assert.Equal(t, id, InstanceID())
}

func TestNewPlanID(t *testing.T) {
	a := NewPlanID()
	_, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.NotEqual(t, a, NewPlanID())
}
