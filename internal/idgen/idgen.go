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

// Package idgen mints the identifiers stamped on plans and processes.
package idgen

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Flake hands out time-ordered 63-bit IDs, unique per machine.
type Flake struct {
	sf *sonyflake.Sonyflake
}

func NewFlake() (*Flake, error) {
	sf, err := sonyflake.New(sonyflake.Settings{StartTime: epoch})
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("idgen: sonyflake unavailable")
	}
	return &Flake{sf: sf}, nil
}

func (f *Flake) Next() (uint64, error) {
	return f.sf.NextID()
}

var (
	instanceOnce sync.Once
	instanceID   string
)

// InstanceID identifies this process in logs and metrics. It falls back to
// a random UUID when no machine ID can be derived.
func InstanceID() string {
	instanceOnce.Do(func() {
		if f, err := NewFlake(); err == nil {
			if id, err := f.Next(); err == nil {
				instanceID = strconv.FormatUint(id, 36)
				return
			}
		}
		instanceID = uuid.NewString()
	})
	return instanceID
}

// NewPlanID names one run of the planner.
func NewPlanID() string {
	return uuid.NewString()
}
