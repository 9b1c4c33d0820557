// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package compressor

import (
	"errors"
	"time"
)

var (
	ErrDayOutOfOrder = errors.New("day is not after the newest day in the buffer")
)

// RingBuffer keeps the most recent Cap() days of indicator rows for one
// stock. Pushing onto a full buffer evicts the oldest day.
type RingBuffer struct {
	days  []time.Time
	rows  [][]float64
	start int
	size  int
}

func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		days: make([]time.Time, capacity),
		rows: make([][]float64, capacity),
	}
}

func (rb *RingBuffer) Cap() int {
	return len(rb.days)
}

func (rb *RingBuffer) Len() int {
	return rb.size
}

// Newest returns the most recently pushed day
func (rb *RingBuffer) Newest() (time.Time, bool) {
	if rb.size == 0 {
		return time.Time{}, false
	}
	return rb.days[(rb.start+rb.size-1)%rb.Cap()], true
}

// Push appends a copy of values for day
func (rb *RingBuffer) Push(day time.Time, values []float64) error {
	if newest, ok := rb.Newest(); ok && !day.After(newest) {
		return ErrDayOutOfOrder
	}

	row := make([]float64, len(values))
	copy(row, values)

	if rb.size < rb.Cap() {
		idx := (rb.start + rb.size) % rb.Cap()
		rb.days[idx] = day
		rb.rows[idx] = row
		rb.size++
		return nil
	}

	rb.days[rb.start] = day
	rb.rows[rb.start] = row
	rb.start = (rb.start + 1) % rb.Cap()
	return nil
}

// Days returns the buffered days from oldest to newest
func (rb *RingBuffer) Days() []time.Time {
	out := make([]time.Time, rb.size)
	for ii := 0; ii < rb.size; ii++ {
		out[ii] = rb.days[(rb.start+ii)%rb.Cap()]
	}
	return out
}

// Rows returns copies of the buffered rows from oldest to newest
func (rb *RingBuffer) Rows() [][]float64 {
	out := make([][]float64, rb.size)
	for ii := 0; ii < rb.size; ii++ {
		src := rb.rows[(rb.start+ii)%rb.Cap()]
		row := make([]float64, len(src))
		copy(row, src)
		out[ii] = row
	}
	return out
}
