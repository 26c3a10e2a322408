// Copyright 2021-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Schedule reports the next instant a job should run after t
type Schedule interface {
	Next(t time.Time) time.Time
}

// Reconciling is the part of Service a ReconcileJob drives
type Reconciling interface {
	Reconcile(ctx context.Context, userID string) ([]string, error)
}

// UserLister enumerates the users whose ledgers are reconciled
type UserLister func(ctx context.Context) ([]string, error)

// ReconcileJob reconciles every user's ledger whenever its schedule comes due.
// Run is meant to be polled frequently; it does nothing until the next
// scheduled instant has passed.
type ReconcileJob struct {
	service  Reconciling
	users    UserLister
	schedule Schedule

	mu   sync.Mutex
	next time.Time

	// Now reports the current time; replaced in tests
	Now func() time.Time
}

// NewReconcileJob creates a job whose first run is the first scheduled instant
// after the first poll
func NewReconcileJob(service Reconciling, users UserLister, schedule Schedule) *ReconcileJob {
	return &ReconcileJob{
		service:  service,
		users:    users,
		schedule: schedule,
		Now:      time.Now,
	}
}

// Due reports whether the job would reconcile if polled at now
func (j *ReconcileJob) Due(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.next.IsZero() {
		j.next = j.schedule.Next(now)
	}
	return !now.Before(j.next)
}

// Run reconciles all users if the schedule is due and returns how many
// ledgers changed
func (j *ReconcileJob) Run(ctx context.Context) int {
	now := j.Now()
	if !j.Due(now) {
		return 0
	}

	j.mu.Lock()
	j.next = j.schedule.Next(now)
	next := j.next
	j.mu.Unlock()

	users, err := j.users(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not list users to reconcile")
		return 0
	}

	changed := 0
	for _, userID := range users {
		codes, err := j.service.Reconcile(ctx, userID)
		if err != nil {
			log.Error().Stack().Err(err).Str("UserID", userID).Msg("reconcile failed")
			continue
		}
		if len(codes) > 0 {
			changed++
			log.Info().Str("UserID", userID).Strs("Codes", codes).Msg("ledger reconciled")
		}
	}

	log.Info().Int("Users", len(users)).Int("Changed", changed).Time("NextRun", next).Msg("scheduled reconciliation finished")
	return changed
}
