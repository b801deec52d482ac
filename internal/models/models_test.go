package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateServiceUp(t *testing.T) {
	cases := []struct {
		name             string
		appInstalled     bool
		foregroundRecent int64
		thresholdMinutes int
		want             ServiceUpState
	}{
		{"not installed", false, 10, 20, ServiceUpUnknown},
		{"unknown sentinel", true, ForegroundUnknown, 20, ServiceUpUnknown},
		{"within threshold", true, 5 * 60, 20, ServiceUpTrue},
		{"exactly at threshold", true, 20 * 60, 20, ServiceUpTrue},
		{"past threshold", true, 21 * 60, 20, ServiceUpFalse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateServiceUp(tc.appInstalled, tc.foregroundRecent, tc.thresholdMinutes)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCohortIsStableAndBounded(t *testing.T) {
	ids := []string{"device-1", "device-2", "a-much-longer-device-identifier"}
	for _, id := range ids {
		c1 := Cohort(id)
		c2 := Cohort(id)
		assert.Equal(t, c1, c2, "cohort must be deterministic for the same device id")
		assert.GreaterOrEqual(t, c1, 0)
		assert.Less(t, c1, 100)
	}
}

func TestCohortDistributesAcrossBuckets(t *testing.T) {
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		id := time.Unix(int64(i), 0).Format(time.RFC3339Nano)
		seen[Cohort(id)] = true
	}
	assert.Greater(t, len(seen), 50, "500 distinct device ids should spread across more than 50 of the 100 cohort buckets")
}

func TestEligibleForCohort(t *testing.T) {
	assert.True(t, EligibleForCohort(10, 50))
	assert.False(t, EligibleForCohort(50, 50))
	assert.False(t, EligibleForCohort(99, 0))
	assert.True(t, EligibleForCohort(0, 1))
}

func TestBulkExecutionIsConsistent(t *testing.T) {
	b := &BulkExecution{Sent: 10, Acked: 6, Errored: 4, Status: BulkExecCompleted}
	assert.True(t, b.IsConsistent())

	overcounted := &BulkExecution{Sent: 10, Acked: 6, Errored: 5, Status: BulkExecRunning}
	assert.False(t, overcounted.IsConsistent())

	prematurelyCompleted := &BulkExecution{Sent: 10, Acked: 3, Errored: 0, Status: BulkExecCompleted}
	assert.False(t, prematurelyCompleted.IsConsistent())

	stillRunning := &BulkExecution{Sent: 10, Acked: 3, Errored: 0, Status: BulkExecRunning}
	assert.True(t, stillRunning.IsConsistent())
}

func TestAlertStateInCooldown(t *testing.T) {
	now := time.Now()

	noCooldown := &AlertState{}
	assert.False(t, noCooldown.InCooldown(now))

	active := &AlertState{CooldownUntil: ptrTime(now.Add(time.Minute))}
	assert.True(t, active.InCooldown(now))

	expired := &AlertState{CooldownUntil: ptrTime(now.Add(-time.Minute))}
	assert.False(t, expired.InCooldown(now))
}

func TestSelectionSnapshotExpired(t *testing.T) {
	now := time.Now()
	s := &SelectionSnapshot{ExpiresAt: now.Add(-time.Second)}
	assert.True(t, s.Expired(now))

	fresh := &SelectionSnapshot{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, fresh.Expired(now))
}

func TestDedupeBucket(t *testing.T) {
	ts := time.Date(2026, 1, 1, 3, 4, 25, 0, time.UTC)
	minute, bucket := DedupeBucket(ts)
	assert.Equal(t, 3*60+4, minute)
	assert.Equal(t, 2, bucket)
}

func TestIsForegroundUnknown(t *testing.T) {
	assert.True(t, IsForegroundUnknown(ForegroundUnknown))
	assert.True(t, IsForegroundUnknown(-5))
	assert.False(t, IsForegroundUnknown(0))
	assert.False(t, IsForegroundUnknown(100))
}

func TestDeploymentStatsAdoptionRate(t *testing.T) {
	s := &DeploymentStats{TotalEligible: 200, InstallsSuccess: 50}
	assert.InDelta(t, 0.25, s.AdoptionRate(), 0.0001)

	empty := &DeploymentStats{}
	assert.Equal(t, 0.0, empty.AdoptionRate())
}

func ptrTime(t time.Time) *time.Time { return &t }
