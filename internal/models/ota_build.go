package models

import (
	"crypto/sha256"
	"time"
)

// OTABuild is one staged agent build, keyed by build_id. At most one build
// per package has IsCurrent set.
type OTABuild struct {
	BuildID             string     `db:"build_id"`
	PackageName         string     `db:"package_name"`
	VersionCode         int64      `db:"version_code"`
	VersionName         string     `db:"version_name"`
	SHA256              string     `db:"sha256"`
	SignerFingerprint   string     `db:"signer_fingerprint"`
	StorageURL          string     `db:"storage_url"`
	IsCurrent           bool       `db:"is_current"`
	StagedRolloutPct    int        `db:"staged_rollout_pct"`
	WifiOnly            bool       `db:"wifi_only"`
	MustInstall         bool       `db:"must_install"`
	RollbackFromBuildID *string    `db:"rollback_from_build_id"`
	PromotedAt          *time.Time `db:"promoted_at"`
	PromotedBy          string     `db:"promoted_by"`
	CreatedAt           time.Time  `db:"created_at"`
}

// Cohort computes the device's stable rollout cohort in [0,100) from the
// first two hex bytes of SHA-256(device_id) mod 100.
func Cohort(deviceID string) int {
	sum := sha256.Sum256([]byte(deviceID))
	hi := int(sum[0])<<8 | int(sum[1])
	return hi % 100
}

// EligibleForCohort reports whether a device with the given cohort is
// eligible for a build staged at stagedRolloutPct.
func EligibleForCohort(cohort, stagedRolloutPct int) bool {
	return cohort < stagedRolloutPct
}
