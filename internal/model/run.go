package model

import "time"

// RunStats summarizes one unification run.
type RunStats struct {
	Listings        int `json:"listings"`
	Buckets         int `json:"buckets"`
	Products        int `json:"products"`
	Singletons      int `json:"singletons"`
	FallbackBuckets int `json:"fallback_buckets"`
	BypassedBuckets int `json:"bypassed_buckets"`
	SameShopSplits  int `json:"same_shop_splits"`
	UnknownBrand    int `json:"unknown_brand"`
	NoSize          int `json:"no_size"`
}

// RunResult is the complete output of one pipeline run. Product ids are only
// meaningful within the run that produced them.
type RunResult struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Products   []UnifiedProduct `json:"products"`
	Stats      RunStats         `json:"stats"`
}

// Duration returns the wall-clock duration of the run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
