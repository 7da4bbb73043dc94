package model

// RollupBucket holds incrementally maintained aggregates for one key of one
// dimension (model, category, or level). Updated in O(1) per completion;
// never recomputed from history.
type RollupBucket struct {
	Key string

	TaskCount    int
	SuccessCount int
	FailureCount int

	TotalCost       float64
	TotalTokens     int64
	TotalDurationMs int64

	AvgCost       float64
	AvgTokens     float64
	AvgDurationMs float64
}

// Fold returns the bucket with one completed task folded in.
func (b RollupBucket) Fold(t TaskRecord) RollupBucket {
	b.TaskCount++
	if t.Succeeded {
		b.SuccessCount++
	} else {
		b.FailureCount++
	}

	b.TotalCost += t.TotalCost
	b.TotalTokens += t.TotalTokens()
	b.TotalDurationMs += t.DurationMs

	n := float64(b.TaskCount)
	b.AvgCost = b.TotalCost / n
	b.AvgTokens = float64(b.TotalTokens) / n
	b.AvgDurationMs = float64(b.TotalDurationMs) / n

	return b
}

// SuccessRate returns successes over completed tasks, 0 when empty.
func (b RollupBucket) SuccessRate() float64 {
	if b.TaskCount == 0 {
		return 0
	}
	return float64(b.SuccessCount) / float64(b.TaskCount)
}

// Rollup maps a dimension key to its bucket.
type Rollup map[string]RollupBucket

// Folded returns a copy of the rollup with the task folded into the bucket
// for key. The receiver is not modified.
func (r Rollup) Folded(key string, t TaskRecord) Rollup {
	out := make(Rollup, len(r)+1)
	for k, b := range r {
		out[k] = b
	}

	b, ok := out[key]
	if !ok {
		b = RollupBucket{Key: key}
	}
	out[key] = b.Fold(t)
	return out
}

// Clone returns a shallow copy (buckets are values).
func (r Rollup) Clone() Rollup {
	out := make(Rollup, len(r))
	for k, b := range r {
		out[k] = b
	}
	return out
}
