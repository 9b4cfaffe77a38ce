package config

import "time"

// CacheConfig is the single staleness and polling policy used by the domain hooks.
type CacheConfig interface {
	GetListStaleTime() time.Duration
	GetDetailStaleTime() time.Duration
	GetTestRunStaleTime() time.Duration
	GetPerformanceStaleTime() time.Duration
	GetReferenceStaleTime() time.Duration
	GetUnreadPollInterval() time.Duration
	GetSpecDocumentTTL() time.Duration
}

type Cache struct{}

var _ CacheConfig = Cache{}

func (Cache) GetListStaleTime() time.Duration {
	return 30 * time.Second
}

func (Cache) GetDetailStaleTime() time.Duration {
	return time.Minute
}

// GetTestRunStaleTime is long because a run never changes once created.
func (Cache) GetTestRunStaleTime() time.Duration {
	return 10 * time.Minute
}

func (Cache) GetPerformanceStaleTime() time.Duration {
	return 5 * time.Minute
}

// GetReferenceStaleTime covers slow-moving reference data (AI models, current user).
func (Cache) GetReferenceStaleTime() time.Duration {
	return time.Hour
}

func (Cache) GetUnreadPollInterval() time.Duration {
	return 30 * time.Second
}

func (Cache) GetSpecDocumentTTL() time.Duration {
	return time.Hour
}
