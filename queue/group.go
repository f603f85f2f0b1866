package queue

import "github.com/xraph/lakequeue/job"

// GroupConfig limits the jobs of one group within one queue type. Group
// limits are checked after a job is dequeued, since the group is not known
// before; a job over its group's limit is left to reappear when its lease
// lapses.
type GroupConfig struct {
	QueueType job.QueueType
	GroupID   int64

	RateLimit      float64
	RateBurst      int
	MaxConcurrency int
}

type groupKey struct {
	queueType job.QueueType
	groupID   int64
}

// SetGroupConfig configures limits for one group. Calling it again for the
// same pair replaces the configuration and keeps the active count.
func (m *Manager) SetGroupConfig(cfg GroupConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := groupKey{cfg.QueueType, cfg.GroupID}
	gs := newLimitState(cfg.RateLimit, cfg.RateBurst, cfg.MaxConcurrency)
	if existing := m.groups[key]; existing != nil {
		gs.active = existing.active
	}
	m.groups[key] = gs
}

// AcquireGroup reports whether a dequeued job of groupID may run now. Pair
// every true result with ReleaseGroup.
func (m *Manager) AcquireGroup(qt job.QueueType, groupID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	gs := m.groups[groupKey{qt, groupID}]
	if gs == nil {
		return true
	}
	if !gs.allow() {
		return false
	}
	gs.active++
	return true
}

// ReleaseGroup undoes one successful AcquireGroup.
func (m *Manager) ReleaseGroup(qt job.QueueType, groupID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gs := m.groups[groupKey{qt, groupID}]; gs != nil && gs.active > 0 {
		gs.active--
	}
}

// GroupActiveCount returns the number of running jobs for a group.
func (m *Manager) GroupActiveCount(qt job.QueueType, groupID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gs := m.groups[groupKey{qt, groupID}]; gs != nil {
		return gs.active
	}
	return 0
}
