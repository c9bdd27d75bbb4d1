package testserver

import "sync"

// LockManager records which upload request currently holds each project.
// A second upload for a held project is refused, as the real server does.
type LockManager struct {
	mu      sync.Mutex
	holders map[string]string // project -> request id
}

// NewLockManager creates a new lock manager
func NewLockManager() *LockManager {
	return &LockManager{
		holders: make(map[string]string),
	}
}

// Acquire claims projectName for requestID without blocking.
// When the project is already held, ok is false and holder names the
// request in progress. Calling release more than once is safe.
func (lm *LockManager) Acquire(projectName, requestID string) (release func(), holder string, ok bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if current, held := lm.holders[projectName]; held {
		return nil, current, false
	}
	lm.holders[projectName] = requestID

	var once sync.Once
	release = func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if lm.holders[projectName] == requestID {
				delete(lm.holders, projectName)
			}
		})
	}
	return release, requestID, true
}

// Holder returns the request id holding projectName, if any
func (lm *LockManager) Holder(projectName string) (string, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	requestID, held := lm.holders[projectName]
	return requestID, held
}
