package application

import (
	"github.com/google/uuid"
	"github.com/im7mortal/kmutex"
)

// keyedLock serializes work on one aggregate within this process. Writers in
// other processes are caught by the optimistic version check.
type keyedLock struct {
	km *kmutex.Kmutex
}

func newKeyedLock() keyedLock {
	return keyedLock{km: kmutex.New()}
}

// lock acquires id and returns its release func.
func (k keyedLock) lock(id uuid.UUID) func() {
	k.km.Lock(id)
	return func() { k.km.Unlock(id) }
}
