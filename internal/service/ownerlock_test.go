package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOwnerLocks_SerializesSameOwner(t *testing.T) {
	locks := NewOwnerLocks()
	var mu sync.Mutex
	inside, maxInside := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("userA")
			defer unlock()
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, locks.size())
}

func TestOwnerLocks_OwnersAreIndependent(t *testing.T) {
	locks := NewOwnerLocks()
	unlockA := locks.Lock("userA")

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("userB")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("userB blocked behind userA")
	}
	assert.Equal(t, 1, locks.size())
	unlockA()
	assert.Equal(t, 0, locks.size())
}
