package keyed

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMutex(t *testing.T) {
	var k Mutex
	var wg sync.WaitGroup
	counts := map[string]int{}
	var countsMu sync.Mutex

	for i := range 50 {
		key := "a"
		if i%2 == 0 {
			key = "b"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(key)
			defer unlock()

			countsMu.Lock()
			counts[key]++
			countsMu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, counts["a"])
	assert.Equal(t, 25, counts["b"])
	assert.Zero(t, k.Len(), "entries are released when unused")
}

func TestMutex_KeysDoNotContend(t *testing.T) {
	var k Mutex
	unlockA := k.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on b waited for a")
	}
}
