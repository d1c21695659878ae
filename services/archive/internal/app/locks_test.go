package app

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesKey(t *testing.T) {
	var km keyedMutex
	var wg sync.WaitGroup
	active, peak := 0, 0
	var mu sync.Mutex
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("user_1_ref.jpg")
			defer unlock()
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if peak != 1 {
		t.Fatalf("%d holders at once, want 1", peak)
	}
	if len(km.locks) != 0 {
		t.Fatalf("released keys still tracked: %d", len(km.locks))
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	var km keyedMutex
	unlockA := km.Lock("a")
	unlockB := km.Lock("b")
	unlockB()
	unlockA()
}
