package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	counters := map[string]int{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		key := []string{"a", "b"}[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(key)
			defer unlock()
			mu.Lock()
			counters[key]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, counters["a"])
	assert.Equal(t, 25, counters["b"])
	assert.Equal(t, 0, k.size())
}
