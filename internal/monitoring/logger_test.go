package monitoring

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLoggerRestores(t *testing.T) {
	var outer []string
	restoreOuter := SetLogger(func(format string, v ...interface{}) {
		outer = append(outer, fmt.Sprintf(format, v...))
	})
	defer restoreOuter()

	restore := SetLogger(nil)
	Logf("run %s finished", "muted")
	restore()
	Logf("run %s finished", "r-1")

	assert.Equal(t, []string{"run r-1 finished"}, outer)
}

func TestLogfConcurrentWithSetLogger(t *testing.T) {
	var mu sync.Mutex
	n := 0
	count := func(string, ...interface{}) {
		mu.Lock()
		n++
		mu.Unlock()
	}
	defer SetLogger(count)()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			Logf("placed %d queue counters", i)
		}(i)
	}
	for i := 0; i < 8; i++ {
		SetLogger(count)()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 8, n)
}
