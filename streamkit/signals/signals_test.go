package signals

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotify(t *testing.T) {
	signal := New[int]()
	var got []int
	signal.Attach(func(event int) { got = append(got, event) })

	signal.Notify(1)
	signal.Notify(2)
	assert.Equal(t, []int{1, 2}, got)
}

func TestDetach(t *testing.T) {
	signal := New[string]()
	count := 0
	detach := signal.Attach(func(string) { count++ })

	signal.Notify("a")
	detach()
	signal.Notify("b")
	assert.Equal(t, 1, count)
}

func TestConcurrentNotify(t *testing.T) {
	signal := New[int]()
	var mu sync.Mutex
	count := 0
	signal.Attach(func(int) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			signal.Notify(1)
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, count)
}
