package sync

import (
	"fmt"
	base "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStripedLock_CountersStayConsistent(t *testing.T) {
	const (
		keys       = 64
		increments = 500
	)

	l := NewStripedLock(4)
	counters := make([]int, keys)

	var wg base.WaitGroup
	for k := 0; k < keys; k++ {
		k := k
		key := []byte(fmt.Sprintf("position%d", k))
		for i := 0; i < increments; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				unlock := l.Lock(key)
				counters[k]++
				unlock()
			}()
		}
	}
	wg.Wait()

	for k, count := range counters {
		assert.Equal(t, increments, count, "position%d", k)
	}
}

func TestStripedLock_MultipleKeys(t *testing.T) {
	l := NewStripedLock(8)

	keys := make([][]byte, 32)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key%d", i))
	}

	var wg base.WaitGroup
	data := make([]int, 32)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			// Overlapping key sets in different orders
			selected := [][]byte{keys[i%32], keys[(i*7)%32], keys[i%32]}
			if i%2 == 0 {
				selected = [][]byte{keys[(i*7)%32], keys[i%32]}
			}

			unlock := l.Lock(selected...)
			data[i%32]++
			unlock()
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("deadlock acquiring multiple keys")
	}

	var total int
	for _, v := range data {
		total += v
	}
	assert.Equal(t, 64, total)
}

func TestStripedLock_SameKeySameLock(t *testing.T) {
	l := NewStripedLock(16)
	assert.Equal(t, l.Get([]byte("key")), l.Get([]byte("key")))

	unlock := l.Lock([]byte("key"))
	assert.False(t, l.Get([]byte("key")).TryLock())
	unlock()
	assert.True(t, l.Get([]byte("key")).TryLock())
	l.Get([]byte("key")).Unlock()

	assert.NotNil(t, NewStripedLock(0).Get([]byte("key")))
}
