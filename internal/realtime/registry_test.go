package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryFirstAndLastSession(t *testing.T) {
	r := NewRegistry()

	// Two tabs: presence flips only on the first register and last unregister
	assert.True(t, r.Register("s1", "alice"))
	assert.False(t, r.Register("s2", "alice"))
	assert.Equal(t, 2, r.Connections("alice"))

	userID, last, ok := r.Unregister("s1")
	assert.True(t, ok)
	assert.Equal(t, "alice", userID)
	assert.False(t, last)
	assert.Equal(t, 1, r.Connections("alice"))

	userID, last, ok = r.Unregister("s2")
	assert.True(t, ok)
	assert.Equal(t, "alice", userID)
	assert.True(t, last)
	assert.Equal(t, 0, r.Connections("alice"))
}

func TestRegistryDuplicateRegisterIsNoop(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Register("s1", "alice"))
	assert.False(t, r.Register("s1", "alice"))
	assert.Equal(t, 1, r.Connections("alice"))
}

func TestRegistryUnknownSession(t *testing.T) {
	r := NewRegistry()

	_, _, ok := r.Unregister("ghost")
	assert.False(t, ok)

	_, ok = r.UserOf("ghost")
	assert.False(t, ok)
}

func TestRegistryConcurrentLifecycle(t *testing.T) {
	r := NewRegistry()

	const sessions = 64
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("s-%d", n)
			// Sessions for the same user race register/unregister
			r.Register(id, "bob")
			r.Unregister(id)
		}(i)
	}
	wg.Wait()

	// Counter never goes negative and ends balanced
	assert.Equal(t, 0, r.Connections("bob"))
}
