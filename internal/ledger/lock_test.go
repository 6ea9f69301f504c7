package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountLocksSerializePerAccount(t *testing.T) {
	locks := newAccountLocks()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("a")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, locks.locks)
}

func TestAccountLocksIndependentAccounts(t *testing.T) {
	locks := newAccountLocks()

	unlockA := locks.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}
