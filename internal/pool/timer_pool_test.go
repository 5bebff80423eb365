package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetTimer_Fires(t *testing.T) {
	begin := time.Now()
	timer := GetTimer(30 * time.Millisecond)
	defer PutTimer(timer)

	select {
	case <-timer.C:
		assert.GreaterOrEqual(t, time.Since(begin), 30*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestPutTimer_NoStaleTick(t *testing.T) {
	// an expired timer that was never read must not fire early after reuse
	for i := 0; i < 10; i++ {
		timer := GetTimer(time.Millisecond)
		time.Sleep(5 * time.Millisecond)
		PutTimer(timer)
	}

	begin := time.Now()
	timer := GetTimer(100 * time.Millisecond)
	defer PutTimer(timer)

	select {
	case <-timer.C:
		assert.GreaterOrEqual(t, time.Since(begin), 90*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestPutTimer_Active(t *testing.T) {
	PutTimer(GetTimer(20 * time.Millisecond))

	timer := GetTimer(time.Second)
	defer PutTimer(timer)

	select {
	case <-timer.C:
		t.Error("reused timer fired early")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimerPool_Concurrency(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer := GetTimer(5 * time.Millisecond)
			defer PutTimer(timer)
			<-timer.C
		}()
	}
	wg.Wait()
}
