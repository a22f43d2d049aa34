package groutine_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srg/g1ctl/internal/groutine"
	"github.com/stretchr/testify/assert"
)

func TestGoPropagatesName(t *testing.T) {
	done := make(chan string, 1)
	groutine.Go(context.Background(), "worker-42", func(ctx context.Context) {
		done <- groutine.GetName(ctx)
	})

	select {
	case name := <-done:
		assert.Equal(t, "worker-42", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGroupStopCancelsAndWaits(t *testing.T) {
	g := groutine.NewGroup(context.Background())

	var running atomic.Int32
	for i := 0; i < 3; i++ {
		g.Go("member", func(ctx context.Context) {
			running.Add(1)
			<-ctx.Done()
			running.Add(-1)
		})
	}

	assert.Eventually(t, func() bool { return running.Load() == 3 }, time.Second, 5*time.Millisecond)

	g.Stop()
	assert.Equal(t, int32(0), running.Load(), "Stop must wait for every member to return")
}

func TestGroupStopIsIdempotentAndBlocksNewMembers(t *testing.T) {
	g := groutine.NewGroup(nil)
	g.Stop()
	g.Stop()

	ran := make(chan struct{}, 1)
	g.Go("late", func(ctx context.Context) { ran <- struct{}{} })

	select {
	case <-ran:
		t.Fatal("member started on a stopped group")
	case <-time.After(50 * time.Millisecond):
	}
}
