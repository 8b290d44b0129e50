package workers

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ternarybob/arbor"
)

func TestPoolRunsAllJobs(t *testing.T) {
	pool := NewPool(4, arbor.NewLogger())
	pool.Start()

	var completed int64
	for i := 0; i < 20; i++ {
		err := pool.Submit(func(ctx context.Context) error {
			atomic.AddInt64(&completed, 1)
			return nil
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	pool.Wait()

	if completed != 20 {
		t.Errorf("Expected 20 completed jobs, got %d", completed)
	}
	if len(pool.Errors()) != 0 {
		t.Errorf("Expected no errors, got %d", len(pool.Errors()))
	}
}

func TestPoolCollectsErrors(t *testing.T) {
	pool := NewPool(2, arbor.NewLogger())
	pool.Start()

	for i := 0; i < 5; i++ {
		i := i
		err := pool.Submit(func(ctx context.Context) error {
			if i%2 == 0 {
				return fmt.Errorf("job %d failed", i)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	pool.Wait()

	// Jobs 0, 2, 4 fail
	if len(pool.Errors()) != 3 {
		t.Errorf("Expected 3 errors, got %d", len(pool.Errors()))
	}
}
