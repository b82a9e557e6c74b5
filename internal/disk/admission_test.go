package disk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"drivemeta/internal/testutil"
)

func newQueue(t *testing.T) *AdmissionQueue {
	t.Helper()
	q := NewAdmissionQueue(NewNopLogger(), testutil.NewStubIDGenerator(), time.Time{})
	t.Cleanup(q.Close)
	return q
}

func TestAdmissionGrantsSmallestTimestampFirst(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	hold, err := q.Enter(ctx, base)
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}

	// Enqueue out of order while the baton is parked, then record the
	// order grants actually arrive in.
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for _, offset := range []int{5, 2, 9, 1, 7, 3} {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			ticket, err := q.Enter(ctx, base.Add(time.Duration(offset)*time.Minute))
			if err != nil {
				t.Errorf("Enter(%d): %v", offset, err)
				return
			}
			mu.Lock()
			order = append(order, offset)
			mu.Unlock()
			ticket.Release()
		}(offset)
	}

	time.Sleep(50 * time.Millisecond)
	hold.Release()
	wg.Wait()

	want := []int{1, 2, 3, 5, 7, 9}
	if len(order) != len(want) {
		t.Fatalf("granted %d tickets, want %d", len(order), len(want))
	}
	for i, offset := range want {
		if order[i] != offset {
			t.Fatalf("grant order = %v, want %v", order, want)
		}
	}
}

func TestAdmissionRejectsNonIncreasingDate(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ticket, err := q.Enter(ctx, base)
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	ticket.Release()

	if _, err := q.Enter(ctx, base); !IsValidation(err) {
		t.Errorf("same date: got %v, want validation error", err)
	}
	if _, err := q.Enter(ctx, base.Add(-time.Minute)); !IsValidation(err) {
		t.Errorf("older date: got %v, want validation error", err)
	}

	ticket, err = q.Enter(ctx, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("newer date rejected: %v", err)
	}
	ticket.Release()
}

func TestAdmissionFloorSurvivesConstruction(t *testing.T) {
	floor := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := NewAdmissionQueue(NewNopLogger(), testutil.NewStubIDGenerator(), floor)
	t.Cleanup(q.Close)

	if _, err := q.Enter(context.Background(), floor); !IsValidation(err) {
		t.Errorf("date at floor: got %v, want validation error", err)
	}
	ticket, err := q.Enter(context.Background(), floor.Add(time.Second))
	if err != nil {
		t.Fatalf("date above floor rejected: %v", err)
	}
	ticket.Release()
}

func TestAdmissionAbandonedWaiterDoesNotStrandQueue(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	hold, err := q.Enter(ctx, base)
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}

	waitCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		_, err := q.Enter(waitCtx, base.Add(time.Minute))
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("abandoned Enter = %v, want context.Canceled", err)
	}

	hold.Release()

	// The abandoned ticket was skipped; a later request still gets in.
	ticket, err := q.Enter(ctx, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Enter after abandon: %v", err)
	}
	ticket.Release()
}

func TestAdmissionCloseUnblocksWaiters(t *testing.T) {
	q := NewAdmissionQueue(NewNopLogger(), testutil.NewStubIDGenerator(), time.Time{})
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	hold, err := q.Enter(ctx, base)
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	_ = hold

	done := make(chan error, 1)
	go func() {
		_, err := q.Enter(ctx, base.Add(time.Minute))
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	q.Close()
	if err := <-done; !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Enter after close = %v, want ErrQueueClosed", err)
	}
}
