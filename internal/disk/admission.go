package disk

import (
	"container/heap"
	"context"
	"errors"
	"time"
)

// ErrQueueClosed is returned by Enter once the admission queue has shut
// down.
var ErrQueueClosed = errors.New("admission queue closed")

// Ticket is one request's ordering claim. It is created by Enter and
// lives until Release (or abandonment through context cancellation).
type Ticket struct {
	id    string
	date  time.Time
	grant chan error
	q     *AdmissionQueue

	// actor-owned, never touched outside the run loop
	resolved bool
}

type msgKind int

const (
	msgEnqueue msgKind = iota
	msgRelease
	msgAbandon
)

type message struct {
	kind   msgKind
	ticket *Ticket
}

// AdmissionQueue serializes mutations by claimed timestamp. A single
// actor goroutine owns a min-heap of waiting tickets and a baton: the
// ticket with the globally smallest timestamp is woken, holds the baton
// through lock acquisition and import-row insertion, then releases it.
// This is what makes import ids increase strictly with timestamps no
// matter the arrival order.
type AdmissionQueue struct {
	msgs   chan message
	stop   chan struct{}
	done   chan struct{}
	logger Logger
	idgen  IDGenerator
	floor  time.Time
}

// NewAdmissionQueue starts the queue actor. floor is the newest import
// date already persisted (zero when the store is empty); tickets at or
// below it are rejected, keeping the timestamp order strict across
// restarts.
func NewAdmissionQueue(logger Logger, idgen IDGenerator, floor time.Time) *AdmissionQueue {
	q := &AdmissionQueue{
		msgs:   make(chan message),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
		idgen:  idgen,
		floor:  floor,
	}
	go q.run()
	return q
}

// Enter registers a claim for date and blocks until the queue grants
// this request its turn. The returned ticket must be released once the
// request no longer needs ordering protection (after locks are held and
// the import row exists, not after commit).
func (q *AdmissionQueue) Enter(ctx context.Context, date time.Time) (*Ticket, error) {
	t := &Ticket{
		id:    q.idgen.New(),
		date:  date,
		grant: make(chan error, 1),
		q:     q,
	}

	select {
	case q.msgs <- message{kind: msgEnqueue, ticket: t}:
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case err := <-t.grant:
		if err != nil {
			return nil, err
		}
		return t, nil
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		// The grant may already be in flight; the actor frees the
		// baton in that case so the next ticket is not stranded.
		select {
		case q.msgs <- message{kind: msgAbandon, ticket: t}:
		case <-q.done:
		}
		return nil, ctx.Err()
	}
}

// Release hands the baton back so the next-smallest ticket is woken.
func (t *Ticket) Release() {
	select {
	case t.q.msgs <- message{kind: msgRelease, ticket: t}:
	case <-t.q.done:
	}
}

// Close shuts the actor down. Pending waiters receive ErrQueueClosed.
func (q *AdmissionQueue) Close() {
	close(q.stop)
	<-q.done
}

func (q *AdmissionQueue) run() {
	defer close(q.done)

	pending := &ticketHeap{}
	heap.Init(pending)
	var holder *Ticket
	abandoned := make(map[string]bool)
	lastDate := q.floor

	for {
		select {
		case m := <-q.msgs:
			switch m.kind {
			case msgEnqueue:
				heap.Push(pending, m.ticket)
			case msgRelease:
				if holder != nil && holder.id == m.ticket.id {
					holder = nil
				}
			case msgAbandon:
				admissionAbandoned.Inc()
				switch {
				case holder != nil && holder.id == m.ticket.id:
					holder = nil
				case m.ticket.resolved:
					// already rejected, nothing to clean up
				default:
					abandoned[m.ticket.id] = true
				}
			}
		case <-q.stop:
			for pending.Len() > 0 {
				t := heap.Pop(pending).(*Ticket)
				t.grant <- ErrQueueClosed
			}
			return
		}

		for holder == nil && pending.Len() > 0 {
			t := heap.Pop(pending).(*Ticket)
			if abandoned[t.id] {
				delete(abandoned, t.id)
				continue
			}
			t.resolved = true
			if !lastDate.IsZero() && !t.date.After(lastDate) {
				t.grant <- validationf(
					"date %s is not newer than the latest applied import",
					t.date.UTC().Format(time.RFC3339Nano))
				continue
			}
			lastDate = t.date
			holder = t
			t.grant <- nil
			admissionGrants.Inc()
			q.logger.Debug("admission granted", "ticket", t.id, "date", t.date)
		}
	}
}

// ticketHeap orders tickets by claimed timestamp, ties broken by ticket
// id for determinism.
type ticketHeap []*Ticket

func (h ticketHeap) Len() int { return len(h) }
func (h ticketHeap) Less(i, j int) bool {
	if h[i].date.Equal(h[j].date) {
		return h[i].id < h[j].id
	}
	return h[i].date.Before(h[j].date)
}
func (h ticketHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *ticketHeap) Push(x any) { *h = append(*h, x.(*Ticket)) }

func (h *ticketHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
