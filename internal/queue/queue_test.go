package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// testFix is a simple struct for testing the generic queue
type testFix struct {
	ID        int
	AttemptID string
}

func TestQueue_New(t *testing.T) {
	q := New[testFix]()
	if q == nil {
		t.Fatal("expected non-nil queue")
	}
	if !q.Empty() {
		t.Error("expected empty queue")
	}
	if q.Len() != 0 {
		t.Errorf("expected length 0, got %d", q.Len())
	}
}

func TestQueue_PushPop(t *testing.T) {
	q := New[testFix]()

	_, ok := q.Pop()
	if ok {
		t.Error("expected Pop on empty queue to report !ok")
	}

	q.Push(testFix{ID: 1, AttemptID: "first"}, testFix{ID: 2, AttemptID: "second"})
	first, ok := q.Pop()
	if !ok || first.ID != 1 || first.AttemptID != "first" {
		t.Errorf("expected {1, first}, got %+v (ok=%v)", first, ok)
	}
	if q.Len() != 1 {
		t.Errorf("expected length 1, got %d", q.Len())
	}
}

func TestQueue_Clear(t *testing.T) {
	q := New[testFix]()
	q.Push(testFix{ID: 1}, testFix{ID: 2}, testFix{ID: 3})

	q.Clear()

	if !q.Empty() {
		t.Error("expected empty queue after clear")
	}
}

func TestQueue_GetAndEmpty(t *testing.T) {
	q := New[testFix]()
	q.Push(testFix{ID: 1}, testFix{ID: 2}, testFix{ID: 3})

	result := q.GetAndEmpty()

	if len(result) != 3 {
		t.Errorf("expected 3 items, got %d", len(result))
	}
	if result[0].ID != 1 || result[1].ID != 2 || result[2].ID != 3 {
		t.Errorf("unexpected items: %+v", result)
	}
	if !q.Empty() {
		t.Error("expected empty queue after GetAndEmpty")
	}
}

func TestQueue_BoundedDropsOldest(t *testing.T) {
	q := NewBounded[int](3)

	assert.Equal(t, 0, q.Push(1, 2))
	assert.Equal(t, 0, q.Push(3))
	assert.Equal(t, 2, q.Push(4, 5))

	assert.Equal(t, []int{3, 4, 5}, q.Snapshot())

	// push larger than the limit keeps the tail
	assert.Equal(t, 5, q.Push(6, 7, 8, 9, 10))
	assert.Equal(t, []int{8, 9, 10}, q.Snapshot())
}

func TestQueue_BoundedZeroIsUnbounded(t *testing.T) {
	q := NewBounded[int](0)
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	assert.Equal(t, 100, q.Len())
}

func TestQueue_Newest(t *testing.T) {
	q := New[int]()
	assert.Nil(t, q.Newest(3))

	q.Push(1, 2, 3, 4)
	assert.Equal(t, []int{4, 3}, q.Newest(2))
	assert.Equal(t, []int{4, 3, 2, 1}, q.Newest(10))
	assert.Nil(t, q.Newest(0))

	// Newest does not consume
	assert.Equal(t, 4, q.Len())
}

func TestQueue_SnapshotIsCopy(t *testing.T) {
	q := New[int]()
	q.Push(1, 2)

	s := q.Snapshot()
	s[0] = 99

	first, _ := q.Pop()
	assert.Equal(t, 1, first)
}

func TestQueue_Concurrent(t *testing.T) {
	q := New[testFix]()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q.Push(testFix{ID: id})
		}(i)
	}
	wg.Wait()

	if q.Len() != 100 {
		t.Errorf("expected 100 items, got %d", q.Len())
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Pop()
		}()
	}
	wg.Wait()

	if q.Len() != 50 {
		t.Errorf("expected 50 items after pops, got %d", q.Len())
	}
}

func TestQueue_ConcurrentBounded(t *testing.T) {
	q := NewBounded[int](10)
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			q.Push(v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, q.Len())
}

func TestQueue_ConcurrentGetAndEmpty(t *testing.T) {
	q := New[testFix]()
	for i := 0; i < 100; i++ {
		q.Push(testFix{ID: i})
	}

	var wg sync.WaitGroup
	results := make(chan []testFix, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- q.GetAndEmpty()
		}()
	}
	wg.Wait()
	close(results)

	total := 0
	for r := range results {
		total += len(r)
	}
	if total != 100 {
		t.Errorf("expected total 100 items, got %d", total)
	}
}
