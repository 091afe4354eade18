package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/versecast/versecast/internal/catalog"
)

func tracks(ids ...string) []catalog.Track {
	result := make([]catalog.Track, len(ids))
	for i, id := range ids {
		result[i] = catalog.Track{ID: id, Title: "Track " + id, Duration: 30 * time.Second}
	}
	return result
}

func TestNew(t *testing.T) {
	q := New()

	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
	if q.Index() != -1 {
		t.Errorf("Index() = %d, want -1", q.Index())
	}
	if q.Current() != nil {
		t.Error("Current() should be nil for empty queue")
	}
}

func TestQueue_Replace(t *testing.T) {
	q := New()

	if err := q.Replace(tracks("a", "b", "c"), ""); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}
	if q.Index() != 0 {
		t.Errorf("Index() = %d, want 0", q.Index())
	}
	if cur := q.Current(); cur == nil || cur.Track.ID != "a" {
		t.Errorf("Current() = %v, want track a", cur)
	}
}

func TestQueue_Replace_StartID(t *testing.T) {
	q := New()

	if err := q.Replace(tracks("a", "b", "c"), "b"); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if q.Index() != 1 {
		t.Errorf("Index() = %d, want 1", q.Index())
	}
	if cur := q.Current(); cur == nil || cur.Track.ID != "b" {
		t.Errorf("Current() = %v, want track b", cur)
	}
}

func TestQueue_Replace_UnknownStartID(t *testing.T) {
	q := New()

	if err := q.Replace(tracks("a", "b"), "zzz"); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	// Unknown start id falls back to 0
	if q.Index() != 0 {
		t.Errorf("Index() = %d, want 0", q.Index())
	}
}

func TestQueue_Replace_EmptyWithStartID(t *testing.T) {
	q := New()

	err := q.Replace(nil, "a")

	if !errors.Is(err, ErrEmptyQueue) {
		t.Errorf("Replace() error = %v, want ErrEmptyQueue", err)
	}
}

func TestQueue_Replace_EmptyClears(t *testing.T) {
	q := New()
	_ = q.Replace(tracks("a"), "")

	if err := q.Replace(nil, ""); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if !q.IsEmpty() {
		t.Error("queue should be empty")
	}
	if q.Index() != -1 {
		t.Errorf("Index() = %d, want -1", q.Index())
	}
}

func TestQueue_Replace_IndexAlwaysValid(t *testing.T) {
	q := New()

	for _, startID := range []string{"", "a", "c", "nope"} {
		if err := q.Replace(tracks("a", "b", "c"), startID); err != nil {
			t.Fatalf("Replace(%q) error = %v", startID, err)
		}
		if q.Index() < 0 || q.Index() >= q.Len() {
			t.Errorf("Replace(%q): Index() = %d out of bounds", startID, q.Index())
		}
	}
}

func TestQueue_Next(t *testing.T) {
	q := New()
	_ = q.Replace(tracks("a", "b"), "")

	entry, err := q.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if entry.Track.ID != "b" {
		t.Errorf("Next() = %s, want b", entry.Track.ID)
	}
	if entry.Index != 1 {
		t.Errorf("entry.Index = %d, want 1", entry.Index)
	}
}

func TestQueue_Next_AtEnd(t *testing.T) {
	q := New()
	_ = q.Replace(tracks("a", "b"), "b")

	_, err := q.Next()

	if !errors.Is(err, ErrEndOfQueue) {
		t.Errorf("Next() error = %v, want ErrEndOfQueue", err)
	}
	// Cursor unmoved
	if q.Index() != 1 {
		t.Errorf("Index() = %d, want 1", q.Index())
	}
}

func TestQueue_Next_Empty(t *testing.T) {
	q := New()

	_, err := q.Next()

	if !errors.Is(err, ErrEndOfQueue) {
		t.Errorf("Next() error = %v, want ErrEndOfQueue", err)
	}
}

func TestQueue_Previous(t *testing.T) {
	q := New()
	_ = q.Replace(tracks("a", "b"), "b")

	entry, moved := q.Previous()

	if !moved {
		t.Error("Previous() should have moved")
	}
	if entry.Track.ID != "a" {
		t.Errorf("Previous() = %s, want a", entry.Track.ID)
	}
}

func TestQueue_Previous_AtStart(t *testing.T) {
	q := New()
	_ = q.Replace(tracks("a", "b"), "")

	entry, moved := q.Previous()

	if moved {
		t.Error("Previous() at index 0 should not move")
	}
	if q.Index() != 0 {
		t.Errorf("Index() = %d, want 0", q.Index())
	}
	if entry == nil || entry.Track.ID != "a" {
		t.Errorf("Previous() = %v, want current entry a", entry)
	}
}

func TestQueue_HasNext(t *testing.T) {
	q := New()
	_ = q.Replace(tracks("a", "b"), "")

	if !q.HasNext() {
		t.Error("HasNext() should be true at first of two")
	}

	_, _ = q.Next()
	if q.HasNext() {
		t.Error("HasNext() should be false at last entry")
	}
}

func TestQueue_JumpTo(t *testing.T) {
	q := New()
	_ = q.Replace(tracks("a", "b", "c"), "")

	entry := q.JumpTo(2)
	if entry == nil || entry.Track.ID != "c" {
		t.Errorf("JumpTo(2) = %v, want c", entry)
	}

	if q.JumpTo(5) != nil {
		t.Error("JumpTo(5) should return nil")
	}
	if q.JumpTo(-1) != nil {
		t.Error("JumpTo(-1) should return nil")
	}
}

func TestQueue_Clear(t *testing.T) {
	q := New()
	_ = q.Replace(tracks("a"), "")

	q.Clear()

	if !q.IsEmpty() {
		t.Error("queue should be empty after Clear")
	}
	if q.Current() != nil {
		t.Error("Current() should be nil after Clear")
	}
}

func TestQueue_Tracks_ReturnsCopy(t *testing.T) {
	q := New()
	_ = q.Replace(tracks("a", "b"), "")

	snapshot := q.Tracks()
	snapshot[0].ID = "mutated"

	if cur := q.Current(); cur.Track.ID != "a" {
		t.Errorf("queue content mutated through snapshot: %s", cur.Track.ID)
	}
}
