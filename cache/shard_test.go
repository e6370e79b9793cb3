package cache

import "testing"

func TestShard_PushFrontAndMoveToFront(t *testing.T) {
	s := newShard()
	a := newEntry("a", "", "a", []byte("1"), 0, 1)
	b := newEntry("b", "", "b", []byte("1"), 0, 2)
	c := newEntry("c", "", "c", []byte("1"), 0, 3)

	s.m["a"], s.m["b"], s.m["c"] = a, b, c
	s.pushFront(a)
	s.pushFront(b)
	s.pushFront(c)
	// order (head->tail): c, b, a

	if s.head != c || s.tail != a {
		t.Fatalf("unexpected list bounds: head=%v tail=%v", s.head.key, s.tail.key)
	}

	s.moveToFront(a)
	if s.head != a {
		t.Fatalf("moveToFront(a) should make a head, got %v", s.head.key)
	}
	if s.tail != b {
		t.Fatalf("expected b to become tail, got %v", s.tail.key)
	}
}

func TestShard_DeleteLocked(t *testing.T) {
	s := newShard()
	a := newEntry("a", "", "a", []byte("12345"), 0, 1)
	s.m["a"] = a
	s.pushFront(a)
	s.bytes = a.size

	s.deleteLocked(a)

	if _, ok := s.m["a"]; ok {
		t.Fatal("key should be removed from map")
	}
	if s.bytes != 0 {
		t.Fatalf("expected bytes 0, got %d", s.bytes)
	}
	if s.head != nil || s.tail != nil {
		t.Fatal("list should be empty")
	}
}

func TestShard_FillToFitEvictsColdestFirst(t *testing.T) {
	s := newShard()
	a := newEntry("a", "", "a", []byte("aaaaaaaaaa"), 0, 1) // size = 1+10 = 11
	b := newEntry("b", "", "b", []byte("bbbbbbbbbb"), 0, 2)
	s.m["a"], s.m["b"] = a, b
	s.pushFront(a)
	s.pushFront(b) // head=b, tail=a
	s.bytes = a.size + b.size

	var evicted []string
	s.fillToFit(11, 0, nil, func(e *entry) { evicted = append(evicted, e.key) })

	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("expected only the coldest entry (a) evicted, got %v", evicted)
	}
	if _, ok := s.m["b"]; !ok {
		t.Fatal("b should survive")
	}
}

func TestShard_FillToFitNeverEvictsProtected(t *testing.T) {
	s := newShard()
	a := newEntry("a", "", "a", []byte("aaaaaaaaaa"), 0, 1)
	s.m["a"] = a
	s.pushFront(a)
	s.bytes = a.size

	var evicted []string
	s.fillToFit(1, 0, a, func(e *entry) { evicted = append(evicted, e.key) })

	if len(evicted) != 0 {
		t.Fatalf("protected entry must never be evicted, got %v", evicted)
	}
}

func TestShard_SweepExpiredLocked(t *testing.T) {
	s := newShard()
	live := newEntry("live", "", "live", []byte("v"), 0, 1)
	dead := newEntry("dead", "", "dead", []byte("v"), 100, 1)
	s.m["live"], s.m["dead"] = live, dead
	s.pushFront(dead)
	s.pushFront(live)
	s.bytes = live.size + dead.size

	evicted := s.sweepExpiredLocked(200)

	if len(evicted) != 1 || evicted[0].key != "dead" {
		t.Fatalf("expected dead entry evicted, got %v", evicted)
	}
	if _, ok := s.m["live"]; !ok {
		t.Fatal("live entry should survive the sweep")
	}
}
