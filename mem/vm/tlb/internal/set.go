// Package internal provides the sets that make up a TLB.
package internal

import (
	"sort"

	"github.com/sarchlab/vmsa/mem/vm"
)

// An Entry is a cached translation stored under a key.
type Entry struct {
	Key    string
	Valid  bool
	Record vm.TLBRecord
}

// A Set holds a certain number of entries and evicts the least recently used
// one.
type Set interface {
	Lookup(key string) (wayID int, entry Entry, found bool)
	Update(wayID int, entry Entry)
	Evict() (wayID int, victim Entry, ok bool)
	Visit(wayID int)
	Invalidate(match func(Entry) bool) int
	NumValid() int
}

// NewSet creates a new TLB set.
func NewSet(numWays int) Set {
	s := &setImpl{}
	s.blocks = make([]*block, numWays)
	s.visitList = make([]*block, 0, numWays)
	s.keyWayIDMap = make(map[string]int)

	for i := range s.blocks {
		b := &block{}
		s.blocks[i] = b
		b.wayID = i
		s.Visit(i)
	}

	return s
}

type block struct {
	entry     Entry
	wayID     int
	lastVisit uint64
}

type setImpl struct {
	blocks      []*block
	keyWayIDMap map[string]int
	visitList   []*block
	visitCount  uint64
}

func (s *setImpl) Lookup(key string) (wayID int, entry Entry, found bool) {
	wayID, ok := s.keyWayIDMap[key]
	if !ok {
		return 0, Entry{}, false
	}

	block := s.blocks[wayID]

	return block.wayID, block.entry, true
}

func (s *setImpl) Update(wayID int, entry Entry) {
	block := s.blocks[wayID]
	if block.entry.Valid {
		delete(s.keyWayIDMap, block.entry.Key)
	}

	block.entry = entry
	if entry.Valid {
		s.keyWayIDMap[entry.Key] = wayID
	}
}

// Evict removes the least recently used block from the visit list. The
// block must be visited again once it is refilled.
func (s *setImpl) Evict() (wayID int, victim Entry, ok bool) {
	if len(s.visitList) == 0 {
		return 0, Entry{}, false
	}

	leastVisited := s.visitList[0]
	s.visitList = s.visitList[1:]

	return leastVisited.wayID, leastVisited.entry, true
}

func (s *setImpl) Visit(wayID int) {
	block := s.blocks[wayID]
	s.removeFromVisitList(wayID)

	s.visitCount++
	block.lastVisit = s.visitCount

	index := sort.Search(len(s.visitList), func(i int) bool {
		return s.visitList[i].lastVisit > block.lastVisit
	})
	s.visitList = append(s.visitList, nil)
	copy(s.visitList[index+1:], s.visitList[index:])
	s.visitList[index] = block
}

func (s *setImpl) removeFromVisitList(wayID int) {
	for i, b := range s.visitList {
		if b.wayID == wayID {
			s.visitList = append(s.visitList[:i], s.visitList[i+1:]...)
			return
		}
	}
}

// Invalidate drops the valid entries that match and makes their blocks the
// first to be evicted. It returns the number of entries dropped.
func (s *setImpl) Invalidate(match func(Entry) bool) int {
	count := 0

	for _, b := range s.blocks {
		if !b.entry.Valid || !match(b.entry) {
			continue
		}

		delete(s.keyWayIDMap, b.entry.Key)
		b.entry = Entry{}
		b.lastVisit = 0

		s.removeFromVisitList(b.wayID)
		s.visitList = append([]*block{b}, s.visitList...)
		count++
	}

	return count
}

func (s *setImpl) NumValid() int {
	return len(s.keyWayIDMap)
}
