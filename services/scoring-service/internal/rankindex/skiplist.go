package rankindex

import (
	"context"
	"math/rand/v2"
	"sync"
)

const (
	maxLevel = 32
	pFactor  = 0.25
)

type skipLevel struct {
	forward *skipNode
	// span counts the level-0 hops covered by forward (to the end when nil)
	span int
}

type skipNode struct {
	owner  string
	key    Key
	levels []skipLevel
}

func (n *skipNode) before(key Key, owner string) bool {
	if n.key.Partition != key.Partition {
		return n.key.Partition < key.Partition
	}
	if n.key.Value != key.Value {
		return n.key.Value < key.Value
	}
	return n.owner < owner
}

// SkipList is an in-process Index: a skip list whose links carry spans, the
// same layout Redis uses for sorted sets, so ranks come out of one descent.
type SkipList struct {
	mu     sync.RWMutex
	head   *skipNode
	level  int
	length int
	owners map[string]*skipNode
	rnd    *rand.Rand
}

func NewSkipList() *SkipList {
	return &SkipList{
		head:   &skipNode{levels: make([]skipLevel, maxLevel)},
		level:  1,
		owners: make(map[string]*skipNode),
		rnd:    rand.New(rand.NewPCG(0x5eed, 0x1ab)),
	}
}

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rnd.Float64() < pFactor {
		lvl++
	}
	return lvl
}

func (s *SkipList) Upsert(_ context.Context, ownerID string, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.owners[ownerID]; ok {
		if existing.key == key {
			return nil
		}
		s.unlink(existing)
	}
	s.owners[ownerID] = s.insert(ownerID, key)
	return nil
}

func (s *SkipList) Remove(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.owners[ownerID]; ok {
		s.unlink(existing)
		delete(s.owners, ownerID)
	}
	return nil
}

func (s *SkipList) Get(_ context.Context, ownerID string) (Key, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.owners[ownerID]
	if !ok {
		return Key{}, false, nil
	}
	return n.key, true, nil
}

func (s *SkipList) TopK(_ context.Context, prefix string, k int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 {
		return []Entry{}, nil
	}

	var n *skipNode
	if prefix == "" {
		n = s.head.levels[0].forward
	} else {
		_, last := s.countBefore(prefix, false)
		n = last.levels[0].forward
	}

	entries := make([]Entry, 0, min(k, s.length))
	for n != nil && len(entries) < k {
		if prefix != "" && n.key.Partition != prefix {
			break
		}
		entries = append(entries, Entry{OwnerID: n.owner, Key: n.key, Position: len(entries)})
		n = n.levels[0].forward
	}
	return entries, nil
}

func (s *SkipList) PositionOf(_ context.Context, ownerID, prefix string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.owners[ownerID]
	if !ok {
		return 0, false, nil
	}
	if prefix != "" && n.key.Partition != prefix {
		return 0, false, nil
	}

	position := s.rankOf(n) - 1
	if prefix != "" {
		offset, _ := s.countBefore(prefix, false)
		position -= offset
	}
	return position, true, nil
}

func (s *SkipList) Count(_ context.Context, prefix string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if prefix == "" {
		return s.length, nil
	}
	lo, _ := s.countBefore(prefix, false)
	hi, _ := s.countBefore(prefix, true)
	return hi - lo, nil
}

func (s *SkipList) insert(owner string, key Key) *skipNode {
	var update [maxLevel]*skipNode
	var rank [maxLevel]int

	x := s.head
	for i := s.level - 1; i >= 0; i-- {
		if i < s.level-1 {
			rank[i] = rank[i+1]
		}
		for x.levels[i].forward != nil && x.levels[i].forward.before(key, owner) {
			rank[i] += x.levels[i].span
			x = x.levels[i].forward
		}
		update[i] = x
	}

	lvl := s.randomLevel()
	if lvl > s.level {
		for i := s.level; i < lvl; i++ {
			rank[i] = 0
			update[i] = s.head
			update[i].levels[i].span = s.length
		}
		s.level = lvl
	}

	n := &skipNode{owner: owner, key: key, levels: make([]skipLevel, lvl)}
	for i := 0; i < lvl; i++ {
		n.levels[i].forward = update[i].levels[i].forward
		update[i].levels[i].forward = n
		n.levels[i].span = update[i].levels[i].span - (rank[0] - rank[i])
		update[i].levels[i].span = rank[0] - rank[i] + 1
	}
	for i := lvl; i < s.level; i++ {
		update[i].levels[i].span++
	}

	s.length++
	return n
}

func (s *SkipList) unlink(target *skipNode) {
	var update [maxLevel]*skipNode

	x := s.head
	for i := s.level - 1; i >= 0; i-- {
		for x.levels[i].forward != nil && x.levels[i].forward.before(target.key, target.owner) {
			x = x.levels[i].forward
		}
		update[i] = x
	}

	for i := 0; i < s.level; i++ {
		if update[i].levels[i].forward == target {
			update[i].levels[i].span += target.levels[i].span - 1
			update[i].levels[i].forward = target.levels[i].forward
		} else {
			update[i].levels[i].span--
		}
	}
	for s.level > 1 && s.head.levels[s.level-1].forward == nil {
		s.level--
	}
	s.length--
}

// rankOf returns the 1-based rank of target in the whole ordering.
func (s *SkipList) rankOf(target *skipNode) int {
	rank := 0
	x := s.head
	for i := s.level - 1; i >= 0; i-- {
		for x.levels[i].forward != nil &&
			(x.levels[i].forward == target || x.levels[i].forward.before(target.key, target.owner)) {
			rank += x.levels[i].span
			x = x.levels[i].forward
		}
		if x == target {
			return rank
		}
	}
	return rank
}

// countBefore counts entries whose partition sorts before partition (or at
// or before it when inclusive) and returns the last such node, or the head.
func (s *SkipList) countBefore(partition string, inclusive bool) (int, *skipNode) {
	count := 0
	x := s.head
	for i := s.level - 1; i >= 0; i-- {
		for {
			next := x.levels[i].forward
			if next == nil {
				break
			}
			if next.key.Partition > partition || (!inclusive && next.key.Partition == partition) {
				break
			}
			count += x.levels[i].span
			x = next
		}
	}
	return count, x
}
