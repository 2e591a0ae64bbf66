package manager

import (
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/linuxdeepin/dde-cooperation/internal/machine"
)

// sweepTick is how often the sweeper looks at the front of the deadline
// index for peers due to be removed, a coarse tick rather than one
// time.AfterFunc per peer.
const sweepTick = time.Second

// deadlineItem orders peers by when their offline window closes, breaking
// ties on uuid so two peers timing out in the same tick both sort
// deterministically instead of colliding in the tree.
type deadlineItem struct {
	deadline time.Time
	uuid     string
}

func (a deadlineItem) Less(than btree.Item) bool {
	b := than.(deadlineItem)
	if a.deadline.Equal(b.deadline) {
		return a.uuid < b.uuid
	}
	return a.deadline.Before(b.deadline)
}

// sweeper mirrors each tracked Machine's own offlineTimer deadline in an
// ordered index: a single background goroutine finds which peers are due
// for removal in O(log n) by popping the minimum instead of scanning the
// whole peer map every tick. It is a coarse-grained safety net alongside
// each Machine's own timer-driven Idle-transition-then-Remove path; a peer
// whose own timer already removed it is simply absent here on the next
// touch.
type sweeper struct {
	mgr *Manager

	mu       sync.Mutex
	byUUID   map[string]time.Time
	tree     *btree.BTree
	stopOnce sync.Once
	stopCh   chan struct{}
}

func newSweeper(mgr *Manager) *sweeper {
	return &sweeper{
		mgr:    mgr,
		byUUID: make(map[string]time.Time),
		tree:   btree.New(32),
		stopCh: make(chan struct{}),
	}
}

// touch records/refreshes uuid's offline deadline, derived from the
// Machine's own configured offline window so the two stay in step.
func (s *sweeper) touch(uuid string, m *machine.Machine) {
	deadline := time.Now().Add(time.Duration(s.mgr.cfg.OfflineWindowMs) * time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byUUID[uuid]; ok {
		s.tree.Delete(deadlineItem{deadline: old, uuid: uuid})
	}
	s.byUUID[uuid] = deadline
	s.tree.ReplaceOrInsert(deadlineItem{deadline: deadline, uuid: uuid})
}

// forget removes uuid from the index, called once its Machine has already
// been torn down so a later tick doesn't try to remove it a second time.
func (s *sweeper) forget(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byUUID[uuid]; ok {
		s.tree.Delete(deadlineItem{deadline: old, uuid: uuid})
		delete(s.byUUID, uuid)
	}
}

func (s *sweeper) run() {
	ticker := time.NewTicker(sweepTick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.sweepOnce(now)
		}
	}
}

func (s *sweeper) sweepOnce(now time.Time) {
	var expired []string

	s.mu.Lock()
	for {
		min := s.tree.Min()
		if min == nil {
			break
		}
		item := min.(deadlineItem)
		if item.deadline.After(now) {
			break
		}
		s.tree.Delete(item)
		delete(s.byUUID, item.uuid)
		expired = append(expired, item.uuid)
	}
	s.mu.Unlock()

	for _, uuid := range expired {
		if m, ok := s.mgr.Peer(uuid); ok && m.Connected() {
			// A live Paired connection's liveness is the stream's
			// keepalive; a stale index entry for one is not grounds for
			// removal, only for dropping from the index.
			continue
		}
		s.mgr.Remove(uuid)
	}
}

func (s *sweeper) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
