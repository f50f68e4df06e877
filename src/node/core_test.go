package node

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/mosaicnetworks/dsm/src/common"
	"github.com/mosaicnetworks/dsm/src/net"
	"github.com/mosaicnetworks/dsm/src/store"
	"github.com/mosaicnetworks/dsm/src/topology"
)

type link struct {
	from, to uint32
}

// testNetwork routes messages between Cores in the same goroutine. Each
// (from, to) pair is a FIFO queue; step picks the next pair at random when rnd
// is set, or the lowest pair otherwise.
type testNetwork struct {
	t      testing.TB
	cores  map[uint32]*Core
	stores map[uint32]*store.InmemStore
	links  map[link][]net.Message
	rnd    *rand.Rand
	clocks map[uint32][]uint64
}

type linkSender struct {
	n    *testNetwork
	from uint32
}

func (s *linkSender) Send(to uint32, msg net.Message) error {
	if _, ok := s.n.cores[to]; !ok {
		return fmt.Errorf("unknown peer %d", to)
	}
	l := link{s.from, to}
	s.n.links[l] = append(s.n.links[l], msg)
	return nil
}

func newTestNetwork(t testing.TB, variables map[string][]uint32, tieBreaker TieBreaker, seed int64) *testNetwork {
	n := &testNetwork{
		t:      t,
		cores:  make(map[uint32]*Core),
		stores: make(map[uint32]*store.InmemStore),
		links:  make(map[link][]net.Message),
		clocks: make(map[uint32][]uint64),
	}
	if seed >= 0 {
		n.rnd = rand.New(rand.NewSource(seed))
	}

	ids := map[uint32]bool{}
	for _, subs := range variables {
		for _, id := range subs {
			ids[id] = true
		}
	}

	for id := range ids {
		st := store.NewInmemStore()
		n.stores[id] = st
		n.cores[id] = NewCore(id,
			topology.NewDirectory(id, variables),
			st,
			&linkSender{n, id},
			tieBreaker,
			nil,
			common.NewTestEntry(t, common.TestLogLevel).WithField("this_id", id))
	}

	return n
}

func (n *testNetwork) submit(id uint32, variable string, value int64) {
	c := n.cores[id]
	_, queued := c.inflight[variable]
	before := c.Time()

	if err := c.Submit(variable, value); err != nil {
		n.t.Fatalf("Submit(%d, %s, %d): %v", id, variable, value, err)
	}

	if queued {
		// the SET waits behind the in-flight one: nothing is sent
		if c.Time() != before {
			n.t.Fatalf("peer %d: queued SET moved the clock from %d to %d", id, before, c.Time())
		}
		return
	}
	n.recordClock(id)
}

func (n *testNetwork) pending() []link {
	res := []link{}
	for l, q := range n.links {
		if len(q) > 0 {
			res = append(res, l)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].from != res[j].from {
			return res[i].from < res[j].from
		}
		return res[i].to < res[j].to
	})
	return res
}

// step delivers one message. It returns false when no message is in flight.
func (n *testNetwork) step() (bool, error) {
	pending := n.pending()
	if len(pending) == 0 {
		return false, nil
	}

	l := pending[0]
	if n.rnd != nil {
		l = pending[n.rnd.Intn(len(pending))]
	}

	msg := n.links[l][0]
	n.links[l] = n.links[l][1:]

	core := n.cores[l.to]

	var err error
	switch m := msg.(type) {
	case *net.Prepare:
		err = core.ProcessPrepare(m)
	case *net.PrepareResponse:
		err = core.ProcessPrepareResponse(m)
	case *net.Notify:
		err = core.ProcessNotify(m)
	default:
		err = fmt.Errorf("unexpected message %T", msg)
	}

	n.recordClock(l.to)

	return true, err
}

func (n *testNetwork) run() {
	for i := 0; ; i++ {
		if i > 100000 {
			n.t.Fatal("network did not settle")
		}
		ok, err := n.step()
		if err != nil {
			n.t.Fatal(err)
		}
		if !ok {
			return
		}
	}
}

func (n *testNetwork) recordClock(id uint32) {
	n.clocks[id] = append(n.clocks[id], n.cores[id].Time())
}

func (n *testNetwork) checkSettled() {
	for id, c := range n.cores {
		if !c.Idle() || !c.Drained() {
			n.t.Fatalf("peer %d did not settle: %+v", id, c.Stats())
		}
		if c.tracker.OpenCount() != 0 {
			n.t.Fatalf("peer %d has %d open prepares", id, c.tracker.OpenCount())
		}
	}
}

// checkAgreement verifies that every pair of subscribers of a variable agree
// on its value and on the order of the operations on it.
func (n *testNetwork) checkAgreement(variables map[string][]uint32) {
	for v, subs := range variables {
		var refValue store.Variable
		var refLog []store.LogEntry
		for i, id := range subs {
			value := n.stores[id].Snapshot()[v]
			log := filterLog(n.stores[id].Entries(), v)
			if i == 0 {
				refValue, refLog = value, log
				continue
			}
			if value != refValue {
				n.t.Fatalf("%s: peer %d has %+v, peer %d has %+v", v, subs[0], refValue, id, value)
			}
			if !reflect.DeepEqual(log, refLog) {
				n.t.Fatalf("%s: peer %d log %v, peer %d log %v", v, subs[0], refLog, id, log)
			}
		}
	}
}

func filterLog(entries []store.LogEntry, variable string) []store.LogEntry {
	res := []store.LogEntry{}
	for _, e := range entries {
		if e.Variable == variable {
			res = append(res, e)
		}
	}
	return res
}

func TestCoreTwoPeersDisjointSets(t *testing.T) {
	variables := map[string][]uint32{
		"X": {1, 2},
		"Y": {1, 2},
	}
	n := newTestNetwork(t, variables, LowestID{}, -1)

	n.submit(1, "X", 5)
	n.submit(2, "Y", 7)
	n.run()

	n.checkSettled()
	n.checkAgreement(variables)

	for id, st := range n.stores {
		snap := st.Snapshot()
		if snap["X"].Value != 5 || snap["Y"].Value != 7 {
			t.Fatalf("peer %d: X=%d Y=%d", id, snap["X"].Value, snap["Y"].Value)
		}
		if len(st.Entries()) != 2 {
			t.Fatalf("peer %d should log 2 entries, not %d", id, len(st.Entries()))
		}
	}

	if !reflect.DeepEqual(n.stores[1].Entries(), n.stores[2].Entries()) {
		t.Fatalf("logs differ: %v / %v", n.stores[1].Entries(), n.stores[2].Entries())
	}
}

func TestCoreSameVariable(t *testing.T) {
	variables := map[string][]uint32{
		"X": {1, 2},
	}
	n := newTestNetwork(t, variables, LowestID{}, -1)

	n.submit(1, "X", 10)
	n.submit(2, "X", 20)
	n.run()

	n.checkSettled()
	n.checkAgreement(variables)

	log := n.stores[1].Entries()
	if len(log) != 2 {
		t.Fatalf("log should have 2 entries, not %d", len(log))
	}

	// equal final timestamps are ordered by origin: 2 wins
	if log[0].Timestamp != log[1].Timestamp {
		t.Fatalf("both operations should finalize with the same timestamp: %v", log)
	}
	winner := n.stores[1].Snapshot()["X"]
	if winner.Value != 20 || winner.Timestamp != log[1].Timestamp {
		t.Fatalf("X should be 20 at ts %d, got %+v", log[1].Timestamp, winner)
	}
}

func TestCoreSequentialLocalSets(t *testing.T) {
	variables := map[string][]uint32{
		"A": {1, 2},
	}
	n := newTestNetwork(t, variables, LowestID{}, -1)

	n.submit(1, "A", 5)
	n.submit(1, "A", 6)
	n.submit(1, "A", 7)

	if s := n.cores[1].Stats(); s.InFlight != 1 || s.WaitingForSlot != 2 {
		t.Fatalf("one SET should be in flight and two waiting: %+v", s)
	}

	n.run()
	n.checkSettled()
	n.checkAgreement(variables)

	log := n.stores[2].Entries()
	values := []int64{}
	for _, e := range log {
		values = append(values, e.Value)
	}
	if !reflect.DeepEqual(values, []int64{5, 6, 7}) {
		t.Fatalf("local order should be preserved, got %v", values)
	}
	for i, e := range log {
		if e.Seq != uint64(i+1) {
			t.Fatalf("entry %d should have seq %d: %v", i, i+1, e)
		}
	}
}

func TestCoreUnsubscribedSubmit(t *testing.T) {
	variables := map[string][]uint32{
		"X": {1, 2},
		"Y": {2},
	}
	n := newTestNetwork(t, variables, LowestID{}, -1)

	err := n.cores[1].Submit("Y", 1)
	var cerr *topology.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("Submit on an unsubscribed variable should return a ConfigError, got %v", err)
	}
}

// cyclicCore returns the core of self, subscribed to X and Y with one other
// peer. It is driving SET(X,1) and holds an open prepare of the other peer on
// Y with a smaller timestamp than the final timestamp of its own operation.
func cyclicCore(t *testing.T, self uint32, tb TieBreaker) (*Core, *recordingSender) {
	variables := map[string][]uint32{
		"X": {1, 2},
		"Y": {1, 2},
	}
	other := uint32(3) - self

	sender := &recordingSender{}
	c := NewCore(self,
		topology.NewDirectory(self, variables),
		store.NewInmemStore(),
		sender,
		tb,
		nil,
		common.NewTestEntry(t, common.TestLogLevel))

	if err := c.Submit("X", 1); err != nil {
		t.Fatal(err)
	}
	if err := c.ProcessPrepare(&net.Prepare{FromID: other, Variable: "Y", Value: 2, Timestamp: 1, Seq: 1}); err != nil {
		t.Fatal(err)
	}
	if err := c.ProcessPrepareResponse(&net.PrepareResponse{FromID: other, Variable: "X", Value: 1, Timestamp: 5, Seq: 1}); err != nil {
		t.Fatal(err)
	}

	return c, sender
}

type recordingSender struct {
	sent []net.Message
}

func (s *recordingSender) Send(to uint32, msg net.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) notifies() []*net.Notify {
	res := []*net.Notify{}
	for _, m := range s.sent {
		if n, ok := m.(*net.Notify); ok {
			res = append(res, n)
		}
	}
	return res
}

func TestCoreTieBreakForced(t *testing.T) {
	c, sender := cyclicCore(t, 1, LowestID{})

	s := c.Stats()
	if s.Forced != 1 || s.Committed != 1 || s.Deferred != 0 {
		t.Fatalf("1 should force its commit: %+v", s)
	}

	notifies := sender.notifies()
	if len(notifies) != 1 || notifies[0].Timestamp != 5 || notifies[0].Variable != "X" {
		t.Fatalf("expected one NOTIFY of X at ts 5, got %v", notifies)
	}

	// X is held back until the open prepare of 2 on Y, at ts 2, commits
	if v := c.store.Snapshot()["X"]; v.Written {
		t.Fatalf("X should not be applied yet, got %+v", v)
	}

	if err := c.ProcessNotify(&net.Notify{FromID: 2, Variable: "Y", Value: 2, Timestamp: 3, Seq: 1}); err != nil {
		t.Fatal(err)
	}

	log := c.store.Entries()
	if len(log) != 2 || log[0].Variable != "Y" || log[1].Variable != "X" {
		t.Fatalf("Y at ts 3 should be applied before X at ts 5, got %v", log)
	}
	if v := c.store.Snapshot()["X"]; v.Value != 1 || v.Timestamp != 5 {
		t.Fatalf("X should be 1 at ts 5, got %+v", v)
	}
	if !c.Idle() || !c.Drained() {
		t.Fatalf("core should be idle and drained: %+v", c.Stats())
	}
}

func TestCoreTieBreakDeferred(t *testing.T) {
	c, sender := cyclicCore(t, 2, LowestID{})

	s := c.Stats()
	if s.Forced != 0 || s.Committed != 0 || s.Deferred != 1 || s.RetryQueue != 1 {
		t.Fatalf("2 should defer its commit: %+v", s)
	}
	if len(sender.notifies()) != 0 {
		t.Fatal("no NOTIFY should be sent while deferred")
	}

	// NOTIFY of the blocking operation closes the open prepare
	if err := c.ProcessNotify(&net.Notify{FromID: 1, Variable: "Y", Value: 2, Timestamp: 3, Seq: 1}); err != nil {
		t.Fatal(err)
	}

	s = c.Stats()
	if s.Committed != 1 || s.RetryQueue != 0 || s.OpenPrepares != 0 {
		t.Fatalf("the retry should commit: %+v", s)
	}
	if len(sender.notifies()) != 1 {
		t.Fatalf("expected one NOTIFY, got %v", sender.notifies())
	}
	if !c.Idle() || !c.Drained() {
		t.Fatalf("core should be idle and drained: %+v", s)
	}
}

func TestCoreStrictNeverForces(t *testing.T) {
	c, _ := cyclicCore(t, 1, Strict{})

	s := c.Stats()
	if s.Forced != 0 || s.Deferred != 1 {
		t.Fatalf("Strict should defer: %+v", s)
	}
}

func TestCoreDuplicateNotify(t *testing.T) {
	variables := map[string][]uint32{
		"X": {1, 2},
	}
	st := store.NewInmemStore()
	c := NewCore(2,
		topology.NewDirectory(2, variables),
		st,
		&recordingSender{},
		LowestID{},
		nil,
		common.NewTestEntry(t, common.TestLogLevel))

	if err := c.ProcessPrepare(&net.Prepare{FromID: 1, Variable: "X", Value: 5, Timestamp: 1, Seq: 1}); err != nil {
		t.Fatal(err)
	}

	notify := &net.Notify{FromID: 1, Variable: "X", Value: 5, Timestamp: 2, Seq: 1}
	for i := 0; i < 2; i++ {
		if err := c.ProcessNotify(notify); err != nil {
			t.Fatal(err)
		}
	}

	if s := c.Stats(); s.Duplicates != 1 || s.Delivered != 1 {
		t.Fatalf("the second NOTIFY should be a duplicate: %+v", s)
	}
	if len(st.Entries()) != 1 {
		t.Fatalf("log should have 1 entry, not %d", len(st.Entries()))
	}
	if v := st.Snapshot()["X"]; v.Value != 5 || v.Timestamp != 2 {
		t.Fatalf("X should be 5 at ts 2, got %+v", v)
	}

	// a PREPARE resent after commit is ignored
	if err := c.ProcessPrepare(&net.Prepare{FromID: 1, Variable: "X", Value: 5, Timestamp: 1, Seq: 1}); err != nil {
		t.Fatal(err)
	}
	if c.tracker.OpenCount() != 0 {
		t.Fatal("a PREPARE of a committed operation should not open")
	}
}

func TestCoreResentPrepare(t *testing.T) {
	variables := map[string][]uint32{
		"X": {1, 2},
	}
	sender := &recordingSender{}
	c := NewCore(2,
		topology.NewDirectory(2, variables),
		store.NewInmemStore(),
		sender,
		LowestID{},
		nil,
		common.NewTestEntry(t, common.TestLogLevel))

	prepare := &net.Prepare{FromID: 1, Variable: "X", Value: 5, Timestamp: 1, Seq: 1}
	for i := 0; i < 2; i++ {
		if err := c.ProcessPrepare(prepare); err != nil {
			t.Fatal(err)
		}
	}

	if len(sender.sent) != 2 {
		t.Fatalf("both PREPAREs should be answered, got %d", len(sender.sent))
	}
	r0 := sender.sent[0].(*net.PrepareResponse)
	r1 := sender.sent[1].(*net.PrepareResponse)
	if r0.Timestamp != r1.Timestamp {
		t.Fatalf("a resent PREPARE should get the recorded timestamp: %d, %d", r0.Timestamp, r1.Timestamp)
	}
	if c.tracker.OpenCount() != 1 {
		t.Fatalf("OpenCount should be 1, not %d", c.tracker.OpenCount())
	}
}

func TestCoreUnsubscribedPrepare(t *testing.T) {
	variables := map[string][]uint32{
		"X": {1, 2},
		"Y": {1, 3},
	}
	c := NewCore(2,
		topology.NewDirectory(2, variables),
		store.NewInmemStore(),
		&recordingSender{},
		LowestID{},
		nil,
		common.NewTestEntry(t, common.TestLogLevel))

	err := c.ProcessPrepare(&net.Prepare{FromID: 1, Variable: "Y", Value: 5, Timestamp: 1, Seq: 1})
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("PREPARE on an unsubscribed variable should be a protocol violation, got %v", err)
	}
}

func TestCoreNonSubscriberSender(t *testing.T) {
	variables := map[string][]uint32{
		"X": {1, 2},
		"Y": {1, 3},
	}
	sender := &recordingSender{}
	c := NewCore(1,
		topology.NewDirectory(1, variables),
		store.NewInmemStore(),
		sender,
		LowestID{},
		nil,
		common.NewTestEntry(t, common.TestLogLevel))

	// peer 3 does not subscribe to X
	err := c.ProcessPrepare(&net.Prepare{FromID: 3, Variable: "X", Value: 5, Timestamp: 1, Seq: 1})
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("PREPARE from a non-subscriber should be a protocol violation, got %v", err)
	}
	if c.tracker.OpenCount() != 0 {
		t.Fatalf("PREPARE from a non-subscriber should not open a prepare, got %d", c.tracker.OpenCount())
	}
	if len(sender.sent) != 0 {
		t.Fatalf("PREPARE from a non-subscriber should not be answered, sent %v", sender.sent)
	}

	err = c.ProcessNotify(&net.Notify{FromID: 3, Variable: "X", Value: 5, Timestamp: 2, Seq: 1})
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("NOTIFY from a non-subscriber should be a protocol violation, got %v", err)
	}
	if len(c.store.Entries()) != 0 {
		t.Fatalf("NOTIFY from a non-subscriber should not be applied, log %v", c.store.Entries())
	}
}

func TestCoreStaleResponse(t *testing.T) {
	variables := map[string][]uint32{
		"X": {1, 2, 3},
	}
	c := NewCore(1,
		topology.NewDirectory(1, variables),
		store.NewInmemStore(),
		&recordingSender{},
		LowestID{},
		nil,
		common.NewTestEntry(t, common.TestLogLevel))

	if err := c.Submit("X", 1); err != nil {
		t.Fatal(err)
	}

	responses := []*net.PrepareResponse{
		{FromID: 2, Variable: "X", Timestamp: 4, Seq: 7}, // wrong seq
		{FromID: 2, Variable: "Y", Timestamp: 4, Seq: 1}, // no operation
		{FromID: 2, Variable: "X", Timestamp: 4, Seq: 1},
		{FromID: 2, Variable: "X", Timestamp: 9, Seq: 1}, // duplicate
	}
	for _, r := range responses {
		if err := c.ProcessPrepareResponse(r); err != nil {
			t.Fatal(err)
		}
	}

	if s := c.Stats(); s.Committed != 0 || s.InFlight != 1 {
		t.Fatalf("operation should still wait for 3: %+v", s)
	}

	if err := c.ProcessPrepareResponse(&net.PrepareResponse{FromID: 3, Variable: "X", Timestamp: 6, Seq: 1}); err != nil {
		t.Fatal(err)
	}

	v := c.store.Snapshot()["X"]
	if v.Value != 1 || v.Timestamp != 6 {
		t.Fatalf("X should be 1 at ts 6, got %+v", v)
	}
}

func TestCoreAgreementRandomInterleavings(t *testing.T) {
	variables := map[string][]uint32{
		"A": {1, 2},
		"B": {1, 2},
		"C": {3, 4},
		"D": {3, 4},
		"E": {1, 2, 3, 4},
		"X": {1, 2, 3, 4},
	}

	for seed := int64(0); seed < 50; seed++ {
		n := newTestNetwork(t, variables, LowestID{}, seed)
		rnd := rand.New(rand.NewSource(seed))

		sets := []struct {
			id       uint32
			variable string
		}{
			{1, "A"}, {1, "B"}, {1, "A"}, {1, "E"}, {1, "X"},
			{2, "B"}, {2, "A"}, {2, "E"}, {2, "X"},
			{3, "C"}, {3, "D"}, {3, "E"}, {3, "X"},
			{4, "D"}, {4, "C"}, {4, "E"}, {4, "X"},
		}

		// interleave submissions with message deliveries
		for i, s := range sets {
			n.submit(s.id, s.variable, int64(100*s.id)+int64(i))
			for k := rnd.Intn(4); k > 0; k-- {
				if _, err := n.step(); err != nil {
					t.Fatalf("seed %d: %v", seed, err)
				}
			}
		}
		n.run()

		n.checkSettled()
		n.checkAgreement(variables)

		for id, clocks := range n.clocks {
			for i := 1; i < len(clocks); i++ {
				if clocks[i] <= clocks[i-1] {
					t.Fatalf("seed %d: clock of %d did not increase: %v", seed, id, clocks)
				}
			}
		}

		// every operation is applied exactly once by each subscriber
		for id, st := range n.stores {
			expected := 0
			for _, s := range sets {
				for _, sub := range variables[s.variable] {
					if sub == id {
						expected++
					}
				}
			}
			if len(st.Entries()) != expected {
				t.Fatalf("seed %d: peer %d applied %d entries, expected %d", seed, id, len(st.Entries()), expected)
			}
		}
	}
}

func TestCoreNoRegression(t *testing.T) {
	variables := map[string][]uint32{
		"X": {1, 2, 3},
	}
	n := newTestNetwork(t, variables, LowestID{}, 7)

	for id := uint32(1); id <= 3; id++ {
		n.submit(id, "X", int64(id))
		n.submit(id, "X", int64(10*id))
	}

	committed := map[string]store.LogEntry{}
	for {
		ok, err := n.step()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		for _, st := range n.stores {
			for _, e := range st.Entries() {
				if prev, seen := committed[e.Key()]; seen && prev != e {
					t.Fatalf("committed entry changed: %v -> %v", prev, e)
				}
				committed[e.Key()] = e
			}
		}
	}

	n.checkSettled()
	n.checkAgreement(variables)
	if len(committed) != 6 {
		t.Fatalf("6 operations should be committed, got %d", len(committed))
	}
}
