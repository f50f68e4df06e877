package node

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/dsm/src/clock"
	"github.com/mosaicnetworks/dsm/src/net"
	"github.com/mosaicnetworks/dsm/src/store"
	"github.com/mosaicnetworks/dsm/src/topology"
)

var (
	// ErrProtocolViolation is returned when a peer receives a message that is
	// not part of the protocol or that contradicts the topology.
	ErrProtocolViolation = errors.New("protocol violation")
)

// Sender delivers a message to another peer, identified by its ID.
type Sender interface {
	Send(to uint32, msg net.Message) error
}

// CommitCallback is called for every entry applied to the local replica.
type CommitCallback func(entry store.LogEntry) error

type pendingSet struct {
	variable string
	value    int64
}

// CoreStats are counters maintained by the Core.
type CoreStats struct {
	Submitted      int
	Committed      int
	Deferred       int
	Forced         int
	Delivered      int
	Duplicates     int
	PreparesRecv   int
	NotifiesRecv   int
	ResponsesRecv  int
	ClockTime      uint64
	OpenPrepares   int
	RetryQueue     int
	DeliveryQueue  int
	InFlight       int
	WaitingForSlot int
}

// Core is the ordering engine of a node. It owns the Lamport clock, the
// Tracker, the RetryQueue and the DeliveryQueue, and implements the PREPARE /
// NOTIFY exchange. Core is not goroutine-safe: it is driven by the node's
// control loop only.
type Core struct {
	id  uint32
	dir *topology.Directory

	clock    *clock.Clock
	store    store.Store
	tracker  *Tracker
	retry    *RetryQueue
	delivery *DeliveryQueue

	tieBreaker TieBreaker
	sender     Sender

	// commitCallback is called when an entry is applied to the local replica
	commitCallback CommitCallback

	// seq is the sequence number of the last operation submitted by this node
	seq uint64

	// inflight is the operation this node is driving on each variable
	inflight map[string]*Operation

	// waiting holds the SETs submitted while an operation on the same
	// variable was in flight
	waiting map[string][]pendingSet

	stats CoreStats

	logger *logrus.Entry
}

// NewCore is a factory method that returns a new Core object. The store is
// subscribed to every variable of the directory that id is subscribed to.
func NewCore(
	id uint32,
	dir *topology.Directory,
	st store.Store,
	sender Sender,
	tieBreaker TieBreaker,
	commitCallback CommitCallback,
	logger *logrus.Entry) *Core {

	if tieBreaker == nil {
		tieBreaker = LowestID{}
	}

	for _, v := range dir.Variables() {
		st.Subscribe(v)
	}

	return &Core{
		id:             id,
		dir:            dir,
		clock:          clock.New(0),
		store:          st,
		tracker:        NewTracker(id),
		retry:          NewRetryQueue(),
		delivery:       NewDeliveryQueue(),
		tieBreaker:     tieBreaker,
		sender:         sender,
		commitCallback: commitCallback,
		inflight:       make(map[string]*Operation),
		waiting:        make(map[string][]pendingSet),
		logger:         logger,
	}
}

//==============================================================================
// Phase 1: Prepare

// Submit issues a SET operation. If an operation of this node on the same
// variable is still in flight, the SET waits until it commits.
func (c *Core) Submit(variable string, value int64) error {
	if !c.dir.IsSubscribed(variable) {
		return topology.NewConfigError("operations", "peer %d is not subscribed to %q", c.id, variable)
	}

	c.stats.Submitted++

	if _, busy := c.inflight[variable]; busy {
		c.waiting[variable] = append(c.waiting[variable], pendingSet{variable, value})
		c.logger.WithFields(logrus.Fields{
			"variable": variable,
			"value":    value,
			"waiting":  len(c.waiting[variable]),
		}).Debug("SET waits for in-flight operation")
		return nil
	}

	return c.start(variable, value)
}

func (c *Core) start(variable string, value int64) error {
	dests, err := c.dir.SubscribersOf(variable)
	if err != nil {
		return err
	}

	c.seq++
	op := &Operation{
		Origin:    c.id,
		Seq:       c.seq,
		Variable:  variable,
		Value:     value,
		Tentative: c.clock.Time(),
		State:     Created,
	}
	c.inflight[variable] = op
	c.tracker.Begin(variable, op.Tentative)

	c.logger.WithField("op", op.String()).Debug("Prepare")

	for _, dest := range dests {
		ts := c.clock.Tick()
		c.tracker.RecordPrepareSent(variable, dest, ts)
		err := c.sender.Send(dest, &net.Prepare{
			FromID:    c.id,
			Variable:  variable,
			Value:     value,
			Timestamp: ts,
			Seq:       op.Seq,
		})
		if err != nil {
			return err
		}
	}

	if err := op.advance(Prepared); err != nil {
		return err
	}

	if c.tracker.AllResponsesReceived(variable) {
		return c.finalize(op)
	}

	return nil
}

// ProcessPrepare records an open prepare and replies with this node's clock
// after observing the PREPARE.
func (c *Core) ProcessPrepare(m *net.Prepare) error {
	c.clock.Observe(m.Timestamp)
	c.stats.PreparesRecv++

	if !c.dir.IsSubscribed(m.Variable) {
		return fmt.Errorf("%w: PREPARE from %d on %q, not subscribed", ErrProtocolViolation, m.FromID, m.Variable)
	}
	if !c.dir.HasSubscriber(m.Variable, m.FromID) {
		return fmt.Errorf("%w: PREPARE from %d on %q, sender not subscribed", ErrProtocolViolation, m.FromID, m.Variable)
	}

	if c.store.Committed(m.FromID, m.Seq) || c.delivery.Contains(m.FromID, m.Seq) {
		c.logger.WithField("from", m.FromID).Debug("Ignoring PREPARE of committed operation")
		return nil
	}

	ts := c.clock.Time()
	if p, ok := c.tracker.OpenPrepareFrom(m.Variable, m.FromID); ok && p.Seq == m.Seq {
		// resent PREPARE: answer with the recorded timestamp
		ts = p.Timestamp
	} else {
		c.tracker.RecordOpenPrepare(OpenPrepare{
			Variable:  m.Variable,
			Timestamp: ts,
			Sender:    m.FromID,
			Seq:       m.Seq,
		})
	}

	return c.sender.Send(m.FromID, &net.PrepareResponse{
		FromID:    c.id,
		Variable:  m.Variable,
		Value:     m.Value,
		Timestamp: ts,
		Seq:       m.Seq,
	})
}

// ProcessPrepareResponse collects a response and finalizes the operation when
// every subscriber has answered.
func (c *Core) ProcessPrepareResponse(m *net.PrepareResponse) error {
	c.clock.Observe(m.Timestamp)
	c.stats.ResponsesRecv++

	op, ok := c.inflight[m.Variable]
	if !ok || op.Seq != m.Seq || op.State != Prepared {
		c.logger.WithFields(logrus.Fields{
			"from":     m.FromID,
			"variable": m.Variable,
			"seq":      m.Seq,
		}).Debug("Ignoring stale PREPARE_RESPONSE")
		return nil
	}

	if !c.tracker.RecordResponse(m.Variable, m.FromID, m.Timestamp) {
		c.logger.WithFields(logrus.Fields{
			"from":     m.FromID,
			"variable": m.Variable,
		}).Debug("Ignoring unexpected PREPARE_RESPONSE")
		return nil
	}

	if c.tracker.AllResponsesReceived(m.Variable) {
		return c.finalize(op)
	}

	return nil
}

//==============================================================================
// Phase 2: Finalize

func (c *Core) finalize(op *Operation) error {
	op.Final = c.tracker.MaxResponse(op.Variable)
	c.tracker.Forget(op.Variable)

	if err := op.advance(Finalized); err != nil {
		return err
	}

	c.logger.WithField("op", op.String()).Debug("Finalized")

	if c.allowCommit(op) {
		return c.commit(op)
	}

	if err := op.advance(Deferred); err != nil {
		return err
	}
	c.stats.Deferred++
	c.retry.Push(op)

	c.logger.WithFields(logrus.Fields{
		"op":       op.String(),
		"blockers": len(c.tracker.Blockers(op.Final)),
	}).Debug("Commit deferred")

	// the bound of op moved from its tentative to its final timestamp
	return c.deliver()
}

// allowCommit applies the commit-safety rule, and the tie-break policy when
// the rule denies the commit.
func (c *Core) allowCommit(op *Operation) bool {
	if c.tracker.HasSmallerOpenTimestamp(op.Final) {
		return true
	}

	blockers := c.tracker.Blockers(op.Final)
	if c.tieBreaker.Bypass(c.id, blockers) {
		c.stats.Forced++
		senders := make([]uint32, len(blockers))
		for i, b := range blockers {
			senders[i] = b.Sender
		}
		c.logger.WithFields(logrus.Fields{
			"op":       op.String(),
			"blockers": senders,
		}).Warn("Tie-break: forcing commit")
		return true
	}

	return false
}

func (c *Core) runRetryQueue() error {
	if c.retry.Len() == 0 {
		return nil
	}
	for _, op := range c.retry.Run(c.allowCommit) {
		c.logger.WithField("op", op.String()).Debug("Retry succeeded")
		if err := c.commit(op); err != nil {
			return err
		}
	}
	return nil
}

//==============================================================================
// Phase 3: Notify

func (c *Core) commit(op *Operation) error {
	if err := op.advance(Committed); err != nil {
		return err
	}
	delete(c.inflight, op.Variable)
	c.stats.Committed++

	dests, err := c.dir.SubscribersOf(op.Variable)
	if err != nil {
		return err
	}

	c.clock.Tick()

	for _, dest := range dests {
		err := c.sender.Send(dest, &net.Notify{
			FromID:    c.id,
			Variable:  op.Variable,
			Value:     op.Value,
			Timestamp: op.Final,
			Seq:       op.Seq,
		})
		if err != nil {
			return err
		}
	}

	c.logger.WithField("op", op.String()).Debug("Committed")

	c.delivery.Push(op.Entry())
	if err := c.deliver(); err != nil {
		return err
	}

	return c.next(op.Variable)
}

// next starts the first SET waiting on variable, if any.
func (c *Core) next(variable string) error {
	queue := c.waiting[variable]
	if len(queue) == 0 {
		return nil
	}
	set := queue[0]
	if len(queue) == 1 {
		delete(c.waiting, variable)
	} else {
		c.waiting[variable] = queue[1:]
	}
	return c.start(set.variable, set.value)
}

// ProcessNotify closes the matching open prepare, hands the operation to the
// DeliveryQueue, and re-runs the RetryQueue.
func (c *Core) ProcessNotify(m *net.Notify) error {
	c.clock.Observe(m.Timestamp)
	c.stats.NotifiesRecv++

	if !c.dir.IsSubscribed(m.Variable) {
		return fmt.Errorf("%w: NOTIFY from %d on %q, not subscribed", ErrProtocolViolation, m.FromID, m.Variable)
	}
	if !c.dir.HasSubscriber(m.Variable, m.FromID) {
		return fmt.Errorf("%w: NOTIFY from %d on %q, sender not subscribed", ErrProtocolViolation, m.FromID, m.Variable)
	}

	c.tracker.ClosePrepare(m.Variable, m.FromID, m.Seq)

	entry := store.LogEntry{
		Variable:  m.Variable,
		Value:     m.Value,
		Timestamp: m.Timestamp,
		Origin:    m.FromID,
		Seq:       m.Seq,
	}

	if c.store.Committed(m.FromID, m.Seq) || !c.delivery.Push(entry) {
		c.stats.Duplicates++
		c.logger.WithField("entry", entry.String()).Debug("Ignoring duplicate NOTIFY")
		return nil
	}

	if err := c.deliver(); err != nil {
		return err
	}

	return c.runRetryQueue()
}

// deliver applies every deliverable entry to the store.
func (c *Core) deliver() error {
	for _, entry := range c.delivery.Pop(c.inflightBounds()) {
		if err := c.store.Apply(entry); err != nil {
			return err
		}
		if err := c.store.Log(entry); err != nil {
			return err
		}
		c.stats.Delivered++

		c.logger.WithField("entry", entry.String()).Debug("Applied")

		if c.commitCallback != nil {
			if err := c.commitCallback(entry); err != nil {
				c.logger.WithError(err).Error("Commit callback")
			}
		}
	}
	return nil
}

// inflightBounds returns the bounds of the operations that may still commit:
// the open prepares and this node's own uncommitted operations.
func (c *Core) inflightBounds() []Bound {
	res := []Bound{}
	for _, p := range c.tracker.OpenPrepares() {
		res = append(res, Bound{
			Timestamp: p.Timestamp,
			Origin:    p.Sender,
			Seq:       p.Seq,
		})
	}
	for _, op := range c.inflight {
		res = append(res, op.bound())
	}
	return res
}

//==============================================================================
// Getters

// ID returns the ID of this node.
func (c *Core) ID() uint32 {
	return c.id
}

// Time returns the current value of the Lamport clock.
func (c *Core) Time() uint64 {
	return c.clock.Time()
}

// Idle returns true when this node has no operation in flight and no SET
// waiting.
func (c *Core) Idle() bool {
	return len(c.inflight) == 0 && len(c.waiting) == 0
}

// Drained returns true when the RetryQueue and the DeliveryQueue are empty.
func (c *Core) Drained() bool {
	return c.retry.Len() == 0 && c.delivery.Len() == 0
}

// Stats returns a copy of the counters and queue sizes.
func (c *Core) Stats() CoreStats {
	s := c.stats
	s.ClockTime = c.clock.Time()
	s.OpenPrepares = c.tracker.OpenCount()
	s.RetryQueue = c.retry.Len()
	s.DeliveryQueue = c.delivery.Len()
	s.InFlight = len(c.inflight)
	for _, q := range c.waiting {
		s.WaitingForSlot += len(q)
	}
	return s
}
