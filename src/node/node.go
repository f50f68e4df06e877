package node

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/dsm/src/config"
	"github.com/mosaicnetworks/dsm/src/net"
	"github.com/mosaicnetworks/dsm/src/node/state"
	"github.com/mosaicnetworks/dsm/src/peers"
	"github.com/mosaicnetworks/dsm/src/proxy"
	"github.com/mosaicnetworks/dsm/src/store"
	"github.com/mosaicnetworks/dsm/src/topology"
)

// Node defines a dsm node: a single peer of the shared memory. It runs one
// control loop that drives the Core, and one goroutine that acknowledges
// incoming messages and queues them in the Inbox.
type Node struct {
	// The node's state (Starting, Running, Terminating, Shutdown) and the
	// goroutines it launched.
	state.Manager

	conf   *config.Config
	logger *logrus.Entry

	id    uint32
	peers *peers.PeerSet

	core  *Core
	store store.Store

	trans net.Transport
	netCh <-chan net.RPC
	inbox *Inbox

	proxy    proxy.AppProxy
	submitCh chan proxy.Set
	appDone  bool

	// bootstrap is the queue of SETs submitted when the node starts
	bootstrap []topology.Op

	terminateSent bool
	terminatedBy  map[uint32]bool

	errLock sync.Mutex
	err     error

	statsLock sync.RWMutex
	stats     CoreStats

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	doneCh       chan struct{}

	start time.Time
}

// NewNode is a factory method that returns a Node instance. The proxy may be
// nil, in which case the node only submits the bootstrap operations.
func NewNode(conf *config.Config,
	id uint32,
	peerSet *peers.PeerSet,
	dir *topology.Directory,
	bootstrap []topology.Op,
	st store.Store,
	trans net.Transport,
	proxy proxy.AppProxy,
) (*Node, error) {

	if _, ok := peerSet.ByID[id]; !ok {
		return nil, topology.NewConfigError("peers", "node %d is not in the peer-set", id)
	}

	tieBreaker, err := NewTieBreaker(conf.TieBreak)
	if err != nil {
		return nil, err
	}

	node := &Node{
		conf:         conf,
		logger:       conf.Logger().WithField("this_id", id),
		id:           id,
		peers:        peerSet,
		store:        st,
		trans:        trans,
		netCh:        trans.Consumer(),
		inbox:        NewInbox(),
		proxy:        proxy,
		bootstrap:    bootstrap,
		terminatedBy: make(map[uint32]bool),
		shutdownCh:   make(chan struct{}),
		doneCh:       make(chan struct{}),
	}

	var commitCallback CommitCallback
	if proxy != nil {
		node.submitCh = proxy.SubmitCh()
		commitCallback = proxy.CommitSet
	} else {
		node.appDone = true
	}

	node.core = NewCore(id, dir, st, node, tieBreaker, commitCallback, node.logger)

	return node, nil
}

// RunAsync calls Run in a separate goroutine.
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")
	go n.Run()
}

// Run invokes the control loop of the node. It returns when the run is over,
// when a protocol violation or a transport failure stopped the node, or when
// the node is shut down.
func (n *Node) Run() {
	defer close(n.doneCh)

	n.start = time.Now()
	n.setState(state.Running)

	n.GoFunc(n.receive)

	for _, op := range n.bootstrap {
		if err := n.core.Submit(op.Variable, op.Value); err != nil {
			n.fail(err)
			return
		}
	}

	for {
		n.refreshStats()

		finished, err := n.checkTermination()
		if err != nil {
			n.fail(err)
			return
		}
		if finished {
			n.logger.Debug("Run finished")
			n.logStats()
			n.Shutdown()
			return
		}

		select {
		case <-n.inbox.Ready():
			for {
				msg, ok := n.inbox.Pop()
				if !ok {
					break
				}
				if err := n.processMessage(msg); err != nil {
					n.fail(err)
					return
				}
			}
		case set, ok := <-n.submitCh:
			if !ok {
				n.logger.Debug("Application closed the submit channel")
				n.submitCh = nil
				n.appDone = true
				continue
			}
			if err := n.core.Submit(set.Variable, set.Value); err != nil {
				n.logger.WithError(err).Error("Rejected SET from application")
			}
		case <-n.shutdownCh:
			return
		}
	}
}

// receive acknowledges incoming messages and queues them in the Inbox. The
// message is queued before the Ack is sent, so that the next message from the
// same sender is queued after it.
func (n *Node) receive() {
	for {
		select {
		case rpc := <-n.netCh:
			n.inbox.Push(rpc.Command)
			rpc.Respond(&net.Ack{FromID: n.id}, nil)
		case <-n.shutdownCh:
			return
		}
	}
}

// checkTermination sends TERMINATE to every other peer once this node has no
// more work of its own, and reports whether the run is over: TERMINATE was
// sent and received from every other peer, and nothing is left to deliver.
func (n *Node) checkTermination() (bool, error) {
	if !n.terminateSent && n.appDone && n.core.Idle() {
		for _, p := range n.peers.Others(n.id) {
			if err := n.Send(p.ID, &net.Terminate{FromID: n.id}); err != nil {
				return false, err
			}
		}
		n.terminateSent = true
		n.setState(state.Terminating)
	}

	finished := n.terminateSent &&
		len(n.terminatedBy) == n.peers.Len()-1 &&
		n.core.Idle() &&
		n.core.Drained()

	return finished, nil
}

// Send implements the Sender interface. A message is sent up to SendAttempts
// times, or until the node shuts down when SendAttempts is zero. The pause
// between attempts doubles from SendBackoff up to MaxSendBackoff.
func (n *Node) Send(to uint32, msg net.Message) error {
	addr, err := n.peers.Addr(to)
	if err != nil {
		return err
	}

	attempts := n.conf.SendAttempts
	backoff := n.conf.SendBackoff

	for i := 1; ; i++ {
		var ack net.Ack
		err = n.trans.Send(addr, msg, &ack)
		if err == nil {
			return nil
		}
		if attempts > 0 && i >= attempts {
			break
		}
		n.logger.WithFields(logrus.Fields{
			"to":      to,
			"kind":    msg.Kind().String(),
			"attempt": i,
			"backoff": backoff,
			"error":   err,
		}).Warn("Send failed, retrying")
		select {
		case <-time.After(backoff):
		case <-n.shutdownCh:
			return net.ErrTransportShutdown
		}
		backoff = nextBackoff(backoff, n.conf.MaxSendBackoff)
	}

	return fmt.Errorf("sending %s to %d: %w", msg.Kind(), to, err)
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := 2 * cur
	if next <= 0 {
		next = time.Millisecond
	}
	if max > 0 && next > max {
		next = max
	}
	return next
}

// fail records a fatal error and stops the node. The store keeps what was
// committed before the error.
func (n *Node) fail(err error) {
	select {
	case <-n.shutdownCh:
		// interrupted by Shutdown
		return
	default:
	}

	n.logger.WithError(err).Error("Node stopped")

	n.errLock.Lock()
	n.err = err
	n.errLock.Unlock()

	n.refreshStats()
	n.Shutdown()
}

func (n *Node) setState(s state.State) {
	n.SetState(s)
	n.logger.WithField("state", s.String()).Debug("State changed")
	if n.proxy != nil {
		if err := n.proxy.OnStateChanged(s); err != nil {
			n.logger.WithError(err).Error("OnStateChanged")
		}
	}
}

// Shutdown shuts down the node
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.setState(state.Shutdown)

		//Stop and wait for concurrent operations
		close(n.shutdownCh)

		n.WaitRoutines()

		//transport and store should only be closed once all concurrent operations
		//are finished otherwise they will panic trying to use close objects
		n.trans.Close()

		if err := n.store.Close(); err != nil {
			n.logger.WithError(err).Error("Closing store")
		}
	})
}

// Done returns a channel that is closed when Run returns.
func (n *Node) Done() <-chan struct{} {
	return n.doneCh
}

// Err returns the error that stopped the node, if any.
func (n *Node) Err() error {
	n.errLock.Lock()
	defer n.errLock.Unlock()
	return n.err
}

// ID returns the ID of the node
func (n *Node) ID() uint32 {
	return n.id
}

// GetPeers returns the peers
func (n *Node) GetPeers() []*peers.Peer {
	return n.peers.Peers
}

// Snapshot returns the local replica of every subscribed variable.
func (n *Node) Snapshot() map[string]store.Variable {
	return n.store.Snapshot()
}

// Log returns the operations applied to the local replica, oldest first.
func (n *Node) Log() []store.LogEntry {
	return n.store.Entries()
}

func (n *Node) refreshStats() {
	s := n.core.Stats()
	n.statsLock.Lock()
	n.stats = s
	n.statsLock.Unlock()
}

// CoreStats returns the counters of the Core as of the last iteration of the
// control loop.
func (n *Node) CoreStats() CoreStats {
	n.statsLock.RLock()
	defer n.statsLock.RUnlock()
	return n.stats
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	s := n.CoreStats()

	moniker := ""
	if p, ok := n.peers.ByID[n.id]; ok {
		moniker = p.Moniker
	}

	return map[string]string{
		"id":             fmt.Sprint(n.id),
		"moniker":        moniker,
		"state":          n.GetState().String(),
		"clock":          strconv.FormatUint(s.ClockTime, 10),
		"submitted":      strconv.Itoa(s.Submitted),
		"committed":      strconv.Itoa(s.Committed),
		"deferred":       strconv.Itoa(s.Deferred),
		"forced":         strconv.Itoa(s.Forced),
		"delivered":      strconv.Itoa(s.Delivered),
		"duplicates":     strconv.Itoa(s.Duplicates),
		"open_prepares":  strconv.Itoa(s.OpenPrepares),
		"retry_queue":    strconv.Itoa(s.RetryQueue),
		"delivery_queue": strconv.Itoa(s.DeliveryQueue),
		"in_flight":      strconv.Itoa(s.InFlight),
		"waiting":        strconv.Itoa(s.WaitingForSlot),
		"num_peers":      strconv.Itoa(n.peers.Len()),
		"inbox":          strconv.Itoa(n.inbox.Len()),
	}
}

func (n *Node) logStats() {
	stats := n.GetStats()

	fields := logrus.Fields{}
	for k, v := range stats {
		fields[k] = v
	}
	fields["duration"] = time.Since(n.start).String()

	n.logger.WithFields(fields).Info("Stats")
}
