package inmem

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/dsm/src/node/state"
	"github.com/mosaicnetworks/dsm/src/proxy"
	"github.com/mosaicnetworks/dsm/src/store"
)

// InmemProxy implements the AppProxy interface natively
type InmemProxy struct {
	handler   proxy.ProxyHandler
	submitCh  chan proxy.Set
	closeOnce sync.Once
	logger    *logrus.Entry
}

// NewInmemProxy instantiates an InmemProxy from a set of handlers.
// If no logger, a new one is created
func NewInmemProxy(handler proxy.ProxyHandler,
	logger *logrus.Entry) *InmemProxy {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &InmemProxy{
		handler:  handler,
		submitCh: make(chan proxy.Set),
		logger:   logger,
	}
}

/*******************************************************************************
* SubmitSet                                                                    *
*******************************************************************************/

// SubmitSet is called by the App to submit a SET operation. It blocks until
// the node picks it up.
func (p *InmemProxy) SubmitSet(variable string, value int64) {
	p.submitCh <- proxy.Set{
		Variable: variable,
		Value:    value,
	}
}

// Close signals that the App will not submit any more SET operations.
// SubmitSet must not be called after Close.
func (p *InmemProxy) Close() {
	p.closeOnce.Do(func() {
		close(p.submitCh)
	})
}

/*******************************************************************************
* Implement AppProxy Interface                                                 *
*******************************************************************************/

// SubmitCh returns the channel of SET operations
func (p *InmemProxy) SubmitCh() chan proxy.Set {
	return p.submitCh
}

// CommitSet calls the commitHandler
func (p *InmemProxy) CommitSet(entry store.LogEntry) error {
	err := p.handler.CommitHandler(entry)

	p.logger.WithFields(logrus.Fields{
		"entry": entry.String(),
		"err":   err,
	}).Debug("InmemProxy.CommitSet")

	return err
}

// OnStateChanged calls the StateChangeHandler
func (p *InmemProxy) OnStateChanged(state state.State) error {
	return p.handler.StateChangeHandler(state)
}
