package dsm

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/dsm/src/config"
	"github.com/mosaicnetworks/dsm/src/net"
	"github.com/mosaicnetworks/dsm/src/node"
	"github.com/mosaicnetworks/dsm/src/peers"
	"github.com/mosaicnetworks/dsm/src/service"
	"github.com/mosaicnetworks/dsm/src/store"
	"github.com/mosaicnetworks/dsm/src/topology"
)

// DSM is a struct containing the key objects of a dsm node
type DSM struct {
	Config    *config.Config
	Topology  *topology.Topology
	Node      *node.Node
	Transport net.Transport
	Store     store.Store
	Peers     *peers.PeerSet
	Service   *service.Service
	logger    *logrus.Entry
}

// NewDSM is a factory method to produce a DSM instance.
func NewDSM(c *config.Config) *DSM {
	engine := &DSM{
		Config: c,
		logger: c.Logger(),
	}

	return engine
}

// Init initialises the DSM object. The topology is read from the data
// directory unless it was set before.
func (d *DSM) Init() error {
	d.logger.Debug("Init DSM")

	if err := d.initTopology(); err != nil {
		d.logger.WithError(err).Error("dsm.go:Init() initTopology")
		return err
	}

	if err := d.initStore(); err != nil {
		d.logger.WithError(err).Error("dsm.go:Init() initStore")
		return err
	}

	if err := d.initTransport(); err != nil {
		d.logger.WithError(err).Error("dsm.go:Init() initTransport")
		return err
	}

	if err := d.initNode(); err != nil {
		d.logger.WithError(err).Error("dsm.go:Init() initNode")
		return err
	}

	if err := d.initService(); err != nil {
		d.logger.WithError(err).Error("dsm.go:Init() initService")
		return err
	}

	return nil
}

// Run starts the node and, unless disabled, the HTTP service. It blocks until
// the run is over and returns the error that stopped the node, if any.
func (d *DSM) Run() error {
	if d.Service != nil && d.Config.ServiceAddr != "" {
		go d.Service.Serve()
	}

	d.Node.Run()

	return d.Node.Err()
}

func (d *DSM) initTopology() error {
	if d.Topology == nil {
		jsonTopology := topology.NewJSONTopology(d.Config.DataDir)

		topo, err := jsonTopology.Topology()
		if err != nil {
			return err
		}

		d.Topology = topo
	} else if err := d.Topology.Validate(); err != nil {
		return err
	}

	d.Peers = d.Topology.PeerSet()

	self, ok := d.Peers.ByID[d.Config.ID]
	if !ok {
		return topology.NewConfigError("id", "peer %d is not in the topology", d.Config.ID)
	}

	if d.Config.Moniker == "" {
		d.Config.Moniker = self.Moniker
	}

	d.logger = d.logger.WithField("this_id", d.Config.ID)

	d.logger.WithFields(logrus.Fields{
		"peers":     d.Peers.Len(),
		"variables": d.Topology.Directory(d.Config.ID).Variables(),
		"moniker":   d.Config.Moniker,
	}).Debug("Loaded topology")

	return nil
}

func (d *DSM) initStore() error {
	if !d.Config.Store {
		d.Store = store.NewInmemStore()

		d.logger.Debug("created new in-mem store")

		return nil
	}

	dbPath := d.Config.DatabaseDir

	d.logger.WithField("path", dbPath).Debug("Creating badger store")

	badgerStore, err := store.NewBadgerStore(dbPath)
	if err != nil {
		return err
	}

	d.Store = badgerStore

	return nil
}

func (d *DSM) initTransport() error {
	bindAddr := d.Config.BindAddr
	if bindAddr == "" {
		addr, err := d.Peers.Addr(d.Config.ID)
		if err != nil {
			return err
		}
		bindAddr = addr
	}

	transport, err := net.NewTCPTransport(
		bindAddr,
		d.Config.AdvertiseAddr,
		d.Config.MaxPool,
		d.Config.TCPTimeout,
		d.logger,
	)
	if err != nil {
		return err
	}

	d.Transport = transport

	go transport.Listen()

	return nil
}

func (d *DSM) initNode() error {
	n, err := node.NewNode(
		d.Config,
		d.Config.ID,
		d.Peers,
		d.Topology.Directory(d.Config.ID),
		d.Topology.OperationsOf(d.Config.ID),
		d.Store,
		d.Transport,
		d.Config.Proxy,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize node: %w", err)
	}

	d.Node = n

	return nil
}

func (d *DSM) initService() error {
	if !d.Config.NoService {
		d.Service = service.NewService(d.Config.ServiceAddr, d.Node, d.logger)
	}
	return nil
}

// peerDatabaseDir returns the badger directory of a peer in a Cluster.
func peerDatabaseDir(base string, id uint32) string {
	return filepath.Join(base, fmt.Sprintf("peer%d", id))
}
