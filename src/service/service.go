package service

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/dsm/src/peers"
	"github.com/mosaicnetworks/dsm/src/store"
)

// Node is the part of a dsm node exposed by the Service.
type Node interface {
	GetStats() map[string]string
	GetPeers() []*peers.Peer
	Snapshot() map[string]store.Variable
	Log() []store.LogEntry
}

// Service exposes the replica, the log and the stats of a node over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        Node
	logger      *logrus.Entry
}

// NewService creates a Service and registers its handlers.
func NewService(bindAddress string, n Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of the
// http package. It is possible that another server in the same process is
// simultaneously using the DefaultServerMux. In which case, the handlers will
// be accessible from both servers. This is usefull when dsm is used in-memory
// and expected to use the same endpoint (address:port) as the application's
// API.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering dsm API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/memory", s.makeHandler(s.GetMemory))
	http.HandleFunc("/memory/", s.makeHandler(s.GetVariable))
	http.HandleFunc("/log", s.makeHandler(s.GetLog))
	http.HandleFunc("/peers", s.makeHandler(s.GetPeers))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary to
// call Serve when dsm is used in-memory and another server has already been
// started with the DefaultServerMux and the same address:port combination.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving dsm API")

	// Use the DefaultServerMux
	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// VariableInfo is the JSON view of a variable of the replica.
type VariableInfo struct {
	Name      string `json:"name"`
	Value     int64  `json:"value"`
	Timestamp uint64 `json:"timestamp"`
	Written   bool   `json:"written"`
}

// GetStats returns the stats of the node.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetMemory returns every subscribed variable, sorted by name.
func (s *Service) GetMemory(w http.ResponseWriter, r *http.Request) {
	snapshot := s.node.Snapshot()

	res := make([]VariableInfo, 0, len(snapshot))
	for name, v := range snapshot {
		res = append(res, variableInfo(name, v))
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Name < res[j].Name
	})

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(res)
}

// GetVariable returns a single variable, /memory/{name}.
func (s *Service) GetVariable(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/memory/")

	v, ok := s.node.Snapshot()[name]
	if !ok {
		s.logger.WithField("variable", name).Debug("Unknown variable")

		http.Error(w, "unknown variable "+name, http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(variableInfo(name, v))
}

// GetLog returns the operations applied to the replica, oldest first.
func (s *Service) GetLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.node.Log())
}

// GetPeers returns the peers of the run.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.node.GetPeers())
}

func variableInfo(name string, v store.Variable) VariableInfo {
	return VariableInfo{
		Name:      name,
		Value:     v.Value,
		Timestamp: v.Timestamp,
		Written:   v.Written,
	}
}
