// Package service implements a minimal HTTP API to inspect a running dsm node.
//
//	GET /stats          counters of the node
//	GET /memory         the local replica
//	GET /memory/{name}  a single variable
//	GET /log            the applied operations, oldest first
//	GET /peers          the peers of the run
package service
