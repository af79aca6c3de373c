package node

import (
	"github.com/puppy86/CS-Node/csdb"
	"github.com/puppy86/CS-Node/identity"
)

// NoopSolver is a Solver that does nothing. It's useful for wiring up
// the transport/node layers (e.g. from cmd/csnode) before a real
// consensus implementation is plugged in -- the Solver is an external
// collaborator this package only specifies an interface for (spec §1).
type NoopSolver struct{}

func (NoopSolver) NextRound()                                           {}
func (NoopSolver) GotTransaction(csdb.Transaction)                      {}
func (NoopSolver) GotTransactionList([]byte)                            {}
func (NoopSolver) GotBlockCandidate(*csdb.Pool)                         {}
func (NoopSolver) GotVector([]byte, identity.NodeID)                    {}
func (NoopSolver) GotMatrix([]byte, identity.NodeID)                    {}
func (NoopSolver) GotBlock(*csdb.Pool, identity.NodeID)                 {}
func (NoopSolver) GotHash(identity.Hash, identity.NodeID)               {}
