// Package node implements the round/role state machine: round-table
// ingestion, role assignment, role-gated inbound dispatch, and the
// mirrored preconditions on outbound sends (spec §4.6).
package node

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/puppy86/CS-Node/csdb"
	"github.com/puppy86/CS-Node/identity"
	"github.com/puppy86/CS-Node/log"
	"github.com/puppy86/CS-Node/packet"
	"github.com/puppy86/CS-Node/transport"
)

// Level is a node's role within the current round.
type Level int

const (
	Normal Level = iota
	Confidant
	Main
	Writer
)

func (l Level) String() string {
	switch l {
	case Normal:
		return "Normal"
	case Confidant:
		return "Confidant"
	case Main:
		return "Main"
	case Writer:
		return "Writer"
	default:
		return "Unknown"
	}
}

// MinConfidants and MaxConfidants bound the round table's confidant list
// (spec §4.6.1).
const (
	MinConfidants = 3
	MaxConfidants = 3
)

var (
	errRoundNotNewer      = errors.New("node: round table is not newer than the current round")
	errMalformedRoundData = errors.New("node: malformed round table")
	errTooFewConfidants   = errors.New("node: fewer than the minimum confidants")
)

// Solver is the consensus algorithm: an external collaborator whose
// interface this package specifies but does not implement (spec §1).
type Solver interface {
	NextRound()
	GotTransaction(t csdb.Transaction)
	GotTransactionList(payload []byte)
	GotBlockCandidate(pool *csdb.Pool)
	GotVector(payload []byte, sender identity.NodeID)
	GotMatrix(payload []byte, sender identity.NodeID)
	GotBlock(pool *csdb.Pool, sender identity.NodeID)
	GotHash(h identity.Hash, sender identity.NodeID)
}

// Node is the per-node round/role state machine (spec §4.6).
type Node struct {
	mu sync.Mutex

	selfID identity.NodeID

	roundNum   uint32
	myLevel    Level
	mainNode   identity.NodeID
	confidants []identity.NodeID

	solver  Solver
	session *transport.Session
	logger  *log.Logger

	// pendingRoundTable is set once a registration response or redirect
	// carries an initial round table, consumed by RegistrationOutcome.
	pendingRoundTable []byte
	registered        bool
}

// New creates a Node bound to selfID (its NodeID, typically derived from
// its own IP) and the given solver collaborator.
func New(selfID identity.NodeID, solver Solver, session *transport.Session) *Node {
	return &Node{
		selfID:  selfID,
		solver:  solver,
		session: session,
		logger:  log.Default().Module("node"),
	}
}

// BindSession attaches the transport session a Node sends through. It
// exists separately from New because a Session's Dispatcher (this Node)
// must exist before the Session can be constructed, and the Session in
// turn must exist before the Node can send anything.
func (n *Node) BindSession(session *transport.Session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.session = session
}

// Level returns the node's current role.
func (n *Node) Level() Level {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.myLevel
}

// RoundNum returns the current round number.
func (n *Node) RoundNum() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.roundNum
}

// ---- 4.6.1 Round table ingestion ----

// ReadRoundData parses a round table from tail bytes: round_num:u32,
// main_node:NodeId, then up to MaxConfidants NodeIds, optionally
// followed by a ring-buffer seed of endpoints if withRing is set. It
// rejects round tables that aren't newer than the current round or that
// carry too few confidants, leaving state unchanged on rejection (spec
// §8 invariant 6).
func (n *Node) ReadRoundData(tail []byte, withRing bool) error {
	if len(tail) < 4+4 {
		return errMalformedRoundData
	}
	newRound := binary.LittleEndian.Uint32(tail[0:4])
	mainNode := identity.NodeID(binary.LittleEndian.Uint32(tail[4:8]))
	off := 8

	var confidants []identity.NodeID
	for len(confidants) < MaxConfidants && off+4 <= len(tail) {
		confidants = append(confidants, identity.NodeID(binary.LittleEndian.Uint32(tail[off:off+4])))
		off += 4
	}

	var ringSeed []byte
	if withRing {
		ringSeed = tail[off:]
	} else if off != len(tail) {
		return errMalformedRoundData
	}

	n.mu.Lock()
	if newRound <= n.roundNum {
		n.mu.Unlock()
		return errRoundNotNewer
	}
	if len(confidants) < MinConfidants {
		n.mu.Unlock()
		return errTooFewConfidants
	}

	n.roundNum = newRound
	n.mainNode = mainNode
	n.confidants = confidants
	n.mu.Unlock()

	n.session.Peers().Add(nodeIDEndpoint(mainNode))
	for _, c := range confidants {
		n.session.Peers().Add(nodeIDEndpoint(c))
	}

	if withRing {
		n.seedRing(ringSeed)
	}

	n.onRoundStart()
	return nil
}

func (n *Node) seedRing(seed []byte) {
	for off := 0; off+4 <= len(seed); off += 4 {
		id := identity.NodeID(binary.LittleEndian.Uint32(seed[off : off+4]))
		n.session.Peers().Add(nodeIDEndpoint(id))
	}
}

func nodeIDEndpoint(id identity.NodeID) transport.Endpoint {
	ip := id.IP().To4()
	var ep transport.Endpoint
	copy(ep.IP[:], ip)
	return ep
}

// ---- 4.6.2 on_round_start ----

func (n *Node) onRoundStart() {
	n.mu.Lock()
	switch {
	case n.mainNode == n.selfID:
		n.myLevel = Main
	case n.containsSelf():
		n.myLevel = Confidant
	default:
		n.myLevel = Normal
	}
	level := n.myLevel
	n.mu.Unlock()

	n.logger.Info("round start", "round", n.RoundNum(), "level", level.String())
	n.solver.NextRound()
}

func (n *Node) containsSelf() bool {
	for _, c := range n.confidants {
		if c == n.selfID {
			return true
		}
	}
	return false
}

// ---- 4.6.3 Role-gated dispatch ----

// Dispatch implements transport.Dispatcher. It enforces the role-gated
// inbound table (spec §4.6.3) and records Registration and
// Redirect/RegistrationLevelNode responses for RegistrationOutcome.
func (n *Node) Dispatch(cmd packet.Command, sub packet.Subcommand, senderHash identity.Hash, senderKey identity.PublicKey, payload []byte, from transport.Endpoint) {
	sender := identity.NodeID(binary.BigEndian.Uint32(from.IP[:]))

	switch {
	case cmd == packet.CmdRedirect && sub == packet.SubSGetIpTable:
		if err := n.ReadRoundData(payload, false); err == nil {
			n.session.Tasks().Clear()
		}

	case cmd == packet.CmdGetTransaction:
		if n.roleIn(Main, Writer) {
			n.dispatchTransactions(payload)
		}

	case cmd == packet.CmdGetFirstTransaction:
		if n.roleIn(Confidant) {
			n.solver.GotTransactionList(payload)
		}

	case cmd == packet.CmdGetBlockCandidate:
		if n.roleIn(Confidant, Writer) {
			if pool, err := csdb.FromBinary(payload); err == nil {
				n.solver.GotBlockCandidate(pool)
			}
		}

	case cmd == packet.CmdGetVector:
		if n.roleIn(Confidant) {
			n.solver.GotVector(payload, sender)
		}

	case cmd == packet.CmdGetMatrix:
		if n.roleIn(Confidant) {
			n.solver.GotMatrix(payload, sender)
		}

	case cmd == packet.CmdRedirect && sub == packet.SubGetBlock:
		if !n.roleIn(Writer) {
			n.mu.Lock()
			n.myLevel = Normal
			n.mu.Unlock()
			if pool, err := csdb.FromBinary(payload); err == nil {
				n.solver.GotBlock(pool, sender)
			}
		}

	case cmd == packet.CmdGetHash:
		if n.roleIn(Writer) {
			var h identity.Hash
			copy(h[:], payload)
			n.solver.GotHash(h, sender)
		}

	case cmd == packet.CmdRegistration,
		cmd == packet.CmdRedirect && sub == packet.SubRegistrationLevelNode:
		n.mu.Lock()
		n.registered = true
		if sub == packet.SubRegistrationLevelNode {
			n.pendingRoundTable = append([]byte(nil), payload...)
		}
		n.mu.Unlock()
	}
}

func (n *Node) dispatchTransactions(payload []byte) {
	for off := 0; off < len(payload); {
		t, consumed, err := decodeTransactionStream(payload[off:])
		if err != nil {
			return
		}
		n.solver.GotTransaction(t)
		off += consumed
	}
}

func (n *Node) roleIn(levels ...Level) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, l := range levels {
		if n.myLevel == l {
			return true
		}
	}
	return false
}

// RegistrationOutcome implements transport's registrationObserver,
// letting Session.Register learn when a round table has arrived without
// transport needing to parse it (spec §4.5.5).
func (n *Node) RegistrationOutcome() (*transport.RegistrationResult, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.registered {
		return nil, false
	}
	return &transport.RegistrationResult{RoundTable: n.pendingRoundTable}, true
}

// ---- 4.6.4 Writer promotion ----

// BecomeWriter forces the node into the Writer role. Permitted only
// while Main or Confidant; otherwise it logs and does nothing (spec
// §4.6.4).
func (n *Node) BecomeWriter() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.myLevel != Main && n.myLevel != Confidant {
		n.logger.Warn("become_writer called from invalid level", "level", n.myLevel.String())
		return
	}
	n.myLevel = Writer
}

// InitNextRound installs a new round composition and re-derives the
// node's level. Permitted only for the current Writer (spec §4.6.4).
func (n *Node) InitNextRound(main identity.NodeID, confidants []identity.NodeID) error {
	n.mu.Lock()
	if n.myLevel != Writer {
		n.mu.Unlock()
		n.logger.Warn("init_next_round called by non-writer", "level", n.myLevel.String())
		return errors.New("node: init_next_round requires Writer role")
	}
	n.roundNum++
	n.mainNode = main
	n.confidants = append([]identity.NodeID(nil), confidants...)
	n.mu.Unlock()

	n.onRoundStart()
	return nil
}

// ---- 4.6.5 Confidant broadcast helper ----

// SendByConfidants sends payload to every confidant except self as a
// direct task, returning the created task ids so a caller may remove
// them in a later round (spec §4.6.5).
func (n *Node) SendByConfidants(cmd packet.Command, sub packet.Subcommand, payload []byte) []transport.TaskID {
	n.mu.Lock()
	confidants := append([]identity.NodeID(nil), n.confidants...)
	self := n.selfID
	n.mu.Unlock()

	var ids []transport.TaskID
	for _, c := range confidants {
		if c == self {
			continue
		}
		ep := nodeIDEndpoint(c)
		ids = append(ids, n.session.Send(cmd, sub, payload, &ep))
	}
	return ids
}

// ---- Outbound preconditions (spec §4.6.3 "mirrored precondition") ----

// SendTransaction is permitted from any role except Main (Main only
// receives and aggregates transactions).
func (n *Node) SendTransaction(payload []byte, to transport.Endpoint) error {
	if n.roleIn(Main) {
		n.logger.Error("role precondition violated", "op", "send_transaction", "level", "Main")
		return errRolePrecondition
	}
	n.session.Send(packet.CmdGetTransaction, packet.SubEmpty, payload, &to)
	return nil
}

// SendFirstTransaction and SendTransactionsList are Main-only.
func (n *Node) SendFirstTransaction(payload []byte) error {
	return n.sendIfRole(Main, packet.CmdGetFirstTransaction, packet.SubEmpty, payload)
}

func (n *Node) SendTransactionsList(payload []byte) error {
	return n.sendIfRole(Main, packet.CmdGetBlockCandidate, packet.SubEmpty, payload)
}

// SendVector and SendMatrix are Confidant-only.
func (n *Node) SendVector(payload []byte) error {
	return n.sendIfRole(Confidant, packet.CmdGetVector, packet.SubEmpty, payload)
}

func (n *Node) SendMatrix(payload []byte) error {
	return n.sendIfRole(Confidant, packet.CmdGetMatrix, packet.SubEmpty, payload)
}

// SendBlock is Writer-only.
func (n *Node) SendBlock(payload []byte) error {
	return n.sendIfRole(Writer, packet.CmdRedirect, packet.SubGetBlock, payload)
}

// SendHash must not be sent by the Writer.
func (n *Node) SendHash(payload []byte) error {
	if n.roleIn(Writer) {
		n.logger.Error("role precondition violated", "op", "send_hash", "level", "Writer")
		return errRolePrecondition
	}
	n.session.Send(packet.CmdGetHash, packet.SubEmpty, payload, nil)
	return nil
}

var errRolePrecondition = errors.New("node: role precondition violated")

func (n *Node) sendIfRole(required Level, cmd packet.Command, sub packet.Subcommand, payload []byte) error {
	if !n.roleIn(required) {
		n.logger.Error("role precondition violated", "op", cmd.String(), "required", required.String())
		return errRolePrecondition
	}
	n.session.Send(cmd, sub, payload, nil)
	return nil
}

// decodeTransactionStream decodes one transaction from the front of a
// GetTransaction payload stream (spec §4.6.3: "stream-parse
// transactions"). It uses csdb's pool transaction codec as is: a stream
// of N transactions is their encodings back to back, with no length
// prefix and no pool header.
func decodeTransactionStream(src []byte) (csdb.Transaction, int, error) {
	return csdb.DecodeTransaction(src)
}
