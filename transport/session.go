package transport

import (
	"net"
	"time"

	"github.com/puppy86/CS-Node/identity"
	"github.com/puppy86/CS-Node/log"
	"github.com/puppy86/CS-Node/packet"
)

// MaxRedirectCount is the redirect-suppression threshold (spec §4.5.4):
// a redirect is forwarded and processed locally only the first time its
// fingerprint is seen.
const MaxRedirectCount = 1

// Dispatcher receives a fully reassembled, replay-checked inbound
// message. It is implemented by the node package's role state machine;
// transport depends only on this narrow interface to avoid an import
// cycle.
type Dispatcher interface {
	Dispatch(cmd packet.Command, sub packet.Subcommand, senderHash identity.Hash, senderKey identity.PublicKey, payload []byte, from Endpoint)
}

// Session is the UDP transport: receive dispatch, outbound framing, and
// the glue between the packet pool, reassembler, replay suppressor,
// peer ring, task scheduler, and message hasher (spec §4.5).
type Session struct {
	conn net.PacketConn

	SelfHash      identity.Hash
	SelfPublicKey identity.PublicKey
	OriginIP      uint32
	Version       byte

	pool        *packet.Pool
	reassembler *Reassembler
	replay      *ReplaySuppressor
	peers       *PeerRing
	tasks       *TaskManager
	hasher      *identity.MessageHasher

	dispatcher Dispatcher
	logger     *log.Logger
}

// NewSession wires together a Session's components with spec-sized
// bounds (spec §3). conn is the already-bound UDP socket.
func NewSession(conn net.PacketConn, selfHash identity.Hash, selfKey identity.PublicKey, originIP uint32, dispatcher Dispatcher) *Session {
	return &Session{
		conn:          conn,
		SelfHash:      selfHash,
		SelfPublicKey: selfKey,
		OriginIP:      originIP,
		Version:       1,
		pool:          packet.NewPool(),
		reassembler:   NewDefaultReassembler(),
		replay:        NewDefaultReplaySuppressor(),
		peers:         NewDefaultPeerRing(),
		tasks:         NewTaskManager(nil),
		hasher:        identity.NewMessageHasher(selfKey),
		dispatcher:    dispatcher,
		logger:        log.Default().Module("transport"),
	}
}

// Peers exposes the peer ring for the node layer to register round-table
// members into (spec §4.6.1: "register main_node and all confidants into
// the peer ring").
func (s *Session) Peers() *PeerRing { return s.peers }

// Tasks exposes the scheduler so the node layer can Clear() it on round
// transitions (spec §4.6.3).
func (s *Session) Tasks() *TaskManager { return s.tasks }

// ---- Outbound path (spec §4.5.1) ----

// Send frames payload into one or more fragments and enqueues a
// retransmission task. direct targets a single endpoint; broadcast (when
// to is nil) snapshots the peer ring.
func (s *Session) Send(cmd packet.Command, sub packet.Subcommand, payload []byte, to *Endpoint) TaskID {
	n, wireCount := packet.FragmentCountFor(len(payload))
	lastSize := LastFragmentSize(len(payload))
	if len(payload) == 0 {
		lastSize = 0
	}

	messageHash := s.hasher.NextHash(firstFragmentPayload(payload))

	fragments := make([]packet.Handle, n)
	for i := 0; i < n; i++ {
		h := s.pool.GetFree()
		start := i * packet.MaxPayload
		end := start + packet.MaxPayload
		if end > len(payload) {
			end = len(payload)
		}
		frag := packet.Packet{
			Command:         cmd,
			Subcommand:      sub,
			Version:         s.Version,
			OriginIP:        s.OriginIP,
			SenderHash:      s.SelfHash,
			SenderPublicKey: s.SelfPublicKey,
			MessageHash:     messageHash,
			FragmentIndex:   uint16(i),
			FragmentCount:   wireCount,
			Payload:         payload[start:end],
		}
		buf := h.Buffer().Bytes()
		written, _ := frag.Encode(buf)
		_ = written
		fragments[i] = h
	}

	var receivers []Endpoint
	broadcast := to == nil
	if broadcast {
		receivers = s.peers.Snapshot()
	} else {
		receivers = []Endpoint{*to}
	}

	return s.tasks.Add(fragments, lastSize, receivers, broadcast)
}

// firstFragmentPayload returns the bytes that make up fragment 0, used
// to seed the message hash (spec §4.5.1: hashed over the first
// fragment's payload).
func firstFragmentPayload(payload []byte) []byte {
	if len(payload) <= packet.MaxPayload {
		return payload
	}
	return payload[:packet.MaxPayload]
}

// FireDueTasks re-sends every due task's fragments to every receiver and
// advances its backoff (spec §4.4, §4.5.1). Call this periodically from
// the I/O loop.
func (s *Session) FireDueTasks() {
	s.tasks.Run(func(t *Task) {
		for _, recv := range t.Receivers {
			addr := recv.UDPAddr()
			for i, h := range t.Fragments {
				size := packet.HeaderLength + packet.MaxPayload
				if i == len(t.Fragments)-1 {
					size = packet.HeaderLength + t.LastFragmentSize
				}
				buf := h.Buffer().Bytes()
				if size > len(buf) {
					size = len(buf)
				}
				if _, err := s.conn.WriteTo(buf[:size], addr); err != nil {
					s.logger.Debug("send failed", "error", err, "to", recv)
				}
			}
		}
	})
}

// ---- Inbound path (spec §4.5.2) ----

// ReceiveOne reads and processes a single datagram. It's meant to be
// called in a loop from the I/O goroutine; deadline bounds the wait so
// the loop can interleave with FireDueTasks (spec §5: "the main I/O
// thread never blocks waiting for I/O").
func (s *Session) ReceiveOne(deadline time.Duration) error {
	if err := s.conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		return err
	}
	buf := make([]byte, packet.Size)
	n, addr, err := s.conn.ReadFrom(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil
		}
		return err
	}

	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return nil
	}
	s.handlePacket(buf[:n], EndpointFromUDP(udpAddr))
	return nil
}

func (s *Session) handlePacket(raw []byte, from Endpoint) {
	pkt, err := packet.Decode(raw)
	if err != nil {
		return
	}
	s.peers.Add(from)

	if pkt.IsFragmented() {
		if pkt.FragmentCount > packet.MaxFragments || pkt.FragmentIndex >= pkt.FragmentCount {
			return
		}
		if pkt.Command == packet.CmdRedirect {
			if !s.forwardRedirect(&pkt) {
				return
			}
		}

		payload := append([]byte(nil), pkt.Payload...)
		e, _ := s.reassembler.Append(pkt.MessageHash, pkt.FragmentIndex, pkt.FragmentCount, payload)
		if e.Remaining() != 0 {
			return
		}
		combined := s.reassembler.Complete(pkt.MessageHash)
		// Redirect fragments were already counted by forwardRedirect.
		if pkt.Command != packet.CmdRedirect {
			if s.replay.PushAndIncrease(FingerprintOf(pkt.MessageHash, pkt.FragmentIndex)) > 1 {
				return
			}
		}
		s.deliver(&pkt, combined, from)
		return
	}

	if pkt.Command == packet.CmdRedirect {
		// forwardRedirect already performs fingerprint suppression; a
		// second check here would count the same fingerprint twice and
		// suppress every redirect's own local delivery.
		if !s.forwardRedirect(&pkt) {
			return
		}
	} else {
		fp := FingerprintOf(pkt.MessageHash, pkt.FragmentIndex)
		if s.replay.PushAndIncrease(fp) > 1 {
			return
		}
	}
	s.deliver(&pkt, pkt.Payload, from)
}

func (s *Session) deliver(pkt *packet.Packet, payload []byte, from Endpoint) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(pkt.Command, pkt.Subcommand, pkt.SenderHash, pkt.SenderPublicKey, payload, from)
}

// forwardRedirect implements spec §4.5.4. It returns whether the packet
// should still be processed locally.
func (s *Session) forwardRedirect(pkt *packet.Packet) bool {
	fp := FingerprintOf(pkt.MessageHash, pkt.FragmentIndex)
	count := s.replay.PushAndIncrease(fp)
	if count > MaxRedirectCount {
		return false
	}

	rewritten := *pkt
	rewritten.SenderHash = s.SelfHash
	rewritten.SenderPublicKey = s.SelfPublicKey

	buf := make([]byte, packet.HeaderLength+len(pkt.Payload))
	n, err := rewritten.Encode(buf)
	if err == nil {
		for _, ep := range s.peers.Snapshot() {
			_, _ = s.conn.WriteTo(buf[:n], ep.UDPAddr())
		}
	}
	return count == MaxRedirectCount
}
