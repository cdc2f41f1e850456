// Package engine implements the gossip engine: the single-threaded
// cooperative state machine that owns the rumor store, the peer table, and
// the one outstanding hot-rumor slot, and reacts to inbound datagrams, user
// lines, timer expirations, and admin queries — all serialized onto one
// event loop.
package engine

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"rumorpeer/internal/peertable"
	"rumorpeer/internal/store"
	"rumorpeer/internal/transport"
	"rumorpeer/internal/wire"
)

// Sender is the minimal transport capability the engine needs. transport.UDP
// satisfies it directly; tests substitute a fake.
type Sender interface {
	Send(to string, data []byte)
}

// Line is one rendered transcript entry.
type Line struct {
	Origin string
	Text   string
	// Own is true for lines that originated from this engine's own user
	// input, so the UI can style them differently if it wants to.
	Own bool
}

// RenderFunc is how the engine hands a line to whatever is displaying the
// transcript. It must not block or call back into the engine.
type RenderFunc func(Line)

// RumorRecord is one stored rumor, used to answer introspection queries.
type RumorRecord struct {
	Origin string
	Seq    uint32
	Text   string
}

// QueryKind selects which snapshot an admin Query asks for.
type QueryKind int

const (
	QueryPeers QueryKind = iota
	QueryOrigins
	QueryStatus
	QueryRumors
)

// Query is a read-only request for engine state, answered synchronously
// inside the event loop and returned on Reply. It is how the admin HTTP
// surface observes engine state without ever touching the store or peer
// table from another goroutine.
type Query struct {
	Kind  QueryKind
	Reply chan QueryResult
}

// QueryResult carries whichever fields are relevant to the Query's Kind.
type QueryResult struct {
	Neighbors  []string
	Candidates []string
	Origins    []string
	Status     map[string]uint32
	Rumors     []RumorRecord
}

type hotRumor struct {
	origin  string
	seq     uint32
	text    string
	partner string
	timer   *time.Timer
}

// Engine is the gossip state machine for one peer.
type Engine struct {
	self  string
	store *store.Store
	peers *peertable.Table

	transport Sender
	rng       *rand.Rand
	logger    *zap.Logger
	render    RenderFunc

	resendTimeout     time.Duration
	antiEntropyPeriod time.Duration

	mySeqNext uint32
	hot       *hotRumor

	inbound chan string // decoded, lines submitted by the local user
	queries chan Query

	malformedCount uint64
}

// New constructs an Engine ready to Run. store and peers are taken by
// reference and owned by the returned Engine from this point on.
func New(self string, st *store.Store, peers *peertable.Table, sender Sender, rng *rand.Rand, logger *zap.Logger, render RenderFunc, resendTimeout, antiEntropyPeriod time.Duration) *Engine {
	return &Engine{
		self:              self,
		store:             st,
		peers:             peers,
		transport:         sender,
		rng:               rng,
		logger:            logger,
		render:            render,
		resendTimeout:     resendTimeout,
		antiEntropyPeriod: antiEntropyPeriod,
		mySeqNext:         st.Height(self) + 1,
		inbound:           make(chan string, 16),
		queries:           make(chan Query, 16),
	}
}

// SubmitLine hands a user-typed line to the engine. Safe to call from any
// goroutine; it never blocks the caller for long since the channel is
// buffered and drained promptly by Run.
func (e *Engine) SubmitLine(text string) {
	e.inbound <- text
}

// SubmitQuery sends a read-only introspection request into the event loop
// and blocks until it is answered. Safe to call from any goroutine.
func (e *Engine) SubmitQuery(kind QueryKind) QueryResult {
	q := Query{Kind: kind, Reply: make(chan QueryResult, 1)}
	e.queries <- q
	return <-q.Reply
}

// Run drains datagrams, user lines, timer expirations, and admin queries
// until ctx is cancelled. It owns the anti-entropy ticker and the
// hot-rumor deadline timer.
func (e *Engine) Run(ctx context.Context, datagrams <-chan transport.Datagram) {
	antiEntropy := time.NewTicker(e.antiEntropyPeriod)
	defer antiEntropy.Stop()
	defer e.cancelHotRumor()

	for {
		// Drain every datagram already queued before servicing the next
		// event source, so a burst of arrivals is processed in FIFO order
		// ahead of timers and user input.
		drained := true
		for drained {
			select {
			case dg := <-datagrams:
				e.handleDatagram(dg)
			default:
				drained = false
			}
		}

		var hotTimer <-chan time.Time
		if e.hot != nil {
			hotTimer = e.hot.timer.C
		}

		select {
		case <-ctx.Done():
			return
		case dg := <-datagrams:
			e.handleDatagram(dg)
		case text := <-e.inbound:
			e.OnUserLine(text)
		case <-hotTimer:
			e.onHotRumorTimeout()
		case <-antiEntropy.C:
			e.onAntiEntropyTick()
		case q := <-e.queries:
			e.handleQuery(q)
		}
	}
}

func (e *Engine) handleDatagram(dg transport.Datagram) {
	pkt, err := wire.Decode(dg.Data)
	if err != nil {
		e.malformedCount++
		e.logger.Debug("dropping malformed datagram", zap.String("from", dg.From), zap.Error(err))
		return
	}

	switch {
	case pkt.Rumor != nil:
		e.OnRumor(pkt.Rumor, dg.From)
	case pkt.Status != nil:
		e.OnStatus(pkt.Status, dg.From)
	}
}

// OnUserLine assigns the next local sequence number, stores the line,
// renders it, and starts a monger to a random neighbor.
func (e *Engine) OnUserLine(text string) {
	seq := e.mySeqNext
	e.mySeqNext++
	e.store.Accept(e.self, seq, text)

	e.render(Line{Origin: e.self, Text: text, Own: true})

	e.startMonger(e.self, seq, text)
}

// OnRumor processes one inbound rumor. A newly in-order rumor is accepted,
// rendered, and re-mongered to a fresh neighbor; anything else (duplicate
// or future) is dropped and answered with our status instead.
func (e *Engine) OnRumor(m *wire.RumorMessage, from string) {
	localNext := e.store.Height(m.Origin) + 1

	if m.SeqNo == localNext {
		e.store.Accept(m.Origin, m.SeqNo, m.ChatText)
		e.render(Line{Origin: m.Origin, Text: m.ChatText})
		e.startMonger(m.Origin, m.SeqNo, m.ChatText)
		return
	}

	e.sendStatus(from)
}

// OnStatus reconciles a remote status vector against local state, per the
// three-step comparison in the specification: fill the remote in if it's
// behind, ask it to fill us in if it's ahead, seed unknown origins in
// either direction, and — only if none of that fired — flip a coin to
// decide whether to keep mongering with a fresh neighbor.
func (e *Engine) OnStatus(sp *wire.StatusPacket, from string) {
	if e.hot != nil && e.hot.partner == from {
		e.cancelHotRumor()
	}

	want := sp.Vector()

	if e.reconcileWant(want, from) {
		return
	}
	if e.seedUnknownOrigins(want, from) {
		return
	}

	if e.rng.Intn(2) == 0 {
		if partner := e.peers.RandomNeighborExcept(from, e.rng); partner != "" {
			e.sendStatus(partner)
		}
	}
}

// reconcileWant implements step 1: walk want in sorted origin order and act
// on the first origin that is out of sync, stopping immediately. It
// returns whether any action was taken.
func (e *Engine) reconcileWant(want map[string]uint32, from string) bool {
	origins := make([]string, 0, len(want))
	for o := range want {
		origins = append(origins, o)
	}
	sort.Strings(origins)

	for _, o := range origins {
		wantSeq := want[o]
		localNext := e.store.Height(o) + 1

		switch {
		case wantSeq < localNext:
			if text, ok := e.store.Get(o, wantSeq); ok {
				e.sendRumor(o, wantSeq, text, from)
			}
			return true
		case wantSeq > localNext:
			e.sendStatus(from)
			return true
		}
	}
	return false
}

// seedUnknownOrigins implements steps 2 and 3: seed the remote with our
// first rumor for any origin it never mentioned, and seed ourselves with a
// zero-height entry for any origin it mentioned that we've never heard of.
// It returns whether any action was taken.
func (e *Engine) seedUnknownOrigins(want map[string]uint32, from string) bool {
	acted := false

	for _, o := range e.store.KnownOrigins() {
		if _, mentioned := want[o]; mentioned {
			continue
		}
		if text, ok := e.store.Get(o, 1); ok {
			e.sendRumor(o, 1, text, from)
			acted = true
		}
	}

	seededAny := false
	for o := range want {
		if !e.store.Known(o) {
			e.store.Seed(o)
			seededAny = true
		}
	}
	if seededAny {
		e.sendStatus(from)
		acted = true
	}

	return acted
}

func (e *Engine) startMonger(origin string, seq uint32, text string) {
	partner := e.peers.RandomNeighbor(e.rng)
	if partner == "" {
		return
	}
	e.sendRumor(origin, seq, text, partner)
	e.armHotRumor(origin, seq, text, partner)
}

func (e *Engine) armHotRumor(origin string, seq uint32, text, partner string) {
	e.cancelHotRumor()
	e.hot = &hotRumor{
		origin:  origin,
		seq:     seq,
		text:    text,
		partner: partner,
		timer:   time.NewTimer(e.resendTimeout),
	}
}

func (e *Engine) cancelHotRumor() {
	if e.hot == nil {
		return
	}
	e.hot.timer.Stop()
	e.hot = nil
}

func (e *Engine) onHotRumorTimeout() {
	h := e.hot
	if h == nil {
		return
	}
	e.sendRumor(h.origin, h.seq, h.text, h.partner)
	h.timer.Reset(e.resendTimeout)
}

func (e *Engine) onAntiEntropyTick() {
	if to := e.peers.RandomCandidate(e.rng); to != "" {
		e.sendStatus(to)
	}
}

func (e *Engine) handleQuery(q Query) {
	var res QueryResult
	switch q.Kind {
	case QueryPeers:
		res.Neighbors = e.peers.Neighbors()
		res.Candidates = e.peers.Candidates()
	case QueryOrigins:
		res.Origins = e.store.KnownOrigins()
	case QueryStatus:
		res.Status = e.store.Status()
	case QueryRumors:
		res.Rumors = e.allRumors()
	}
	q.Reply <- res
}

func (e *Engine) allRumors() []RumorRecord {
	origins := e.store.KnownOrigins()
	sort.Strings(origins)

	var records []RumorRecord
	for _, o := range origins {
		for seq := uint32(1); seq <= e.store.Height(o); seq++ {
			text, ok := e.store.Get(o, seq)
			if !ok {
				continue
			}
			records = append(records, RumorRecord{Origin: o, Seq: seq, Text: text})
		}
	}
	return records
}

func (e *Engine) sendRumor(origin string, seq uint32, text, to string) {
	e.transmit(&wire.GossipPacket{Rumor: &wire.RumorMessage{Origin: origin, SeqNo: seq, ChatText: text}}, to)
}

func (e *Engine) sendStatus(to string) {
	e.transmit(&wire.GossipPacket{Status: wire.StatusFromVector(e.store.Status())}, to)
}

func (e *Engine) transmit(pkt *wire.GossipPacket, to string) {
	data, err := wire.Encode(pkt)
	if err != nil {
		e.logger.Error("failed to encode outbound packet", zap.Error(err))
		return
	}
	e.transport.Send(to, data)
}
