package net

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/peers"
)

const (
	defaultReconnectDelay = 5 * time.Second
	maxReconnectDelay     = 60 * time.Second
	alpnProtocol          = "rope/1"
	handshakeTimeout      = 10 * time.Second
)

// Config configures a Node.
type Config struct {
	// Identity is the node's real hybrid keypair, bound to every session
	// by the application-level handshake rather than the TLS certificate
	// (see cert.go).
	Identity *crypto.HybridKeyPair
	// ListenAddr is the local UDP address to accept QUIC connections on.
	ListenAddr string
	// Bootstrap is the small statically configured set of reachable peer
	// addresses spec.md §4.8 names for initial discovery.
	Bootstrap []string
	// TopicMinimums overrides defaultTopicMinimum per topic.
	TopicMinimums map[string]int
	// ReconnectDelay is the initial backoff between reconnection attempts.
	ReconnectDelay time.Duration
}

// Node is one participant's network runtime: a QUIC listener/dialer, a live
// peer table keyed by hybrid identity, and per-topic minimum-mesh
// enforcement, generalizing BluePods's Node from a single ed25519 identity
// and unstructured broadcast to a hybrid identity and five named topics.
type Node struct {
	identity   *crypto.HybridKeyPair
	selfID     peers.NodeID
	certDER    []byte
	listenAddr string
	tlsConfig  *tls.Config
	quicConfig *quic.Config

	listener *quic.Listener

	peers   map[peers.NodeID]*Peer
	peersMu sync.RWMutex

	topicMin map[string]int

	discovery      *discoveryTable
	reconnectDelay time.Duration
	dedup          *dedup

	onConnect    func(*Peer)
	onMessage    func(*Peer, string, []byte)
	onDisconnect func(*Peer)
	onRequest    func(*Peer, string, []byte) ([]byte, error)
	handlersMu   sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNode constructs a Node from cfg without starting it.
func NewNode(cfg Config) (*Node, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("identity is required")
	}
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay == 0 {
		reconnectDelay = defaultReconnectDelay
	}

	cert, certDER, err := generateTransportCertificate()
	if err != nil {
		return nil, fmt.Errorf("generate transport certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true, // identity is verified by the hello handshake, not the cert chain
		NextProtos:         []string{alpnProtocol},
	}
	quicConfig := &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}

	topicMin := make(map[string]int, len(Topics))
	for _, t := range Topics {
		topicMin[t] = defaultTopicMinimum
	}
	for t, min := range cfg.TopicMinimums {
		topicMin[t] = min
	}

	pubKeyBytes, err := crypto.MarshalHybridPublicKey(&cfg.Identity.Public)
	if err != nil {
		return nil, fmt.Errorf("marshal identity: %w", err)
	}
	selfID := peers.NodeIDFromHybridPublicKey(pubKeyBytes)

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		identity:       cfg.Identity,
		selfID:         selfID,
		certDER:        certDER,
		listenAddr:     cfg.ListenAddr,
		tlsConfig:      tlsConfig,
		quicConfig:     quicConfig,
		peers:          make(map[peers.NodeID]*Peer),
		topicMin:       topicMin,
		discovery:      newDiscoveryTable(selfID, cfg.Bootstrap),
		reconnectDelay: reconnectDelay,
		dedup:          newDedup(),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// ID returns this node's identity-derived id.
func (n *Node) ID() peers.NodeID { return n.selfID }

// Addr returns the listener's bound address, empty until Start succeeds.
func (n *Node) Addr() string {
	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// Start begins accepting connections and dials every bootstrap address.
func (n *Node) Start() error {
	listener, err := quic.ListenAddr(n.listenAddr, n.tlsConfig, n.quicConfig)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	n.listener = listener

	n.wg.Add(1)
	go n.acceptLoop()

	for _, addr := range n.discovery.Bootstrap() {
		addr := addr
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if _, err := n.Connect(addr); err != nil {
				n.reconnectAddr(addr)
			}
		}()
	}
	return nil
}

// Connect dials addr, completes the hybrid handshake, and adds the result
// to the peer table.
func (n *Node) Connect(addr string) (*Peer, error) {
	conn, err := quic.DialAddr(n.ctx, addr, n.tlsConfig, n.quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	peer, err := n.setupPeer(conn, addr, true)
	if err != nil {
		conn.CloseWithError(1, "handshake failed")
		return nil, err
	}
	return peer, nil
}

// Publish sends payload on topic to every connected peer, refusing with
// InsufficientPeers when the live mesh is below topic's configured minimum
// (spec.md §5 "Backpressure").
func (n *Node) Publish(topic string, payload []byte) error {
	if !isKnownTopic(topic) {
		return fmt.Errorf("unknown topic %q", topic)
	}
	live := n.Peers()
	if len(live) < n.topicMin[topic] {
		return common.NewError(common.InsufficientPeers, topic, fmt.Sprintf("mesh has %d peers, need %d", len(live), n.topicMin[topic]))
	}
	var lastErr error
	for _, p := range live {
		if err := p.Send(topic, payload); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Gossip sends payload on topic to a random subset of at most fanout
// connected peers, the propagation primitive gossip history publishing uses
// instead of a full broadcast.
func (n *Node) Gossip(topic string, payload []byte, fanout int) error {
	if !isKnownTopic(topic) {
		return fmt.Errorf("unknown topic %q", topic)
	}
	live := n.Peers()
	if len(live) < n.topicMin[topic] {
		return common.NewError(common.InsufficientPeers, topic, fmt.Sprintf("mesh has %d peers, need %d", len(live), n.topicMin[topic]))
	}
	selected := selectRandomPeers(live, fanout)
	var lastErr error
	for _, p := range selected {
		if err := p.Send(topic, payload); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func selectRandomPeers(all []*Peer, k int) []*Peer {
	if k >= len(all) {
		return all
	}
	idx := rand.Perm(len(all))[:k]
	out := make([]*Peer, k)
	for i, j := range idx {
		out[i] = all[j]
	}
	return out
}

// Peers returns every currently connected peer.
func (n *Node) Peers() []*Peer {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()
	out := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

// GetPeer returns the peer with the given id, or nil if not connected.
func (n *Node) GetPeer(id peers.NodeID) *Peer {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()
	return n.peers[id]
}

// OnConnect registers the handler called when a peer's handshake completes.
func (n *Node) OnConnect(fn func(*Peer)) {
	n.handlersMu.Lock()
	n.onConnect = fn
	n.handlersMu.Unlock()
}

// OnMessage registers the handler called for every unidirectional-stream
// message received, tagged with the topic it was published on.
func (n *Node) OnMessage(fn func(*Peer, string, []byte)) {
	n.handlersMu.Lock()
	n.onMessage = fn
	n.handlersMu.Unlock()
}

// OnDisconnect registers the handler called when a peer disconnects.
func (n *Node) OnDisconnect(fn func(*Peer)) {
	n.handlersMu.Lock()
	n.onDisconnect = fn
	n.handlersMu.Unlock()
}

// OnRequest registers the handler for incoming bidirectional request/response
// streams.
func (n *Node) OnRequest(fn func(*Peer, string, []byte) ([]byte, error)) {
	n.handlersMu.Lock()
	n.onRequest = fn
	n.handlersMu.Unlock()
}

// Close stops accepting connections, closes every peer, and releases
// background goroutines.
func (n *Node) Close() error {
	n.cancel()
	if n.listener != nil {
		n.listener.Close()
	}
	n.peersMu.Lock()
	for _, p := range n.peers {
		p.Close()
	}
	n.peers = make(map[peers.NodeID]*Peer)
	n.peersMu.Unlock()

	n.dedup.Close()
	n.wg.Wait()
	return nil
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept(n.ctx)
		if err != nil {
			return
		}
		go n.handleIncoming(conn)
	}
}

func (n *Node) handleIncoming(conn *quic.Conn) {
	peer, err := n.setupPeer(conn, conn.RemoteAddr().String(), false)
	if err != nil {
		conn.CloseWithError(1, "handshake failed")
		return
	}
	n.callOnConnect(peer)
}

// setupPeer runs the hybrid handshake over a fresh bidirectional stream,
// then registers the resulting Peer. dialed distinguishes which side opens
// the handshake stream first, avoiding a race where both ends try to open
// it simultaneously.
func (n *Node) setupPeer(conn *quic.Conn, addr string, dialed bool) (*Peer, error) {
	ctx, cancel := context.WithTimeout(n.ctx, handshakeTimeout)
	defer cancel()

	var stream *quic.Stream
	var err error
	if dialed {
		stream, err = conn.OpenStreamSync(ctx)
	} else {
		stream, err = conn.AcceptStream(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("handshake stream: %w", err)
	}
	defer stream.Close()

	remoteFingerprint, err := peerCertificateFingerprint(conn.ConnectionState().TLS)
	if err != nil {
		return nil, fmt.Errorf("remote certificate: %w", err)
	}

	ours, err := newHello(n.identity, n.certDER)
	if err != nil {
		return nil, fmt.Errorf("build hello: %w", err)
	}
	if err := writeMessage(stream, encodeHello(ours)); err != nil {
		return nil, fmt.Errorf("send hello: %w", err)
	}
	raw, err := readMessage(stream)
	if err != nil {
		return nil, fmt.Errorf("receive hello: %w", err)
	}
	theirs, err := decodeHello(raw)
	if err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}
	pub, id, err := theirs.verify(remoteFingerprint)
	if err != nil {
		return nil, fmt.Errorf("verify hello: %w", err)
	}

	peer := &Peer{
		id:      id,
		pubKey:  pub,
		pubRaw:  theirs.PubKey,
		address: addr,
		conn:    conn,
		node:    n,
	}

	n.peersMu.Lock()
	n.peers[id] = peer
	n.peersMu.Unlock()

	n.discovery.Observe(id, addr)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		peer.receiveLoop()
	}()

	return peer, nil
}

func (n *Node) handlePeerDisconnect(p *Peer) {
	n.peersMu.Lock()
	delete(n.peers, p.id)
	n.peersMu.Unlock()

	n.callOnDisconnect(p)

	addr := p.address
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.reconnectAddr(addr)
	}()
}

func (n *Node) reconnectAddr(addr string) {
	delay := n.reconnectDelay
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(delay):
		}

		if _, err := n.Connect(addr); err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (n *Node) callOnConnect(p *Peer) {
	n.handlersMu.RLock()
	fn := n.onConnect
	n.handlersMu.RUnlock()
	if fn != nil {
		fn(p)
	}
}

func (n *Node) callOnMessage(p *Peer, topic string, payload []byte) {
	n.handlersMu.RLock()
	fn := n.onMessage
	n.handlersMu.RUnlock()
	if fn != nil {
		fn(p, topic, payload)
	}
}

func (n *Node) callOnDisconnect(p *Peer) {
	n.handlersMu.RLock()
	fn := n.onDisconnect
	n.handlersMu.RUnlock()
	if fn != nil {
		fn(p)
	}
}

func (n *Node) callOnRequest(p *Peer, topic string, payload []byte) ([]byte, error) {
	n.handlersMu.RLock()
	fn := n.onRequest
	n.handlersMu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("no request handler registered")
	}
	return fn(p, topic, payload)
}
