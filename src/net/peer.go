package net

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/peers"
)

const defaultRequestTimeout = 30 * time.Second

// Peer is one connected session: a QUIC connection whose remote hybrid
// identity has already been confirmed by the handshake in identity.go.
type Peer struct {
	id      peers.NodeID
	pubKey  *crypto.HybridPublicKey
	pubRaw  []byte
	address string

	conn   *quic.Conn
	node   *Node
	closed atomic.Bool
	mu     sync.Mutex
}

// ID returns the peer's hybrid-identity-derived node id.
func (p *Peer) ID() peers.NodeID { return p.id }

// PublicKey returns the peer's verified hybrid public key.
func (p *Peer) PublicKey() *crypto.HybridPublicKey { return p.pubKey }

// Address returns the remote address, kept for reconnection.
func (p *Peer) Address() string { return p.address }

// Send publishes payload to the peer on topic over a fresh unidirectional
// stream, mirroring BluePods' Peer.Send generalized with a topic tag.
func (p *Peer) Send(topic string, payload []byte) error {
	if p.closed.Load() {
		return fmt.Errorf("peer is closed")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	stream, err := p.conn.OpenUniStreamSync(context.Background())
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	data := encodeEnvelope(envelope{Topic: topic, Payload: payload})
	if err := writeMessage(stream, data); err != nil {
		stream.Close()
		return fmt.Errorf("write message: %w", err)
	}
	return stream.Close()
}

// Request opens a bidirectional stream, writes payload, and waits for a
// response, honoring ctx's deadline.
func (p *Peer) Request(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("peer is closed")
	}
	stream, err := p.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	stream.SetDeadline(deadline)

	data := encodeEnvelope(envelope{Topic: topic, Payload: payload})
	if err := writeMessage(stream, data); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	resp, err := readMessage(stream)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// Close tears down the underlying QUIC connection.
func (p *Peer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.conn.CloseWithError(0, "closed")
}

// receiveLoop accepts unidirectional and bidirectional streams for the
// lifetime of the connection, dispatching each to the node's topic
// handlers, and notifies the node once the peer disconnects.
func (p *Peer) receiveLoop() {
	go p.acceptBidiStreams(context.Background())

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		stream, err := p.conn.AcceptUniStream(ctx)
		cancel()
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				continue
			}
			break
		}
		go p.handleUniStream(stream)
	}

	p.handleDisconnect()
}

func (p *Peer) acceptBidiStreams(ctx context.Context) {
	for {
		stream, err := p.conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go p.handleBidiStream(stream)
	}
}

func (p *Peer) handleBidiStream(stream *quic.Stream) {
	defer stream.Close()
	data, err := readMessage(stream)
	if err != nil {
		return
	}
	env, err := decodeEnvelope(data)
	if err != nil {
		return
	}
	resp, err := p.node.callOnRequest(p, env.Topic, env.Payload)
	if err != nil {
		return
	}
	_ = writeMessage(stream, resp)
}

func (p *Peer) handleUniStream(stream *quic.ReceiveStream) {
	data, err := readMessage(stream)
	if err != nil {
		return
	}
	env, err := decodeEnvelope(data)
	if err != nil {
		return
	}
	if !p.node.dedup.Check(env.Payload) {
		return
	}
	p.node.callOnMessage(p, env.Topic, env.Payload)
}

func (p *Peer) handleDisconnect() {
	if p.closed.Swap(true) {
		return
	}
	p.node.handlePeerDisconnect(p)
}
