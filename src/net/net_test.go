package net

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KazeONGUENE/rope/src/common"
	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/peers"
)

func generateTestIdentity(t *testing.T) *crypto.HybridKeyPair {
	t.Helper()
	kp, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	return kp
}

func TestFramingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := []byte("gossip event payload")
	if err := writeMessage(&buf, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := readMessage(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("roundtrip mismatch: got %q want %q", got, msg)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := envelope{Topic: TopicAnchors, Payload: []byte("anchor-id-bytes")}
	decoded, err := decodeEnvelope(encodeEnvelope(env))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Topic != env.Topic || !bytes.Equal(decoded.Payload, env.Payload) {
		t.Fatalf("envelope mismatch: got %+v want %+v", decoded, env)
	}
}

func TestHelloVerifiesAgainstBoundCertificate(t *testing.T) {
	kp := generateTestIdentity(t)
	cert := []byte("session-certificate-a")

	h, err := newHello(kp, cert)
	if err != nil {
		t.Fatalf("build hello: %v", err)
	}

	pub, id, err := h.verify(cert)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	pubBytes, _ := crypto.MarshalHybridPublicKey(pub)
	wantID := peers.NodeIDFromHybridPublicKey(pubBytes)
	if id != wantID {
		t.Fatalf("id mismatch: got %v want %v", id, wantID)
	}

	if _, _, err := h.verify([]byte("session-certificate-b")); err == nil {
		t.Fatalf("expected verification to fail against a different certificate binding")
	}
}

func TestHelloEncodeDecodeRoundTrip(t *testing.T) {
	kp := generateTestIdentity(t)
	h, err := newHello(kp, []byte("cert"))
	if err != nil {
		t.Fatalf("build hello: %v", err)
	}
	decoded, err := decodeHello(encodeHello(h))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded.PubKey, h.PubKey) || decoded.Nonce != h.Nonce {
		t.Fatalf("hello roundtrip mismatch")
	}
	if _, _, err := decoded.verify([]byte("cert")); err != nil {
		t.Fatalf("verify decoded hello: %v", err)
	}
}

func TestClosestPeersOrdersByXORDistance(t *testing.T) {
	target := peers.NodeID{0x00}
	a := peers.NodeID{0x01}
	b := peers.NodeID{0x0f}
	c := peers.NodeID{0xff}

	got := closestPeers(target, []peers.NodeID{c, a, b}, 3)
	if got[0] != a || got[1] != b || got[2] != c {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestClosestPeersRespectsLimit(t *testing.T) {
	target := peers.NodeID{0x00}
	candidates := []peers.NodeID{{0x01}, {0x02}, {0x03}}
	got := closestPeers(target, candidates, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
}

func TestDiscoveryTableTracksObservedAddresses(t *testing.T) {
	self := peers.NodeID{0x00}
	table := newDiscoveryTable(self, []string{"127.0.0.1:9000"})

	if got := table.Bootstrap(); len(got) != 1 || got[0] != "127.0.0.1:9000" {
		t.Fatalf("unexpected bootstrap list: %v", got)
	}

	id := peers.NodeID{0x01}
	table.Observe(id, "127.0.0.1:9001")
	addr, ok := table.Address(id)
	if !ok || addr != "127.0.0.1:9001" {
		t.Fatalf("expected observed address, got %q ok=%v", addr, ok)
	}

	table.Forget(id)
	if _, ok := table.Address(id); ok {
		t.Fatalf("expected address to be forgotten")
	}
}

func TestDedupSuppressesRepeatedPayloadsWithinTTL(t *testing.T) {
	d := newDedup()
	defer d.Close()

	payload := []byte("same entry announcement")
	if !d.Check(payload) {
		t.Fatalf("expected first sighting to be new")
	}
	if d.Check(payload) {
		t.Fatalf("expected immediate repeat to be suppressed")
	}
}

func TestTwoNodesHandshakeAndPublish(t *testing.T) {
	serverIdentity := generateTestIdentity(t)
	server, err := NewNode(Config{Identity: serverIdentity, ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer server.Close()

	var serverConnected atomic.Bool
	server.OnConnect(func(p *Peer) { serverConnected.Store(true) })

	var received []byte
	var receivedTopic string
	var mu sync.Mutex
	gotMessage := make(chan struct{})
	server.OnMessage(func(p *Peer, topic string, payload []byte) {
		mu.Lock()
		received = payload
		receivedTopic = topic
		mu.Unlock()
		close(gotMessage)
	})

	clientIdentity := generateTestIdentity(t)
	client, err := NewNode(Config{Identity: clientIdentity, ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if err := client.Start(); err != nil {
		t.Fatalf("start client: %v", err)
	}
	defer client.Close()

	peer, err := client.Connect(server.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	serverPubBytes, _ := crypto.MarshalHybridPublicKey(&serverIdentity.Public)
	if peer.ID() != peers.NodeIDFromHybridPublicKey(serverPubBytes) {
		t.Fatalf("unexpected client-observed server id")
	}

	if err := client.Publish(TopicEntries, []byte("new entry announcement")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-gotMessage:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if receivedTopic != TopicEntries {
		t.Fatalf("topic mismatch: got %q", receivedTopic)
	}
	if !bytes.Equal(received, []byte("new entry announcement")) {
		t.Fatalf("payload mismatch: got %q", received)
	}
	if !serverConnected.Load() {
		t.Fatalf("server never observed the connection")
	}
}

func TestPublishRejectsUnknownTopic(t *testing.T) {
	identity := generateTestIdentity(t)
	node, err := NewNode(Config{Identity: identity, ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("create node: %v", err)
	}
	if err := node.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer node.Close()

	if err := node.Publish("/rope/unknown/1.0.0", []byte("x")); err == nil {
		t.Fatalf("expected an error for an unknown topic")
	}
}

func TestPublishReturnsInsufficientPeersWithNoMesh(t *testing.T) {
	identity := generateTestIdentity(t)
	node, err := NewNode(Config{Identity: identity, ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("create node: %v", err)
	}
	if err := node.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer node.Close()

	err = node.Publish(TopicGossip, []byte("x"))
	if !common.Is(err, common.InsufficientPeers) {
		t.Fatalf("expected InsufficientPeers, got %v", err)
	}
}
