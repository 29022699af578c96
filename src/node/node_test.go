package node

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/KazeONGUENE/rope/src/crypto"
	"github.com/KazeONGUENE/rope/src/entry"
)

var testPort = 19990

func nextAddr() string {
	testPort++
	return fmt.Sprintf("127.0.0.1:%d", testPort)
}

// newTestValidator generates a fresh identity and returns both the identity
// and the ValidatorInfo a peer set would carry for it, mirroring babble's
// initPeers helper.
func newTestValidator(t *testing.T, addr string) (*crypto.HybridKeyPair, ValidatorInfo) {
	t.Helper()
	kp, err := crypto.GenerateHybridKeyPair()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	pub, err := crypto.MarshalHybridPublicKey(&kp.Public)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return kp, ValidatorInfo{PubKey: pub, Address: addr, Moniker: "validator"}
}

func TestNodeMintsGenesisAlone(t *testing.T) {
	cfg := TestConfig(t)
	cfg.ListenAddr = nextAddr()

	n, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	has, err := n.hasAnyGenesis()
	if err != nil {
		t.Fatalf("hasAnyGenesis: %v", err)
	}
	if !has {
		t.Fatal("expected node to have minted its own genesis entry")
	}

	snap := n.Metrics().Snapshot()
	if snap.EntriesAdmitted != 1 {
		t.Fatalf("expected 1 admitted entry after genesis, got %d", snap.EntriesAdmitted)
	}
}

func TestNodeSubmitAdmitsEntry(t *testing.T) {
	cfg := TestConfig(t)
	cfg.ListenAddr = nextAddr()

	n, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e, err := n.Submit([]byte("hello rope"), nil, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, ok, err := n.Graph().Get(e.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("submitted entry not found in graph")
	}
	payload, err := entry.DecodeData(got.Content)
	if err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if string(payload) != "hello rope" {
		t.Fatalf("unexpected content %q", payload)
	}

	snap := n.Metrics().Snapshot()
	if snap.EntriesAdmitted != 2 {
		t.Fatalf("expected 2 admitted entries (genesis + submission), got %d", snap.EntriesAdmitted)
	}
}

func TestTwoNodeBootstrapFetchesGenesis(t *testing.T) {
	addrA := nextAddr()
	addrB := nextAddr()

	kpA, vA := newTestValidator(t, addrA)
	kpB, vB := newTestValidator(t, addrB)
	validators := []ValidatorInfo{vA, vB}

	cfgA := TestConfig(t)
	cfgA.Identity = kpA
	cfgA.ListenAddr = addrA

	nodeA, err := New(cfgA, validators)
	if err != nil {
		t.Fatalf("New nodeA: %v", err)
	}
	defer nodeA.Close()
	if err := nodeA.Start(); err != nil {
		t.Fatalf("Start nodeA: %v", err)
	}

	cfgB := TestConfig(t)
	cfgB.Identity = kpB
	cfgB.ListenAddr = addrB
	cfgB.Bootstrap = []string{addrA}

	nodeB, err := New(cfgB, validators)
	if err != nil {
		t.Fatalf("New nodeB: %v", err)
	}
	defer nodeB.Close()
	if err := nodeB.Start(); err != nil {
		t.Fatalf("Start nodeB: %v", err)
	}

	nodeA.genesisMu.Lock()
	genesisID := nodeA.genesisID
	nodeA.genesisMu.Unlock()

	nodeB.genesisMu.Lock()
	fetchedID := nodeB.genesisID
	nodeB.genesisMu.Unlock()

	if genesisID != fetchedID {
		t.Fatalf("nodeB fetched a different genesis entry: %s != %s", fetchedID, genesisID)
	}

	if has, err := nodeB.Graph().Has(genesisID); err != nil || !has {
		t.Fatalf("nodeB does not have nodeA's genesis entry locally: has=%v err=%v", has, err)
	}
}

func TestNodeAnchorPromotion(t *testing.T) {
	cfg := TestConfig(t)
	cfg.ListenAddr = nextAddr()
	cfg.AnchorInterval = 20 * time.Millisecond

	n, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := n.Submit([]byte(fmt.Sprintf("entry-%d", i)), nil, 0); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n.Metrics().Snapshot().AnchorsProduced > 0 {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("no anchor was promoted within the deadline")
}

func TestNodeRepairNowOnHealthyEntry(t *testing.T) {
	cfg := TestConfig(t)
	cfg.ListenAddr = nextAddr()

	n, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e, err := n.Submit([]byte("shard me"), nil, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	content, err := n.RepairNow(ctx, e.ID())
	if err != nil {
		t.Fatalf("RepairNow on an undamaged entry should succeed by reassembling its own shards: %v", err)
	}
	payload, err := entry.DecodeData(content)
	if err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if string(payload) != "shard me" {
		t.Fatalf("unexpected recovered content %q", payload)
	}
}
