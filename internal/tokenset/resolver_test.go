package tokenset

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
)

var testContract = common.HexToAddress("0x1111111111111111111111111111111111111111")

type memoryStore struct {
	mu    sync.Mutex
	sets  map[string]model.TokenSet
	saves int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sets: make(map[string]model.TokenSet)}
}

func (m *memoryStore) TokenSetExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sets[id]
	return ok, nil
}

func (m *memoryStore) SaveTokenSet(_ context.Context, set model.TokenSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if _, ok := m.sets[set.ID]; !ok {
		m.sets[set.ID] = set
	}
	return nil
}

type staticFlags []*big.Int

func (s staticFlags) NonFlaggedTokens(context.Context, common.Address) ([]*big.Int, error) {
	return s, nil
}

func ids(values ...int64) []*big.Int {
	out := make([]*big.Int, 0, len(values))
	for _, v := range values {
		out = append(out, big.NewInt(v))
	}
	return out
}

func TestMerkleRootOrderInsensitive(t *testing.T) {
	a, ok := MerkleRoot(ids(1, 2, 3, 4, 5))
	if !ok {
		t.Fatalf("expected root")
	}
	b, _ := MerkleRoot(ids(5, 3, 1, 4, 2, 2))
	if a != b {
		t.Fatalf("roots differ: %s != %s", a.Hex(), b.Hex())
	}
	single, _ := MerkleRoot(ids(7))
	if single != common.BytesToHash(leafHash(big.NewInt(7))) {
		t.Fatalf("single-leaf root should be the leaf")
	}
	pair, _ := MerkleRoot(ids(9, 8))
	if pair != common.BytesToHash(nodeHash(leafHash(big.NewInt(8)), leafHash(big.NewInt(9)))) {
		t.Fatalf("two-leaf root should hash the sorted pair")
	}
	if _, ok := MerkleRoot(nil); ok {
		t.Fatalf("empty list should have no root")
	}
}

func TestResolveListChecksRoot(t *testing.T) {
	store := newMemoryStore()
	r := NewResolver(store, nil, nil)
	root, _ := MerkleRoot(ids(1, 2, 3))

	set, err := r.Resolve(context.Background(), &model.TokenSetSpec{
		Kind: model.TokenSetList, Contract: testContract, Root: root, TokenIDs: ids(3, 2, 1),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if set.ID != ListID(testContract, root) || len(set.Items) != 3 {
		t.Fatalf("unexpected set %+v", set)
	}

	_, err = r.Resolve(context.Background(), &model.TokenSetSpec{
		Kind: model.TokenSetList, Contract: testContract, Root: root, TokenIDs: ids(1, 2),
	})
	if got := model.CodeOf(err); got != model.CodeInvalidTokenSet {
		t.Fatalf("unexpected code %s", got)
	}
}

func TestResolvePersistsOnce(t *testing.T) {
	store := newMemoryStore()
	r := NewResolver(store, nil, nil)
	spec := &model.TokenSetSpec{Kind: model.TokenSetToken, Contract: testContract, TokenID: big.NewInt(1)}

	for i := 0; i < 3; i++ {
		set, err := r.Resolve(context.Background(), spec)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if set.ID != "token:0x1111111111111111111111111111111111111111:1" {
			t.Fatalf("unexpected id %s", set.ID)
		}
	}
	if store.saves != 1 {
		t.Fatalf("expected one save, got %d", store.saves)
	}
}

func TestResolveNonFlagged(t *testing.T) {
	store := newMemoryStore()
	root, _ := MerkleRoot(ids(1, 2, 4))

	r := NewResolver(store, staticFlags(ids(1, 2, 4)), nil)
	spec := &model.TokenSetSpec{Kind: model.TokenSetNonFlagged, Contract: testContract, Root: root}
	set, err := r.Resolve(context.Background(), spec)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if set.SchemaHash == (common.Hash{}) {
		t.Fatalf("dynamic set should carry its schema hash")
	}

	// token 4 got flagged since the order was built
	stale := NewResolver(newMemoryStore(), staticFlags(ids(1, 2)), nil)
	if _, err := stale.Resolve(context.Background(), spec); model.CodeOf(err) != model.CodeInvalidTokenSet {
		t.Fatalf("stale schema should be rejected, got %v", err)
	}
}
