package p2p

import (
	"sort"
	"testing"

	"github.com/klingnet-chain/klingnet-core/internal/storage"
)

func TestPeerStoreSaveLoadRemove(t *testing.T) {
	db := storage.NewMemory()
	ps := NewPeerStore(db)

	for _, uri := range []string{"ws://peer-a:3221", "ws://peer-b:3221"} {
		if err := ps.Save(uri); err != nil {
			t.Fatalf("Save(%s): %v", uri, err)
		}
	}

	got, err := ps.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sort.Strings(got)
	want := []string{"ws://peer-a:3221", "ws://peer-b:3221"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Load mismatch: got %v, want %v", got, want)
	}

	if err := ps.Remove("ws://peer-a:3221"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got, err = ps.Load()
	if err != nil {
		t.Fatalf("Load after remove: %v", err)
	}
	if len(got) != 1 || got[0] != "ws://peer-b:3221" {
		t.Fatalf("Load after remove mismatch: %v", got)
	}
}
