package rooms

import (
	"testing"

	"github.com/lumachat/luma-gateway/internal/model/chat"
)

func TestIndexJoinLeave(t *testing.T) {
	idx := New()
	alice := chat.Identity{UserID: "u1", DisplayName: "Alice"}
	bob := chat.Identity{UserID: "u2", DisplayName: "Bob"}

	idx.Join("c1", alice)
	idx.Join("c1", bob)
	idx.Join("c1", alice) // idempotent

	members := idx.MembersOf("c1")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[0].UserID != "u1" || members[1].UserID != "u2" {
		t.Fatalf("expected members sorted by user id, got %+v", members)
	}

	if !idx.Leave("c1", "u1") {
		t.Fatal("expected leave to report membership")
	}
	if idx.Leave("c1", "u1") {
		t.Fatal("leaving twice should be a no-op")
	}
	if idx.Leave("c9", "u1") {
		t.Fatal("leaving an unknown room should be a no-op")
	}

	if idx.IsMember("c1", "u1") {
		t.Fatal("u1 should no longer be a member")
	}
	if !idx.IsMember("c1", "u2") {
		t.Fatal("u2 should still be a member")
	}
}

func TestIndexMembersOfNeverNil(t *testing.T) {
	idx := New()
	members := idx.MembersOf("missing")
	if members == nil {
		t.Fatal("MembersOf must never return nil")
	}
	if len(members) != 0 {
		t.Fatalf("expected empty slice, got %+v", members)
	}
}

func TestIndexEmptyRoomsPruned(t *testing.T) {
	idx := New()
	idx.Join("c1", chat.Identity{UserID: "u1"})
	idx.Leave("c1", "u1")

	if len(idx.rooms) != 0 {
		t.Fatalf("expected pruned room map, got %d rooms", len(idx.rooms))
	}
}

func TestIndexRemoveEverywhere(t *testing.T) {
	idx := New()
	alice := chat.Identity{UserID: "u1", DisplayName: "Alice"}
	bob := chat.Identity{UserID: "u2", DisplayName: "Bob"}

	idx.Join("c1", alice)
	idx.Join("c2", alice)
	idx.Join("c2", bob)

	affected := idx.RemoveEverywhere("u1")
	if len(affected) != 2 || affected[0] != "c1" || affected[1] != "c2" {
		t.Fatalf("unexpected affected rooms: %v", affected)
	}

	if len(idx.MembersOf("c1")) != 0 {
		t.Fatal("c1 should be empty")
	}
	if len(idx.MembersOf("c2")) != 1 {
		t.Fatal("c2 should keep its other member")
	}

	if affected := idx.RemoveEverywhere("u1"); len(affected) != 0 {
		t.Fatalf("second removal should affect nothing, got %v", affected)
	}
}
