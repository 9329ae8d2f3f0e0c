package authz

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDecodeMemberListArray(t *testing.T) {
	records, err := DecodeMemberList([]byte(`[
		{"user_id": "u1", "role": "owner"},
		{"user_id": "u2", "joined_at": "2024-03-01T12:00:00Z"}
	]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0].Role != "owner" || records[1].JoinedAt != "2024-03-01T12:00:00Z" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestDecodeMemberListEnvelope(t *testing.T) {
	records, err := DecodeMemberList([]byte(`{"members": [{"user_id": "u1"}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].UserID != "u1" {
		t.Fatalf("unexpected records: %+v", records)
	}

	// Both shapes must produce identical results for identical content.
	fromArray, err := DecodeMemberList([]byte(`[{"user_id": "u1"}]`))
	if err != nil {
		t.Fatalf("decode array: %v", err)
	}
	if len(fromArray) != len(records) || fromArray[0] != records[0] {
		t.Fatalf("shapes diverge: %+v vs %+v", fromArray, records)
	}
}

func TestDecodeMemberListRejectsOtherShapes(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("  "),
		[]byte(`"string"`),
		[]byte(`42`),
		[]byte(`{"users": []}`),
		[]byte(`{broken`),
		[]byte(`[{"user_id": 5}]`),
	}
	for _, payload := range cases {
		if _, err := DecodeMemberList(payload); !errors.Is(err, ErrValidation) {
			t.Errorf("payload %q: err=%v, want ErrValidation", payload, err)
		}
	}
}

func TestMemberRecordDefaults(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	m, err := MemberRecord{UserID: " u1 "}.toMember("org_1", now)
	if err != nil {
		t.Fatalf("toMember: %v", err)
	}
	if m.UserID != "u1" || m.Role != OrgRoleMember || !m.JoinedAt.Equal(now) {
		t.Fatalf("unexpected member: %+v", m)
	}

	if _, err := (MemberRecord{Role: "owner"}).toMember("org_1", now); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing user_id: err=%v, want ErrValidation", err)
	}
	if _, err := (MemberRecord{UserID: "u1", Role: "superuser"}).toMember("org_1", now); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown role: err=%v, want ErrValidation", err)
	}
	if _, err := (MemberRecord{UserID: "u1", JoinedAt: "yesterday"}).toMember("org_1", now); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad joined_at: err=%v, want ErrValidation", err)
	}
}

func TestStoreMembershipProvider(t *testing.T) {
	f := newGraphFixture(t)
	p := NewStoreMembershipProvider(f.store)
	ctx := context.Background()

	m, found, err := p.GetMembership(ctx, f.member.UserID, f.org)
	if err != nil || !found {
		t.Fatalf("lookup: found=%v err=%v", found, err)
	}
	if m.MemberID != f.member.ID || m.OrganizationRole != OrgRoleMember {
		t.Fatalf("unexpected membership: %+v", m)
	}

	_, found, err = p.GetMembership(ctx, "nobody", f.org)
	if err != nil {
		t.Fatalf("absent lookup errored: %v", err)
	}
	if found {
		t.Fatal("found membership for unknown user")
	}
}
