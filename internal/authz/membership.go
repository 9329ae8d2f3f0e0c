package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Membership is the narrow view of a member the resolution entrypoint needs,
// as supplied by the organization/membership subsystem.
type Membership struct {
	MemberID         string  `json:"member_id"`
	OrganizationRole OrgRole `json:"organization_role"`
}

// MembershipProvider is the boundary contract owned by the membership
// subsystem: it maps an authenticated user to their membership in one
// organization.
type MembershipProvider interface {
	GetMembership(ctx context.Context, userID, organizationID string) (Membership, bool, error)
}

// StoreMembershipProvider serves memberships straight from the entity store.
type StoreMembershipProvider struct {
	store Store
}

// NewStoreMembershipProvider wraps a Store as a MembershipProvider.
func NewStoreMembershipProvider(store Store) *StoreMembershipProvider {
	return &StoreMembershipProvider{store: store}
}

// GetMembership looks up the (userID, organizationID) membership. Absence is
// reported via the boolean, not an error.
func (p *StoreMembershipProvider) GetMembership(ctx context.Context, userID, organizationID string) (Membership, bool, error) {
	m, err := p.store.FindMember(ctx, userID, organizationID)
	if err != nil {
		if isNotFound(err) {
			return Membership{}, false, nil
		}
		return Membership{}, false, err
	}
	return Membership{MemberID: m.ID, OrganizationRole: m.Role}, true, nil
}

// MemberRecord is one member row as delivered by an external membership
// provider.
type MemberRecord struct {
	MemberID string `json:"member_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at,omitempty"`
}

// memberEnvelope is the object-shaped variant some providers return instead
// of a bare array.
type memberEnvelope struct {
	Members []MemberRecord `json:"members"`
}

// DecodeMemberList normalizes the two response shapes membership providers
// are known to produce, a bare JSON array or an object with a "members"
// field, into a single ordered sequence. Anything else is a validation
// failure at the boundary.
func DecodeMemberList(data []byte) ([]MemberRecord, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty member payload", ErrValidation)
	}
	switch trimmed[0] {
	case '[':
		var records []MemberRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("%w: decode member list: %v", ErrValidation, err)
		}
		return records, nil
	case '{':
		var env memberEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("%w: decode member envelope: %v", ErrValidation, err)
		}
		if env.Members == nil {
			return nil, fmt.Errorf("%w: member envelope missing members field", ErrValidation)
		}
		return env.Members, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized member payload", ErrValidation)
	}
}

// toMember converts a provider record into a Member in the given
// organization, defaulting the role and join timestamp when absent.
func (r MemberRecord) toMember(organizationID string, now time.Time) (Member, error) {
	userID := strings.TrimSpace(r.UserID)
	if userID == "" {
		return Member{}, fmt.Errorf("%w: member record missing user_id", ErrValidation)
	}
	role := OrgRole(strings.TrimSpace(strings.ToLower(r.Role)))
	if role == "" {
		role = OrgRoleMember
	}
	if !role.Valid() {
		return Member{}, fmt.Errorf("%w: unknown organization role %q", ErrValidation, r.Role)
	}
	joined := now
	if r.JoinedAt != "" {
		parsed, err := time.Parse(time.RFC3339, r.JoinedAt)
		if err != nil {
			return Member{}, fmt.Errorf("%w: invalid joined_at: %v", ErrValidation, err)
		}
		joined = parsed
	}
	return Member{
		ID:             strings.TrimSpace(r.MemberID),
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           role,
		JoinedAt:       joined,
	}, nil
}
