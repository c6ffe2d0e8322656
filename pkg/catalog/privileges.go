package catalog

import (
	"fmt"
	"slices"
	"strings"
)

// AclMode is a bit set of privileges in PostgreSQL's letter notation.
type AclMode uint64

const (
	AclInsert        AclMode = 1 << 0
	AclSelect        AclMode = 1 << 1
	AclUpdate        AclMode = 1 << 2
	AclDelete        AclMode = 1 << 3
	AclUsage         AclMode = 1 << 8
	AclCreate        AclMode = 1 << 9
	AclCreateRole    AclMode = 1 << 62
	AclCreateDB      AclMode = 1 << 61
	AclCreateCluster AclMode = 1 << 60
)

var aclLetters = []struct {
	mode   AclMode
	letter byte
}{
	{AclInsert, 'a'},
	{AclSelect, 'r'},
	{AclUpdate, 'w'},
	{AclDelete, 'd'},
	{AclUsage, 'U'},
	{AclCreate, 'C'},
	{AclCreateRole, 'R'},
	{AclCreateDB, 'B'},
	{AclCreateCluster, 'N'},
}

func (m AclMode) String() string {
	var b strings.Builder
	for _, l := range aclLetters {
		if m&l.mode != 0 {
			b.WriteByte(l.letter)
		}
	}
	return b.String()
}

// ParseAclMode parses the letter notation produced by AclMode.String.
func ParseAclMode(s string) (AclMode, error) {
	var m AclMode
	for i := 0; i < len(s); i++ {
		found := false
		for _, l := range aclLetters {
			if l.letter == s[i] {
				m |= l.mode
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown privilege %q in %q", s[i], s)
		}
	}
	return m, nil
}

// AllPrivileges returns every privilege that applies to objects of type t.
func AllPrivileges(t ItemType) AclMode {
	switch t {
	case ItemTypeTable:
		return AclInsert | AclSelect | AclUpdate | AclDelete
	case ItemTypeView, ItemTypeMaterializedView, ItemTypeSource:
		return AclSelect
	case ItemTypeType, ItemTypeSecret, ItemTypeConnection:
		return AclUsage
	default:
		return 0
	}
}

// AclItem grants Mode on an object to Grantee, recorded as granted by Grantor.
type AclItem struct {
	Grantee RoleID  `json:"grantee"`
	Grantor RoleID  `json:"grantor"`
	Mode    AclMode `json:"mode"`
}

func (a AclItem) String() string {
	grantee := a.Grantee.String()
	if a.Grantee == PublicRoleID {
		grantee = ""
	}
	return fmt.Sprintf("%s=%s/%s", grantee, a.Mode, a.Grantor)
}

// PrivilegeMap is the access control list of one object, ordered by grantee
// and then grantor.
type PrivilegeMap []AclItem

// NewPrivilegeMap normalizes items into a PrivilegeMap.
func NewPrivilegeMap(items ...AclItem) PrivilegeMap {
	out := slices.Clone(items)
	slices.SortFunc(out, func(a, b AclItem) int {
		if c := a.Grantee.Compare(b.Grantee); c != 0 {
			return c
		}
		return a.Grantor.Compare(b.Grantor)
	})
	return out
}

// Strings renders every item in order.
func (p PrivilegeMap) Strings() []string {
	out := make([]string, len(p))
	for i, item := range p {
		out[i] = item.String()
	}
	return out
}
