package catalog

import (
	"fmt"
	"strconv"
)

// Namespace distinguishes system-owned identifiers from user-owned ones.
type Namespace uint8

const (
	// NamespaceSystem is reserved for built-in objects.
	NamespaceSystem Namespace = iota + 1
	// NamespaceUser holds objects created by users.
	NamespaceUser
	// NamespacePublic is only valid for the PUBLIC pseudo-role.
	NamespacePublic
)

// Prefix returns the single-letter textual prefix of the namespace.
func (n Namespace) Prefix() string {
	switch n {
	case NamespaceSystem:
		return "s"
	case NamespaceUser:
		return "u"
	case NamespacePublic:
		return "p"
	default:
		return "?"
	}
}

func parseNamespaced(s string, allowPublic bool) (Namespace, uint64, error) {
	if len(s) < 2 {
		if allowPublic && s == "p" {
			return NamespacePublic, 0, nil
		}
		return 0, 0, fmt.Errorf("invalid identifier %q", s)
	}
	var ns Namespace
	switch s[0] {
	case 's':
		ns = NamespaceSystem
	case 'u':
		ns = NamespaceUser
	default:
		return 0, 0, fmt.Errorf("invalid identifier %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid identifier %q: %w", s, err)
	}
	return ns, v, nil
}

func compareNamespaced(an Namespace, av uint64, bn Namespace, bv uint64) int {
	switch {
	case an < bn:
		return -1
	case an > bn:
		return 1
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

// ObjectID is the permanent identifier of a catalog item.
// System ids are never handed to user objects and vice versa.
type ObjectID struct {
	Namespace Namespace
	Value     uint64
}

// SystemID returns the system object id n.
func SystemID(n uint64) ObjectID { return ObjectID{Namespace: NamespaceSystem, Value: n} }

// UserID returns the user object id n.
func UserID(n uint64) ObjectID { return ObjectID{Namespace: NamespaceUser, Value: n} }

// ParseObjectID parses the textual form produced by ObjectID.String.
func ParseObjectID(s string) (ObjectID, error) {
	ns, v, err := parseNamespaced(s, false)
	if err != nil {
		return ObjectID{}, err
	}
	return ObjectID{Namespace: ns, Value: v}, nil
}

// IsSystem reports whether the id belongs to the system namespace.
func (id ObjectID) IsSystem() bool { return id.Namespace == NamespaceSystem }

// IsUser reports whether the id belongs to the user namespace.
func (id ObjectID) IsUser() bool { return id.Namespace == NamespaceUser }

func (id ObjectID) String() string {
	return id.Namespace.Prefix() + strconv.FormatUint(id.Value, 10)
}

// Compare orders ids by namespace (system first) and then by value.
func (id ObjectID) Compare(other ObjectID) int {
	return compareNamespaced(id.Namespace, id.Value, other.Namespace, other.Value)
}

// Less reports whether id sorts before other.
func (id ObjectID) Less(other ObjectID) bool { return id.Compare(other) < 0 }

// MarshalText implements encoding.TextMarshaler.
func (id ObjectID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ObjectID) UnmarshalText(b []byte) error {
	parsed, err := ParseObjectID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ClusterID identifies a compute cluster.
type ClusterID struct {
	Namespace Namespace
	Value     uint64
}

// SystemClusterID returns the system cluster id n.
func SystemClusterID(n uint64) ClusterID { return ClusterID{Namespace: NamespaceSystem, Value: n} }

// UserClusterID returns the user cluster id n.
func UserClusterID(n uint64) ClusterID { return ClusterID{Namespace: NamespaceUser, Value: n} }

// ParseClusterID parses "s<n>" or "u<n>".
func ParseClusterID(s string) (ClusterID, error) {
	ns, v, err := parseNamespaced(s, false)
	if err != nil {
		return ClusterID{}, err
	}
	return ClusterID{Namespace: ns, Value: v}, nil
}

func (id ClusterID) String() string {
	return id.Namespace.Prefix() + strconv.FormatUint(id.Value, 10)
}

// Compare orders cluster ids the same way object ids are ordered.
func (id ClusterID) Compare(other ClusterID) int {
	return compareNamespaced(id.Namespace, id.Value, other.Namespace, other.Value)
}

// MarshalText implements encoding.TextMarshaler.
func (id ClusterID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ClusterID) UnmarshalText(b []byte) error {
	parsed, err := ParseClusterID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ReplicaID identifies a replica within the whole environment.
type ReplicaID struct {
	Namespace Namespace
	Value     uint64
}

// ParseReplicaID parses "s<n>" or "u<n>".
func ParseReplicaID(s string) (ReplicaID, error) {
	ns, v, err := parseNamespaced(s, false)
	if err != nil {
		return ReplicaID{}, err
	}
	return ReplicaID{Namespace: ns, Value: v}, nil
}

func (id ReplicaID) String() string {
	return id.Namespace.Prefix() + strconv.FormatUint(id.Value, 10)
}

// Compare orders replica ids the same way object ids are ordered.
func (id ReplicaID) Compare(other ReplicaID) int {
	return compareNamespaced(id.Namespace, id.Value, other.Namespace, other.Value)
}

// MarshalText implements encoding.TextMarshaler.
func (id ReplicaID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ReplicaID) UnmarshalText(b []byte) error {
	parsed, err := ParseReplicaID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// RoleID identifies a role. The PUBLIC pseudo-role has its own namespace.
type RoleID struct {
	Namespace Namespace
	Value     uint64
}

// PublicRoleID is the implicit role every other role is a member of.
var PublicRoleID = RoleID{Namespace: NamespacePublic}

// ParseRoleID parses "s<n>", "u<n>" or "p".
func ParseRoleID(s string) (RoleID, error) {
	ns, v, err := parseNamespaced(s, true)
	if err != nil {
		return RoleID{}, err
	}
	return RoleID{Namespace: ns, Value: v}, nil
}

func (id RoleID) String() string {
	if id.Namespace == NamespacePublic {
		return "p"
	}
	return id.Namespace.Prefix() + strconv.FormatUint(id.Value, 10)
}

// IsSystem reports whether the role is built in.
func (id RoleID) IsSystem() bool { return id.Namespace == NamespaceSystem }

// Compare orders role ids the same way object ids are ordered.
func (id RoleID) Compare(other RoleID) int {
	return compareNamespaced(id.Namespace, id.Value, other.Namespace, other.Value)
}

// MarshalText implements encoding.TextMarshaler.
func (id RoleID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *RoleID) UnmarshalText(b []byte) error {
	parsed, err := ParseRoleID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// DatabaseID identifies a database.
type DatabaseID uint64

// SchemaID identifies a schema, ambient or database-scoped.
type SchemaID uint64
