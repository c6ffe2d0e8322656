package bootstrap

import (
	"context"
	"time"

	"github.com/vsayer/materialize/internal/index"
	"github.com/vsayer/materialize/internal/state"
	"github.com/vsayer/materialize/pkg/catalog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Status reported for every replica process until the replica reports in.
const replicaStatusNotReady = "not-ready"

// builtinTableUpdates describes the whole catalog as insertions into the
// observability tables: ambient schemas and their items, databases with
// their schemas and items, comments, roles, privileges, clusters and
// replicas, the audit log, storage usage and egress addresses.
func (o *opener) builtinTableUpdates(ctx context.Context, now time.Time) ([]state.BuiltinTableUpdate, error) {
	cat := o.cat
	bySchema := make(map[catalog.SchemaID][]*index.Entry)
	for _, e := range cat.Entries() {
		bySchema[e.SchemaID] = append(bySchema[e.SchemaID], e)
	}

	var out []state.BuiltinTableUpdate
	schemaUpdates := func(s *state.Schema) {
		out = append(out, cat.PackSchemaUpdate(s, 1)...)
		for _, e := range bySchema[s.ID] {
			out = append(out, cat.PackItemUpdates(e, 1)...)
		}
	}

	schemas := cat.Schemas()
	for _, s := range schemas {
		if s.Database == nil {
			schemaUpdates(s)
		}
	}
	for _, db := range cat.Databases() {
		out = append(out, cat.PackDatabaseUpdate(db, 1)...)
		for _, s := range schemas {
			if s.Database != nil && *s.Database == db.ID {
				schemaUpdates(s)
			}
		}
	}

	for _, c := range cat.Comments() {
		out = append(out, cat.PackCommentUpdate(c, 1)...)
	}
	for _, r := range cat.Roles() {
		out = append(out, cat.PackRoleUpdate(r, 1)...)
		out = append(out, cat.PackRoleMemberUpdates(r, 1)...)
	}
	for _, p := range cat.DefaultPrivileges() {
		out = append(out, cat.PackDefaultPrivilegeUpdate(p, 1)...)
	}
	for _, item := range cat.SystemPrivileges() {
		out = append(out, cat.PackSystemPrivilegeUpdate(item, 1)...)
	}
	for _, cl := range cat.Clusters() {
		out = append(out, cat.PackClusterUpdate(cl, 1)...)
		for _, r := range cl.SortedReplicas() {
			out = append(out, cat.PackReplicaUpdate(r, 1)...)
			out = append(out, cat.PackReplicaStatusUpdates(r, replicaStatusNotReady, now, 1)...)
		}
	}

	events, err := o.store.GetAuditLogs(ctx)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		out = append(out, cat.PackAuditLogUpdate(ev, 1)...)
	}

	retention := o.cfg.StorageUsageRetention
	if retention <= 0 {
		retention = cat.Vars().StorageUsageRetention()
	}
	usage, err := o.store.GetAndPruneStorageUsage(ctx, retention, o.bootTS)
	if err != nil {
		return nil, err
	}
	for _, ev := range usage {
		out = append(out, cat.PackStorageUsageUpdate(ev, 1)...)
	}

	for _, ip := range cat.Config().EgressIPs {
		out = append(out, cat.PackEgressIPUpdate(ip, 1)...)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("table_updates", len(out)))
	return out, nil
}
