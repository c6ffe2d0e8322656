// Package render prints bootstrap results for people: a summary of the
// opened catalog, the built-in migration plan and the item listing.
//
// Styling follows the output: it is applied only when the destination is a
// terminal and NO_COLOR is unset.
package render

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vsayer/materialize/internal/index"
	"github.com/vsayer/materialize/internal/migration"
	"github.com/vsayer/materialize/pkg/catalog"
)

// Summary is the headline information of one bootstrap.
type Summary struct {
	SessionID       string
	BuildVersion    string
	LastSeenVersion string
	BootTS          uint64
	ReadOnly        bool
	Databases       int
	Schemas         int
	Roles           int
	Clusters        int
	SystemItems     int
	UserItems       int
	Migrated        int
	TableUpdates    int
}

// Printer writes styled or plain text to one destination.
type Printer struct {
	out   io.Writer
	color bool
	width int
}

// NewPrinter returns a printer. color enables lipgloss styling; width bounds
// boxed output and is ignored when not positive.
func NewPrinter(out io.Writer, color bool, width int) *Printer {
	return &Printer{out: out, color: color, width: width}
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *Printer) id(id catalog.ObjectID) string {
	if id.IsSystem() {
		return p.style(SystemIDStyle, id.String())
	}
	return p.style(UserIDStyle, id.String())
}

// Summary prints s as a labelled block.
func (p *Printer) Summary(s Summary) {
	mode := "read-write"
	if s.ReadOnly {
		mode = "read-only"
	}
	version := s.LastSeenVersion
	if version != s.BuildVersion {
		version = fmt.Sprintf("%s %s %s", s.LastSeenVersion, SymbolArrowRight, s.BuildVersion)
	}

	rows := [][2]string{
		{"version", version},
		{"mode", mode},
		{"session", s.SessionID},
		{"boot timestamp", fmt.Sprint(s.BootTS)},
		{"databases", fmt.Sprint(s.Databases)},
		{"schemas", fmt.Sprint(s.Schemas)},
		{"roles", fmt.Sprint(s.Roles)},
		{"clusters", fmt.Sprint(s.Clusters)},
		{"items", fmt.Sprintf("%d system, %d user", s.SystemItems, s.UserItems)},
		{"migrated", fmt.Sprint(s.Migrated)},
		{"table updates", fmt.Sprint(s.TableUpdates)},
	}

	var b strings.Builder
	b.WriteString(p.style(TitleStyle, SymbolCheck+" Catalog opened"))
	b.WriteString("\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %s\n", p.style(LabelStyle, fmt.Sprintf("%-15s", r[0]+":")), r[1])
	}
	text := strings.TrimSuffix(b.String(), "\n")
	if p.color {
		box := BoxStyle
		if p.width > 0 {
			box = box.MaxWidth(p.width)
		}
		text = box.Render(text)
	}
	fmt.Fprintln(p.out, text)
}

// Migration prints every migrated object as "old → new name", in the order
// the objects were re-created, followed by moved introspection indexes.
func (p *Printer) Migration(md *migration.Metadata) {
	if md == nil || md.Empty() {
		fmt.Fprintln(p.out, p.style(MutedStyle, "No built-in migrations."))
		return
	}
	fmt.Fprintln(p.out, p.style(TitleStyle, fmt.Sprintf("Migrated %d object(s):", len(md.AllCreateOps))))

	// AllCreateOps is AllDropOps reversed.
	n := len(md.AllCreateOps)
	for i, op := range md.AllCreateOps {
		old := md.AllDropOps[n-1-i]
		fmt.Fprintf(p.out, "  %s %s %s %s  %s\n",
			SymbolBullet, p.id(old), SymbolArrowRight, p.id(op.ID), op.Name)
	}

	clusters := slices.SortedFunc(maps.Keys(md.IntrospectionSourceIndexUpdates), catalog.ClusterID.Compare)
	for _, cl := range clusters {
		for _, u := range md.IntrospectionSourceIndexUpdates[cl] {
			fmt.Fprintf(p.out, "  %s cluster %s: index on %s %s %s\n",
				SymbolBullet, cl, u.LogName, SymbolArrowRight, p.id(u.IndexID))
		}
	}
}

// Items prints one line per entry with its dependencies. plan, when not
// nil, supplies cached plan descriptions.
func (p *Printer) Items(entries []*index.Entry, plan func(catalog.ObjectID) (string, bool)) {
	for _, e := range entries {
		fmt.Fprintf(p.out, "%-8s %-18s %s\n", p.id(e.ID), e.ItemType(), e.Name)
		if uses := e.Uses(); len(uses) > 0 {
			fmt.Fprintf(p.out, "         %s %s\n", p.style(LabelStyle, "uses:"), joinIDs(uses))
		}
		if usedBy := e.UsedBy(); len(usedBy) > 0 {
			fmt.Fprintf(p.out, "         %s %s\n", p.style(LabelStyle, "used by:"), joinIDs(usedBy))
		}
		if plan != nil {
			if desc, ok := plan(e.ID); ok {
				fmt.Fprintf(p.out, "         %s %s\n", p.style(LabelStyle, "plan:"), p.style(MutedStyle, desc))
			}
		}
	}
}

// Error prints err as a failure line.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.out, p.style(ErrorStyle, SymbolCross+" "+err.Error()))
}

func joinIDs(ids []catalog.ObjectID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
