package engine

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/steelbid/followup/internal/proposal"
)

// Group is the set of due proposals consolidated into one outbound
// message. Ephemeral: built during collection, consumed during the
// send phase, never persisted.
type Group struct {
	// Key is the canonical recipient email used for grouping.
	Key string

	// Email is the first-seen original spelling of the address; it is
	// what actually goes on the wire.
	Email string

	// Name is the first-seen contact display name.
	Name string

	// Facts in discovery order across years and sheets. Order is
	// stable so dry-run output is diffable against a live run.
	Facts []proposal.Fact
}

// CanonicalEmail normalizes an address for use as a group key:
// NFC-normalized, trimmed, lowercased. Grouping must not split on
// case or stray whitespace differences between sheets.
func CanonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(email)))
}

// Grouper consolidates due proposals by recipient.
//
// Groups come back in first-seen key order. Within a group, insertion
// order is preserved.
type Grouper struct {
	order  []string
	groups map[string]*Group
}

// NewGrouper creates an empty Grouper.
func NewGrouper() *Grouper {
	return &Grouper{groups: make(map[string]*Group)}
}

// Add appends a due proposal to its recipient's group, creating the
// group on first sight.
func (g *Grouper) Add(f proposal.Fact) {
	key := CanonicalEmail(f.Email)
	grp, ok := g.groups[key]
	if !ok {
		grp = &Group{Key: key, Email: strings.TrimSpace(f.Email), Name: f.ContactName}
		g.groups[key] = grp
		g.order = append(g.order, key)
	}
	grp.Facts = append(grp.Facts, f)
}

// Groups returns all groups in first-seen order.
func (g *Grouper) Groups() []*Group {
	out := make([]*Group, 0, len(g.order))
	for _, key := range g.order {
		out = append(out, g.groups[key])
	}
	return out
}

// Len returns the number of groups collected so far.
func (g *Grouper) Len() int {
	return len(g.order)
}
