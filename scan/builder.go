package scan

import (
	"strings"

	"inventoryview/inventory"
	"inventoryview/strutil"
)

const attachedPrefix = "Attached:"

// Line is one content line: the trimmed text and the indentation it arrived
// with.
type Line struct {
	Text   string
	Spaces int
}

// Cursor is the insertion point while a listing is being read. Level is the
// depth of Item.
type Cursor struct {
	Item  *inventory.Item
	Level int
}

// Builder turns listing lines into tree mutations on the store.
type Builder struct {
	store *inventory.Store
}

// NewBuilder returns a builder that writes through store.
func NewBuilder(store *inventory.Store) *Builder {
	return &Builder{store: store}
}

// Depth maps leading spaces to nesting depth for the indented sources.
// Deed and Home are flat and always report 1. Depth is never below 1.
func (r Rule) Depth(spaces int) int {
	depth := 1
	switch r {
	case RuleInventory:
		// 2, 5, 8, 11, ... spaces for depth 1, 2, 3, 4, ...
		depth = (spaces + 1) / 3
	case RuleVault:
		if spaces > 4 {
			depth = 1 + (spaces-4)/2
		}
	case RuleTrader:
		switch spaces {
		case 4:
			depth = 1
		case 8:
			depth = 2
		default:
			depth = 3
		}
	}
	if depth < 1 {
		depth = 1
	}
	return depth
}

// storageRoots reports whether depth-1 items of the source are storage
// containers in their own right.
func (r Rule) storageRoots() bool {
	return r == RuleVault || r == RuleHome || r == RuleTrader
}

// Place adds line to snap according to rule and returns the new item along
// with the advanced cursor.
func (b *Builder) Place(snap *inventory.Snapshot, line Line, rule Rule, cur Cursor) (*inventory.Item, Cursor) {
	switch rule {
	case RuleDeed:
		it := b.store.AppendRoot(snap, inventory.NewItem(strutil.After(line.Text, "--"), false))
		return it, Cursor{Item: it, Level: 1}
	case RuleHome:
		return b.placeHome(snap, line, cur)
	}

	label := stripBullet(line.Text)
	level := rule.Depth(line.Spaces)
	it := inventory.NewItem(label, false)

	switch {
	case level == 1:
		it.IsStorageRoot = rule.storageRoots()
		b.store.AppendRoot(snap, it)
	case cur.Item == nil:
		b.store.AppendRoot(snap, it)
	case level == cur.Level:
		b.attach(snap, cur.Item.Parent(), it)
	case level > cur.Level:
		b.store.AppendChild(cur.Item, it)
	default:
		// Climb by real depth; after a multi-level jump the recorded level
		// runs ahead of the tree.
		anc := cur.Item.Parent()
		for anc != nil && anc.Depth() >= level {
			anc = anc.Parent()
		}
		b.attach(snap, anc, it)
	}
	return it, Cursor{Item: it, Level: level}
}

// placeHome handles the flat home listing: furniture lines are storage roots
// labeled after the first colon; Attached: lines hang off the furniture.
func (b *Builder) placeHome(snap *inventory.Snapshot, line Line, cur Cursor) (*inventory.Item, Cursor) {
	if strings.HasPrefix(line.Text, attachedPrefix) {
		it := inventory.NewItem(strings.TrimSpace(strings.TrimPrefix(line.Text, attachedPrefix)), false)
		target := cur.Item
		if target != nil && target.Parent() != nil {
			target = target.Parent()
		}
		b.attach(snap, target, it)
		return it, Cursor{Item: it, Level: it.Depth()}
	}
	it := b.store.AppendRoot(snap, inventory.NewItem(strutil.After(line.Text, ":"), true))
	return it, Cursor{Item: it, Level: 1}
}

func (b *Builder) attach(snap *inventory.Snapshot, parent, it *inventory.Item) {
	if parent == nil {
		b.store.AppendRoot(snap, it)
		return
	}
	b.store.AppendChild(parent, it)
}

func stripBullet(text string) string {
	if strings.HasPrefix(text, "-") {
		return strings.TrimSpace(text[1:])
	}
	return text
}
