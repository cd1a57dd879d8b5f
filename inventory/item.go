// Package inventory holds the scanned inventory model: items arranged in
// container trees, one snapshot per character and source, and the Store that
// owns every snapshot for the lifetime of the process.
package inventory

// Source labels for the listings a scan can produce.
const (
	SourceInventory     = "Inventory"
	SourceVault         = "Vault"
	SourceDeed          = "Deed"
	SourceHome          = "Home"
	SourceTraderStorage = "TraderStorage"
)

// Item is one inventory entry. Children are owned by the item; parent is a
// non-owning back-reference that no encoder ever sees.
type Item struct {
	Label         string  `yaml:"label" json:"label" plist:"label"`
	IsStorageRoot bool    `yaml:"storage,omitempty" json:"storage,omitempty" plist:"storage,omitempty"`
	Children      []*Item `yaml:"items,omitempty" json:"items,omitempty" plist:"items,omitempty"`

	parent *Item
}

// NewItem returns a detached item.
func NewItem(label string, storageRoot bool) *Item {
	return &Item{Label: label, IsStorageRoot: storageRoot}
}

// Parent returns the containing item, or nil for a snapshot root.
func (it *Item) Parent() *Item {
	if it == nil {
		return nil
	}
	return it.parent
}

// AddChild appends child and points its back-reference at it.
func (it *Item) AddChild(child *Item) *Item {
	child.parent = it
	it.Children = append(it.Children, child)
	return child
}

// Depth reports 1 for a root item, 2 for its children, and so on.
func (it *Item) Depth() int {
	depth := 0
	for cur := it; cur != nil; cur = cur.parent {
		depth++
	}
	return depth
}

// Path lists labels from the root down to this item.
func (it *Item) Path() []string {
	var rev []string
	for cur := it; cur != nil; cur = cur.parent {
		rev = append(rev, cur.Label)
	}
	out := make([]string, len(rev))
	for i, label := range rev {
		out[len(rev)-1-i] = label
	}
	return out
}

// Count returns the number of items in the subtree, this item included.
func (it *Item) Count() int {
	if it == nil {
		return 0
	}
	n := 1
	for _, child := range it.Children {
		n += child.Count()
	}
	return n
}

// StripBackRefs clears every parent pointer below items.
func StripBackRefs(items []*Item) {
	for _, it := range items {
		it.parent = nil
		StripBackRefs(it.Children)
	}
}

// RestoreBackRefs walks the trees top-down and points each item at parent.
// Roots are passed a nil parent.
func RestoreBackRefs(items []*Item, parent *Item) {
	for _, it := range items {
		it.parent = parent
		RestoreBackRefs(it.Children, it)
	}
}

// cloneItems deep-copies the forward structure. The copies carry no
// back-references.
func cloneItems(items []*Item) []*Item {
	if items == nil {
		return nil
	}
	out := make([]*Item, len(items))
	for i, it := range items {
		out[i] = &Item{
			Label:         it.Label,
			IsStorageRoot: it.IsStorageRoot,
			Children:      cloneItems(it.Children),
		}
	}
	return out
}

// Equal reports structural equality: labels, storage flags and child order.
// Back-references are not compared.
func Equal(a, b []*Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Label != b[i].Label || a[i].IsStorageRoot != b[i].IsStorageRoot {
			return false
		}
		if !Equal(a[i].Children, b[i].Children) {
			return false
		}
	}
	return true
}
