package inventory

import (
	"reflect"
	"testing"
)

func sampleTree() []*Item {
	bag := NewItem("a leather bag", false)
	pouch := bag.AddChild(NewItem("a gem pouch", false))
	pouch.AddChild(NewItem("a blue gem", false))
	bag.AddChild(NewItem("a rock", false))
	chest := NewItem("a steel chest", true)
	chest.AddChild(NewItem("a scroll", false))
	return []*Item{bag, chest}
}

func TestStripRestoreRoundTrip(t *testing.T) {
	orig := sampleTree()
	copyTree := cloneItems(orig)
	RestoreBackRefs(copyTree, nil)

	StripBackRefs(copyTree)
	for _, it := range copyTree {
		if it.Children[0].Parent() != nil {
			t.Fatalf("expected back-references cleared after strip")
		}
	}
	RestoreBackRefs(copyTree, nil)

	if !Equal(orig, copyTree) {
		t.Fatalf("expected restored tree to equal original")
	}
	gem := copyTree[0].Children[0].Children[0]
	if gem.Depth() != 3 {
		t.Fatalf("expected depth 3, got %d", gem.Depth())
	}
	if gem.Parent() != copyTree[0].Children[0] {
		t.Fatalf("expected gem parent to be the pouch")
	}
	if copyTree[0].Parent() != nil {
		t.Fatalf("expected root to have no parent")
	}
	want := []string{"a leather bag", "a gem pouch", "a blue gem"}
	if got := gem.Path(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected path %v, got %v", want, got)
	}
}

func TestEqualDetectsDifferences(t *testing.T) {
	a := sampleTree()
	b := sampleTree()
	b[1].IsStorageRoot = false
	if Equal(a, b) {
		t.Fatalf("expected storage flag difference to be detected")
	}
	c := sampleTree()
	c[0].Children[0], c[0].Children[1] = c[0].Children[1], c[0].Children[0]
	if Equal(a, c) {
		t.Fatalf("expected child order difference to be detected")
	}
}

func TestStoreRemoveCharacter(t *testing.T) {
	s := NewStore()
	s.Append("Alice", SourceInventory)
	s.Append("Bob", SourceInventory)
	s.Append("Alice", SourceVault)

	if removed := s.RemoveCharacter("Alice"); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if got := s.Characters(); !reflect.DeepEqual(got, []string{"Bob"}) {
		t.Fatalf("expected only Bob left, got %v", got)
	}
}

func TestStoreCopiesAreIsolated(t *testing.T) {
	s := NewStore()
	snap := s.Append("Alice", SourceInventory)
	root := s.AppendRoot(snap, NewItem("a bag", false))
	s.AppendChild(root, NewItem("a rock", false))

	view := s.Inventory("Alice")
	if len(view) != 1 || view[0].Count() != 2 {
		t.Fatalf("expected one snapshot with 2 items, got %+v", view)
	}
	if view[0].Items[0].Children[0].Parent() != view[0].Items[0] {
		t.Fatalf("expected copy to carry restored back-references")
	}
	view[0].Items[0].Label = "changed"
	if s.Inventory("Alice")[0].Items[0].Label != "a bag" {
		t.Fatalf("expected store to be unaffected by edits to a copy")
	}

	forward := s.Forward()
	if forward[0].Items[0].Children[0].Parent() != nil {
		t.Fatalf("expected forward copy to carry no back-references")
	}
	if root.Children[0].Parent() != root {
		t.Fatalf("expected live tree to keep its back-references")
	}
}

func TestStoreSearchAndSuggest(t *testing.T) {
	s := NewStore()
	snap := s.Append("Alice", SourceInventory)
	for _, it := range sampleTree() {
		s.AppendRoot(snap, it)
	}
	RestoreBackRefs(snap.Items, nil)
	vault := s.Append("Bob", SourceVault)
	s.AppendRoot(vault, NewItem("a GEM-studded belt", true))

	matches := s.Search("gem")
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d: %+v", len(matches), matches)
	}
	if matches[2].Character != "Bob" || matches[2].Source != SourceVault {
		t.Fatalf("unexpected third match %+v", matches[2])
	}
	if got := matches[1].Path; !reflect.DeepEqual(got, []string{"a leather bag", "a gem pouch", "a blue gem"}) {
		t.Fatalf("unexpected path %v", got)
	}
	if got := s.Search("   "); got != nil {
		t.Fatalf("expected no matches for blank query, got %v", got)
	}

	suggestions := s.Suggest("scrol", 3)
	if len(suggestions) == 0 || suggestions[0] != "scroll" {
		t.Fatalf("expected scroll suggestion, got %v", suggestions)
	}
}
