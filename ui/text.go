// Package ui presents the stored inventories: an interactive tview browser
// when running on a terminal, or plain indented text otherwise.
package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"inventoryview/inventory"
)

// TextPresenter writes the store as indented text.
type TextPresenter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTextPresenter(w io.Writer) *TextPresenter {
	return &TextPresenter{w: w}
}

// Show writes every character, source and item, two spaces per level.
func (p *TextPresenter) Show(store *inventory.Store) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := io.WriteString(p.w, RenderText(store))
	return err
}

// RenderText formats the store for Show.
func RenderText(store *inventory.Store) string {
	var b strings.Builder
	characters := store.Characters()
	if len(characters) == 0 {
		b.WriteString("No inventories stored.\n")
		return b.String()
	}
	for _, name := range characters {
		fmt.Fprintf(&b, "%s\n", name)
		for _, snap := range store.Inventory(name) {
			fmt.Fprintf(&b, "  %s\n", snap.SourceLabel)
			writeItems(&b, snap.Items, 2)
		}
	}
	return b.String()
}

func writeItems(b *strings.Builder, items []*inventory.Item, level int) {
	for _, it := range items {
		b.WriteString(strings.Repeat("  ", level))
		b.WriteString(it.Label)
		b.WriteByte('\n')
		writeItems(b, it.Children, level+1)
	}
}
