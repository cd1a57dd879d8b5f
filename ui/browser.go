package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"inventoryview/inventory"
)

const (
	uiBorderColor    = tcell.ColorGray
	uiTitleColor     = tcell.ColorHotPink
	characterColor   = tcell.ColorYellow
	sourceColor      = tcell.ColorAqua
	storageRootColor = tcell.ColorGreen
)

// Browser is a full-screen tree of characters, sources and items with a
// search field. Show blocks until the user leaves with q or Esc.
type Browser struct {
	mu      sync.Mutex
	running bool
	mouse   bool
}

func NewBrowser(enableMouse bool) *Browser {
	return &Browser{mouse: enableMouse}
}

// Show opens the browser over a read-only copy of store.
func (b *Browser) Show(store *inventory.Store) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("ui: browser already open")
	}
	b.running = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	snaps := store.Snapshots()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := tview.NewApplication().EnableMouse(b.mouse)
	tree := tview.NewTreeView()
	tree.SetBorder(true).SetTitle(" InventoryView ").SetTitleAlign(tview.AlignLeft)
	tree.SetBorderColor(uiBorderColor)
	tree.SetTitleColor(uiTitleColor)
	root := BuildTree(snaps, "")
	tree.SetRoot(root).SetCurrentNode(root)
	tree.SetSelectedFunc(func(node *tview.TreeNode) {
		node.SetExpanded(!node.IsExpanded())
	})

	filter := NewSearchFilter(ctx, func(query string) {
		app.QueueUpdateDraw(func() {
			next := BuildTree(snaps, query)
			tree.SetRoot(next).SetCurrentNode(next)
		})
	})
	defer filter.Stop()

	search := tview.NewInputField().SetLabel("Search: ").SetFieldWidth(0)
	search.SetChangedFunc(filter.SetQuery)
	search.SetDoneFunc(func(tcell.Key) {
		app.SetFocus(tree)
	})

	status := tview.NewTextView().SetDynamicColors(true)
	status.SetText(statusLine(snaps))

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(search, 1, 0, false).
		AddItem(tree, 0, 1, true).
		AddItem(status, 1, 0, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyEscape:
			app.Stop()
			return nil
		case event.Key() == tcell.KeyTab:
			if app.GetFocus() == tree {
				app.SetFocus(search)
			} else {
				app.SetFocus(tree)
			}
			return nil
		case event.Key() == tcell.KeyRune && app.GetFocus() == tree:
			switch event.Rune() {
			case 'q':
				app.Stop()
				return nil
			case '/':
				app.SetFocus(search)
				return nil
			}
		}
		return event
	})

	return app.SetRoot(layout, true).SetFocus(tree).Run()
}

// BuildTree builds the browser's node tree. With a non-empty query only items
// whose label contains it, and the containers leading to them, are kept, and
// every kept node is expanded.
func BuildTree(snaps []*inventory.Snapshot, query string) *tview.TreeNode {
	query = strings.ToLower(strings.TrimSpace(query))
	root := tview.NewTreeNode("Characters").SetColor(uiTitleColor).SetSelectable(false)

	byCharacter := make(map[string]*tview.TreeNode)
	var order []string
	for _, snap := range snaps {
		items := filterItems(snap.Items, query)
		if query != "" && len(items) == 0 {
			continue
		}
		charNode, ok := byCharacter[snap.CharacterName]
		if !ok {
			charNode = tview.NewTreeNode(snap.CharacterName).SetColor(characterColor)
			byCharacter[snap.CharacterName] = charNode
			order = append(order, snap.CharacterName)
		}
		srcNode := tview.NewTreeNode(snap.SourceLabel).SetColor(sourceColor).SetReference(snap)
		srcNode.SetExpanded(query != "")
		for _, n := range items {
			srcNode.AddChild(n)
		}
		charNode.AddChild(srcNode)
	}
	for _, name := range order {
		root.AddChild(byCharacter[name])
	}
	return root
}

func filterItems(items []*inventory.Item, query string) []*tview.TreeNode {
	var nodes []*tview.TreeNode
	for _, it := range items {
		children := filterItems(it.Children, query)
		if query != "" && len(children) == 0 && !strings.Contains(strings.ToLower(it.Label), query) {
			continue
		}
		node := tview.NewTreeNode(it.Label).SetReference(it)
		if it.IsStorageRoot {
			node.SetColor(storageRootColor)
		}
		node.SetExpanded(query != "")
		for _, c := range children {
			node.AddChild(c)
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func statusLine(snaps []*inventory.Snapshot) string {
	items := 0
	for _, snap := range snaps {
		items += snap.Count()
	}
	return fmt.Sprintf("[gray]%d snapshots, %d items  [white]Enter[gray] expand  [white]Tab[gray] search  [white]q[gray] quit", len(snaps), items)
}
