// Package commands implements the /inventoryview (or /iv) mini-command
// surface typed at the console. Anything that is not a mini-command is handed
// back to the caller to forward to the game untouched.
package commands

import (
	"fmt"
	"log"
	"strings"

	"github.com/dustin/go-humanize"

	"inventoryview/inventory"
	"inventoryview/scan"
)

var prefixes = []string{"/inventoryview", "/iv"}

const suggestionLimit = 5

// Loader refreshes the store from persisted data.
type Loader interface {
	Load(store *inventory.Store) error
}

// Sender delivers outbound commands to the game in order.
type Sender interface {
	Send(out ...scan.Outbound)
}

// Presenter displays the store.
type Presenter interface {
	Show(store *inventory.Store) error
}

// Processor routes console input either to a mini-command or back to the game.
type Processor struct {
	machine   *scan.Machine
	host      scan.Host
	loader    Loader
	sender    Sender
	presenter Presenter
}

// NewProcessor wires the processor to the scan machine and its collaborators.
// loader and presenter may be nil.
func NewProcessor(machine *scan.Machine, host scan.Host, loader Loader, sender Sender, presenter Presenter) *Processor {
	return &Processor{
		machine:   machine,
		host:      host,
		loader:    loader,
		sender:    sender,
		presenter: presenter,
	}
}

// ProcessInput handles one line typed by the user. When handled is true the
// line was a mini-command and nothing should be forwarded; otherwise forward
// is the text to send to the game.
func (p *Processor) ProcessInput(text string) (forward string, handled bool) {
	args, ok := splitCommand(text)
	if !ok {
		return text, false
	}
	if len(args) == 0 {
		p.handleHelp()
		return "", true
	}

	switch strings.ToLower(args[0]) {
	case "scan":
		p.handleScan()
	case "open":
		p.handleOpen()
	case "debug":
		on := !p.machine.Debug()
		p.machine.SetDebug(on)
		p.host.Echo("InventoryView debug Mode " + onOff(on))
	case "lasttext":
		p.host.Echo("InventoryView debug Last Text: " + p.machine.LastText())
	case "search":
		p.handleSearch(strings.Join(args[1:], " "))
	case "list":
		p.handleList()
	default:
		p.handleHelp()
	}
	return "", true
}

// splitCommand reports whether text starts with a mini-command prefix and
// returns the words that follow it.
func splitCommand(text string) ([]string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, false
	}
	head := strings.ToLower(fields[0])
	for _, prefix := range prefixes {
		if head == prefix {
			return fields[1:], true
		}
	}
	return nil, false
}

func (p *Processor) handleHelp() {
	p.host.Echo("Inventory View plugin options:")
	p.host.Echo("/InventoryView scan  -- scan the items on the current character.")
	p.host.Echo("/InventoryView open  -- open the InventoryView Window to see items.")
	p.host.Echo("/InventoryView search <text>  -- find items across all characters.")
	p.host.Echo("/InventoryView list  -- list characters with saved inventories.")
	p.host.Echo("/InventoryView debug  -- toggle debug output.")
	p.host.Echo("/InventoryView lasttext  -- show the last line the scanner saw.")
}

func (p *Processor) handleScan() {
	if p.host.Variable(scan.VarConnected) == "0" {
		p.host.Echo("You must be connected to the server to do a scan.")
		return
	}
	store := p.machine.Store()
	if p.loader != nil {
		if err := p.loader.Load(store); err != nil {
			log.Printf("Commands: load failed: %v", err)
			p.host.Echo("Error reading InventoryView file: " + err.Error())
		} else {
			p.host.Echo("InventoryView data loaded.")
		}
	}
	character := p.host.Variable(scan.VarCharacterName)
	if removed := store.RemoveCharacter(character); removed > 0 {
		log.Printf("Commands: cleared %d snapshots for %s", removed, character)
	}
	p.sender.Send(p.machine.Start(character)...)
}

func (p *Processor) handleOpen() {
	if p.presenter == nil {
		p.host.Echo("InventoryView has no viewer configured.")
		return
	}
	if err := p.presenter.Show(p.machine.Store()); err != nil {
		log.Printf("Commands: open failed: %v", err)
		p.host.Echo("Error opening InventoryView: " + err.Error())
	}
}

func (p *Processor) handleSearch(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		p.host.Echo("Usage: /InventoryView search <text>")
		return
	}
	store := p.machine.Store()
	matches := store.Search(query)
	if len(matches) == 0 {
		suggestions := store.Suggest(query, suggestionLimit)
		if len(suggestions) == 0 {
			p.host.Echo(fmt.Sprintf("No items match %q.", query))
			return
		}
		p.host.Echo(fmt.Sprintf("No items match %q. Did you mean: %s?", query, strings.Join(suggestions, ", ")))
		return
	}
	for _, m := range matches {
		p.host.Echo(fmt.Sprintf("%s (%s): %s", m.Character, m.Source, strings.Join(m.Path, " > ")))
	}
	p.host.Echo(fmt.Sprintf("%s matches.", humanize.Comma(int64(len(matches)))))
}

func (p *Processor) handleList() {
	store := p.machine.Store()
	characters := store.Characters()
	if len(characters) == 0 {
		p.host.Echo("No inventories stored.")
		return
	}
	for _, name := range characters {
		snaps := store.Inventory(name)
		items := 0
		sources := make([]string, 0, len(snaps))
		for _, snap := range snaps {
			items += snap.Count()
			sources = append(sources, snap.SourceLabel)
		}
		p.host.Echo(fmt.Sprintf("%s: %s items in %s (%s)", name,
			humanize.Comma(int64(items)), plural(len(snaps), "source"), strings.Join(sources, ", ")))
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
