// Package scan drives the in-game inventory scan. A Machine consumes the
// session's text one line at a time, classifies it against the literals the
// game prints for each stage, emits the next commands, and feeds listing
// lines to the tree Builder.
package scan

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"inventoryview/inventory"
	"inventoryview/strutil"
)

// Session variables read by the machine.
const (
	VarCharacterName = "charactername"
	VarConnected     = "connected"
	VarGuild         = "guild"

	traderGuild = "Trader"
)

// Commands sent to the game.
const (
	CmdInventoryList   = "inventory list"
	CmdGetVaultBook    = "get my vault book"
	CmdReadVaultBook   = "read my vault book"
	CmdStowVaultBook   = "stow my vault book"
	CmdGetDeedRegister = "get my deed register"
	CmdTurnDeedToc     = "turn my deed register to contents"
	CmdReadDeed        = "read my deed register"
	CmdStowDeed        = "stow my deed register"
	CmdHomeRecall      = "home recall"
	CmdGetStorageBook  = "get my storage book"
	CmdReadStorageBook = "read my storage book"
	CmdScanComplete    = "#parse InventoryView scan complete"
)

// Game text that moves the scan along.
const (
	txtInventoryStart = "You have:"
	txtInventoryHelp  = "[Use INVENTORY HELP"
	txtRoundtime      = "Roundtime:"
	txtAlreadyHolding = "You are already holding that."
	txtNotFound       = "What were you referring to?"
	txtVaultStart     = "Vault Inventory:"
	txtNoVault        = "You currently do not have a vault rented."
	txtVaultScript    = "The script that the vault book is written in is unfamiliar to you.  You are unable to read it."
	txtVaultBlank     = "The vault book is filled with blank pages pre-printed with branch office letterhead.  An advertisement touting the services of Rundmolen Bros. Storage Co. is pasted on the inside cover."
	txtVaultEnd       = "The last note in your book indicates that your vault contains"
	txtDeedStart      = "Page -- Deed"
	txtNoDeeds        = "You haven't stored any deeds in this register."
	txtDeedEnd        = "Currently stored"
	txtHomeStart      = "The home contains:"
	txtNoHome         = "Your documentation filed with the Estate Holders"
	txtInsideHome     = "You shouldn't do that while inside of a home.  Step outside if you need to check something."
	txtHomeEnd        = ">"
	txtTraderStart    = "in the known realms since 402."
	txtTraderBook     = "The storage book is filled with complex lists of inventory that make little sense to you."
	txtTraderEnd      = "A notation at the bottom indicates"
)

var (
	roundtimeRE  = regexp.MustCompile(`^Roundtime:\s{1,3}(\d{1,3})\s{1,3}secs?\.$`)
	vaultBookRE  = regexp.MustCompile(`^You get a.*vault book.*from`)
	deedRegRE    = regexp.MustCompile(`^You get a.*deed register.*from`)
	storageBkRE  = regexp.MustCompile(`^You get a.*storage book.*from`)
	noVaultLines = map[string]struct{}{
		txtNoVault:     {},
		txtNotFound:    {},
		txtVaultScript: {},
		txtVaultBlank:  {},
	}
)

// Outbound is a command for the game. Delay is how long the sender must wait
// before sending it.
type Outbound struct {
	Text  string
	Delay time.Duration
}

// Host is the session the machine runs inside.
type Host interface {
	Variable(name string) string
	Echo(text string)
}

// Saver persists the store when a scan completes.
type Saver interface {
	Save(store *inventory.Store) error
}

// Notifier is told about every completed scan.
type Notifier interface {
	ScanComplete(character string, snaps []*inventory.Snapshot)
}

// Options configures a Machine. Saver and Notifier may be nil.
type Options struct {
	Store    *inventory.Store
	Host     Host
	Saver    Saver
	Notifier Notifier
}

type handler func(m *Machine, raw, line string) []Outbound

// Machine is the scan state machine. It is safe to call from the session read
// loop and the console concurrently; calls are serialized.
type Machine struct {
	mu       sync.Mutex
	store    *inventory.Store
	host     Host
	saver    Saver
	notifier Notifier
	builder  *Builder
	handlers map[Phase]handler

	phase     Phase
	character string
	current   *inventory.Snapshot
	cursor    Cursor
	lastText  string
	debug     bool
}

// NewMachine returns an idle machine.
func NewMachine(opts Options) *Machine {
	store := opts.Store
	if store == nil {
		store = inventory.NewStore()
	}
	return &Machine{
		store:    store,
		host:     opts.Host,
		saver:    opts.Saver,
		notifier: opts.Notifier,
		builder:  NewBuilder(store),
		handlers: map[Phase]handler{
			Start:       (*Machine).handleStart,
			Inventory:   (*Machine).handleInventory,
			VaultStart:  (*Machine).handleVaultStart,
			Vault:       (*Machine).handleVault,
			DeedStart:   (*Machine).handleDeedStart,
			Deed:        (*Machine).handleDeed,
			HomeStart:   (*Machine).handleHomeStart,
			Home:        (*Machine).handleHome,
			TraderStart: (*Machine).handleTraderStart,
			Trader:      (*Machine).handleTrader,
		},
	}
}

// Store returns the store the machine writes to.
func (m *Machine) Store() *inventory.Store {
	return m.store
}

// Phase returns the active phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// LastText returns the last trimmed line seen while a scan was active.
func (m *Machine) LastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastText
}

// SetDebug toggles per-line logging.
func (m *Machine) SetDebug(on bool) {
	m.mu.Lock()
	m.debug = on
	m.mu.Unlock()
}

// Debug reports whether per-line logging is on.
func (m *Machine) Debug() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debug
}

// Start begins a scan for character and returns the first command. Any scan
// already in progress is abandoned. Removing the character's previous
// snapshots is the caller's job.
func (m *Machine) Start(character string) []Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != Idle {
		log.Printf("Scan: restarting scan (was %s)", m.phase)
	}
	m.phase = Start
	m.character = character
	m.current = nil
	m.cursor = Cursor{Level: 1}
	return []Outbound{{Text: CmdInventoryList}}
}

// Abort returns the machine to Idle without saving.
func (m *Machine) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != Idle {
		log.Printf("Scan: aborted in %s", m.phase)
	}
	m.phase = Idle
	m.current = nil
	m.cursor = Cursor{Level: 1}
}

// Consume feeds one raw line of game text to the machine and returns the
// commands to send, in order.
func (m *Machine) Consume(raw string) []Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == Idle {
		return nil
	}
	line := strutil.TrimLine(raw)
	m.lastText = line
	if m.debug {
		log.Printf("Scan: [%s] %q", m.phase, line)
	}
	if line == "" || (strings.HasPrefix(line, "XML") && strings.HasSuffix(line, "XML")) {
		return nil
	}
	h, ok := m.handlers[m.phase]
	if !ok {
		return nil
	}
	return h(m, raw, line)
}

func (m *Machine) handleStart(_, line string) []Outbound {
	if line == txtInventoryStart {
		m.echo("Scanning Inventory.")
		m.openListing(inventory.SourceInventory, Inventory)
	}
	return nil
}

func (m *Machine) handleInventory(raw, line string) []Outbound {
	switch {
	case strings.HasPrefix(line, txtInventoryHelp):
		return nil
	case strings.HasPrefix(line, txtRoundtime):
		delay := m.roundtime(line)
		m.transition(VaultStart)
		return []Outbound{{Text: CmdGetVaultBook, Delay: delay}}
	default:
		m.place(raw, line)
		return nil
	}
}

// roundtime parses the pause demanded after the inventory listing. A line
// that does not match the expected shape yields no pause.
func (m *Machine) roundtime(line string) time.Duration {
	match := roundtimeRE.FindStringSubmatch(line)
	if match == nil {
		log.Printf("Scan: unrecognized round time %q; continuing without pause", line)
		m.echo("Could not read round time; continuing.")
		return 0
	}
	secs, err := strconv.Atoi(match[1])
	if err != nil {
		log.Printf("Scan: bad round time %q: %v", match[1], err)
		return 0
	}
	m.echo(fmt.Sprintf("Pausing %d seconds for RT.", secs))
	return time.Duration(secs) * time.Second
}

func (m *Machine) handleVaultStart(_, line string) []Outbound {
	if vaultBookRE.MatchString(line) || line == txtAlreadyHolding {
		m.echo("Scanning Vault.")
		return []Outbound{{Text: CmdReadVaultBook}}
	}
	if line == txtVaultStart {
		m.openListing(inventory.SourceVault, Vault)
		return nil
	}
	if _, ok := noVaultLines[line]; ok {
		m.echo("Skipping Vault.")
		m.transition(DeedStart)
		return []Outbound{{Text: CmdGetDeedRegister}}
	}
	return nil
}

func (m *Machine) handleVault(raw, line string) []Outbound {
	if strings.HasPrefix(line, txtVaultEnd) {
		m.transition(DeedStart)
		return []Outbound{{Text: CmdStowVaultBook}, {Text: CmdGetDeedRegister}}
	}
	m.place(raw, line)
	return nil
}

func (m *Machine) handleDeedStart(_, line string) []Outbound {
	switch {
	case deedRegRE.MatchString(line) || line == txtAlreadyHolding:
		m.echo("Scanning Deed Register.")
		return []Outbound{{Text: CmdTurnDeedToc}, {Text: CmdReadDeed}}
	case line == txtDeedStart:
		m.openListing(inventory.SourceDeed, Deed)
	case line == txtNotFound || strings.HasPrefix(line, txtNoDeeds):
		m.echo("Skipping Deed Register.")
		m.transition(HomeStart)
		return []Outbound{{Text: CmdHomeRecall}}
	}
	return nil
}

func (m *Machine) handleDeed(raw, line string) []Outbound {
	if strings.HasPrefix(line, txtDeedEnd) {
		m.transition(HomeStart)
		return []Outbound{{Text: CmdStowDeed}, {Text: CmdHomeRecall}}
	}
	m.place(raw, line)
	return nil
}

func (m *Machine) handleHomeStart(_, line string) []Outbound {
	switch {
	case line == txtHomeStart:
		m.echo("Scanning Home.")
		m.openListing(inventory.SourceHome, Home)
	case strings.HasPrefix(line, txtNoHome):
		m.echo("Skipping Home.")
		return m.traderOrFinish()
	case line == txtInsideHome:
		m.echo("You cannot check the contents of your home while inside of a home. Step outside and try again.")
		return m.traderOrFinish()
	}
	return nil
}

func (m *Machine) handleHome(raw, line string) []Outbound {
	if line == txtHomeEnd {
		return m.traderOrFinish()
	}
	m.place(raw, line)
	return nil
}

func (m *Machine) handleTraderStart(_, line string) []Outbound {
	switch {
	case storageBkRE.MatchString(line) || line == txtAlreadyHolding:
		m.echo("Scanning Trader Storage.")
		return []Outbound{{Text: CmdReadStorageBook}}
	case line == txtTraderStart:
		m.openListing(inventory.SourceTraderStorage, Trader)
	case line == txtNotFound || line == txtTraderBook:
		m.echo("Skipping Trader Storage.")
		return m.finish()
	}
	return nil
}

func (m *Machine) handleTrader(raw, line string) []Outbound {
	if strings.HasPrefix(line, txtTraderEnd) {
		return m.finish()
	}
	m.place(raw, line)
	return nil
}

func (m *Machine) traderOrFinish() []Outbound {
	if m.variable(VarGuild) == traderGuild {
		m.transition(TraderStart)
		return []Outbound{{Text: CmdGetStorageBook}}
	}
	return m.finish()
}

// finish ends the scan: Idle, completion notice, marker command, save.
func (m *Machine) finish() []Outbound {
	if !m.transition(Idle) {
		return nil
	}
	m.current = nil
	m.echo("Scan Complete.")
	if m.saver != nil {
		if err := m.saver.Save(m.store); err != nil {
			log.Printf("Scan: save failed: %v", err)
			m.echo("Error writing to InventoryView file: " + err.Error())
		}
	}
	if m.notifier != nil {
		m.notifier.ScanComplete(m.character, m.store.Inventory(m.character))
	}
	return []Outbound{{Text: CmdScanComplete}}
}

func (m *Machine) openListing(source string, next Phase) {
	if !m.transition(next) {
		return
	}
	m.current = m.store.Append(m.character, source)
	m.cursor = Cursor{Level: 1}
}

func (m *Machine) place(raw, line string) {
	rule, ok := m.phase.Rule()
	if !ok || m.current == nil {
		return
	}
	_, m.cursor = m.builder.Place(m.current, Line{Text: line, Spaces: strutil.LeadingSpaces(raw)}, rule, m.cursor)
}

func (m *Machine) transition(next Phase) bool {
	if !m.phase.CanTransition(next) {
		log.Printf("Scan: refusing transition %s -> %s", m.phase, next)
		return false
	}
	if m.debug {
		log.Printf("Scan: %s -> %s", m.phase, next)
	}
	m.phase = next
	return true
}

func (m *Machine) echo(text string) {
	if m.host != nil {
		m.host.Echo(text)
	}
}

func (m *Machine) variable(name string) string {
	if m.host == nil {
		return ""
	}
	return m.host.Variable(name)
}
