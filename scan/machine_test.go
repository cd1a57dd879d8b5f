package scan

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"inventoryview/inventory"
)

type fakeHost struct {
	vars   map[string]string
	echoes []string
}

func (h *fakeHost) Variable(name string) string { return h.vars[name] }
func (h *fakeHost) Echo(text string)            { h.echoes = append(h.echoes, text) }

type countingSaver struct {
	saves int
	err   error
}

func (s *countingSaver) Save(*inventory.Store) error {
	s.saves++
	return s.err
}

type recordingNotifier struct {
	character string
	snaps     []*inventory.Snapshot
}

func (n *recordingNotifier) ScanComplete(character string, snaps []*inventory.Snapshot) {
	n.character = character
	n.snaps = snaps
}

func newTestMachine(guild string) (*Machine, *fakeHost, *countingSaver) {
	host := &fakeHost{vars: map[string]string{VarCharacterName: "Tester", VarGuild: guild, VarConnected: "1"}}
	saver := &countingSaver{}
	m := NewMachine(Options{Store: inventory.NewStore(), Host: host, Saver: saver})
	return m, host, saver
}

func feed(m *Machine, lines ...string) []Outbound {
	var out []Outbound
	for _, line := range lines {
		out = append(out, m.Consume(line)...)
	}
	return out
}

func texts(out []Outbound) []string {
	res := make([]string, len(out))
	for i, o := range out {
		res[i] = o.Text
	}
	return res
}

func TestIdleIgnoresLines(t *testing.T) {
	m, host, _ := newTestMachine("")
	if out := m.Consume("You have:"); out != nil {
		t.Fatalf("expected no output while idle, got %v", out)
	}
	if m.Store().Len() != 0 || len(host.echoes) != 0 {
		t.Fatalf("expected idle machine to leave no trace")
	}
	if m.LastText() != "" {
		t.Fatalf("expected last text untouched while idle")
	}
}

func TestInventoryScenario(t *testing.T) {
	m, host, _ := newTestMachine("")
	if got := texts(m.Start("Tester")); !reflect.DeepEqual(got, []string{CmdInventoryList}) {
		t.Fatalf("expected inventory list command, got %v", got)
	}
	out := feed(m,
		"You have:\r\n",
		"XML<pushStream id=\"inv\"/>XML",
		"",
		"  a bag",
		"     a rock",
		"Roundtime:  3 secs.",
	)
	if len(out) != 1 || out[0].Text != CmdGetVaultBook || out[0].Delay != 3*time.Second {
		t.Fatalf("expected vault book command after 3s, got %+v", out)
	}
	if m.Phase() != VaultStart {
		t.Fatalf("expected VaultStart, got %s", m.Phase())
	}
	snaps := m.Store().Inventory("Tester")
	if len(snaps) != 1 || snaps[0].SourceLabel != inventory.SourceInventory {
		t.Fatalf("expected one Inventory snapshot, got %+v", snaps)
	}
	items := snaps[0].Items
	if len(items) != 1 || items[0].Label != "a bag" {
		t.Fatalf("expected root bag, got %+v", items)
	}
	if len(items[0].Children) != 1 || items[0].Children[0].Label != "a rock" {
		t.Fatalf("expected rock inside bag, got %+v", items[0].Children)
	}
	if !containsEcho(host, "Pausing 3 seconds for RT.") {
		t.Fatalf("expected pause echo, got %v", host.echoes)
	}
}

func TestRoundtimeMismatchContinues(t *testing.T) {
	m, host, _ := newTestMachine("")
	m.Start("Tester")
	out := feed(m, "You have:", "  a bag", "Roundtime: soon")
	if len(out) != 1 || out[0].Text != CmdGetVaultBook || out[0].Delay != 0 {
		t.Fatalf("expected immediate vault book command, got %+v", out)
	}
	if m.Phase() != VaultStart {
		t.Fatalf("expected VaultStart, got %s", m.Phase())
	}
	if !containsEcho(host, "Could not read round time; continuing.") {
		t.Fatalf("expected mismatch echo, got %v", host.echoes)
	}
}

func TestDeedScenario(t *testing.T) {
	m, _, _ := newTestMachine("")
	m.Start("Tester")
	feed(m, "You have:", "Roundtime: 1 sec.")
	out := feed(m, "You get a worn vault book from your pack.")
	if got := texts(out); !reflect.DeepEqual(got, []string{CmdReadVaultBook}) {
		t.Fatalf("expected read vault book, got %v", got)
	}
	out = feed(m, "Vault Inventory:", "    a steel chest", "      -a scroll",
		"The last note in your book indicates that your vault contains 2 items.")
	if got := texts(out); !reflect.DeepEqual(got, []string{CmdStowVaultBook, CmdGetDeedRegister}) {
		t.Fatalf("expected stow + deed register, got %v", got)
	}
	out = feed(m, "You are already holding that.")
	if got := texts(out); !reflect.DeepEqual(got, []string{CmdTurnDeedToc, CmdReadDeed}) {
		t.Fatalf("expected turn + read deed, got %v", got)
	}
	feed(m, "Page -- Deed", "Page -- A title")
	out = feed(m, "Currently stored 1 of 10")
	if got := texts(out); !reflect.DeepEqual(got, []string{CmdStowDeed, CmdHomeRecall}) {
		t.Fatalf("expected stow deed + home recall, got %v", got)
	}
	if m.Phase() != HomeStart {
		t.Fatalf("expected HomeStart, got %s", m.Phase())
	}

	var deed *inventory.Snapshot
	for _, snap := range m.Store().Inventory("Tester") {
		if snap.SourceLabel == inventory.SourceDeed {
			deed = snap
		}
	}
	if deed == nil || len(deed.Items) != 1 || deed.Items[0].Label != "A title" {
		t.Fatalf("expected deed snapshot with A title, got %+v", deed)
	}
}

func TestNoVaultNoHomeNonTrader(t *testing.T) {
	m, host, saver := newTestMachine("Ranger")
	m.Start("Tester")
	feed(m, "You have:", "Roundtime: 2 secs.")
	out := feed(m, "You currently do not have a vault rented.")
	if got := texts(out); !reflect.DeepEqual(got, []string{CmdGetDeedRegister}) {
		t.Fatalf("expected deed register request, got %v", got)
	}
	if m.Phase() != DeedStart {
		t.Fatalf("expected DeedStart, got %s", m.Phase())
	}
	out = feed(m, "What were you referring to?")
	if got := texts(out); !reflect.DeepEqual(got, []string{CmdHomeRecall}) {
		t.Fatalf("expected home recall, got %v", got)
	}
	out = feed(m, "Your documentation filed with the Estate Holders does not list a home.")
	if got := texts(out); !reflect.DeepEqual(got, []string{CmdScanComplete}) {
		t.Fatalf("expected completion marker, got %v", got)
	}
	if m.Phase() != Idle {
		t.Fatalf("expected Idle, got %s", m.Phase())
	}
	if saver.saves != 1 {
		t.Fatalf("expected exactly one save, got %d", saver.saves)
	}
	feed(m, "Your documentation filed with the Estate Holders does not list a home.", ">")
	if saver.saves != 1 {
		t.Fatalf("expected no further saves once idle, got %d", saver.saves)
	}
	if !containsEcho(host, "Skipping Vault.") || !containsEcho(host, "Scan Complete.") {
		t.Fatalf("unexpected echoes %v", host.echoes)
	}
}

func TestTraderBranch(t *testing.T) {
	m, _, saver := newTestMachine("Trader")
	notifier := &recordingNotifier{}
	m.notifier = notifier
	m.Start("Tester")
	feed(m, "You have:", "Roundtime: 2 secs.", "What were you referring to?", "What were you referring to?")
	out := feed(m, "The home contains:", "Table: an oak table", "Attached: a candle")
	if len(out) != 0 {
		t.Fatalf("expected no commands inside home listing, got %v", out)
	}
	out = feed(m, ">")
	if got := texts(out); !reflect.DeepEqual(got, []string{CmdGetStorageBook}) {
		t.Fatalf("expected storage book request, got %v", got)
	}
	if m.Phase() != TraderStart {
		t.Fatalf("expected TraderStart, got %s", m.Phase())
	}
	out = feed(m, "You get a leather storage book from your satchel.")
	if got := texts(out); !reflect.DeepEqual(got, []string{CmdReadStorageBook}) {
		t.Fatalf("expected read storage book, got %v", got)
	}
	feed(m, "in the known realms since 402.", "    a crate", "        a bolt of silk")
	out = feed(m, "A notation at the bottom indicates 2 items.")
	if got := texts(out); !reflect.DeepEqual(got, []string{CmdScanComplete}) {
		t.Fatalf("expected completion marker, got %v", got)
	}
	if saver.saves != 1 {
		t.Fatalf("expected one save, got %d", saver.saves)
	}
	if notifier.character != "Tester" || len(notifier.snaps) != 3 {
		t.Fatalf("expected notifier with 3 snapshots, got %q %d", notifier.character, len(notifier.snaps))
	}
	sources := make([]string, len(notifier.snaps))
	for i, snap := range notifier.snaps {
		sources[i] = snap.SourceLabel
	}
	want := []string{inventory.SourceInventory, inventory.SourceHome, inventory.SourceTraderStorage}
	if !reflect.DeepEqual(sources, want) {
		t.Fatalf("expected sources %v, got %v", want, sources)
	}
}

func TestNonTraderNeverReachesTrader(t *testing.T) {
	for _, guild := range []string{"", "Ranger", "trader"} {
		m, _, _ := newTestMachine(guild)
		m.Start("Tester")
		feed(m, "You have:", "Roundtime: 1 sec.", "What were you referring to?", "What were you referring to?",
			"The home contains:", "Chest: a chest")
		out := feed(m, ">")
		if got := texts(out); !reflect.DeepEqual(got, []string{CmdScanComplete}) {
			t.Fatalf("guild %q: expected completion, got %v", guild, got)
		}
	}
}

func TestInsideHomeWarning(t *testing.T) {
	m, host, saver := newTestMachine("")
	m.Start("Tester")
	feed(m, "You have:", "Roundtime: 1 sec.", "What were you referring to?", "What were you referring to?")
	feed(m, "You shouldn't do that while inside of a home.  Step outside if you need to check something.")
	if m.Phase() != Idle || saver.saves != 1 {
		t.Fatalf("expected scan to finish, phase=%s saves=%d", m.Phase(), saver.saves)
	}
	if !containsEcho(host, "You cannot check the contents of your home while inside of a home. Step outside and try again.") {
		t.Fatalf("expected step-outside echo, got %v", host.echoes)
	}
}

func TestSaveErrorIsEchoed(t *testing.T) {
	m, host, saver := newTestMachine("")
	saver.err = errors.New("disk full")
	m.Start("Tester")
	feed(m, "You have:", "Roundtime: 1 sec.", "What were you referring to?", "What were you referring to?")
	out := feed(m, "Your documentation filed with the Estate Holders is empty.")
	if got := texts(out); !reflect.DeepEqual(got, []string{CmdScanComplete}) {
		t.Fatalf("expected completion despite save error, got %v", got)
	}
	if !containsEcho(host, "Error writing to InventoryView file: disk full") {
		t.Fatalf("expected save error echo, got %v", host.echoes)
	}
}

func TestInventoryAlwaysPrecedesVault(t *testing.T) {
	m, _, _ := newTestMachine("")
	m.Start("Tester")
	feed(m, "You have:")
	feed(m, "Page -- Deed", "Vault Inventory:", "The home contains:")
	if m.Phase() != Inventory {
		t.Fatalf("expected other phases' markers to be content, got %s", m.Phase())
	}
	feed(m, "Roundtime: 1 sec.")
	if m.Phase() != VaultStart {
		t.Fatalf("expected VaultStart after inventory end, got %s", m.Phase())
	}
}

func TestRestartDiscardsProgress(t *testing.T) {
	m, _, _ := newTestMachine("")
	m.Start("Tester")
	feed(m, "You have:", "  a bag")
	m.Start("Tester")
	if m.Phase() != Start {
		t.Fatalf("expected Start after restart, got %s", m.Phase())
	}
	m.Abort()
	if m.Phase() != Idle {
		t.Fatalf("expected Idle after abort, got %s", m.Phase())
	}
}

func TestTransitionTable(t *testing.T) {
	if !Start.CanTransition(Inventory) || Start.CanTransition(Vault) {
		t.Fatalf("unexpected Start transitions")
	}
	if Inventory.CanTransition(DeedStart) {
		t.Fatalf("inventory must not skip the vault stage")
	}
	if Idle.CanTransition(Start) {
		t.Fatalf("starting a scan bypasses the table")
	}
	for p := Idle; p <= Trader; p++ {
		if strings.HasPrefix(p.String(), "Unknown") {
			t.Fatalf("phase %d has no name", p)
		}
	}
}

func containsEcho(h *fakeHost, want string) bool {
	for _, e := range h.echoes {
		if e == want {
			return true
		}
	}
	return false
}
