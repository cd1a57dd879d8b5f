package scan

import "inventoryview/inventory"

// Phase is the current stage of the scan protocol.
type Phase int

const (
	Idle Phase = iota
	Start
	Inventory
	VaultStart
	Vault
	DeedStart
	Deed
	HomeStart
	Home
	TraderStart
	Trader
)

var phaseNames = [...]string{
	Idle:        "Idle",
	Start:       "Start",
	Inventory:   "Inventory",
	VaultStart:  "VaultStart",
	Vault:       "Vault",
	DeedStart:   "DeedStart",
	Deed:        "Deed",
	HomeStart:   "HomeStart",
	Home:        "Home",
	TraderStart: "TraderStart",
	Trader:      "Trader",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "Unknown"
	}
	return phaseNames[p]
}

// transitions lists the phases reachable from each phase while consuming
// lines. Starting a scan and aborting one bypass the table.
var transitions = map[Phase][]Phase{
	Idle:        nil,
	Start:       {Inventory},
	Inventory:   {VaultStart},
	VaultStart:  {Vault, DeedStart},
	Vault:       {DeedStart},
	DeedStart:   {Deed, HomeStart},
	Deed:        {HomeStart},
	HomeStart:   {Home, TraderStart, Idle},
	Home:        {TraderStart, Idle},
	TraderStart: {Trader, Idle},
	Trader:      {Idle},
}

// CanTransition reports whether next may follow p.
func (p Phase) CanTransition(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Rule returns the indentation rule for a listing phase. ok is false for
// phases that do not carry item lines.
func (p Phase) Rule() (rule Rule, ok bool) {
	switch p {
	case Inventory:
		return RuleInventory, true
	case Vault:
		return RuleVault, true
	case Deed:
		return RuleDeed, true
	case Home:
		return RuleHome, true
	case Trader:
		return RuleTrader, true
	default:
		return 0, false
	}
}

// Rule selects how leading spaces map to nesting depth for a source.
type Rule int

const (
	RuleInventory Rule = iota
	RuleVault
	RuleDeed
	RuleHome
	RuleTrader
)

// Source returns the snapshot source label the rule builds.
func (r Rule) Source() string {
	switch r {
	case RuleInventory:
		return inventory.SourceInventory
	case RuleVault:
		return inventory.SourceVault
	case RuleDeed:
		return inventory.SourceDeed
	case RuleHome:
		return inventory.SourceHome
	case RuleTrader:
		return inventory.SourceTraderStorage
	default:
		return ""
	}
}
