package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultStart is the block time a scenario starts at unless it sets one.
const DefaultStart uint64 = 1_700_000_000

// Scenario is a scripted run against rigs compiled from CUE definitions.
type Scenario struct {
	// Name uniquely identifies this scenario (and names its golden file).
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Specs lists CUE rig definition files or directories. Relative paths
	// are resolved against the scenario file's directory.
	Specs []string `yaml:"specs"`

	// Start is the initial block time; zero means DefaultStart.
	Start uint64 `yaml:"start,omitempty"`

	// Accounts names the externally owned accounts used by steps.
	Accounts map[string]string `yaml:"accounts,omitempty"`

	// Tokens names token addresses. Named tokens that no rig uses are
	// deployed as plain ledgers (auction assets, for example).
	Tokens map[string]string `yaml:"tokens,omitempty"`

	// Protocol is the protocol fee recipient (an account name or hex
	// address). Empty disables the protocol share.
	Protocol string `yaml:"protocol,omitempty"`

	// Oracle configures the simulated randomness oracle.
	Oracle Oracle `yaml:"oracle,omitempty"`

	// Setup runs before Steps. A failing setup step aborts the run.
	Setup []Step `yaml:"setup,omitempty"`

	// Steps are the calls under test.
	Steps []Step `yaml:"steps"`

	// Assertions check the final state and event log.
	Assertions []Assertion `yaml:"assertions"`
}

// Oracle configures the simulated randomness oracle.
type Oracle struct {
	Seed string `yaml:"seed,omitempty"`
	Fee  Scalar `yaml:"fee,omitempty"`
}

// Step is one action. Everything except warp and advance runs as a
// transaction and leaves a receipt.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// From is the sender (account name or hex). Fulfill always comes from
	// the oracle and mint from the faucet.
	From string `yaml:"from,omitempty"`

	// Rig names the target rig for rig actions.
	Rig string `yaml:"rig,omitempty"`

	// Value is native currency attached to the call (randomness fees).
	Value Scalar `yaml:"value,omitempty"`

	// Args are the action arguments; see the package documentation.
	Args map[string]Arg `yaml:"args,omitempty"`

	// Expect checks the outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Error is the expected error code; empty means success.
	Error string `yaml:"error,omitempty"`

	// Result is the expected amount returned by the call (price paid,
	// amount claimed).
	Result Scalar `yaml:"result,omitempty"`
}

// Assertion checks final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Rig     string `yaml:"rig,omitempty"`
	Token   string `yaml:"token,omitempty"`
	Account string `yaml:"account,omitempty"`
	Index   uint64 `yaml:"index,omitempty"`
	Day     uint64 `yaml:"day,omitempty"`

	// Kind is the event kind counted by event_count.
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected event_count.
	Count *int `yaml:"count,omitempty"`

	// Equals is the expected amount for balance, claimable and pool.
	Equals Scalar `yaml:"equals,omitempty"`

	// Expect holds field expectations for slot and epoch.
	Expect map[string]Scalar `yaml:"expect,omitempty"`

	// Name selects the invariant.
	Name string `yaml:"name,omitempty"`
}

// Step actions.
const (
	ActionMine        = "mine"
	ActionSpin        = "spin"
	ActionFund        = "fund"
	ActionClaim       = "claim"
	ActionClaimDay    = "claim_day"
	ActionBuy         = "buy"
	ActionFulfill     = "fulfill"
	ActionWarp        = "warp"
	ActionAdvance     = "advance"
	ActionSetCapacity = "set_capacity"
	ActionMint        = "mint"
	ActionApprove     = "approve"
	ActionOracleFee   = "oracle_fee"
)

// Assertion types.
const (
	AssertBalance    = "balance"
	AssertClaimable  = "claimable"
	AssertSlot       = "slot"
	AssertEpoch      = "epoch"
	AssertPool       = "pool"
	AssertEventCount = "event_count"
	AssertInvariant  = "invariant"
)

// Invariant names.
const (
	InvariantClaimableSum = "claimable-sum"
	InvariantFundDaySum   = "fund-day-sum"
	InvariantMineSupply   = "mine-supply"
)

// Scalar is a YAML scalar kept as its literal text, so 256-bit amounts
// survive decoding without passing through float64. Amounts may use _ as a
// digit separator.
type Scalar string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", node.Line)
	}
	*s = Scalar(node.Value)
	return nil
}

// IsSet reports whether the scalar was given.
func (s Scalar) IsSet() bool { return s != "" }

// Arg is a step argument: a scalar or a list of scalars.
type Arg struct {
	Value  string
	List   []string
	IsList bool
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Arg) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		a.Value = node.Value
	case yaml.SequenceNode:
		a.IsList = true
		a.List = make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: list items must be scalars", item.Line)
			}
			a.List = append(a.List, item.Value)
		}
	default:
		return fmt.Errorf("line %d: argument must be a scalar or a list", node.Line)
	}
	return nil
}

// LoadScenario reads a scenario file, resolving spec paths against the
// file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads a scenario file, resolving relative spec
// paths against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes a scenario without resolving or checking spec
// paths. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), &s.Setup[i]); err != nil {
			return err
		}
	}
	for i := range s.Steps {
		if err := validateStep(fmt.Sprintf("steps[%d]", i), &s.Steps[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks the fields each action needs.
func validateStep(where string, st *Step) error {
	switch st.Action {
	case "":
		return fmt.Errorf("%s: action is required", where)
	case ActionMine, ActionSpin, ActionFund, ActionClaim, ActionClaimDay, ActionBuy, ActionSetCapacity:
		if st.Rig == "" {
			return fmt.Errorf("%s: rig is required for %s", where, st.Action)
		}
		if st.From == "" {
			return fmt.Errorf("%s: from is required for %s", where, st.Action)
		}
	case ActionApprove:
		if st.From == "" {
			return fmt.Errorf("%s: from is required for approve", where)
		}
		if _, ok := st.Args["token"]; !ok {
			return fmt.Errorf("%s: args.token is required for approve", where)
		}
		if _, ok := st.Args["spender"]; !ok {
			return fmt.Errorf("%s: args.spender is required for approve", where)
		}
	case ActionMint:
		for _, key := range []string{"token", "to", "amount"} {
			if _, ok := st.Args[key]; !ok {
				return fmt.Errorf("%s: args.%s is required for mint", where, key)
			}
		}
	case ActionWarp:
		if _, ok := st.Args["time"]; !ok {
			return fmt.Errorf("%s: args.time is required for warp", where)
		}
	case ActionAdvance:
		if _, ok := st.Args["seconds"]; !ok {
			return fmt.Errorf("%s: args.seconds is required for advance", where)
		}
	case ActionOracleFee:
		if _, ok := st.Args["fee"]; !ok {
			return fmt.Errorf("%s: args.fee is required for oracle_fee", where)
		}
	case ActionFulfill:
	default:
		return fmt.Errorf("%s: unknown action %q", where, st.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertBalance:
		if a.Token == "" || a.Account == "" || !a.Equals.IsSet() {
			return fmt.Errorf("assertions[%d]: token, account and equals are required for balance", index)
		}
	case AssertClaimable:
		if a.Rig == "" || a.Account == "" || !a.Equals.IsSet() {
			return fmt.Errorf("assertions[%d]: rig, account and equals are required for claimable", index)
		}
	case AssertSlot, AssertEpoch:
		if a.Rig == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: rig and expect are required for %s", index, a.Type)
		}
	case AssertPool:
		if a.Rig == "" || !a.Equals.IsSet() {
			return fmt.Errorf("assertions[%d]: rig and equals are required for pool", index)
		}
	case AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertInvariant:
		switch a.Name {
		case InvariantClaimableSum, InvariantFundDaySum, InvariantMineSupply:
		default:
			return fmt.Errorf("assertions[%d]: unknown invariant %q", index, a.Name)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
