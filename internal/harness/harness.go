package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/auction"
	"github.com/roach88/rigs/internal/compiler"
	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/fund"
	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/mine"
	"github.com/roach88/rigs/internal/registry"
	"github.com/roach88/rigs/internal/spin"
	"github.com/roach88/rigs/internal/token"
	"github.com/roach88/rigs/internal/vrf"
)

// Well-known accounts every scenario can name.
var (
	DeployerAddress = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	RegistryAddress = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	OracleAddress   = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	FaucetAddress   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
)

// Option configures a run.
type Option func(*options)

type options struct {
	sinks    []engine.Sink
	receipts []engine.ReceiptSink
	logger   *slog.Logger
}

// WithEventSink forwards every event to s (the store, for example).
func WithEventSink(s engine.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithReceiptSink forwards every receipt to s.
func WithReceiptSink(s engine.ReceiptSink) Option {
	return func(o *options) { o.receipts = append(o.receipts, s) }
}

// WithLogger sets the step logger (default discards).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Harness holds one scenario's deployment.
type Harness struct {
	scenario *Scenario
	book     *AddressBook
	defs     *compiler.Definitions
	bank     *token.Bank
	registry *registry.Registry
	oracle   *vrf.Simulator
	chain    *engine.Chain
	recorder *engine.Recorder
	emitter  engine.Emitter // recorder plus the step log
	receipts *receiptLog
	logger   *slog.Logger

	mines    map[string]*mine.Rig
	spins    map[string]*spin.Rig
	funds    map[string]*fund.Rig
	auctions map[string]*auction.Auction

	// donations mirrors every successful fund call for the fund-day-sum
	// invariant.
	donations map[donationKey]*uint256.Int
}

type donationKey struct {
	rig     common.Address
	day     uint64
	account common.Address
}

// eventLog writes every committed event to the step logger.
type eventLog struct {
	logger *slog.Logger
}

func (l eventLog) Emit(tx engine.Tx, rig common.Address, records ...engine.Record) {
	for _, rec := range records {
		l.logger.Debug("event", "tx_id", tx.ID, "rig", rig.Hex(), "kind", rec.Kind)
	}
}

// receiptLog keeps receipts in execution order.
type receiptLog struct {
	receipts []ir.Receipt
}

func (l *receiptLog) WriteReceipt(_ context.Context, r ir.Receipt) error {
	l.receipts = append(l.receipts, r)
	return nil
}

// Run deploys the scenario's rigs on a fresh chain, executes setup and
// steps, and evaluates the assertions.
//
// Execution flow:
//  1. Compile the CUE rig definitions
//  2. Deploy tokens, registry, oracle and rigs
//  3. Execute setup steps (any unexpected failure aborts the run)
//  4. Execute steps, checking each expect clause
//  5. Evaluate assertions against the final state
//
// The returned error covers problems with the scenario itself; a rig
// behaving unexpectedly is reported through Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	h, err := deploy(scenario, o)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy scenario: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := make(chan error, 1)
	go func() { loop <- h.chain.Run(ctx) }()
	defer func() {
		h.chain.Stop()
		<-loop
	}()

	result := NewResult(h.book)

	for i, st := range scenario.Setup {
		sr, err := h.execute(ctx, fmt.Sprintf("setup[%d]", i), st)
		if err != nil {
			return nil, err
		}
		if msg := checkStep(fmt.Sprintf("setup[%d]", i), st, sr); msg != "" {
			return nil, fmt.Errorf("failed to execute setup: %s", msg)
		}
	}

	for i, st := range scenario.Steps {
		where := fmt.Sprintf("steps[%d]", i)
		sr, err := h.execute(ctx, where, st)
		if err != nil {
			return nil, err
		}
		result.Steps = append(result.Steps, sr)
		if msg := checkStep(where, st, sr); msg != "" {
			result.AddError(msg)
		}
	}

	result.Events = h.recorder.Events()
	result.Receipts = append([]ir.Receipt(nil), h.receipts.receipts...)

	for _, msg := range EvaluateAssertions(h, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// deploy compiles the definitions and stands up every collaborator.
func deploy(scenario *Scenario, o options) (*Harness, error) {
	defs, err := compiler.CompileFiles(scenario.Specs...)
	if err != nil {
		return nil, err
	}

	start := scenario.Start
	if start == 0 {
		start = DefaultStart
	}

	h := &Harness{
		scenario:  scenario,
		book:      NewAddressBook(),
		defs:      defs,
		bank:      token.NewBank(),
		receipts:  &receiptLog{},
		logger:    o.logger,
		mines:     make(map[string]*mine.Rig),
		spins:     make(map[string]*spin.Rig),
		funds:     make(map[string]*fund.Rig),
		auctions:  make(map[string]*auction.Auction),
		donations: make(map[donationKey]*uint256.Int),
	}

	if err := h.nameAccounts(); err != nil {
		return nil, err
	}
	if err := h.deployTokens(); err != nil {
		return nil, err
	}

	h.recorder = engine.NewRecorder(o.sinks...)

	var protocol common.Address
	if scenario.Protocol != "" {
		if protocol, err = h.book.Resolve(scenario.Protocol); err != nil {
			return nil, fmt.Errorf("protocol: %w", err)
		}
	}
	h.registry, err = registry.New(RegistryAddress, DeployerAddress, protocol, nil)
	if err != nil {
		return nil, err
	}

	fee := new(uint256.Int)
	if scenario.Oracle.Fee.IsSet() {
		if fee, err = parseAmount(string(scenario.Oracle.Fee)); err != nil {
			return nil, fmt.Errorf("oracle.fee: %w", err)
		}
	}
	seed := scenario.Oracle.Seed
	if seed == "" {
		seed = scenario.Name
	}
	h.oracle = vrf.NewSimulator(OracleAddress, seed, fee)
	h.oracle.UseJournal(h.bank)
	h.emitter = engine.MultiEmitter{h.recorder, eventLog{h.logger}}

	if err := h.deployRigs(start); err != nil {
		return nil, err
	}

	chainOpts := []engine.ChainOption{
		engine.WithTxIDs(engine.NewSequentialGenerator("tx")),
		engine.WithReceiptSink(h.receipts),
	}
	for _, s := range o.receipts {
		chainOpts = append(chainOpts, engine.WithReceiptSink(s))
	}
	h.chain = engine.NewChain(start, chainOpts...)

	h.logger.Info("scenario deployed",
		"scenario", scenario.Name,
		"rigs", defs.Count(),
		"tokens", len(h.bank.Tokens()),
		"start", start,
	)
	return h, nil
}

// nameAccounts fills the address book: fixed accounts, scenario accounts,
// rigs and scenario tokens, in that order.
func (h *Harness) nameAccounts() error {
	fixed := []struct {
		name string
		addr common.Address
	}{
		{"zero", common.Address{}},
		{"dead", token.DeadAddress},
		{"deployer", DeployerAddress},
		{"registry", RegistryAddress},
		{"oracle", OracleAddress},
		{"faucet", FaucetAddress},
	}
	for _, f := range fixed {
		if err := h.book.Add(f.name, f.addr); err != nil {
			return err
		}
	}

	if err := h.addNamed("accounts", h.scenario.Accounts); err != nil {
		return err
	}
	for _, rig := range h.defs.Rigs() {
		if err := h.book.Add(rig.Name, rig.Address); err != nil {
			return fmt.Errorf("rig %s: %w", rig.Name, err)
		}
	}
	return h.addNamed("tokens", h.scenario.Tokens)
}

func (h *Harness) addNamed(section string, named map[string]string) error {
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		hex := named[name]
		if !common.IsHexAddress(hex) {
			return fmt.Errorf("%s.%s: %q is not an address", section, name, hex)
		}
		if err := h.book.Add(name, common.HexToAddress(hex)); err != nil {
			return fmt.Errorf("%s.%s: %w", section, name, err)
		}
	}
	return nil
}

// deployTokens deploys every token a rig settles in plus the scenario's
// named tokens. Mine units take the rig's name and symbol; other tokens
// are named after their address book entry. The faucet can mint them all.
func (h *Harness) deployTokens() error {
	for _, m := range h.defs.Mines {
		if err := h.deployToken(m.Unit, m.Config.Name, m.Config.Symbol); err != nil {
			return err
		}
	}

	var addrs []common.Address
	for _, m := range h.defs.Mines {
		addrs = append(addrs, m.Quote)
	}
	for _, s := range h.defs.Spins {
		addrs = append(addrs, s.Quote, s.Unit)
	}
	for _, f := range h.defs.Funds {
		addrs = append(addrs, f.Quote, f.Unit)
	}
	for _, a := range h.defs.Auctions {
		addrs = append(addrs, a.Config.PaymentToken)
	}
	for _, name := range h.book.Names() {
		if _, ok := h.scenario.Tokens[name]; ok {
			addr, _ := h.book.Resolve(name)
			addrs = append(addrs, addr)
		}
	}

	for _, addr := range addrs {
		name := h.book.Name(addr)
		if err := h.deployToken(addr, name, strings.ToUpper(name)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) deployToken(addr common.Address, name, symbol string) error {
	if _, err := h.bank.Token(addr); err == nil {
		return nil
	}
	l, err := h.bank.Deploy(addr, name, symbol)
	if err != nil {
		return fmt.Errorf("deploy token %s: %w", name, err)
	}
	l.AddMinter(FaucetAddress)
	return nil
}

// deployRigs constructs every rig and registers it with the deployer as
// the approved factory.
func (h *Harness) deployRigs(start uint64) error {
	tx := engine.NewTx(DeployerAddress, start)
	if err := h.registry.SetFactoryApproval(tx, DeployerAddress, true); err != nil {
		return err
	}

	for _, d := range h.defs.Mines {
		quote, unit, err := h.pair(d.Tokens)
		if err != nil {
			return err
		}
		r, err := mine.New(d.Address, d.Config, mine.Deps{
			Bank:     h.bank,
			Quote:    quote,
			Unit:     unit,
			Oracle:   h.oracle,
			Protocol: h.registry,
			Emitter:  h.emitter,
		})
		if err != nil {
			return fmt.Errorf("mine %s: %w", d.Name, err)
		}
		h.mines[d.Name] = r
		if err := h.registry.Register(tx, d.Address, registry.KindMine, d.Config.Owner); err != nil {
			return fmt.Errorf("mine %s: %w", d.Name, err)
		}
	}

	for _, d := range h.defs.Spins {
		quote, unit, err := h.pair(d.Tokens)
		if err != nil {
			return err
		}
		r, err := spin.New(d.Address, d.Config, spin.Deps{
			Bank:     h.bank,
			Quote:    quote,
			Unit:     unit,
			Oracle:   h.oracle,
			Protocol: h.registry,
			Emitter:  h.emitter,
		}, start)
		if err != nil {
			return fmt.Errorf("spin %s: %w", d.Name, err)
		}
		h.spins[d.Name] = r
		if err := h.registry.Register(tx, d.Address, registry.KindSpin, d.Config.Owner); err != nil {
			return fmt.Errorf("spin %s: %w", d.Name, err)
		}
	}

	for _, d := range h.defs.Funds {
		quote, unit, err := h.pair(d.Tokens)
		if err != nil {
			return err
		}
		r, err := fund.New(d.Address, d.Config, fund.Deps{
			Bank:     h.bank,
			Quote:    quote,
			Unit:     unit,
			Protocol: h.registry,
			Emitter:  h.emitter,
		}, start)
		if err != nil {
			return fmt.Errorf("fund %s: %w", d.Name, err)
		}
		h.funds[d.Name] = r
		if err := h.registry.Register(tx, d.Address, registry.KindFund, d.Config.Owner); err != nil {
			return fmt.Errorf("fund %s: %w", d.Name, err)
		}
	}

	for _, d := range h.defs.Auctions {
		a, err := auction.New(d.Address, d.Config, h.bank, h.emitter, start)
		if err != nil {
			return fmt.Errorf("auction %s: %w", d.Name, err)
		}
		h.auctions[d.Name] = a
		if err := h.registry.Register(tx, d.Address, registry.KindAuction, DeployerAddress); err != nil {
			return fmt.Errorf("auction %s: %w", d.Name, err)
		}
	}
	return nil
}

func (h *Harness) pair(t compiler.Tokens) (*token.Ledger, *token.Ledger, error) {
	quote, err := h.bank.Token(t.Quote)
	if err != nil {
		return nil, nil, err
	}
	unit, err := h.bank.Token(t.Unit)
	if err != nil {
		return nil, nil, err
	}
	return quote, unit, nil
}

// execute runs one step. The error covers malformed steps only; a
// reverted call is reported in the StepResult.
func (h *Harness) execute(ctx context.Context, where string, st Step) (StepResult, error) {
	args := newArgReader(where, st.Args, h.book)
	sr := StepResult{Action: st.Action}

	switch st.Action {
	case ActionWarp:
		t := args.uint("time", 0)
		if err := args.done(); err != nil {
			return sr, err
		}
		if err := h.chain.Warp(t); err != nil {
			return sr, fmt.Errorf("%s: %w", where, err)
		}
		sr.Time = t
		return sr, nil
	case ActionAdvance:
		d := args.uint("seconds", 0)
		if err := args.done(); err != nil {
			return sr, err
		}
		sr.Time = h.chain.Advance(d)
		return sr, nil
	case ActionOracleFee:
		fee := args.amount("fee", new(uint256.Int))
		if err := args.done(); err != nil {
			return sr, err
		}
		h.oracle.SetFee(fee)
		sr.Time = h.chain.Now()
		return sr, nil
	}

	from := FaucetAddress
	switch st.Action {
	case ActionFulfill:
		from = OracleAddress
	case ActionMint:
	default:
		var err error
		if from, err = h.book.Resolve(st.From); err != nil {
			return sr, fmt.Errorf("%s: from: %w", where, err)
		}
	}
	var value *uint256.Int
	if st.Value.IsSet() {
		var err error
		if value, err = parseAmount(string(st.Value)); err != nil {
			return sr, fmt.Errorf("%s: value: %w", where, err)
		}
	}

	var amount *uint256.Int
	fn, err := h.call(st, from, args, &amount)
	if err != nil {
		return sr, err
	}
	if err := args.done(); err != nil {
		return sr, err
	}

	done, ok := h.chain.Submit(engine.Call{Label: st.Action, From: from, Value: value, Fn: fn})
	if !ok {
		return sr, fmt.Errorf("%s: chain stopped", where)
	}
	var res engine.Result
	select {
	case res = <-done:
	case <-ctx.Done():
		return sr, ctx.Err()
	}
	sr.TxID = res.Receipt.TxID
	sr.Status = res.Receipt.Status
	sr.Code = res.Receipt.Code
	sr.Time = res.Receipt.Time
	sr.Err = res.Err
	if res.Err == nil && amount != nil {
		sr.Amount = amount.Dec()
	}

	h.logger.Info("step executed",
		"step", where,
		"action", st.Action,
		"tx_id", sr.TxID,
		"status", sr.Status,
		"code", sr.Code,
	)
	return sr, nil
}

// call decodes a transaction step into the function the chain runs.
func (h *Harness) call(st Step, from common.Address, args *argReader, out **uint256.Int) (func(engine.Tx) error, error) {
	switch st.Action {
	case ActionMine:
		r, err := h.mineRig(st.Rig)
		if err != nil {
			return nil, err
		}
		miner := args.address("miner", from)
		index := args.uint("index", 0)
		maxPrice := args.amount("max_price", token.MaxAllowance)
		uri := args.text("uri", "")
		epochSet := args.has("epoch_id")
		epochID := args.uint("epoch_id", 0)
		deadlineSet := args.has("deadline")
		deadline := args.uint("deadline", 0)
		return func(tx engine.Tx) error {
			if !epochSet {
				if s, err := r.Slot(index); err == nil {
					epochID = s.EpochID
				}
			}
			if !deadlineSet {
				deadline = tx.Time
			}
			paid, err := r.Mine(tx, miner, index, epochID, deadline, maxPrice, uri)
			*out = paid
			return err
		}, nil

	case ActionSpin:
		r, ok := h.spins[st.Rig]
		if !ok {
			return nil, fmt.Errorf("unknown spin rig %q", st.Rig)
		}
		spinner := args.address("spinner", from)
		maxPrice := args.amount("max_price", token.MaxAllowance)
		epochSet := args.has("epoch_id")
		epochID := args.uint("epoch_id", 0)
		deadlineSet := args.has("deadline")
		deadline := args.uint("deadline", 0)
		return func(tx engine.Tx) error {
			if !epochSet {
				epochID = r.Epoch().ID
			}
			if !deadlineSet {
				deadline = tx.Time
			}
			paid, err := r.Spin(tx, spinner, epochID, deadline, maxPrice)
			*out = paid
			return err
		}, nil

	case ActionFund:
		r, ok := h.funds[st.Rig]
		if !ok {
			return nil, fmt.Errorf("unknown fund rig %q", st.Rig)
		}
		account := args.address("account", from)
		amount := args.amount("amount", new(uint256.Int))
		uri := args.text("uri", "")
		return func(tx engine.Tx) error {
			if err := r.Fund(tx, account, amount, uri); err != nil {
				return err
			}
			h.recordDonation(r, r.CurrentDay(tx.Time), account, amount)
			*out = amount
			return nil
		}, nil

	case ActionClaim, ActionClaimDay:
		account := args.address("account", from)
		if m, ok := h.mines[st.Rig]; ok && st.Action == ActionClaim {
			return func(tx engine.Tx) error {
				claimed, err := m.Claim(tx, account)
				*out = claimed
				return err
			}, nil
		}
		r, ok := h.funds[st.Rig]
		if !ok {
			return nil, fmt.Errorf("unknown %s rig %q", st.Action, st.Rig)
		}
		days := args.uints("day")
		days = append(days, args.uints("days")...)
		return func(tx engine.Tx) error {
			claimed, err := r.ClaimMany(tx, account, days)
			*out = claimed
			return err
		}, nil

	case ActionBuy:
		a, ok := h.auctions[st.Rig]
		if !ok {
			return nil, fmt.Errorf("unknown auction %q", st.Rig)
		}
		assets := args.addresses("assets")
		receiver := args.address("receiver", from)
		maxPayment := args.amount("max_payment", token.MaxAllowance)
		epochSet := args.has("epoch_id")
		epochID := args.uint("epoch_id", 0)
		deadlineSet := args.has("deadline")
		deadline := args.uint("deadline", 0)
		return func(tx engine.Tx) error {
			if !epochSet {
				epochID = a.Epoch().ID
			}
			if !deadlineSet {
				deadline = tx.Time
			}
			paid, err := a.Buy(tx, assets, receiver, epochID, deadline, maxPayment)
			*out = paid
			return err
		}, nil

	case ActionFulfill:
		seqSet := args.has("seq")
		seq := args.uint("seq", 0)
		random := args.amount("random", nil)
		return func(tx engine.Tx) error {
			switch {
			case !seqSet:
				return h.oracle.FulfillAll(tx)
			case random != nil:
				return h.oracle.FulfillWith(tx, seq, random)
			default:
				return h.oracle.Fulfill(tx, seq)
			}
		}, nil

	case ActionSetCapacity:
		r, err := h.mineRig(st.Rig)
		if err != nil {
			return nil, err
		}
		capacity := args.uint("capacity", 0)
		return func(tx engine.Tx) error {
			return r.SetCapacity(tx, capacity)
		}, nil

	case ActionMint:
		l, err := h.tokenArg(args)
		if err != nil {
			return nil, err
		}
		to := args.address("to", common.Address{})
		amount := args.amount("amount", new(uint256.Int))
		return func(tx engine.Tx) error {
			return l.Mint(tx.From, to, amount)
		}, nil

	case ActionApprove:
		l, err := h.tokenArg(args)
		if err != nil {
			return nil, err
		}
		spender := args.address("spender", common.Address{})
		amount := args.amount("amount", token.MaxAllowance)
		return func(tx engine.Tx) error {
			return l.Approve(tx.From, spender, amount)
		}, nil
	}
	return nil, fmt.Errorf("unknown action %q", st.Action)
}

func (h *Harness) mineRig(name string) (*mine.Rig, error) {
	r, ok := h.mines[name]
	if !ok {
		return nil, fmt.Errorf("unknown mine rig %q", name)
	}
	return r, nil
}

func (h *Harness) tokenArg(args *argReader) (*token.Ledger, error) {
	addr := args.address("token", common.Address{})
	if args.err != nil {
		return nil, args.err
	}
	return h.bank.Token(addr)
}

func (h *Harness) recordDonation(r *fund.Rig, day uint64, account common.Address, amount *uint256.Int) {
	key := donationKey{rig: r.Address(), day: day, account: account}
	total, ok := h.donations[key]
	if !ok {
		total = new(uint256.Int)
		h.donations[key] = total
	}
	total.Add(total, amount)
}

// checkStep compares a step outcome with its expect clause and returns a
// failure message, or "" when it matches.
func checkStep(where string, st Step, sr StepResult) string {
	var want string
	if st.Expect != nil {
		want = st.Expect.Error
	}
	switch {
	case want == "" && sr.Err != nil:
		return fmt.Sprintf("%s (%s): unexpected error: %v", where, st.Action, sr.Err)
	case want != "" && sr.Err == nil:
		return fmt.Sprintf("%s (%s): expected error %s, got success", where, st.Action, want)
	case want != "" && sr.Code != want:
		return fmt.Sprintf("%s (%s): expected error %s, got %s: %v", where, st.Action, want, sr.Code, sr.Err)
	}

	if st.Expect != nil && st.Expect.Result.IsSet() && sr.Err == nil {
		expected, err := parseAmount(string(st.Expect.Result))
		if err != nil {
			return fmt.Sprintf("%s (%s): expect.result: %v", where, st.Action, err)
		}
		if sr.Amount != expected.Dec() {
			return fmt.Sprintf("%s (%s): expected result %s, got %s", where, st.Action, expected.Dec(), sr.Amount)
		}
	}
	return ""
}
