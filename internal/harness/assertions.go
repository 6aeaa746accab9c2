package harness

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/compiler"
	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/pricing"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Subject  string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Subject != "" {
		fmt.Fprintf(&buf, " (%s)", e.Subject)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all passed.
func EvaluateAssertions(h *Harness, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(h, result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(h *Harness, result *Result, a Assertion) error {
	switch a.Type {
	case AssertBalance:
		return assertBalance(h, a)
	case AssertClaimable:
		return assertClaimable(h, a)
	case AssertSlot:
		return assertSlot(h, a)
	case AssertEpoch:
		return assertEpoch(h, a)
	case AssertPool:
		return assertPool(h, a)
	case AssertEventCount:
		return assertEventCount(h, result, a)
	case AssertInvariant:
		return assertInvariant(h, result, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertBalance checks a token balance.
func assertBalance(h *Harness, a Assertion) error {
	tokenAddr, err := h.book.Resolve(a.Token)
	if err != nil {
		return err
	}
	l, err := h.bank.Token(tokenAddr)
	if err != nil {
		return err
	}
	account, err := h.book.Resolve(a.Account)
	if err != nil {
		return err
	}
	return compareAmount(AssertBalance, a.Token+" of "+a.Account, a.Equals, l.BalanceOf(account))
}

// assertClaimable checks unclaimed miner fees on a mine rig, or the
// pending reward for a.Day on a fund rig.
func assertClaimable(h *Harness, a Assertion) error {
	account, err := h.book.Resolve(a.Account)
	if err != nil {
		return err
	}
	subject := a.Rig + " for " + a.Account
	if m, ok := h.mines[a.Rig]; ok {
		return compareAmount(AssertClaimable, subject, a.Equals, m.Claimable(account))
	}
	if f, ok := h.funds[a.Rig]; ok {
		subject = fmt.Sprintf("%s day %d", subject, a.Day)
		return compareAmount(AssertClaimable, subject, a.Equals, f.PendingReward(a.Day, account))
	}
	return fmt.Errorf("claimable: %q is not a mine or fund rig", a.Rig)
}

// assertSlot checks fields of a mine slot.
func assertSlot(h *Harness, a Assertion) error {
	m, err := h.mineRig(a.Rig)
	if err != nil {
		return err
	}
	s, err := m.Slot(a.Index)
	if err != nil {
		return err
	}
	actual := map[string]string{
		"epoch_id":          strconv.FormatUint(s.EpochID, 10),
		"init_price":        s.InitPrice.Dec(),
		"start_time":        strconv.FormatUint(s.StartTime, 10),
		"ups":               s.Ups.Dec(),
		"multiplier":        s.UpsMultiplier.Dec(),
		"multiplier_expiry": strconv.FormatUint(s.MultiplierExpiry, 10),
		"miner":             h.book.Name(s.Miner),
		"uri":               s.URI,
		"price":             pricing.Price(s.InitPrice, s.StartTime, m.Config().EpochPeriod, h.chain.Now()).Dec(),
	}
	return compareFields(h, AssertSlot, fmt.Sprintf("%s[%d]", a.Rig, a.Index), a.Expect, actual)
}

// assertEpoch checks the epoch of a spin rig or auction.
func assertEpoch(h *Harness, a Assertion) error {
	var (
		e     pricing.Epoch
		price *uint256.Int
	)
	now := h.chain.Now()
	switch {
	case h.spins[a.Rig] != nil:
		r := h.spins[a.Rig]
		e, price = r.Epoch(), r.Price(now)
	case h.auctions[a.Rig] != nil:
		r := h.auctions[a.Rig]
		e, price = r.Epoch(), r.Price(now)
	default:
		return fmt.Errorf("epoch: %q is not a spin rig or auction", a.Rig)
	}
	actual := map[string]string{
		"id":         strconv.FormatUint(e.ID, 10),
		"init_price": e.InitPrice.Dec(),
		"start_time": strconv.FormatUint(e.StartTime, 10),
		"price":      price.Dec(),
	}
	return compareFields(h, AssertEpoch, a.Rig, a.Expect, actual)
}

// assertPool checks a spin rig's prize pool.
func assertPool(h *Harness, a Assertion) error {
	r, ok := h.spins[a.Rig]
	if !ok {
		return fmt.Errorf("pool: %q is not a spin rig", a.Rig)
	}
	return compareAmount(AssertPool, a.Rig, a.Equals, r.Pool())
}

// assertEventCount checks how many events of a kind were emitted,
// optionally by one rig.
func assertEventCount(h *Harness, result *Result, a Assertion) error {
	var rig string
	if a.Rig != "" {
		addr, err := h.book.Resolve(a.Rig)
		if err != nil {
			return err
		}
		rig = addr.Hex()
	}
	count := 0
	for _, ev := range result.Events {
		if ev.Kind == a.Kind && (rig == "" || ev.Rig == rig) {
			count++
		}
	}
	if count != *a.Count {
		subject := a.Kind
		if a.Rig != "" {
			subject += " from " + a.Rig
		}
		return &AssertionError{
			Type:     AssertEventCount,
			Subject:  subject,
			Expected: fmt.Sprintf("%d events", *a.Count),
			Actual:   fmt.Sprintf("%d events", count),
		}
	}
	return nil
}

func assertInvariant(h *Harness, result *Result, a Assertion) error {
	switch a.Name {
	case InvariantClaimableSum:
		return claimableSum(h)
	case InvariantFundDaySum:
		return fundDaySum(h)
	case InvariantMineSupply:
		return mineSupply(h, result)
	default:
		return fmt.Errorf("unknown invariant %q", a.Name)
	}
}

// claimableSum: on every mine rig the claimable balances add up to the
// total and the rig's quote balance is exactly that total.
func claimableSum(h *Harness) error {
	for _, name := range sortedKeys(h.mines) {
		m := h.mines[name]
		sum := new(uint256.Int)
		for _, account := range m.Claimants() {
			sum.Add(sum, m.Claimable(account))
		}
		total := m.TotalClaimable()
		if !sum.Eq(total) {
			return invariantError(InvariantClaimableSum, name, total.Dec(), sum.Dec())
		}
		quote, _, err := h.pair(h.mineTokens(name))
		if err != nil {
			return err
		}
		if held := quote.BalanceOf(m.Address()); !held.Eq(total) {
			return invariantError(InvariantClaimableSum, name, "quote balance "+total.Dec(), held.Dec())
		}
	}
	return nil
}

// fundDaySum: every donation the scenario made is recorded, and each
// day's total is the sum of its donations.
func fundDaySum(h *Harness) error {
	for _, name := range sortedKeys(h.funds) {
		f := h.funds[name]
		days := make(map[uint64]*uint256.Int)
		for key, amount := range h.donations {
			if key.rig != f.Address() {
				continue
			}
			if got := f.Donation(key.day, key.account); !got.Eq(amount) {
				return invariantError(InvariantFundDaySum,
					fmt.Sprintf("%s day %d %s", name, key.day, h.book.Name(key.account)), amount.Dec(), got.Dec())
			}
			sum, ok := days[key.day]
			if !ok {
				sum = new(uint256.Int)
				days[key.day] = sum
			}
			sum.Add(sum, amount)
		}
		for day, sum := range days {
			if total := f.DayTotal(day); !total.Eq(sum) {
				return invariantError(InvariantFundDaySum, fmt.Sprintf("%s day %d", name, day), sum.Dec(), total.Dec())
			}
		}
	}
	return nil
}

// mineSupply: each mine's total minted equals the sum of its Minted
// events.
func mineSupply(h *Harness, result *Result) error {
	for _, name := range sortedKeys(h.mines) {
		m := h.mines[name]
		rig := m.Address().Hex()
		sum := new(uint256.Int)
		for _, ev := range result.Events {
			if ev.Rig != rig || ev.Kind != ir.KindMineMinted {
				continue
			}
			amount, err := ev.Fields.AmountOf("amount")
			if err != nil {
				return err
			}
			sum.Add(sum, amount)
		}
		if total := m.TotalMinted(); !total.Eq(sum) {
			return invariantError(InvariantMineSupply, name, sum.Dec(), total.Dec())
		}
	}
	return nil
}

func (h *Harness) mineTokens(name string) compiler.Tokens {
	for _, d := range h.defs.Mines {
		if d.Name == name {
			return d.Tokens
		}
	}
	return compiler.Tokens{}
}

func invariantError(name, subject, expected, actual string) error {
	return &AssertionError{
		Type:     AssertInvariant + " " + name,
		Subject:  subject,
		Expected: expected,
		Actual:   actual,
	}
}

func compareAmount(kind, subject string, expected Scalar, actual *uint256.Int) error {
	want, err := parseAmount(string(expected))
	if err != nil {
		return fmt.Errorf("%s: equals: %w", kind, err)
	}
	if !want.Eq(actual) {
		return &AssertionError{Type: kind, Subject: subject, Expected: want.Dec(), Actual: actual.Dec()}
	}
	return nil
}

// compareFields checks each expected field. Amount-like values are
// normalized through parseAmount and account references through the
// address book, so "1_000" matches "1000" and an account name matches its address.
func compareFields(h *Harness, kind, subject string, expected map[string]Scalar, actual map[string]string) error {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		got, ok := actual[key]
		if !ok {
			return fmt.Errorf("%s: unknown field %q", kind, key)
		}
		want := string(expected[key])
		if v, err := parseAmount(want); err == nil {
			want = v.Dec()
		} else if addr, err := h.book.Resolve(want); err == nil {
			want = h.book.Name(addr)
		}
		if want != got {
			return &AssertionError{
				Type:     kind,
				Subject:  subject + "." + key,
				Expected: want,
				Actual:   got,
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
