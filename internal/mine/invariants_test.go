package mine

import (
	"math/rand/v2"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/token"
)

// TestInvariants drives random mines and claims and checks after every
// call that fees are conserved, epochs step by one, slot ups is the global
// rate over capacity, and the rig's quote balance equals the sum of
// claimable balances.
func TestInvariants(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Capacity = 3
		c.HalvingAmount = e18(1_000)
		c.InitialUps = e18(1_000)
		c.TailUps = e18(1)
	})
	huge := new(uint256.Int).Lsh(u(1), 220)
	accounts := []common.Address{alice, bob, carol}
	for _, a := range accounts {
		require.NoError(t, f.quote.Mint(faucet, a, huge))
	}
	sinks := []common.Address{treasury, team, protocol, rigAddr}
	sinkTotal := func() *uint256.Int {
		total := new(uint256.Int)
		for _, s := range sinks {
			total.Add(total, f.quote.BalanceOf(s))
		}
		return total
	}

	rng := rand.New(rand.NewPCG(2024, 1))
	now := uint64(1_000)
	for step := 0; step < 600; step++ {
		now += rng.Uint64N(2 * 3_600)
		who := accounts[rng.IntN(len(accounts))]

		if rng.IntN(5) == 0 {
			before := f.quote.BalanceOf(who)
			owed := f.rig.Claimable(who)
			got, err := f.rig.Claim(engine.NewTx(who, now), who)
			if owed.IsZero() {
				require.True(t, engine.IsCode(err, engine.ErrCodeNothingToClaim))
			} else {
				require.NoError(t, err)
				require.Equal(t, owed, got)
				require.Equal(t, new(uint256.Int).Add(before, owed), f.quote.BalanceOf(who))
			}
			require.True(t, f.rig.Claimable(who).IsZero())
		} else {
			index := rng.Uint64N(f.rig.Capacity())
			before, _ := f.rig.Slot(index)
			paidBefore := sinkTotal()

			price, err := f.rig.Mine(engine.NewTx(who, now), who, index, before.EpochID, now, token.MaxAllowance, "")
			require.NoError(t, err)

			after, _ := f.rig.Slot(index)
			require.Equal(t, before.EpochID+1, after.EpochID)
			require.Equal(t, new(uint256.Int).Div(f.rig.Ups(), u(f.rig.Capacity())), after.Ups)
			require.Equal(t, price, new(uint256.Int).Sub(sinkTotal(), paidBefore), "fees leak")
			require.False(t, f.rig.Ups().Lt(e18(1)), "ups below tail")
		}

		require.Equal(t, f.rig.TotalClaimable(), f.quote.BalanceOf(rigAddr), "step %d", step)
		require.Equal(t, f.rig.TotalMinted(), f.unit.TotalSupply())

		if step == 300 {
			require.NoError(t, f.rig.SetCapacity(engine.NewTx(owner, now), 5))
		}
	}
}
