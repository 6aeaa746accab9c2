package fees

import (
	"math/rand/v2"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rigs/internal/engine"
)

var (
	miner     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	treasury  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	team      = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	protocol  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000c4")
	none      = common.Address{}
)

func TestFund_MinimumDonationSplit(t *testing.T) {
	a, err := Fund(uint256.NewInt(10_000), recipient, treasury, team, protocol)
	require.NoError(t, err)

	assert.Equal(t, uint256.NewInt(5_000), a.Get(NameRecipient))
	assert.Equal(t, uint256.NewInt(400), a.Get(NameTeam))
	assert.Equal(t, uint256.NewInt(100), a.Get(NameProtocol))
	assert.Equal(t, uint256.NewInt(4_500), a.Get(NameTreasury))
	assert.Equal(t, NameTreasury, a.Entries[len(a.Entries)-1].Name)
}

func TestMine_NominalSplit(t *testing.T) {
	a, err := Mine(uint256.NewInt(1_000_000), miner, treasury, team, protocol)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(800_000), a.Get(NameMiner))
	assert.Equal(t, uint256.NewInt(150_000), a.Get(NameTreasury))
	assert.Equal(t, uint256.NewInt(40_000), a.Get(NameTeam))
	assert.Equal(t, uint256.NewInt(10_000), a.Get(NameProtocol))
}

func TestSplit_DisabledRecipientsFoldIntoTreasury(t *testing.T) {
	a, err := Mine(uint256.NewInt(1_000), none, treasury, none, protocol)
	require.NoError(t, err)

	assert.False(t, a.Has(NameMiner))
	assert.False(t, a.Has(NameTeam))
	assert.Equal(t, uint256.NewInt(10), a.Get(NameProtocol))
	assert.Equal(t, uint256.NewInt(990), a.Get(NameTreasury))
}

func TestSplit_DustGoesToRemainder(t *testing.T) {
	a, err := Spin(uint256.NewInt(99), treasury, team, protocol)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(3), a.Get(NameTeam))
	assert.Equal(t, uint256.NewInt(0), a.Get(NameProtocol))
	assert.Equal(t, uint256.NewInt(96), a.Get(NameTreasury))
}

func TestSplit_Rejects(t *testing.T) {
	_, err := Spin(uint256.NewInt(1), none, team, protocol)
	assert.True(t, engine.IsCode(err, engine.ErrCodeZeroAddress))

	_, err = Split(uint256.NewInt(1), Share{Name: NameTreasury, Recipient: treasury},
		Share{Name: "a", Recipient: team, Bps: 6_000},
		Share{Name: "b", Recipient: protocol, Bps: 4_000},
	)
	assert.True(t, engine.IsCode(err, engine.ErrCodeInvalidFee))
	assert.Equal(t, engine.CategoryValidation, engine.CodeOf(err).Category())

	_, err = Split(uint256.NewInt(1), Share{Name: NameTreasury, Recipient: treasury},
		Share{Name: "a", Recipient: team, Bps: 9_999},
	)
	assert.NoError(t, err, "shares just below 100% leave a remainder")
}

func TestSplit_SumIsExact(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	addrs := []common.Address{none, miner, team, protocol, recipient}
	pick := func() common.Address { return addrs[rng.IntN(len(addrs))] }

	for i := 0; i < 1000; i++ {
		amount := &uint256.Int{rng.Uint64(), rng.Uint64(), rng.Uint64(), rng.Uint64()}
		amount.Rsh(amount, uint(rng.IntN(256)))

		for _, alloc := range []func() (Allocation, error){
			func() (Allocation, error) { return Mine(amount, pick(), treasury, pick(), pick()) },
			func() (Allocation, error) { return Spin(amount, treasury, pick(), pick()) },
			func() (Allocation, error) { return Fund(amount, pick(), treasury, pick(), pick()) },
		} {
			a, err := alloc()
			require.NoError(t, err)
			require.Equal(t, amount, a.Total(), "split of %s leaks", amount.Dec())
		}
	}
}
