package ir

// Event kinds. Names follow "<Rig>.<Transition>".
const (
	KindMineMined          = "Mine.Mined"
	KindMineMinted         = "Mine.Minted"
	KindMineMinerFee       = "Mine.MinerFee"
	KindMineClaimed        = "Mine.Claimed"
	KindMineEntropyRequest = "Mine.EntropyRequested"
	KindMineMultiplierSet  = "Mine.UpsMultiplierSet"
	KindMineDrawDiscarded  = "Mine.DrawDiscarded"
	KindMineCapacitySet    = "Mine.CapacitySet"
	KindMineRandomnessSet  = "Mine.RandomnessSet"

	KindSpinSpun           = "Spin.Spun"
	KindSpinEmission       = "Spin.EmissionMinted"
	KindSpinEntropyRequest = "Spin.EntropyRequested"
	KindSpinWin            = "Spin.Win"

	KindFundFunded    = "Fund.Funded"
	KindFundClaimed   = "Fund.Claimed"
	KindFundRecipient = "Fund.RecipientSet"

	KindAuctionBuy = "Auction.Buy"

	// Shared across rigs.
	KindTreasuryFee  = "Fee.Treasury"
	KindTeamFee      = "Fee.Team"
	KindProtocolFee  = "Fee.Protocol"
	KindRecipientFee = "Fee.Recipient"
	KindTreasurySet  = "Admin.TreasurySet"
	KindTeamSet      = "Admin.TeamSet"
	KindURISet       = "Admin.URISet"

	KindRegistryRegistered  = "Registry.Registered"
	KindRegistryApproval    = "Registry.FactoryApproval"
	KindRegistryProtocolFee = "Registry.ProtocolFeeSet"
)

// Event is one structured record published by a rig for external indexing.
// Field content must equal the amounts the rig actually moved.
type Event struct {
	// ID is the content-addressed identity (see EventID).
	ID string `json:"id"`

	// TxID correlates every event produced by one transaction.
	TxID string `json:"tx_id"`

	// Seq is the logical position assigned by the emitter. Strictly
	// increasing across the whole log.
	Seq int64 `json:"seq"`

	// Time is the block timestamp (seconds) of the transaction.
	Time uint64 `json:"time"`

	// Rig is the hex address of the emitting rig.
	Rig string `json:"rig"`

	// Kind is one of the Kind* constants.
	Kind string `json:"kind"`

	// Fields carries the payload.
	Fields IRObject `json:"fields"`
}

// Receipt records the outcome of one transaction.
type Receipt struct {
	TxID   string `json:"tx_id"`
	Seq    int64  `json:"seq"`
	Time   uint64 `json:"time"`
	Label  string `json:"label"`
	From   string `json:"from"`
	Status string `json:"status"` // "ok" | "reverted"
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Receipt status values.
const (
	StatusOK       = "ok"
	StatusReverted = "reverted"
)
