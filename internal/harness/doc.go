// Package harness runs YAML scenarios against rigs compiled from CUE
// definitions.
//
// Each run deploys a fresh token bank, registry, randomness oracle and the
// compiled rigs, then drives them through an engine.Chain with sequential
// transaction ids ("tx-1", "tx-2", ...), so the resulting event log is
// deterministic and can be compared against golden files.
//
// # Scenario Format
//
//	name: mine_basic
//	description: "Two mines on one slot and a fee claim"
//	specs:
//	  - ../../compiler/testdata/rigs.cue
//	accounts:
//	  alice: "0x00000000000000000000000000000000000000a1"
//	tokens:
//	  usdc: "0x0000000000000000000000000000000000000100"
//	setup:
//	  - action: mint
//	    args: { token: usdc, to: alice, amount: 10_000_000 }
//	steps:
//	  - action: mine
//	    from: alice
//	    rig: gold
//	    args: { index: 0 }
//	    expect: { result: 0 }
//	assertions:
//	  - type: balance
//	    token: usdc
//	    account: alice
//	    equals: 10_000_000
//
// Addresses may be given as hex or as names. The address book holds the
// scenario's accounts and tokens, every rig by name, and the fixed
// accounts zero, dead, deployer, registry, oracle and faucet.
//
// # Actions
//
//   - mine: args miner, index, epoch_id, deadline, max_price, uri
//   - spin: args spinner, epoch_id, deadline, max_price
//   - fund: args account, amount, uri
//   - claim: mine fees (args account) or, on a fund rig, same as claim_day
//   - claim_day: args account, day or days
//   - buy: args assets, receiver, epoch_id, deadline, max_payment
//   - fulfill: args seq, random; without seq every pending draw
//   - set_capacity: args capacity
//   - mint: args token, to, amount (sent by the faucet)
//   - approve: args token, spender, amount (default unlimited)
//   - warp: args time; advance: args seconds
//   - oracle_fee: args fee; changes the draw fee for later requests
//
// epoch_id defaults to the current epoch, deadline to the block time and
// price caps to unlimited. Amounts are decimal strings or integers; "max"
// is 2^256-1. A step may carry expect.error (an error code) and
// expect.result (the amount the call returned).
//
// # Assertion Types
//
//   - balance: token balance of an account
//   - claimable: mine fees owed to an account, or a fund reward for a day
//   - slot: fields of a mine slot (epoch_id, init_price, start_time, ups,
//     multiplier, multiplier_expiry, miner, uri, price)
//   - epoch: fields of a spin or auction epoch (id, init_price,
//     start_time, price)
//   - pool: a spin rig's prize pool
//   - event_count: events of a kind, optionally from one rig
//   - invariant: claimable-sum, fund-day-sum or mine-supply
package harness
