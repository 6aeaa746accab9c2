// Package admin holds the small owner-adjustable subset of a rig's
// configuration: treasury, team and URI. Everything else is fixed at
// construction.
package admin

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/ir"
)

// Settings is embedded by every rig.
type Settings struct {
	Owner    common.Address
	Treasury common.Address
	Team     common.Address // zero disables the team share
	URI      string
}

// Validate checks the required addresses.
func (s Settings) Validate() error {
	if s.Owner == (common.Address{}) {
		return engine.NewError(engine.ErrCodeZeroAddress, "owner is zero")
	}
	if s.Treasury == (common.Address{}) {
		return engine.NewError(engine.ErrCodeZeroAddress, "treasury is zero")
	}
	return nil
}

// RequireOwner fails with UNAUTHORIZED unless tx comes from the owner.
func (s *Settings) RequireOwner(tx engine.Tx) error {
	if tx.From != s.Owner {
		return engine.NewError(engine.ErrCodeUnauthorized, "%s is not the owner", tx.From.Hex())
	}
	return nil
}

// SetTreasury replaces the treasury. It cannot be zero.
func (s *Settings) SetTreasury(tx engine.Tx, treasury common.Address, buf *engine.Buffer) error {
	if err := s.RequireOwner(tx); err != nil {
		return err
	}
	if treasury == (common.Address{}) {
		return engine.NewError(engine.ErrCodeZeroAddress, "treasury is zero")
	}
	s.Treasury = treasury
	buf.Add(ir.KindTreasurySet, ir.IRObject{"treasury": ir.Address(treasury)})
	return nil
}

// SetTeam replaces the team address; zero disables the team share.
func (s *Settings) SetTeam(tx engine.Tx, team common.Address, buf *engine.Buffer) error {
	if err := s.RequireOwner(tx); err != nil {
		return err
	}
	s.Team = team
	buf.Add(ir.KindTeamSet, ir.IRObject{"team": ir.Address(team)})
	return nil
}

// SetURI replaces the metadata URI.
func (s *Settings) SetURI(tx engine.Tx, uri string, buf *engine.Buffer) error {
	if err := s.RequireOwner(tx); err != nil {
		return err
	}
	s.URI = uri
	buf.Add(ir.KindURISet, ir.IRObject{"uri": ir.IRString(uri)})
	return nil
}
