// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state persists the round configuration, proposals and votes.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/luxfi/cache"
	"github.com/luxfi/cache/lru"
	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
)

const proposalCacheSize = 1024

var (
	ErrNotInitialized             = errors.New("round not initialized")
	ErrProposalNotFound           = errors.New("proposal not found")
	ErrAddressAlreadyVotedProject = errors.New("address already voted for this proposal")

	errCorruptVoteKey    = errors.New("corrupt vote key")
	errSequenceExhausted = errors.New("proposal sequence exhausted")

	ConfigPrefix    = []byte("config")
	SingletonPrefix = []byte("singleton")
	ProposalPrefix  = []byte("proposal")
	VotePrefix      = []byte("vote")

	RoundConfigKey   = []byte("round config")
	ProposalSeqKey   = []byte("proposal seq")
	InitializedKey   = []byte("initialized")
	DistributedKey   = []byte("distributed")
	DistributedAtKey = []byte("distributed at")
)

// State is the durable store for a single round. Writes are buffered in a
// version layer until Commit. It is not safe for concurrent use.
type State struct {
	baseDB *versiondb.Database

	configDB    database.Database
	singletonDB database.Database
	proposalDB  database.Database
	voteDB      database.Database

	// Caches proposal id -> proposal. Entries may hold uncommitted writes, so
	// the cache is flushed on Abort.
	proposalCache cache.Cacher[uint64, *Proposal]
}

func New(db database.Database) *State {
	baseDB := versiondb.New(db)
	return &State{
		baseDB:      baseDB,
		configDB:    prefixdb.New(ConfigPrefix, baseDB),
		singletonDB: prefixdb.New(SingletonPrefix, baseDB),
		proposalDB:  prefixdb.New(ProposalPrefix, baseDB),
		voteDB:      prefixdb.New(VotePrefix, baseDB),

		proposalCache: lru.NewCache[uint64, *Proposal](proposalCacheSize),
	}
}

// Commit writes every pending change to the underlying database.
func (s *State) Commit() error {
	return s.baseDB.Commit()
}

// Abort discards every pending change.
func (s *State) Abort() {
	s.baseDB.Abort()
	s.proposalCache.Flush()
}

func (s *State) IsInitialized() (bool, error) {
	return s.singletonDB.Has(InitializedKey)
}

// PutConfig stores the round configuration and marks the round initialized.
func (s *State) PutConfig(cfg *RoundConfig) error {
	b, err := Codec.Marshal(CodecVersion, cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal round config: %w", err)
	}
	if err := s.configDB.Put(RoundConfigKey, b); err != nil {
		return err
	}
	return s.singletonDB.Put(InitializedKey, nil)
}

func (s *State) GetConfig() (*RoundConfig, error) {
	b, err := s.configDB.Get(RoundConfigKey)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}

	cfg := &RoundConfig{}
	if _, err := Codec.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal round config: %w", err)
	}
	return cfg, nil
}

// NextProposalID advances the proposal sequence and returns the new value.
// The first id is 1.
func (s *State) NextProposalID() (uint64, error) {
	last, err := s.LastProposalID()
	if err != nil {
		return 0, err
	}
	next := last + 1
	if next == 0 {
		return 0, errSequenceExhausted
	}
	if err := database.PutUInt64(s.singletonDB, ProposalSeqKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

// LastProposalID returns the most recently assigned id, or 0 if none.
func (s *State) LastProposalID() (uint64, error) {
	last, err := database.GetUInt64(s.singletonDB, ProposalSeqKey)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	return last, err
}

func (s *State) PutProposal(p *Proposal) error {
	b, err := Codec.Marshal(CodecVersion, p)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal %d: %w", p.ID, err)
	}
	if err := s.proposalDB.Put(database.PackUInt64(p.ID), b); err != nil {
		return err
	}
	s.proposalCache.Put(p.ID, p.clone())
	return nil
}

// GetProposal returns a copy of the proposal with [id] that the caller may
// modify freely.
func (s *State) GetProposal(id uint64) (*Proposal, error) {
	if p, ok := s.proposalCache.Get(id); ok {
		return p.clone(), nil
	}

	b, err := s.proposalDB.Get(database.PackUInt64(id))
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrProposalNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	p, err := parseProposal(b)
	if err != nil {
		return nil, err
	}
	s.proposalCache.Put(id, p.clone())
	return p, nil
}

// Proposals returns every proposal in ascending id order.
func (s *State) Proposals() ([]*Proposal, error) {
	it := s.proposalDB.NewIterator()
	defer it.Release()

	var proposals []*Proposal
	for it.Next() {
		p, err := parseProposal(it.Value())
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	return proposals, it.Error()
}

// ProposalByFundAddress returns the lowest-id proposal paying [addr].
func (s *State) ProposalByFundAddress(addr ids.ShortID) (*Proposal, error) {
	it := s.proposalDB.NewIterator()
	defer it.Release()

	for it.Next() {
		p, err := parseProposal(it.Value())
		if err != nil {
			return nil, err
		}
		if p.FundAddress == addr {
			return p, nil
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: fund address %s", ErrProposalNotFound, addr)
}

func (s *State) HasVote(proposalID uint64, voter ids.ShortID) (bool, error) {
	return s.voteDB.Has(voteKey(proposalID, voter))
}

// PutVote records a vote. Votes are never overwritten.
func (s *State) PutVote(v *Vote) error {
	key := voteKey(v.ProposalID, v.Voter)
	has, err := s.voteDB.Has(key)
	if err != nil {
		return err
	}
	if has {
		return ErrAddressAlreadyVotedProject
	}

	b, err := Codec.Marshal(CodecVersion, v)
	if err != nil {
		return fmt.Errorf("failed to marshal vote: %w", err)
	}
	return s.voteDB.Put(key, b)
}

// Votes returns the votes cast for [proposalID] ordered by voter address.
func (s *State) Votes(proposalID uint64) ([]*Vote, error) {
	prefix := database.PackUInt64(proposalID)
	it := s.voteDB.NewIteratorWithPrefix(prefix)
	defer it.Release()

	var votes []*Vote
	for it.Next() {
		key := it.Key()
		if len(key) != len(prefix)+ids.ShortIDLen || !bytes.HasPrefix(key, prefix) {
			return nil, fmt.Errorf("%w: %x", errCorruptVoteKey, key)
		}

		v := &Vote{}
		if _, err := Codec.Unmarshal(it.Value(), v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, it.Error()
}

func (s *State) IsDistributed() (bool, error) {
	return s.singletonDB.Has(DistributedKey)
}

// MarkDistributed records that the distribution ran at [height].
func (s *State) MarkDistributed(height uint64) error {
	if err := s.singletonDB.Put(DistributedKey, nil); err != nil {
		return err
	}
	return database.PutUInt64(s.singletonDB, DistributedAtKey, height)
}

// DistributedAt returns the height the distribution ran at.
func (s *State) DistributedAt() (uint64, bool, error) {
	height, err := database.GetUInt64(s.singletonDB, DistributedAtKey)
	if errors.Is(err, database.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return height, true, nil
}

func (p *Proposal) clone() *Proposal {
	cp := *p
	cp.Metadata = slices.Clone(p.Metadata)
	return &cp
}

func parseProposal(b []byte) (*Proposal, error) {
	p := &Proposal{}
	if _, err := Codec.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proposal: %w", err)
	}
	return p, nil
}

// voteKey is the big-endian proposal id followed by the voter address, so a
// prefix scan over the id yields that proposal's votes.
func voteKey(proposalID uint64, voter ids.ShortID) []byte {
	key := make([]byte, 0, database.Uint64Size+ids.ShortIDLen)
	key = append(key, database.PackUInt64(proposalID)...)
	return append(key, voter[:]...)
}
