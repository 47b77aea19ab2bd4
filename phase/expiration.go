// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package phase evaluates round windows against the current block.
package phase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrProposalPeriodExpired  = errors.New("proposal period expired")
	ErrVotingPeriodExpired    = errors.New("voting period expired")
	ErrVotingPeriodNotExpired = errors.New("voting period not expired")

	errUnknownKind         = errors.New("unknown expiration kind")
	errAmbiguousExpiration = errors.New("expiration sets more than one variant")
	errMissingExpiration   = errors.New("expiration must set atHeight, atTime or never")
)

// Kind tags the variant held by an Expiration.
type Kind uint8

const (
	KindNever Kind = iota
	KindAtHeight
	KindAtTime
)

func (k Kind) String() string {
	switch k {
	case KindNever:
		return "never"
	case KindAtHeight:
		return "atHeight"
	case KindAtTime:
		return "atTime"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Block is the chain position an expiration is evaluated against. Time is in
// unix seconds.
type Block struct {
	Height uint64 `json:"height"`
	Time   uint64 `json:"time"`
}

// Expiration is a window end condition. The zero value never expires.
type Expiration struct {
	Kind  Kind   `serialize:"true"`
	Value uint64 `serialize:"true"`
}

// Never returns an expiration that is never reached.
func Never() Expiration {
	return Expiration{Kind: KindNever}
}

// AtHeight returns an expiration reached once the block height is >= height.
func AtHeight(height uint64) Expiration {
	return Expiration{Kind: KindAtHeight, Value: height}
}

// AtTime returns an expiration reached once the block time is >= unix.
func AtTime(unix uint64) Expiration {
	return Expiration{Kind: KindAtTime, Value: unix}
}

// IsExpired reports whether the window has closed at [b].
func (e Expiration) IsExpired(b Block) bool {
	switch e.Kind {
	case KindAtHeight:
		return b.Height >= e.Value
	case KindAtTime:
		return b.Time >= e.Value
	default:
		return false
	}
}

// Verify returns an error if the kind is not one of the known variants.
func (e Expiration) Verify() error {
	switch e.Kind {
	case KindNever, KindAtHeight, KindAtTime:
		return nil
	default:
		return fmt.Errorf("%w: %s", errUnknownKind, e.Kind)
	}
}

func (e Expiration) String() string {
	if e.Kind == KindNever {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s(%d)", e.Kind, e.Value)
}

type expirationJSON struct {
	AtHeight *uint64   `json:"atHeight,omitempty"`
	AtTime   *uint64   `json:"atTime,omitempty"`
	Never    *struct{} `json:"never,omitempty"`
}

func (e Expiration) MarshalJSON() ([]byte, error) {
	var out expirationJSON
	switch e.Kind {
	case KindAtHeight:
		v := e.Value
		out.AtHeight = &v
	case KindAtTime:
		v := e.Value
		out.AtTime = &v
	case KindNever:
		out.Never = &struct{}{}
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownKind, e.Kind)
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts exactly one of the atHeight, atTime or never keys.
// Unknown keys and null are rejected so that a misspelled window can not
// silently decode to Never.
func (e *Expiration) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return errMissingExpiration
	}

	var in expirationJSON
	d := json.NewDecoder(bytes.NewReader(b))
	d.DisallowUnknownFields()
	if err := d.Decode(&in); err != nil {
		return fmt.Errorf("invalid expiration: %w", err)
	}

	var (
		out Expiration
		n   int
	)
	if in.AtHeight != nil {
		out = AtHeight(*in.AtHeight)
		n++
	}
	if in.AtTime != nil {
		out = AtTime(*in.AtTime)
		n++
	}
	if in.Never != nil {
		out = Never()
		n++
	}
	switch n {
	case 0:
		return errMissingExpiration
	case 1:
		*e = out
		return nil
	default:
		return errAmbiguousExpiration
	}
}
