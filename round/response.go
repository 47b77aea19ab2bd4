// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package round

import "github.com/luxfi/qfvm/distribution"

// Attribute is a key/value pair describing what an operation did.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response is the outcome of a successful operation. Payments are intents for
// the host ledger and are only set by TriggerDistribution.
type Response struct {
	Data       []byte                 `json:"data,omitempty"`
	Attributes []Attribute            `json:"attributes"`
	Payments   []distribution.Payment `json:"payments,omitempty"`
}

// Attribute returns the value stored under [key].
func (r *Response) Attribute(key string) (string, bool) {
	for _, attr := range r.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}
