// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/luxfi/metric"

	"github.com/luxfi/qfvm/distribution"
)

var (
	_ Metrics = (*metricsImpl)(nil)
	_ Metrics = Noop{}
)

type Metrics interface {
	metric.APIInterceptor

	MarkProposalCreated()
	MarkVoteAccepted(amount uint64)
	// MarkDistribution records the payments of an executed distribution.
	MarkDistribution(plan *distribution.Plan)
	// MarkFailure counts an operation that returned an error.
	MarkFailure(op string)
}

type metricsImpl struct {
	proposals     metric.Counter
	votes         metric.Counter
	distributions metric.Counter
	votedFunds    metric.Counter
	matchedFunds  metric.Counter
	leftoverFunds metric.Counter
	failures      metric.CounterVec

	metric.APIInterceptor
}

func New(namespace string, registry metric.Registry) (Metrics, error) {
	metricsInstance := metric.NewWithRegistry(namespace, registry)

	m := &metricsImpl{
		proposals: metricsInstance.NewCounter(
			"proposals_created",
			"Number of proposals created",
		),
		votes: metricsInstance.NewCounter(
			"votes_accepted",
			"Number of votes accepted",
		),
		distributions: metricsInstance.NewCounter(
			"distributions",
			"Number of executed distributions",
		),
		votedFunds: metricsInstance.NewCounter(
			"voted_funds",
			"Total amount contributed through votes",
		),
		matchedFunds: metricsInstance.NewCounter(
			"matched_funds",
			"Total matching pool paid to proposals",
		),
		leftoverFunds: metricsInstance.NewCounter(
			"leftover_funds",
			"Total matching pool returned as leftover",
		),
		failures: metricsInstance.NewCounterVec(
			"failures",
			"Number of failed operations",
			[]string{"op"},
		),
	}

	apiRequestMetric, err := metric.NewAPIInterceptor(registry)
	m.APIInterceptor = apiRequestMetric
	return m, err
}

func (m *metricsImpl) MarkProposalCreated() {
	m.proposals.Inc()
}

func (m *metricsImpl) MarkVoteAccepted(amount uint64) {
	m.votes.Inc()
	m.votedFunds.Add(float64(amount))
}

func (m *metricsImpl) MarkDistribution(plan *distribution.Plan) {
	m.distributions.Inc()
	m.matchedFunds.Add(float64(plan.TotalMatched))
	m.leftoverFunds.Add(float64(plan.Leftover))
}

func (m *metricsImpl) MarkFailure(op string) {
	m.failures.WithLabelValues(op).Inc()
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) InterceptRequest(i *rpc.RequestInfo) *http.Request { return i.Request }

func (Noop) AfterRequest(*rpc.RequestInfo) {}

func (Noop) MarkProposalCreated() {}

func (Noop) MarkVoteAccepted(uint64) {}

func (Noop) MarkDistribution(*distribution.Plan) {}

func (Noop) MarkFailure(string) {}
