package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"

	"github.com/badgerdao/harvest-forwarder/build"
)

// Distributions
var defaultMillisecondsDistribution = view.Distribution(
	0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, // Very short intervals for fast operations
	10, 20, 30, 40, 50, 60, 70, 80, 90, 100, // 10 ms intervals up to 100 ms
	150, 200, 250, 300, 350, 400, 450, 500, // 50 ms intervals from 100 to 500 ms
	600, 700, 800, 900, 1000, // 100 ms intervals from 500 to 1000 ms
	2000, 3000, 4000, 5000, 10000, 30000,
)

// Tags
var (
	Version, _ = tag.NewKey("version")
	Commit, _  = tag.NewKey("commit")

	// forwarder
	Operation, _ = tag.NewKey("operation")
	Token, _     = tag.NewKey("token")
	Outcome, _   = tag.NewKey("outcome")
)

// Outcome tag values
const (
	OutcomeOK           = "ok"
	OutcomeUnauthorized = "unauthorized"
	OutcomeInvalid      = "invalid"
	OutcomeRejected     = "rejected"
	OutcomeReentrancy   = "reentrancy"
	OutcomeError        = "error"
)

// Measures
var (
	ForwarderInfo = stats.Int64("info", "Arbitrary counter to tag forwarder info to", stats.UnitDimensionless)

	ForwarderOperations        = stats.Int64("forwarder/operations", "Counter of forwarder operations by outcome", stats.UnitDimensionless)
	ForwarderOperationDuration = stats.Float64("forwarder/operation_ms", "Duration of forwarder operations", stats.UnitMilliseconds)
	ForwarderCompensations     = stats.Int64("forwarder/compensations", "Counter of refunds issued after a failed forward", stats.UnitDimensionless)
	ForwarderReentrancyBlocked = stats.Int64("forwarder/reentrancy_blocked", "Counter of calls rejected by the re-entrancy guard", stats.UnitDimensionless)
)

var (
	InfoView = &view.View{
		Name:        "info",
		Description: "Forwarder build information",
		Measure:     ForwarderInfo,
		Aggregation: view.LastValue(),
		TagKeys:     []tag.Key{Version, Commit},
	}
	ForwarderOperationsView = &view.View{
		Name:        "forwarder/operations",
		Measure:     ForwarderOperations,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Operation, Token, Outcome},
	}
	ForwarderOperationDurationView = &view.View{
		Name:        "forwarder/operation_ms",
		Measure:     ForwarderOperationDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Operation},
	}
	ForwarderCompensationsView = &view.View{
		Name:        "forwarder/compensations",
		Measure:     ForwarderCompensations,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Token, Outcome},
	}
	ForwarderReentrancyBlockedView = &view.View{
		Name:        "forwarder/reentrancy_blocked",
		Measure:     ForwarderReentrancyBlocked,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Operation},
	}
)

var views = []*view.View{
	InfoView,
	ForwarderOperationsView,
	ForwarderOperationDurationView,
	ForwarderCompensationsView,
	ForwarderReentrancyBlockedView,
}

// DefaultViews is an array of OpenCensus views for metric gathering purposes
var DefaultViews = func() []*view.View {
	return views
}()

// RecordInfo tags the info counter with the build version.
func RecordInfo(ctx context.Context) error {
	return stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(Version, build.BuildVersion),
		tag.Upsert(Commit, build.CurrentCommit),
	}, ForwarderInfo.M(1))
}

func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Microseconds()) / 1000
}
