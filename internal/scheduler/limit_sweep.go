package scheduler

import (
	"context"

	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/events"
	"github.com/aristath/vigil/internal/modules/limits"
	"github.com/aristath/vigil/internal/modules/risk"
	"github.com/rs/zerolog"
)

// SnapshotProviderInterface defines the contract for portfolio snapshot access
// Used by the sweep to enable testing with mocks
type SnapshotProviderInterface interface {
	ListPortfolioIDs() ([]string, error)
	Snapshot(portfolioID string) (domain.PortfolioSnapshot, error)
}

// LimitStoreInterface defines the contract for limit set retrieval
type LimitStoreInterface interface {
	Get(portfolioID string) (domain.RiskLimitSet, error)
}

// MetricsCalculatorInterface defines the contract for metrics computation
type MetricsCalculatorInterface interface {
	Compute(snapshot domain.PortfolioSnapshot, opts risk.Options) (domain.RiskMetricsResult, error)
}

// LimitSweep walks every portfolio, recomputes headline metrics and
// publishes an event for each limit breach it finds.
type LimitSweep struct {
	snapshots SnapshotProviderInterface
	limits    LimitStoreInterface
	calc      MetricsCalculatorInterface
	monitor   *limits.Monitor
	bus       *events.Bus
	log       zerolog.Logger
}

// NewLimitSweep creates a new limit sweep job
func NewLimitSweep(snapshots SnapshotProviderInterface, store LimitStoreInterface, calc MetricsCalculatorInterface, monitor *limits.Monitor, bus *events.Bus, log zerolog.Logger) *LimitSweep {
	return &LimitSweep{
		snapshots: snapshots,
		limits:    store,
		calc:      calc,
		monitor:   monitor,
		bus:       bus,
		log:       log.With().Str("job", "limit_sweep").Logger(),
	}
}

// Run performs one sweep. Portfolios without configured limits or without
// enough history are skipped; other failures are reported and the sweep
// continues.
func (j *LimitSweep) Run(ctx context.Context) error {
	ids, err := j.snapshots.ListPortfolioIDs()
	if err != nil {
		return err
	}

	checked := 0
	breached := 0
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		set, err := j.limits.Get(id)
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			j.bus.PublishError("limit_sweep", err, map[string]interface{}{"portfolio_id": id})
			continue
		}
		if !set.Active {
			continue
		}

		snapshot, err := j.snapshots.Snapshot(id)
		if err != nil {
			j.bus.PublishError("limit_sweep", err, map[string]interface{}{"portfolio_id": id})
			continue
		}

		metrics, err := j.calc.Compute(snapshot, risk.Options{
			ConfidenceLevel: 0.95,
			TimeHorizon:     domain.Horizon1D,
		})
		if err != nil {
			if domain.IsInsufficientData(err) {
				j.log.Debug().Str("portfolio_id", id).Msg("Skipping portfolio without usable history")
				continue
			}
			j.bus.PublishError("limit_sweep", err, map[string]interface{}{"portfolio_id": id})
			continue
		}

		check := j.monitor.Check(limits.Observe(metrics, snapshot), set)
		checked++
		if !check.AllWithinLimits {
			breached++
			j.bus.Publish("limit_sweep", &events.LimitBreachData{
				PortfolioID: id,
				Breaches:    check.Breaches,
			})
		}
	}

	j.log.Info().Int("checked", checked).Int("breached", breached).Msg("Completed limit sweep")
	return nil
}
