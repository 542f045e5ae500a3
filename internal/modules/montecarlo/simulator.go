// Package montecarlo simulates forward portfolio outcomes with correlated
// geometric Brownian motion paths over the historical correlation structure.
package montecarlo

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/modules/returns"
	"github.com/aristath/vigil/internal/modules/risk"
	"github.com/aristath/vigil/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// MaxPaths is the hard cap on simulated paths per request.
const MaxPaths = 10000

// DefaultPaths is used when a caller does not ask for a specific count.
const DefaultPaths = 10000

// Options parameterizes one simulation run.
type Options struct {
	Paths       int
	TimeHorizon domain.TimeHorizon
	// Seed makes the run reproducible; 0 picks a time-based seed.
	Seed int64
	// VaRConfidence is the confidence level for the result's VaR figure.
	// Defaults to 0.95.
	VaRConfidence float64
}

// Simulator generates correlated GBM paths and aggregates the portfolio
// outcome distribution.
type Simulator struct {
	builder *returns.Builder
	corr    *risk.CorrelationEstimator
	workers int
	log     zerolog.Logger
}

// NewSimulator creates a new Monte Carlo simulator with a fixed worker
// count for path generation.
func NewSimulator(builder *returns.Builder, corr *risk.CorrelationEstimator, workers int, log zerolog.Logger) *Simulator {
	if workers < 1 {
		workers = 4
	}
	return &Simulator{
		builder: builder,
		corr:    corr,
		workers: workers,
		log:     log.With().Str("component", "montecarlo").Logger(),
	}
}

// Simulate runs the full simulation and summarizes the outcome
// distribution.
func (s *Simulator) Simulate(snapshot domain.PortfolioSnapshot, opts Options) (domain.SimulationResult, error) {
	if err := validate(&opts); err != nil {
		return domain.SimulationResult{}, err
	}

	pathReturns, err := s.simulateReturns(snapshot, &opts)
	if err != nil {
		return domain.SimulationResult{}, err
	}

	sort.Float64s(pathReturns)
	losses := 0
	for _, r := range pathReturns {
		if r < 0 {
			losses++
		}
	}

	result := domain.SimulationResult{
		PortfolioID:     snapshot.PortfolioID,
		NumberOfPaths:   opts.Paths,
		TimeHorizon:     opts.TimeHorizon,
		ExpectedReturn:  formulas.Mean(pathReturns),
		ProbabilityLoss: float64(losses) / float64(len(pathReturns)),
		Percentiles: map[string]float64{
			"p1":  formulas.Percentile(pathReturns, 0.01),
			"p5":  formulas.Percentile(pathReturns, 0.05),
			"p25": formulas.Percentile(pathReturns, 0.25),
			"p50": formulas.Percentile(pathReturns, 0.50),
			"p75": formulas.Percentile(pathReturns, 0.75),
			"p95": formulas.Percentile(pathReturns, 0.95),
			"p99": formulas.Percentile(pathReturns, 0.99),
		},
		VaR:        -formulas.Percentile(pathReturns, 1-opts.VaRConfidence) * snapshot.TotalValue,
		Seed:       opts.Seed,
		ComputedAt: time.Now().UTC(),
	}
	return result, nil
}

// VaR runs a full-size simulation and reads the loss percentile at the
// given confidence. Satisfies the metrics calculator's delegation contract.
func (s *Simulator) VaR(snapshot domain.PortfolioSnapshot, confidence float64, horizon domain.TimeHorizon) (float64, error) {
	opts := Options{Paths: DefaultPaths, TimeHorizon: horizon, VaRConfidence: confidence}
	if err := validate(&opts); err != nil {
		return 0, err
	}
	pathReturns, err := s.simulateReturns(snapshot, &opts)
	if err != nil {
		return 0, err
	}
	sort.Float64s(pathReturns)
	return -formulas.Percentile(pathReturns, 1-confidence) * snapshot.TotalValue, nil
}

func validate(opts *Options) error {
	if opts.Paths <= 0 {
		return domain.NewValidationError("numberOfSimulations", "must be positive, got %d", opts.Paths)
	}
	if opts.Paths > MaxPaths {
		return domain.NewValidationError("numberOfSimulations", "Maximum 10000 simulations, got %d", opts.Paths)
	}
	if _, ok := domain.HorizonPeriods[opts.TimeHorizon]; !ok {
		return domain.NewValidationError("timeHorizon", "unsupported value %q", string(opts.TimeHorizon))
	}
	if opts.VaRConfidence == 0 {
		opts.VaRConfidence = 0.95
	}
	if opts.VaRConfidence <= 0 || opts.VaRConfidence >= 1 {
		return domain.NewValidationError("confidenceLevel", "must be in (0,1) exclusive, got %v", opts.VaRConfidence)
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	return nil
}

// asset is the per-symbol GBM parameter set derived from history.
type asset struct {
	symbol   string
	quantity float64
	price    float64
	mu       float64 // Daily drift
	sigma    float64 // Daily volatility
}

// simulateReturns produces one portfolio return per path. Positions
// without usable history are carried at their current value.
func (s *Simulator) simulateReturns(snapshot domain.PortfolioSnapshot, opts *Options) ([]float64, error) {
	series := s.builder.AssetSeries(snapshot)
	if len(series) == 0 {
		return nil, &domain.InsufficientDataError{Required: 2, Got: 0, What: "simulation inputs"}
	}
	if snapshot.TotalValue <= 0 {
		return nil, domain.NewValidationError("snapshot", "portfolio value must be positive")
	}

	corr, err := s.corr.Estimate(series)
	if err != nil {
		return nil, err
	}
	chol, err := factorize(corr.Matrix)
	if err != nil {
		return nil, err
	}

	assets := make([]asset, len(corr.Symbols))
	static := snapshot.TotalValue
	for i, symbol := range corr.Symbols {
		rets := series[symbol].Returns
		var pos domain.Position
		for _, p := range snapshot.Positions {
			if p.Symbol == symbol {
				pos = p
				break
			}
		}
		assets[i] = asset{
			symbol:   symbol,
			quantity: pos.Quantity,
			price:    pos.CurrentPrice,
			mu:       formulas.Mean(rets),
			sigma:    formulas.StdDev(rets),
		}
		static -= pos.MarketValue()
	}

	horizon := float64(domain.HorizonPeriods[opts.TimeHorizon])
	pathReturns := make([]float64, opts.Paths)

	var lower mat.TriDense
	chol.LTo(&lower)

	var wg sync.WaitGroup
	workers := s.workers
	if workers > opts.Paths {
		workers = opts.Paths
	}
	chunk := (opts.Paths + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > opts.Paths {
			end = opts.Paths
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int, rng *rand.Rand) {
			defer wg.Done()
			n := len(assets)
			eps := mat.NewVecDense(n, nil)
			z := mat.NewVecDense(n, nil)
			for p := start; p < end; p++ {
				for i := 0; i < n; i++ {
					eps.SetVec(i, rng.NormFloat64())
				}
				z.MulVec(&lower, eps)
				value := static
				for i, a := range assets {
					drift := (a.mu - a.sigma*a.sigma/2) * horizon
					diffusion := a.sigma * math.Sqrt(horizon) * z.AtVec(i)
					value += a.quantity * a.price * math.Exp(drift+diffusion)
				}
				pathReturns[p] = (value - snapshot.TotalValue) / snapshot.TotalValue
			}
		}(start, end, rand.New(rand.NewSource(opts.Seed+int64(w))))
	}
	wg.Wait()

	for _, r := range pathReturns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, domain.NewComputationError("simulate", "non-finite path return for portfolio %s", snapshot.PortfolioID)
		}
	}
	return pathReturns, nil
}

// factorize Cholesky-decomposes the correlation matrix, retrying once with
// a small diagonal jitter when the matrix is numerically not positive
// definite (degenerate or duplicate price series).
func factorize(m *mat.SymDense) (*mat.Cholesky, error) {
	var chol mat.Cholesky
	if chol.Factorize(m) {
		return &chol, nil
	}

	n, _ := m.Dims()
	jittered := mat.NewSymDense(n, nil)
	jittered.CopySym(m)
	for i := 0; i < n; i++ {
		jittered.SetSym(i, i, jittered.At(i, i)+1e-8)
	}
	if chol.Factorize(jittered) {
		return &chol, nil
	}
	return nil, domain.NewComputationError("cholesky", "correlation matrix is not positive definite")
}
