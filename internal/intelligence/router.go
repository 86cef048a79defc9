// Package intelligence selects a processing pipeline for a task by comparing
// predicted cost, latency, and quality under caller-supplied constraints.
// It is an integration point: nothing in the core depends on it, and model
// clients stay behind the ModelClient contract.
package intelligence

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Pipeline profiles one way of processing a task. Predictions are per item;
// the router scales them by the task's item count before applying the
// caller's constraints.
type Pipeline struct {
	Name    string
	Enabled bool

	// CostPerItem is the predicted cost of one item in fractional cents.
	CostPerItem float64

	// LatencyPerItem is the predicted wall-clock milliseconds for one item.
	LatencyPerItem float64

	// Quality is the predicted output quality in [0, 1].
	Quality float64

	// Capabilities names the task kinds the pipeline can handle.
	Capabilities []string

	// Client optionally backs the pipeline with a model service. A pipeline
	// whose client reports disabled is rejected the same way a pipeline with
	// Enabled=false is.
	Client ModelClient
}

func (p *Pipeline) supports(kind string) bool {
	for _, c := range p.Capabilities {
		if strings.EqualFold(c, kind) {
			return true
		}
	}
	return false
}

// Task describes the work to route.
type Task struct {
	// Kind names the capability the task needs, e.g. "suggest_rules" or
	// "classify_email". Empty matches any pipeline.
	Kind string

	// Items is how many items the task will process. Zero is treated as one.
	Items int
}

// Constraints bound which pipelines are acceptable for a task. Zero leaves
// a budget unconstrained.
type Constraints struct {
	// MaxCost is the total budget in fractional cents.
	MaxCost float64

	// MaxLatency is the total budget in milliseconds.
	MaxLatency float64

	// MinQuality is the lowest acceptable predicted quality.
	MinQuality float64
}

// Weights steer scoring between the three dimensions. They need not sum to
// one; scores are only compared within a single Route call.
type Weights struct {
	Cost    float64
	Latency float64
	Quality float64
}

// DefaultWeights favors quality while still rewarding cheap, fast pipelines.
func DefaultWeights() Weights {
	return Weights{Cost: 0.3, Latency: 0.2, Quality: 0.5}
}

func (w Weights) isZero() bool {
	return w.Cost == 0 && w.Latency == 0 && w.Quality == 0
}

// Decision reports the selected pipeline and the predictions it won with.
type Decision struct {
	Pipeline         string
	Score            float64
	PredictedCost    float64
	PredictedLatency float64
	PredictedQuality float64
}

// NoPipelineError reports that every profiled pipeline was rejected, with
// the reason recorded per pipeline.
type NoPipelineError struct {
	Task       string
	Rejections map[string]string
}

func (e *NoPipelineError) Error() string {
	if len(e.Rejections) == 0 {
		return fmt.Sprintf("no pipeline available for task %q", e.Task)
	}
	names := make([]string, 0, len(e.Rejections))
	for name := range e.Rejections {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Rejections[name]))
	}
	return fmt.Sprintf("no pipeline satisfies constraints for task %q (%s)",
		e.Task, strings.Join(parts, "; "))
}

// Router chooses among profiled pipelines.
type Router struct {
	pipelines []Pipeline
	weights   Weights
	logger    *slog.Logger
}

// NewRouter builds a router over the given profiles. Zero-value weights fall
// back to DefaultWeights.
func NewRouter(pipelines []Pipeline, weights Weights, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if weights.isZero() {
		weights = DefaultWeights()
	}
	return &Router{
		pipelines: pipelines,
		weights:   weights,
		logger:    logger,
	}
}

// Route picks the pipeline with the best weighted score among those that
// survive constraint filtering. Equal scores tie-break on name, so selection
// is deterministic regardless of profile order.
func (r *Router) Route(task Task, constraints Constraints) (*Decision, error) {
	items := task.Items
	if items <= 0 {
		items = 1
	}

	type candidate struct {
		pipeline *Pipeline
		cost     float64
		latency  float64
	}

	rejections := make(map[string]string)
	var candidates []candidate

	for i := range r.pipelines {
		p := &r.pipelines[i]

		if !p.Enabled {
			rejections[p.Name] = "disabled"
			continue
		}
		if p.Client != nil && !p.Client.IsEnabled() {
			rejections[p.Name] = "model client disabled"
			continue
		}
		if task.Kind != "" && !p.supports(task.Kind) {
			rejections[p.Name] = fmt.Sprintf("does not support %q", task.Kind)
			continue
		}

		cost := p.CostPerItem * float64(items)
		latency := p.LatencyPerItem * float64(items)

		if constraints.MaxCost > 0 && cost > constraints.MaxCost {
			rejections[p.Name] = fmt.Sprintf("predicted cost %.2f exceeds budget %.2f",
				cost, constraints.MaxCost)
			continue
		}
		if constraints.MaxLatency > 0 && latency > constraints.MaxLatency {
			rejections[p.Name] = fmt.Sprintf("predicted latency %.0fms exceeds budget %.0fms",
				latency, constraints.MaxLatency)
			continue
		}
		if p.Quality < constraints.MinQuality {
			rejections[p.Name] = fmt.Sprintf("predicted quality %.2f below floor %.2f",
				p.Quality, constraints.MinQuality)
			continue
		}

		candidates = append(candidates, candidate{pipeline: p, cost: cost, latency: latency})
	}

	if len(candidates) == 0 {
		return nil, &NoPipelineError{Task: task.Kind, Rejections: rejections}
	}

	// Normalize cost and latency over the surviving candidates so the
	// weights compare like against like regardless of units. Quality is
	// already on [0, 1].
	minCost, maxCost := candidates[0].cost, candidates[0].cost
	minLat, maxLat := candidates[0].latency, candidates[0].latency
	for _, c := range candidates[1:] {
		if c.cost < minCost {
			minCost = c.cost
		}
		if c.cost > maxCost {
			maxCost = c.cost
		}
		if c.latency < minLat {
			minLat = c.latency
		}
		if c.latency > maxLat {
			maxLat = c.latency
		}
	}

	best := -1
	var bestScore float64
	for i, c := range candidates {
		score := r.weights.Quality*c.pipeline.Quality +
			r.weights.Cost*(1-normalize(c.cost, minCost, maxCost)) +
			r.weights.Latency*(1-normalize(c.latency, minLat, maxLat))

		r.logger.Debug("pipeline scored",
			"task", task.Kind,
			"pipeline", c.pipeline.Name,
			"score", score,
			"cost", c.cost,
			"latency_ms", c.latency,
			"quality", c.pipeline.Quality)

		switch {
		case best == -1 || score > bestScore:
			best = i
			bestScore = score
		case score == bestScore && c.pipeline.Name < candidates[best].pipeline.Name:
			best = i
		}
	}

	chosen := candidates[best]
	r.logger.Debug("pipeline selected",
		"task", task.Kind, "pipeline", chosen.pipeline.Name, "score", bestScore)

	return &Decision{
		Pipeline:         chosen.pipeline.Name,
		Score:            bestScore,
		PredictedCost:    chosen.cost,
		PredictedLatency: chosen.latency,
		PredictedQuality: chosen.pipeline.Quality,
	}, nil
}

// HealthCheck probes the model client behind every enabled pipeline. The
// returned map holds one entry per probed pipeline; a nil value means
// healthy. Pipelines without a client are skipped.
func (r *Router) HealthCheck() map[string]error {
	results := make(map[string]error)
	for i := range r.pipelines {
		p := &r.pipelines[i]
		if !p.Enabled || p.Client == nil {
			continue
		}
		results[p.Name] = p.Client.HealthCheck()
	}
	return results
}

// normalize maps v into [0, 1] within [min, max]. A degenerate range maps to
// zero so the dimension drops out of the comparison.
func normalize(v, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return (v - min) / (max - min)
}
