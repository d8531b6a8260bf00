package locator

import (
	"context"
	"fmt"
	"strings"

	"github.com/devicelab-dev/qa-runner/pkg/core"
)

// Strategy names accepted by New.
const (
	StrategyHierarchy       = "hierarchy"
	StrategyVision          = "vision"
	StrategyHierarchyVision = "hierarchy+vision"
)

// Strategies lists the accepted strategy names.
var Strategies = []string{StrategyHierarchy, StrategyVision, StrategyHierarchyVision}

// Chain tries each locator in order and returns the first positive result.
type Chain struct {
	locators []Locator
}

// NewChain creates a chained locator.
func NewChain(locators ...Locator) *Chain {
	return &Chain{locators: locators}
}

// Name joins the member strategy names with "+".
func (c *Chain) Name() string {
	names := make([]string, len(c.locators))
	for i, l := range c.locators {
		names[i] = l.Name()
	}
	return strings.Join(names, "+")
}

// Locate returns the first found result, or the last negative result with
// every member's reason.
func (c *Chain) Locate(ctx context.Context, src Source, target, hint string) core.LocatorResult {
	if len(c.locators) == 0 {
		return core.NotLocated(core.LocateError, "no locator strategies configured")
	}

	var last core.LocatorResult
	reasons := make([]string, 0, len(c.locators))
	for _, l := range c.locators {
		r := l.Locate(ctx, src, target, hint)
		if r.Found {
			return r
		}
		last = r
		reasons = append(reasons, fmt.Sprintf("%s: %s", l.Name(), r.Reason))
	}
	last.Reason = strings.Join(reasons, "; ")
	return last
}

// Options configures New.
type Options struct {
	Strategy    string
	VisionModel string
	APIKey      string
}

// New builds the locator for the configured strategy.
func New(ctx context.Context, opts Options) (Locator, error) {
	switch opts.Strategy {
	case "", StrategyHierarchy:
		return NewHierarchy(), nil
	case StrategyVision:
		return NewVision(ctx, opts.APIKey, opts.VisionModel)
	case StrategyHierarchyVision:
		v, err := NewVision(ctx, opts.APIKey, opts.VisionModel)
		if err != nil {
			return nil, err
		}
		return NewChain(NewHierarchy(), v), nil
	default:
		return nil, fmt.Errorf("unknown locator strategy %q (supported: %s)", opts.Strategy, strings.Join(Strategies, ", "))
	}
}
