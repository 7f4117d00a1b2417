// Package rules provides the CEL-Go based override rule engine.
package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine compiles and evaluates operator override rules.
// Rules are CEL expressions over the prediction-time features; a rule
// that evaluates to true forces the fraud decision.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.OverrideRule
	Program cel.Program
}

// NewEngine creates a new override rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment with the scored-transaction variables
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("old_balance", cel.DoubleType),
		cel.Variable("new_balance", cel.DoubleType),
		cel.Variable("category", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("home_country", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("txn_freq", cel.DoubleType),
		cel.Variable("time_since_last_hours", cel.DoubleType),
		cel.Variable("cross_border", cel.BoolType),
		cel.Variable("score", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.OverrideRule) error {
	if cfg == nil {
		return fmt.Errorf("override rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.OverrideRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules. Disabled rules are skipped.
func (e *Engine) LoadRules(configs []*domain.OverrideRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Input holds the scored transaction features for override evaluation.
type Input struct {
	Amount         float64
	OldBalance     float64
	NewBalance     float64
	Category       string
	Country        string
	HomeCountry    string
	Hour           int
	TxnFreq        float64
	SinceLastHours float64
	CrossBorder    bool
	Score          float64
}

// EvaluateAll evaluates all loaded rules in parallel.
func (e *Engine) EvaluateAll(ctx context.Context, input *Input) ([]domain.OverrideResult, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	activation := map[string]any{
		"amount":                input.Amount,
		"old_balance":           input.OldBalance,
		"new_balance":           input.NewBalance,
		"category":              input.Category,
		"country":               input.Country,
		"home_country":          input.HomeCountry,
		"hour":                  int64(input.Hour),
		"txn_freq":              input.TxnFreq,
		"time_since_last_hours": input.SinceLastHours,
		"cross_border":          input.CrossBorder,
		"score":                 input.Score,
	}

	// Parallel evaluation using worker pool pattern
	results := make([]domain.OverrideResult, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) domain.OverrideResult {
	start := time.Now()

	result := domain.OverrideResult{
		RuleID: rule.Config.ID,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	if triggered, ok := out.(types.Bool); ok && bool(triggered) {
		result.Triggered = true
		result.Reason = rule.Config.Reason
	}

	result.ProcessMs = time.Since(start).Milliseconds()
	return result
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of overrides without a restart.
func (e *Engine) ReloadRules(configs []*domain.OverrideRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.OverrideRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.OverrideRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.OverrideRule) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("override rule ID is required")
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile override %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("override %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for override %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
