// Package strategy defines the capability every backtestable strategy
// offers to the host loop and a registry resolving strategies by name.
package strategy

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"hedged-grid-backtest/internal/account"
	"hedged-grid-backtest/internal/exchange"
	"hedged-grid-backtest/internal/models"
)

var (
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrDuplicateStrategy = errors.New("strategy already registered")
)

// Strategy consumes bars and fills in chronological order.
type Strategy interface {
	Name() string
	OnStart()
	OnBar(bar models.Bar)
	OnTrade(trade models.TradeEvent)
	OnStop()
	Account() *account.Account
	Snapshot() models.StrategySnapshot
}

// Params is everything a factory needs to build a strategy.
type Params struct {
	Config     models.StrategyConfig
	RecordMode account.RecordMode
	Gateway    exchange.Gateway
	Logger     *zap.Logger
}

// Factory builds a strategy instance.
type Factory func(p Params) (Strategy, error)

// Registry maps names to factories. Registration happens once at startup.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, name)
	}
	r.factories[name] = f
	return nil
}

// New builds the strategy registered under name.
func (r *Registry) New(name string, p Params) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return f(p)
}

// Names lists registered strategies alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
