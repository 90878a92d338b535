package builtins

import "kairos/internal/strategy"

// Register adds every built-in strategy factory to the registry.
func Register(r *strategy.Registry) {
	r.Register("sma_crossover", NewSMACross)
	r.Register("rsi", NewRSIRevert)
	r.Register("bollinger", NewBollingerRevert)
	r.Register("volatility_breakout", NewVolatilityBreakout)
	r.Register("grid", NewGrid)
	r.Register("magic_split", NewMagicSplit)
	r.Register("haa", NewHAA)
	r.Register("dual_momentum", NewDualMomentum)
	r.Register("stock_rotation", NewStockRotation)
	r.Register("simple_power", NewSimplePower)
}

// DefaultRegistry returns a registry pre-loaded with all built-ins.
func DefaultRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
