package rates

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Strategy decides how GetActiveRate treats the live feed
type Strategy int

const (
	// LiveWithFallback tries the feed and falls back to the stored rate on failure
	LiveWithFallback Strategy = iota
	// StoredOnly never calls the feed
	StoredOnly
	// LiveOnly fails the lookup when the feed fails
	LiveOnly
)

func (s Strategy) String() string {
	switch s {
	case LiveWithFallback:
		return "live_with_fallback"
	case StoredOnly:
		return "stored_only"
	case LiveOnly:
		return "live_only"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy maps a config value onto a Strategy
func ParseStrategy(v string) (Strategy, error) {
	switch v {
	case "", "live_with_fallback":
		return LiveWithFallback, nil
	case "stored_only":
		return StoredOnly, nil
	case "live_only":
		return LiveOnly, nil
	}
	return LiveWithFallback, fmt.Errorf("unknown rate strategy %q", v)
}

// Seed rates used when bootstrapping a store with no feed configured
var (
	DefaultSeedBuy  = decimal.RequireFromString("6245.50")
	DefaultSeedSell = decimal.RequireFromString("6145.50")
)

// RateResolutionPolicy makes the live -> stored -> seed chain explicit
type RateResolutionPolicy struct {
	Strategy Strategy
	// AllowBootstrap permits inserting the seed rate, but only while the feed is unconfigured
	AllowBootstrap bool
	SeedBuy        decimal.Decimal
	SeedSell       decimal.Decimal
}

// DefaultPolicy is live with fallback and bootstrap allowed
func DefaultPolicy() RateResolutionPolicy {
	return RateResolutionPolicy{
		Strategy:       LiveWithFallback,
		AllowBootstrap: true,
		SeedBuy:        DefaultSeedBuy,
		SeedSell:       DefaultSeedSell,
	}
}

func (p RateResolutionPolicy) triesLive() bool {
	return p.Strategy != StoredOnly
}

func (p RateResolutionPolicy) fallsBack() bool {
	return p.Strategy != LiveOnly
}
