// Package repair prices robot repairs. It is the single authoritative
// computation: estimates recorded at battle-resolution time are provisional
// and are never settled against.
package repair

import "math"

// Damage-state multipliers. A destroyed robot costs double, a critically
// damaged one (below 10% HP) half again.
const (
	destroyedMultiplier = 2.0
	criticalMultiplier  = 1.5
	normalMultiplier    = 1.0

	criticalHPFraction = 0.10
	maxDiscountPercent = 90
)

// Quote is a fully itemized repair price.
type Quote struct {
	BaseCost        int64   // attribute sum × 100
	DamagePercent   float64 // (maxHP − currentHP) / maxHP, in [0,1]
	Multiplier      float64
	PreDiscount     int64
	DiscountPercent int64
	FinalCost       int64
}

// Cost prices the repair of a robot with attribute sum attrSum, max HP
// maxHP and current HP currentHP, owned by a player with the given repair
// bay level and active roster size.
func Cost(attrSum, currentHP, maxHP, repairBayLevel, activeRobots int) Quote {
	q := Quote{BaseCost: int64(attrSum) * 100}
	if maxHP <= 0 {
		return q
	}

	q.DamagePercent = float64(maxHP-currentHP) / float64(maxHP)
	q.Multiplier = multiplier(currentHP, maxHP)
	q.PreDiscount = int64(math.Round(float64(q.BaseCost) * q.DamagePercent * q.Multiplier))
	q.DiscountPercent = DiscountPercent(repairBayLevel, activeRobots)
	q.FinalCost = int64(math.Round(float64(q.PreDiscount) * (1 - float64(q.DiscountPercent)/100)))
	return q
}

// DiscountPercent is the repair bay discount: level × (5 + active robots),
// capped at 90.
func DiscountPercent(repairBayLevel, activeRobots int) int64 {
	d := int64(repairBayLevel) * int64(5+activeRobots)
	return min(d, maxDiscountPercent)
}

func multiplier(currentHP, maxHP int) float64 {
	switch {
	case currentHP <= 0:
		return destroyedMultiplier
	case float64(currentHP) < criticalHPFraction*float64(maxHP):
		return criticalMultiplier
	default:
		return normalMultiplier
	}
}
