package repair

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestCost(t *testing.T) {
	tests := []struct {
		name           string
		attrSum        int
		currentHP      int
		maxHP          int
		repairBayLevel int
		activeRobots   int
		want           int64
	}{
		{
			// attr 81 → base 8100; destroyed doubles it to 16200; bay
			// level 2 with 3 robots → 16% off → 13608.
			name:    "destroyed robot with repair bay discount",
			attrSum: 81, currentHP: 0, maxHP: 80,
			repairBayLevel: 2, activeRobots: 3,
			want: 13608,
		},
		{
			// attr 180 → base 18000; 90% damage at normal multiplier →
			// 16200; same 16% discount → 13608.
			name:    "damaged robot with repair bay discount",
			attrSum: 180, currentHP: 10, maxHP: 100,
			repairBayLevel: 2, activeRobots: 3,
			want: 13608,
		},
		{
			name:    "undamaged robot is free",
			attrSum: 180, currentHP: 100, maxHP: 100,
			repairBayLevel: 2, activeRobots: 3,
			want: 0,
		},
		{
			name:    "destroyed robot pays double",
			attrSum: 100, currentHP: 0, maxHP: 100,
			want: 20000, // 10000 base × 100% damage × 2.0
		},
		{
			name:    "critically damaged robot pays half again",
			attrSum: 100, currentHP: 5, maxHP: 100,
			want: 14250, // 10000 × 0.95 × 1.5
		},
		{
			name:    "ten percent exactly is not critical",
			attrSum: 100, currentHP: 10, maxHP: 100,
			want: 9000, // 10000 × 0.9 × 1.0
		},
		{
			name:    "discount caps at ninety percent",
			attrSum: 100, currentHP: 50, maxHP: 100,
			repairBayLevel: 10, activeRobots: 20,
			want: 500, // 5000 pre-discount, cap at 90%
		},
		{
			name:    "no repair bay means no discount",
			attrSum: 50, currentHP: 25, maxHP: 50,
			want: 2500, // 5000 × 0.5
		},
		{
			name:    "zero max hp yields zero cost",
			attrSum: 100, currentHP: 0, maxHP: 0,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Cost(tt.attrSum, tt.currentHP, tt.maxHP, tt.repairBayLevel, tt.activeRobots)
			assert.Equal(t, tt.want, q.FinalCost)
		})
	}
}

func TestCost_QuoteBreakdown(t *testing.T) {
	q := Cost(180, 10, 100, 2, 3)
	assert.Equal(t, int64(18000), q.BaseCost)
	assert.InDelta(t, 0.9, q.DamagePercent, 1e-9)
	assert.Equal(t, 1.0, q.Multiplier)
	assert.Equal(t, int64(16200), q.PreDiscount)
	assert.Equal(t, int64(16), q.DiscountPercent)
	assert.Equal(t, int64(13608), q.FinalCost)
}

func TestDiscountPercent(t *testing.T) {
	assert.Equal(t, int64(0), DiscountPercent(0, 10))
	assert.Equal(t, int64(16), DiscountPercent(2, 3))
	assert.Equal(t, int64(90), DiscountPercent(9, 5))  // 90 exactly
	assert.Equal(t, int64(90), DiscountPercent(10, 20)) // capped
}

func TestProperty_CostBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("final cost is non-negative and never exceeds the undiscounted price", prop.ForAll(
		func(attrSum, maxHP, currentHP, bayLevel, robots int) bool {
			if currentHP > maxHP {
				currentHP = maxHP
			}
			q := Cost(attrSum, currentHP, maxHP, bayLevel, robots)
			return q.FinalCost >= 0 && q.FinalCost <= q.PreDiscount
		},
		gen.IntRange(0, 1000),
		gen.IntRange(1, 10000),
		gen.IntRange(0, 10000),
		gen.IntRange(0, 10),
		gen.IntRange(0, 50),
	))

	properties.Property("more damage never costs less, all else equal", prop.ForAll(
		func(attrSum, maxHP, hpA, hpB int) bool {
			if hpA > maxHP {
				hpA = maxHP
			}
			if hpB > maxHP {
				hpB = maxHP
			}
			lo, hi := hpA, hpB
			if lo > hi {
				lo, hi = hi, lo
			}
			// lower HP means more damage
			return Cost(attrSum, lo, maxHP, 0, 0).FinalCost >= Cost(attrSum, hi, maxHP, 0, 0).FinalCost
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 10000),
		gen.IntRange(0, 10000),
		gen.IntRange(0, 10000),
	))

	properties.Property("discount never exceeds ninety percent", prop.ForAll(
		func(bayLevel, robots int) bool {
			d := DiscountPercent(bayLevel, robots)
			return d >= 0 && d <= 90
		},
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
