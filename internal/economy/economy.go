// Package economy holds the game's pure financial formulas: facility
// operating costs, passive income streams, prestige bonuses and league
// rewards. Producers compute figures here and record them through the
// ledger; nothing in this package touches storage.
package economy

import "math"

// Facility type names as stored by the facility service.
const (
	FacilityRepairBay       = "repair_bay"
	FacilityTraining        = "training_facility"
	FacilityWeaponsWorkshop = "weapons_workshop"
	FacilityResearchLab     = "research_lab"
	FacilityMedicalBay      = "medical_bay"
	FacilityRosterExpansion = "roster_expansion"
	FacilityStorage         = "storage_facility"
	FacilityCoachingStaff   = "coaching_staff"
	FacilityBookingOffice   = "booking_office"
	FacilityCombatAcademy   = "combat_training_academy"
	FacilityDefenseAcademy  = "defense_training_academy"
	FacilityMobilityAcademy = "mobility_training_academy"
	FacilityAIAcademy       = "ai_training_academy"
	FacilityIncomeGenerator = "income_generator"
)

const (
	rosterCostPerExtraRobot = 500
	activeCoachCost         = 3000
)

// OperatingCost is the per-cycle upkeep for one facility at the given
// level. Roster expansion and coaching staff are priced separately because
// they depend on roster size and coach state, not level.
func OperatingCost(facilityType string, level int) int64 {
	if level <= 0 {
		return 0
	}
	l := int64(level - 1)
	switch facilityType {
	case FacilityRepairBay, FacilityWeaponsWorkshop, FacilityIncomeGenerator, FacilityAIAcademy:
		return 1000 + l*500
	case FacilityTraining:
		return 1500 + l*750
	case FacilityResearchLab, FacilityMedicalBay:
		return 2000 + l*1000
	case FacilityStorage:
		return 500 + l*250
	case FacilityCombatAcademy, FacilityDefenseAcademy, FacilityMobilityAcademy:
		return 800 + l*400
	default:
		return 0
	}
}

// RosterExpansionCost charges for every robot slot beyond the first.
func RosterExpansionCost(rosterSize int) int64 {
	if rosterSize <= 1 {
		return 0
	}
	return int64(rosterSize-1) * rosterCostPerExtraRobot
}

// CoachingStaffCost applies only while a coach is active.
func CoachingStaffCost(activeCoach bool) int64 {
	if activeCoach {
		return activeCoachCost
	}
	return 0
}

// PrestigeMultiplier scales battle winnings by prestige tier:
// 5K → 5%, 10K → 10%, 25K → 15%, 50K → 20%.
func PrestigeMultiplier(prestige int64) float64 {
	switch {
	case prestige >= 50000:
		return 1.20
	case prestige >= 25000:
		return 1.15
	case prestige >= 10000:
		return 1.10
	case prestige >= 5000:
		return 1.05
	default:
		return 1.0
	}
}

// BattleWinnings applies the prestige bonus to a base reward.
func BattleWinnings(baseReward, prestige int64) int64 {
	return int64(math.Round(float64(baseReward) * PrestigeMultiplier(prestige)))
}

var merchandisingRates = map[int]int64{
	1: 5000, 2: 8000, 3: 8000, 4: 12000, 5: 12000,
	6: 18000, 7: 18000, 8: 25000, 9: 25000, 10: 35000,
}

// MerchandisingIncome is base_rate × (1 + prestige/10000), available from
// income generator level 1.
func MerchandisingIncome(incomeGeneratorLevel int, prestige int64) int64 {
	base := merchandisingRates[incomeGeneratorLevel]
	if base == 0 {
		return 0
	}
	return int64(math.Round(float64(base) * (1 + float64(prestige)/10000)))
}

var streamingRates = map[int]int64{
	3: 3000, 4: 3000, 5: 6000, 6: 6000,
	7: 10000, 8: 10000, 9: 15000, 10: 22000,
}

// StreamingIncome is base_rate × (1 + battles/1000) × (1 + fame/5000),
// unlocked at income generator level 3.
func StreamingIncome(incomeGeneratorLevel int, totalBattles int, totalFame int64) int64 {
	base := streamingRates[incomeGeneratorLevel]
	if base == 0 {
		return 0
	}
	battleMult := 1 + float64(totalBattles)/1000
	fameMult := 1 + float64(totalFame)/5000
	return int64(math.Round(float64(base) * battleMult * fameMult))
}

// LeagueReward is the payout range for a league tier.
type LeagueReward struct {
	Min, Max int64
}

// Midpoint is the estimate used when a concrete battle reward is unknown.
func (r LeagueReward) Midpoint() int64 {
	return (r.Min + r.Max + 1) / 2
}

var leagueRewards = map[string]LeagueReward{
	"bronze":   {Min: 5000, Max: 10000},
	"silver":   {Min: 10000, Max: 20000},
	"gold":     {Min: 20000, Max: 40000},
	"platinum": {Min: 40000, Max: 80000},
	"diamond":  {Min: 80000, Max: 150000},
	"champion": {Min: 150000, Max: 300000},
}

// BaseReward returns the reward range for a league, defaulting to bronze
// for unknown tiers.
func BaseReward(league string) LeagueReward {
	if r, ok := leagueRewards[league]; ok {
		return r
	}
	return leagueRewards["bronze"]
}

// ParticipationReward is 30% of the league's minimum reward, paid to the
// loser of a decided battle.
func ParticipationReward(league string) int64 {
	return int64(math.Round(float64(BaseReward(league).Min) * 0.3))
}
