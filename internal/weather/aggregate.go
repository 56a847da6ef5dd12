package weather

import "time"

// AggregateReadings combines multiple provider readings into a single WeatherSnapshot.
// Numeric fields are averaged; conditions are selected by majority (first seen wins a tie).
// Description, sunrise and sunset come from the first reading that has them.
func AggregateReadings(loc Location, readings []ProviderReading) WeatherSnapshot {
	if len(readings) == 0 {
		return WeatherSnapshot{
			Location:  loc,
			Timestamp: time.Now().UTC(),
			Condition: ConditionUnknown,
		}
	}

	var (
		sumTemp     float64
		sumFeels    float64
		sumHumidity float64
		sumWind     float64
		sumPressure float64
		sumPrecip   float64
		sumClouds   float64
	)

	conditionCounts := make(map[Condition]int)
	conditionOrder := make([]Condition, 0, len(readings))
	providers := make([]ProviderContribution, 0, len(readings))
	var (
		newestTS    time.Time
		description string
		sunrise     time.Time
		sunset      time.Time
	)

	for _, r := range readings {
		sumTemp += r.TemperatureC
		sumFeels += r.FeelsLikeC
		sumHumidity += r.HumidityPct
		sumWind += r.WindSpeedMS
		sumPressure += r.PressureHpa
		sumPrecip += r.PrecipMm
		sumClouds += r.CloudsPct

		if _, seen := conditionCounts[r.Condition]; !seen {
			conditionOrder = append(conditionOrder, r.Condition)
		}
		conditionCounts[r.Condition]++

		if r.Timestamp.After(newestTS) {
			newestTS = r.Timestamp
		}
		if description == "" && r.Description != "" {
			description = r.Description
		}
		if sunrise.IsZero() && !r.Sunrise.IsZero() && !r.Sunset.IsZero() {
			sunrise = r.Sunrise
			sunset = r.Sunset
		}

		providers = append(providers, ProviderContribution{
			ProviderName: r.ProviderName,
			Timestamp:    r.Timestamp,
		})
	}

	n := float64(len(readings))

	// Pick majority condition.
	bestCond := ConditionUnknown
	bestCount := 0
	for _, cond := range conditionOrder {
		if count := conditionCounts[cond]; count > bestCount {
			bestCount = count
			bestCond = cond
		}
	}

	if newestTS.IsZero() {
		newestTS = time.Now().UTC()
	}
	if description == "" {
		description = string(bestCond)
	}

	return WeatherSnapshot{
		Location:    loc,
		Timestamp:   newestTS,
		Temperature: sumTemp / n,
		FeelsLike:   sumFeels / n,
		Humidity:    sumHumidity / n,
		WindSpeed:   sumWind / n,
		Pressure:    sumPressure / n,
		PrecipMM:    sumPrecip / n,
		CloudsPct:   sumClouds / n,
		Condition:   bestCond,
		Description: description,
		Sunrise:     sunrise,
		Sunset:      sunset,
		Providers:   providers,
	}
}
