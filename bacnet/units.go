// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bacnet

import (
	"fmt"
	"strings"
)

// EngineeringUnits represents BACnet engineering units
type EngineeringUnits uint16

const (
	UnitsSquareMeters                  EngineeringUnits = 0
	UnitsSquareFeet                    EngineeringUnits = 1
	UnitsMilliamperes                  EngineeringUnits = 2
	UnitsAmperes                       EngineeringUnits = 3
	UnitsOhms                          EngineeringUnits = 4
	UnitsVolts                         EngineeringUnits = 5
	UnitsKilovolts                     EngineeringUnits = 6
	UnitsMegavolts                     EngineeringUnits = 7
	UnitsVoltAmperes                   EngineeringUnits = 8
	UnitsKilovoltAmperes               EngineeringUnits = 9
	UnitsMegavoltAmperes               EngineeringUnits = 10
	UnitsVoltAmperesReactive           EngineeringUnits = 11
	UnitsKilovoltAmperesReactive       EngineeringUnits = 12
	UnitsMegavoltAmperesReactive       EngineeringUnits = 13
	UnitsDegreesPhase                  EngineeringUnits = 14
	UnitsPowerFactor                   EngineeringUnits = 15
	UnitsJoules                        EngineeringUnits = 16
	UnitsKilojoules                    EngineeringUnits = 17
	UnitsWattHours                     EngineeringUnits = 18
	UnitsKilowattHours                 EngineeringUnits = 19
	UnitsBtus                          EngineeringUnits = 20
	UnitsTherms                        EngineeringUnits = 21
	UnitsTonHours                      EngineeringUnits = 22
	UnitsJoulesPerKilogramDryAir       EngineeringUnits = 23
	UnitsBtusPerPoundDryAir            EngineeringUnits = 24
	UnitsCyclesPerHour                 EngineeringUnits = 25
	UnitsCyclesPerMinute               EngineeringUnits = 26
	UnitsHertz                         EngineeringUnits = 27
	UnitsGramsOfWaterPerKilogramDryAir EngineeringUnits = 28
	UnitsPercentRelativeHumidity       EngineeringUnits = 29
	UnitsMillimeters                   EngineeringUnits = 30
	UnitsMeters                        EngineeringUnits = 31
	UnitsInches                        EngineeringUnits = 32
	UnitsFeet                          EngineeringUnits = 33
	UnitsWattsPerSquareFoot            EngineeringUnits = 34
	UnitsWattsPerSquareMeter           EngineeringUnits = 35
	UnitsLumens                        EngineeringUnits = 36
	UnitsLuxes                         EngineeringUnits = 37
	UnitsFootCandles                   EngineeringUnits = 38
	UnitsKilograms                     EngineeringUnits = 39
	UnitsPounds                        EngineeringUnits = 40
	UnitsWatts                         EngineeringUnits = 41
	UnitsKilowatts                     EngineeringUnits = 42
	UnitsMegawatts                     EngineeringUnits = 43
	UnitsBtusPerHour                   EngineeringUnits = 44
	UnitsHorsepower                    EngineeringUnits = 45
	UnitsTonsRefrigeration             EngineeringUnits = 46
	UnitsPascals                       EngineeringUnits = 47
	UnitsKilopascals                   EngineeringUnits = 48
	UnitsBars                          EngineeringUnits = 49
	UnitsPoundsForcePerSquareInch      EngineeringUnits = 50
	UnitsCentimetersOfWater            EngineeringUnits = 51
	UnitsInchesOfWater                 EngineeringUnits = 52
	UnitsMillimetersOfMercury          EngineeringUnits = 53
	UnitsCentimetersOfMercury          EngineeringUnits = 54
	UnitsInchesOfMercury               EngineeringUnits = 55
	UnitsDegreesCelsius                EngineeringUnits = 62
	UnitsDegreesKelvin                 EngineeringUnits = 63
	UnitsDegreesFahrenheit             EngineeringUnits = 64
	UnitsDegreeDaysCelsius             EngineeringUnits = 65
	UnitsDegreeDaysFahrenheit          EngineeringUnits = 66
	UnitsYears                         EngineeringUnits = 67
	UnitsMonths                        EngineeringUnits = 68
	UnitsWeeks                         EngineeringUnits = 69
	UnitsDays                          EngineeringUnits = 70
	UnitsHours                         EngineeringUnits = 71
	UnitsMinutes                       EngineeringUnits = 72
	UnitsSeconds                       EngineeringUnits = 73
	UnitsMetersPerSecond               EngineeringUnits = 74
	UnitsKilometersPerHour             EngineeringUnits = 75
	UnitsFeetPerSecond                 EngineeringUnits = 76
	UnitsFeetPerMinute                 EngineeringUnits = 77
	UnitsMilesPerHour                  EngineeringUnits = 78
	UnitsCubicFeet                     EngineeringUnits = 79
	UnitsCubicMeters                   EngineeringUnits = 80
	UnitsImperialGallons               EngineeringUnits = 81
	UnitsLiters                        EngineeringUnits = 82
	UnitsUsGallons                     EngineeringUnits = 83
	UnitsCubicFeetPerMinute            EngineeringUnits = 84
	UnitsCubicMetersPerSecond          EngineeringUnits = 85
	UnitsImperialGallonsPerMinute      EngineeringUnits = 86
	UnitsLitersPerSecond               EngineeringUnits = 87
	UnitsLitersPerMinute               EngineeringUnits = 88
	UnitsUsGallonsPerMinute            EngineeringUnits = 89
	UnitsDegreesAngular                EngineeringUnits = 90
	UnitsDegreesCelsiusPerHour         EngineeringUnits = 91
	UnitsDegreesCelsiusPerMinute       EngineeringUnits = 92
	UnitsDegreesFahrenheitPerHour      EngineeringUnits = 93
	UnitsDegreesFahrenheitPerMinute    EngineeringUnits = 94
	UnitsNoUnits                       EngineeringUnits = 95
	UnitsPartsPerMillion               EngineeringUnits = 96
	UnitsPartsPerBillion               EngineeringUnits = 97
	UnitsPercent                       EngineeringUnits = 98
	UnitsPercentPerSecond              EngineeringUnits = 99
	UnitsPerMinute                     EngineeringUnits = 100
	UnitsPerSecond                     EngineeringUnits = 101
	UnitsPsiPerDegreeFahrenheit        EngineeringUnits = 102
	UnitsRadians                       EngineeringUnits = 103
	UnitsRevolutionsPerMinute          EngineeringUnits = 104
)

var unitNames = map[EngineeringUnits]string{
	UnitsSquareMeters:                  "square-meters",
	UnitsSquareFeet:                    "square-feet",
	UnitsMilliamperes:                  "milliamperes",
	UnitsAmperes:                       "amperes",
	UnitsOhms:                          "ohms",
	UnitsVolts:                         "volts",
	UnitsKilovolts:                     "kilovolts",
	UnitsMegavolts:                     "megavolts",
	UnitsVoltAmperes:                   "volt-amperes",
	UnitsKilovoltAmperes:               "kilovolt-amperes",
	UnitsMegavoltAmperes:               "megavolt-amperes",
	UnitsVoltAmperesReactive:           "volt-amperes-reactive",
	UnitsKilovoltAmperesReactive:       "kilovolt-amperes-reactive",
	UnitsMegavoltAmperesReactive:       "megavolt-amperes-reactive",
	UnitsDegreesPhase:                  "degrees-phase",
	UnitsPowerFactor:                   "power-factor",
	UnitsJoules:                        "joules",
	UnitsKilojoules:                    "kilojoules",
	UnitsWattHours:                     "watt-hours",
	UnitsKilowattHours:                 "kilowatt-hours",
	UnitsBtus:                          "btus",
	UnitsTherms:                        "therms",
	UnitsTonHours:                      "ton-hours",
	UnitsJoulesPerKilogramDryAir:       "joules-per-kilogram-dry-air",
	UnitsBtusPerPoundDryAir:            "btus-per-pound-dry-air",
	UnitsCyclesPerHour:                 "cycles-per-hour",
	UnitsCyclesPerMinute:               "cycles-per-minute",
	UnitsHertz:                         "hertz",
	UnitsGramsOfWaterPerKilogramDryAir: "grams-of-water-per-kilogram-dry-air",
	UnitsPercentRelativeHumidity:       "percent-relative-humidity",
	UnitsMillimeters:                   "millimeters",
	UnitsMeters:                        "meters",
	UnitsInches:                        "inches",
	UnitsFeet:                          "feet",
	UnitsWattsPerSquareFoot:            "watts-per-square-foot",
	UnitsWattsPerSquareMeter:           "watts-per-square-meter",
	UnitsLumens:                        "lumens",
	UnitsLuxes:                         "luxes",
	UnitsFootCandles:                   "foot-candles",
	UnitsKilograms:                     "kilograms",
	UnitsPounds:                        "pounds",
	UnitsWatts:                         "watts",
	UnitsKilowatts:                     "kilowatts",
	UnitsMegawatts:                     "megawatts",
	UnitsBtusPerHour:                   "btus-per-hour",
	UnitsHorsepower:                    "horsepower",
	UnitsTonsRefrigeration:             "tons-refrigeration",
	UnitsPascals:                       "pascals",
	UnitsKilopascals:                   "kilopascals",
	UnitsBars:                          "bars",
	UnitsPoundsForcePerSquareInch:      "pounds-force-per-square-inch",
	UnitsCentimetersOfWater:            "centimeters-of-water",
	UnitsInchesOfWater:                 "inches-of-water",
	UnitsMillimetersOfMercury:          "millimeters-of-mercury",
	UnitsCentimetersOfMercury:          "centimeters-of-mercury",
	UnitsInchesOfMercury:               "inches-of-mercury",
	UnitsDegreesCelsius:                "degrees-celsius",
	UnitsDegreesKelvin:                 "degrees-kelvin",
	UnitsDegreesFahrenheit:             "degrees-fahrenheit",
	UnitsDegreeDaysCelsius:             "degree-days-celsius",
	UnitsDegreeDaysFahrenheit:          "degree-days-fahrenheit",
	UnitsYears:                         "years",
	UnitsMonths:                        "months",
	UnitsWeeks:                         "weeks",
	UnitsDays:                          "days",
	UnitsHours:                         "hours",
	UnitsMinutes:                       "minutes",
	UnitsSeconds:                       "seconds",
	UnitsMetersPerSecond:               "meters-per-second",
	UnitsKilometersPerHour:             "kilometers-per-hour",
	UnitsFeetPerSecond:                 "feet-per-second",
	UnitsFeetPerMinute:                 "feet-per-minute",
	UnitsMilesPerHour:                  "miles-per-hour",
	UnitsCubicFeet:                     "cubic-feet",
	UnitsCubicMeters:                   "cubic-meters",
	UnitsImperialGallons:               "imperial-gallons",
	UnitsLiters:                        "liters",
	UnitsUsGallons:                     "us-gallons",
	UnitsCubicFeetPerMinute:            "cubic-feet-per-minute",
	UnitsCubicMetersPerSecond:          "cubic-meters-per-second",
	UnitsImperialGallonsPerMinute:      "imperial-gallons-per-minute",
	UnitsLitersPerSecond:               "liters-per-second",
	UnitsLitersPerMinute:               "liters-per-minute",
	UnitsUsGallonsPerMinute:            "us-gallons-per-minute",
	UnitsDegreesAngular:                "degrees-angular",
	UnitsDegreesCelsiusPerHour:         "degrees-celsius-per-hour",
	UnitsDegreesCelsiusPerMinute:       "degrees-celsius-per-minute",
	UnitsDegreesFahrenheitPerHour:      "degrees-fahrenheit-per-hour",
	UnitsDegreesFahrenheitPerMinute:    "degrees-fahrenheit-per-minute",
	UnitsNoUnits:                       "no-units",
	UnitsPartsPerMillion:               "parts-per-million",
	UnitsPartsPerBillion:               "parts-per-billion",
	UnitsPercent:                       "percent",
	UnitsPercentPerSecond:              "percent-per-second",
	UnitsPerMinute:                     "per-minute",
	UnitsPerSecond:                     "per-second",
	UnitsPsiPerDegreeFahrenheit:        "psi-per-degree-fahrenheit",
	UnitsRadians:                       "radians",
	UnitsRevolutionsPerMinute:          "revolutions-per-minute",
}

var unitSymbols = map[EngineeringUnits]string{
	UnitsMilliamperes:            "mA",
	UnitsAmperes:                 "A",
	UnitsVolts:                   "V",
	UnitsKilowattHours:           "kWh",
	UnitsHertz:                   "Hz",
	UnitsPercentRelativeHumidity: "%RH",
	UnitsMillimeters:             "mm",
	UnitsMeters:                  "m",
	UnitsInches:                  "in",
	UnitsFeet:                    "ft",
	UnitsWatts:                   "W",
	UnitsKilowatts:               "kW",
	UnitsMegawatts:               "MW",
	UnitsPascals:                 "Pa",
	UnitsKilopascals:             "kPa",
	UnitsBars:                    "bar",
	UnitsDegreesCelsius:          "°C",
	UnitsDegreesKelvin:           "K",
	UnitsDegreesFahrenheit:       "°F",
	UnitsDays:                    "d",
	UnitsHours:                   "h",
	UnitsMinutes:                 "min",
	UnitsSeconds:                 "s",
	UnitsMetersPerSecond:         "m/s",
	UnitsCubicMeters:             "m³",
	UnitsLiters:                  "L",
	UnitsLitersPerSecond:         "L/s",
	UnitsLitersPerMinute:         "L/min",
	UnitsNoUnits:                 "",
	UnitsPercent:                 "%",
}

func (u EngineeringUnits) String() string {
	if name, ok := unitNames[u]; ok {
		return name
	}
	return fmt.Sprintf("units(%d)", uint16(u))
}

// Symbol returns the short display symbol, falling back to the name.
func (u EngineeringUnits) Symbol() string {
	if sym, ok := unitSymbols[u]; ok {
		return sym
	}
	return u.String()
}

// ParseEngineeringUnits accepts a hyphenated name such as
// "degrees-celsius" or a symbol such as "°C".
func ParseEngineeringUnits(s string) (EngineeringUnits, bool) {
	s = strings.TrimSpace(s)
	for u, sym := range unitSymbols {
		if sym != "" && sym == s {
			return u, true
		}
	}
	s = strings.ToLower(s)
	for u, name := range unitNames {
		if name == s {
			return u, true
		}
	}
	return 0, false
}
