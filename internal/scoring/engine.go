package scoring

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

const ScoringVersion = "score_v2"

// Tie-break order for reason chips; earlier factors outrank later ones.
var factorPriority = []string{"rain", "heat", "waves", "uv", "aqi", "wind", "cold"}

// HourInput is the scoring projection of one normalized forecast hour.
// Nil fields mean the metric was absent upstream; absence contributes no
// penalty. SunsetUTC is the sunset instant for the hour's local date; nil
// disables the sunset gate.
type HourInput struct {
	HourUTC       time.Time
	WaveHeightM   *float64
	FeelslikeC    *float64
	GustMS        *float64
	PrecipProbPct *int
	PrecipMM      *float64
	UVIndex       *float64
	EuAQI         *int
	SunsetUTC     *time.Time
}

type ReasonChip struct {
	Factor  string `json:"factor"`
	Text    string `json:"text"`
	Emoji   string `json:"emoji"` // check | warning | danger | info
	Penalty int    `json:"penalty"`
}

type ModeScore struct {
	Score     int          `json:"score"`
	Label     string       `json:"label"`
	Reasons   []ReasonChip `json:"reasons"`
	HardGated bool         `json:"hard_gated"`
}

type Output struct {
	HourUTC        time.Time `json:"hour_utc"`
	ScoringVersion string    `json:"scoring_version"`
	SwimSolo       ModeScore `json:"swim_solo"`
	SwimDog        ModeScore `json:"swim_dog"`
	RunSolo        ModeScore `json:"run_solo"`
	RunDog         ModeScore `json:"run_dog"`
}

// ScoreHour scores one hour for all four activity modes.
func ScoreHour(hour HourInput, t Thresholds) Output {
	return Output{
		HourUTC:        hour.HourUTC,
		ScoringVersion: ScoringVersion,
		SwimSolo:       scoreSwimSolo(hour, t),
		SwimDog:        scoreSwimDog(hour, t),
		RunSolo:        scoreRunSolo(hour, t),
		RunDog:         scoreRunDog(hour, t),
	}
}

// linearPenalty ramps from 0 at ok to maxPenalty at bad. When ok > bad the
// ramp is reversed (cold: lower value is worse).
func linearPenalty(value, ok, bad, maxPenalty float64) float64 {
	if ok < bad {
		if value <= ok {
			return 0
		}
		if value >= bad {
			return maxPenalty
		}
		return maxPenalty * (value - ok) / (bad - ok)
	}
	if value >= ok {
		return 0
	}
	if value <= bad {
		return maxPenalty
	}
	return maxPenalty * (ok - value) / (ok - bad)
}

// sunsetMultiplier is 1.0 up to sunset, ramps to 0.0 over the following
// 30 minutes, then stays 0.0. Nil sunset disables the gate.
func sunsetMultiplier(hourUTC time.Time, sunsetUTC *time.Time) float64 {
	if sunsetUTC == nil {
		return 1.0
	}
	delta := hourUTC.Sub(*sunsetUTC).Seconds()
	if delta <= 0 {
		return 1.0
	}
	if delta >= 1800 {
		return 0.0
	}
	return 1.0 - delta/1800
}

func scoreToLabel(score int) string {
	switch {
	case score >= 85:
		return "Perfect"
	case score >= 70:
		return "Good"
	case score >= 45:
		return "Meh"
	case score >= 20:
		return "Bad"
	default:
		return "Nope"
	}
}

// Hard gates. Binary, never ramped.

func rainGated(hour HourInput, t Thresholds) bool {
	if hour.PrecipMM != nil && *hour.PrecipMM >= t.RainGateMM {
		return true
	}
	if hour.PrecipProbPct != nil && *hour.PrecipProbPct >= t.RainGateProbPct {
		return true
	}
	return false
}

func windGated(hour HourInput, t Thresholds) bool {
	return hour.GustMS != nil && *hour.GustMS >= t.WindGateMS
}

func dogHeatGated(hour HourInput, t Thresholds) bool {
	if hour.FeelslikeC == nil {
		return false
	}
	if *hour.FeelslikeC >= t.DogHeatGateC {
		return true
	}
	return hour.UVIndex != nil &&
		*hour.UVIndex >= t.DogHeatCompoundUV &&
		*hour.FeelslikeC >= t.DogHeatCompoundC
}

func rainGateChip(hour HourInput, t Thresholds) ReasonChip {
	if hour.PrecipMM != nil && *hour.PrecipMM >= t.RainGateMM {
		return ReasonChip{Factor: "rain", Text: "Heavy rain", Emoji: "danger"}
	}
	return ReasonChip{Factor: "rain", Text: "Rain very likely", Emoji: "danger"}
}

func gatedResult(chip ReasonChip) ModeScore {
	return ModeScore{Score: 0, Label: "Nope", Reasons: []ReasonChip{chip}, HardGated: true}
}

func afterDarkResult() ModeScore {
	return gatedResult(ReasonChip{
		Factor:  "dark",
		Text:    "After dark — no night swimming",
		Emoji:   "danger",
		Penalty: 100,
	})
}

// penalty is the pre-chip accounting tuple for one factor. Amount is
// negative for a real penalty and zero for either an untouched factor or a
// missing-data note (Info distinguishes the two).
type penalty struct {
	Factor string
	Amount int
	Text   string
	Info   bool
}

func roundPenalty(p float64) int { return int(math.Round(p)) }

// fmtMetric renders a float the shortest way, so 0.85 prints as "0.85" and
// 1.0 as "1".
func fmtMetric(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func waveText(value float64, p int) string {
	if p >= 50 {
		return fmt.Sprintf("Waves %sm — rough", fmtMetric(value))
	}
	return fmt.Sprintf("Waves %sm", fmtMetric(value))
}

func waveDogText(value float64, p int) string {
	if p >= 50 {
		return "Waves too rough for dog"
	}
	return fmt.Sprintf("Waves %sm — watch your dog", fmtMetric(value))
}

func priorityIndex(factor string) int {
	for i, f := range factorPriority {
		if f == factor {
			return i
		}
	}
	return len(factorPriority) + 1
}

// buildReasonChips assembles 2 to 5 chips: the top negative penalties, an
// optional positive chip for good scores, info chips for missing data, and
// zero-penalty padding to reach the minimum.
func buildReasonChips(penalties []penalty, score int, mode string) []ReasonChip {
	var negative, infos, zeros []penalty
	for _, p := range penalties {
		switch {
		case p.Amount < 0:
			negative = append(negative, p)
		case p.Info:
			infos = append(infos, p)
		default:
			zeros = append(zeros, p)
		}
	}

	for i := 1; i < len(negative); i++ {
		for j := i; j > 0 && lessNegative(negative[j], negative[j-1]); j-- {
			negative[j], negative[j-1] = negative[j-1], negative[j]
		}
	}
	if len(negative) > 4 {
		negative = negative[:4]
	}

	chips := make([]ReasonChip, 0, 5)
	for _, p := range negative {
		emoji := "warning"
		if -p.Amount >= 30 {
			emoji = "danger"
		}
		chips = append(chips, ReasonChip{Factor: p.Factor, Text: p.Text, Emoji: emoji, Penalty: p.Amount})
	}

	if score >= 70 {
		if pos := selectPositiveChip(penalties, mode); pos != nil {
			chips = append(chips, *pos)
		}
	}

	for _, p := range infos {
		if len(chips) >= 5 {
			break
		}
		chips = append(chips, ReasonChip{Factor: p.Factor, Text: p.Text, Emoji: "info"})
	}

	if len(chips) < 2 {
		for _, p := range zeros {
			if len(chips) >= 2 {
				break
			}
			if !hasFactor(chips, p.Factor) {
				chips = append(chips, ReasonChip{Factor: p.Factor, Text: p.Text, Emoji: "check"})
			}
		}
	}

	if len(chips) < 2 && score >= 70 {
		generics := []ReasonChip{
			{Factor: "wind", Text: "Calm wind", Emoji: "check"},
			{Factor: "aqi", Text: "Air quality good", Emoji: "check"},
		}
		for _, g := range generics {
			if len(chips) >= 2 {
				break
			}
			if !hasFactor(chips, g.Factor) {
				chips = append(chips, g)
			}
		}
	}

	if len(chips) > 5 {
		chips = chips[:5]
	}
	return chips
}

func lessNegative(a, b penalty) bool {
	aa, ab := -a.Amount, -b.Amount
	if aa != ab {
		return aa > ab
	}
	return priorityIndex(a.Factor) < priorityIndex(b.Factor)
}

func hasFactor(chips []ReasonChip, factor string) bool {
	for _, c := range chips {
		if c.Factor == factor {
			return true
		}
	}
	return false
}

// selectPositiveChip picks the first candidate factor that was neither
// penalized nor flagged as missing.
func selectPositiveChip(penalties []penalty, mode string) *ReasonChip {
	penalized := map[string]bool{}
	missing := map[string]bool{}
	for _, p := range penalties {
		if p.Amount < 0 {
			penalized[p.Factor] = true
		} else if p.Info {
			missing[p.Factor] = true
		}
	}

	type candidate struct{ factor, text string }
	var candidates []candidate
	if mode == "swim_solo" || mode == "swim_dog" {
		candidates = append(candidates, candidate{"waves", "Waves calm"})
	}
	candidates = append(candidates,
		candidate{"heat", "Nice temperature"},
		candidate{"uv", "UV low"},
		candidate{"aqi", "Air quality good"},
		candidate{"wind", "Calm wind"},
	)

	for _, c := range candidates {
		if !penalized[c.factor] && !missing[c.factor] {
			return &ReasonChip{Factor: c.factor, Text: c.text, Emoji: "check"}
		}
	}
	return nil
}

func sumPenalties(penalties []penalty) int {
	total := 0
	for _, p := range penalties {
		total += p.Amount
	}
	return total
}

func clampScore(total int) int {
	score := 100 + total
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Shared factor helpers. Each appends either a negative penalty or an info
// tuple for absent data.

func windPenalty(hour HourInput, t Thresholds, maxPenalty float64, penalties []penalty) []penalty {
	if hour.GustMS == nil {
		return append(penalties, penalty{Factor: "wind", Text: "Wind data unavailable", Info: true})
	}
	if p := linearPenalty(*hour.GustMS, t.WindOkMS, t.WindBadMS, maxPenalty); p > 0 {
		return append(penalties, penalty{
			Factor: "wind",
			Amount: -roundPenalty(p),
			Text:   fmt.Sprintf("Gusty %.0fm/s", *hour.GustMS),
		})
	}
	return penalties
}

func aqiPenalty(hour HourInput, t Thresholds, maxPenalty float64, penalties []penalty) []penalty {
	if hour.EuAQI == nil {
		return append(penalties, penalty{Factor: "aqi", Text: "AQI data unavailable", Info: true})
	}
	if p := linearPenalty(float64(*hour.EuAQI), t.AQIOk, t.AQIBad, maxPenalty); p > 0 {
		text := "AQI moderate"
		if p >= maxPenalty*0.7 {
			text = "Air quality poor"
		}
		return append(penalties, penalty{Factor: "aqi", Amount: -roundPenalty(p), Text: text})
	}
	return penalties
}

func rainPenalty(hour HourInput, t Thresholds, penalties []penalty) []penalty {
	if hour.PrecipProbPct == nil {
		return penalties
	}
	if p := linearPenalty(float64(*hour.PrecipProbPct), t.RainProbOkPct, t.RainProbBadPct, t.RainRunMaxPenalty); p > 0 {
		return append(penalties, penalty{Factor: "rain", Amount: -roundPenalty(p), Text: "Rain possible"})
	}
	return penalties
}

// Mode scorers.

func scoreSwimSolo(hour HourInput, t Thresholds) ModeScore {
	if rainGated(hour, t) {
		return gatedResult(rainGateChip(hour, t))
	}

	var penalties []penalty

	if hour.WaveHeightM != nil {
		if p := linearPenalty(*hour.WaveHeightM, t.SwimWaveOkM, t.SwimWaveBadM, t.SwimWaveMaxPenalty); p > 0 {
			r := roundPenalty(p)
			penalties = append(penalties, penalty{Factor: "waves", Amount: -r, Text: waveText(*hour.WaveHeightM, r)})
		}
	} else {
		penalties = append(penalties, penalty{Factor: "waves", Text: "Wave data unavailable", Info: true})
	}

	penalties = windPenalty(hour, t, t.WindSwimMaxPenalty, penalties)
	penalties = aqiPenalty(hour, t, t.AQISwimMaxPenalty, penalties)

	if hour.FeelslikeC != nil {
		pHeat := linearPenalty(*hour.FeelslikeC, t.SwimHeatOkC, t.SwimHeatBadC, t.SwimHeatMaxPenalty)
		pCold := linearPenalty(*hour.FeelslikeC, t.SwimColdOkC, t.SwimColdBadC, t.SwimColdMaxPenalty)
		if pCold > 0 {
			penalties = append(penalties, penalty{
				Factor: "cold",
				Amount: -roundPenalty(pCold),
				Text:   fmt.Sprintf("Chilly %.0f°C", *hour.FeelslikeC),
			})
		} else if pHeat > 0 {
			penalties = append(penalties, penalty{
				Factor: "heat",
				Amount: -roundPenalty(pHeat),
				Text:   fmt.Sprintf("Hot %.0f°C", *hour.FeelslikeC),
			})
		}
	} else {
		penalties = append(penalties, penalty{Factor: "heat", Text: "Temp data unavailable", Info: true})
	}

	// UV never penalizes solo swimming; water shields most exposure.
	if hour.UVIndex == nil {
		penalties = append(penalties, penalty{Factor: "uv", Text: "UV data unavailable", Info: true})
	}

	score := clampScore(sumPenalties(penalties))

	sunMult := sunsetMultiplier(hour.HourUTC, hour.SunsetUTC)
	if sunMult == 0 {
		return afterDarkResult()
	}
	if sunMult < 1 {
		score = int(float64(score) * sunMult)
		if score < 0 {
			score = 0
		}
	}

	return ModeScore{
		Score:   score,
		Label:   scoreToLabel(score),
		Reasons: buildReasonChips(penalties, score, "swim_solo"),
	}
}

func scoreSwimDog(hour HourInput, t Thresholds) ModeScore {
	if rainGated(hour, t) {
		return gatedResult(rainGateChip(hour, t))
	}

	var penalties []penalty

	if hour.WaveHeightM != nil {
		if p := linearPenalty(*hour.WaveHeightM, t.SwimDogWaveOkM, t.SwimDogWaveBadM, t.SwimDogWaveMaxPenalty); p > 0 {
			r := roundPenalty(p)
			penalties = append(penalties, penalty{Factor: "waves", Amount: -r, Text: waveDogText(*hour.WaveHeightM, r)})
		}
	} else {
		penalties = append(penalties, penalty{Factor: "waves", Text: "Wave data unavailable", Info: true})
	}

	penalties = windPenalty(hour, t, t.WindSwimMaxPenalty, penalties)
	penalties = aqiPenalty(hour, t, t.AQISwimMaxPenalty, penalties)

	if hour.FeelslikeC != nil {
		if p := linearPenalty(*hour.FeelslikeC, t.DogSwimHeatOkC, t.DogSwimHeatBadC, t.DogSwimHeatMaxPenalty); p > 0 {
			penalties = append(penalties, penalty{Factor: "heat", Amount: -roundPenalty(p), Text: "Warm for paws"})
		}
	} else {
		penalties = append(penalties, penalty{Factor: "heat", Text: "Temp data unavailable", Info: true})
	}

	if hour.UVIndex != nil {
		if p := linearPenalty(*hour.UVIndex, t.UVOk, t.UVBad, t.UVSwimDogMaxPenalty); p > 0 {
			penalties = append(penalties, penalty{Factor: "uv", Amount: -roundPenalty(p), Text: "UV elevated"})
		}
	} else {
		penalties = append(penalties, penalty{Factor: "uv", Text: "UV data unavailable", Info: true})
	}

	score := clampScore(sumPenalties(penalties))

	sunMult := sunsetMultiplier(hour.HourUTC, hour.SunsetUTC)
	if sunMult == 0 {
		return afterDarkResult()
	}
	if sunMult < 1 {
		score = int(float64(score) * sunMult)
		if score < 0 {
			score = 0
		}
	}

	return ModeScore{
		Score:   score,
		Label:   scoreToLabel(score),
		Reasons: buildReasonChips(penalties, score, "swim_dog"),
	}
}

func scoreRunSolo(hour HourInput, t Thresholds) ModeScore {
	if rainGated(hour, t) {
		return gatedResult(rainGateChip(hour, t))
	}
	if windGated(hour, t) {
		return gatedResult(ReasonChip{Factor: "wind", Text: "Wind too strong", Emoji: "danger"})
	}

	var penalties []penalty

	if hour.FeelslikeC != nil {
		if p := linearPenalty(*hour.FeelslikeC, t.RunHeatOkC, t.RunHeatBadC, t.RunHeatMaxPenalty); p > 0 {
			text := fmt.Sprintf("Warm %.0f°C", *hour.FeelslikeC)
			if p >= t.RunHeatMaxPenalty*0.8 {
				text = "Too hot to run"
			}
			penalties = append(penalties, penalty{Factor: "heat", Amount: -roundPenalty(p), Text: text})
		}
	} else {
		penalties = append(penalties, penalty{Factor: "heat", Text: "Temp data unavailable", Info: true})
	}

	if hour.UVIndex != nil {
		if p := linearPenalty(*hour.UVIndex, t.UVOk, t.UVBad, t.UVRunMaxPenalty); p > 0 {
			text := "UV elevated"
			if p >= t.UVRunMaxPenalty*0.7 {
				text = "UV very high"
			}
			penalties = append(penalties, penalty{Factor: "uv", Amount: -roundPenalty(p), Text: text})
		}
	} else {
		penalties = append(penalties, penalty{Factor: "uv", Text: "UV data unavailable", Info: true})
	}

	penalties = aqiPenalty(hour, t, t.AQIRunMaxPenalty, penalties)
	penalties = windPenalty(hour, t, t.WindRunMaxPenalty, penalties)
	penalties = rainPenalty(hour, t, penalties)

	score := clampScore(sumPenalties(penalties))
	return ModeScore{
		Score:   score,
		Label:   scoreToLabel(score),
		Reasons: buildReasonChips(penalties, score, "run_solo"),
	}
}

func scoreRunDog(hour HourInput, t Thresholds) ModeScore {
	if rainGated(hour, t) {
		return gatedResult(rainGateChip(hour, t))
	}
	if windGated(hour, t) {
		return gatedResult(ReasonChip{Factor: "wind", Text: "Wind too strong", Emoji: "danger"})
	}
	if dogHeatGated(hour, t) {
		return gatedResult(ReasonChip{Factor: "heat", Text: "Too hot for dog", Emoji: "danger"})
	}

	var penalties []penalty
	mult := t.DogMultiplier

	if hour.FeelslikeC != nil {
		if p := linearPenalty(*hour.FeelslikeC, t.RunHeatOkC, t.RunHeatBadC, t.RunHeatMaxPenalty) * mult; p > 0 {
			text := fmt.Sprintf("Warm %.0f°C", *hour.FeelslikeC)
			if p >= t.RunHeatMaxPenalty*mult*0.8 {
				text = "Too hot to run"
			}
			penalties = append(penalties, penalty{Factor: "heat", Amount: -roundPenalty(p), Text: text})
		}
	} else {
		penalties = append(penalties, penalty{Factor: "heat", Text: "Temp data unavailable", Info: true})
	}

	if hour.UVIndex != nil {
		if p := linearPenalty(*hour.UVIndex, t.UVOk, t.UVBad, t.UVRunMaxPenalty) * mult; p > 0 {
			text := "UV elevated"
			if p >= t.UVRunMaxPenalty*mult*0.7 {
				text = "UV very high"
			}
			penalties = append(penalties, penalty{Factor: "uv", Amount: -roundPenalty(p), Text: text})
		}
	} else {
		penalties = append(penalties, penalty{Factor: "uv", Text: "UV data unavailable", Info: true})
	}

	if hour.EuAQI != nil {
		if p := linearPenalty(float64(*hour.EuAQI), t.AQIOk, t.AQIBad, t.AQIRunMaxPenalty) * mult; p > 0 {
			text := "AQI moderate"
			if p >= t.AQIRunMaxPenalty*mult*0.7 {
				text = "Air quality poor"
			}
			penalties = append(penalties, penalty{Factor: "aqi", Amount: -roundPenalty(p), Text: text})
		}
	} else {
		penalties = append(penalties, penalty{Factor: "aqi", Text: "AQI data unavailable", Info: true})
	}

	// Wind and rain carry no dog multiplier.
	penalties = windPenalty(hour, t, t.WindRunMaxPenalty, penalties)
	penalties = rainPenalty(hour, t, penalties)

	score := clampScore(sumPenalties(penalties))
	return ModeScore{
		Score:   score,
		Label:   scoreToLabel(score),
		Reasons: buildReasonChips(penalties, score, "run_dog"),
	}
}
