// Package scoring computes the four per-mode activity scores for one
// forecast hour. It is pure: no I/O, no shared state, safe for concurrent
// use across requests.
package scoring

// Thresholds defines one scoring preset. Each ramped factor carries an ok
// value (zero penalty), a bad value (maximum penalty), and the maximum;
// between them the penalty scales linearly. Hard gates are binary and are
// not ramped.
type Thresholds struct {
	SwimWaveOkM        float64
	SwimWaveBadM       float64
	SwimWaveMaxPenalty float64

	SwimDogWaveOkM        float64
	SwimDogWaveBadM       float64
	SwimDogWaveMaxPenalty float64

	RunHeatOkC        float64
	RunHeatBadC       float64
	RunHeatMaxPenalty float64

	SwimHeatOkC        float64
	SwimHeatBadC       float64
	SwimHeatMaxPenalty float64

	// Reversed ramp: penalty grows as the temperature drops below ok.
	SwimColdOkC        float64
	SwimColdBadC       float64
	SwimColdMaxPenalty float64

	// swim_dog heat is a penalty, not a gate. Dogs can cool in the water.
	DogSwimHeatOkC        float64
	DogSwimHeatBadC       float64
	DogSwimHeatMaxPenalty float64

	UVOk                float64
	UVBad               float64
	UVRunMaxPenalty     float64
	UVSwimDogMaxPenalty float64

	AQIOk             float64
	AQIBad            float64
	AQISwimMaxPenalty float64
	AQIRunMaxPenalty  float64

	WindOkMS           float64
	WindBadMS          float64
	WindSwimMaxPenalty float64
	WindRunMaxPenalty  float64

	RainProbOkPct     float64
	RainProbBadPct    float64
	RainRunMaxPenalty float64

	RainGateMM         float64
	RainGateProbPct    int
	WindGateMS         float64
	DogHeatGateC       float64
	DogHeatCompoundC   float64
	DogHeatCompoundUV  float64

	DogMultiplier float64
}

// Balanced is the shipped preset.
func Balanced() Thresholds {
	return Thresholds{
		SwimWaveOkM:        0.3,
		SwimWaveBadM:       1.5,
		SwimWaveMaxPenalty: 70,

		SwimDogWaveOkM:        0.3,
		SwimDogWaveBadM:       1.0,
		SwimDogWaveMaxPenalty: 80,

		RunHeatOkC:        26.0,
		RunHeatBadC:       38.0,
		RunHeatMaxPenalty: 60,

		SwimHeatOkC:        28.0,
		SwimHeatBadC:       40.0,
		SwimHeatMaxPenalty: 10,

		SwimColdOkC:        18.0,
		SwimColdBadC:       10.0,
		SwimColdMaxPenalty: 15,

		DogSwimHeatOkC:        24.0,
		DogSwimHeatBadC:       34.0,
		DogSwimHeatMaxPenalty: 20,

		UVOk:                4.0,
		UVBad:               10.0,
		UVRunMaxPenalty:     25,
		UVSwimDogMaxPenalty: 15,

		AQIOk:             40,
		AQIBad:            120,
		AQISwimMaxPenalty: 25,
		AQIRunMaxPenalty:  40,

		WindOkMS:           7.0,
		WindBadMS:          14.0,
		WindSwimMaxPenalty: 15,
		WindRunMaxPenalty:  12,

		RainProbOkPct:     30.0,
		RainProbBadPct:    79.0,
		RainRunMaxPenalty: 10,

		RainGateMM:        3.0,
		RainGateProbPct:   80,
		WindGateMS:        14.0,
		DogHeatGateC:      29.0,
		DogHeatCompoundC:  26.0,
		DogHeatCompoundUV: 8.0,

		DogMultiplier: 1.2,
	}
}
