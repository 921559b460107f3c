package projection

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type dnaInput struct {
	inDegree  int
	outDegree int
	volume    float64
	txCount   int
	totalOut  float64
	score     float64
	inRing    bool
}

// behavioralDNA derives the six display metrics of an account.
// Every metric lands in [0,100].
func behavioralDNA(in dnaInput) domain.BehavioralDNA {
	degree := float64(in.inDegree + in.outDegree)

	velocity := roundHalfUp(float64(in.txCount) / math.Max(1, degree) * 20)

	amtVariance := roundHalfUp(math.Mod(in.volume/10000, 100))

	fanSymmetry := 0
	if degree > 0 {
		fanSymmetry = roundHalfUp(math.Abs(float64(in.inDegree-in.outDegree)) / degree * 100)
	}

	temporalCluster := roundHalfUp(in.score * 0.8)

	hopDepth := roundHalfUp(in.score * 0.3)
	if in.inRing {
		hopDepth = 60 + roundHalfUp(in.score*0.4)
	}

	amtDecay := 0
	if in.volume != 0 {
		amtDecay = roundHalfUp(in.totalOut / math.Max(1, in.volume) * 100)
	}

	return domain.BehavioralDNA{
		Velocity:        bound(velocity),
		AmtVariance:     bound(amtVariance),
		FanSymmetry:     bound(fanSymmetry),
		TemporalCluster: bound(temporalCluster),
		HopDepth:        bound(hopDepth),
		AmtDecay:        bound(amtDecay),
	}
}

// roundClamp bounds roundHalfUp so huge or infinite inputs still convert to
// int with a well-defined sign.
const roundClamp = 1e9

func roundHalfUp(x float64) int {
	if math.IsNaN(x) {
		return 0
	}
	return int(math.Floor(math.Max(-roundClamp, math.Min(roundClamp, x)) + 0.5))
}

func bound(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func clampScore(s float64) float64 {
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 100:
		return 100
	}
	return s
}
