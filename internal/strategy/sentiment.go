package strategy

// SentimentProvider supplies an optional per-symbol sentiment score in
// [-1, 1]. A missing score leaves the base decision untouched.
type SentimentProvider interface {
	Score(symbol string) (float64, bool)
}

// StaticSentiment is a fixed symbol→score map, used in tests and as a
// stand-in until a news feed is wired up.
type StaticSentiment map[string]float64

func (s StaticSentiment) Score(symbol string) (float64, bool) {
	v, ok := s[symbol]
	return v, ok
}

// applySentiment adjusts a base signal with a sentiment score. Mild
// sentiment (|s| > 0.2) upgrades a HOLD; strong opposing sentiment
// (|s| > 0.5) downgrades a BUY/SELL back to HOLD. The overlay runs
// strictly after the base strategy decision.
func applySentiment(sig Signal, score float64, snap *Snapshot) Signal {
	// Scores outside [-1, 1] are clamped.
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	if snap.Indicators == nil {
		snap.Indicators = map[string]float64{}
	}
	snap.Indicators["sentiment"] = score

	switch {
	case score > 0.2 && sig == SignalHold:
		snap.Reason += "; positive sentiment upgrade"
		return SignalBuy
	case score < -0.2 && sig == SignalHold:
		snap.Reason += "; negative sentiment upgrade"
		return SignalSell
	case score > 0.5 && sig == SignalSell:
		snap.Reason += "; strong positive sentiment blocked sell"
		return SignalHold
	case score < -0.5 && sig == SignalBuy:
		snap.Reason += "; strong negative sentiment blocked buy"
		return SignalHold
	}
	return sig
}
