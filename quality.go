package serialscope

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// Action is the analyzer's recommendation for a received chunk
type Action int

const (
	ActionNormal Action = iota
	ActionCleanAndProcess
	ActionDiscard
	ActionTriggerRateProbe
	ActionPauseProcessing
)

// String returns the string representation of Action
func (a Action) String() string {
	switch a {
	case ActionNormal:
		return "normal"
	case ActionCleanAndProcess:
		return "clean-and-process"
	case ActionDiscard:
		return "discard"
	case ActionTriggerRateProbe:
		return "trigger-rate-probe"
	case ActionPauseProcessing:
		return "pause-processing"
	default:
		return "unknown"
	}
}

// Trend classifies whether a device's recent quality scores are rising,
// falling, or flat
type Trend int

const (
	TrendStable Trend = iota
	TrendImproving
	TrendDeteriorating
)

// String returns the string representation of Trend
func (t Trend) String() string {
	switch t {
	case TrendImproving:
		return "improving"
	case TrendDeteriorating:
		return "deteriorating"
	default:
		return "stable"
	}
}

// Verdict is the transient per-chunk result. Cleaned is only populated
// for ActionCleanAndProcess.
type Verdict struct {
	Valid   bool
	Score   float64
	Action  Action
	Cleaned []byte
}

// QualityConfig holds the analyzer thresholds. The values are tuned
// empirically, not derived from a protocol invariant, so they are
// configurable with the tuned values as defaults.
type QualityConfig struct {
	NormalThreshold  float64 // score at or above which a chunk passes untouched
	DiscardThreshold float64 // score below which a chunk is discarded
	CleanedMaxBytes  int     // cap on cleaned payload length

	GarbageScore         float64 // guard: score below this pauses processing
	GarbageChunkBytes    int     // guard: chunks larger than this pause processing
	GarbageRepetition    float64 // guard: single-byte repetition ratio
	GarbageRepetitionLen int     // guard: repetition only considered above this length

	ConsecutiveInvalidLimit int     // invalid streak that escalates to a rate probe
	TrendMinPackets         int     // packets required before a trend is computed
	TrendWindow             int     // trailing average-score samples for the trend
	TrendDelta              float64 // relative change that flips the trend
	ProbeAverageLimit       float64 // sustained average below this suggests probing
	ProbeDeterioratingLimit float64 // average below this plus a falling trend suggests probing
}

// DefaultQualityConfig returns the tuned defaults
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		NormalThreshold:  0.7,
		DiscardThreshold: 0.3,
		CleanedMaxBytes:  2048,

		GarbageScore:         0.1,
		GarbageChunkBytes:    16 * 1024,
		GarbageRepetition:    0.8,
		GarbageRepetitionLen: 100,

		ConsecutiveInvalidLimit: 10,
		TrendMinPackets:         20,
		TrendWindow:             10,
		TrendDelta:              0.10,
		ProbeAverageLimit:       0.3,
		ProbeDeterioratingLimit: 0.45,
	}
}

// QualityState tracks per-device running counters and the derived trend.
// It survives reconnects so trend history is retained across a link flap;
// Reset clears it after a deliberate baud-rate change.
type QualityState struct {
	TotalPackets       int
	ValidPackets       int
	InvalidPackets     int
	ConsecutiveInvalid int
	AverageScore       float64
	Trend              Trend

	// trailing window of recent average-score samples
	samples []float64
}

// Common textual/protocol shapes. A chunk matching any of these gets the
// full pattern-component credit.
var protocolShapes = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Za-z0-9\s]+$`),                      // plain alphanumeric
	regexp.MustCompile(`^[[:print:]\t\r\n]+$`),                  // text with punctuation
	regexp.MustCompile(`(?i)\b(OK|ACK|NAK|ERROR|READY|DONE)\b`), // acknowledgement tokens
	regexp.MustCompile(`^(AT|\$GP|\$GN)`),                       // modem / NMEA prefixes
}

var hexShape = regexp.MustCompile(`^[0-9A-Fa-f\s]+$`)

// Analyzer scores byte chunks for data plausibility and tracks per-device
// quality state. Safe for concurrent use across sessions.
type Analyzer struct {
	cfg    QualityConfig
	mu     sync.Mutex
	states map[string]*QualityState
}

// NewAnalyzer creates an analyzer with the given thresholds
func NewAnalyzer(cfg QualityConfig) *Analyzer {
	if cfg.TrendWindow < 2 {
		cfg.TrendWindow = 2
	}
	return &Analyzer{
		cfg:    cfg,
		states: make(map[string]*QualityState),
	}
}

// Score computes the quality score and action for a single chunk without
// touching any per-device state. Weighted sum clipped to [0,1]:
// printable ratio (0.4), protocol shape (0.3), character diversity (0.2)
// and length plausibility (0.1).
func (a *Analyzer) Score(chunk []byte) Verdict {
	if len(chunk) == 0 {
		return Verdict{Valid: false, Score: 0, Action: ActionDiscard}
	}

	text, confidence := decodeChunk(chunk)
	if confidence == 0 {
		return a.verdictFor(chunk, 0)
	}

	score := 0.4*printableRatio(chunk) +
		shapeComponent(text) +
		0.2*diversityComponent(chunk) +
		0.1*lengthComponent(len(chunk))

	score *= confidence
	if score > 1 {
		score = 1
	}
	return a.verdictFor(chunk, score)
}

// Analyze scores a chunk and folds the result into the device's quality
// state, escalating Discard to TriggerRateProbe once the consecutive
// invalid streak reaches the configured limit.
func (a *Analyzer) Analyze(device string, chunk []byte) Verdict {
	verdict := a.Score(chunk)

	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.states[device]
	if state == nil {
		state = &QualityState{}
		a.states[device] = state
	}

	state.TotalPackets++
	if verdict.Valid {
		state.ValidPackets++
		state.ConsecutiveInvalid = 0
	} else {
		state.InvalidPackets++
		state.ConsecutiveInvalid++
	}

	// Incremental mean keeps the running average cheap to maintain
	state.AverageScore += (verdict.Score - state.AverageScore) / float64(state.TotalPackets)

	state.samples = append(state.samples, state.AverageScore)
	if len(state.samples) > a.cfg.TrendWindow {
		state.samples = state.samples[len(state.samples)-a.cfg.TrendWindow:]
	}
	if state.TotalPackets >= a.cfg.TrendMinPackets {
		state.Trend = a.computeTrend(state.samples)
	}

	if verdict.Action == ActionDiscard &&
		state.ConsecutiveInvalid >= a.cfg.ConsecutiveInvalidLimit {
		verdict.Action = ActionTriggerRateProbe
	}

	return verdict
}

// State returns a snapshot of the device's quality state
func (a *Analyzer) State(device string) QualityState {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.states[device]
	if state == nil {
		return QualityState{}
	}
	snapshot := *state
	snapshot.samples = nil
	return snapshot
}

// Reset clears the device's quality state, typically after a baud-rate
// change invalidates the accumulated history
func (a *Analyzer) Reset(device string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, device)
}

// ShouldTriggerRateProbe reports whether the device's accumulated state
// suggests the configured speed is wrong
func (a *Analyzer) ShouldTriggerRateProbe(device string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.states[device]
	if state == nil {
		return false
	}

	if state.ConsecutiveInvalid >= a.cfg.ConsecutiveInvalidLimit {
		return true
	}
	if state.TotalPackets >= a.cfg.TrendMinPackets &&
		state.AverageScore < a.cfg.ProbeAverageLimit {
		return true
	}
	if state.Trend == TrendDeteriorating &&
		state.AverageScore < a.cfg.ProbeDeterioratingLimit {
		return true
	}
	return false
}

// ProbeReason describes why a rate probe is being suggested, suitable
// for the RateProbeRequested event
func (a *Analyzer) ProbeReason(device string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.states[device]
	if state == nil {
		return ""
	}
	switch {
	case state.ConsecutiveInvalid >= a.cfg.ConsecutiveInvalidLimit:
		return "consecutive invalid data"
	case state.TotalPackets >= a.cfg.TrendMinPackets &&
		state.AverageScore < a.cfg.ProbeAverageLimit:
		return "sustained low quality score"
	case state.Trend == TrendDeteriorating:
		return "deteriorating quality trend"
	default:
		return ""
	}
}

// verdictFor maps a score to an action, applying the independent
// garbage-data guard first so pathological floods always pause the
// caller regardless of how the chunk scored.
func (a *Analyzer) verdictFor(chunk []byte, score float64) Verdict {
	if a.isGarbage(chunk, score) {
		return Verdict{Valid: false, Score: score, Action: ActionPauseProcessing}
	}

	switch {
	case score >= a.cfg.NormalThreshold:
		return Verdict{Valid: true, Score: score, Action: ActionNormal}
	case score >= a.cfg.DiscardThreshold:
		return Verdict{
			Valid:   true,
			Score:   score,
			Action:  ActionCleanAndProcess,
			Cleaned: cleanChunk(chunk, a.cfg.CleanedMaxBytes),
		}
	default:
		return Verdict{Valid: false, Score: score, Action: ActionDiscard}
	}
}

// isGarbage applies the flood guard: hopeless score, oversized chunk, or
// a stuck line repeating one byte
func (a *Analyzer) isGarbage(chunk []byte, score float64) bool {
	if score < a.cfg.GarbageScore {
		return true
	}
	if len(chunk) > a.cfg.GarbageChunkBytes {
		return true
	}
	if len(chunk) > a.cfg.GarbageRepetitionLen &&
		maxByteRatio(chunk) >= a.cfg.GarbageRepetition {
		return true
	}
	return false
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeTrend compares the mean of the most recent half of the samples
// against the older half
func (a *Analyzer) computeTrend(samples []float64) Trend {
	if len(samples) < 2 {
		return TrendStable
	}
	half := len(samples) / 2
	older := mean(samples[:half])
	recent := mean(samples[len(samples)-half:])

	if older == 0 {
		if recent > 0 {
			return TrendImproving
		}
		return TrendStable
	}
	switch {
	case recent > older*(1+a.cfg.TrendDelta):
		return TrendImproving
	case recent < older*(1-a.cfg.TrendDelta):
		return TrendDeteriorating
	default:
		return TrendStable
	}
}

// decodeChunk validates the chunk as text. Valid UTF-8 passes at full
// confidence; anything else falls back to a lower-confidence ASCII-only
// pass, and a chunk with no ASCII text at all fails decoding outright.
func decodeChunk(chunk []byte) (string, float64) {
	if utf8.Valid(chunk) {
		return string(chunk), 1.0
	}

	ascii := make([]byte, 0, len(chunk))
	for _, b := range chunk {
		if b < 0x80 {
			ascii = append(ascii, b)
		}
	}
	if len(ascii) == 0 {
		return "", 0
	}
	return string(ascii), 0.8
}

// printableRatio counts bytes that decode as text: control characters
// and the 0x20-0x7E range both count as printable
func printableRatio(chunk []byte) float64 {
	printable := 0
	for _, b := range chunk {
		if b < 0x20 || (b >= 0x20 && b <= 0x7E) {
			printable++
		}
	}
	return float64(printable) / float64(len(chunk))
}

// shapeComponent gives full credit for common textual/protocol shapes
// and partial credit for chunks that look like pure hexadecimal text
func shapeComponent(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	for _, shape := range protocolShapes {
		if shape.MatchString(trimmed) {
			return 0.3
		}
	}
	if len(trimmed) > 10 && hexShape.MatchString(trimmed) {
		return 0.2
	}
	return 0
}

// diversityComponent normalizes unique-byte count against min(50, len),
// halved when more than 30% of the chunk is one repeated byte, a proxy
// for stuck-line noise
func diversityComponent(chunk []byte) float64 {
	var seen [256]bool
	unique := 0
	for _, b := range chunk {
		if !seen[b] {
			seen[b] = true
			unique++
		}
	}

	denom := len(chunk)
	if denom > 50 {
		denom = 50
	}
	diversity := float64(unique) / float64(denom)
	if diversity > 1 {
		diversity = 1
	}
	if maxByteRatio(chunk) > 0.3 {
		diversity /= 2
	}
	return diversity
}

// lengthComponent scores length plausibility: full credit for 5-1024
// bytes, tapering above that, heavily penalized above 16 KB
func lengthComponent(length int) float64 {
	switch {
	case length == 0:
		return 0
	case length < 5:
		return 0.2
	case length <= 1024:
		return 1.0
	case length <= 16*1024:
		// taper from 1.0 down to 0.5 across 1 KB..16 KB
		return 1.0 - 0.5*float64(length-1024)/float64(16*1024-1024)
	default:
		return 0.1
	}
}

// maxByteRatio returns the share of the chunk occupied by its most
// frequent byte
func maxByteRatio(chunk []byte) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var counts [256]int
	max := 0
	for _, b := range chunk {
		counts[b]++
		if counts[b] > max {
			max = counts[b]
		}
	}
	return float64(max) / float64(len(chunk))
}

// cleanChunk strips non-printable bytes and caps the cleaned payload
func cleanChunk(chunk []byte, maxBytes int) []byte {
	cleaned := make([]byte, 0, len(chunk))
	for _, b := range chunk {
		if (b >= 0x20 && b <= 0x7E) || b == '\t' || b == '\r' || b == '\n' {
			cleaned = append(cleaned, b)
		}
		if len(cleaned) >= maxBytes {
			break
		}
	}
	return cleaned
}
