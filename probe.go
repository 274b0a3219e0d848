package serialscope

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// ProbeConfig controls the candidate sweep
type ProbeConfig struct {
	Candidates     []int         // ordered list of common speeds to try
	MinBytes       int           // bytes required before scoring is meaningful
	MaxBytes       int           // collection cap per trial
	SettleDelay    time.Duration // pause between trials so the OS releases the handle
	FastDuration   time.Duration // per-candidate window for the abbreviated sweep
	AcceptLimit    float64       // Validate: confidence above this passes
	AlternateLimit float64       // Validate: alternatives must exceed this
	MaxAlternates  int           // Validate: alternatives proposed at most
}

// DefaultProbeConfig returns the default sweep settings
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Candidates:     []int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600},
		MinBytes:       10,
		MaxBytes:       64 * 1024,
		SettleDelay:    100 * time.Millisecond,
		FastDuration:   300 * time.Millisecond,
		AcceptLimit:    0.5,
		AlternateLimit: 0.3,
		MaxAlternates:  3,
	}
}

// CandidateResult is one probe outcome
type CandidateResult struct {
	BaudRate   int
	Confidence float64
	ValidBytes int
	TotalBytes int
	Reason     string
}

// ValidationReport is the outcome of validating a configured speed,
// with suggested alternatives when the configured speed looks wrong
type ValidationReport struct {
	Result       CandidateResult
	Acceptable   bool
	Alternatives []CandidateResult
}

// Prober drives short-lived trial connections at candidate speeds and
// ranks them by how plausible the collected data looks. Each trial is a
// one-shot measurement counted directly, never through the analyzer's
// shared running state.
type Prober struct {
	cfg    ProbeConfig
	logger *slog.Logger
}

// NewProber creates a prober. A nil logger disables probe logging.
func NewProber(cfg ProbeConfig, logger *slog.Logger) *Prober {
	if len(cfg.Candidates) == 0 {
		cfg.Candidates = DefaultProbeConfig().Candidates
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 10
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 64 * 1024
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Prober{cfg: cfg, logger: logger}
}

// ProbeBest tries every candidate speed for perCandidate and returns
// results sorted descending by confidence. A failed trial is recorded in
// its result rather than aborting the sweep; only context cancellation
// stops it early.
func (p *Prober) ProbeBest(ctx context.Context, device string, perCandidate time.Duration) ([]CandidateResult, error) {
	results := make([]CandidateResult, 0, len(p.cfg.Candidates))

	for i, baud := range p.cfg.Candidates {
		if ctx.Err() != nil {
			return rankResults(results), ctx.Err()
		}

		result := p.probeCandidate(ctx, device, baud, perCandidate)
		results = append(results, result)
		p.logger.Debug("probe trial finished",
			"device", device, "baud", baud,
			"confidence", result.Confidence, "bytes", result.TotalBytes)

		// Let the OS reclaim the trial handle before the next open
		if i < len(p.cfg.Candidates)-1 {
			select {
			case <-ctx.Done():
				return rankResults(results), ctx.Err()
			case <-time.After(p.cfg.SettleDelay):
			}
		}
	}

	return rankResults(results), nil
}

// Validate runs one trial at the configured speed. When confidence
// comes back at or below the accept limit it additionally runs a fast
// abbreviated sweep and proposes up to MaxAlternates better candidates.
func (p *Prober) Validate(ctx context.Context, device string, baud int, duration time.Duration) (*ValidationReport, error) {
	result := p.probeCandidate(ctx, device, baud, duration)
	report := &ValidationReport{
		Result:     result,
		Acceptable: result.Confidence > p.cfg.AcceptLimit,
	}
	if report.Acceptable {
		return report, nil
	}

	for _, candidate := range p.cfg.Candidates {
		if candidate == baud {
			continue
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		alt := p.probeCandidate(ctx, device, candidate, p.cfg.FastDuration)
		if alt.Confidence > p.cfg.AlternateLimit {
			report.Alternatives = append(report.Alternatives, alt)
		}

		select {
		case <-ctx.Done():
			return report, ctx.Err()
		case <-time.After(p.cfg.SettleDelay):
		}
	}

	report.Alternatives = rankResults(report.Alternatives)
	if len(report.Alternatives) > p.cfg.MaxAlternates {
		report.Alternatives = report.Alternatives[:p.cfg.MaxAlternates]
	}
	return report, nil
}

// probeCandidate opens an isolated trial connection, passively collects
// inbound bytes for the window, and scores the collected data
func (p *Prober) probeCandidate(ctx context.Context, device string, baud int, window time.Duration) CandidateResult {
	result := CandidateResult{BaudRate: baud}

	cfg := DefaultConfig()
	cfg.BaudRate = baud

	h, err := openHandle(device, cfg)
	if err != nil {
		result.Reason = fmt.Sprintf("open failed: %v", err)
		return result
	}
	defer h.Close()

	// Discard whatever the driver buffered before this trial
	_ = h.FlushInput()

	collected := p.collect(ctx, h, window)
	result.TotalBytes = len(collected)

	if result.TotalBytes < p.cfg.MinBytes {
		// A misleadingly low score would look like a verdict; an explicit
		// reason is honest about the measurement being void.
		result.Reason = ErrInsufficientData.Error()
		return result
	}

	result.ValidBytes = countPrintable(collected)
	result.Confidence = probeConfidence(collected)
	switch {
	case result.Confidence >= 0.7:
		result.Reason = "good data quality"
	case result.Confidence >= 0.3:
		result.Reason = "partially valid data"
	default:
		result.Reason = "mostly noise"
	}
	return result
}

// collect reads passively until the window elapses, the cap is hit, or
// the context is cancelled
func (p *Prober) collect(ctx context.Context, h handle, window time.Duration) []byte {
	deadline := time.Now().Add(window)
	readCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	collected := make([]byte, 0, 4096)
	buf := make([]byte, 4096)

	for time.Now().Before(deadline) && len(collected) < p.cfg.MaxBytes {
		n, err := h.ReadContext(readCtx, buf)
		if err != nil {
			break
		}
		if n > 0 {
			collected = append(collected, buf[:n]...)
		}
	}
	if len(collected) > p.cfg.MaxBytes {
		collected = collected[:p.cfg.MaxBytes]
	}
	return collected
}

// probeConfidence applies the printable/pattern heuristic directly to
// the one-shot measurement
func probeConfidence(data []byte) float64 {
	text, decodeConfidence := decodeChunk(data)
	if decodeConfidence == 0 {
		return 0
	}

	// printable ratio dominates; a recognizable textual shape tops it up
	confidence := 0.7 * printableRatio(data)
	confidence += shapeComponent(text) // contributes up to 0.3
	confidence *= decodeConfidence

	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// countPrintable counts bytes in the text range
func countPrintable(data []byte) int {
	count := 0
	for _, b := range data {
		if (b >= 0x20 && b <= 0x7E) || b == '\t' || b == '\n' || b == '\r' {
			count++
		}
	}
	return count
}

// rankResults sorts descending by confidence, stable so the candidate
// order breaks ties
func rankResults(results []CandidateResult) []CandidateResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results
}
