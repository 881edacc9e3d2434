package cacheaside

import "context"

// Outcome is the result of a cached read as seen by the caller.
type Outcome string

const (
	OutcomeHit  Outcome = "HIT"
	OutcomeMiss Outcome = "MISS"
)

// Recorder captures the outcome of the reads performed with its context.
type Recorder struct {
	outcome Outcome
}

// Outcome returns the last recorded outcome, or "" when no cached read happened.
func (r *Recorder) Outcome() Outcome {
	if r == nil {
		return ""
	}
	return r.outcome
}

type recorderKey struct{}

// WithRecorder returns a context whose cached reads report to the returned Recorder.
func WithRecorder(ctx context.Context) (context.Context, *Recorder) {
	r := &Recorder{}
	return context.WithValue(ctx, recorderKey{}, r), r
}

func recordOutcome(ctx context.Context, outcome Outcome) {
	if r, ok := ctx.Value(recorderKey{}).(*Recorder); ok {
		r.outcome = outcome
	}
}
