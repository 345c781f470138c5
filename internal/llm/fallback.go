package llm

import (
	"context"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// DefaultApology is spoken when the generator fails.
const DefaultApology = "I'm having trouble connecting to my brain right now. Could you try again?"

// Fallback wraps a generator so a failure becomes a fixed apology
// instead of an error. Context cancellation is still reported.
type Fallback struct {
	next    domain.TextGenerator
	apology string
	log     *logger.Logger
}

var _ domain.TextGenerator = (*Fallback)(nil)

// WithFallback wraps next. An empty apology uses DefaultApology.
func WithFallback(next domain.TextGenerator, apology string, log *logger.Logger) *Fallback {
	if apology == "" {
		apology = DefaultApology
	}
	return &Fallback{next: next, apology: apology, log: log}
}

// Generate never fails unless ctx is done.
func (f *Fallback) Generate(ctx context.Context, messages []domain.Message) (string, error) {
	reply, err := f.next.Generate(ctx, messages)
	if err == nil {
		return reply, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	f.log.Error("generation failed, using fallback: %v", err)
	return f.apology, nil
}
