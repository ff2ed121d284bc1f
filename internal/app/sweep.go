package app

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
	"github.com/xenking/astroplay-pos/internal/domain/pos"
	"github.com/xenking/astroplay-pos/internal/storage/memory"
)

// sessionSweeper drops the state kept for sessions that can no longer be
// used: their terminals, and the sessions themselves when they live in
// process memory. Redis expires its keys on its own.
type sessionSweeper struct {
	auth      *auth.Service
	terminals *pos.Registry
	memory    *memory.SessionStore
}

func (s *sessionSweeper) sweep(ctx context.Context) {
	lg := zctx.From(ctx)
	if s.memory != nil {
		if n := s.memory.Sweep(); n > 0 {
			lg.Debug("Expired sessions dropped", zap.Int("sessions", n))
		}
	}
	n, err := s.terminals.Sweep(ctx, s.auth.Live)
	if err != nil {
		lg.Warn("Terminal sweep incomplete", zap.Error(err))
	}
	if n > 0 {
		lg.Info("Terminals of expired sessions dropped", zap.Int("terminals", n))
	}
}

func (s *sessionSweeper) run(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}
