package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// EnforcementResult records what one ApplyBlock pass did.
type EnforcementResult struct {
	KilledPIDs   []int
	SitesChanged bool
	Errors       []error
	ExecutedAt   time.Time
	DurationMs   int64
}

// BlockEnforcer implements domain.Enforcer.
// Apps are enforced by killing matching processes on every pass; websites
// through the SiteBlocker, rewritten only when the set changes.
type BlockEnforcer struct {
	mu             sync.Mutex
	processManager domain.ProcessManager
	sites          domain.SiteBlocker
	logger         *zap.Logger

	applied  *domain.BlockedTargets
	lastPass *EnforcementResult
}

// NewBlockEnforcer creates an enforcer. sites may be nil to skip websites.
func NewBlockEnforcer(pm domain.ProcessManager, sites domain.SiteBlocker, logger *zap.Logger) *BlockEnforcer {
	return &BlockEnforcer{
		processManager: pm,
		sites:          sites,
		logger:         logger,
	}
}

// ApplyBlock enforces exactly targets. Repeating a call with the same set
// changes no state.
func (e *BlockEnforcer) ApplyBlock(ctx context.Context, targets domain.BlockedTargets) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	result := &EnforcementResult{
		KilledPIDs: make([]int, 0),
		Errors:     make([]error, 0),
		ExecutedAt: start,
	}

	// Kill matching processes
	for _, pattern := range targets.Apps {
		if err := ctx.Err(); err != nil {
			return err
		}
		pids, err := e.processManager.FindByName(pattern)
		if err != nil {
			e.logger.Warn("failed to find processes",
				zap.String("pattern", pattern),
				zap.Error(err))
			result.Errors = append(result.Errors, err)
			continue
		}

		for _, pid := range pids {
			if err := e.processManager.Kill(pid); err != nil {
				e.logger.Warn("failed to kill process",
					zap.Int("pid", pid),
					zap.Error(err))
				result.Errors = append(result.Errors, err)
			} else {
				e.logger.Info("killed process",
					zap.Int("pid", pid),
					zap.String("pattern", pattern))
				result.KilledPIDs = append(result.KilledPIDs, pid)
			}
		}
	}

	// Rewrite blocked websites only when the set changed
	var siteErr error
	if e.sites != nil && !e.sitesApplied(targets.Websites) {
		if len(targets.Websites) == 0 {
			siteErr = e.sites.Unblock()
		} else {
			siteErr = e.sites.Block(targets.Websites)
		}
		if siteErr != nil {
			e.logger.Warn("failed to update blocked websites", zap.Error(siteErr))
			result.Errors = append(result.Errors, siteErr)
		} else {
			result.SitesChanged = true
			e.logger.Info("blocked websites updated", zap.Strings("websites", targets.Websites))
		}
	}

	if siteErr == nil {
		applied := targets.Clone()
		e.applied = &applied
	}

	result.DurationMs = time.Since(start).Milliseconds()
	e.lastPass = result

	return errors.Join(result.Errors...)
}

// ClearBlock removes website blocking. Running processes are left alone.
func (e *BlockEnforcer) ClearBlock(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sites != nil {
		if err := e.sites.Unblock(); err != nil {
			e.logger.Warn("failed to clear blocked websites", zap.Error(err))
			return err
		}
	}
	if e.applied != nil {
		e.logger.Info("blocking cleared")
	}
	e.applied = nil
	return nil
}

// LastPass returns the result of the most recent ApplyBlock, or nil.
func (e *BlockEnforcer) LastPass() *EnforcementResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPass
}

func (e *BlockEnforcer) sitesApplied(websites []string) bool {
	if e.applied == nil {
		return false
	}
	return equalStrings(sortedCopy(e.applied.Websites), sortedCopy(websites))
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// Ensure BlockEnforcer implements domain.Enforcer.
var _ domain.Enforcer = (*BlockEnforcer)(nil)
