// Package sync keeps the local Store consistent with each connected
// mailbox's upstream state using Gmail-style history semantics. It is
// the engine the HTTP layer's on-demand sync endpoint and the
// background ticker loops both drive.
package sync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inboxforge/core/internal/apperr"
	"github.com/inboxforge/core/internal/provider"
	"github.com/inboxforge/core/internal/secretbox"
	"github.com/inboxforge/core/internal/store"
)

// retry backoff schedule, capped at 3 attempts.
var retryBackoff = []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}

const maxRetryAttempts = 3

type retryEntry struct {
	attempts int
	nextTry  time.Time
}

// Config carries the Sync Engine's tuning knobs, a subset of
// config.Config so tests can build one without the full environment.
type Config struct {
	TokenNearExpiryBackground time.Duration
	TokenNearExpiryOnDemand   time.Duration
	SyncWatchdogThreshold     time.Duration
	FullSyncMaxMessages       int
	FullSyncPageSize          int
	IncrementalTickInterval   time.Duration
	TokenRefreshTickInterval  time.Duration
	RetryTickInterval         time.Duration
}

// Engine holds the single process-wide in-flight guard (§5) and the
// retry queue, confined to the engine's own goroutines.
type Engine struct {
	store    *store.Store
	provider provider.Provider
	box      *secretbox.Box
	cfg      Config

	inFlight     atomic.Bool
	shuttingDown atomic.Bool

	retryMu    sync.Mutex
	retryQueue map[string]*retryEntry

	now func() time.Time

	wg      sync.WaitGroup
	stopCh  chan struct{}
	started bool
}

func New(st *store.Store, p provider.Provider, box *secretbox.Box, cfg Config) *Engine {
	return &Engine{
		store:      st,
		provider:   p,
		box:        box,
		cfg:        cfg,
		retryQueue: make(map[string]*retryEntry),
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the three background ticker loops, grounded on the
// teacher's TaskReminderScheduler.Start ticker+goroutine+select pattern
// generalized to three independent loops.
func (e *Engine) Start() {
	if e.started {
		return
	}
	e.started = true

	e.wg.Add(3)
	go e.loop("token-refresh", e.cfg.TokenRefreshTickInterval, e.tokenRefreshTick)
	go e.loop("incremental-sync", e.cfg.IncrementalTickInterval, e.incrementalSyncTick)
	go e.loop("retry", e.cfg.RetryTickInterval, e.retryTick)
}

// Stop flips the shutdown flag and waits for in-flight ticks to finish
// their current suspension point. Retry jobs are dropped: they are
// rediscovered on the next startup by mailboxes left in {Error, Pending}.
func (e *Engine) Stop() {
	e.shuttingDown.Store(true)
	close(e.stopCh)
	e.wg.Wait()
}

func (e *Engine) loop(name string, interval time.Duration, tick func()) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if e.shuttingDown.Load() {
				return
			}
			tick()
		case <-e.stopCh:
			log.Printf("[Sync] %s loop stopped", name)
			return
		}
	}
}

func (e *Engine) tokenRefreshTick() {
	mailboxes, err := e.store.Mailboxes.ListActive()
	if err != nil {
		log.Printf("[Sync] token refresh tick: failed to list active mailboxes: %v", err)
		return
	}
	horizon := e.now().Add(e.cfg.TokenNearExpiryBackground)
	for _, mb := range mailboxes {
		if e.shuttingDown.Load() {
			return
		}
		if mb.TokenExpiresAt.After(horizon) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := e.refreshMailboxTokens(ctx, mb); err != nil {
			log.Printf("[Sync] token refresh failed for mailbox %s: %v", mb.ID, err)
			_ = e.store.Mailboxes.MarkError(mb.ID, fmt.Sprintf("token refresh failed: %v", err))
		}
		cancel()
	}
}

func (e *Engine) incrementalSyncTick() {
	if reset, err := e.store.Mailboxes.ResetStuckSyncing(e.cfg.SyncWatchdogThreshold); err != nil {
		log.Printf("[Sync] watchdog: failed to reset stuck mailboxes: %v", err)
	} else if len(reset) > 0 {
		log.Printf("[Sync] watchdog: reset %d mailbox(es) stuck in syncing", len(reset))
	}

	mailboxes, err := e.store.Mailboxes.ListActive()
	if err != nil {
		log.Printf("[Sync] incremental tick: failed to list active mailboxes: %v", err)
		return
	}
	for _, mb := range mailboxes {
		if e.shuttingDown.Load() {
			return
		}
		if mb.SyncStatus != store.SyncStatusSynced && mb.SyncStatus != store.SyncStatusError && mb.SyncStatus != store.SyncStatusPending {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err := e.IncrementalSync(ctx, mb.ID)
		cancel()
		if err != nil {
			log.Printf("[Sync] incremental tick: mailbox %s: %v", mb.ID, err)
		}
	}
}

func (e *Engine) retryTick() {
	now := e.now()
	e.retryMu.Lock()
	due := make([]string, 0)
	for id, entry := range e.retryQueue {
		if !now.Before(entry.nextTry) {
			due = append(due, id)
		}
	}
	e.retryMu.Unlock()

	for _, id := range due {
		if e.shuttingDown.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err := e.IncrementalSync(ctx, id)
		cancel()
		if err != nil {
			log.Printf("[Sync] retry: mailbox %s: %v", id, err)
		}
	}
}

// withGuard runs fn only if the single process-wide in-flight guard is
// free, releasing it in every exit path. Returns false if another sync
// was already running, in which case fn never runs.
func (e *Engine) withGuard(fn func() error) (bool, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return false, nil
	}
	defer e.inFlight.Store(false)
	return true, fn()
}

func (e *Engine) decrypt(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}
	plain, err := e.box.Open(envelope)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (e *Engine) encrypt(plaintext string) (string, error) {
	return e.box.Seal([]byte(plaintext))
}

// buildCredentials decrypts the mailbox's tokens and wires OnRefresh so
// a mid-call token rotation the provider performs is persisted without
// a second round trip.
func (e *Engine) buildCredentials(mb *store.Mailbox) (provider.Credentials, error) {
	access, err := e.decrypt(mb.AccessToken)
	if err != nil {
		return provider.Credentials{}, err
	}
	refresh, err := e.decrypt(mb.RefreshToken)
	if err != nil {
		return provider.Credentials{}, err
	}
	mailboxID := mb.ID
	return provider.Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    mb.TokenExpiresAt.Unix(),
		OnRefresh: func(accessToken string, expiresAt int64) error {
			sealed, err := e.encrypt(accessToken)
			if err != nil {
				return err
			}
			return e.store.Mailboxes.SetTokens(mailboxID, sealed, "", time.Unix(expiresAt, 0))
		},
	}, nil
}

// refreshMailboxTokens forces a token rotation and persists the result,
// used by the background refresh tick and by on-demand near-expiry checks.
func (e *Engine) refreshMailboxTokens(ctx context.Context, mb *store.Mailbox) error {
	creds, err := e.buildCredentials(mb)
	if err != nil {
		return err
	}
	result, err := e.provider.RefreshTokens(ctx, creds)
	if err != nil {
		return err
	}
	sealedAccess, err := e.encrypt(result.AccessToken)
	if err != nil {
		return err
	}
	expiresAt := time.Unix(result.ExpiresAt, 0)
	if result.ExpiresAt == 0 {
		expiresAt = e.now().Add(time.Hour)
	}
	return e.store.Mailboxes.SetTokens(mb.ID, sealedAccess, "", expiresAt)
}

// ensureFreshTokens performs the on-demand near-expiry check described
// in §4.1: callers about to talk to the provider refresh first if the
// token is within the (shorter) on-demand horizon.
func (e *Engine) ensureFreshTokens(ctx context.Context, mb *store.Mailbox) error {
	if mb.TokenExpiresAt.After(e.now().Add(e.cfg.TokenNearExpiryOnDemand)) {
		return nil
	}
	return e.refreshMailboxTokens(ctx, mb)
}

// PrepareCredentials loads a mailbox, performs the on-demand
// near-expiry token check (§4.1), and returns credentials ready to
// pass to the Provider Adapter. The Move Coordinator and any HTTP
// handler that calls the provider directly (send, list labels) use
// this instead of talking to the Store or secretbox themselves.
func (e *Engine) PrepareCredentials(ctx context.Context, mailboxID string) (*store.Mailbox, provider.Credentials, error) {
	mb, err := e.store.Mailboxes.GetByID(mailboxID)
	if err != nil {
		return nil, provider.Credentials{}, err
	}
	if mb == nil {
		return nil, provider.Credentials{}, apperr.NotFound("mailbox not found")
	}
	if err := e.ensureFreshTokens(ctx, mb); err != nil {
		return nil, provider.Credentials{}, err
	}
	mb, err = e.store.Mailboxes.GetByID(mailboxID) // re-read in case the check above rotated tokens
	if err != nil {
		return nil, provider.Credentials{}, err
	}
	creds, err := e.buildCredentials(mb)
	return mb, creds, err
}

// recoverStaleCursor implements §4.1's stale-cursor recovery: clear the
// local cursor, mark Pending, and fall back to a full sync. Called from
// doIncrementalSync, which already holds the in-flight guard, so this
// calls doFullSync directly rather than the guarded FullSync wrapper.
func (e *Engine) recoverStaleCursor(ctx context.Context, mb *store.Mailbox) error {
	log.Printf("[Sync] mailbox %s: stale cursor, clearing and falling back to full sync", mb.ID)
	if err := e.store.Mailboxes.SetHistoryCursor(mb.ID, ""); err != nil {
		return err
	}
	if err := e.store.Mailboxes.SetPending(mb.ID); err != nil {
		return err
	}
	return e.doFullSync(ctx, mb.ID, 0)
}
