// Package engine implements the transactional core of the sync server: the
// exclusive lock, transaction lifecycle (begin, stage, commit, rollback,
// cancel), the reconcile planner, revision restore and retention.
//
// All state except the metadata index and blob store is in-memory: active
// transactions and the lock do not survive a restart. Leftover staging
// directories from a crash are swept at startup.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/versesync/versesync/internal/logger"
	"github.com/versesync/versesync/pkg/sync/blob"
	"github.com/versesync/versesync/pkg/sync/ignore"
	"github.com/versesync/versesync/pkg/sync/metrics"
	"github.com/versesync/versesync/pkg/sync/models"
	"github.com/versesync/versesync/pkg/sync/store"
)

// Defaults used when the settings table is empty or unreadable.
const (
	defaultLockTimeoutSeconds    = 300
	defaultMinLockTimeoutSeconds = 300
	defaultMaxRevisions          = 10
	defaultLogRetentionDays      = 30
)

// Config configures the sync engine.
type Config struct {
	Store       *store.GORMStore
	Blobs       *blob.Store
	StagingRoot string
	Metrics     *metrics.Metrics // nil disables metrics
}

// Engine coordinates transactions over the metadata index and blob store.
type Engine struct {
	store       *store.GORMStore
	blobs       *blob.Store
	metrics     *metrics.Metrics
	stagingRoot string

	lock lock

	mu     sync.Mutex
	active map[string]*Transaction

	// pathMu serializes restore and prune on a per-path basis so their
	// multi-step revision writes stay adjacent.
	pathMu    sync.Mutex
	pathLocks map[string]*sync.Mutex
}

// Transaction is one open sync transaction. Uploads and deletion marks
// accumulate until commit; nothing touches permanent storage before then.
type Transaction struct {
	ID          string
	UserID      string
	Username    string
	Operation   models.OperationType
	Service     models.ServiceType
	OperationID uint
	CreatedAt   time.Time
	StagingPath string
	Description string
	Timeout     time.Duration
	FilesToPull []string
	FilesToPush []string

	lockToken uint64

	mu          sync.Mutex
	uploads     []string
	deletes     []string
	cancelled   bool
	cancelledAt time.Time
}

// Uploads returns the staged upload paths in insertion order.
func (t *Transaction) Uploads() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.uploads))
	copy(out, t.uploads)
	return out
}

// Deletes returns the paths marked for deletion in insertion order.
func (t *Transaction) Deletes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.deletes))
	copy(out, t.deletes)
	return out
}

// Cancelled reports whether an admin force-terminated the transaction.
func (t *Transaction) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *Transaction) markCancelled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	t.cancelledAt = time.Now().UTC()
}

func (t *Transaction) cancelledSince() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelledAt, t.cancelled
}

// New creates the engine, prepares the staging root and sweeps leftovers
// from a previous run: orphaned staging directories are removed and
// operation records stuck in the active state are closed as rolled back.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil || cfg.Blobs == nil {
		return nil, fmt.Errorf("engine requires a store and a blob store")
	}
	if cfg.StagingRoot == "" {
		cfg.StagingRoot = "staging"
	}
	if err := os.MkdirAll(cfg.StagingRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging root: %w", err)
	}

	e := &Engine{
		store:       cfg.Store,
		blobs:       cfg.Blobs,
		metrics:     cfg.Metrics,
		stagingRoot: cfg.StagingRoot,
		active:      make(map[string]*Transaction),
		pathLocks:   make(map[string]*sync.Mutex),
	}

	e.sweepStaging()
	if err := e.closeStaleOperations(context.Background()); err != nil {
		return nil, err
	}

	return e, nil
}

// sweepStaging removes every staging directory left behind by a previous
// process. No active transaction can exist at startup, so everything under
// the root is garbage.
func (e *Engine) sweepStaging() {
	entries, err := os.ReadDir(e.stagingRoot)
	if err != nil {
		logger.Warn("failed to read staging root", "path", e.stagingRoot, "error", err)
		return
	}
	for _, entry := range entries {
		p := filepath.Join(e.stagingRoot, entry.Name())
		if err := os.RemoveAll(p); err != nil {
			logger.Warn("failed to remove stale staging entry", "path", p, "error", err)
			continue
		}
		logger.Info("removed stale staging entry", "path", p)
	}
}

// closeStaleOperations marks operation rows left active by a crash as rolled
// back. Their transactions died with the process.
func (e *Engine) closeStaleOperations(ctx context.Context) error {
	stale, err := e.store.ListActiveOperations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active operations: %w", err)
	}
	for _, op := range stale {
		if err := e.store.FinishOperation(ctx, op.ID, models.StatusRolledBack, nil, nil); err != nil {
			return fmt.Errorf("failed to close stale operation %d: %w", op.ID, err)
		}
		logger.Info("closed stale operation from previous run", "operation_id", op.ID)
	}
	return nil
}

// BeginParams carries everything needed to open a transaction. ClientFiles
// is required for Reconcile and optional for Pull (when present, the server
// computes the pull set instead of the client diffing against the listing).
type BeginParams struct {
	User        *models.User
	Operation   models.OperationType
	Service     models.ServiceType
	Description string
	ClientFiles map[string]ClientFile
}

// BeginResult is returned by Begin. FilesToPull/FilesToPush are only set
// when the server computed a plan (Reconcile always, Pull with inventory).
type BeginResult struct {
	Transaction    *Transaction
	FilesToPull    []string
	FilesToPush    []string
	TimeoutSeconds int
}

// Begin acquires the global lock, records the operation and opens a staging
// area. On any failure after the lock is taken, the lock is released before
// returning.
func (e *Engine) Begin(ctx context.Context, p BeginParams) (*BeginResult, error) {
	if !p.Operation.IsValid() {
		return nil, fmt.Errorf("unknown operation type %q", p.Operation)
	}
	if !p.Service.IsValid() {
		return nil, fmt.Errorf("unknown service type %q", p.Service)
	}

	timeoutSeconds, err := e.store.GetSettingInt(ctx, models.SettingLockTimeoutSeconds, defaultLockTimeoutSeconds)
	if err != nil {
		return nil, err
	}
	minTimeoutSeconds, err := e.store.GetSettingInt(ctx, models.SettingMinLockTimeoutSeconds, defaultMinLockTimeoutSeconds)
	if err != nil {
		return nil, err
	}

	var filesToPull, filesToPush []string
	switch p.Operation {
	case models.OperationReconcile:
		if p.ClientFiles == nil {
			return nil, fmt.Errorf("client_files is required for Reconcile operations")
		}
		plan, err := e.planReconcile(ctx, p.Service, p.ClientFiles)
		if err != nil {
			return nil, err
		}
		filesToPull, filesToPush = plan.Pull, plan.Push
		timeoutSeconds = reconcileTimeout(minTimeoutSeconds, plan.TotalSize, len(plan.Pull)+len(plan.Push))

	case models.OperationPull:
		if p.ClientFiles != nil {
			plan, err := e.planReconcile(ctx, p.Service, p.ClientFiles)
			if err != nil {
				return nil, err
			}
			// Pull is one-directional: only the download half applies.
			filesToPull = plan.Pull
		}
	}

	timeout := time.Duration(timeoutSeconds) * time.Second
	token, err := e.lock.Acquire(p.User.ID, p.User.Username, p.Operation, timeout)
	if err != nil {
		e.metrics.RecordLockDenied()
		return nil, err
	}

	op := &models.Operation{
		UserID:    &p.User.ID,
		Operation: p.Operation,
		Service:   p.Service,
		Status:    models.StatusActive,
		LockedAt:  time.Now().UTC(),
	}
	if err := e.store.CreateOperation(ctx, op); err != nil {
		e.lock.Release(token)
		return nil, fmt.Errorf("failed to record operation: %w", err)
	}

	txnID := uuid.New().String()
	stagingPath := filepath.Join(e.stagingRoot, txnID)
	if err := os.MkdirAll(stagingPath, 0755); err != nil {
		e.lock.Release(token)
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	txn := &Transaction{
		ID:          txnID,
		UserID:      p.User.ID,
		Username:    p.User.Username,
		Operation:   p.Operation,
		Service:     p.Service,
		OperationID: op.ID,
		CreatedAt:   time.Now().UTC(),
		StagingPath: stagingPath,
		Description: p.Description,
		Timeout:     timeout,
		FilesToPull: filesToPull,
		FilesToPush: filesToPush,
		lockToken:   token,
	}

	e.mu.Lock()
	e.active[txnID] = txn
	e.mu.Unlock()

	e.metrics.RecordBegin(string(p.Operation), string(p.Service))
	logger.Info("transaction begun",
		"transaction_id", txnID,
		"user", p.User.Username,
		"operation", p.Operation,
		"service", p.Service,
		"timeout_seconds", timeoutSeconds)

	return &BeginResult{
		Transaction:    txn,
		FilesToPull:    filesToPull,
		FilesToPush:    filesToPush,
		TimeoutSeconds: timeoutSeconds,
	}, nil
}

// Get returns an active transaction by ID.
func (e *Engine) Get(id string) (*Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	txn, ok := e.active[id]
	if !ok {
		return nil, models.ErrTransactionNotFound
	}
	return txn, nil
}

// resolveOwned returns an active transaction after verifying ownership and
// liveness. A cancelled transaction keeps resolving so every subsequent call
// reports models.ErrTransactionCancelled. A transaction whose lock expired is
// discarded on the spot and stops resolving, so the caller sees the same
// not-found error a truly unknown ID would produce.
func (e *Engine) resolveOwned(ctx context.Context, id, userID string) (*Transaction, error) {
	txn, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, models.ErrPermissionDenied
	}
	if txn.Cancelled() {
		return nil, models.ErrTransactionCancelled
	}
	if !e.lock.HeldBy(txn.lockToken) {
		e.expireTransaction(ctx, txn)
		return nil, models.ErrTransactionNotFound
	}
	return txn, nil
}

// expireTransaction discards a transaction whose lock expired: staging is
// removed, the operation record closes as rolled back and the ID stops
// resolving. The lock itself is left alone; another holder may own it now.
func (e *Engine) expireTransaction(ctx context.Context, txn *Transaction) {
	e.mu.Lock()
	_, live := e.active[txn.ID]
	delete(e.active, txn.ID)
	e.mu.Unlock()
	if !live {
		return
	}

	if err := os.RemoveAll(txn.StagingPath); err != nil {
		logger.Warn("failed to remove staging area", "path", txn.StagingPath, "error", err)
	}
	if err := e.store.FinishOperation(ctx, txn.OperationID, models.StatusRolledBack, nil, nil); err != nil {
		logger.Warn("failed to mark expired operation rolled back",
			"operation_id", txn.OperationID, "error", err)
	}

	e.metrics.RecordFinish(string(txn.Operation), string(models.StatusRolledBack))
	logger.Info("transaction expired",
		"transaction_id", txn.ID,
		"user", txn.Username,
		"operation", txn.Operation)
}

// cancelledRetention is how long a cancelled transaction stays resolvable so
// its owner can observe the 409 before the ID is forgotten.
const cancelledRetention = time.Hour

// sweepExpiredTransactions discards every active transaction that lost its
// lock, and forgets cancelled transactions past the retention window.
func (e *Engine) sweepExpiredTransactions(ctx context.Context) {
	e.mu.Lock()
	snapshot := make([]*Transaction, 0, len(e.active))
	for _, txn := range e.active {
		snapshot = append(snapshot, txn)
	}
	e.mu.Unlock()

	for _, txn := range snapshot {
		if at, cancelled := txn.cancelledSince(); cancelled {
			if time.Since(at) > cancelledRetention {
				e.mu.Lock()
				delete(e.active, txn.ID)
				e.mu.Unlock()
			}
			continue
		}
		if !e.lock.HeldBy(txn.lockToken) {
			e.expireTransaction(ctx, txn)
		}
	}
}

// StagedFile describes a file accepted into a staging area.
type StagedFile struct {
	Path string
	Hash string
	Size int64
}

// StageUpload streams an uploaded file into the transaction's staging area
// and records it for commit. The file does not become visible until commit.
func (e *Engine) StageUpload(ctx context.Context, txnID, userID, relPath string, r io.Reader) (*StagedFile, error) {
	txn, err := e.resolveOwned(ctx, txnID, userID)
	if err != nil {
		return nil, err
	}

	relPath, err = sanitizePath(relPath)
	if err != nil {
		return nil, err
	}

	matcher, err := e.IgnoreMatcher(ctx)
	if err != nil {
		return nil, err
	}
	if matcher.ShouldIgnore(relPath) {
		return nil, fmt.Errorf("%w: %s", models.ErrPathIgnored, relPath)
	}

	dst := filepath.Join(txn.StagingPath, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("failed to write staged file: %w", err)
	}

	hash, _, err := blob.HashFile(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to hash staged file: %w", err)
	}

	txn.mu.Lock()
	txn.uploads = append(txn.uploads, relPath)
	txn.mu.Unlock()

	e.metrics.AddStagedBytes(size)
	logger.Info("file staged",
		"transaction_id", txnID,
		"path", relPath,
		"size", size)

	return &StagedFile{Path: relPath, Hash: hash, Size: size}, nil
}

// MarkDelete records a path for tombstoning at commit. Nothing is deleted
// until then.
func (e *Engine) MarkDelete(ctx context.Context, txnID, userID, relPath string) error {
	txn, err := e.resolveOwned(ctx, txnID, userID)
	if err != nil {
		return err
	}

	relPath, err = sanitizePath(relPath)
	if err != nil {
		return err
	}

	txn.mu.Lock()
	txn.deletes = append(txn.deletes, relPath)
	txn.mu.Unlock()

	logger.Info("file marked for deletion", "transaction_id", txnID, "path", relPath)
	return nil
}

// OpenCurrentFile opens the current revision of a path for download within
// a transaction. Tombstoned and unknown paths return not-found errors.
func (e *Engine) OpenCurrentFile(ctx context.Context, txnID, userID, relPath string) (*os.File, *models.FileRevision, error) {
	txn, err := e.resolveOwned(ctx, txnID, userID)
	if err != nil {
		return nil, nil, err
	}

	relPath, err = sanitizePath(relPath)
	if err != nil {
		return nil, nil, err
	}

	rev, err := e.store.GetCurrentFile(ctx, txn.Service, relPath)
	if err != nil {
		return nil, nil, err
	}
	if rev.IsDeleted {
		return nil, nil, models.ErrFileDeleted
	}

	f, err := e.blobs.OpenRevision(txn.Service, relPath, rev.Revision)
	if err != nil {
		return nil, nil, err
	}
	return f, rev, nil
}

// TransactionStatus is a snapshot of one live transaction, served by the
// admin control plane and the owner's status poll.
type TransactionStatus struct {
	TransactionID   string               `json:"transaction_id"`
	Username        string               `json:"username"`
	Operation       models.OperationType `json:"operation_type"`
	Service         models.ServiceType   `json:"service_type"`
	Status          string               `json:"status"`
	DurationSeconds int                  `json:"duration_seconds"`
	FilesToPull     *int                 `json:"files_to_pull,omitempty"`
	FilesToPush     *int                 `json:"files_to_push,omitempty"`
}

func transactionStatus(txn *Transaction) TransactionStatus {
	status := TransactionStatus{
		TransactionID:   txn.ID,
		Username:        txn.Username,
		Operation:       txn.Operation,
		Service:         txn.Service,
		Status:          string(models.StatusActive),
		DurationSeconds: int(time.Since(txn.CreatedAt).Seconds()),
	}
	if txn.Operation == models.OperationReconcile {
		pull, push := len(txn.FilesToPull), len(txn.FilesToPush)
		status.FilesToPull = &pull
		status.FilesToPush = &push
	}
	return status
}

// ActiveTransactions lists every open transaction. Cancelled transactions
// awaiting observation by their owner are excluded.
func (e *Engine) ActiveTransactions() []TransactionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]TransactionStatus, 0, len(e.active))
	for _, txn := range e.active {
		if txn.Cancelled() {
			continue
		}
		out = append(out, transactionStatus(txn))
	}
	return out
}

// Status reports whether the owner's transaction is still live. Cancelled
// transactions surface models.ErrTransactionCancelled; expired ones stop
// resolving, exactly as any other transactional call would observe.
func (e *Engine) Status(ctx context.Context, txnID, userID string) (*TransactionStatus, error) {
	txn, err := e.resolveOwned(ctx, txnID, userID)
	if err != nil {
		return nil, err
	}
	status := transactionStatus(txn)
	return &status, nil
}

// LockStatus returns the current lock holder, or nil when the server is idle.
func (e *Engine) LockStatus() *LockInfo {
	return e.lock.Current()
}

// IgnoreMatcher builds the pattern filter from the stored patterns. The same
// filter applies to uploads, reconcile planning and outbound listings.
func (e *Engine) IgnoreMatcher(ctx context.Context) (*ignore.Matcher, error) {
	patterns, err := e.store.ListIgnorePatterns(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(patterns))
	for i, p := range patterns {
		lines[i] = p.Pattern
	}
	return ignore.NewMatcher(lines), nil
}

// pathLock returns the mutex serializing multi-revision writes for one
// (service, path) pair.
func (e *Engine) pathLock(service models.ServiceType, relPath string) *sync.Mutex {
	key := string(service) + "\x00" + relPath
	e.pathMu.Lock()
	defer e.pathMu.Unlock()
	mu, ok := e.pathLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		e.pathLocks[key] = mu
	}
	return mu
}

// sanitizePath normalizes a client-supplied relative path and rejects
// anything that could escape the service tree.
func sanitizePath(relPath string) (string, error) {
	p := strings.ReplaceAll(relPath, `\`, "/")
	p = path.Clean(p)
	if p == "" || p == "." || path.IsAbs(p) || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidPath, relPath)
	}
	return p, nil
}
