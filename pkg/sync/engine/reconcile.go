package engine

import (
	"context"
	"time"

	"github.com/versesync/versesync/pkg/sync/models"
)

// ClientFile is one entry of the client's file inventory sent at begin.
type ClientFile struct {
	ModifiedAt time.Time `json:"modified_utc"`
	Size       int64     `json:"size"`
	Hash       string    `json:"hash"`
}

// Plan is the outcome of comparing a client inventory against server state.
type Plan struct {
	Pull      []string // client should download these from the server
	Push      []string // client should upload these to the server
	TotalSize int64    // bytes that will move, for the dynamic lock timeout
}

// mtimeTolerance absorbs filesystem timestamp precision differences between
// client and server.
const mtimeTolerance = time.Second

// planReconcile compares the client inventory against the current server
// files, after dropping ignored paths from both sides. Tombstones normally
// count as absent (the client pushes the file back); when the
// reconcile_respects_deletes setting is on, a tombstone newer than the
// client copy suppresses the push instead.
func (e *Engine) planReconcile(ctx context.Context, service models.ServiceType, clientFiles map[string]ClientFile) (*Plan, error) {
	matcher, err := e.IgnoreMatcher(ctx)
	if err != nil {
		return nil, err
	}

	serverFiles, err := e.store.ListCurrentFiles(ctx, service, false)
	if err != nil {
		return nil, err
	}

	respectDeletes, err := e.store.GetSettingBool(ctx, models.SettingReconcileRespectsDeletes, false)
	if err != nil {
		return nil, err
	}

	var tombstones map[string]time.Time
	if respectDeletes {
		all, err := e.store.ListCurrentFiles(ctx, service, true)
		if err != nil {
			return nil, err
		}
		tombstones = make(map[string]time.Time)
		for _, rev := range all {
			if rev.IsDeleted {
				tombstones[rev.Path] = rev.ModifiedAt
			}
		}
	}

	server := make(map[string]*models.FileRevision, len(serverFiles))
	for _, rev := range serverFiles {
		if matcher.ShouldIgnore(rev.Path) {
			continue
		}
		server[rev.Path] = rev
	}

	client := make(map[string]ClientFile, len(clientFiles))
	for p, meta := range clientFiles {
		if matcher.ShouldIgnore(p) {
			continue
		}
		client[p] = meta
	}

	plan := comparePlan(server, client, tombstones)

	for _, p := range plan.Pull {
		if rev, ok := server[p]; ok {
			plan.TotalSize += rev.SizeBytes()
		}
	}
	for _, p := range plan.Push {
		if meta, ok := client[p]; ok {
			plan.TotalSize += meta.Size
		}
	}

	return plan, nil
}

// comparePlan runs the three-step comparison for every path present on
// either side:
//
//  1. modification times differing by more than the tolerance: later wins
//  2. otherwise, differing sizes: later mtime wins
//  3. otherwise, differing hashes: later mtime wins
//
// Mtime ties in steps 2 and 3 favor the server (the client pulls), keeping
// both sides converging on one canonical copy. Identical files need nothing.
// tombstones maps deleted server paths to deletion times; a nil map treats
// every tombstone as absent.
func comparePlan(server map[string]*models.FileRevision, client map[string]ClientFile, tombstones map[string]time.Time) *Plan {
	plan := &Plan{}

	for p, meta := range client {
		rev, onServer := server[p]
		if !onServer {
			if deletedAt, dead := tombstones[p]; dead && deletedAt.After(meta.ModifiedAt) {
				// The server deliberately deleted this file after the
				// client's copy was written; leave it alone.
				continue
			}
			plan.Push = append(plan.Push, p)
			continue
		}

		serverMtime := rev.ModifiedAt
		clientMtime := meta.ModifiedAt

		diff := serverMtime.Sub(clientMtime)
		if diff < 0 {
			diff = -diff
		}
		if diff > mtimeTolerance {
			if serverMtime.After(clientMtime) {
				plan.Pull = append(plan.Pull, p)
			} else {
				plan.Push = append(plan.Push, p)
			}
			continue
		}

		if meta.Size != rev.SizeBytes() {
			if !serverMtime.Before(clientMtime) {
				plan.Pull = append(plan.Pull, p)
			} else {
				plan.Push = append(plan.Push, p)
			}
			continue
		}

		if meta.Hash != rev.HashString() {
			if !serverMtime.Before(clientMtime) {
				plan.Pull = append(plan.Pull, p)
			} else {
				plan.Push = append(plan.Push, p)
			}
			continue
		}
	}

	for p := range server {
		if _, onClient := client[p]; !onClient {
			plan.Pull = append(plan.Pull, p)
		}
	}

	return plan
}

// reconcileTimeout computes the dynamic lock timeout for a reconcile:
// one second per megabyte moved plus two seconds per file, floored at the
// configured minimum.
func reconcileTimeout(minSeconds int, totalSize int64, fileCount int) int {
	totalMB := totalSize / (1024 * 1024)
	calculated := int(totalMB) + 2*fileCount
	if calculated < minSeconds {
		return minSeconds
	}
	return calculated
}
