package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/versesync/versesync/pkg/sync/models"
)

func rev(mtime time.Time, size int64, hash string) *models.FileRevision {
	return &models.FileRevision{
		Revision:   1,
		Hash:       &hash,
		Size:       &size,
		ModifiedAt: mtime,
	}
}

func TestComparePlan(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		server    map[string]*models.FileRevision
		client    map[string]ClientFile
		wantPull  []string
		wantPush  []string
	}{
		{
			name:     "server only file is pulled",
			server:   map[string]*models.FileRevision{"a.txt": rev(base, 10, "h1")},
			client:   map[string]ClientFile{},
			wantPull: []string{"a.txt"},
		},
		{
			name:     "client only file is pushed",
			server:   map[string]*models.FileRevision{},
			client:   map[string]ClientFile{"b.txt": {ModifiedAt: base, Size: 10, Hash: "h1"}},
			wantPush: []string{"b.txt"},
		},
		{
			name:   "identical files need nothing",
			server: map[string]*models.FileRevision{"a.txt": rev(base, 10, "h1")},
			client: map[string]ClientFile{"a.txt": {ModifiedAt: base, Size: 10, Hash: "h1"}},
		},
		{
			name:     "server clearly newer wins",
			server:   map[string]*models.FileRevision{"a.txt": rev(base.Add(10*time.Second), 10, "h1")},
			client:   map[string]ClientFile{"a.txt": {ModifiedAt: base, Size: 20, Hash: "h2"}},
			wantPull: []string{"a.txt"},
		},
		{
			name:     "client clearly newer wins",
			server:   map[string]*models.FileRevision{"a.txt": rev(base, 10, "h1")},
			client:   map[string]ClientFile{"a.txt": {ModifiedAt: base.Add(10 * time.Second), Size: 20, Hash: "h2"}},
			wantPush: []string{"a.txt"},
		},
		{
			name:   "sub-second mtime skew with equal content is ignored",
			server: map[string]*models.FileRevision{"a.txt": rev(base.Add(500*time.Millisecond), 10, "h1")},
			client: map[string]ClientFile{"a.txt": {ModifiedAt: base, Size: 10, Hash: "h1"}},
		},
		{
			name:     "mtime within tolerance, size differs, server tie wins",
			server:   map[string]*models.FileRevision{"a.txt": rev(base, 10, "h1")},
			client:   map[string]ClientFile{"a.txt": {ModifiedAt: base, Size: 20, Hash: "h1"}},
			wantPull: []string{"a.txt"},
		},
		{
			name:     "mtime within tolerance, size differs, client slightly newer pushes",
			server:   map[string]*models.FileRevision{"a.txt": rev(base, 10, "h1")},
			client:   map[string]ClientFile{"a.txt": {ModifiedAt: base.Add(800 * time.Millisecond), Size: 20, Hash: "h1"}},
			wantPush: []string{"a.txt"},
		},
		{
			name:     "same mtime and size, hash differs, server wins",
			server:   map[string]*models.FileRevision{"a.txt": rev(base, 10, "h1")},
			client:   map[string]ClientFile{"a.txt": {ModifiedAt: base, Size: 10, Hash: "h2"}},
			wantPull: []string{"a.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := comparePlan(tt.server, tt.client, nil)
			assert.ElementsMatch(t, tt.wantPull, plan.Pull, "pull set")
			assert.ElementsMatch(t, tt.wantPush, plan.Push, "push set")
		})
	}
}

func TestComparePlan_Tombstones(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	client := map[string]ClientFile{"old.txt": {ModifiedAt: base, Size: 10, Hash: "h1"}}

	// Without tombstone info the client copy is pushed back
	plan := comparePlan(map[string]*models.FileRevision{}, client, nil)
	assert.Equal(t, []string{"old.txt"}, plan.Push)

	// A deletion newer than the client copy suppresses the push
	plan = comparePlan(map[string]*models.FileRevision{}, client,
		map[string]time.Time{"old.txt": base.Add(time.Hour)})
	assert.Empty(t, plan.Push)

	// A deletion older than the client copy does not: the file was
	// recreated after the delete
	plan = comparePlan(map[string]*models.FileRevision{}, client,
		map[string]time.Time{"old.txt": base.Add(-time.Hour)})
	assert.Equal(t, []string{"old.txt"}, plan.Push)
}

func TestReconcileTimeout(t *testing.T) {
	tests := []struct {
		name      string
		min       int
		totalSize int64
		files     int
		want      int
	}{
		{"floored at minimum", 300, 0, 2, 300},
		{"per-file cost", 1, 0, 10, 20},
		{"per-megabyte cost", 1, 100 * 1024 * 1024, 0, 100},
		{"combined", 1, 50 * 1024 * 1024, 25, 100},
		{"sub-megabyte rounds down", 10, 512 * 1024, 1, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reconcileTimeout(tt.min, tt.totalSize, tt.files))
		})
	}
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"songs/intro.txt", "songs/intro.txt", false},
		{`songs\intro.txt`, "songs/intro.txt", false},
		{"./songs/intro.txt", "songs/intro.txt", false},
		{"songs//intro.txt", "songs/intro.txt", false},
		{"", "", true},
		{".", "", true},
		{"..", "", true},
		{"../evil.txt", "", true},
		{"songs/../../evil.txt", "", true},
		{"/etc/passwd", "", true},
	}

	for _, tt := range tests {
		got, err := sanitizePath(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, models.ErrInvalidPath, "input %q", tt.in)
		} else {
			assert.NoError(t, err, "input %q", tt.in)
			assert.Equal(t, tt.want, got)
		}
	}
}
