package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSnapshotter struct {
	dbPath string
	data   []byte
}

func (f *fakeSnapshotter) DBPath() string { return f.dbPath }

func (f *fakeSnapshotter) SnapshotTo(ctx context.Context, dstPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(dstPath, f.data, 0644)
}

func TestNewManager_Disabled(t *testing.T) {
	t.Parallel()

	m, err := NewManager(&fakeSnapshotter{dbPath: "/tmp/queryview.duckdb", data: []byte("x")}, Config{})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil manager when disabled")
	}
}

func TestNewManager_EnabledRequiresDBPath(t *testing.T) {
	t.Parallel()

	_, err := NewManager(&fakeSnapshotter{dbPath: "", data: []byte("x")}, Config{
		Enabled:  true,
		LocalDir: t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for empty db path")
	}
}

func TestRunOnce_CreatesAndPrunesLocalBackups(t *testing.T) {
	t.Parallel()

	localDir := t.TempDir()
	store := &fakeSnapshotter{
		dbPath: "/tmp/queryview.duckdb",
		data:   []byte("snapshot"),
	}

	uploader := &recordingUploader{}
	m := &Manager{
		store: store,
		cfg: Config{
			Enabled:  true,
			LocalDir: localDir,
			KeepLast: 2,
		},
		uploader: uploader,
	}

	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce #1: %v", err)
	}
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce #2: %v", err)
	}
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce #3: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(localDir, "queryview-*.duckdb"))
	if err != nil {
		t.Fatalf("glob backups: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("backup files = %d, want 2", len(files))
	}
	if len(uploader.paths) != 3 {
		t.Fatalf("uploads = %d, want 3", len(uploader.paths))
	}
}

type recordingUploader struct {
	mu    sync.Mutex
	paths []string
}

func (u *recordingUploader) UploadFile(_ context.Context, localPath string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, localPath)
	return nil
}

func TestRunOnce_SnapshotErrorSkipsUpload(t *testing.T) {
	t.Parallel()

	uploader := &recordingUploader{}
	m := &Manager{
		store:    &fakeSnapshotter{dbPath: "/tmp/queryview.duckdb"},
		cfg:      Config{Enabled: true, LocalDir: t.TempDir(), KeepLast: 2},
		uploader: uploader,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.RunOnce(ctx); err == nil {
		t.Fatal("expected snapshot error for canceled context")
	}
	if len(uploader.paths) != 0 {
		t.Fatalf("uploads = %d, want 0", len(uploader.paths))
	}
}

func TestNewManager_UnknownTarget(t *testing.T) {
	t.Parallel()

	_, err := NewManager(&fakeSnapshotter{dbPath: "/tmp/queryview.duckdb", data: []byte("x")}, Config{
		Enabled:   true,
		LocalDir:  t.TempDir(),
		BucketURL: "s3://bucket",
		Target:    "ftp",
	})
	if err == nil || !strings.Contains(err.Error(), "unknown target") {
		t.Fatalf("err = %v, want unknown target", err)
	}
}

func TestNewManager_StartupSnapshot(t *testing.T) {
	t.Parallel()

	localDir := t.TempDir()
	m, err := NewManager(&fakeSnapshotter{dbPath: "/tmp/queryview.duckdb", data: []byte("x")}, Config{
		Enabled:  true,
		Interval: time.Hour,
		LocalDir: localDir,
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	defer m.Stop()

	files, _ := filepath.Glob(filepath.Join(localDir, "queryview-*.duckdb"))
	if len(files) != 1 {
		t.Fatalf("startup backups = %d, want 1", len(files))
	}
}

type blockingUploader struct {
	started chan struct{}
	once    sync.Once
}

func (u *blockingUploader) UploadFile(ctx context.Context, _ string) error {
	u.once.Do(func() { close(u.started) })
	<-ctx.Done()
	return ctx.Err()
}

func TestStop_CancelsInFlightUpload(t *testing.T) {
	t.Parallel()

	localDir := t.TempDir()
	uploader := &blockingUploader{started: make(chan struct{})}
	m := &Manager{
		store: &fakeSnapshotter{
			dbPath: "/tmp/queryview.duckdb",
			data:   []byte("snapshot"),
		},
		cfg: Config{
			Enabled:  true,
			Interval: 5 * time.Millisecond,
			LocalDir: localDir,
			KeepLast: 2,
		},
		uploader: uploader,
		done:     make(chan struct{}),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.loop()

	select {
	case <-uploader.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upload to start")
	}

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; upload likely not canceled")
	}
}

func TestSnapshot_OneShot(t *testing.T) {
	t.Parallel()

	localDir := t.TempDir()
	store := &fakeSnapshotter{dbPath: "/tmp/queryview.duckdb", data: []byte("snapshot")}
	if err := Snapshot(context.Background(), store, Config{LocalDir: localDir}); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(localDir, "queryview-*.duckdb"))
	if len(files) != 1 {
		t.Fatalf("backup files = %d, want 1", len(files))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Snapshot(ctx, store, Config{LocalDir: localDir}); err == nil {
		t.Fatal("expected error from cancelled snapshot")
	}
}
