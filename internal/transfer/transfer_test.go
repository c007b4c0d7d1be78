package transfer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/state"
)

// fakeSource serves in-memory files and can fail opens per path.
type fakeSource struct {
	files []File
	data  map[string]string

	mu        sync.Mutex
	openCalls map[string]int
	// failures maps path to how many opens should fail before succeeding.
	failures  map[string]int
	permanent map[string]bool
}

func (s *fakeSource) Enumerate(ctx context.Context, root string) ([]File, error) {
	return s.files, nil
}

func (s *fakeSource) Open(ctx context.Context, f File) (io.ReadCloser, int64, error) {
	s.mu.Lock()
	if s.openCalls == nil {
		s.openCalls = make(map[string]int)
	}
	s.openCalls[f.Path]++
	if s.permanent[f.Path] {
		s.mu.Unlock()
		return nil, 0, coded.Errorf(coded.CodeNotFound, false, "item gone: %s", f.Path)
	}
	if s.failures[f.Path] > 0 {
		s.failures[f.Path]--
		s.mu.Unlock()
		return nil, 0, coded.Errorf(coded.CodeEndpointUnreachable, true, "transient failure: %s", f.Path)
	}
	content := s.data[f.Path]
	s.mu.Unlock()
	return io.NopCloser(strings.NewReader(content)), int64(len(content)), nil
}

// fakeDest collects uploads in memory.
type fakeDest struct {
	mu      sync.Mutex
	dirs    []string
	uploads map[string]string
}

func (d *fakeDest) EnsureDirectory(ctx context.Context, dir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dirs = append(d.dirs, dir)
	return nil
}

func (d *fakeDest) Upload(ctx context.Context, path string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.uploads == nil {
		d.uploads = make(map[string]string)
	}
	d.uploads[path] = string(data)
	return nil
}

func testEngine(src Source, dst Destination, ledger state.TransferLedger, opts Options) *Engine {
	opts.Scope = "test-scope"
	if opts.Workers == 0 {
		opts.Workers = 4
	}
	opts.ProgressInterval = time.Hour
	return NewEngine(src, dst, ledger, opts, zerolog.Nop())
}

func sampleFiles(n int) ([]File, map[string]string) {
	files := make([]File, 0, n)
	data := make(map[string]string)
	for i := 0; i < n; i++ {
		p := fmt.Sprintf("/docs/file-%02d.txt", i)
		content := fmt.Sprintf("content-%02d", i)
		files = append(files, File{ID: fmt.Sprintf("it%02d", i), Name: fmt.Sprintf("file-%02d.txt", i), Path: p, Size: int64(len(content))})
		data[p] = content
	}
	return files, data
}

func TestRunCopiesEverything(t *testing.T) {
	files, data := sampleFiles(10)
	src := &fakeSource{files: files, data: data}
	dst := &fakeDest{}
	store := state.NewMemoryStore()

	eng := testEngine(src, dst, store.Ledger(), Options{DestRoot: "archive"})
	summary, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Copied != 10 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Fatalf("summary = %+v, want 10 copied", summary)
	}
	if got := dst.uploads["archive/docs/file-03.txt"]; got != "content-03" {
		t.Errorf("uploaded content = %q, want content-03", got)
	}
	copied, failed, err := store.Ledger().Stats(context.Background(), "test-scope")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if copied != 10 || failed != 0 {
		t.Errorf("ledger stats = (%d, %d), want (10, 0)", copied, failed)
	}
}

func TestRunResumesFromLedger(t *testing.T) {
	files, data := sampleFiles(5)
	src := &fakeSource{files: files, data: data}
	dst := &fakeDest{}
	store := state.NewMemoryStore()

	// Pretend the first three were copied by an earlier run.
	for i := 0; i < 3; i++ {
		err := store.Ledger().MarkCopied(context.Background(), &state.LedgerEntry{
			Scope: "test-scope", ItemID: files[i].ID, Path: files[i].Path, Copied: true,
		})
		if err != nil {
			t.Fatalf("seed ledger: %v", err)
		}
	}

	eng := testEngine(src, dst, store.Ledger(), Options{})
	summary, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 3 || summary.Copied != 2 {
		t.Fatalf("summary = %+v, want 3 skipped, 2 copied", summary)
	}
	if len(dst.uploads) != 2 {
		t.Errorf("uploads = %d, want 2", len(dst.uploads))
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	files, data := sampleFiles(1)
	src := &fakeSource{
		files:    files,
		data:     data,
		failures: map[string]int{files[0].Path: 2},
	}
	dst := &fakeDest{}
	store := state.NewMemoryStore()

	eng := testEngine(src, dst, store.Ledger(), Options{RetryAttempts: 3})
	summary, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Copied != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 1 copied after retries", summary)
	}
	if src.openCalls[files[0].Path] != 3 {
		t.Errorf("open calls = %d, want 3", src.openCalls[files[0].Path])
	}
}

func TestRunIsolatesPermanentFailures(t *testing.T) {
	files, data := sampleFiles(4)
	src := &fakeSource{
		files:     files,
		data:      data,
		permanent: map[string]bool{files[1].Path: true},
	}
	dst := &fakeDest{}
	store := state.NewMemoryStore()

	eng := testEngine(src, dst, store.Ledger(), Options{})
	summary, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Copied != 3 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 3 copied, 1 failed", summary)
	}
	// Non-retryable errors must not be retried.
	if src.openCalls[files[1].Path] != 1 {
		t.Errorf("open calls for permanent failure = %d, want 1", src.openCalls[files[1].Path])
	}
	copied, failed, _ := store.Ledger().Stats(context.Background(), "test-scope")
	if copied != 3 || failed != 1 {
		t.Errorf("ledger stats = (%d, %d), want (3, 1)", copied, failed)
	}
}

func TestRunSkipsZeroByteFiles(t *testing.T) {
	files := []File{
		{ID: "a", Name: "empty.txt", Path: "/empty.txt", Size: 0},
		{ID: "b", Name: "full.txt", Path: "/full.txt", Size: 4},
	}
	src := &fakeSource{files: files, data: map[string]string{"/full.txt": "full"}}
	dst := &fakeDest{}
	store := state.NewMemoryStore()

	eng := testEngine(src, dst, store.Ledger(), Options{SkipZeroByte: true})
	summary, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 1 || summary.Copied != 1 {
		t.Fatalf("summary = %+v, want 1 skipped, 1 copied", summary)
	}
	if _, ok := dst.uploads["empty.txt"]; ok {
		t.Error("zero-byte file was uploaded")
	}
}

func TestJoinDest(t *testing.T) {
	cases := []struct{ root, p, want string }{
		{"", "/a/b.txt", "a/b.txt"},
		{"archive", "/a/b.txt", "archive/a/b.txt"},
		{"/archive/", "a/b.txt", "archive/a/b.txt"},
	}
	for _, c := range cases {
		if got := joinDest(c.root, c.p); got != c.want {
			t.Errorf("joinDest(%q, %q) = %q, want %q", c.root, c.p, got, c.want)
		}
	}
}
