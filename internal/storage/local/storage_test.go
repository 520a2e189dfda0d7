package local_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/snehjoshi/spoolq/internal/storage"
	"github.com/snehjoshi/spoolq/internal/storage/local"
	"github.com/snehjoshi/spoolq/internal/types"
)

// ---- helpers ----------------------------------------------------------------

func openStorage(t *testing.T) *local.Storage {
	t.Helper()
	s, err := local.Open(t.TempDir())
	if err != nil {
		t.Fatalf("local.Open: %v", err)
	}
	return s
}

// seq yields dir/<prefix><n> for n = 1, 2, ...
func seq(dir, prefix string) func() string {
	n := 0
	return func() string {
		n++
		return filepath.Join(dir, prefix+strconv.Itoa(n))
	}
}

// const0 always yields the same path.
func const0(path string) (func() string, *int) {
	calls := 0
	return func() string {
		calls++
		return path
	}, &calls
}

const prefix = "0.00000000001700000000.00000000000000000001.004242."

// ---- Store ------------------------------------------------------------------

func TestStore_WritesContent(t *testing.T) {
	s := openStorage(t)
	path, err := s.Store(seq(s.Dir(), prefix), []byte("hello"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("content: want hello, got %q", got)
	}
}

func TestStore_SkipsExistingNames(t *testing.T) {
	s := openStorage(t)
	taken := filepath.Join(s.Dir(), prefix+"1")
	if err := os.WriteFile(taken, []byte("other"), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	path, err := s.Store(seq(s.Dir(), prefix), []byte("mine"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if filepath.Base(path) != prefix+"2" {
		t.Errorf("want second candidate, got %s", path)
	}
	if got, _ := os.ReadFile(taken); string(got) != "other" {
		t.Errorf("existing file was overwritten: %q", got)
	}
}

func TestStore_NamingExhausted(t *testing.T) {
	s := openStorage(t)
	path := filepath.Join(s.Dir(), prefix+"1")
	if err := os.WriteFile(path, []byte("x"), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	next, calls := const0(path)
	_, err := s.Store(next, []byte("y"))
	if !errors.Is(err, types.ErrNamingExhausted) {
		t.Fatalf("Store: want ErrNamingExhausted, got %v", err)
	}
	if *calls != storage.MaxNameAttempts+1 {
		t.Errorf("candidates drawn: want %d, got %d", storage.MaxNameAttempts+1, *calls)
	}
}

// entries returns the base names of everything in dir, hidden files included.
func entries(t *testing.T, dir string) []string {
	t.Helper()
	es, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range es {
		names = append(names, e.Name())
	}
	return names
}

func TestStore_PublishesCompleteFileOnly(t *testing.T) {
	dir := t.TempDir()
	s, err := local.Open(dir, local.Config{Perm: 0o600})
	if err != nil {
		t.Fatalf("local.Open: %v", err)
	}
	path, err := s.Store(seq(dir, prefix), []byte("hello"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	names := entries(t, dir)
	if len(names) != 1 || names[0] != filepath.Base(path) {
		t.Fatalf("directory should hold only the message, got %v", names)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Size() != 5 || fi.Mode().Perm() != 0o600 {
		t.Errorf("published file: size %d mode %v", fi.Size(), fi.Mode().Perm())
	}
}

func TestStore_NamingExhaustedLeavesNoTemp(t *testing.T) {
	s := openStorage(t)
	path := filepath.Join(s.Dir(), prefix+"1")
	if err := os.WriteFile(path, []byte("x"), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	next, _ := const0(path)
	if _, err := s.Store(next, []byte("y")); err == nil {
		t.Fatal("Store: expected error")
	}
	for _, name := range entries(t, s.Dir()) {
		if strings.HasPrefix(name, local.TempPrefix) {
			t.Errorf("temp file left behind: %s", name)
		}
	}
}

func TestStore_ConcurrentWritersNeverCollide(t *testing.T) {
	s := openStorage(t)

	var (
		mu   sync.Mutex
		n    int
		wg   sync.WaitGroup
		errs = make(chan error, 50)
	)
	next := func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return filepath.Join(s.Dir(), prefix+strconv.Itoa(n))
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Store(next, []byte(strconv.Itoa(i))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Store: %v", err)
	}

	paths, err := s.List("*")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(paths) != 50 {
		t.Errorf("want 50 files, got %d", len(paths))
	}
}

// ---- ReadAndRemove ----------------------------------------------------------

func TestReadAndRemove(t *testing.T) {
	s := openStorage(t)
	path, err := s.Store(seq(s.Dir(), prefix), []byte("payload"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := s.ReadAndRemove(path)
	if err != nil {
		t.Fatalf("ReadAndRemove: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("want payload, got %q", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file should be gone, stat err = %v", err)
	}
}

func TestReadAndRemove_Vanished(t *testing.T) {
	s := openStorage(t)
	_, err := s.ReadAndRemove(filepath.Join(s.Dir(), prefix+"404"))
	if !errors.Is(err, types.ErrVanished) {
		t.Fatalf("want ErrVanished, got %v", err)
	}
}

func TestReadAndRemove_LostUnlinkRace(t *testing.T) {
	s := openStorage(t)
	path, _ := s.Store(seq(s.Dir(), prefix), []byte("x"))

	local.SetRemove(s, func(p string) error {
		_ = os.Remove(p)
		return os.Remove(p)
	})
	got, err := s.ReadAndRemove(path)
	if !errors.Is(err, types.ErrVanished) {
		t.Fatalf("want ErrVanished, got %v", err)
	}
	if got != nil {
		t.Errorf("loser of the race must not deliver content, got %q", got)
	}
}

func TestReadAndRemove_EmptyFile(t *testing.T) {
	s := openStorage(t)
	path := filepath.Join(s.Dir(), prefix+"1")
	if err := os.WriteFile(path, nil, 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := s.ReadAndRemove(path)
	if !errors.Is(err, &types.Error{Kind: types.KindRead, Stage: types.StageEmpty}) {
		t.Fatalf("want empty-file read error, got %v", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Errorf("empty file must be left in place: %v", statErr)
	}
}

func TestReadAndRemove_DeleteFailureStillReturnsContent(t *testing.T) {
	s := openStorage(t)
	path, _ := s.Store(seq(s.Dir(), prefix), []byte("kept"))

	local.SetRemove(s, func(string) error { return os.ErrPermission })
	got, err := s.ReadAndRemove(path)
	if !errors.Is(err, types.ErrDelete) {
		t.Fatalf("want ErrDelete, got %v", err)
	}
	if !types.IsWarning(err) {
		t.Error("delete failure should be warning class")
	}
	if string(got) != "kept" {
		t.Errorf("content: want kept, got %q", got)
	}
}

// ---- List / DirSize ---------------------------------------------------------

func TestList_SortedAndFiltered(t *testing.T) {
	s := openStorage(t)
	names := []string{
		"5.00000000000000000002.00000000000000000000.000001.1",
		"0.00000000000000000009.00000000000000000000.000001.1",
		"5.00000000000000000001.00000000000000000000.000001.1",
		"notes.txt",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(s.Dir(), n), []byte("x"), 0o640); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(s.Dir(), "5.sub"), 0o750); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	got, err := s.List("5.*")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{names[2], names[0]}
	if len(got) != len(want) {
		t.Fatalf("List: want %d paths, got %v", len(want), got)
	}
	for i := range want {
		if filepath.Base(got[i]) != want[i] {
			t.Errorf("List[%d]: want %s, got %s", i, want[i], filepath.Base(got[i]))
		}
	}
}

func TestList_MissingDirectoryIsScanError(t *testing.T) {
	dir := t.TempDir()
	s, err := local.Open(dir)
	if err != nil {
		t.Fatalf("local.Open: %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if _, err := s.List("*"); !errors.Is(err, types.ErrScan) {
		t.Fatalf("want ErrScan, got %v", err)
	}
}

func TestDirSize_CountsAllFiles(t *testing.T) {
	s := openStorage(t)
	_ = os.WriteFile(filepath.Join(s.Dir(), "a"), make([]byte, 10), 0o640)
	_ = os.WriteFile(filepath.Join(s.Dir(), "b.lock"), make([]byte, 5), 0o640)

	got, err := s.DirSize()
	if err != nil {
		t.Fatalf("DirSize: %v", err)
	}
	if got != 15 {
		t.Errorf("DirSize: want 15, got %d", got)
	}
}

// ---- ValidateDir ------------------------------------------------------------

func TestValidateDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, []byte("x"), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cases := []struct {
		name string
		dir  string
		ok   bool
	}{
		{"empty", "", false},
		{"missing", filepath.Join(t.TempDir(), "nope"), false},
		{"regular file", file, false},
		{"ok", t.TempDir(), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := local.ValidateDir("orders", tc.dir)
			if tc.ok {
				if err != nil {
					t.Fatalf("ValidateDir: %v", err)
				}
				return
			}
			if !errors.Is(err, types.ErrConfig) {
				t.Fatalf("want ErrConfig, got %v", err)
			}
			var e *types.Error
			if !errors.As(err, &e) || e.Queue != "orders" {
				t.Errorf("error should carry queue name: %v", err)
			}
		})
	}
}

func TestValidateDir_NotWritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	if err := local.ValidateDir("orders", dir); !errors.Is(err, types.ErrConfig) {
		t.Fatalf("want ErrConfig, got %v", err)
	}
}
