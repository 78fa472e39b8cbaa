package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/folio/internal/storage"
)

// watcherTestEnv sets up a record root, store, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, *storage.Store, *DB) {
	t.Helper()
	root := t.TempDir()
	return root, newStore(t, root), testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func writeLegacy(t *testing.T, root, name, title string) {
	t.Helper()
	data, _ := json.Marshal(map[string]any{
		"id":          "legacy-" + name,
		"title":       title,
		"content":     "contenido legado",
		"publishedAt": "2024-01-01T00:00:00Z",
	})
	if err := os.WriteFile(filepath.Join(root, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_SavedRecordIndexed(t *testing.T) {
	root, st, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, st, root, quietLogger(), func(kind, slug string) {
		mu.Lock()
		events = append(events, kind+":"+slug)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	if _, err := st.Save(context.Background(), stored("desde-cero", "Desde cero")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("desde-cero")
		return cs != ""
	}, "saved record not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:desde-cero" {
				return true
			}
		}
		return false
	}, "expected created:desde-cero callback")
}

func TestWatcher_LegacyFileIndexed(t *testing.T) {
	root, st, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, st, root, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	writeLegacy(t, root, "legado.json", "Articulo legado")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("legado")
		return cs != ""
	}, "legacy file not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	root, st, db := watcherTestEnv(t)
	ctx := context.Background()

	if _, err := st.Save(ctx, stored("borrar", "Borrar luego")); err != nil {
		t.Fatal(err)
	}
	if err := Sync(ctx, db, st, quietLogger()); err != nil {
		t.Fatal(err)
	}
	cs, _ := db.GetChecksum("borrar")
	if cs == "" {
		t.Fatal("precondition: record should be indexed")
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go Watch(wctx, db, st, root, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	if _, err := st.Delete(ctx, "borrar"); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("borrar")
		return cs == ""
	}, "deleted record still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	root, st, db := watcherTestEnv(t)
	ctx := context.Background()

	writeLegacy(t, root, "viejo.json", "Nombre viejo")
	if err := Sync(ctx, db, st, quietLogger()); err != nil {
		t.Fatal(err)
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go Watch(wctx, db, st, root, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(root, "viejo.json"), filepath.Join(root, "renombrado.json"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum("viejo")
		newCS, _ := db.GetChecksum("renombrado")
		return oldCS == "" && newCS != ""
	}, "rename reconciliation failed: old slug should be removed and new slug indexed")
}
