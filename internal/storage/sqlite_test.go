package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kura/internal/models"
)

func openCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	c, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "nested", "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSQLiteCatalog_RecordAndGet(t *testing.T) {
	c := openCatalog(t)
	ctx := context.Background()

	info := &models.StoreInfo{
		Name:          "docs_AB12",
		RequestedName: "docs",
		Path:          "/stores/docs_AB12",
		Documents:     3,
		Dimensions:    384,
		IndexType:     "flat",
		SessionID:     "s1",
		RunID:         "run-1",
		SizeBytes:     4096,
	}
	if err := c.RecordStore(ctx, info); err != nil {
		t.Fatal(err)
	}
	if info.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := c.GetStore(ctx, "docs_AB12")
	if err != nil {
		t.Fatal(err)
	}
	if got.RequestedName != "docs" || got.Path != info.Path || got.Documents != 3 ||
		got.Dimensions != 384 || got.IndexType != "flat" || got.SessionID != "s1" ||
		got.RunID != "run-1" || got.SizeBytes != 4096 {
		t.Errorf("got %+v", got)
	}
	if d := got.CreatedAt.Sub(info.CreatedAt); d > time.Second || d < -time.Second {
		t.Errorf("created_at %v, want %v", got.CreatedAt, info.CreatedAt)
	}
}

func TestSQLiteCatalog_GetMissing(t *testing.T) {
	c := openCatalog(t)
	_, err := c.GetStore(context.Background(), "missing")
	if !errors.Is(err, ErrStoreNotFound) {
		t.Errorf("expected ErrStoreNotFound, got %v", err)
	}
}

func TestSQLiteCatalog_EmptySessionID(t *testing.T) {
	c := openCatalog(t)
	ctx := context.Background()
	if err := c.RecordStore(ctx, &models.StoreInfo{Name: "a", RequestedName: "a", Path: "/a", IndexType: "flat", RunID: "r"}); err != nil {
		t.Fatal(err)
	}
	got, err := c.GetStore(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.SessionID != "" {
		t.Errorf("expected empty session id, got %q", got.SessionID)
	}
}

func TestSQLiteCatalog_ListAndCount(t *testing.T) {
	c := openCatalog(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		info := &models.StoreInfo{
			Name: name, RequestedName: name, Path: "/stores/" + name,
			IndexType: "flat", RunID: name, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := c.RecordStore(ctx, info); err != nil {
			t.Fatal(err)
		}
	}

	n, err := c.CountStores(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 stores, got %d", n)
	}

	all, err := c.ListStores(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Name != "third" || all[2].Name != "first" {
		t.Fatalf("unexpected order: %+v", all)
	}

	page, err := c.ListStores(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].Name != "second" {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestSQLiteCatalog_RecordReplacesSamePath(t *testing.T) {
	c := openCatalog(t)
	ctx := context.Background()
	info := &models.StoreInfo{Name: "a", RequestedName: "a", Path: "/a", Documents: 1, IndexType: "flat", RunID: "r1"}
	if err := c.RecordStore(ctx, info); err != nil {
		t.Fatal(err)
	}
	info.Documents = 2
	info.RunID = "r2"
	if err := c.RecordStore(ctx, info); err != nil {
		t.Fatal(err)
	}
	n, _ := c.CountStores(ctx)
	if n != 1 {
		t.Errorf("expected 1 store, got %d", n)
	}
	got, _ := c.GetStore(ctx, "a")
	if got.Documents != 2 || got.RunID != "r2" {
		t.Errorf("got %+v", got)
	}
}

func TestSQLiteCatalog_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := NewSQLiteCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.RecordStore(context.Background(), &models.StoreInfo{Name: "kept", RequestedName: "kept", Path: "/kept", IndexType: "flat", RunID: "r"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err = NewSQLiteCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.GetStore(context.Background(), "kept"); err != nil {
		t.Errorf("store lost after reopen: %v", err)
	}
}
