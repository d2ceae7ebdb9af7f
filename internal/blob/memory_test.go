package blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	if store.Driver() != DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}

	info, err := store.Put(ctx, "images/leaf.jpg", bytes.NewReader([]byte("payload")), PutOptions{ContentType: "image/jpeg", Metadata: map[string]string{"lot": "a"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 7 || info.ContentType != "image/jpeg" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "images/leaf.jpg", strings.NewReader("x"), PutOptions{}); err == nil {
		t.Fatalf("expected create-only semantics")
	}

	got, rc, err := store.Get(ctx, "images/leaf.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "payload" || got.Metadata["lot"] != "a" {
		t.Fatalf("unexpected payload %q meta %v", data, got.Metadata)
	}

	head, err := store.Head(ctx, "images/leaf.jpg")
	if err != nil || head.Size != 7 {
		t.Fatalf("head: %+v err=%v", head, err)
	}

	if _, err := store.Put(ctx, "images/zz.jpg", strings.NewReader("b"), PutOptions{}); err != nil {
		t.Fatalf("second put: %v", err)
	}
	infos, err := store.List(ctx, "images/")
	if err != nil || len(infos) != 2 {
		t.Fatalf("list: %v %v", infos, err)
	}
	if infos[0].Key != "images/leaf.jpg" {
		t.Fatalf("list not sorted: %v", infos)
	}

	if _, err := store.PresignURL(ctx, "images/leaf.jpg", SignedURLOptions{}); err != ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}

	existed, err := store.Delete(ctx, "images/leaf.jpg")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "images/leaf.jpg")
	if err != nil || existed {
		t.Fatalf("second delete should miss: existed=%v err=%v", existed, err)
	}
	if _, _, err := store.Get(ctx, "images/leaf.jpg"); err == nil {
		t.Fatalf("expected miss after delete")
	}
}
