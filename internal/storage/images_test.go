package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

// 1x1 transparent PNG.
var pngBytes, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

func TestImages_PassThroughAndEmpty(t *testing.T) {
	im := Images{}
	got, err := im.Resolve(context.Background(), "avatars", "  ")
	if err != nil || got != "" {
		t.Fatalf("empty: got %q, %v", got, err)
	}
	got, err = im.Resolve(context.Background(), "avatars", "https://cdn/x.png")
	if err != nil || got != "https://cdn/x.png" {
		t.Fatalf("url: got %q, %v", got, err)
	}
}

func TestImages_DataURLUploads(t *testing.T) {
	store := NewMemoryStore("/media/")
	im := Images{Store: store, MaxBytes: 1 << 20}
	in := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)

	url, err := im.Resolve(context.Background(), "messages", in)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.HasPrefix(url, "/media/messages/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected url %q", url)
	}
	obj, ok := store.Get(strings.TrimPrefix(url, "/media/"))
	if !ok || obj.ContentType != "image/png" || len(obj.Data) != len(pngBytes) {
		t.Fatalf("object not stored correctly: ok=%v %+v", ok, obj.ContentType)
	}

	// Bare base64 works too.
	if _, err := im.Resolve(context.Background(), "avatars", base64.StdEncoding.EncodeToString(pngBytes)); err != nil {
		t.Fatalf("bare base64: %v", err)
	}
}

func TestImages_Rejections(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("/media")
	enc := base64.StdEncoding.EncodeToString(pngBytes)

	if _, err := (Images{Store: store}).Resolve(ctx, "m", "data:image/png,notbase64"); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("non-base64 data URL: %v", err)
	}
	if _, err := (Images{Store: store}).Resolve(ctx, "m", "!!!"); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("garbage: %v", err)
	}
	text := base64.StdEncoding.EncodeToString([]byte("just some text, not an image"))
	if _, err := (Images{Store: store}).Resolve(ctx, "m", text); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("non-image: %v", err)
	}
	if _, err := (Images{Store: store, MaxBytes: 10}).Resolve(ctx, "m", enc); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("too large: %v", err)
	}
	if _, err := (Images{}).Resolve(ctx, "m", enc); !errors.Is(err, ErrUploadsDisabled) {
		t.Fatalf("no store: %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore("/m")
	_ = s.Put(context.Background(), "k", strings.NewReader("abc"), 3, "text/plain")
	if _, ok := s.Get("k"); !ok {
		t.Fatalf("expected object")
	}
	_ = s.Delete(context.Background(), "k")
	if _, ok := s.Get("k"); ok {
		t.Fatalf("expected object deleted")
	}
	if s.URL("k") != "/m/k" {
		t.Fatalf("URL = %q", s.URL("k"))
	}
}
