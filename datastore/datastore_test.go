package datastore

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/thozza/timelapser/camera"
	"github.com/thozza/timelapser/config"
)

func testPicture() *camera.Picture {
	return &camera.Picture{
		Data:     []byte("jpegdata"),
		TakenAt:  time.Date(2018, 10, 15, 10, 34, 0, 0, time.UTC),
		CameraSN: "CAM-0001",
		Filename: "20181015-103400-test.jpg",
	}
}

func TestFilesystem_Store(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store", "nested")
	fs := NewFilesystem(nil, dir)

	if err := fs.Store(t.Context(), testPicture()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "20181015-103400-test.jpg"))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if string(data) != "jpegdata" {
		t.Errorf("stored data = %q", data)
	}
}

func TestFilesystem_StorePathNotWritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o700) })
	fs := NewFilesystem(nil, filepath.Join(dir, "sub"))

	if err := fs.Store(t.Context(), testPicture()); err == nil {
		t.Error("expected error for unwritable store path, got nil")
	}
}

func TestRemote_Store(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	remote := NewRemote(nil, config.DatastoreSpec{
		Type:      config.DatastoreRemote,
		StorePath: srv.URL + "/shots/",
		AuthToken: "tok123",
	})

	if err := remote.Store(t.Context(), testPicture()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if gotPath != "/shots/20181015-103400-test.jpg" {
		t.Errorf("upload path = %q", gotPath)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if string(gotBody) != "jpegdata" {
		t.Errorf("uploaded body = %q", gotBody)
	}
}

func TestRemote_StoreRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	remote := NewRemote(nil, config.DatastoreSpec{
		Type:      config.DatastoreRemote,
		StorePath: srv.URL,
		AuthToken: "tok123",
	})

	if err := remote.Store(t.Context(), testPicture()); err == nil {
		t.Error("expected error for rejected upload, got nil")
	}
}

func TestRemote_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	remote := NewRemote(nil, config.DatastoreSpec{
		Type:           config.DatastoreRemote,
		StorePath:      srv.URL,
		AuthToken:      "tok123",
		TimeoutSeconds: 1,
	})

	start := time.Now()
	err := remote.Store(t.Context(), testPicture())
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v, want about 1s", elapsed)
	}
}

func TestFromSpecs(t *testing.T) {
	stores, err := FromSpecs(nil, []config.DatastoreSpec{
		{Type: config.DatastoreFilesystem, StorePath: "/data"},
		{Type: config.DatastoreRemote, StorePath: "https://store.example.com", AuthToken: "t"},
	})
	if err != nil {
		t.Fatalf("FromSpecs failed: %v", err)
	}
	if len(stores) != 2 {
		t.Fatalf("stores = %d, want 2", len(stores))
	}
	if stores[0].Name() != "filesystem(/data)" {
		t.Errorf("stores[0].Name() = %q", stores[0].Name())
	}
	if stores[1].Name() != "remote(https://store.example.com)" {
		t.Errorf("stores[1].Name() = %q", stores[1].Name())
	}
}

func TestFromSpecs_Empty(t *testing.T) {
	stores, err := FromSpecs(nil, []config.DatastoreSpec{})
	if err != nil {
		t.Fatalf("FromSpecs failed: %v", err)
	}
	if stores == nil || len(stores) != 0 {
		t.Errorf("stores = %#v, want empty non-nil slice", stores)
	}
}
