package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
)

func waitForEvent(t *testing.T, code core.SystemEventCode) string {
	t.Helper()
	var got string
	core.EventRegister(code, func(ctx core.EventContext) { got = ctx.Data.(string) })
	deadline := time.Now().Add(5 * time.Second)
	for got == "" && time.Now().Before(deadline) {
		core.EventDispatch()
		time.Sleep(10 * time.Millisecond)
	}
	return got
}

func TestWatcherFiresConfigChanged(t *testing.T) {
	core.EventSystemInitialize()
	defer core.EventSystemShutdown()

	dir := t.TempDir()
	path := filepath.Join(dir, "lumen.toml")
	if err := os.WriteFile(path, []byte("[application]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	am, err := NewAssetManager()
	if err != nil {
		t.Fatal(err)
	}
	defer am.Shutdown()
	if err := am.Initialize(path); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("[application]\nwidth = 64\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := waitForEvent(t, core.EVENT_CODE_CONFIG_CHANGED)
	abs, _ := filepath.Abs(path)
	if got != abs {
		t.Fatalf("expected a config change for %s; got %q", abs, got)
	}
	if info, ok := am.Info(path); !ok || info.Changes == 0 {
		t.Fatalf("expected the change to be counted; got %+v", info)
	}
}

func TestLoadShaderLibrary(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "scene.lsl")
	data, err := shaders.SceneLibrary().Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(good, data, 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "broken.lsl")
	if err := os.WriteFile(bad, data[:len(data)-1], 0o644); err != nil {
		t.Fatal(err)
	}

	am, err := NewAssetManager()
	if err != nil {
		t.Fatal(err)
	}
	defer am.Shutdown()

	blob, err := am.LoadAsset(good)
	if err != nil {
		t.Fatal(err)
	}
	if blob.Library == nil || len(blob.Library.Exports) != 4 {
		t.Fatalf("expected 4 exports; got %+v", blob.Library)
	}
	if _, err := am.LoadAsset(bad); !errors.Is(err, shaders.ErrInvalidLibrary) {
		t.Fatalf("expected an invalid library error; got %v", err)
	}
	if _, err := am.LoadAsset(filepath.Join(dir, "notes.txt")); err == nil {
		t.Fatalf("expected no loader for .txt")
	}
}

func TestBytesToBytecode(t *testing.T) {
	tests := []struct {
		data  []byte
		valid bool
	}{
		{data: []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0}, valid: true},
		{data: []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1}, valid: false},
		{data: make([]byte, 20), valid: false},
	}
	for i, tt := range tests {
		words, err := loaders.BytesToBytecode(tt.data)
		if tt.valid != (err == nil) {
			t.Fatalf("[spec %d] expected valid=%v; got %v", i, tt.valid, err)
		}
		if tt.valid && (len(words) != 5 || words[0] != loaders.SPIRVMagic || words[1] != 0x00010000) {
			t.Fatalf("[spec %d] expected decoded words; got %x", i, words)
		}
	}
}

func TestShutdownWithoutInitialize(t *testing.T) {
	am, err := NewAssetManager()
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- am.Shutdown() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected a clean shutdown; got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected Shutdown of a manager that never watched anything to return")
	}

	if err := am.Shutdown(); err != nil {
		t.Fatalf("expected a second shutdown to be a no-op; got %v", err)
	}
	if err := am.Initialize(); err == nil {
		t.Fatal("expected Initialize after Shutdown to fail")
	}
}
