package assets

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
)

type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	AssetTypeConfig
	AssetTypeShaderLibrary
	AssetTypeSPIRV
)

// Editors tend to write a file in several steps; changes closer together
// than this are reported once.
const settleDelay = 100 * time.Millisecond

type AssetInfo struct {
	Path       string
	Type       AssetType
	LastLoaded time.Time
	Changes    uint64
}

// AssetManager loads the files the renderer depends on and watches them for
// changes. A change fires EVENT_CODE_CONFIG_CHANGED or
// EVENT_CODE_SHADER_CHANGED with the path as data.
type AssetManager struct {
	assets  map[string]*AssetInfo
	loaders map[AssetType]Loader
	dirs    map[string]struct{}
	pending map[string]*time.Timer

	mutex sync.Mutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	// set once the watch loop runs; stopped is closed only by that loop
	started bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "could not create file watcher")
	}

	am := &AssetManager{
		assets:   make(map[string]*AssetInfo),
		loaders:  make(map[AssetType]Loader),
		dirs:     make(map[string]struct{}),
		pending:  make(map[string]*time.Timer),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	am.registerLoader(AssetTypeConfig, &loaders.BinaryLoader{})
	am.registerLoader(AssetTypeShaderLibrary, &loaders.LibraryLoader{})
	am.registerLoader(AssetTypeSPIRV, &loaders.SPIRVLoader{})
	return am, nil
}

// Initialize starts the watch loop and watches every given file.
func (am *AssetManager) Initialize(paths ...string) error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return errors.New("asset manager already closed")
	}
	if !am.started {
		am.started = true
		go am.start()
	}
	am.mutex.Unlock()

	for _, p := range paths {
		if err := am.Watch(p); err != nil {
			return err
		}
	}
	return nil
}

// Watch starts watching one file. The parent directory is what is handed to
// fsnotify so that files replaced by rename are still seen.
func (am *AssetManager) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	assetType := determineAssetType(abs)
	if assetType == AssetTypeNone {
		return errors.Newf("no asset type for %s", path)
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	dir := filepath.Dir(abs)
	if _, ok := am.dirs[dir]; !ok {
		if err := am.fsnotify.Add(dir); err != nil {
			return errors.Wrapf(err, "watching %s", dir)
		}
		am.dirs[dir] = struct{}{}
	}
	if _, ok := am.assets[abs]; !ok {
		am.assets[abs] = &AssetInfo{Path: abs, Type: assetType}
	}
	return nil
}

// LoadAsset reads path with the loader registered for its type.
func (am *AssetManager) LoadAsset(path string) (*loaders.Blob, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	assetType := determineAssetType(abs)
	am.mutex.Lock()
	loader, ok := am.loaders[assetType]
	am.mutex.Unlock()
	if !ok {
		return nil, errors.Newf("no loader registered for %s", path)
	}

	blob, err := loader.Load(abs)
	if err != nil {
		return nil, err
	}
	am.mutex.Lock()
	if info, ok := am.assets[abs]; ok {
		info.LastLoaded = time.Now()
	}
	am.mutex.Unlock()
	return blob, nil
}

func (am *AssetManager) Info(path string) (AssetInfo, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return AssetInfo{}, false
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	info, ok := am.assets[abs]
	if !ok {
		return AssetInfo{}, false
	}
	return *info, true
}

func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	for _, t := range am.pending {
		t.Stop()
	}
	started := am.started
	am.mutex.Unlock()

	close(am.done)
	if started {
		<-am.stopped
	}
	return am.fsnotify.Close()
}

func (am *AssetManager) registerLoader(assetType AssetType, loader Loader) {
	am.loaders[assetType] = loader
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				am.handleFileEvent(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			return
		}
	}
}

func (am *AssetManager) handleFileEvent(name string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	info, ok := am.assets[filepath.Clean(name)]
	if !ok || am.isClosed {
		return
	}
	if t, ok := am.pending[info.Path]; ok {
		t.Reset(settleDelay)
		return
	}
	am.pending[info.Path] = time.AfterFunc(settleDelay, func() { am.fire(info.Path) })
}

func (am *AssetManager) fire(path string) {
	am.mutex.Lock()
	delete(am.pending, path)
	info, ok := am.assets[path]
	if !ok || am.isClosed {
		am.mutex.Unlock()
		return
	}
	info.Changes++
	assetType := info.Type
	am.mutex.Unlock()

	// a rename may leave the path missing for a moment
	if _, err := os.Stat(path); err != nil {
		core.LogWarn("%s changed but cannot be read: %s", path, err)
		return
	}

	code := core.EVENT_CODE_SHADER_CHANGED
	if assetType == AssetTypeConfig {
		code = core.EVENT_CODE_CONFIG_CHANGED
	}
	core.LogDebug("%s changed on disk", path)
	core.EventFire(core.EventContext{Type: code, Data: path})
}

func determineAssetType(path string) AssetType {
	switch filepath.Ext(path) {
	case ".toml":
		return AssetTypeConfig
	case ".lsl":
		return AssetTypeShaderLibrary
	case ".spv":
		return AssetTypeSPIRV
	default:
		return AssetTypeNone
	}
}
