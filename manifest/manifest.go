// Package manifest handles gosqueak.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chazu/gosqueak/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "gosqueak.toml"

// Manifest represents a gosqueak.toml configuration.
type Manifest struct {
	Image      ImageConfig      `toml:"image"`
	Memory     MemoryConfig     `toml:"memory"`
	Cache      CacheConfig      `toml:"cache"`
	Interrupts InterruptsConfig `toml:"interrupts"`
	Display    DisplayConfig    `toml:"display"`
	Log        LogConfig        `toml:"log"`
	Census     CensusConfig     `toml:"census"`

	// Dir is the directory containing the gosqueak.toml file (set at load
	// time). Empty for Default().
	Dir string `toml:"-"`
}

// ImageConfig names the image to run and the name it saves under.
type ImageConfig struct {
	Path string `toml:"path"`
	Name string `toml:"name"`
}

// MemoryConfig sizes the object table.
type MemoryConfig struct {
	InitialTable      int `toml:"initial-table"`
	Growth            int `toml:"growth"`
	ReclaimAfter      int `toml:"reclaim-after"`
	LowSpaceThreshold int `toml:"low-space-threshold"`
	MaxObjectWords    int `toml:"max-object-words"`
}

// CacheConfig sizes the interpreter caches.
type CacheConfig struct {
	MethodCache int `toml:"method-cache"`
	AtCache     int `toml:"at-cache"`
}

// InterruptsConfig configures the user interrupt key and idle waits.
type InterruptsConfig struct {
	Key            int `toml:"key"`
	YieldTimeoutMS int `toml:"yield-timeout-ms"`
}

// DisplayConfig sizes the headless screen.
type DisplayConfig struct {
	Width      int  `toml:"width"`
	Height     int  `toml:"height"`
	FullScreen bool `toml:"fullscreen"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// CensusConfig names the census history database.
type CensusConfig struct {
	Database string `toml:"database"`
}

// Default returns the configuration used when no gosqueak.toml exists.
func Default() *Manifest {
	m := &Manifest{Log: LogConfig{Verbosity: 1}}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Memory.InitialTable <= 0 {
		m.Memory.InitialTable = vm.DefaultTableCapacity
	}
	if m.Memory.Growth <= 0 {
		m.Memory.Growth = vm.DefaultTableGrowth
	}
	if m.Memory.ReclaimAfter < 0 {
		m.Memory.ReclaimAfter = 0
	}
	if m.Memory.MaxObjectWords <= 0 {
		m.Memory.MaxObjectWords = vm.DefaultMaxObjectWords
	}
	if m.Memory.LowSpaceThreshold <= 0 {
		m.Memory.LowSpaceThreshold = 2000
	}
	if m.Cache.MethodCache <= 0 {
		m.Cache.MethodCache = 1024
	}
	if m.Cache.AtCache <= 0 {
		m.Cache.AtCache = 32
	}
	if m.Interrupts.Key == 0 {
		m.Interrupts.Key = 2094 // cmd-.
	}
	if m.Interrupts.YieldTimeoutMS <= 0 {
		m.Interrupts.YieldTimeoutMS = 33
	}
	if m.Display.Width <= 0 {
		m.Display.Width = 640
	}
	if m.Display.Height <= 0 {
		m.Display.Height = 480
	}
}

// Load parses a gosqueak.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the configuration at an explicit path. Relative paths
// inside it resolve against the file's directory.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := &Manifest{Log: LogConfig{Verbosity: 1}}
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	m.applyDefaults()
	return m, nil
}

// FindAndLoad walks up from startDir to find a gosqueak.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// resolve makes p absolute relative to the manifest directory.
func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// ImagePath returns the configured image path, resolved against Dir.
func (m *Manifest) ImagePath() string {
	return m.resolve(m.Image.Path)
}

// ImageName returns the path snapshots are saved to. It defaults to the
// image path.
func (m *Manifest) ImageName() string {
	if m.Image.Name != "" {
		return m.resolve(m.Image.Name)
	}
	return m.ImagePath()
}

// LogFile returns the log file path, or "" for stderr.
func (m *Manifest) LogFile() string {
	return m.resolve(m.Log.File)
}

// CensusDatabase returns the census database path, or "".
func (m *Manifest) CensusDatabase() string {
	return m.resolve(m.Census.Database)
}

// MemoryOptions converts the [memory] section.
func (m *Manifest) MemoryOptions() vm.MemoryOptions {
	return vm.MemoryOptions{
		InitialCapacity: m.Memory.InitialTable,
		Growth:          m.Memory.Growth,
		ReclaimAfter:    m.Memory.ReclaimAfter,
		MaxObjectWords:  m.Memory.MaxObjectWords,
	}
}

// Options converts the configuration to interpreter options. Collaborators
// are left for the caller to attach.
func (m *Manifest) Options() vm.Options {
	return vm.Options{
		MethodCacheSize:   m.Cache.MethodCache,
		AtCacheSize:       m.Cache.AtCache,
		InterruptKey:      m.Interrupts.Key,
		LowSpaceThreshold: m.Memory.LowSpaceThreshold,
		YieldTimeout:      time.Duration(m.Interrupts.YieldTimeoutMS) * time.Millisecond,
		ImageName:         m.ImageName(),
	}
}
