// Package fwkconfig implements the framework's on-device configuration
// store: versioned metadata plus framework and application config
// records persisted under a cfg/ directory, with mutex-guarded
// accessors. This is a domain module in its own right, distinct from
// the deployment-time bootstrap configuration in pkg/bootconfig; the
// two are not merged.
package fwkconfig

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

const (
	configDir    = "cfg"
	metadataFile = "Metadata"
	fwkCfgFile   = "fwk_cfg"
	appCfgFile   = "app_cfg"
)

// DisplayType is the compile-time display_type enumeration.
type DisplayType uint32

const (
	DisplayRGB DisplayType = iota
	DisplayYUV
	DisplayMono
	displayTypeCount
)

// DisplayOutput is the compile-time display_output enumeration.
type DisplayOutput uint32

const (
	OutputPanel DisplayOutput = iota
	OutputHDMI
	OutputNone
	displayOutputCount
)

// ConnectivityType is the compile-time connectivity_type enumeration.
type ConnectivityType uint32

const (
	ConnBLE ConnectivityType = iota
	ConnWiFi
	ConnNone
	connectivityTypeCount
)

// Metadata is the fixed-layout record describing what versions of the
// framework and application config are currently persisted.
type Metadata struct {
	FwkVersion uint32
	FwkSize    uint32
	AppVersion uint32
	AppSize    uint32
}

// FrameworkConfig is the fixed-layout framework config record.
type FrameworkConfig struct {
	LogLevel         uint32
	DisplayType      DisplayType
	DisplayOutput    DisplayOutput
	ConnectivityType ConnectivityType
}

// DefaultFrameworkConfig is written whenever the persisted metadata
// version does not match the built-in version.
func DefaultFrameworkConfig() FrameworkConfig {
	return FrameworkConfig{
		LogLevel:         uint32(logger.InfoLevel),
		DisplayType:      DisplayRGB,
		DisplayOutput:    OutputPanel,
		ConnectivityType: ConnNone,
	}
}

// Store owns the cfgLock-guarded framework and application config
// shadow and persists changes to a small flash-like filesystem (a
// plain OS directory on the host port).
type Store struct {
	mu  sync.Mutex
	dir string
	log *logger.Logger

	builtinFwkVersion uint32

	meta    Metadata
	fwk     FrameworkConfig
	appData []byte
}

// Open runs the boot sequence: create cfg/ if absent, load-or-reset
// the framework config by metadata version, and load-or-drop the
// application blob by metadata version and size. appVersion/appSize
// are the calling application's current build values; a previously
// persisted app blob is kept only if its recorded size still matches.
// When no app blob has been recorded yet and appVersion is nonzero, the
// store starts with appSize zero bytes.
func Open(dir string, builtinFwkVersion uint32, appVersion, appSize uint32, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	s := &Store{dir: dir, builtinFwkVersion: builtinFwkVersion, log: log.WithComponent("fwkconfig")}

	if err := os.MkdirAll(filepath.Join(dir, configDir), 0o755); err != nil {
		return nil, fmt.Errorf("fwkconfig: creating cfg dir: %w", err)
	}

	meta, metaLoaded := s.loadMetadata()
	resetFwk := !metaLoaded || meta.FwkVersion != builtinFwkVersion
	builtinFwkSize := uint32(binary.Size(FrameworkConfig{}))

	if resetFwk {
		s.fwk = DefaultFrameworkConfig()
		meta.FwkVersion = builtinFwkVersion
		meta.FwkSize = builtinFwkSize
		if err := s.persistFrameworkConfig(); err != nil {
			return nil, err
		}
	} else if fwk, err := s.loadFrameworkConfig(); err == nil {
		s.fwk = fwk
	} else {
		s.log.Error("framework config unreadable despite matching metadata version, resetting to defaults", logger.Error(err))
		s.fwk = DefaultFrameworkConfig()
		resetFwk = true
		if err := s.persistFrameworkConfig(); err != nil {
			return nil, err
		}
	}

	sizeChanged := meta.AppSize != appSize
	if meta.AppVersion != 0 && !sizeChanged {
		data, err := s.loadAppData(meta.AppSize)
		if err != nil {
			s.log.Error("app config unreadable, dropping", logger.Error(err))
			sizeChanged = true
			s.appData = nil
		} else {
			s.appData = data
		}
	} else {
		s.appData = nil
		if meta.AppVersion == 0 && appVersion != 0 {
			s.appData = make([]byte, appSize)
		}
	}

	meta.AppVersion = appVersion
	meta.AppSize = appSize
	if resetFwk || sizeChanged || !metaLoaded {
		if err := s.persistMetadata(meta); err != nil {
			return nil, err
		}
	}
	s.meta = meta

	s.log.Info("config store boot complete",
		logger.Bool("fwk_reset", resetFwk),
		logger.String("app_data_size", humanize.Bytes(uint64(len(s.appData)))))

	return s, nil
}

// Metadata returns a copy of the currently persisted metadata.
func (s *Store) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// LogLevel returns the current framework log level.
func (s *Store) LogLevel() logger.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return logger.Level(s.fwk.LogLevel)
}

// SetLogLevel validates and persists a new log level.
func (s *Store) SetLogLevel(level logger.Level) error {
	if level < logger.NoneLevel || level > logger.VerboseLevel {
		return fmt.Errorf("fwkconfig: invalid log level %d", level)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fwk.LogLevel = uint32(level)
	return s.persistFrameworkConfig()
}

// DisplayType returns the current display type.
func (s *Store) DisplayType() DisplayType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fwk.DisplayType
}

// SetDisplayType validates and persists a new display type. Unlike the
// historical C implementation, every failure path here returns the real
// status - see SPEC_FULL.md §9 for the outer/inner "ret" shadowing bug this
// intentionally does not reproduce.
func (s *Store) SetDisplayType(v DisplayType) error {
	if v >= displayTypeCount {
		return fmt.Errorf("fwkconfig: invalid display type %d", v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fwk.DisplayType = v
	return s.persistFrameworkConfig()
}

// DisplayOutput returns the current display output.
func (s *Store) DisplayOutput() DisplayOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fwk.DisplayOutput
}

// SetDisplayOutput validates and persists a new display output.
func (s *Store) SetDisplayOutput(v DisplayOutput) error {
	if v >= displayOutputCount {
		return fmt.Errorf("fwkconfig: invalid display output %d", v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fwk.DisplayOutput = v
	return s.persistFrameworkConfig()
}

// ConnectivityType returns the current connectivity type.
func (s *Store) ConnectivityType() ConnectivityType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fwk.ConnectivityType
}

// SetConnectivityType validates and persists a new connectivity type.
func (s *Store) SetConnectivityType(v ConnectivityType) error {
	if v >= connectivityTypeCount {
		return fmt.Errorf("fwkconfig: invalid connectivity type %d", v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fwk.ConnectivityType = v
	return s.persistFrameworkConfig()
}

// LockAppData takes cfgLock and returns a borrow of the application
// blob. Callers must not retain the slice after UnlockAppData returns.
func (s *Store) LockAppData() []byte {
	s.mu.Lock()
	return s.appData
}

// UnlockAppData persists the (possibly modified) application blob iff
// save is true, then releases cfgLock.
func (s *Store) UnlockAppData(save bool) error {
	defer s.mu.Unlock()
	if !save {
		return nil
	}
	if err := s.persistAppData(); err != nil {
		return err
	}
	meta := s.meta
	meta.AppSize = uint32(len(s.appData))
	meta.AppVersion = s.meta.AppVersion
	s.meta = meta
	return s.persistMetadata(meta)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, configDir, name)
}

func (s *Store) loadMetadata() (Metadata, bool) {
	raw, err := os.ReadFile(s.path(metadataFile))
	if err != nil {
		return Metadata{}, false
	}
	var m Metadata
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &m); err != nil {
		return Metadata{}, false
	}
	return m, true
}

func (s *Store) persistMetadata(m Metadata) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, m); err != nil {
		return fmt.Errorf("fwkconfig: encoding metadata: %w", err)
	}
	if err := os.WriteFile(s.path(metadataFile), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("fwkconfig: persisting metadata: %w", err)
	}
	return nil
}

func (s *Store) loadFrameworkConfig() (FrameworkConfig, error) {
	raw, err := os.ReadFile(s.path(fwkCfgFile))
	if err != nil {
		return FrameworkConfig{}, err
	}
	var fwk FrameworkConfig
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &fwk); err != nil {
		return FrameworkConfig{}, err
	}
	return fwk, nil
}

func (s *Store) persistFrameworkConfig() error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, s.fwk); err != nil {
		return fmt.Errorf("fwkconfig: encoding framework config: %w", err)
	}
	if err := os.WriteFile(s.path(fwkCfgFile), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("fwkconfig: persisting framework config: %w", err)
	}
	return nil
}

func (s *Store) loadAppData(size uint32) ([]byte, error) {
	raw, err := os.ReadFile(s.path(appCfgFile))
	if err != nil {
		return nil, err
	}
	if uint32(len(raw)) != size {
		return nil, fmt.Errorf("fwkconfig: app config size mismatch: have %d want %d", len(raw), size)
	}
	return raw, nil
}

func (s *Store) persistAppData() error {
	if err := os.WriteFile(s.path(appCfgFile), s.appData, 0o644); err != nil {
		return fmt.Errorf("fwkconfig: persisting app config: %w", err)
	}
	return nil
}
