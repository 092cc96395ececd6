// Package host defines the application the engine drives: acquisition and
// recording state, recording directories, and the status-message channel.
package host

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrEscapesRoot = errors.New("host: recording directory escapes root")

// RecordingDirLayout is the timestamp suffix appended to a recording prefix.
const RecordingDirLayout = "2006-01-02_15-04-05"

// Host is the collaborator surface consumed by the dispatch table.
type Host interface {
	AcquisitionStatus() bool
	SetAcquisitionStatus(on bool)
	RecordingStatus() bool
	SetRecordingStatus(on bool)
	SetRecordingDirectoryPrependText(prefix string)
	CreateNewRecordingDirectory() (string, error)
	SendStatusMessage(text string)
	ComputerName() string
	CurrentTimeMillis() int64
}

// Memory is an in-process Host. The zero value is usable; Root enables
// on-disk recording directories.
type Memory struct {
	Root string
	Name string
	Now  func() time.Time

	mu          sync.Mutex
	acquiring   bool
	recording   bool
	prefix      string
	directories []string
	status      []string
}

func NewMemory(root string) *Memory {
	return &Memory{Root: root}
}

func (m *Memory) AcquisitionStatus() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquiring
}

// SetAcquisitionStatus stops recording along with acquisition.
func (m *Memory) SetAcquisitionStatus(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquiring = on
	if !on {
		m.recording = false
	}
	log.Info().Bool("acquiring", on).Msg("host acquisition")
}

func (m *Memory) RecordingStatus() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

// SetRecordingStatus starts acquisition first when recording begins while
// acquisition is off.
func (m *Memory) SetRecordingStatus(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on && !m.acquiring {
		m.acquiring = true
		log.Info().Bool("acquiring", true).Msg("host acquisition")
	}
	m.recording = on
	log.Info().Bool("recording", on).Msg("host recording")
}

func (m *Memory) SetRecordingDirectoryPrependText(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefix = prefix
}

func (m *Memory) RecordingDirectoryPrependText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefix
}

// CreateNewRecordingDirectory names a directory from the current prefix and
// clock. Without Root the name is only recorded.
func (m *Memory) CreateNewRecordingDirectory() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := m.prefix + m.now().Format(RecordingDirLayout)
	dir := name
	if m.Root != "" {
		if !filepath.IsLocal(name) {
			return "", fmt.Errorf("%w: %q", ErrEscapesRoot, name)
		}
		dir = filepath.Join(m.Root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("host: create recording directory: %w", err)
		}
	}
	m.directories = append(m.directories, dir)
	log.Info().Str("dir", dir).Msg("host recording directory")
	return dir, nil
}

func (m *Memory) Directories() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.directories...)
}

func (m *Memory) SendStatusMessage(text string) {
	m.mu.Lock()
	m.status = append(m.status, text)
	m.mu.Unlock()
	log.Info().Str("status", text).Msg("host status")
}

func (m *Memory) StatusMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.status...)
}

func (m *Memory) ComputerName() string {
	if m.Name != "" {
		return m.Name
	}
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	return name
}

func (m *Memory) CurrentTimeMillis() int64 {
	return m.now().UnixMilli()
}

// Snapshot is a point-in-time copy of the host flags.
type Snapshot struct {
	Acquiring bool   `json:"acquiring"`
	Recording bool   `json:"recording"`
	Prefix    string `json:"prefix"`
}

func (m *Memory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Acquiring: m.acquiring, Recording: m.recording, Prefix: m.prefix}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
