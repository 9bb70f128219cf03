package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"fairlens/internal/logging"
)

// Checkpoint is the smallest durable record sufficient for idempotent resume
// of a stage. Load returns -1 when no checkpoint exists.
type Checkpoint interface {
	Load() (int, error)
	Store(lastProcessedIndex int) error
}

// IntCheckpoint persists last_processed_index as a plain integer file.
type IntCheckpoint struct {
	path string
}

// NewIntCheckpoint creates a plain-integer checkpoint at path.
func NewIntCheckpoint(path string) *IntCheckpoint {
	return &IntCheckpoint{path: path}
}

// Load reads the checkpoint, returning -1 for a missing file.
func (c *IntCheckpoint) Load() (int, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, nil
		}
		return 0, fmt.Errorf("failed to read checkpoint %s: %w", c.path, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corrupt checkpoint %s: %w", c.path, err)
	}
	return n, nil
}

// Store atomically writes the new index.
func (c *IntCheckpoint) Store(lastProcessedIndex int) error {
	logging.Store("[checkpoint] %s <- %d", c.path, lastProcessedIndex)
	return WriteAtomic(c.path, []byte(strconv.Itoa(lastProcessedIndex)))
}

// videoCheckpointState is the JSON shape of the video stage checkpoint.
type videoCheckpointState struct {
	LastProcessedIndex int      `json:"last_processed_index"`
	VideoNames         []string `json:"video_names"`
}

// VideoCheckpoint persists the video stage checkpoint: the last processed
// index plus the names of every video written so far.
type VideoCheckpoint struct {
	path  string
	state videoCheckpointState
}

// NewVideoCheckpoint creates (and loads, if present) a video checkpoint.
func NewVideoCheckpoint(path string) (*VideoCheckpoint, error) {
	c := &VideoCheckpoint{path: path, state: videoCheckpointState{LastProcessedIndex: -1}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &c.state); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint %s: %w", path, err)
	}
	return c, nil
}

// Load returns the last processed index.
func (c *VideoCheckpoint) Load() (int, error) {
	return c.state.LastProcessedIndex, nil
}

// VideoNames returns the recorded video file names.
func (c *VideoCheckpoint) VideoNames() []string {
	return append([]string(nil), c.state.VideoNames...)
}

// AddVideos records names to be persisted with the next Store.
func (c *VideoCheckpoint) AddVideos(names ...string) {
	c.state.VideoNames = append(c.state.VideoNames, names...)
}

// Store atomically writes the new index plus accumulated video names.
func (c *VideoCheckpoint) Store(lastProcessedIndex int) error {
	c.state.LastProcessedIndex = lastProcessedIndex
	data, err := json.Marshal(c.state)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	logging.Store("[checkpoint] %s <- %d (%d videos)", c.path, lastProcessedIndex, len(c.state.VideoNames))
	return WriteAtomic(c.path, data)
}
