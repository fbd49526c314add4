package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CheckpointFormatVersion identifies the on-disk layout. Loads refuse
// any other version rather than guessing at field meanings.
const CheckpointFormatVersion = 1

// Well-known checkpoint tags.
const (
	TagLatest = "latest"
	TagBest   = "best"
)

// TagIteration returns the tag for a periodic history snapshot. Unlike
// latest and best these are never overwritten, so training history is
// retained at the save interval.
func TagIteration(iteration int) string {
	return fmt.Sprintf("iter-%06d", iteration)
}

// Checkpoint is one atomic snapshot of both networks, the exact
// normalization parameters they were trained with, and the training
// progress counters. Policy and value parameters are always saved and
// loaded together; a checkpoint with only one of them cannot exist.
type Checkpoint struct {
	FormatVersion int       `json:"format_version"`
	ID            string    `json:"id"`
	Tag           string    `json:"tag"`
	SavedAt       time.Time `json:"saved_at"`

	TrainStep  int     `json:"train_step"`
	BestReward float64 `json:"best_reward"`

	Normalization NormalizationParams `json:"normalization"`
	Policy        []LayerParams       `json:"policy"`
	Value         []LayerParams       `json:"value"`
}

// CheckpointStore persists checkpoints as JSON files, one per tag.
// Writes go to a temp file in the same directory followed by a rename,
// so a partially written checkpoint is never loadable and a failed save
// never corrupts the previous snapshot under the same tag.
type CheckpointStore struct {
	dir string
}

// NewCheckpointStore creates the store, making the directory if needed.
func NewCheckpointStore(dir string) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &CheckpointStore{dir: dir}, nil
}

// Dir returns the store's directory.
func (s *CheckpointStore) Dir() string { return s.dir }

func (s *CheckpointStore) path(tag string) string {
	return filepath.Join(s.dir, tag+".json")
}

// Save writes the checkpoint under the given tag and returns its
// generated ID.
func (s *CheckpointStore) Save(cp *Checkpoint, tag string) (string, error) {
	cp.FormatVersion = CheckpointFormatVersion
	cp.ID = uuid.NewString()
	cp.Tag = tag
	cp.SavedAt = time.Now().UTC()

	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, tag+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path(tag)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("commit checkpoint: %w", err)
	}
	logrus.WithFields(logrus.Fields{"tag": tag, "id": cp.ID, "step": cp.TrainStep}).Debug("checkpoint saved")
	return cp.ID, nil
}

// Load reads the checkpoint under the given tag. Unreadable or
// wrong-version files yield *CheckpointCorruptionError; a simply absent
// tag yields the underlying fs error for the caller to distinguish.
func (s *CheckpointStore) Load(tag string) (*Checkpoint, error) {
	path := s.path(tag)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &CheckpointCorruptionError{Path: path, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if cp.FormatVersion != CheckpointFormatVersion {
		return nil, &CheckpointCorruptionError{
			Path:   path,
			Reason: fmt.Sprintf("format version %d, want %d", cp.FormatVersion, CheckpointFormatVersion),
		}
	}
	if len(cp.Policy) == 0 || len(cp.Value) == 0 {
		return nil, &CheckpointCorruptionError{Path: path, Reason: "missing network parameters"}
	}
	if cp.Normalization.Version == "" {
		return nil, &CheckpointCorruptionError{Path: path, Reason: "missing normalization parameters"}
	}
	return &cp, nil
}

// Exists reports whether a checkpoint with the given tag is on disk.
func (s *CheckpointStore) Exists(tag string) bool {
	_, err := os.Stat(s.path(tag))
	return err == nil
}

// RestoreNetworks rebuilds policy and value networks with the given
// architecture and loads the checkpoint parameters into them. A shape
// mismatch against the configured architecture fails with
// *CheckpointCorruptionError rather than silently truncating or padding.
func RestoreNetworks(cp *Checkpoint, cfg NetworkConfig, rng *PartitionedRNG) (*PolicyNetwork, *ValueNetwork, error) {
	policy := NewPolicyNetwork(cfg, rng.ForSubsystem(SubsystemInit))
	value := NewValueNetwork(cfg, rng.ForSubsystem(SubsystemInit))
	if err := policy.Net().SetParams(cp.Policy); err != nil {
		return nil, nil, &CheckpointCorruptionError{Path: cp.ID, Reason: fmt.Sprintf("policy network: %v", err)}
	}
	if err := value.Net().SetParams(cp.Value); err != nil {
		return nil, nil, &CheckpointCorruptionError{Path: cp.ID, Reason: fmt.Sprintf("value network: %v", err)}
	}
	return policy, value, nil
}
