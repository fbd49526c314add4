package agent

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCheckpoint(t *testing.T, cfg NetworkConfig) (*Checkpoint, *PolicyNetwork, *ValueNetwork) {
	t.Helper()
	rng := NewPartitionedRNG(21)
	policy := NewPolicyNetwork(cfg, rng.ForSubsystem(SubsystemInit))
	value := NewValueNetwork(cfg, rng.ForSubsystem(SubsystemInit))
	cp := &Checkpoint{
		TrainStep:     7,
		BestReward:    12.5,
		Normalization: DefaultNormalizationParams(),
		Policy:        policy.Net().Params(),
		Value:         value.Net().Params(),
	}
	return cp, policy, value
}

func TestCheckpointStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewCheckpointStore(t.TempDir())
	require.NoError(t, err)

	cfg := DefaultNetworkConfig()
	cp, policy, value := newTestCheckpoint(t, cfg)

	id, err := store.Save(cp, TagLatest)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	loaded, err := store.Load(TagLatest)
	require.NoError(t, err)
	assert.Equal(t, id, loaded.ID)
	assert.Equal(t, 7, loaded.TrainStep)
	assert.Equal(t, cp.Normalization, loaded.Normalization)
	assert.Equal(t, cp.Policy, loaded.Policy)
	assert.Equal(t, cp.Value, loaded.Value)

	// Restored networks reproduce identical predictions on a probe.
	restoredPolicy, restoredValue, err := RestoreNetworks(loaded, cfg, NewPartitionedRNG(99))
	require.NoError(t, err)
	probe := make(Observation, ObservationDim)
	for i := range probe {
		probe[i] = float64(i) / ObservationDim
	}
	assert.Equal(t, policy.Probs(probe), restoredPolicy.Probs(probe))
	assert.Equal(t, value.Value(probe), restoredValue.Value(probe))
}

func TestCheckpointStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCheckpointStore(dir)
	require.NoError(t, err)

	cp, _, _ := newTestCheckpoint(t, DefaultNetworkConfig())
	_, err = store.Save(cp, TagLatest)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temp file %s left behind", e.Name())
	}
}

func TestCheckpointStore_LoadRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCheckpointStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "latest.json"), []byte("{truncated"), 0o644))

	_, err = store.Load(TagLatest)
	var corrupt *CheckpointCorruptionError
	require.ErrorAs(t, err, &corrupt)
}

func TestCheckpointStore_LoadRejectsWrongFormatVersion(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCheckpointStore(dir)
	require.NoError(t, err)

	cp, _, _ := newTestCheckpoint(t, DefaultNetworkConfig())
	_, err = store.Save(cp, TagLatest)
	require.NoError(t, err)

	// Rewrite with a future format version.
	data, err := os.ReadFile(filepath.Join(dir, "latest.json"))
	require.NoError(t, err)
	mangled := strings.Replace(string(data), `"format_version":1`, `"format_version":99`, 1)
	require.NotEqual(t, string(data), mangled)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "latest.json"), []byte(mangled), 0o644))

	_, err = store.Load(TagLatest)
	var corrupt *CheckpointCorruptionError
	require.ErrorAs(t, err, &corrupt)
	assert.Contains(t, corrupt.Reason, "format version")
}

func TestRestoreNetworks_ShapeMismatchIsCorruption(t *testing.T) {
	// A checkpoint trained with one architecture must not silently load
	// into another.
	cp, _, _ := newTestCheckpoint(t, NetworkConfig{HiddenSizes: []int{64, 64}, Dropout: 0})
	_, _, err := RestoreNetworks(cp, NetworkConfig{HiddenSizes: []int{32, 32}, Dropout: 0}, NewPartitionedRNG(1))

	var corrupt *CheckpointCorruptionError
	require.ErrorAs(t, err, &corrupt)
}

func TestCheckpointStore_MissingTagIsNotCorruption(t *testing.T) {
	store, err := NewCheckpointStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(TagBest)
	require.Error(t, err)
	var corrupt *CheckpointCorruptionError
	assert.False(t, errors.As(err, &corrupt), "absent checkpoint is not corruption")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
