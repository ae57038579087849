// Package assetstore persists generated audio files into object-store
// volumes addressed by handle.
package assetstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nats-io/nats.go"

	"github.com/book-expert/narration-service/internal/core"
)

// ErrVolumeNotFound indicates that an asset named a volume handle with no
// configured bucket behind it. This is a configuration error, not a
// transient one.
var ErrVolumeNotFound = errors.New("volume not found with handle")

// Store implements core.AssetStore on NATS object-store buckets, one per
// configured volume handle.
type Store struct {
	volumes map[string]nats.ObjectStore
}

// New provisions one bucket per configured volume with a "create-first"
// approach, binding to buckets that already exist.
func New(jetstreamContext nats.JetStreamContext, bucketsByHandle map[string]string) (*Store, error) {
	volumes := make(map[string]nats.ObjectStore, len(bucketsByHandle))

	for handle, bucketName := range bucketsByHandle {
		store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
			Bucket:      bucketName,
			Description: fmt.Sprintf("Narrated audio for the %s volume.", handle),
			Storage:     nats.FileStorage,
			Replicas:    1,
		})
		if err != nil {
			// The legacy object-store API reports an existing bucket as
			// a stream name collision.
			if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
				return nil, fmt.Errorf("failed to create volume bucket '%s': %w", bucketName, err)
			}

			store, err = jetstreamContext.ObjectStore(bucketName)
			if err != nil {
				return nil, fmt.Errorf("failed to bind to existing volume bucket '%s': %w", bucketName, err)
			}
		}

		volumes[handle] = store
	}

	return &Store{volumes: volumes}, nil
}

// Save puts the asset's temp file into its volume and returns the stored
// object's id. The temp file itself stays owned by the caller. The file is
// read up front so no file handle outlives the put: once the put succeeds
// the asset exists, and nothing after it may fail the save.
func (s *Store) Save(_ context.Context, asset core.GeneratedAsset) (string, error) {
	volume, ok := s.volumes[asset.VolumeHandle]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrVolumeNotFound, asset.VolumeHandle)
	}

	data, err := os.ReadFile(asset.TempPath)
	if err != nil {
		return "", fmt.Errorf("failed to read temp file '%s': %w", asset.TempPath, err)
	}

	info, err := volume.Put(&nats.ObjectMeta{
		Name:        asset.Filename,
		Description: asset.Title,
		Metadata: map[string]string{
			"title": asset.Title,
		},
	}, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to save asset '%s' to volume '%s': %w",
			asset.Filename, asset.VolumeHandle, err)
	}

	return info.NUID, nil
}
