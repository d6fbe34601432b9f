package cache

import (
	"context"
	"fmt"

	"kageforge-hq/forge/pkg/config"
)

// Open builds an engine with the layers enabled in cfg. The memory layer is
// always present.
func Open(ctx context.Context, cfg config.CacheConfig, opts ...Option) (*Engine, error) {
	var layers []Layer

	mem, err := NewMemoryLayer(cfg.Memory.MaxEntries, cfg.Memory.TTL)
	if err != nil {
		return nil, err
	}
	layers = append(layers, mem)

	closeAll := func() {
		for _, l := range layers {
			l.Close()
		}
	}

	if cfg.Persistent.Enabled {
		p, err := NewPersistentLayer(PersistentConfig{
			Path:        cfg.Persistent.Path,
			MaxEntries:  cfg.Persistent.MaxEntries,
			TTL:         cfg.Persistent.TTL,
			BusyTimeout: cfg.Persistent.BusyTimeout,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("persistent cache layer: %w", err)
		}
		layers = append(layers, p)
	}

	if cfg.Remote.Enabled {
		r, err := OpenRemoteLayer(ctx, RemoteConfig{
			DSN:        cfg.Remote.DSN,
			Table:      cfg.Remote.Table,
			MaxEntries: cfg.Remote.MaxEntries,
			TTL:        cfg.Remote.TTL,
			Timeout:    cfg.Remote.Timeout,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("remote cache layer: %w", err)
		}
		layers = append(layers, r)
	}

	var sim *SimilarityIndex
	if cfg.Similarity.Enabled {
		sim, err = NewSimilarityIndex(SimilarityConfig{
			Metric:     Metric(cfg.Similarity.Metric),
			Threshold:  cfg.Similarity.Threshold,
			MaxEntries: cfg.Similarity.MaxEntries,
			Dimensions: cfg.Similarity.Dimensions,
			TTL:        cfg.Similarity.TTL,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("similarity index: %w", err)
		}
	}

	return New(layers, sim, opts...), nil
}
