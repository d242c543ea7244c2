// Package ingest streams a completed upload's features into the
// SpatialStore inside a single transaction, rolling the whole layer back
// on any failure.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/gridwalk-io/gridwalk/internal/chunkstore"
	"github.com/gridwalk-io/gridwalk/internal/feature"
	"github.com/gridwalk-io/gridwalk/internal/layer"
	"github.com/gridwalk-io/gridwalk/internal/metrics"
	"github.com/gridwalk-io/gridwalk/internal/spatial"
)

// channelBacklog is the producer/consumer channel's buffer size: once
// this many decoded features are waiting for the database consumer, the
// blocking format-parsing worker is throttled instead of racing ahead.
const channelBacklog = 100

// Pipeline implements upload.Ingestor: it opens the completed chunk file
// with the Registry-selected FeatureReader, drains its features through a
// bounded channel into a SpatialStore transaction, and updates the
// Layer's terminal status.
type Pipeline struct {
	Readers *feature.Registry
	Spatial spatial.Store
	Chunks  *chunkstore.Store
	Layers  layer.Store
	Metrics *metrics.Metrics
}

type featureMsg struct {
	feature *feature.Feature
	err     error
}

// Ingest runs the full ingestion for l, which must already be in
// StatusProcessing. It always leaves l in either StatusReady or
// StatusFailed before returning, and returns the error (if any) purely
// for logging — callers must not retry based on it.
func (p *Pipeline) Ingest(ctx context.Context, l *layer.Layer) error {
	start := time.Now()
	err := p.ingest(ctx, l)
	if p.Metrics != nil {
		p.Metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		l.Status = layer.StatusFailed
		if p.Metrics != nil {
			p.Metrics.UploadsFailed.Inc()
		}
	} else {
		l.Status = layer.StatusReady
		if p.Metrics != nil {
			p.Metrics.UploadsCompleted.Inc()
		}
	}
	if saveErr := p.Layers.Save(ctx, l); saveErr != nil {
		return fmt.Errorf("ingest: save final status: %w (ingest error: %v)", saveErr, err)
	}
	return err
}

func (p *Pipeline) ingest(ctx context.Context, l *layer.Layer) error {
	uploadType := ""
	if l.UploadType != nil {
		uploadType = *l.UploadType
	}

	path := p.Chunks.PathFor(l.ID)
	dataset, err := p.Readers.Open(ctx, uploadType, path)
	if err != nil {
		return fmt.Errorf("ingest: open dataset: %w", err)
	}
	defer dataset.Close()

	layers, err := dataset.Layers(ctx)
	if err != nil {
		return fmt.Errorf("ingest: read layers: %w", err)
	}
	if len(layers) == 0 {
		return fmt.Errorf("ingest: dataset has no feature layers")
	}
	// Only the first layer is ingested: a Layer entity is 1:1 with one
	// feature table, and multi-layer source files (e.g. a GeoPackage with
	// several tables) are out of scope per spec.md's single-table model.
	src := layers[0]

	if err := p.Spatial.CreateLayer(ctx, l.ID, src.Fields()); err != nil {
		return fmt.Errorf("ingest: create spatial table: %w", err)
	}

	if err := p.stream(ctx, l, src); err != nil {
		_ = p.Spatial.DropLayer(ctx, l.ID)
		return err
	}
	return nil
}

// stream runs the producer (feature decoding, confined to this blocking
// call since cgo-backed readers are not safe to hop across goroutines
// scheduled by arbitrary callers) concurrently with the consumer
// (transactional inserts), connected by a bounded channel exactly as
// patch_tus.rs's mpsc::channel(100) connects its GDAL task to its insert
// loop.
func (p *Pipeline) stream(ctx context.Context, l *layer.Layer, src feature.Layer) error {
	ch := make(chan featureMsg, channelBacklog)
	producerDone := make(chan struct{})

	go func() {
		defer close(ch)
		defer close(producerDone)
		for {
			f, err := src.Next(ctx)
			if err != nil {
				ch <- featureMsg{err: err}
				return
			}
			if f == nil {
				return
			}
			select {
			case ch <- featureMsg{feature: f}:
			case <-ctx.Done():
				return
			}
		}
	}()

	tx, err := p.Spatial.BeginTx(ctx, l.ID)
	if err != nil {
		return fmt.Errorf("ingest: begin tx: %w", err)
	}

	var count int64
	for msg := range ch {
		if msg.err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("ingest: read feature: %w", msg.err)
		}
		if err := tx.InsertFeature(ctx, msg.feature.WKB, msg.feature.Attrs); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("ingest: insert feature %d: %w", count+1, err)
		}
		count++
		if p.Metrics != nil {
			p.Metrics.FeaturesIngested.Inc()
		}
	}

	if count == 0 {
		_ = tx.Rollback(ctx)
		return spatial.ErrEmptyDataset
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ingest: commit: %w", err)
	}

	// Scratch cleanup runs only after a successful commit, so a crash
	// between append and ingest always leaves recoverable chunk bytes on
	// disk.
	_ = p.Chunks.Remove(ctx, l.ID)
	return nil
}
