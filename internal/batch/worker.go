package batch

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sptp/internal/classifier"
	"github.com/sells-group/sptp/internal/factors"
	"github.com/sells-group/sptp/internal/generated"
	"github.com/sells-group/sptp/internal/imaging"
	"github.com/sells-group/sptp/internal/logging"
	"github.com/sells-group/sptp/internal/model"
	"github.com/sells-group/sptp/internal/osm"
	"github.com/sells-group/sptp/internal/processor"
)

// ErrCorruptCache is returned after a malformed cache file was removed. The
// next run downloads it again.
var ErrCorruptCache = eris.New("batch: corrupt cache file removed, please restart")

// MapFetcher downloads the map data around a point into a file.
type MapFetcher interface {
	FetchToFile(ctx context.Context, lat, lon float64, path string) (int64, error)
}

// Winner is the computed polygon of one location.
type Winner struct {
	LocationID string     `json:"location_id"`
	Way        *model.Way `json:"way"`
	Score      int        `json:"score"`
}

// progress writes single characters to the operator stream. Workers share it.
type progress struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *progress) tick(s string) {
	if p == nil || p.w == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.w, s)
}

type worker struct {
	id       int
	settings Settings
	locs     []*model.Location
	maps     MapFetcher
	factors  *factors.Factors
	rules    []classifier.Rule
	progress *progress
	log      *zap.Logger
	now      func() time.Time
}

// run processes the shard in order. Any error fails the shard.
func (w *worker) run(ctx context.Context) ([]Winner, error) {
	start := w.now()
	log := w.log.With(zap.Int("worker", w.id))
	log.Info("worker: started", zap.Int("locations", len(w.locs)))

	failed := w.importImages(log)
	log.Info("worker: images imported", zap.Int("failed", failed))
	w.progress.tick(".")

	if err := w.updateCache(ctx, log); err != nil {
		return nil, err
	}
	w.progress.tick(".")

	if err := w.parseCache(log); err != nil {
		return nil, err
	}
	w.progress.tick(".")

	ensemble := classifier.Default(w.settings.ExcludeSlow)
	if w.rules != nil {
		ensemble = ensemble.WithMapping(w.rules)
	}
	proc := processor.New(ensemble, w.factors, w.settings.OutputDir)
	proc.WriteCSV = w.settings.DebugCSV
	proc.Logger = log

	winners := make([]Winner, 0, len(w.locs))
	for _, loc := range w.locs {
		n := generated.AddTo(loc)
		log.Debug("worker: generated polygons", zap.String("location", loc.ID), zap.Int("count", n))

		res, err := proc.Run(ctx, loc)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: worker %d: process %s", w.id, loc.ID)
		}
		top, _ := res.Winner()
		way := loc.Ways[top.WayID].Clone()
		way.Name = loc.ID
		winners = append(winners, Winner{LocationID: loc.ID, Way: way, Score: top.Score})

		if loc.Image != nil {
			path := filepath.Join(w.settings.OutputDir, loc.ID+".jpg")
			if err := imaging.Save(path, loc.Image); err != nil {
				logging.Failure(log, "worker: could not save image", err)
			}
		}
	}
	w.progress.tick(".")

	log.Info("worker: completed", zap.Duration("elapsed", w.now().Sub(start)))
	return winners, nil
}

// importImages attaches <id>.jpg from the input folder. Missing photos are
// fine; photos that fail to decode are logged and skipped.
func (w *worker) importImages(log *zap.Logger) int {
	failed := 0
	for _, loc := range w.locs {
		path := filepath.Join(w.settings.InputDir, loc.ID+".jpg")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		photo, err := imaging.Load(path)
		if err != nil {
			failed++
			log.Warn("worker: failed to add image", zap.String("path", path), zap.Error(err))
			continue
		}
		loc.Image = photo.Image
		loc.Heading = photo.Direction
	}
	return failed
}

func (w *worker) cachePath(loc *model.Location) string {
	return filepath.Join(w.settings.CacheDir, loc.ID+".osm")
}

// stale reports whether the cache file at path must be downloaded.
func (w *worker) stale(path string) (bool, error) {
	if w.settings.ForceCacheUpdate {
		return true, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "batch: stat %s", path)
	}
	return w.now().Sub(info.ModTime()) > w.settings.MaxCacheAge, nil
}

func (w *worker) updateCache(ctx context.Context, log *zap.Logger) error {
	if w.settings.SkipCacheUpdate {
		log.Info("worker: cache update skipped")
		return nil
	}
	for _, loc := range w.locs {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "batch: worker %d", w.id)
		}
		path := w.cachePath(loc)
		stale, err := w.stale(path)
		if err != nil {
			return err
		}
		if !stale {
			log.Debug("worker: cache fresh", zap.String("path", path))
			continue
		}
		if w.maps == nil {
			return eris.Errorf("batch: worker %d: no map fetcher for %s", w.id, path)
		}
		n, err := w.maps.FetchToFile(ctx, loc.Lat(), loc.Lon(), path)
		if err != nil {
			return eris.Wrapf(err, "batch: worker %d: could not get %s", w.id, path)
		}
		log.Info("worker: cache updated", zap.String("path", path), zap.Int64("bytes", n))
	}
	return nil
}

// parseCache merges the cached map data into every location. A malformed
// file is removed and the shard fails with ErrCorruptCache.
func (w *worker) parseCache(log *zap.Logger) error {
	for _, loc := range w.locs {
		path := w.cachePath(loc)
		data, err := osm.ParseFile(path)
		if errors.Is(err, osm.ErrMalformed) {
			log.Error("worker: removing bad file", zap.String("path", path), zap.Error(err))
			if rmErr := os.Remove(path); rmErr != nil {
				return eris.Wrapf(rmErr, "batch: remove %s", path)
			}
			return eris.Wrapf(ErrCorruptCache, "batch: worker %d: removed %s", w.id, path)
		}
		if err != nil {
			return eris.Wrapf(err, "batch: worker %d: parse cache", w.id)
		}
		loc.AddNodes(model.PrefixOSM, data.Nodes)
		loc.AddWays(model.PrefixOSM, data.Ways)
		log.Debug("worker: cache parsed",
			zap.String("location", loc.ID),
			zap.Int("nodes", len(data.Nodes)),
			zap.Int("ways", len(data.Ways)),
		)
	}
	return nil
}

func workerLogPath(s Settings, id int) string {
	return filepath.Join(s.LogDir, s.LogPrefix+"process_"+strconv.Itoa(id)+".log")
}
