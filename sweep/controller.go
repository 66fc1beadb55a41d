package sweep

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/time/rate"

	"github.com/hupe1980/knnlm/blobstore"
	"github.com/hupe1980/knnlm/codec"
	"github.com/hupe1980/knnlm/datastore"
	"github.com/hupe1980/knnlm/internal/conv"
	"github.com/hupe1980/knnlm/internal/f16"
	"github.com/hupe1980/knnlm/internal/hash"
	"github.com/hupe1980/knnlm/internal/math32"
	"github.com/hupe1980/knnlm/internal/npy"
	"github.com/hupe1980/knnlm/knn"
	"github.com/hupe1980/knnlm/resource"
	"github.com/hupe1980/knnlm/tensor"
)

// progressInterval throttles per-batch progress logs.
const progressInterval = 10 * time.Second

// neighborBytes is the in-memory size of one cached neighbor.
const neighborBytes = 4 + 8 + 8

// Point summarizes one persisted temperature.
type Point struct {
	Temperature float64       `json:"temperature"`
	Key         string        `json:"key"`
	Queries     int           `json:"queries"`
	MeanLogProb float64       `json:"mean_log_prob"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Outputs     Outputs       `json:"-"`
	// Checksums are CRC32C sums of the stored (possibly compressed) bytes.
	Checksums Checksums `json:"checksums"`
}

// Checksums holds one CRC32C per output blob.
type Checksums struct {
	Probs uint32 `json:"probs"`
	KNNs  uint32 `json:"knns"`
	Dists uint32 `json:"dists"`
}

// Report is the result of Run.
type Report struct {
	Points  []Point
	Skipped []float64
	// Hits holds the query indices whose target was among the neighbors.
	// It is nil when every temperature was skipped.
	Hits   *roaring.Bitmap
	Recall float64
}

// Controller runs temperature sweeps against one datastore.
type Controller struct {
	store    datastore.Searcher
	out      blobstore.BlobStore
	cfg      Config
	commits  blobstore.CommitLog
	logger   *slog.Logger
	rc       *resource.Controller
	observer func(Point)
}

// NewController validates cfg and returns a Controller writing to out.
func NewController(store datastore.Searcher, out blobstore.BlobStore, cfg Config, optFns ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Compression, _ = ParseCompression(string(cfg.Compression))
	if cfg.K > store.Size() {
		return nil, &datastore.ErrCapacityExceeded{K: cfg.K, Size: store.Size()}
	}

	o := applyOptions(optFns)
	commits := o.commits
	if commits == nil {
		commits = blobstore.NewBlobCommitLog(out, CommitPrefix(cfg.Name))
	}
	return &Controller{
		store:    store,
		out:      out,
		cfg:      cfg,
		commits:  commits,
		logger:   o.logger.With("sweep", cfg.Name, "k", cfg.K),
		rc:       o.resource,
		observer: o.observer,
	}, nil
}

// Config returns the normalized configuration.
func (c *Controller) Config() Config { return c.cfg }

// Run scores queries[i] against target tokens[i] at every configured
// temperature and persists the outputs of each temperature before moving on.
func (c *Controller) Run(ctx context.Context, queries *tensor.Matrix, tokens []int64) (*Report, error) {
	if queries.Rows != len(tokens) {
		return nil, fmt.Errorf("%w: %d queries, %d tokens", ErrLengthMismatch, queries.Rows, len(tokens))
	}
	if queries.Cols != c.store.Dimension() {
		return nil, &datastore.ErrDimensionMismatch{Expected: c.store.Dimension(), Actual: queries.Cols}
	}
	if _, err := conv.IntToUint32(queries.Rows); err != nil {
		return nil, fmt.Errorf("sweep: too many queries: %w", err)
	}
	if c.cfg.HalfPrecisionQueries {
		queries = roundHalf(queries)
	}

	r := &run{Controller: c, queries: queries, tokens: tokens}
	defer r.release()
	r.reserveCache()

	report := &Report{}
	for _, t := range c.cfg.Temperatures {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := FormatTemperature(t)
		if c.cfg.Resume {
			done, err := c.commits.Committed(ctx, key)
			if err != nil {
				return nil, err
			}
			if done {
				c.logger.Info("temperature already committed, skipping", "temperature", key)
				report.Skipped = append(report.Skipped, t)
				continue
			}
		}

		p, err := r.point(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("sweep: temperature %s: %w", key, err)
		}
		if err := c.commits.Commit(ctx, key); err != nil && !errors.Is(err, blobstore.ErrAlreadyCommitted) {
			return nil, err
		}
		report.Points = append(report.Points, p)
		if c.observer != nil {
			c.observer(p)
		}
	}

	if r.hits != nil {
		report.Hits = r.hits
		if queries.Rows > 0 {
			report.Recall = float64(r.hits.GetCardinality()) / float64(queries.Rows)
		}
	}
	if err := c.writeManifest(ctx, queries.Rows, report); err != nil {
		return nil, err
	}
	return report, nil
}

// run holds the state shared by the temperatures of one Run.
type run struct {
	*Controller
	queries *tensor.Matrix
	tokens  []int64

	cache         []*datastore.Neighbors
	cacheReserved int64
	hits          *roaring.Bitmap
}

func (r *run) batches() int {
	return (r.queries.Rows + r.cfg.BatchSize - 1) / r.cfg.BatchSize
}

func (r *run) reserveCache() {
	if !r.cfg.ReuseNeighbors || len(r.cfg.Temperatures) < 2 {
		return
	}
	need := int64(r.queries.Rows) * int64(r.cfg.K) * neighborBytes
	if err := r.rc.ReserveMemory(need); err != nil {
		r.logger.Warn("neighbor cache does not fit the memory budget, searching per temperature", "bytes", need, "error", err)
		return
	}
	r.cacheReserved = need
	r.cache = make([]*datastore.Neighbors, r.batches())
}

func (r *run) release() {
	r.cache = nil
	r.rc.ReleaseMemory(r.cacheReserved)
	r.cacheReserved = 0
}

func (r *run) neighbors(ctx context.Context, b, lo, hi int) (*datastore.Neighbors, error) {
	if r.cache != nil && r.cache[b] != nil {
		return r.cache[b], nil
	}
	n, err := r.store.Search(ctx, r.queries.Slice(lo, hi), r.cfg.K)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache[b] = n
	}
	return n, nil
}

func (r *run) point(ctx context.Context, t float64) (Point, error) {
	begin := time.Now()
	key := FormatTemperature(t)
	temp := float32(t)
	q, k := r.queries.Rows, r.cfg.K
	outs := OutputNames(r.cfg.Name, t, r.cfg.Compression)

	s, err := r.openSink(ctx, outs, q, k)
	if err != nil {
		return Point{}, err
	}

	recordHits := r.hits == nil
	var hits *roaring.Bitmap
	if recordHits {
		hits = roaring.New()
	}

	bs := r.cfg.BatchSize
	logp := make([]float32, bs*k)
	bias := make([]float32, bs*k)
	probs := make([]float32, bs)
	sums := make([]float32, bs)
	var total float64

	progress := rate.Sometimes{First: 1, Interval: progressInterval}
	nb := r.batches()
	for b := range nb {
		if err := ctx.Err(); err != nil {
			s.abort()
			return Point{}, err
		}
		lo, hi := b*bs, min((b+1)*bs, q)
		rows := hi - lo

		n, err := r.neighbors(ctx, b, lo, hi)
		if err != nil {
			s.abort()
			return Point{}, err
		}
		tgt := r.tokens[lo:hi]
		if err := knn.LogProbs(logp, n.Distances, k, temp); err != nil {
			s.abort()
			return Point{}, err
		}
		if err := knn.TargetMask(bias, n.Values, k, tgt); err != nil {
			s.abort()
			return Point{}, err
		}
		if err := knn.Aggregate(probs, logp[:rows*k], bias[:rows*k], k); err != nil {
			s.abort()
			return Point{}, err
		}

		for i := range rows {
			dists, _, values := n.Row(i)
			sums[i] = -float32(math32.Sum(dists))
			total += float64(probs[i])
			if recordHits && containsValue(values, tgt[i]) {
				hits.Add(uint32(lo + i)) //nolint:gosec // bounded by the IntToUint32 check in Run
			}
		}

		if err := s.write(probs[:rows], n.IDs, sums[:rows]); err != nil {
			s.abort()
			return Point{}, err
		}
		progress.Do(func() {
			r.logger.Info("sweep progress", "temperature", key, "batch", b+1, "batches", nb)
		})
	}

	crcs, err := s.finish()
	if err != nil {
		return Point{}, err
	}

	if recordHits {
		if err := r.writeHits(ctx, hits); err != nil {
			return Point{}, err
		}
		r.hits = hits
	}

	p := Point{
		Temperature: t,
		Key:         key,
		Queries:     q,
		Elapsed:     time.Since(begin),
		Outputs:     outs,
		Checksums:   Checksums{Probs: crcs[0], KNNs: crcs[1], Dists: crcs[2]},
	}
	if q > 0 {
		p.MeanLogProb = total / float64(q)
	}
	r.logger.Info("temperature persisted", "temperature", key, "queries", q, "mean_log_prob", p.MeanLogProb, "elapsed", p.Elapsed)
	return p, nil
}

func containsValue(values []int64, y int64) bool {
	for _, v := range values {
		if v == y {
			return true
		}
	}
	return false
}

func (r *run) writeHits(ctx context.Context, hits *roaring.Bitmap) error {
	hits.RunOptimize()
	data, err := hits.ToBytes()
	if err != nil {
		return err
	}
	return r.out.Put(ctx, HitsName(r.cfg.Name), data)
}

// manifest is the JSON summary written at the end of every run.
type manifest struct {
	Name        string      `json:"name"`
	Codec       string      `json:"codec"`
	K           int         `json:"k"`
	BatchSize   int         `json:"batch_size"`
	Compression Compression `json:"compression"`
	Queries     int         `json:"queries"`
	Points      []Point     `json:"points"`
	Skipped     []string    `json:"skipped,omitempty"`
	Recall      *float64    `json:"recall,omitempty"`
	WrittenAt   time.Time   `json:"written_at"`
}

func (c *Controller) writeManifest(ctx context.Context, queries int, report *Report) error {
	m := manifest{
		Name:        c.cfg.Name,
		Codec:       codec.Default.Name(),
		K:           c.cfg.K,
		BatchSize:   c.cfg.BatchSize,
		Compression: c.cfg.Compression,
		Queries:     queries,
		Points:      report.Points,
		WrittenAt:   time.Now().UTC(),
	}
	for _, t := range report.Skipped {
		m.Skipped = append(m.Skipped, FormatTemperature(t))
	}
	if report.Hits != nil {
		m.Recall = &report.Recall
	}
	if c.cfg.Resume {
		prev, err := c.readManifest(ctx)
		if err != nil {
			return err
		}
		if prev != nil {
			m.Points = mergePoints(prev.Points, m.Points)
			if m.Recall == nil {
				m.Recall = prev.Recall
			}
		}
	}
	data, err := codec.Default.Marshal(m)
	if err != nil {
		return err
	}
	return c.out.Put(ctx, ManifestName(c.cfg.Name), data)
}

// readManifest returns the manifest of an earlier run, or nil when there is
// none or it cannot be decoded.
func (c *Controller) readManifest(ctx context.Context) (*manifest, error) {
	raw, err := blobstore.ReadAll(ctx, c.out, ManifestName(c.cfg.Name))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := codec.Default.Unmarshal(raw, &m); err != nil {
		c.logger.Warn("ignoring unreadable manifest", "name", ManifestName(c.cfg.Name), "error", err)
		return nil, nil
	}
	return &m, nil
}

// mergePoints keeps the earlier points whose temperature was not computed
// again and orders the result by temperature.
func mergePoints(prev, cur []Point) []Point {
	seen := make(map[string]struct{}, len(cur))
	for _, p := range cur {
		seen[p.Key] = struct{}{}
	}
	out := slices.Clone(cur)
	for _, p := range prev {
		if _, ok := seen[p.Key]; !ok {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Point) int { return cmp.Compare(a.Temperature, b.Temperature) })
	return out
}

// roundHalf returns a copy of m with every value rounded to float16.
func roundHalf(m *tensor.Matrix) *tensor.Matrix {
	out := m.Clone()
	for i, v := range out.Data {
		out.Data[i] = f16.ToFloat32(f16.FromFloat32(v))
	}
	return out
}

// sink streams the three arrays of one temperature.
type sink struct {
	blobs  []blobstore.WritableBlob
	hashes []*hash.Writer
	codecs []io.WriteCloser
	arrays []*npy.Writer
}

func (c *Controller) openSink(ctx context.Context, outs Outputs, q, k int) (*sink, error) {
	s := &sink{}
	specs := []struct {
		name string
		h    npy.Header
	}{
		{outs.Probs, npy.Header{DType: npy.Float32, Shape: []int{q}}},
		{outs.KNNs, npy.Header{DType: npy.Int64, Shape: []int{q, k}}},
		{outs.Dists, npy.Header{DType: npy.Float32, Shape: []int{q}}},
	}
	for _, sp := range specs {
		blob, err := c.out.Create(ctx, sp.name)
		if err != nil {
			s.abort()
			return nil, err
		}
		s.blobs = append(s.blobs, blob)
		hw := hash.NewWriter(resource.NewRateLimitedWriter(ctx, blob, c.rc))
		s.hashes = append(s.hashes, hw)

		cw, err := c.cfg.Compression.NewWriter(hw, c.cfg.CompressionLevel)
		if err != nil {
			s.abort()
			return nil, err
		}
		s.codecs = append(s.codecs, cw)

		aw, err := npy.NewWriter(cw, sp.h)
		if err != nil {
			s.abort()
			return nil, err
		}
		s.arrays = append(s.arrays, aw)
	}
	return s, nil
}

func (s *sink) write(probs []float32, ids []int64, sums []float32) error {
	if err := s.arrays[0].WriteFloat32(probs); err != nil {
		return err
	}
	if err := s.arrays[1].WriteInt64(ids); err != nil {
		return err
	}
	return s.arrays[2].WriteFloat32(sums)
}

// finish closes every blob and returns the checksums in output order.
func (s *sink) finish() ([3]uint32, error) {
	var sums [3]uint32
	for i := range s.arrays {
		if err := s.arrays[i].Flush(); err != nil {
			s.abort()
			return sums, err
		}
		if err := s.codecs[i].Close(); err != nil {
			s.abort()
			return sums, err
		}
		sums[i] = s.hashes[i].Sum32()
	}
	for i, b := range s.blobs {
		if err := b.Close(); err != nil {
			for _, rest := range s.blobs[i+1:] {
				_ = blobstore.Abort(rest)
			}
			return sums, err
		}
	}
	return sums, nil
}

func (s *sink) abort() {
	for _, b := range s.blobs {
		_ = blobstore.Abort(b)
	}
}
