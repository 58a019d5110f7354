package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/tilecache"
	"github.com/unkn0wn-root/tilecache/event"
	"github.com/unkn0wn-root/tilecache/layer"
	"github.com/unkn0wn-root/tilecache/tile"
)

const requestIDHeader = "X-Request-ID"

// TileErrorHeader carries the lookup error when a placeholder tile is served.
const TileErrorHeader = "X-Tile-Error"

// Defaults for Config.
const (
	DefaultMaxSeedTiles = tilecache.DefaultMaxSeedTiles
	DefaultKeepJobs     = 100
)

type Config struct {
	// MaxSeedTiles bounds POST /seed; larger requests are rejected with 400.
	// 0 => DefaultMaxSeedTiles; < 0 => no limit.
	MaxSeedTiles int
	// KeepJobs is how many finished seed jobs stay queryable; older ones are
	// forgotten. 0 => DefaultKeepJobs.
	KeepJobs int
}

type Server struct {
	layer  *layer.Layer
	logger *zap.Logger
	engine *gin.Engine

	maxSeedTiles int
	keepJobs     int

	jobs    *xsync.Map // id -> *seedJob
	seedMu  sync.Mutex // one seed at a time; progress events are not per-seed
	running *seedJob
	wg      sync.WaitGroup
}

func New(l *layer.Layer, logger *zap.Logger, cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		layer:        l,
		logger:       logger,
		jobs:         xsync.NewMap(),
		maxSeedTiles: cfg.MaxSeedTiles,
		keepJobs:     cfg.KeepJobs,
	}
	if s.maxSeedTiles == 0 {
		s.maxSeedTiles = DefaultMaxSeedTiles
	}
	if s.keepJobs <= 0 {
		s.keepJobs = DefaultKeepJobs
	}

	r := gin.New()
	r.Use(s.requestLogging(), gin.Recovery())
	r.GET("/healthz", s.handleHealthz)
	r.GET("/tiles/:z/:x/:y", s.handleTile)
	r.DELETE("/tiles", s.handlePurge)
	r.POST("/seed", s.handleSeedStart)
	r.GET("/seed/:id", s.handleSeedStatus)
	r.DELETE("/seed/:id", s.handleSeedCancel)
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Close cancels a running seed and waits for it to stop.
func (s *Server) Close() {
	s.seedMu.Lock()
	if s.running != nil {
		s.running.cancel()
	}
	s.seedMu.Unlock()
	s.wg.Wait()
}

func (s *Server) requestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		start := time.Now()
		c.Header(requestIDHeader, requestID)
		c.Set("request_id", requestID)

		c.Next()

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseCoord(c *gin.Context) (tile.Coord, error) {
	z, err := strconv.Atoi(c.Param("z"))
	if err != nil {
		return tile.Coord{}, errors.New("invalid zoom level")
	}
	x, err := strconv.Atoi(c.Param("x"))
	if err != nil {
		return tile.Coord{}, errors.New("invalid x coordinate")
	}
	yStr := c.Param("y")
	if i := strings.IndexByte(yStr, '.'); i >= 0 {
		yStr = yStr[:i]
	}
	y, err := strconv.Atoi(yStr)
	if err != nil {
		return tile.Coord{}, errors.New("invalid y coordinate")
	}
	if z < 0 || x < 0 || y < 0 || x >= 1<<z || y >= 1<<z {
		return tile.Coord{}, errors.New("tile out of range")
	}
	return tile.Coord{X: x, Y: y, Z: z}, nil
}

func (s *Server) handleTile(c *gin.Context) {
	coord, err := parseCoord(c)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	t := s.layer.Tile(c.Request.Context(), coord)
	if t.Err == nil {
		ct := t.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		c.Data(http.StatusOK, ct, t.Bytes)
		return
	}

	s.logger.Warn("tile unavailable", zap.String("tile", coord.String()), zap.Error(t.Err))
	if s.layer.HasErrorTile() {
		c.Header(TileErrorHeader, t.Err.Error())
		c.Data(http.StatusOK, t.ContentType, t.Bytes)
		return
	}
	var se *tilecache.StoreError
	if errors.As(t.Err, &se) {
		c.String(http.StatusInternalServerError, "tile store unavailable")
		return
	}
	c.String(http.StatusBadGateway, "tile unavailable")
}

func (s *Server) handlePurge(c *gin.Context) {
	ok, err := s.layer.ClearCache(c.Request.Context())
	if err != nil {
		s.logger.Error("purge failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": ok})
}

type seedRequest struct {
	BBox    tile.BBox `json:"bbox"`
	MinZoom int       `json:"minZoom"`
	MaxZoom int       `json:"maxZoom"`
}

func (r seedRequest) validate(maxTiles int) error {
	b := r.BBox
	switch {
	case b.MinLat > b.MaxLat || b.MinLng > b.MaxLng:
		return errors.New("bbox min must not exceed max")
	case b.MinLat < -90 || b.MaxLat > 90 || b.MinLng < -180 || b.MaxLng > 180:
		return errors.New("bbox out of range")
	case r.MinZoom < 0 || r.MaxZoom < r.MinZoom || r.MaxZoom > 22:
		return errors.New("invalid zoom range")
	}
	if maxTiles > 0 {
		if n := (tile.WebMercator{}).Count(b, r.MaxZoom, r.MinZoom); n > maxTiles {
			return fmt.Errorf("seed covers %d tiles, limit is %d", n, maxTiles)
		}
	}
	return nil
}

func (s *Server) handleSeedStart(c *gin.Context) {
	var req seedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.validate(s.maxSeedTiles); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	if s.running != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "a seed is already running", "id": s.running.ID})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := newSeedJob(uuid.NewString(), req, cancel)
	s.jobs.Store(job.ID, job)
	s.running = job
	s.wg.Add(1)
	go s.runSeed(ctx, job)

	c.JSON(http.StatusAccepted, gin.H{"id": job.ID})
}

func (s *Server) runSeed(ctx context.Context, job *seedJob) {
	defer s.wg.Done()
	defer job.cancel()

	s.logger.Info("seed started", zap.String("id", job.ID), zap.Int("min_zoom", job.req.MinZoom), zap.Int("max_zoom", job.req.MaxZoom))
	elapsed, err := s.layer.Seed(ctx, job.req.BBox, job.req.MaxZoom, job.req.MinZoom, job.progress)
	job.finish(elapsed, err)
	s.pruneJobs()
	if err != nil {
		s.logger.Warn("seed stopped", zap.String("id", job.ID), zap.Error(err))
	} else {
		s.logger.Info("seed finished", zap.String("id", job.ID), zap.Duration("elapsed", elapsed))
	}

	s.seedMu.Lock()
	if s.running == job {
		s.running = nil
	}
	s.seedMu.Unlock()
}

// pruneJobs forgets the oldest finished jobs beyond keepJobs.
func (s *Server) pruneJobs() {
	type finished struct {
		id string
		at time.Time
	}
	var done []finished
	s.jobs.Range(func(id string, v interface{}) bool {
		if at, ok := v.(*seedJob).finishedAt(); ok {
			done = append(done, finished{id: id, at: at})
		}
		return true
	})
	if len(done) <= s.keepJobs {
		return
	}
	sort.Slice(done, func(i, j int) bool { return done[i].at.Before(done[j].at) })
	for _, f := range done[:len(done)-s.keepJobs] {
		s.jobs.Delete(f.id)
	}
}

func (s *Server) lookupJob(c *gin.Context) (*seedJob, bool) {
	v, ok := s.jobs.Load(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown seed id"})
		return nil, false
	}
	return v.(*seedJob), true
}

func (s *Server) handleSeedStatus(c *gin.Context) {
	if job, ok := s.lookupJob(c); ok {
		c.JSON(http.StatusOK, job.snapshot())
	}
}

func (s *Server) handleSeedCancel(c *gin.Context) {
	if job, ok := s.lookupJob(c); ok {
		job.cancel()
		c.JSON(http.StatusAccepted, job.snapshot())
	}
}

// Seed states.
const (
	SeedRunning  = "running"
	SeedDone     = "done"
	SeedFailed   = "failed"
	SeedCanceled = "canceled"
)

type seedJob struct {
	ID     string
	req    seedRequest
	cancel context.CancelFunc

	mu       sync.Mutex
	status   SeedStatus
	finished time.Time
}

// SeedStatus is the JSON body of GET /seed/:id.
type SeedStatus struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Total     int       `json:"total"`
	Remaining int       `json:"remaining"`
	StartedAt time.Time `json:"startedAt"`
	ElapsedMs int64     `json:"elapsedMs,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func newSeedJob(id string, req seedRequest, cancel context.CancelFunc) *seedJob {
	return &seedJob{
		ID:     id,
		req:    req,
		cancel: cancel,
		status: SeedStatus{ID: id, State: SeedRunning, StartedAt: time.Now().UTC()},
	}
}

func (j *seedJob) progress(p event.Progress) {
	j.mu.Lock()
	j.status.Total = p.Total
	j.status.Remaining = p.Remaining
	j.mu.Unlock()
}

func (j *seedJob) finish(elapsed time.Duration, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = time.Now()
	j.status.ElapsedMs = elapsed.Milliseconds()
	switch {
	case err == nil:
		j.status.State = SeedDone
	case errors.Is(err, context.Canceled):
		j.status.State = SeedCanceled
		j.status.Error = err.Error()
	default:
		j.status.State = SeedFailed
		j.status.Error = err.Error()
	}
}

func (j *seedJob) finishedAt() (time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finished, !j.finished.IsZero()
}

func (j *seedJob) snapshot() SeedStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}
