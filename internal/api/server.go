// Package api provides the REST API for inspecting and rendering MIDI files.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	sfontplayer "github.com/sevonj/sfontplayer-sub000"
	"github.com/sevonj/sfontplayer-sub000/internal/logging"
	"github.com/sevonj/sfontplayer-sub000/internal/sequencer"
	"github.com/sevonj/sfontplayer-sub000/internal/synth"
	"github.com/sevonj/sfontplayer-sub000/internal/timeline"
)

// Defaults for the request limits in Options.
const (
	DefaultMaxUpload       = 16 << 20
	DefaultMaxRenderLength = 30 * time.Minute
)

type Options struct {
	Logger     *zap.Logger
	SampleRate int
	// SoundFont backs /render and /soundfont when NewEngine is nil.
	SoundFont *synth.SoundFont
	NewEngine func(sampleRate uint32) (sfontplayer.Engine, error)
	Presets   timeline.PresetMap
	// MaxUpload caps uploaded file size in bytes.
	MaxUpload int64
	// MaxRenderLength rejects songs that would render longer than this.
	MaxRenderLength time.Duration
}

type Server struct {
	opts   Options
	log    *zap.Logger
	router *gin.Engine
}

func New(opts Options) *Server {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = DefaultMaxUpload
	}
	if opts.MaxRenderLength <= 0 {
		opts.MaxRenderLength = DefaultMaxRenderLength
	}
	s := &Server{opts: opts, log: logging.OrNop(opts.Logger)}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests(), corsMiddleware())

	r.GET("/health", healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.POST("/inspect", s.handleInspect)
		v1.POST("/render", s.handleRender)
		v1.GET("/soundfont", s.handleSoundFont)
	}
	return r
}

// Handler exposes the router for embedding and tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens on addr until the server fails.
func (s *Server) Run(addr string) error {
	s.log.Info("api listening", zap.String("addr", addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "sfplayer",
	})
}

// InspectResponse is the body returned by /api/v1/inspect.
type InspectResponse struct {
	timeline.Summary
	LengthSeconds float64 `json:"lengthSeconds"`
}

func (s *Server) handleInspect(c *gin.Context) {
	tl, _, ok := s.readUpload(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, InspectResponse{
		Summary:       timeline.Inspect(tl),
		LengthSeconds: sequencer.Length(tl).Seconds(),
	})
}

func (s *Server) handleRender(c *gin.Context) {
	tl, name, ok := s.readUpload(c)
	if !ok {
		return
	}
	rate := s.opts.SampleRate
	if q := c.Query("sampleRate"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 8000 || v > 192000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sampleRate must be between 8000 and 192000"})
			return
		}
		rate = v
	}
	if length := sequencer.Length(tl); length > s.opts.MaxRenderLength {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": fmt.Sprintf("song length %s exceeds render limit %s",
				length.Round(time.Second), s.opts.MaxRenderLength),
		})
		return
	}
	engine, err := s.newEngine(uint32(rate))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, synth.ErrNoSoundFont) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if len(s.opts.Presets) > 0 {
		tl = s.opts.Presets.Remap(tl)
	}

	f, err := os.CreateTemp("", "sfplayer-*.wav")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()
	samples := sfontplayer.RenderSamples(tl, engine)
	if err := sfontplayer.WriteWAV(f, samples, rate); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.log.Debug("rendered upload",
		zap.String("file", name),
		zap.Int("samples", len(samples)),
		zap.Int("sampleRate", rate))

	outputName := strings.TrimSuffix(name, filepath.Ext(name)) + ".wav"
	c.FileAttachment(f.Name(), outputName)
}

func (s *Server) handleSoundFont(c *gin.Context) {
	sf := s.opts.SoundFont
	if sf == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": synth.ErrNoSoundFont.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":    sf.Name(),
		"path":    sf.Path(),
		"presets": sf.Presets(),
	})
}

func (s *Server) newEngine(rate uint32) (sfontplayer.Engine, error) {
	if s.opts.NewEngine != nil {
		return s.opts.NewEngine(rate)
	}
	return sfontplayer.NewEngine(int(rate), sfontplayer.WithSoundFont(s.opts.SoundFont))
}

// readUpload parses the multipart "file" field as a standard MIDI file. On
// failure the response has already been written.
func (s *Server) readUpload(c *gin.Context) (*timeline.Timeline, string, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, s.opts.MaxUpload+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return nil, "", false
	}
	if int64(len(data)) > s.opts.MaxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", s.opts.MaxUpload)})
		return nil, "", false
	}
	tl, err := timeline.Read(bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return nil, "", false
	}
	if err := tl.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return nil, "", false
	}
	return tl, header.Filename, true
}
