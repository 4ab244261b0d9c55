package app

import (
	"bitwise74/pulsestream/app/root"
	"bitwise74/pulsestream/app/video"
	"bitwise74/pulsestream/db"
	"bitwise74/pulsestream/internal"
	"bitwise74/pulsestream/internal/broadcast"
	"bitwise74/pulsestream/internal/media"
	"bitwise74/pulsestream/internal/model"
	"bitwise74/pulsestream/internal/pipeline"
	"bitwise74/pulsestream/internal/store"
	"bitwise74/pulsestream/internal/stream"
	"bitwise74/pulsestream/pkg/middleware"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Extra room for the multipart envelope around the video itself
const multipartOverhead = 1 << 20

type App struct {
	Router *gin.Engine
	Deps   *internal.Deps

	queue  *pipeline.Queue
	events io.Closer
	cancel context.CancelFunc
}

type RouterConfig struct {
	CORSOrigins []string
	JWTSecret   []byte
	RateLimit   int
}

// NewRouter wires the store, the processing pipeline and the broadcaster
// from the loaded config and starts the background workers
func NewRouter(ctx context.Context) (*App, error) {
	ctx, cancel := context.WithCancel(ctx)

	a, err := build(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	a.cancel = cancel

	return a, nil
}

func build(ctx context.Context) (*App, error) {
	gdb, err := db.New(viper.GetString("db.driver"), viper.GetString("db.dsn"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}

	uploadDir := viper.GetString("upload.dir")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory, %w", err)
	}

	events, err := newBroadcaster()
	if err != nil {
		return nil, err
	}

	ff := media.NewFFmpeg(
		viper.GetString("ffmpeg.path"),
		viper.GetString("ffprobe.path"),
		viper.GetDuration("ffmpeg.timeout"),
	)
	if err := ff.Check(); err != nil {
		zap.L().Warn("FFmpeg tools not found, every video will fail processing", zap.Error(err))
	}

	videos := store.NewVideos(gdb)
	queue := pipeline.NewQueue(
		pipeline.New(videos, ff, events),
		viper.GetInt("pipeline.workers"),
		viper.GetInt("pipeline.queue_size"),
	)

	d := &internal.Deps{
		Videos:    videos,
		Queue:     queue,
		Events:    events,
		Responder: stream.NewResponder(),
		Upload: internal.UploadConfig{
			Dir:          uploadDir,
			MaxSize:      viper.GetInt64("upload.max_size"),
			AllowedTypes: viper.GetStringSlice("upload.allowed_types"),
		},
	}

	router := NewEngine(ctx, d, RouterConfig{
		CORSOrigins: viper.GetStringSlice("host.cors"),
		JWTSecret:   []byte(viper.GetString("jwt.secret")),
		RateLimit:   viper.GetInt("security.rate_limit"),
	})

	// Start the processing workers
	queue.Start()
	pipeline.Resume(ctx, videos, queue)

	// Fail records whose pipeline died with the previous process
	pipeline.
		NewReaper(videos, events, queue, viper.GetDuration("pipeline.stale_after")).
		Start(ctx, viper.GetDuration("pipeline.reap_interval"))

	return &App{
		Router: router,
		Deps:   d,
		queue:  queue,
		events: events,
	}, nil
}

type closingBroadcaster interface {
	broadcast.Broadcaster
	io.Closer
}

func newBroadcaster() (closingBroadcaster, error) {
	switch t := viper.GetString("broadcast.type"); t {
	case "redis":
		b, err := broadcast.NewRedisBroadcaster(broadcast.RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis, %w", err)
		}

		return b, nil
	case "memory", "":
		return broadcast.NewHub(0), nil
	default:
		return nil, fmt.Errorf("unsupported broadcast type %q", t)
	}
}

// Close stops accepting jobs, waits for running pipelines and closes the
// broadcaster
func (a *App) Close() {
	a.cancel()
	a.queue.Stop()

	if err := a.events.Close(); err != nil {
		zap.L().Warn("Failed to close broadcaster", zap.Error(err))
	}
}

// NewEngine registers every route on a new gin engine
func NewEngine(ctx context.Context, d *internal.Deps, cfg RouterConfig) *gin.Engine {
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:5173"}
	}

	router := gin.New()

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "HEAD", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Range"},
			ExposeHeaders:    []string{"Content-Length", "Content-Range", "Accept-Ranges"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true
	router.MaxMultipartMemory = 5 << 20

	jwt := middleware.NewJWTMiddleware(cfg.JWTSecret)
	anyRole := middleware.RequireRole(model.RoleViewer, model.RoleEditor, model.RoleAdmin)
	editors := middleware.RequireRole(model.RoleEditor, model.RoleAdmin)
	rateLimiter := middleware.RateLimiterMiddleware(ctx, middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.RateLimit * 2,
	})

	// GET /metrics			-> Prometheus scrape endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	m := router.Group("/api", rateLimiter)
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		m.HEAD("/heartbeat", root.Heartbeat)

		// GET /api/events		-> Server-Sent Events stream of the caller's progress events
		m.GET("/events", jwt, anyRole, func(c *gin.Context) { video.Events(c, d) })
	}

	v := m.Group("/videos", jwt)
	{
		// POST /api/videos/upload	-> Stores a new video and queues it for processing
		v.POST("/upload", editors, middleware.BodySizeLimiter(d.Upload.MaxSize+multipartOverhead), func(c *gin.Context) { video.Upload(c, d) })

		// GET /api/videos		-> Lists the videos visible to the caller
		v.GET("", anyRole, func(c *gin.Context) { video.List(c, d) })

		// GET /api/videos/:id		-> Returns a single video
		v.GET("/:id", anyRole, func(c *gin.Context) { video.Fetch(c, d) })

		// GET /api/videos/:id/stream	-> Streams a processed video, honoring Range
		v.GET("/:id/stream", anyRole, func(c *gin.Context) { video.Stream(c, d) })
		v.HEAD("/:id/stream", anyRole, func(c *gin.Context) { video.Stream(c, d) })

		// PATCH /api/videos/:id	-> Edits a video's title
		v.PATCH("/:id", editors, func(c *gin.Context) { video.Edit(c, d) })

		// DELETE /api/videos/:id	-> Deletes a video and its file
		v.DELETE("/:id", editors, func(c *gin.Context) { video.Delete(c, d) })
	}

	return router
}
