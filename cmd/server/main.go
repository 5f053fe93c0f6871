package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/southernadd-cmyk/kanbanpizza2/internal/config"
	"github.com/southernadd-cmyk/kanbanpizza2/internal/game"
	"github.com/southernadd-cmyk/kanbanpizza2/internal/store"
	"github.com/southernadd-cmyk/kanbanpizza2/internal/ws"
	staticserver "github.com/southernadd-cmyk/kanbanpizza2/static"
)

const releaseVersion = "1.0.0"

func main() {
	cfg := config.Default()
	cobra.CheckErr(newCmd(&cfg).Execute())
}

func newCmd(cfg *config.Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("KANBANPIZZA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "kanbanpizza",
		Short:         "A real-time kanban pizza workshop game server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", cfg.Bind, "address to bind to (env: KANBANPIZZA_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on (env: KANBANPIZZA_PORT)")
	fs.StringVar(&cfg.RedisURL, "redis-url", "", "redis URL for room persistence, in-memory when empty (env: KANBANPIZZA_REDIS_URL)")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", "", "postgres DSN for high scores, in-memory when empty (env: KANBANPIZZA_POSTGRES_DSN)")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "external base URL used in QR join links (env: KANBANPIZZA_PUBLIC_URL)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "display debug output (env: KANBANPIZZA_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("kanbanpizza v{{.Version}}\n")

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zerologlog.Logger = zerologlog.Output(cw)
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		zerologlog.Info().Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	})

	// Room store: redis when configured, otherwise process-local.
	memory := store.NewMemory()
	var roomStore game.RoomStore = memory
	var redisStore *store.Redis
	if cfg.RedisURL != "" {
		rs, err := store.NewRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rs.Close()
		roomStore = rs
		redisStore = rs
		zerologlog.Info().Msg("using redis room store")
	}

	// Score store: postgres when configured, otherwise process-local.
	var scoreStore game.ScoreStore = memory
	var scoresDB *store.Scores
	if cfg.PostgresDSN != "" {
		sc, err := store.NewScores(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		scoreStore = sc
		scoresDB = sc
		zerologlog.Info().Msg("using postgres high score store")
	}

	mgr := game.NewManager(roomStore, scoreStore)
	sock := ws.New(mgr)
	io := sock.Mount(r)
	defer io.Close()
	go sock.RunSweeper(ctx)

	r.GET("/health", func(c *gin.Context) {
		status := gin.H{"ok": true, "time": time.Now().UTC()}
		code := http.StatusOK
		if redisStore != nil {
			if err := redisStore.Ping(); err != nil {
				status["ok"] = false
				status["redis"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		if scoresDB != nil {
			if err := scoresDB.Ping(); err != nil {
				status["ok"] = false
				status["postgres"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		c.JSON(code, status)
	})

	// QR join link for a room, scannable from a projected facilitator screen.
	r.GET("/qr", func(c *gin.Context) {
		room := c.Query("room")
		if room == "" {
			c.String(http.StatusBadRequest, "missing room")
			return
		}
		base := cfg.PublicURL
		if base == "" {
			scheme := "http"
			if c.Request.TLS != nil {
				scheme = "https"
			}
			if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
				scheme = proto
			}
			base = scheme + "://" + c.Request.Host
		}
		const qrSize = 320
		png, err := qrcode.Encode(base+"/?room="+room, qrcode.Medium, qrSize)
		if err != nil {
			c.String(http.StatusInternalServerError, "qr generation failed")
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	r.NoRoute(func(c *gin.Context) {
		staticserver.Handler().ServeHTTP(c.Writer, c.Request)
	})

	srv := &http.Server{Addr: cfg.Addr(), Handler: r}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	zerologlog.Info().Str("addr", cfg.Addr()).Msg("listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	zerologlog.Info().Msg("server stopped")
	return nil
}
