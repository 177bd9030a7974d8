package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"jobpulse/internal/config"
	"jobpulse/internal/delivery/http/handler"
	"jobpulse/internal/delivery/http/middleware"
	"jobpulse/internal/delivery/http/routes"
	"jobpulse/internal/scheduler"
	"jobpulse/internal/ws"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

type App struct {
	Fiber     *fiber.App
	WS        *http.Server
	Scheduler *scheduler.Scheduler
	Container *Container
}

// New builds the fiber app on top of c.
func New(c *Container) *fiber.App {
	f := fiber.New(fiber.Config{AppName: c.Config.App.AppName})

	f.Use(middleware.NewAccessLogMiddleware(c.Logger).Middleware())
	f.Use(middleware.NewErrorMiddleware(c.Logger).Middleware())

	reg := &routes.Registry{
		InternalToken: c.Config.App.InternalToken,
		Health:        handler.NewHealthHandler(),
		Status:        handler.NewStatusHandler(c.Status, c.Reactivation),
		Postings:      handler.NewPostingHandler(c.Postings, c.Runs),
		Maintenance:   handler.NewMaintenanceHandler(c.Pipeline),
	}
	reg.Register(f)
	return f
}

// Bootstrap wires the container, migrations, HTTP and the schedule. The
// returned cleanup closes the container.
func Bootstrap(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, func() error, error) {
	c, err := NewContainer(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	migCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := c.Migrate(migCtx); err != nil {
		_ = c.Close()
		return nil, nil, err
	}

	sched := scheduler.New(c.Logger, cfg.Schedule.RunOnStart)
	if err := scheduler.Register(ctx, sched, c.Pipeline, cfg.Schedule); err != nil {
		_ = c.Close()
		return nil, nil, err
	}

	a := &App{
		Fiber:     New(c),
		Scheduler: sched,
		Container: c,
	}
	if strings.TrimSpace(cfg.App.WSPort) != "" {
		addr, err := ListenAddr(cfg.App.WSPort)
		if err != nil {
			_ = c.Close()
			return nil, nil, err
		}
		a.WS = &http.Server{
			Addr:              addr,
			Handler:           ws.NewHandler(c.Hub).Mux(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return a, c.Close, nil
}

// Run serves until ctx is done or a listener fails, then shuts everything
// down in reverse order.
func (a *App) Run(ctx context.Context, addr string) error {
	log := a.Container.Logger

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go a.Container.Hub.Run(hubCtx)

	a.Scheduler.Start()

	errCh := make(chan error, 2)
	go func() {
		errCh <- a.Fiber.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	log.Info("http listening", zap.String("addr", addr))

	if a.WS != nil {
		go func() {
			if err := a.WS.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("ws server: %w", err)
			}
		}()
		log.Info("ws listening", zap.String("addr", a.WS.Addr))
	}

	var runErr error
	select {
	case err := <-errCh:
		runErr = err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	select {
	case <-a.Scheduler.Stop().Done():
	case <-shutdownCtx.Done():
	}
	if err := a.Container.Pipeline.Shutdown(shutdownCtx); err != nil {
		log.Warn("background runs still going at shutdown", zap.Error(err))
	}
	if err := a.Fiber.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if a.WS != nil {
		if err := a.WS.Shutdown(shutdownCtx); err != nil {
			log.Warn("ws shutdown", zap.Error(err))
		}
	}
	return runErr
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
