package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/ports"
)

// Handler exposes stored artifacts read-only for downstream tooling.
type Handler struct {
	store   ports.ArtifactStore
	sources []domain.ChartSource
	logger  *slog.Logger
}

// NewHandler serves artifacts from store; sources feed the listing endpoint.
func NewHandler(store ports.ArtifactStore, sources []domain.ChartSource, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: store, sources: sources, logger: log}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	_ = router.SetTrustedProxies(nil)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	h.RegisterRoutes(router.Group("/charts"))
	return router
}

// RegisterRoutes mounts the chart endpoints on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)                 // GET /charts
	rg.GET("/:source/:period", h.read) // GET /charts/:source/:period
}

func (h *Handler) list(c *gin.Context) {
	items := make([]gin.H, 0, len(h.sources))
	for _, src := range h.sources {
		items = append(items, gin.H{
			"id":         src.ID,
			"title":      src.Title,
			"region":     src.Region,
			"period":     src.Period,
			"rankBy":     src.RankMode,
			"maxEntries": src.MaxEntries,
			"strategies": len(src.Strategies),
		})
	}
	c.JSON(http.StatusOK, gin.H{"total": len(items), "items": items})
}

func (h *Handler) read(c *gin.Context) {
	sourceID := c.Param("source")
	period := c.Param("period")
	if _, err := time.Parse("2006-01-02", period); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period must be YYYY-MM-DD"})
		return
	}

	run, err := h.store.Read(c.Request.Context(), sourceID, period)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
			return
		}
		h.logger.Error("read artifact", "source", sourceID, "period", period, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read failed"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// Serve runs the API on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("read api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
