/*
 *  monitor.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
)

// Monitor is the opt-in HTTP status endpoint of a running workflow. It
// answers read-only queries about job states so a long run on a compute
// node can be watched from elsewhere.
type Monitor struct {
	Addr   string
	Runner *Runner

	e *echo.Echo
}

// Start brings the endpoint up in the background; errors other than
// server shutdown are logged, never fatal to the run
func (m *Monitor) Start() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"service":  "genoflow",
			"version":  Version,
			"workflow": m.Runner.Plan.Workflow.Name,
		})
	})
	e.GET("/status", func(c echo.Context) error {
		jobs, stats := m.Runner.Snapshot()
		return c.JSON(http.StatusOK, map[string]interface{}{
			"stats": stats,
			"jobs":  jobs,
		})
	})
	e.GET("/jobs/:rule", func(c echo.Context) error {
		rule := c.Param("rule")
		jobs, _ := m.Runner.Snapshot()
		var matched []JobStatus
		for _, j := range jobs {
			if j.Rule == rule {
				matched = append(matched, j)
			}
		}
		if len(matched) == 0 {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "no such rule in this run"})
		}
		return c.JSON(http.StatusOK, matched)
	})

	m.e = e
	go func() {
		log.Noticef("Monitor listening on %s", m.Addr)
		if err := e.Start(m.Addr); err != nil && err != http.ErrServerClosed {
			log.Warningf("monitor: %v", err)
		}
	}()
}

// Stop shuts the endpoint down, bounded so a stuck listener cannot hold
// the run's exit hostage
func (m *Monitor) Stop() {
	if m.e == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.e.Shutdown(ctx); err != nil {
		log.Debug(err)
	}
}
