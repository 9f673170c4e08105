// Command gateway is the microsandbox gateway process: it loads
// configuration, wires the session and resource managers to a remote
// microsandbox server, and serves the HTTP facade until signaled to stop.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/opensandbox/msbgateway/internal/audit"
	"github.com/opensandbox/msbgateway/internal/config"
	"github.com/opensandbox/msbgateway/internal/gateway"
	"github.com/opensandbox/msbgateway/internal/httpapi"
	"github.com/opensandbox/msbgateway/internal/resource"
	"github.com/opensandbox/msbgateway/internal/rpcclient"
	"github.com/opensandbox/msbgateway/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("msbgateway: failed to load config: %v", err)
	}
	log.Printf("msbgateway: connecting to %s (default flavor %s, max sessions %d)", cfg.ServerURL, cfg.DefaultFlavor, cfg.MaxConcurrentSessions)

	auditPath := envOrDefault("MSB_AUDIT_DB_PATH", "msbgateway-audit.db")
	auditLog, err := audit.Open(auditPath)
	if err != nil {
		log.Printf("msbgateway: audit log disabled (%v)", err)
		auditLog = nil
	} else {
		defer auditLog.Close()
		log.Printf("msbgateway: audit log at %s", auditPath)
	}

	clk := clock.New()
	remote := rpcclient.New(cfg.ServerURL, cfg.APIKey)

	sessionMgr := session.New(remote, clk, cfg.SessionTimeout, cfg.CleanupInterval, cfg.SandboxStartTimeout, cfg.DefaultExecutionTimeout)
	resourceMgr := resource.New(sessionMgr, remote, clk, cfg.MaxConcurrentSessions, cfg.MaxTotalMemoryMB, cfg.EnableLRUEviction, cfg.OrphanCleanupInterval)
	if auditLog != nil {
		sessionMgr.SetAuditLog(auditLog)
		resourceMgr.SetAuditLog(auditLog)
	}
	gw := gateway.New(sessionMgr, resourceMgr, clk, *cfg)

	ctx := context.Background()
	if err := gw.Start(ctx); err != nil {
		log.Fatalf("msbgateway: failed to start gateway: %v", err)
	}
	log.Printf("msbgateway: started")

	srv := httpapi.New(gw)
	addr := envOrDefault("MSB_LISTEN_ADDR", ":8088")
	httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}

	go func() {
		log.Printf("msbgateway: listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("msbgateway: http server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Printf("msbgateway: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	stopped, remaining := gw.GracefulShutdown(shutdownCtx, 30*time.Second)
	log.Printf("msbgateway: graceful shutdown complete (stopped=%d remaining=%d)", stopped, remaining)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
