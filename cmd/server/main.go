package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/config"
	"github.com/weibaohui/decision-council/internal/bootstrap"
	"github.com/weibaohui/decision-council/internal/handler"
	"github.com/weibaohui/decision-council/internal/router"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize council: %v", err)
	}
	defer app.Close()

	councilHandler := handler.NewCouncilHandler(app.Council, app.Audit, app.Cost)
	healthHandler := handler.NewHealthHandler(app.Backend, app.Orchestrator)

	r := router.Setup(cfg, councilHandler, healthHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			klog.Errorf("服务关闭失败: %v", err)
		}
	}()

	log.Printf("Server starting on port %s (backend=%s)...", cfg.Server.Port, app.Backend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}
}
