package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arenasync/server"
)

// arenasync 入口：启动 HTTP + WebSocket 服务，并初始化房间管理器
func main() {
	cfg, err := server.LoadConfig(".env", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	// 使用第三方 zap 日志库写入日志文件（带滚动）
	if err := server.InitLogger(cfg.LogFile, cfg.LogConsole); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	rm := server.NewRoomManager(cfg.Room, cfg.Settings)
	// 先预创建默认房间
	_ = rm.GetOrCreateRoom(cfg.Room)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWS(rm))
	mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	// 管理与监控接口
	mux.HandleFunc("/admin/config", server.HandleAdminConfig(rm))
	mux.HandleFunc("/metrics", server.HandleMetrics(rm))
	mux.HandleFunc("/room-status", server.HandleRoomStatus(rm))
	mux.HandleFunc("/status", server.HandleStatus)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		server.Log.Infof("arenasync listening on %s (ws endpoint /ws, room %q)", cfg.Addr, cfg.Room)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rm.Shutdown()
	if err := srv.Shutdown(ctx); err != nil {
		server.Log.Warnf("http shutdown: %v", err)
	}
}
