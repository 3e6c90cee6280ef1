package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"fpsync/config"
	"fpsync/journal"
	"fpsync/logging"
	"fpsync/server"
)

// fpsync 入口：启动 UDP 权威服务端，可选管理 HTTP 与会话日志
func main() {
	var configFile, envFile string
	flag.StringVar(&configFile, "config", "", "config file (json/yaml/toml)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file, ignored if missing")
	flag.Parse()

	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		panic(err)
	}
	log, err := logging.InitLogger(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logging.SyncLogger()

	srv, err := server.Listen(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		TickPeriod:      cfg.Server.TickPeriod,
		LivenessTimeout: cfg.Server.LivenessTimeout,
		MaxPlayers:      cfg.Server.MaxPlayers,
		IdleSleep:       cfg.Server.IdleSleep,
	}, log)
	if err != nil {
		log.Errorw("failed to start server", "err", err)
		logging.SyncLogger()
		os.Exit(1)
	}
	defer srv.Close()

	mux := http.NewServeMux()
	srv.Routes(mux)

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN, log)
		if err != nil {
			log.Errorw("failed to open session journal", "err", err)
			logging.SyncLogger()
			os.Exit(1)
		}
		defer j.Close()
		srv.SetRecorder(server.RecorderFunc(func(e server.SessionEvent) {
			j.Record(journal.Event{
				PlayerID: e.PlayerID.String(),
				Addr:     e.Addr.String(),
				Kind:     string(e.Kind),
				At:       e.At,
			})
		}))
		mux.HandleFunc("/sessions", j.Handler)
	}

	var hs *http.Server
	if cfg.Admin.Addr != "" {
		hs = &http.Server{Addr: cfg.Admin.Addr, Handler: mux}
		go func() {
			log.Infof("admin listening on %s", cfg.Admin.Addr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("admin listen", "err", err)
			}
		}()
	}

	// 优雅退出（Ctrl+C）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("fpsync listening on %s", srv.Addr())
	_ = srv.Run(ctx)

	log.Info("Shutting down...")
	srv.Spectators().Close()
	if hs != nil {
		_ = hs.Close()
	}
}
