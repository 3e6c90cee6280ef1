// syncbot 无界面客户端：加入服务端后沿圆周移动，每帧 Poll 一次，
// 退出时发送 Leave。用于压测和手动联调。
package main

import (
	"context"
	"flag"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fpsync/client"
	"fpsync/config"
	"fpsync/logging"
)

func main() {
	var (
		configFile string
		envFile    string
		serverAddr string
		radius     float64
		speed      float64
	)
	flag.StringVar(&configFile, "config", "", "config file (json/yaml/toml)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file, ignored if missing")
	flag.StringVar(&serverAddr, "server", "", "server address, overrides client.server")
	flag.Float64Var(&radius, "radius", 5, "circle radius in world units")
	flag.Float64Var(&speed, "speed", 1, "angular speed in rad/s")
	flag.Parse()

	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		panic(err)
	}
	if serverAddr == "" {
		serverAddr = cfg.Client.Server
	}
	log, err := logging.InitLogger(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logging.SyncLogger()

	store, err := client.Dial(serverAddr, log)
	if err != nil {
		log.Errorw("dial failed", "server", serverAddr, "err", err)
		logging.SyncLogger()
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	frame := time.Second / time.Duration(cfg.Client.FrameRate)
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	start := time.Now()
	lastReport := start
	if err := store.SendJoin(); err != nil {
		log.Warnw("join failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			if err := store.SendLeave(); err != nil {
				log.Warnw("leave failed", "err", err)
			}
			log.Info("bot stopped")
			return
		case now := <-ticker.C:
			// Join 没有确认，收到第一份快照之前每秒重发一次
			if _, joined := store.Self(); !joined && now.Sub(lastReport) >= time.Second {
				_ = store.SendJoin()
			}

			angle := speed * now.Sub(start).Seconds()
			pos := [3]float32{float32(radius * math.Cos(angle)), 0, float32(radius * math.Sin(angle))}
			vel := [3]float32{float32(-radius * speed * math.Sin(angle)), 0, float32(radius * speed * math.Cos(angle))}
			yaw := float32(math.Mod(angle+math.Pi/2, 2*math.Pi))
			if err := store.SendMove(pos, vel, yaw, 0); err != nil {
				log.Debugw("move failed", "err", err)
			}

			if _, err := store.Poll(); err != nil {
				log.Debugw("poll failed", "err", err)
			}

			if now.Sub(lastReport) >= time.Second {
				lastReport = now
				self, _ := store.Self()
				log.Infow("remote players", "self", self, "count", len(store.Remotes()))
				for id, p := range store.Remotes() {
					log.Debugw("remote", "player", id, "at", p.PositionAt(now), "yaw", p.Yaw)
				}
			}
		}
	}
}
