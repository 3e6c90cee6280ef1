// Package journal 异步持久化玩家会话事件（接入、离开、超时）。
// Record 从不阻塞调用方，写库在独立协程中批量完成。
package journal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fpsync/logging"
)

const (
	queueSize = 1024
	batchSize = 64
)

// Event 一条会话事件
type Event struct {
	ID       uint      `gorm:"primaryKey"`
	PlayerID string    `gorm:"size:36;index"`
	Addr     string    `gorm:"size:64"`
	Kind     string    `gorm:"size:16"`
	At       time.Time `gorm:"index"`
}

func (Event) TableName() string { return "session_events" }

// Journal 会话事件日志
type Journal struct {
	db  *gorm.DB
	log *zap.SugaredLogger

	mu      sync.RWMutex
	closed  bool
	events  chan Event
	done    chan struct{}
	dropped int64
}

// Open 按驱动名打开数据库并建表。driver: sqlite（默认）或 postgres
func Open(driver, dsn string, log *zap.SugaredLogger) (*Journal, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return New(db, log), nil
}

// New 基于已打开的连接创建 Journal 并启动写协程
func New(db *gorm.DB, log *zap.SugaredLogger) *Journal {
	j := &Journal{
		db:     db,
		log:    logging.OrNop(log),
		events: make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

// Record 非阻塞入队；队列满或已关闭时丢弃
func (j *Journal) Record(e Event) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.events <- e:
	default:
		atomic.AddInt64(&j.dropped, 1)
	}
}

// Dropped 因队列满被丢弃的事件数
func (j *Journal) Dropped() int64 {
	return atomic.LoadInt64(&j.dropped)
}

// run 取到一条后顺手取走队列里已有的事件，一次批量写入
func (j *Journal) run() {
	defer close(j.done)
	batch := make([]Event, 0, batchSize)
	for e := range j.events {
		batch = append(batch[:0], e)
	fill:
		for len(batch) < batchSize {
			select {
			case more, ok := <-j.events:
				if !ok {
					break fill
				}
				batch = append(batch, more)
			default:
				break fill
			}
		}
		if err := j.db.CreateInBatches(&batch, batchSize).Error; err != nil {
			j.log.Errorw("journal write failed", "events", len(batch), "err", err)
		}
	}
}

// Recent 最近的 limit 条事件，按时间倒序
func (j *Journal) Recent(limit int) ([]Event, error) {
	var events []Event
	err := j.db.Order("id desc").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	return events, nil
}

// Handler GET /sessions?limit=50 返回最近的会话事件
func (j *Journal) Handler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	events, err := j.Recent(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

// Close 写完队列中剩余事件后关闭数据库连接
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.events)
	j.mu.Unlock()

	<-j.done
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
