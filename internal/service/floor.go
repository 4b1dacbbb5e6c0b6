package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wisefido-floor/internal/cache"
	"wisefido-floor/internal/common/database"
	mqttcommon "wisefido-floor/internal/common/mqtt"
	rediscommon "wisefido-floor/internal/common/redis"
	"wisefido-floor/internal/config"
	"wisefido-floor/internal/feed"
	"wisefido-floor/internal/repository"
	"wisefido-floor/internal/scene"
	"wisefido-floor/internal/session"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// FloorService 楼层视图服务：数据源 → 会话 → 面板
type FloorService struct {
	config      *config.Config
	logger      *zap.Logger
	session     *session.Session
	source      feed.Source
	builder     scene.Builder
	panelCache  *cache.PanelCache
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	db          *sql.DB
}

// NewFloorService 根据配置创建楼层视图服务
func NewFloorService(cfg *config.Config, logger *zap.Logger) (*FloorService, error) {
	s := &FloorService{
		config:  cfg,
		logger:  logger,
		builder: scene.MemoryBuilder{},
	}

	expected, err := s.resolveCapacity()
	if err != nil {
		s.closeConnections()
		return nil, err
	}

	var sink session.Sink
	if cfg.Cache.Enabled {
		client, err := rediscommon.Connect(context.Background(), &cfg.Redis)
		if err != nil {
			s.closeConnections()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redisClient = client
		s.panelCache = cache.NewPanelCache(
			cache.NewRedisKVStore(s.redisClient),
			cache.NewRedisStreamAppender(s.redisClient),
			cfg.Cache.EventStream,
			time.Duration(cfg.Cache.TTL)*time.Second,
			logger,
		)
		sink = s.panelCache
	}

	s.session = session.New(expected, sink, logger)

	switch cfg.Feed.Transport {
	case config.TransportMQTT:
		client, err := mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			s.closeConnections()
			return nil, err
		}
		s.mqttClient = client
		s.source = feed.NewMQTTSource(client, cfg.Feed.Topic, cfg.MQTT.QoS, s.session, logger)
	default:
		s.source = feed.NewWebSocketSource(cfg.Feed.URL, s.session, logger)
	}

	return s, nil
}

// resolveCapacity 预期住户数：来自配置，或来自单元内已分配住户的床位数
func (s *FloorService) resolveCapacity() (int, error) {
	if s.config.Floor.CapacitySource != config.CapacityFromDatabase {
		return s.config.Floor.ExpectedOccupants, nil
	}

	db, err := database.NewPostgresDB(&s.config.Database)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db

	repo := repository.NewBedRepository(db, s.logger)
	return capacityFromBeds(repo, s.config.Floor.TenantID, s.config.Floor.UnitID, s.logger)
}

// bedLister 已分配住户床位查询（repository.BedRepository 实现）
type bedLister interface {
	ListOccupiedBeds(tenantID, unitID string) ([]repository.OccupiedBed, error)
}

// capacityFromBeds 以单元内已分配住户的床位数作为预期住户数
func capacityFromBeds(beds bedLister, tenantID, unitID string, logger *zap.Logger) (int, error) {
	occupied, err := beds.ListOccupiedBeds(tenantID, unitID)
	if err != nil {
		return 0, err
	}
	if len(occupied) == 0 {
		return 0, fmt.Errorf("unit %s has no occupied beds", unitID)
	}

	bedIDs := make([]string, 0, len(occupied))
	for _, b := range occupied {
		bedIDs = append(bedIDs, b.BedID)
	}
	logger.Info("Resolved expected occupants from database",
		zap.String("tenant_id", tenantID),
		zap.String("unit_id", unitID),
		zap.Int("expected_occupants", len(occupied)),
		zap.Strings("bed_ids", bedIDs),
	)
	return len(occupied), nil
}

// Session 当前会话
func (s *FloorService) Session() *session.Session { return s.session }

// Start 启动数据源并构建场景，阻塞到 ctx 取消
// 数据源故障只记录日志，已构建的面板保持最后状态
func (s *FloorService) Start(ctx context.Context) error {
	s.logger.Info("Starting floor service",
		zap.String("session_id", s.session.ID()),
		zap.String("transport", s.config.Feed.Transport),
		zap.Int("expected_occupants", s.session.Expected()),
		zap.Bool("cache_enabled", s.panelCache != nil),
	)

	go func() {
		if err := s.source.Run(ctx); err != nil {
			s.logger.Error("Feed stopped", zap.Error(err))
			return
		}
		s.logger.Info("Feed finished")
	}()

	timeout := time.Duration(s.config.Floor.RosterTimeout) * time.Second
	if err := s.session.Build(ctx, s.builder, timeout); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil
		}
		return fmt.Errorf("failed to build floor scene: %w", err)
	}

	if s.panelCache != nil {
		go s.startReporting(ctx)
	}

	<-ctx.Done()
	return nil
}

// startReporting 定时写入危急条日报
func (s *FloorService) startReporting(ctx context.Context) {
	interval := time.Duration(s.config.Cache.ReportInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.panelCache.UpdateCriticalBars(ctx, s.session.ID(), s.session.CriticalBars(), s.session.CurrentCriticalBars()); err != nil {
				s.logger.Error("Failed to update critical bars", zap.Error(err))
			}
		}
	}
}

// Stop 停止服务
func (s *FloorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping floor service",
		zap.String("session_id", s.session.ID()),
		zap.Int("dropped_batches", s.session.Dropped()),
	)
	s.closeConnections()
	s.logger.Info("Floor service stopped")
	return nil
}

func (s *FloorService) closeConnections() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Error closing redis connection", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}
}
