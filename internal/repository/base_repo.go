package repository

import (
	"context"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/CyberTechArmor/NEON-sub002/internal/config"
	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
)

// Repositories holds all repositories
type Repositories struct {
	DB           *gorm.DB
	Redis        *redis.Client
	Message      *MessageRepo
	Call         *CallRepo
	Meeting      *MeetingRepo
	Notification *NotificationRepo
	Seq          *SeqRepo
	Presence     *PresenceRepo
	Member       *MemberRepo
}

// NewRepositories creates all repositories
func NewRepositories(cfg *config.Config) (*Repositories, error) {
	db, err := initMySQL(cfg)
	if err != nil {
		return nil, err
	}
	rdb := initRedis(cfg)
	return newRepositories(db, rdb), nil
}

func newRepositories(db *gorm.DB, rdb *redis.Client) *Repositories {
	return &Repositories{
		DB:           db,
		Redis:        rdb,
		Message:      NewMessageRepo(db),
		Call:         NewCallRepo(db),
		Meeting:      NewMeetingRepo(db),
		Notification: NewNotificationRepo(db),
		Seq:          NewSeqRepo(db, rdb),
		Presence:     NewPresenceRepo(rdb),
		Member:       NewMemberRepo(db),
	}
}

// initMySQL initializes MySQL connection
func initMySQL(cfg *config.Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Server.Mode == "debug" {
		logLevel = logger.Info
	} else {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// initRedis initializes Redis connection
func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// Migrate creates or updates every table
func (r *Repositories) Migrate(ctx context.Context) error {
	return r.DB.WithContext(ctx).AutoMigrate(
		&entity.Message{},
		&entity.MessageReaction{},
		&entity.ReadReceipt{},
		&entity.CallRecord{},
		&entity.CallParticipantRecord{},
		&entity.Meeting{},
		&entity.MeetingParticipant{},
		&entity.Notification{},
		&entity.ConversationMember{},
	)
}

// Close closes all connections
func (r *Repositories) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	return r.Redis.Close()
}

// CheckConnection checks if database and redis connections are alive
func (r *Repositories) CheckConnection(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		log.CtxError(ctx, "mysql ping failed: %v", err)
		return err
	}

	if err := r.Redis.Ping(ctx).Err(); err != nil {
		log.CtxError(ctx, "redis ping failed: %v", err)
		return err
	}

	return nil
}
