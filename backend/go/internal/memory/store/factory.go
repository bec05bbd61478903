package store

import (
	"context"
	"fmt"

	"PersonaGen/backend/go/internal/config"
	"PersonaGen/backend/go/internal/database/mongo"
	"PersonaGen/backend/go/internal/database/mysql"
	"PersonaGen/backend/go/internal/database/redis"
)

// New 根据 storage.driver 构造对应的存储后端。
func New(ctx context.Context, cfg *config.AppConfig) (Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageFile, "":
		return NewFileStore(cfg.Storage.DataDir)
	case config.StorageRedis:
		rdb, err := redis.GetClient(ctx, &cfg.Databases.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(rdb, cfg.Storage.KeyPrefix), nil
	case config.StorageMongo:
		client, err := mongo.GetClient(ctx, &cfg.Databases.MongoDB)
		if err != nil {
			return nil, err
		}
		return NewMongoStore(client, cfg.Databases.MongoDB.Database), nil
	case config.StorageMySQL:
		db, err := mysql.GetDB(&cfg.Databases.MySQL)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}
