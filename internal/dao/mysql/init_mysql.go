// Package mysql 提供本地存储层的初始化
// 负责建立数据库连接、自动迁移表结构、初始化 Repository 层
package mysql

import (
	"fmt"

	"kama_call_ring/internal/config"
	"kama_call_ring/internal/dao/mysql/repository"
	"kama_call_ring/internal/model"
	"kama_call_ring/pkg/errorx"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Init 打开数据库并返回 Repository 集合
// driver 为 sqlite 时使用纯 Go 驱动，适合单机部署和测试
func Init(conf *config.MysqlConfig) (*repository.Repositories, error) {
	var dialector gorm.Dialector
	switch conf.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			conf.User,
			conf.Password,
			conf.Host,
			conf.Port,
			conf.DatabaseName,
		)
		dialector = mysqldriver.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(conf.Path)
	default:
		return nil, errorx.Newf(errorx.CodeInvalidParam, "unsupported storage driver %q", conf.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeDBError, "open %s", conf.Driver)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	zap.L().Info("local storage ready", zap.String("driver", conf.Driver))
	return repository.NewRepositories(db), nil
}

// Migrate 自动迁移表结构，不会删除已有字段或数据
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.ChatInfo{},
		&model.ChatParticipant{},
		&model.ChannelAdmin{},
		&model.UserInfo{},
	)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeDBError, "auto migrate")
	}
	return nil
}
