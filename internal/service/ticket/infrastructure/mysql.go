package infrastructure

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MySQLOptions 是订单账本的连接参数
type MySQLOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	MaxOpenConns int
	MaxIdleConns int
}

// DSN 使用驱动自带的 Config 拼接连接串
func (o MySQLOptions) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", o.Host, o.Port)
	cfg.DBName = o.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// OpenMySQL 打开 GORM 连接并配置连接池
func OpenMySQL(opts MySQLOptions) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(opts.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open mysql %s:%d/%s", opts.Host, opts.Port, opts.Database)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB from gorm")
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// AutoMigrate 创建或更新 tickets / orders 表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&TicketModel{}, &OrderModel{})
}
