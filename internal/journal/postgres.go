package journal

import (
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
	defaultMaxOpenConns    = 4
)

// Option defines connection options for the journal database.
type Option struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
}

// Open connects to postgres and migrates the journal table.
func Open(option Option) (*gorm.DB, error) {
	dsn := option.DSN()
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open postgres %s:%d/%s", option.Host, option.Port, option.Database)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql db")
	}
	sqlDB.SetMaxOpenConns(defaultMaxOpenConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.AutoMigrate(&Record{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "migrate journal")
	}
	return db, nil
}

// DSN renders a postgres URL, preferring ConnString when set. Empty fields
// fall back to localhost:5432 with sslmode=disable.
func (opt Option) DSN() string {
	if len(opt.ConnString) != 0 {
		return opt.ConnString
	}

	host, port, ssl := opt.Host, opt.Port, opt.SSLMode
	if len(host) == 0 {
		host = defaultPostgresHost
	}
	if port == 0 {
		port = defaultPostgresPort
	}
	if len(ssl) == 0 {
		ssl = defaultPostgresSSLMode
	}

	dsn := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + opt.Database,
	}
	switch {
	case len(opt.User) != 0 && len(opt.Password) != 0:
		dsn.User = url.UserPassword(opt.User, opt.Password)
	case len(opt.User) != 0:
		dsn.User = url.User(opt.User)
	}

	params := url.Values{"sslmode": {ssl}}
	for k, v := range opt.Params {
		if len(k) != 0 {
			params.Set(k, v)
		}
	}
	dsn.RawQuery = params.Encode()
	return dsn.String()
}
