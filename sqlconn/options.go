package sqlconn

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type SQLOptions struct {
	Driver   string `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite3"`
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     string `cfg:"port" def:"3306"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`
	MaxConns int    `cfg:"maxConns" def:"10"`
	MaxIdle  int    `cfg:"maxIdle" def:"5"`

	// MaxBindValues 单条语句最多的占位符数量，0 时 mysql 为 65535，sqlite 为 999
	MaxBindValues int `cfg:"maxBindValues" validate:"gte=0"`
	// MaxRows 单条 INSERT 最多的行数，0 表示只受 MaxBindValues 限制
	MaxRows int `cfg:"maxRows" validate:"gte=0"`
}

func (o *SQLOptions) flavour() Flavour {
	if o.Driver == "sqlite3" {
		return FlavourSQLite
	}
	return FlavourMySQL
}

func (o *SQLOptions) maxBindValues() int {
	if o.MaxBindValues > 0 {
		return o.MaxBindValues
	}
	if o.flavour() == FlavourSQLite {
		return 999
	}
	return 65535
}

func (o *SQLOptions) dsn() (string, error) {
	if o.DSN != "" {
		return o.DSN, nil
	}
	switch o.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=UTC&clientFoundRows=true",
			o.Username, o.Password, o.Host, o.Port, o.Database, o.Charset), nil
	case "sqlite3":
		if o.Database == "" {
			return "", errors.New("sqlite3 requires a database file")
		}
		if o.Database == ":memory:" {
			return "file::memory:?cache=shared&_foreign_keys=1", nil
		}
		path := o.Database
		if !strings.HasPrefix(path, "file:") {
			path = "file:" + path
		}
		return path + "?_foreign_keys=1&_busy_timeout=5000", nil
	}
	return "", errors.Errorf("unsupported driver: %s", o.Driver)
}
