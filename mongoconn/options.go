package mongoconn

import (
	"fmt"
	"time"
)

// MongoOptions MongoDB 连接选项
type MongoOptions struct {
	URI         string        `cfg:"uri"`
	Host        string        `cfg:"host" def:"localhost"`
	Port        int           `cfg:"port" def:"27017"`
	Database    string        `cfg:"database" validate:"required"`
	Username    string        `cfg:"username"`
	Password    string        `cfg:"password"`
	AuthSource  string        `cfg:"authSource" def:"admin"`
	Timeout     time.Duration `cfg:"timeout" def:"30s"`
	MaxPoolSize uint64        `cfg:"maxPoolSize" def:"100"`
	MinPoolSize uint64        `cfg:"minPoolSize" def:"0"`
}

func (o *MongoOptions) uri() string {
	if o.URI != "" {
		return o.URI
	}
	if o.Username != "" && o.Password != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d/%s?authSource=%s",
			o.Username, o.Password, o.Host, o.Port, o.Database, o.AuthSource)
	}
	return fmt.Sprintf("mongodb://%s:%d/%s", o.Host, o.Port, o.Database)
}
