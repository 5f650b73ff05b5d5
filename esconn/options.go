package esconn

import "time"

// ESOptions elasticsearch 连接选项
type ESOptions struct {
	Addresses  []string      `cfg:"addresses" def:"[\"http://localhost:9200\"]"`
	Username   string        `cfg:"username"`
	Password   string        `cfg:"password"`
	APIKey     string        `cfg:"apiKey"`
	Timeout    time.Duration `cfg:"timeout" def:"30s"`
	MaxRetries int           `cfg:"maxRetries" def:"3"`
	// Refresh 写入后的刷新策略，取值 true / false / wait_for
	Refresh string `cfg:"refresh" def:"wait_for" validate:"oneof=true false wait_for"`
	// MaxResultWindow 不指定 take 时单次查询返回的最大文档数
	MaxResultWindow int `cfg:"maxResultWindow" def:"10000" validate:"gt=0"`
}

func (o *ESOptions) refreshBool() *bool {
	refresh := o.Refresh != "false"
	return &refresh
}
