package engine

import (
	"github.com/hatlonely/qcore/cache"
	"github.com/hatlonely/qcore/itx"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/metrics"
	"github.com/hatlonely/qcore/uid"
)

type SchemaOptions struct {
	// Path 定义文件路径，格式由扩展名决定
	Path string `cfg:"path"`
	// Inline 内联的定义文档，Path 为空时使用
	Inline string `cfg:"inline"`
	Format string `cfg:"format" def:"yaml" validate:"oneof=yaml yml json toml"`
}

type DatasourceOptions struct {
	// Provider 为空时使用 schema 中声明的数据源
	Provider string `cfg:"provider"`
	// Options 连接器自己的参数，见 sqlconn.SQLOptions、mongoconn.MongoOptions、esconn.ESOptions
	Options map[string]interface{} `cfg:"options"`
}

type Options struct {
	Schema      SchemaOptions      `cfg:"schema"`
	Datasource  DatasourceOptions  `cfg:"datasource"`
	Transaction itx.ManagerOptions `cfg:"transaction"`
	// Cache 为 nil 时不启用记录缓存
	Cache      *cache.RecordCacheOptions  `cfg:"cache"`
	Defaults   uid.DefaultProviderOptions `cfg:"defaults"`
	Observable metrics.ObservableOptions  `cfg:"observable"`
	Log        log.Options                `cfg:"log"`
}
