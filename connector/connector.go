// Package connector 数据源连接器的读写接口
//
// 每种数据源（SQL、mongo、elasticsearch）在各自的包中实现并通过 Register 注册，
// 上层只依赖这里定义的接口
package connector

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/write"
)

type ReadOperations interface {
	// GetSingleRecord 没有匹配的记录时返回 nil, nil
	GetSingleRecord(ctx context.Context, model *schema.Model, f filter.Filter, selected selection.FieldSelection) (*SingleRecord, error)
	GetManyRecords(ctx context.Context, model *schema.Model, args QueryArguments, selected selection.FieldSelection) (*ManyRecords, error)
}

type WriteOperations interface {
	CreateRecord(ctx context.Context, model *schema.Model, args *write.WriteArgs, selected selection.FieldSelection) (*SingleRecord, error)
	// CreateRecords 返回插入的行数，skipDuplicates 时跳过唯一键冲突的行
	CreateRecords(ctx context.Context, model *schema.Model, args []*write.WriteArgs, skipDuplicates bool) (int, error)
	UpdateRecord(ctx context.Context, model *schema.Model, rf write.RecordFilter, args *write.WriteArgs, selected selection.FieldSelection) (*SingleRecord, error)
	// UpdateRecords limit 为 nil 表示不限制
	UpdateRecords(ctx context.Context, model *schema.Model, rf write.RecordFilter, args *write.WriteArgs, limit *int) (int, error)
	DeleteRecord(ctx context.Context, model *schema.Model, rf write.RecordFilter, selected selection.FieldSelection) (*SingleRecord, error)
	DeleteRecords(ctx context.Context, model *schema.Model, rf write.RecordFilter, limit *int) (int, error)
	M2MConnect(ctx context.Context, field *schema.RelationField, parent selection.SelectionResult, children []selection.SelectionResult) error
	M2MDisconnect(ctx context.Context, field *schema.RelationField, parent selection.SelectionResult, children []selection.SelectionResult) error
}

type Connector interface {
	ReadOperations
	WriteOperations

	BeginTx(ctx context.Context, level IsolationLevel) (Transaction, error)
	Name() string
	Close() error
}

// Transaction 连接器上开启的事务，提交或回滚后不可再用
type Transaction interface {
	ReadOperations
	WriteOperations

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// QueryArguments 多条记录查询的参数
type QueryArguments struct {
	Filter filter.Filter
	// Take 为 nil 表示不限制
	Take    *int
	Skip    int
	OrderBy []OrderBy
}

type OrderBy struct {
	Field *schema.ScalarField
	Desc  bool
}

// IsolationLevel 事务隔离级别，零值表示使用数据源默认值
type IsolationLevel int

const (
	IsolationDefault IsolationLevel = iota
	ReadUncommitted
	ReadCommitted
	RepeatableRead
	Snapshot
	Serializable
)

var isolationNames = map[IsolationLevel]string{
	IsolationDefault: "Default",
	ReadUncommitted:  "ReadUncommitted",
	ReadCommitted:    "ReadCommitted",
	RepeatableRead:   "RepeatableRead",
	Snapshot:         "Snapshot",
	Serializable:     "Serializable",
}

func (l IsolationLevel) String() string {
	if name, ok := isolationNames[l]; ok {
		return name
	}
	return "Unknown"
}

// ParseIsolationLevel 忽略大小写、空格和下划线，"read committed" 与 "ReadCommitted" 等价
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	norm := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s))
	if norm == "" {
		return IsolationDefault, nil
	}
	for level, name := range isolationNames {
		if level != IsolationDefault && strings.ToLower(name) == norm {
			return level, nil
		}
	}
	return IsolationDefault, qerror.NewInvalidIsolationLevel(s)
}

// SQL 转换为 database/sql 的隔离级别
func (l IsolationLevel) SQL() sql.IsolationLevel {
	switch l {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case ReadCommitted:
		return sql.LevelReadCommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Snapshot:
		return sql.LevelSnapshot
	case Serializable:
		return sql.LevelSerializable
	}
	return sql.LevelDefault
}
