package sqlconn

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/normalize"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
)

func init() {
	connector.MustRegister(schema.ProviderMySQL, factory("mysql"))
	connector.MustRegister(schema.ProviderSQLite, factory("sqlite3"))
}

func factory(driver string) connector.Factory {
	return func(options *connector.Options) (connector.Connector, error) {
		var sqlOptions SQLOptions
		if err := options.Decode(&sqlOptions); err != nil {
			return nil, errors.WithMessage(err, "decode sql options failed")
		}
		sqlOptions.Driver = driver
		return NewSQLWithOptions(&sqlOptions, options.Log())
	}
}

// SQL 基于连接池的连接器
type SQL struct {
	*operations

	db      *sql.DB
	options *SQLOptions
	logger  log.Logger
}

func NewSQLWithOptions(options *SQLOptions, logger log.Logger) (*SQL, error) {
	if logger == nil {
		logger = log.Default()
	}
	dsn, err := options.dsn()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(options.Driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sql.Open failed")
	}
	db.SetMaxOpenConns(options.MaxConns)
	db.SetMaxIdleConns(options.MaxIdle)
	// 内存数据库的每个连接都是独立的库
	if options.Driver == "sqlite3" && options.Database == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, normalize.For(options.flavour().provider()).Normalize(err)
	}

	returning := false
	if options.flavour() == FlavourSQLite {
		var version string
		if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "query sqlite version failed")
		}
		returning = supportsReturning(version)
	}

	logger = logger.With("connector", string(options.flavour().provider()))
	q := newQueryable(db, options.flavour(), logger)
	return &SQL{
		operations: newOperations(q, options, logger, returning),
		db:         db,
		options:    options,
		logger:     logger,
	}, nil
}

// supportsReturning sqlite 3.35.0 开始支持 RETURNING
func supportsReturning(version string) bool {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return false
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return false
	}
	return major > 3 || (major == 3 && minor >= 35)
}

func (s *SQL) Name() string {
	return string(s.options.flavour().provider())
}

func (s *SQL) Close() error {
	return s.db.Close()
}

// Queryable 底层的语句执行器，用于建表等原始命令
func (s *SQL) Queryable() Queryable {
	return s.q
}

// BeginTx sqlite 只支持 Serializable
func (s *SQL) BeginTx(ctx context.Context, level connector.IsolationLevel) (connector.Transaction, error) {
	if s.options.flavour() == FlavourSQLite && level != connector.IsolationDefault && level != connector.Serializable {
		return nil, qerror.NewInvalidIsolationLevel(level.String())
	}
	if s.options.flavour() == FlavourMySQL && level == connector.Snapshot {
		return nil, qerror.NewInvalidIsolationLevel(level.String())
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: level.SQL()})
	if err != nil {
		return nil, normalize.For(s.options.flavour().provider()).Normalize(err)
	}
	s.logger.DebugContext(ctx, "begin transaction", "isolation", level.String())
	q := newQueryable(tx, s.options.flavour(), s.logger)
	return &SQLTx{
		operations: newOperations(q, s.options, s.logger, s.returning),
		tx:         tx,
		normalizer: q.normalizer,
		logger:     s.logger,
	}, nil
}

// SQLTx 连接器上的事务
type SQLTx struct {
	*operations

	tx         *sql.Tx
	normalizer normalize.Normalizer
	logger     log.Logger
}

func (t *SQLTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return qerror.NewTransactionAlreadyClosed("transaction was already committed or rolled back")
		}
		return t.normalizer.Normalize(err)
	}
	t.logger.DebugContext(ctx, "commit transaction")
	return nil
}

func (t *SQLTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return qerror.NewTransactionAlreadyClosed("transaction was already committed or rolled back")
		}
		return t.normalizer.Normalize(err)
	}
	t.logger.DebugContext(ctx, "rollback transaction")
	return nil
}
