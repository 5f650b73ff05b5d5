package mongoconn

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
)

func init() {
	connector.MustRegister(schema.ProviderMongoDB, func(options *connector.Options) (connector.Connector, error) {
		var mongoOptions MongoOptions
		if err := options.Decode(&mongoOptions); err != nil {
			return nil, errors.WithMessage(err, "decode mongo options failed")
		}
		return NewMongoWithOptions(&mongoOptions, options.Log())
	})
}

// Mongo MongoDB 连接器
type Mongo struct {
	*operations

	client   *mongo.Client
	database *mongo.Database
	options  *MongoOptions
	logger   log.Logger
}

func NewMongoWithOptions(opts *MongoOptions, logger log.Logger) (*Mongo, error) {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(opts.uri())
	clientOptions.SetMaxPoolSize(opts.MaxPoolSize)
	clientOptions.SetMinPoolSize(opts.MinPoolSize)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, errors.Wrap(err, "mongo.Connect failed")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongo ping failed")
	}

	logger = logger.With("connector", string(schema.ProviderMongoDB))
	database := client.Database(opts.Database)
	return &Mongo{
		operations: newOperations(newMongoStore(database, nil, logger), logger),
		client:     client,
		database:   database,
		options:    opts,
		logger:     logger,
	}, nil
}

func (m *Mongo) Name() string {
	return string(schema.ProviderMongoDB)
}

func (m *Mongo) Close() error {
	return m.client.Disconnect(context.Background())
}

// BeginTx mongo 事务固定为快照隔离
func (m *Mongo) BeginTx(ctx context.Context, level connector.IsolationLevel) (connector.Transaction, error) {
	if level != connector.IsolationDefault && level != connector.Snapshot {
		return nil, qerror.NewInvalidIsolationLevel(level.String())
	}
	session, err := m.client.StartSession()
	if err != nil {
		return nil, m.normalize(err)
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return nil, m.normalize(err)
	}
	m.logger.DebugContext(ctx, "begin transaction")
	return &MongoTx{
		operations: newOperations(newMongoStore(m.database, session, m.logger), m.logger),
		session:    session,
		logger:     m.logger,
	}, nil
}

// MongoTx 基于会话的事务
type MongoTx struct {
	*operations

	mutex   sync.Mutex
	session mongo.Session
	closed  bool
	logger  log.Logger
}

func (t *MongoTx) finish(ctx context.Context, name string, fn func(context.Context) error) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.closed {
		return qerror.NewTransactionAlreadyClosed("transaction was already committed or rolled back")
	}
	t.closed = true
	defer t.session.EndSession(ctx)
	if err := fn(ctx); err != nil {
		return t.normalize(err)
	}
	t.logger.DebugContext(ctx, name+" transaction")
	return nil
}

func (t *MongoTx) Commit(ctx context.Context) error {
	return t.finish(ctx, "commit", t.session.CommitTransaction)
}

func (t *MongoTx) Rollback(ctx context.Context) error {
	return t.finish(ctx, "rollback", t.session.AbortTransaction)
}
