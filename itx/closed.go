package itx

import (
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hatlonely/qcore/qerror"
)

type closeState int

const (
	stateCommitted closeState = iota + 1
	stateRolledBack
	stateExpired
	stateIdleExpired
)

// closedRecord 已关闭事务的状态，用于之后的调用报错
type closedRecord struct {
	State   closeState    `msgpack:"s"`
	Timeout time.Duration `msgpack:"t"`
	Elapsed time.Duration `msgpack:"e"`
}

func (r closedRecord) error(operation string) error {
	switch r.State {
	case stateCommitted:
		return qerror.NewTransactionAlreadyClosed(fmt.Sprintf("a %s cannot be executed on a committed transaction", operation))
	case stateRolledBack:
		return qerror.NewTransactionAlreadyClosed(fmt.Sprintf("a %s cannot be executed on a transaction that was rolled back", operation))
	case stateIdleExpired:
		return qerror.NewTransactionAlreadyClosed(fmt.Sprintf(
			"a %s cannot be executed on an expired transaction. The idle timeout for this transaction was %d ms, however %d ms passed since the start of the transaction",
			operation, r.Timeout.Milliseconds(), r.Elapsed.Milliseconds(),
		))
	}
	return qerror.NewTransactionAlreadyClosed(fmt.Sprintf(
		"a %s cannot be executed on an expired transaction. The timeout for this transaction was %d ms, however %d ms passed since the start of the transaction",
		operation, r.Timeout.Milliseconds(), r.Elapsed.Milliseconds(),
	))
}

// closedRegistry 容量有限，超出后最早的记录被淘汰，此时按未知事务报错
type closedRegistry struct {
	cache *freecache.Cache
	ttl   time.Duration
}

func newClosedRegistry(size int, ttl time.Duration) *closedRegistry {
	return &closedRegistry{cache: freecache.NewCache(size), ttl: ttl}
}

func (r *closedRegistry) put(id string, rec closedRecord) error {
	buf, err := msgpack.Marshal(&rec)
	if err != nil {
		return err
	}
	return r.cache.Set([]byte(id), buf, int(r.ttl.Seconds()))
}

func (r *closedRegistry) get(id string) (closedRecord, bool) {
	var rec closedRecord
	buf, err := r.cache.Get([]byte(id))
	if err != nil {
		return rec, false
	}
	if err := msgpack.Unmarshal(buf, &rec); err != nil {
		return rec, false
	}
	return rec, true
}

func notFound(id string, operation string) error {
	return qerror.NewTransactionAlreadyClosed(fmt.Sprintf(
		"a %s cannot be executed on transaction %s: it is invalid, refers to an old closed transaction, or was obtained before disconnecting",
		operation, id,
	))
}
