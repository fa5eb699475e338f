package database

import (
	"context"
	"time"
)

// KV is a minimal key-value store on the KeyValue table. Values are blobs
// and may carry an absolute expiry; expired keys are removed lazily on Get
// and in bulk by Sweep.
//
// Set is an INSERT falling back to an UPDATE when the key exists. The two
// statements are not atomic, so concurrent writers to one key may lose an
// update.
type KV struct {
	conn *Conn
}

// Set stores value under key. A non-zero ttl makes the key expire ttl
// from now (rounded to whole seconds, at least one); a negative ttl stores
// an already expired key. Zero means no expiry.
func (kv KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	var expire int64
	if ttl != 0 {
		secs := int64(ttl / time.Second)
		switch {
		case secs == 0 && ttl > 0:
			secs = 1
		case secs == 0 && ttl < 0:
			secs = -1
		}
		expire = kv.conn.clock.Now().Unix() + secs
	}

	if kv.conn.Insert(ctx, "INSERT INTO KeyValue VALUES(?i,?s,?b)", Int(expire), Text(key), Blob(value)) != 0 {
		return true
	}
	return kv.conn.Exec(ctx, "UPDATE KeyValue SET expire=?i,value=?b WHERE key=?s", Int(expire), Blob(value), Text(key))
}

// SetString is Set for string values.
func (kv KV) SetString(ctx context.Context, key, value string, ttl time.Duration) bool {
	return kv.Set(ctx, key, []byte(value), ttl)
}

// Get returns the value stored under key. Expired keys are deleted and
// reported as missing.
func (kv KV) Get(ctx context.Context, key string) ([]byte, bool) {
	var cur Cursor
	defer cur.Close()

	status, err := kv.conn.SelectOneRow(ctx, &cur, "SELECT expire,value FROM KeyValue WHERE key=?s", Text(key))
	if err != nil || status != StatusRows || !cur.Active() {
		return nil, false
	}

	expire := cur.Int(0)
	if expire != 0 && expire <= kv.conn.clock.Now().Unix() {
		cur.Close()
		kv.conn.Exec(ctx, "DELETE FROM KeyValue WHERE key=?s", Text(key))
		return nil, false
	}

	value := append([]byte{}, cur.Bytes(1)...)
	return value, true
}

// GetString is Get for string values.
func (kv KV) GetString(ctx context.Context, key string) (string, bool) {
	v, ok := kv.Get(ctx, key)
	return string(v), ok
}

// Del removes key. A missing key is not an error.
func (kv KV) Del(ctx context.Context, key string) {
	kv.conn.Exec(ctx, "DELETE FROM KeyValue WHERE key=?s", Text(key))
}

// Sweep deletes every expired key and returns how many were removed.
func (kv KV) Sweep(ctx context.Context) int64 {
	if !kv.conn.Exec(ctx, "DELETE FROM KeyValue WHERE expire != 0 AND expire <= ?i", Int(kv.conn.clock.Now().Unix())) {
		return 0
	}
	return kv.conn.SelectInt(ctx, "SELECT changes()")
}
