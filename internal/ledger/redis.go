package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"docsign/pkg/platform/sentinel"
)

const (
	streamKey   = "ledger:entries"
	sequenceKey = "ledger:seq"
	lastHashKey = "ledger:lasthash"
)

// RedisLedger records attestations in a Redis stream. XADD is append-only
// at the server, which gives the immutability guarantee; the sequence
// counter and hash chain are maintained alongside the stream.
type RedisLedger struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedisLedger(client *redis.Client, timeout time.Duration) *RedisLedger {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RedisLedger{client: client, timeout: timeout}
}

// appendScript allocates a sequence number, chains the content hash and
// appends the entry in one atomic server-side step. KEYS: seq, lasthash,
// stream. ARGV: entityType, entityID, payloadHash, submitter, recordedAt
// (RFC3339Nano), unixNano. Returns {seq, hash, streamID}.
var appendScript = redis.NewScript(`
local seq = redis.call("INCR", KEYS[1])
local prev = redis.call("GET", KEYS[2]) or ""
local material = prev .. "|" .. seq .. "|" .. ARGV[1] .. "|" .. ARGV[2] .. "|" .. ARGV[3] .. "|" .. ARGV[4] .. "|" .. ARGV[6]
local hash = redis.sha1hex(material)
redis.call("SET", KEYS[2], hash)
local id = redis.call("XADD", KEYS[3], "*",
    "seq", seq,
    "entityType", ARGV[1],
    "entityId", ARGV[2],
    "payloadHash", ARGV[3],
    "submitter", ARGV[4],
    "contentHash", hash,
    "recordedAt", ARGV[5])
return {seq, hash, id}
`)

func (l *RedisLedger) Append(ctx context.Context, entry Entry) (Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	now := time.Now().UTC()
	res, err := appendScript.Run(ctx, l.client,
		[]string{sequenceKey, lastHashKey, streamKey},
		string(entry.EntityType), entry.EntityID, entry.PayloadHash, entry.Submitter,
		now.Format(time.RFC3339Nano), strconv.FormatInt(now.UnixNano(), 10),
	).Slice()
	if err != nil {
		return Receipt{}, fmt.Errorf("ledger append: %w: %v", sentinel.ErrUnavailable, err)
	}
	if len(res) != 3 {
		return Receipt{}, fmt.Errorf("ledger append: %w: unexpected script reply", sentinel.ErrUnavailable)
	}

	seq, _ := res[0].(int64)
	hash, _ := res[1].(string)
	streamID, _ := res[2].(string)

	return Receipt{
		ReceiptID:   streamID,
		Sequence:    uint64(seq),
		ContentHash: hash,
		RecordedAt:  now,
	}, nil
}

func (l *RedisLedger) Find(ctx context.Context, entityType EntityType, entityID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	msgs, err := l.client.XRange(ctx, streamKey, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("ledger find: %w: %v", sentinel.ErrUnavailable, err)
	}

	var out []Record
	for _, m := range msgs {
		if str(m.Values, "entityType") != string(entityType) || str(m.Values, "entityId") != entityID {
			continue
		}
		seq, _ := strconv.ParseUint(str(m.Values, "seq"), 10, 64)
		at, _ := time.Parse(time.RFC3339Nano, str(m.Values, "recordedAt"))
		out = append(out, Record{
			Entry: Entry{
				EntityType:  entityType,
				EntityID:    entityID,
				PayloadHash: str(m.Values, "payloadHash"),
				Submitter:   str(m.Values, "submitter"),
			},
			Receipt: Receipt{
				ReceiptID:   m.ID,
				Sequence:    seq,
				ContentHash: str(m.Values, "contentHash"),
				RecordedAt:  at,
			},
		})
	}
	return out, nil
}

func str(values map[string]interface{}, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}
