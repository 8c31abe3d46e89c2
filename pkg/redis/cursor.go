package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// CursorKey holds the last committed account-transaction-index id.
const CursorKey = "ati:latest"

// advanceScript sets KEYS[1] to ARGV[1] only when it is greater than the stored value.
// Both are canonical non-negative decimals, compared by length and then bytes;
// Lua numbers are doubles and lose precision above 2^53.
var advanceScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local candidate = ARGV[1]
if current == false or #candidate > #current or (#candidate == #current and candidate > current) then
	redis.call('SET', KEYS[1], candidate)
	return 1
end
return 0
`)

// Cursor is the committed catch-up position.
type Cursor struct {
	client *Client
	key    string
}

// NewCursor returns the cursor stored under CursorKey.
func NewCursor(client *Client) *Cursor {
	return &Cursor{client: client, key: CursorKey}
}

// Load returns the committed id; ok is false when nothing was ever committed.
func (c *Cursor) Load(ctx context.Context) (id int64, ok bool, err error) {
	id, err = c.client.client.Get(ctx, c.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get %s: %w", c.key, err)
	}
	return id, true, nil
}

// Commit advances the cursor to id. Lower or equal ids leave it unchanged,
// so the committed value never decreases. Reports whether it moved.
func (c *Cursor) Commit(ctx context.Context, id int64) (bool, error) {
	if id < 0 {
		return false, fmt.Errorf("commit %s=%d: negative index id", c.key, id)
	}
	moved, err := advanceScript.Run(ctx, c.client.client, []string{c.key}, strconv.FormatInt(id, 10)).Int()
	if err != nil {
		return false, fmt.Errorf("commit %s=%d: %w", c.key, id, err)
	}
	return moved == 1, nil
}
