package pg

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	"gitlab.com/distributed_lab/logan/v3/errors"

	"github.com/dutchx/reconciler-svc/internal/data"
)

// cursor is the decoded continuation token: the index it was produced by plus
// the last evaluated key. It is opaque to callers and fails closed when
// replayed against a different index.
type cursor struct {
	Index string            `json:"index"`
	Keys  map[string]string `json:"keys"`
}

func encodeCursor(ix index, last data.Order, f data.OrderFilters) string {
	keys := filterFields(f)
	keys[defaultSortField] = strconv.FormatUint(last.CreatedAt, 10)
	keys["orderHash"] = last.OrderHash

	raw, _ := json.Marshal(cursor{Index: ix.name(), Keys: keys})
	return base64.StdEncoding.EncodeToString(raw)
}

func decodeCursor(token string, ix index) (cursor, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return cursor{}, errors.Wrap(data.ErrInvalidCursor, "failed to decode cursor token")
	}

	var c cursor
	if err = json.Unmarshal(raw, &c); err != nil {
		return cursor{}, errors.Wrap(data.ErrInvalidCursor, "failed to unmarshal cursor")
	}
	if c.Index != ix.name() {
		return cursor{}, errors.Wrap(data.ErrInvalidCursor, "cursor was produced by a different index")
	}

	valid := make(map[string]struct{})
	for _, k := range ix.keyFields() {
		valid[k] = struct{}{}
	}
	for k := range c.Keys {
		if _, ok := valid[k]; !ok {
			return cursor{}, errors.Wrap(data.ErrInvalidCursor, "cursor key is not part of the index key set")
		}
	}
	if _, ok := c.Keys[defaultSortField]; !ok {
		return cursor{}, errors.Wrap(data.ErrInvalidCursor, "cursor is missing the sort key")
	}
	if _, ok := c.Keys["orderHash"]; !ok {
		return cursor{}, errors.Wrap(data.ErrInvalidCursor, "cursor is missing the primary key")
	}

	return c, nil
}
