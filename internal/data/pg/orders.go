package pg

import (
	"database/sql"
	"encoding/json"
	"strconv"

	"github.com/Masterminds/squirrel"
	"github.com/fatih/structs"
	"gitlab.com/distributed_lab/kit/pgdb"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"

	"github.com/dutchx/reconciler-svc/internal/data"
)

const (
	ordersTable = "orders"
	noncesTable = "nonces"

	// batchGetLimit bounds a batch point lookup; deleteBatchSize matches the
	// store's batch-write limit.
	batchGetLimit   = 100
	deleteBatchSize = 25
)

type orders struct {
	db *pgdb.DB
}

func NewOrders(db *pgdb.DB) data.Orders {
	return &orders{db: db}
}

type orderRow struct {
	OrderHash    string `structs:"order_hash" db:"order_hash"`
	ChainID      uint64 `structs:"chain_id" db:"chain_id"`
	Type         string `structs:"type" db:"type"`
	EncodedOrder string `structs:"encoded_order" db:"encoded_order"`
	Signature    string `structs:"signature" db:"signature"`
	OrderStatus  string `structs:"order_status" db:"order_status"`

	Offerer        string `structs:"offerer" db:"offerer"`
	Filler         string `structs:"filler" db:"filler"`
	Nonce          string `structs:"nonce" db:"nonce"`
	Deadline       uint64 `structs:"deadline" db:"deadline"`
	DecayStartTime uint64 `structs:"decay_start_time" db:"decay_start_time"`
	DecayEndTime   uint64 `structs:"decay_end_time" db:"decay_end_time"`
	Input          string `structs:"input" db:"input"`
	Outputs        string `structs:"outputs" db:"outputs"`

	TxHash         string         `structs:"tx_hash" db:"tx_hash"`
	FillBlock      uint64         `structs:"fill_block" db:"fill_block"`
	SettledAmounts sql.NullString `structs:"settled_amounts,omitnested" db:"settled_amounts"`

	CreatedAt uint64 `structs:"created_at" db:"created_at"`

	// Denormalized compound index columns, recomputed on every status write.
	OffererOrderStatus       string `structs:"offerer_order_status" db:"offerer_order_status"`
	FillerOrderStatus        string `structs:"filler_order_status" db:"filler_order_status"`
	FillerOfferer            string `structs:"filler_offerer" db:"filler_offerer"`
	FillerOffererOrderStatus string `structs:"filler_offerer_order_status" db:"filler_offerer_order_status"`
	ChainIDFiller            string `structs:"chain_id_filler" db:"chain_id_filler"`
	ChainIDOrderStatus       string `structs:"chain_id_order_status" db:"chain_id_order_status"`
	ChainIDOrderStatusFiller string `structs:"chain_id_order_status_filler" db:"chain_id_order_status_filler"`
}

// indexColumns derives the compound index column values for the given
// identity fields. Called on insert and on every status write so the columns
// never drift from the row.
func indexColumns(chainID uint64, status data.OrderStatus, offerer, filler string) map[string]interface{} {
	chain := strconv.FormatUint(chainID, 10)
	st := string(status)
	return map[string]interface{}{
		"offerer_order_status":         offerer + "_" + st,
		"filler_order_status":          filler + "_" + st,
		"filler_offerer":               filler + "_" + offerer,
		"filler_offerer_order_status":  filler + "_" + offerer + "_" + st,
		"chain_id_filler":              chain + "_" + filler,
		"chain_id_order_status":        chain + "_" + st,
		"chain_id_order_status_filler": chain + "_" + st + "_" + filler,
	}
}

func toRow(o data.Order) (orderRow, error) {
	input, err := json.Marshal(o.Input)
	if err != nil {
		return orderRow{}, errors.Wrap(err, "failed to marshal order input")
	}
	outputs, err := json.Marshal(o.Outputs)
	if err != nil {
		return orderRow{}, errors.Wrap(err, "failed to marshal order outputs")
	}

	row := orderRow{
		OrderHash:      o.OrderHash,
		ChainID:        o.ChainID,
		Type:           string(o.Type),
		EncodedOrder:   o.EncodedOrder,
		Signature:      o.Signature,
		OrderStatus:    string(o.OrderStatus),
		Offerer:        o.Offerer,
		Filler:         o.Filler,
		Nonce:          o.Nonce,
		Deadline:       o.Deadline,
		DecayStartTime: o.DecayStartTime,
		DecayEndTime:   o.DecayEndTime,
		Input:          string(input),
		Outputs:        string(outputs),
		TxHash:         o.TxHash,
		FillBlock:      o.FillBlock,
		CreatedAt:      o.CreatedAt,
	}
	if o.SettledAmounts != nil {
		settled, err := json.Marshal(o.SettledAmounts)
		if err != nil {
			return orderRow{}, errors.Wrap(err, "failed to marshal settled amounts")
		}
		row.SettledAmounts = sql.NullString{String: string(settled), Valid: true}
	}

	derived := indexColumns(o.ChainID, o.OrderStatus, o.Offerer, o.Filler)
	row.OffererOrderStatus = derived["offerer_order_status"].(string)
	row.FillerOrderStatus = derived["filler_order_status"].(string)
	row.FillerOfferer = derived["filler_offerer"].(string)
	row.FillerOffererOrderStatus = derived["filler_offerer_order_status"].(string)
	row.ChainIDFiller = derived["chain_id_filler"].(string)
	row.ChainIDOrderStatus = derived["chain_id_order_status"].(string)
	row.ChainIDOrderStatusFiller = derived["chain_id_order_status_filler"].(string)

	return row, nil
}

func fromRow(r orderRow) (data.Order, error) {
	o := data.Order{
		OrderHash:      r.OrderHash,
		ChainID:        r.ChainID,
		Type:           data.OrderType(r.Type),
		EncodedOrder:   r.EncodedOrder,
		Signature:      r.Signature,
		OrderStatus:    data.OrderStatus(r.OrderStatus),
		Offerer:        r.Offerer,
		Filler:         r.Filler,
		Nonce:          r.Nonce,
		Deadline:       r.Deadline,
		DecayStartTime: r.DecayStartTime,
		DecayEndTime:   r.DecayEndTime,
		TxHash:         r.TxHash,
		FillBlock:      r.FillBlock,
		CreatedAt:      r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.Input), &o.Input); err != nil {
		return o, errors.Wrap(err, "failed to unmarshal order input")
	}
	if err := json.Unmarshal([]byte(r.Outputs), &o.Outputs); err != nil {
		return o, errors.Wrap(err, "failed to unmarshal order outputs")
	}
	if r.SettledAmounts.Valid {
		if err := json.Unmarshal([]byte(r.SettledAmounts.String), &o.SettledAmounts); err != nil {
			return o, errors.Wrap(err, "failed to unmarshal settled amounts")
		}
	}
	return o, nil
}

func (q *orders) GetByHash(hash string) (*data.Order, error) {
	var row orderRow
	stmt := squirrel.Select("*").From(ordersTable).Where(squirrel.Eq{"order_hash": hash})
	if err := q.db.Get(&row, stmt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to select order by hash")
	}

	o, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (q *orders) GetOrders(limit uint64, f data.OrderFilters, token string) (data.QueryResult, error) {
	if limit == 0 || limit > data.MaxQueryLimit {
		limit = data.MaxQueryLimit
	}

	if f.OrderHash != nil {
		o, err := q.GetByHash(*f.OrderHash)
		if err != nil || o == nil {
			return data.QueryResult{}, err
		}
		return data.QueryResult{Orders: []data.Order{*o}}, nil
	}
	if len(f.OrderHashes) > 0 {
		return q.getByHashes(f.OrderHashes)
	}

	ix, err := selectIndex(f)
	if err != nil {
		return data.QueryResult{}, err
	}

	stmt := squirrel.Select("*").From(ordersTable).
		Where(squirrel.Eq{ix.column(): compoundValue(ix, f)})

	cmp, ord := ">", "ASC"
	if f.Desc {
		cmp, ord = "<", "DESC"
	}
	if token != "" {
		c, err := decodeCursor(token, ix)
		if err != nil {
			return data.QueryResult{}, err
		}
		createdAt, err := strconv.ParseUint(c.Keys[defaultSortField], 10, 64)
		if err != nil {
			return data.QueryResult{}, errors.Wrap(data.ErrInvalidCursor, "cursor sort key is not an integer")
		}
		stmt = stmt.Where("(created_at, order_hash) "+cmp+" (?, ?)", createdAt, c.Keys["orderHash"])
	}
	stmt = stmt.OrderBy("created_at "+ord, "order_hash "+ord).Limit(limit)

	var rows []orderRow
	if err = q.db.Select(&rows, stmt); err != nil {
		return data.QueryResult{}, errors.Wrap(err, "failed to select orders", logan.F{"index": ix.name()})
	}

	result := data.QueryResult{Orders: make([]data.Order, 0, len(rows))}
	for _, r := range rows {
		o, err := fromRow(r)
		if err != nil {
			return data.QueryResult{}, err
		}
		result.Orders = append(result.Orders, o)
	}
	if uint64(len(result.Orders)) == limit {
		result.Cursor = encodeCursor(ix, result.Orders[len(result.Orders)-1], f)
	}
	return result, nil
}

func (q *orders) getByHashes(hashes []string) (data.QueryResult, error) {
	if len(hashes) > batchGetLimit {
		return data.QueryResult{}, errors.Errorf("batch lookup exceeds the %d hash limit", batchGetLimit)
	}

	var rows []orderRow
	stmt := squirrel.Select("*").From(ordersTable).Where(squirrel.Eq{"order_hash": hashes})
	if err := q.db.Select(&rows, stmt); err != nil {
		return data.QueryResult{}, errors.Wrap(err, "failed to select orders by hashes")
	}

	result := data.QueryResult{Orders: make([]data.Order, 0, len(rows))}
	for _, r := range rows {
		o, err := fromRow(r)
		if err != nil {
			return data.QueryResult{}, err
		}
		result.Orders = append(result.Orders, o)
	}
	return result, nil
}

// PutOrderAndUpdateNonce writes the order row and advances the per-(offerer,
// chain) nonce watermark in a single transaction, so an order never exists
// without its nonce being recorded.
func (q *orders) PutOrderAndUpdateNonce(order data.Order) error {
	row, err := toRow(order)
	if err != nil {
		return err
	}

	return q.db.Transaction(func() error {
		if err := q.db.Exec(squirrel.Insert(ordersTable).SetMap(structs.Map(row))); err != nil {
			return errors.Wrap(err, "failed to insert order")
		}

		stmt := squirrel.Insert(noncesTable).
			SetMap(map[string]interface{}{
				"offerer":  order.Offerer,
				"chain_id": order.ChainID,
				"nonce":    order.Nonce,
			}).
			Suffix("ON CONFLICT (offerer, chain_id) DO UPDATE SET nonce = EXCLUDED.nonce")
		if err := q.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "failed to update nonce watermark")
		}
		return nil
	})
}

// UpdateOrderStatus applies a staged transition. Terminal statuses are final:
// the checker and the reaper run as separate processes with this repository as
// their only synchronization point, so the update is guarded both by the read
// below and by the WHERE clause, which loses any race against a concurrent
// terminal write.
func (q *orders) UpdateOrderStatus(hash string, upd data.OrderUpdate) error {
	existing, err := q.GetByHash(hash)
	if err != nil {
		return err
	}
	if existing == nil {
		return data.ErrOrderNotFound
	}
	if existing.OrderStatus.Terminal() {
		return nil
	}

	filler := existing.Filler
	if upd.Filler != "" {
		filler = upd.Filler
	}

	set := indexColumns(existing.ChainID, upd.OrderStatus, existing.Offerer, filler)
	set["order_status"] = string(upd.OrderStatus)
	if upd.Filler != "" {
		set["filler"] = upd.Filler
	}
	if upd.TxHash != "" {
		set["tx_hash"] = upd.TxHash
		set["fill_block"] = upd.FillBlock
	}
	if upd.SettledAmounts != nil {
		settled, err := json.Marshal(upd.SettledAmounts)
		if err != nil {
			return errors.Wrap(err, "failed to marshal settled amounts")
		}
		set["settled_amounts"] = string(settled)
	}

	stmt := squirrel.Update(ordersTable).SetMap(set).
		Where(squirrel.Eq{"order_hash": hash, "order_status": string(data.StatusOpen)})
	return errors.Wrap(q.db.Exec(stmt), "failed to update order status")
}

func (q *orders) CountByOffererAndStatus(offerer string, status data.OrderStatus) (uint64, error) {
	var result struct {
		Count uint64 `db:"count"`
	}
	stmt := squirrel.Select("count(*) AS count").From(ordersTable).
		Where(squirrel.Eq{"offerer_order_status": offerer + "_" + string(status)})
	if err := q.db.Get(&result, stmt); err != nil {
		return 0, errors.Wrap(err, "failed to count orders")
	}
	return result.Count, nil
}

// DeleteOrders removes the rows in store-sized batches. Best effort: a failed
// batch does not stop the remaining ones, the first error is reported.
func (q *orders) DeleteOrders(hashes []string) error {
	var firstErr error
	for start := 0; start < len(hashes); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(hashes) {
			end = len(hashes)
		}

		stmt := squirrel.Delete(ordersTable).Where(squirrel.Eq{"order_hash": hashes[start:end]})
		if err := q.db.Exec(stmt); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "failed to delete orders batch")
		}
	}
	return firstErr
}
