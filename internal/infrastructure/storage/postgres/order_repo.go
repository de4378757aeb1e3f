package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"fulfil/internal/core/apperror"
	"fulfil/internal/core/id"
	"fulfil/internal/domain/order"
)

const (
	ordersTable         = "orders"
	orderLinesTable     = "order_line_items"
	orderPackagingTable = "order_line_packaging"
)

// Compile-time check that OrderRepo implements order.Repository.
var _ order.Repository = (*OrderRepo)(nil)

// OrderRepo implements the read-only order.Repository on PostgreSQL.
// Orders and their counters are owned by the order system; nothing here writes.
type OrderRepo struct {
	txm *TxManager
}

// NewOrderRepo creates a new order repository.
func NewOrderRepo(txm *TxManager) *OrderRepo {
	return &OrderRepo{txm: txm}
}

func (r *OrderRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// GetByID retrieves an order with all line items and packaging options.
func (r *OrderRepo) GetByID(ctx context.Context, orderID id.ID) (*order.Order, error) {
	q := r.builder().
		Select("id", "number", "status").
		From(ordersTable).
		Where(squirrel.Eq{"id": orderID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	var ord order.Order
	if err := pgxscan.Get(ctx, querier, &ord, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("order", orderID.String())
		}
		return nil, apperror.NewPersistence(fmt.Errorf("get order: %w", err))
	}

	if err := r.loadLineItems(ctx, &ord); err != nil {
		return nil, err
	}

	return &ord, nil
}

func (r *OrderRepo) loadLineItems(ctx context.Context, ord *order.Order) error {
	q := r.builder().
		Select(
			"id", "product_id", "service_id", "product_name", "product_code",
			"quantity_ordered", "quantity_shipped", "base_unit",
			"price_at_order", "price_in_base_unit", "vat_rate",
		).
		From(orderLinesTable).
		Where(squirrel.Eq{"order_id": ord.ID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &ord.LineItems, sql, args...); err != nil {
		return apperror.NewPersistence(fmt.Errorf("get order lines: %w", err))
	}
	if len(ord.LineItems) == 0 {
		return nil
	}

	lineIDs := make([]id.ID, len(ord.LineItems))
	byLine := make(map[id.ID]*order.LineItem, len(ord.LineItems))
	for i := range ord.LineItems {
		lineIDs[i] = ord.LineItems[i].ID
		byLine[ord.LineItems[i].ID] = &ord.LineItems[i]
	}

	pq := r.builder().
		Select("order_line_item_id", "unit_name", "base_unit_equivalent").
		From(orderPackagingTable).
		Where(squirrel.Eq{"order_line_item_id": lineIDs}).
		OrderBy("order_line_item_id", "position")

	sql, args, err = pq.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	type packagingRow struct {
		OrderLineItemID id.ID `db:"order_line_item_id"`
		order.PackagingOption
	}
	var rows []packagingRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return apperror.NewPersistence(fmt.Errorf("get packaging options: %w", err))
	}

	for _, row := range rows {
		if line, ok := byLine[row.OrderLineItemID]; ok {
			line.PackagingOptions = append(line.PackagingOptions, row.PackagingOption)
		}
	}

	return nil
}
