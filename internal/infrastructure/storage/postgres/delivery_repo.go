package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"fulfil/internal/core/apperror"
	"fulfil/internal/core/id"
	"fulfil/internal/domain/delivery"
)

const (
	deliveriesTable    = "deliveries"
	deliveryLinesTable = "delivery_line_items"
)

var deliveryColumns = []string{
	"id", "version", "created_at", "updated_at",
	"number", "date", "comment",
	"order_id", "status",
	"requested_date", "requested_slots",
	"delivery_date", "delivery_slots",
	"notes", "uit_code",
}

var deliveryLineColumns = []string{
	"line_id", "line_no", "order_line_item_id",
	"product_id", "service_id", "product_name", "is_manual_entry",
	"unit_of_measure", "quantity", "quantity_in_base_unit",
	"price_at_order", "price_in_base_unit", "vat_rate",
}

// Compile-time check that DeliveryRepo implements delivery.Repository.
var _ delivery.Repository = (*DeliveryRepo)(nil)

// DeliveryRepo implements delivery.Repository on PostgreSQL.
// Queries run on the transaction bound to ctx when there is one.
type DeliveryRepo struct {
	txm *TxManager
}

// NewDeliveryRepo creates a new delivery repository.
func NewDeliveryRepo(txm *TxManager) *DeliveryRepo {
	return &DeliveryRepo{txm: txm}
}

func (r *DeliveryRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// GetByID retrieves a delivery with lines.
func (r *DeliveryRepo) GetByID(ctx context.Context, deliveryID id.ID) (*delivery.Delivery, error) {
	q := r.builder().
		Select(deliveryColumns...).
		From(deliveriesTable).
		Where(squirrel.Eq{"id": deliveryID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	var d delivery.Delivery
	if err := pgxscan.Get(ctx, querier, &d, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("delivery", deliveryID.String())
		}
		return nil, apperror.NewPersistence(fmt.Errorf("get delivery: %w", err))
	}

	lines, err := r.getLines(ctx, []id.ID{deliveryID})
	if err != nil {
		return nil, err
	}
	d.Items = lines[deliveryID]

	return &d, nil
}

// ListByOrder retrieves all deliveries of an order, cancelled ones included.
func (r *DeliveryRepo) ListByOrder(ctx context.Context, orderID id.ID) ([]*delivery.Delivery, error) {
	q := r.builder().
		Select(deliveryColumns...).
		From(deliveriesTable).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("created_at")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	var items []*delivery.Delivery
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, apperror.NewPersistence(fmt.Errorf("list deliveries: %w", err))
	}
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]id.ID, len(items))
	for i, d := range items {
		ids[i] = d.ID
	}
	lines, err := r.getLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, d := range items {
		d.Items = lines[d.ID]
	}

	return items, nil
}

// Create inserts a new delivery and its lines.
func (r *DeliveryRepo) Create(ctx context.Context, d *delivery.Delivery) error {
	q := r.builder().
		Insert(deliveriesTable).
		Columns(deliveryColumns...).
		Values(
			d.ID, d.Version, d.CreatedAt, d.UpdatedAt,
			d.Number, d.Date, d.Comment,
			d.OrderID, d.Status,
			d.RequestedDate, d.RequestedSlots,
			d.DeliveryDate, d.DeliverySlots,
			d.Notes, d.UITCode,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return apperror.NewPersistence(fmt.Errorf("insert delivery: %w", err))
	}

	return r.saveLines(ctx, d.ID, d.Items)
}

// Update rewrites the delivery header and lines with optimistic locking.
// d.Version must be the version that was read; the stored row advances it.
func (r *DeliveryRepo) Update(ctx context.Context, d *delivery.Delivery) error {
	q := r.builder().
		Update(deliveriesTable).
		Set("number", d.Number).
		Set("date", d.Date).
		Set("comment", d.Comment).
		Set("status", d.Status).
		Set("requested_date", d.RequestedDate).
		Set("requested_slots", d.RequestedSlots).
		Set("delivery_date", d.DeliveryDate).
		Set("delivery_slots", d.DeliverySlots).
		Set("notes", d.Notes).
		Set("uit_code", d.UITCode).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": d.ID}).
		Where(squirrel.Eq{"version": d.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewPersistence(fmt.Errorf("update delivery: %w", err))
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(deliveriesTable, d.ID)
	}
	d.Version++

	return r.saveLines(ctx, d.ID, d.Items)
}

// UpdateStatus persists a status change without touching lines.
func (r *DeliveryRepo) UpdateStatus(ctx context.Context, d *delivery.Delivery) error {
	q := r.builder().
		Update(deliveriesTable).
		Set("status", d.Status).
		Set("delivery_date", d.DeliveryDate).
		Set("delivery_slots", d.DeliverySlots).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": d.ID}).
		Where(squirrel.Eq{"version": d.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewPersistence(fmt.Errorf("update delivery status: %w", err))
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(deliveriesTable, d.ID)
	}
	d.Version++

	return nil
}

// getLines loads lines for the given deliveries, keyed by delivery id.
func (r *DeliveryRepo) getLines(ctx context.Context, deliveryIDs []id.ID) (map[id.ID][]delivery.LineItem, error) {
	cols := append([]string{"delivery_id"}, deliveryLineColumns...)
	q := r.builder().
		Select(cols...).
		From(deliveryLinesTable).
		Where(squirrel.Eq{"delivery_id": deliveryIDs}).
		OrderBy("delivery_id", "line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	type lineRow struct {
		DeliveryID id.ID `db:"delivery_id"`
		delivery.LineItem
	}

	querier := r.txm.GetQuerier(ctx)
	var rows []lineRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, apperror.NewPersistence(fmt.Errorf("get delivery lines: %w", err))
	}

	byDelivery := make(map[id.ID][]delivery.LineItem, len(deliveryIDs))
	for _, row := range rows {
		byDelivery[row.DeliveryID] = append(byDelivery[row.DeliveryID], row.LineItem)
	}
	return byDelivery, nil
}

// saveLines rewrites the lines of a delivery (delete existing + insert new).
func (r *DeliveryRepo) saveLines(ctx context.Context, deliveryID id.ID, lines []delivery.LineItem) error {
	querier := r.txm.GetQuerier(ctx)

	deleteSQL := "DELETE FROM " + deliveryLinesTable + " WHERE delivery_id = $1"
	if _, err := querier.Exec(ctx, deleteSQL, deliveryID); err != nil {
		return apperror.NewPersistence(fmt.Errorf("delete existing lines: %w", err))
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.builder().
		Insert(deliveryLinesTable).
		Columns(append([]string{"delivery_id"}, deliveryLineColumns...)...)

	for _, line := range lines {
		q = q.Values(
			deliveryID,
			line.LineID, line.LineNo, line.OrderLineItemID,
			line.ProductID, line.ServiceID, line.ProductName, line.IsManualEntry,
			line.UnitOfMeasure, line.Quantity, line.QuantityInBaseUnit,
			line.PriceAtOrder, line.PriceInBaseUnit, line.VATRate,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert lines: %w", err)
	}

	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return apperror.NewPersistence(fmt.Errorf("insert lines: %w", err))
	}

	return nil
}
