// Package main provides a CLI tool for seeding the database with demo data.
package main

import (
	"context"
	"fmt"
	"os"

	"fulfil/internal/core/id"
	"fulfil/internal/core/types"
	"fulfil/internal/infrastructure/storage/postgres"
	"fulfil/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("PG_DSN")
	if dbURL == "" {
		log.Fatal("PG_DSN environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := seedDemoOrder(ctx, pool, log); err != nil {
		log.Fatalw("failed to seed demo order", "error", err)
	}

	log.Info("seeding completed successfully")
}

// seedDemoOrder creates one order with a single line: 1000 kg of wheat,
// sellable as kg (base), 25 kg sacks and 1000 kg pallets.
func seedDemoOrder(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE number = 'ORD-2026-00001'`).Scan(&count); err != nil {
		return fmt.Errorf("check existing order: %w", err)
	}
	if count > 0 {
		log.Info("demo order already exists, skipping")
		return nil
	}

	orderID := id.New()
	lineID := id.New()
	productID := id.New()

	_, err := pool.Exec(ctx, `
		INSERT INTO orders (id, number, status, created_at, updated_at)
		VALUES ($1, 'ORD-2026-00001', 'CONFIRMED', NOW(), NOW())
	`, orderID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO order_line_items (
			id, order_id, line_no, product_id, product_name, product_code,
			quantity_ordered, quantity_shipped, base_unit,
			price_at_order, price_in_base_unit, vat_rate
		) VALUES ($1, $2, 1, $3, 'Wheat flour', 'WF-001', $4, 0, 'kg', 2.50, 2.50, '9')
	`, lineID, orderID, productID, types.NewQuantityFromFloat64(1000))
	if err != nil {
		return fmt.Errorf("insert order line: %w", err)
	}

	packaging := []struct {
		unit   string
		factor float64
	}{
		{"sac", 25},
		{"palet", 1000},
	}
	for i, p := range packaging {
		_, err = pool.Exec(ctx, `
			INSERT INTO order_line_packaging (order_line_item_id, position, unit_name, base_unit_equivalent)
			VALUES ($1, $2, $3, $4)
		`, lineID, i+1, p.unit, types.NewQuantityFromFloat64(p.factor))
		if err != nil {
			return fmt.Errorf("insert packaging option %s: %w", p.unit, err)
		}
	}

	log.Infow("demo order created",
		"order_id", orderID,
		"line_item_id", lineID,
		"ordered", "1000 kg",
	)
	return nil
}
