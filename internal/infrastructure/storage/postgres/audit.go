package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"fulfil/internal/core/id"
	"fulfil/internal/domain/allocation"
)

// CompressionAlgo specifies the compression algorithm used for a payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// auditRow is the sys_audit row shape. Large payloads (a delivery snapshot
// with many lines) are stored zstd-compressed.
type auditRow struct {
	ID                id.ID           `db:"id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	Action            string          `db:"action"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// Compile-time check that AuditStore implements allocation.Auditor.
var _ allocation.Auditor = (*AuditStore)(nil)

// AuditStore records delivery change snapshots in sys_audit.
type AuditStore struct {
	txm     *TxManager
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	// compressThreshold is the payload size above which zstd kicks in.
	compressThreshold int
}

// NewAuditStore creates a new audit store.
func NewAuditStore(txm *TxManager) (*AuditStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditStore{
		txm:               txm,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// RecordChange implements allocation.Auditor.
func (s *AuditStore) RecordChange(ctx context.Context, entityName string, entityID id.ID, action string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	entry := auditRow{
		ID:         id.New(),
		EntityType: entityName,
		EntityID:   entityID,
		Action:     action,
		CreatedAt:  time.Now().UTC(),
	}
	entry.Payload, entry.PayloadCompressed, entry.CompressionAlgo = s.pack(raw)

	querier := s.txm.GetQuerier(ctx)
	_, err = querier.Exec(ctx, `
		INSERT INTO sys_audit (id, entity_type, entity_id, action, payload, payload_compressed, compression_algo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action,
		entry.Payload, entry.PayloadCompressed, entry.CompressionAlgo, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

// EntityHistory implements allocation.Auditor: the audit trail of one
// entity, newest first, payloads decompressed.
func (s *AuditStore) EntityHistory(ctx context.Context, entityName string, entityID id.ID, limit int) ([]allocation.AuditEntry, error) {
	rows, err := s.txm.GetQuerier(ctx).Query(ctx, `
		SELECT id, entity_type, entity_id, action, payload, payload_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, entityName, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []allocation.AuditEntry
	for rows.Next() {
		var row auditRow
		err := rows.Scan(
			&row.ID, &row.EntityType, &row.EntityID, &row.Action,
			&row.Payload, &row.PayloadCompressed, &row.CompressionAlgo, &row.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		payload, err := s.unpack(&row)
		if err != nil {
			return nil, err
		}

		entries = append(entries, allocation.AuditEntry{
			ID:        row.ID,
			Action:    row.Action,
			Payload:   payload,
			CreatedAt: row.CreatedAt,
		})
	}

	return entries, rows.Err()
}

// pack compresses a payload above the threshold, leaving small ones as-is.
func (s *AuditStore) pack(raw []byte) (json.RawMessage, []byte, CompressionAlgo) {
	if len(raw) > s.compressThreshold {
		return nil, s.encoder.EncodeAll(raw, nil), CompressionZstd
	}
	return raw, nil, CompressionNone
}

// unpack returns the row's payload, decompressing when needed.
func (s *AuditStore) unpack(row *auditRow) (json.RawMessage, error) {
	if row.CompressionAlgo == CompressionZstd && len(row.PayloadCompressed) > 0 {
		decompressed, err := s.decoder.DecodeAll(row.PayloadCompressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress payload: %w", err)
		}
		return decompressed, nil
	}
	return row.Payload, nil
}
