package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// insertModification добавляет запись журнала изменений и возвращает её ID.
// Журнал только дополняется: UPDATE/DELETE по order_modifications не выполняются.
func insertModification(ctx context.Context, db execer, rec domain.ModificationRecord) (int64, error) {
	before, err := json.Marshal(snapshotOrEmpty(rec.Before))
	if err != nil {
		return 0, fmt.Errorf("marshal before snapshot: %w", err)
	}
	after, err := json.Marshal(snapshotOrEmpty(rec.After))
	if err != nil {
		return 0, fmt.Errorf("marshal after snapshot: %w", err)
	}

	var id int64
	if err := db.QueryRowContext(ctx, `
		INSERT INTO order_modifications (
			order_id, actor_id, actor_name, reason, before_snapshot, after_snapshot, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`,
		rec.OrderID, rec.Actor.ID, rec.Actor.Name, rec.Reason, string(before), string(after), rec.At.UTC(),
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert order modification: %w", err)
	}
	return id, nil
}

func listModifications(ctx context.Context, db execer, orderID int64) ([]domain.ModificationRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, order_id, actor_id, actor_name, reason, before_snapshot, after_snapshot, occurred_at
		FROM order_modifications
		WHERE order_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order modifications: %w", err)
	}
	defer rows.Close()

	records := make([]domain.ModificationRecord, 0)
	for rows.Next() {
		var (
			rec           domain.ModificationRecord
			before, after []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.OrderID, &rec.Actor.ID, &rec.Actor.Name, &rec.Reason, &before, &after, &rec.At,
		); err != nil {
			return nil, fmt.Errorf("scan order modification: %w", err)
		}
		if err := json.Unmarshal(before, &rec.Before); err != nil {
			return nil, fmt.Errorf("decode before snapshot %d: %w", rec.ID, err)
		}
		if err := json.Unmarshal(after, &rec.After); err != nil {
			return nil, fmt.Errorf("decode after snapshot %d: %w", rec.ID, err)
		}
		rec.At = rec.At.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order modifications: %w", err)
	}
	return records, nil
}

func snapshotOrEmpty(s domain.Snapshot) domain.Snapshot {
	if s == nil {
		return domain.Snapshot{}
	}
	return s
}
