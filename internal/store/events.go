package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// InsertEvents appends decoded events for one block range. Events are
// append-only (spec.md §1's immutable log), so this is a plain insert with
// ON CONFLICT DO NOTHING to tolerate a replayed batch after a crash.
func (db *DB) InsertEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	const sql = `
		INSERT INTO events (chain_id, tx_hash, log_index, block_number, block_hash, address, event_name, topic0, data, args, derived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
	`

	batch := db.pool
	for _, ev := range events {
		args, err := marshalNullable(ev.Args)
		if err != nil {
			return fmt.Errorf("store: marshal event args: %w", err)
		}
		derived, err := json.Marshal(ev.Derived)
		if err != nil {
			return fmt.Errorf("store: marshal derived fields: %w", err)
		}
		if _, err := batch.Exec(ctx, sql,
			ev.ChainID, ev.TxHash, ev.LogIndex, ev.BlockNumber, ev.BlockHash,
			ev.Address, string(ev.EventName), ev.Topic0, ev.Data, args, derived,
		); err != nil {
			return fmt.Errorf("store: insert event chain=%d tx=%s log=%d: %w", ev.ChainID, ev.TxHash, ev.LogIndex, err)
		}
	}
	return nil
}

// EventsByTx loads every decoded event for one transaction, ordered by
// log_index — the shape dfg.Build expects.
func (db *DB) EventsByTx(ctx context.Context, chainID uint64, txHash string) ([]models.Event, error) {
	const sql = `
		SELECT log_index, block_number, block_hash, address, event_name, topic0, data, args, derived
		FROM events
		WHERE chain_id = $1 AND tx_hash = $2
		ORDER BY log_index ASC
	`
	rows, err := db.pool.Query(ctx, sql, chainID, txHash)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		var argsRaw, derivedRaw []byte
		var name string
		if err := rows.Scan(&ev.LogIndex, &ev.BlockNumber, &ev.BlockHash, &ev.Address, &name, &ev.Topic0, &ev.Data, &argsRaw, &derivedRaw); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		ev.ChainID = chainID
		ev.TxHash = txHash
		ev.EventName = models.EventName(name)
		if len(argsRaw) > 0 {
			if err := json.Unmarshal(argsRaw, &ev.Args); err != nil {
				return nil, fmt.Errorf("store: unmarshal event args: %w", err)
			}
		}
		if len(derivedRaw) > 0 {
			if err := json.Unmarshal(derivedRaw, &ev.Derived); err != nil {
				return nil, fmt.Errorf("store: unmarshal derived fields: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func marshalNullable(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
