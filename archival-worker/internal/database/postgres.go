package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/aaronwang/lot-auction/shared/models"
)

// PostgresClient wraps the PostgreSQL database connection
type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(connStr string) (*PostgresClient, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresClient{db: db}, nil
}

// InitSchema creates the necessary database tables.
//
// Rows are an archive: deleted lots and bids are kept and marked with
// deleted_at. There are no foreign keys because events for a lot may arrive
// before the event that created it.
func (c *PostgresClient) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS lots (
		id VARCHAR(64) PRIMARY KEY,
		title VARCHAR(255) NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		images TEXT[] NOT NULL DEFAULT '{}',
		category VARCHAR(64) NOT NULL DEFAULT 'OTHER',
		starting_price NUMERIC(14, 2) NOT NULL DEFAULT 0,
		current_price NUMERIC(14, 2) NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL,
		seller_id VARCHAR(255) NOT NULL DEFAULT '',
		start_time TIMESTAMPTZ,
		end_time TIMESTAMPTZ,
		version BIGINT NOT NULL,
		deleted_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bids (
		id VARCHAR(64) PRIMARY KEY,
		lot_id VARCHAR(64) NOT NULL,
		bidder_id VARCHAR(255) NOT NULL,
		amount NUMERIC(14, 2) NOT NULL,
		seq BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		type VARCHAR(32) NOT NULL,
		message TEXT NOT NULL,
		lot_id VARCHAR(64),
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bids_lot_id ON bids(lot_id);
	CREATE INDEX IF NOT EXISTS idx_bids_bidder_id ON bids(bidder_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications(user_id, created_at DESC);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// ApplyLotEvent folds one lot event into the archive. Lot rows only move
// forward: an event whose Seq is not newer than the stored version leaves
// the row alone, so redelivered and out-of-order events are harmless.
func (c *PostgresClient) ApplyLotEvent(ctx context.Context, event *models.LotEvent) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	switch event.Type {
	case models.LotEventBidPlaced:
		if event.Bid != nil {
			if err := insertBid(ctx, tx, event.Bid); err != nil {
				return err
			}
		}
	case models.LotEventBidDeleted:
		if event.Bid != nil {
			if err := markBidDeleted(ctx, tx, event.Bid.ID, event.Timestamp); err != nil {
				return err
			}
		}
	}

	if event.Lot != nil {
		err = upsertLot(ctx, tx, event.Lot, event.Seq)
	} else {
		err = advanceLot(ctx, tx, event)
	}
	if err != nil {
		return err
	}

	if event.Type == models.LotEventDeleted {
		if _, err := tx.ExecContext(ctx,
			`UPDATE lots SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
			event.LotID, event.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to mark lot deleted: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE bids SET deleted_at = $2 WHERE lot_id = $1 AND deleted_at IS NULL`,
			event.LotID, event.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to mark bids deleted: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit lot event: %w", err)
	}
	return nil
}

func insertBid(ctx context.Context, tx *sql.Tx, bid *models.Bid) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bids (id, lot_id, bidder_id, amount, seq, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		bid.ID, bid.LotID, bid.BidderID, bid.Amount, bid.Seq, bid.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

func markBidDeleted(ctx context.Context, tx *sql.Tx, bidID string, at time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE bids SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		bidID, at,
	); err != nil {
		return fmt.Errorf("failed to mark bid deleted: %w", err)
	}
	return nil
}

// upsertLot writes the full lot carried by creation and status events. The
// descriptive columns never change after creation and are always written;
// price and status follow the version rule.
func upsertLot(ctx context.Context, tx *sql.Tx, lot *models.Lot, version int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO lots (id, title, description, images, category, starting_price, current_price,
			status, seller_id, start_time, end_time, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			images = EXCLUDED.images,
			category = EXCLUDED.category,
			starting_price = EXCLUDED.starting_price,
			seller_id = EXCLUDED.seller_id,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			current_price = CASE WHEN lots.version < EXCLUDED.version THEN EXCLUDED.current_price ELSE lots.current_price END,
			status = CASE WHEN lots.version < EXCLUDED.version THEN EXCLUDED.status ELSE lots.status END,
			updated_at = CASE WHEN lots.version < EXCLUDED.version THEN EXCLUDED.updated_at ELSE lots.updated_at END,
			version = GREATEST(lots.version, EXCLUDED.version)`,
		lot.ID, lot.Title, lot.Description, pq.Array(lot.Images), string(lot.Category),
		lot.StartingPrice, lot.CurrentPrice, string(lot.Status), lot.SellerID,
		lot.StartTime, lot.EndTime, version, lot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert lot: %w", err)
	}
	return nil
}

// advanceLot applies the price and status carried by bid and deletion
// events. A lot not archived yet gets a placeholder row that its creation
// event fills in later.
func advanceLot(ctx context.Context, tx *sql.Tx, event *models.LotEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO lots (id, current_price, status, version, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			current_price = EXCLUDED.current_price,
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE lots.version < EXCLUDED.version`,
		event.LotID, event.NewPrice, string(event.Status), event.Seq, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to update lot: %w", err)
	}
	return nil
}

// InsertNotification stores a notification in the user's inbox
func (c *PostgresClient) InsertNotification(ctx context.Context, n *models.Notification) error {
	var lotID sql.NullString
	if n.LotID != "" {
		lotID = sql.NullString{String: n.LotID, Valid: true}
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, message, lot_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, string(n.Type), n.Message, lotID, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	return c.db.Close()
}
