package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agromart/internal/model"
)

// Store provides Postgres persistence for the event log and the
// marketplace read model. It implements storage.EventStore and
// storage.ReadModel.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS contract_events (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	contract_address TEXT NOT NULL,
	tx_hash TEXT NOT NULL,
	block_number BIGINT NOT NULL,
	log_index BIGINT NOT NULL,
	payload JSONB NOT NULL,
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	process_note TEXT NOT NULL DEFAULT '',
	processed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tx_hash, log_index)
);
CREATE INDEX IF NOT EXISTS contract_events_unprocessed_idx
	ON contract_events (block_number, log_index) WHERE NOT processed;

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS listings (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	price_cents BIGINT NOT NULL,
	currency TEXT NOT NULL,
	quantity BIGINT NOT NULL,
	seller_id TEXT NOT NULL REFERENCES users(id),
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	buyer_id TEXT NOT NULL REFERENCES users(id),
	listing_id TEXT NOT NULL REFERENCES listings(id),
	status TEXT NOT NULL,
	amount_cents BIGINT NOT NULL,
	currency TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	tx_hash TEXT NOT NULL,
	log_index BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tx_hash, log_index)
);
`

// Migrate applies the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// AppendEvent inserts an observed event; duplicate (tx_hash, log_index)
// observations are dropped by the unique constraint.
func (s *Store) AppendEvent(ctx context.Context, event model.ContractEvent) (bool, error) {
	payload, err := event.PayloadJSON()
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO contract_events (
			id, kind, contract_address, tx_hash, block_number, log_index, payload, processed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, now())
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`,
		event.ID,
		string(event.Kind),
		event.ContractAddress,
		event.TxHash,
		int64(event.BlockNumber),
		int64(event.LogIndex),
		payload,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) EventByKey(ctx context.Context, txHash string, logIndex uint64) (model.ContractEvent, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, kind, contract_address, tx_hash, block_number, log_index,
		       payload, processed, process_note, processed_at, created_at
		FROM contract_events
		WHERE tx_hash = $1 AND log_index = $2
	`, txHash, int64(logIndex))

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ContractEvent{}, false, nil
		}
		return model.ContractEvent{}, false, err
	}
	return event, true, nil
}

func (s *Store) UnprocessedEvents(ctx context.Context) ([]model.ContractEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, contract_address, tx_hash, block_number, log_index,
		       payload, processed, process_note, processed_at, created_at
		FROM contract_events
		WHERE NOT processed
		ORDER BY block_number ASC, log_index ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ContractEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *Store) MarkProcessed(ctx context.Context, id string, note string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE contract_events
		SET processed = TRUE, process_note = $2, processed_at = now()
		WHERE id = $1 AND NOT processed
	`, id, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Already processed, or unknown. Unknown is a caller bug; already
		// processed is the idempotent no-op path.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM contract_events WHERE id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("event %s not found", id)
		}
	}
	return nil
}

func (s *Store) LastProcessedBlock(ctx context.Context) (uint64, bool, error) {
	var block *int64
	row := s.pool.QueryRow(ctx, `SELECT MAX(block_number) FROM contract_events WHERE processed`)
	if err := row.Scan(&block); err != nil {
		return 0, false, err
	}
	if block == nil {
		return 0, false, nil
	}
	return uint64(*block), true, nil
}

func (s *Store) UpsertUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, wallet_address, name, role, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (wallet_address)
		DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role
	`, user.ID, user.WalletAddress, user.Name, user.Role)
	return err
}

func (s *Store) UserByWallet(ctx context.Context, wallet string) (model.User, bool, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, wallet_address, name, role, created_at FROM users WHERE wallet_address = $1
	`, wallet)
	if err := row.Scan(&user.ID, &user.WalletAddress, &user.Name, &user.Role, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, false, nil
		}
		return model.User{}, false, err
	}
	return user, true, nil
}

func (s *Store) UpsertListing(ctx context.Context, listing model.Listing) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO listings (
			id, product_id, title, price_cents, currency, quantity, seller_id,
			is_active, is_verified, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (product_id)
		DO UPDATE SET
			title = EXCLUDED.title,
			price_cents = EXCLUDED.price_cents,
			quantity = EXCLUDED.quantity,
			is_active = EXCLUDED.is_active,
			is_verified = EXCLUDED.is_verified,
			updated_at = now()
	`,
		listing.ID,
		listing.ProductID,
		listing.Title,
		listing.PriceCents,
		listing.Currency,
		listing.Quantity,
		listing.SellerID,
		listing.IsActive,
		listing.IsVerified,
	)
	return err
}

func (s *Store) ListingByProductID(ctx context.Context, productID string) (model.Listing, bool, error) {
	var listing model.Listing
	row := s.pool.QueryRow(ctx, `
		SELECT id, product_id, title, price_cents, currency, quantity, seller_id,
		       is_active, is_verified, created_at, updated_at
		FROM listings WHERE product_id = $1
	`, productID)
	err := row.Scan(
		&listing.ID,
		&listing.ProductID,
		&listing.Title,
		&listing.PriceCents,
		&listing.Currency,
		&listing.Quantity,
		&listing.SellerID,
		&listing.IsActive,
		&listing.IsVerified,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Listing{}, false, nil
		}
		return model.Listing{}, false, err
	}
	return listing, true, nil
}

func (s *Store) UpsertOrder(ctx context.Context, order model.Order) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (
			id, buyer_id, listing_id, status, amount_cents, currency, notes,
			tx_hash, log_index, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`,
		order.ID,
		order.BuyerID,
		order.ListingID,
		string(order.Status),
		order.AmountCents,
		order.Currency,
		order.Notes,
		order.TxHash,
		int64(order.LogIndex),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (model.ContractEvent, error) {
	var (
		event   model.ContractEvent
		kind    string
		payload []byte
	)
	err := row.Scan(
		&event.ID,
		&kind,
		&event.ContractAddress,
		&event.TxHash,
		&event.BlockNumber,
		&event.LogIndex,
		&payload,
		&event.Processed,
		&event.ProcessNote,
		&event.ProcessedAt,
		&event.CreatedAt,
	)
	if err != nil {
		return model.ContractEvent{}, err
	}

	event.Kind = model.EventKind(kind)
	decoded, err := model.DecodePayload(event.Kind, payload)
	if err != nil {
		return model.ContractEvent{}, err
	}
	event.Payload = decoded
	return event, nil
}
