package portfolio

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/advisor/internal/database"
	"github.com/aristath/advisor/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Repository persists client mandates and holdings in portfolio.db
type Repository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Save writes the mandate and replaces the client's holdings in one transaction
func (r *Repository) Save(p domain.Portfolio) error {
	var target sql.NullString
	if p.HasTarget() {
		b, err := json.Marshal(p.Target)
		if err != nil {
			return fmt.Errorf("failed to encode target: %w", err)
		}
		target = sql.NullString{String: string(b), Valid: true}
	}
	now := r.now().Unix()

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO clients (client_id, risk_category, subscore, horizon, target, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(client_id) DO UPDATE SET
				risk_category = excluded.risk_category,
				subscore = excluded.subscore,
				horizon = excluded.horizon,
				target = excluded.target,
				updated_at = excluded.updated_at`,
			p.ClientID, p.Category.String(), p.Subscore, p.Horizon.String(), target, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert client: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM holdings WHERE client_id = ?", p.ClientID); err != nil {
			return fmt.Errorf("failed to clear holdings: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO holdings (client_id, holding_id, name, asset_class, sector, cap_size, market_value, quantity)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare holding insert: %w", err)
		}
		defer stmt.Close()

		for _, h := range p.Holdings {
			if _, err := stmt.Exec(p.ClientID, h.ID, h.Name, h.Class.String(), h.Sector,
				h.CapSize.String(), h.MarketValue.String(), h.Quantity.String()); err != nil {
				return fmt.Errorf("failed to insert holding %s: %w", h.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save client %s: %w", p.ClientID, err)
	}

	r.log.Debug().Str("client_id", p.ClientID).Int("holdings", len(p.Holdings)).Msg("Portfolio saved")
	return nil
}

// Get loads one client. Returns ErrClientNotFound when absent.
func (r *Repository) Get(clientID string) (domain.Portfolio, error) {
	row := r.db.QueryRow(`SELECT client_id, risk_category, subscore, horizon, target
		FROM clients WHERE client_id = ?`, clientID)

	p, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Portfolio{}, fmt.Errorf("%w: %s", domain.ErrClientNotFound, clientID)
	}
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("failed to load client %s: %w", clientID, err)
	}

	holdings, err := r.holdings(clientID)
	if err != nil {
		return domain.Portfolio{}, err
	}
	p.Holdings = holdings
	return p, nil
}

// List loads every client ordered by id
func (r *Repository) List() ([]domain.Portfolio, error) {
	rows, err := r.db.Query(`SELECT client_id, risk_category, subscore, horizon, target
		FROM clients ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}

	var portfolios []domain.Portfolio
	for rows.Next() {
		p, err := scanClient(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}
	rows.Close()

	for i := range portfolios {
		holdings, err := r.holdings(portfolios[i].ClientID)
		if err != nil {
			return nil, err
		}
		portfolios[i].Holdings = holdings
	}
	return portfolios, nil
}

// Delete removes a client and its holdings
func (r *Repository) Delete(clientID string) error {
	result, err := r.db.Exec("DELETE FROM clients WHERE client_id = ?", clientID)
	if err != nil {
		return fmt.Errorf("failed to delete client %s: %w", clientID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrClientNotFound, clientID)
	}
	r.log.Info().Str("client_id", clientID).Msg("Client deleted")
	return nil
}

func (r *Repository) holdings(clientID string) ([]domain.Holding, error) {
	rows, err := r.db.Query(`SELECT holding_id, name, asset_class, sector, cap_size, market_value, quantity
		FROM holdings WHERE client_id = ? ORDER BY rowid`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings for %s: %w", clientID, err)
	}
	defer rows.Close()

	holdings := make([]domain.Holding, 0)
	for rows.Next() {
		var h domain.Holding
		var class, capSize, value, quantity string
		if err := rows.Scan(&h.ID, &h.Name, &class, &h.Sector, &capSize, &value, &quantity); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		if h.Class, err = domain.ParseAssetClass(class); err != nil {
			return nil, fmt.Errorf("holding %s: %w", h.ID, err)
		}
		if err := h.CapSize.UnmarshalText([]byte(capSize)); err != nil {
			return nil, fmt.Errorf("holding %s: %w", h.ID, err)
		}
		if h.MarketValue, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("holding %s market value: %w", h.ID, err)
		}
		if h.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("holding %s quantity: %w", h.ID, err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return holdings, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanClient(row scanner) (domain.Portfolio, error) {
	var p domain.Portfolio
	var category, horizon string
	var target sql.NullString

	if err := row.Scan(&p.ClientID, &category, &p.Subscore, &horizon, &target); err != nil {
		return p, err
	}

	var err error
	if p.Category, err = domain.ParseRiskCategory(category); err != nil {
		return p, err
	}
	if err := p.Horizon.UnmarshalText([]byte(horizon)); err != nil {
		return p, err
	}
	if target.Valid && target.String != "" {
		if err := json.Unmarshal([]byte(target.String), &p.Target); err != nil {
			return p, fmt.Errorf("failed to decode target: %w", err)
		}
	}
	return p, nil
}
