package source

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/rgehrsitz/taxcalc/internal/domain"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store keeps tax rules in a SQLite database. It serves both policies and
// brackets, so one Store can back a whole Calculator.
type Store struct {
	db *sql.DB
}

// OpenStore creates or opens the database at path and applies the schema.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Single writer; pragmas are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Import writes every jurisdiction of rs, replacing rows for codes that
// already exist. Jurisdictions not in rs are left alone. The import is one
// transaction.
func (s *Store) Import(ctx context.Context, rs *domain.RuleSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	for _, code := range rs.Codes() {
		jr := rs.Jurisdictions[string(code)]
		if err := importJurisdiction(ctx, tx, code, jr); err != nil {
			return fmt.Errorf("import %s: %w", code, err)
		}
	}

	meta := map[string]string{
		"description":  rs.Metadata.Description,
		"last_updated": rs.Metadata.LastUpdated,
		"source":       rs.Metadata.Source,
	}
	for key, value := range meta {
		if value == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metadata (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
			return fmt.Errorf("failed to write metadata: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

func importJurisdiction(ctx context.Context, tx *sql.Tx, code domain.Jurisdiction, jr domain.JurisdictionRules) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM brackets WHERE jurisdiction = ?`, string(code)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO jurisdictions (code, name, policy, rate, income_category) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET name = excluded.name, policy = excluded.policy,
		   rate = excluded.rate, income_category = excluded.income_category`,
		string(code), jr.Name, string(jr.Policy), jr.Rate.String(), jr.IncomeCategory); err != nil {
		return err
	}

	for status, rules := range jr.Brackets {
		for i, r := range rules {
			var high any
			if r.Max != nil {
				high = r.Max.String()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO brackets (jurisdiction, filing_status, position, rate, low, high) VALUES (?, ?, ?, ?, ?, ?)`,
				string(code), string(status), i, r.Rate.String(), r.Min.String(), high); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetPolicy implements calculation.JurisdictionRegistry
func (s *Store) GetPolicy(ctx context.Context, j domain.Jurisdiction) (domain.Policy, error) {
	code := domain.NewJurisdiction(string(j))

	var (
		kind     string
		rate     decimal.Decimal
		category string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT policy, rate, income_category FROM jurisdictions WHERE code = ?`, string(code)).
		Scan(&kind, &rate, &category)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Policy{}, &domain.TaxError{Kind: domain.ErrInvalidJurisdiction, Jurisdiction: code, Detail: "unknown jurisdiction"}
	}
	if err != nil {
		return domain.Policy{}, fmt.Errorf("query policy: %w", err)
	}
	return domain.Policy{Kind: domain.PolicyKind(kind), Rate: rate, IncomeCategory: category}, nil
}

// GetBrackets implements calculation.BracketSource. Rows come back in the
// order they were imported.
func (s *Store) GetBrackets(ctx context.Context, j domain.Jurisdiction, status domain.FilingStatus) ([]domain.Bracket, error) {
	code := domain.NewJurisdiction(string(j))

	rows, err := s.db.QueryContext(ctx,
		`SELECT rate, low, high FROM brackets
		 WHERE jurisdiction = ? AND filing_status = ?
		 ORDER BY position`, string(code), string(status))
	if err != nil {
		return nil, fmt.Errorf("query brackets: %w", err)
	}
	defer rows.Close()

	var brackets []domain.Bracket
	for rows.Next() {
		var (
			rate, low decimal.Decimal
			high      decimal.NullDecimal
		)
		if err := rows.Scan(&rate, &low, &high); err != nil {
			return nil, fmt.Errorf("scan bracket: %w", err)
		}
		if high.Valid {
			brackets = append(brackets, domain.NewBracket(rate, status, low, high.Decimal))
		} else {
			brackets = append(brackets, domain.NewTopBracket(rate, status, low))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate brackets: %w", err)
	}

	if len(brackets) == 0 {
		return nil, &domain.TaxError{Kind: domain.ErrMissingBracketData, Jurisdiction: code, FilingStatus: status}
	}
	return brackets, nil
}

// Jurisdictions returns the stored codes in sorted order
func (s *Store) Jurisdictions(ctx context.Context) ([]domain.Jurisdiction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM jurisdictions ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query jurisdictions: %w", err)
	}
	defer rows.Close()

	var codes []domain.Jurisdiction
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, domain.Jurisdiction(code))
	}
	return codes, rows.Err()
}

// Metadata returns the metadata of the most recent imports
func (s *Store) Metadata(ctx context.Context) (domain.RuleSetMetadata, error) {
	var meta domain.RuleSetMetadata
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return meta, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return meta, err
		}
		switch key {
		case "description":
			meta.Description = value
		case "last_updated":
			meta.LastUpdated = value
		case "source":
			meta.Source = value
		}
	}
	return meta, rows.Err()
}
