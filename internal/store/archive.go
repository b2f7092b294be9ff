// internal/store/archive.go
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver

	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
	"github.com/leader001a/ro-market-crawler-sub002/internal/monitor"
	"github.com/leader001a/ro-market-crawler-sub002/internal/parser"
)

// Archive appends observed listings to a relational table for offline
// analysis. The driver is selectable so a single desktop companion writes
// to local SQLite while a shared deployment points the same code at MySQL
// or PostgreSQL.
type Archive struct {
	db     *sql.DB
	driver string
}

// supportedArchiveDrivers lists accepted driver names.
var supportedArchiveDrivers = map[string]bool{
	"sqlite3":  true,
	"mysql":    true,
	"postgres": true,
}

// OpenArchive connects to the archive database.
func OpenArchive(driver, dsn string) (*Archive, error) {
	if !supportedArchiveDrivers[driver] {
		return nil, fmt.Errorf("unsupported archive driver: %s", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("archive DSN is required")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping archive: %w", err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	a := &Archive{db: db, driver: driver}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) migrate() error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	switch a.driver {
	case "mysql":
		serial = "BIGINT PRIMARY KEY AUTO_INCREMENT"
	case "postgres":
		serial = "BIGSERIAL PRIMARY KEY"
	}

	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS listing_archive (
		id          %s,
		observed_at TIMESTAMP NOT NULL,
		server      INTEGER   NOT NULL,
		item_name   TEXT      NOT NULL,
		base_name   TEXT      NOT NULL,
		refine      INTEGER   NOT NULL,
		grade       TEXT      NOT NULL,
		quantity    INTEGER   NOT NULL,
		price       BIGINT    NOT NULL,
		kind        TEXT      NOT NULL,
		shop_name   TEXT      NOT NULL
	)`, serial)

	if _, err := a.db.Exec(stmt); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// Close releases the archive handle.
func (a *Archive) Close() error {
	return a.db.Close()
}

// AppendRound archives every listing from a committed round's results.
func (a *Archive) AppendRound(results map[monitor.Key]monitor.MonitorResult) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin archive append: %w", err)
	}
	defer tx.Rollback()

	query := a.rebind(`INSERT INTO listing_archive
		(observed_at, server, item_name, base_name, refine, grade, quantity, price, kind, shop_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare archive insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		observed := r.RefreshedAt
		if observed.IsZero() {
			observed = time.Now()
		}
		for _, l := range r.Listings {
			_, err := stmt.Exec(
				observed, int(l.Server), l.DisplayName, l.BaseName,
				l.Refine, string(l.Grade), l.Quantity, l.Price,
				string(l.Kind), l.ShopName,
			)
			if err != nil {
				return fmt.Errorf("failed to archive listing: %w", err)
			}
		}
	}
	return tx.Commit()
}

// LatestRound reconstructs the most recent observation per watched item,
// keyed the same way the live result store is.
func (a *Archive) LatestRound() (map[monitor.Key]monitor.MonitorResult, error) {
	rows, err := a.db.Query(`SELECT l.observed_at, l.server, l.item_name, l.base_name,
			l.refine, l.grade, l.quantity, l.price, l.kind, l.shop_name
		FROM listing_archive l
		JOIN (SELECT base_name, server, MAX(observed_at) AS latest
			FROM listing_archive GROUP BY base_name, server) m
		ON l.base_name = m.base_name AND l.server = m.server AND l.observed_at = m.latest
		ORDER BY l.base_name, l.price`)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	results := make(map[monitor.Key]monitor.MonitorResult)
	for rows.Next() {
		var (
			observed    time.Time
			server      int
			listing     parser.Listing
			grade, kind string
		)
		err := rows.Scan(&observed, &server, &listing.DisplayName, &listing.BaseName,
			&listing.Refine, &grade, &listing.Quantity, &listing.Price, &kind, &listing.ShopName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
		}
		listing.Server = gnjoy.Server(server)
		listing.ServerName = gnjoy.Server(server).Name()
		listing.Grade = parser.Grade(grade)
		listing.Kind = parser.DealKind(kind)
		listing.CrawledAt = observed

		key := monitor.Key{Name: listing.BaseName, Server: listing.Server}
		res := results[key]
		res.Key = key
		res.RefreshedAt = observed
		res.Listings = append(res.Listings, monitor.ResultListing{Listing: listing})
		results[key] = res
	}
	return results, rows.Err()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (a *Archive) rebind(query string) string {
	if a.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
