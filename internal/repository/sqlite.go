package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

const (
	ActionBlock = "BLOCK"
	ActionAllow = "ALLOW"

	SourceManual = "user_manual"
)

type BlockedDomain struct {
	Domain string
	Action string
	Source string
}

// ScanRecord is one row of scan history.
type ScanRecord struct {
	URL         string
	Host        string
	Verdict     string
	Probability float32
	Features    string
	Fallbacks   int
	ScannedAt   time.Time
}

type DomainDB struct {
	db *sql.DB
}

func (d *DomainDB) InitDB(path string) error {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("could not create directory for db: %w", err)
		}
	}

	dsn := path
	if path != ":memory:" {
		// Feeds sync concurrently; writers wait for each other instead of failing.
		dsn = "file:" + path + "?_busy_timeout=5000&_txlock=immediate"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("could not open db: %w", err)
	}

	// Each new connection to :memory: would be a separate empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("could not connect to db (check permissions): %w", err)
	}

	d.db = db

	if _, err := d.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}

	q := `
	CREATE TABLE IF NOT EXISTS rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT UNIQUE NOT NULL,
		source TEXT,
		action TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_domain ON rules(domain);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);

	CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		host TEXT NOT NULL,
		verdict TEXT,
		probability REAL,
		features TEXT,
		fallbacks INTEGER,
		scanned_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_scans_time ON scans(scanned_at);
	`
	if _, err = d.db.Exec(q); err != nil {
		return fmt.Errorf("could not init tables: %w", err)
	}

	return nil
}

func (d *DomainDB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DomainDB) GetETag(source string) string {
	var val string
	_ = d.db.QueryRow("SELECT value FROM metadata WHERE key = ?", source+"_etag").Scan(&val)
	return val
}

func (d *DomainDB) UpdateETag(source, etag string) error {
	_, err := d.db.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)", source+"_etag", etag)
	return err
}

// SyncUserRules makes the configured lists authoritative for the manual
// source: rows dropped from the config are removed.
func (d *DomainDB) SyncUserRules(whitelist []string, blacklist []string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM rules WHERE source = ?", SourceManual); err != nil {
		return err
	}

	upsert := func(domain, action string) error {
		query := `
		INSERT INTO rules (domain, source, action, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			source = excluded.source,
			action = excluded.action,
			updated_at = excluded.updated_at;
		`
		_, err := tx.Exec(query, domain, SourceManual, action, time.Now().Unix())
		return err
	}

	for _, domain := range blacklist {
		if err := upsert(domain, ActionBlock); err != nil {
			return err
		}
	}

	for _, domain := range whitelist {
		if err := upsert(domain, ActionAllow); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// StreamSync upserts every domain from dataStream under source, then sweeps
// the rows of that source the stream did not mention. Manual rules are
// never overwritten by a feed.
func (d *DomainDB) StreamSync(dataStream <-chan BlockedDomain, source string) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}

	defer tx.Rollback()
	importTime := time.Now().UnixNano()

	query := `
	INSERT INTO rules (domain, source, action, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(domain) DO UPDATE SET
		updated_at = excluded.updated_at,
		source = excluded.source,
		action = excluded.action
	WHERE rules.source != '` + SourceManual + `';
	`
	stmt, err := tx.Prepare(query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	count := 0

	for item := range dataStream {
		action := item.Action
		if action == "" {
			action = ActionBlock
		}
		if _, err := stmt.Exec(item.Domain, source, action, importTime); err != nil {
			log.Printf("Failed to insert %s: %v", item.Domain, err)
			continue
		}
		count++
	}

	pruneQuery := `DELETE FROM rules WHERE source = ? AND updated_at != ?`
	if _, err := tx.Exec(pruneQuery, source, importTime); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	log.Printf("Successfully streamed and inserted %d domains from %s.", count, source)
	return count, nil
}

func (d *DomainDB) GetBlocklist() ([]string, error) {
	return d.domains("SELECT domain FROM rules WHERE action = ?", ActionBlock)
}

func (d *DomainDB) GetAllowlist() ([]string, error) {
	return d.domains("SELECT domain FROM rules WHERE action = ?", ActionAllow)
}

func (d *DomainDB) domains(query string, args ...any) ([]string, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, err
		}
		domains = append(domains, domain)
	}
	return domains, rows.Err()
}

func (d *DomainDB) GetRule(domain string) (*BlockedDomain, error) {
	var r BlockedDomain
	query := "SELECT domain, action, source FROM rules WHERE domain = ?"
	err := d.db.QueryRow(query, domain).Scan(&r.Domain, &r.Action, &r.Source)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DomainDB) InsertOrUpdate(domain string, action string, source string) error {
	query := `
	INSERT INTO rules (domain, action, source, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(domain) DO UPDATE SET
		updated_at = excluded.updated_at,
		source = excluded.source,
		action = excluded.action;
	`
	_, err := d.db.Exec(query, domain, action, source, time.Now().Unix())
	return err
}

func (d *DomainDB) RecordScan(r ScanRecord) error {
	if r.ScannedAt.IsZero() {
		r.ScannedAt = time.Now()
	}
	_, err := d.db.Exec(
		`INSERT INTO scans (url, host, verdict, probability, features, fallbacks, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.URL, r.Host, r.Verdict, r.Probability, r.Features, r.Fallbacks, r.ScannedAt.UnixNano(),
	)
	return err
}

// RecentScans returns up to limit scans, newest first.
func (d *DomainDB) RecentScans(limit int) ([]ScanRecord, error) {
	rows, err := d.db.Query(
		`SELECT url, host, verdict, probability, features, fallbacks, scanned_at
		FROM scans ORDER BY scanned_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScanRecord
	for rows.Next() {
		var (
			r  ScanRecord
			ts int64
		)
		if err := rows.Scan(&r.URL, &r.Host, &r.Verdict, &r.Probability, &r.Features, &r.Fallbacks, &ts); err != nil {
			return nil, err
		}
		r.ScannedAt = time.Unix(0, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}
