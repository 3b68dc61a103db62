package datastore

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/flowsched/config"
)

type SQLDialect int

const (
	SQLite SQLDialect = iota
	MySQL
	Postgres
)

func (self SQLDialect) driver() string {
	switch self {
	case MySQL:
		return "mysql"
	case Postgres:
		return "postgres"
	default:
		return "sqlite3"
	}
}

func (self SQLDialect) String() string {
	switch self {
	case MySQL:
		return "MySQL"
	case Postgres:
		return "Postgres"
	default:
		return "SQLite"
	}
}

func (self SQLDialect) schema() string {
	switch self {
	case MySQL:
		return `CREATE TABLE IF NOT EXISTS kv (
   subject VARBINARY(512) NOT NULL,
   attribute VARBINARY(255) NOT NULL,
   ts BIGINT NOT NULL,
   value LONGBLOB,
   PRIMARY KEY (subject, attribute))`

	case Postgres:
		return `CREATE TABLE IF NOT EXISTS kv (
   subject TEXT COLLATE "C" NOT NULL,
   attribute TEXT COLLATE "C" NOT NULL,
   ts BIGINT NOT NULL,
   value BYTEA,
   PRIMARY KEY (subject, attribute))`

	default:
		return `CREATE TABLE IF NOT EXISTS kv (
   subject TEXT NOT NULL,
   attribute TEXT NOT NULL,
   ts INTEGER NOT NULL,
   value BLOB,
   PRIMARY KEY (subject, attribute))`
	}
}

func (self SQLDialect) upsert() string {
	switch self {
	case MySQL:
		return `INSERT INTO kv (subject, attribute, ts, value) VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE ts = VALUES(ts), value = VALUES(value)`
	default:
		return `INSERT INTO kv (subject, attribute, ts, value) VALUES (?, ?, ?, ?)
ON CONFLICT (subject, attribute) DO UPDATE SET ts = excluded.ts, value = excluded.value`
	}
}

// Postgres uses numbered placeholders.
func (self SQLDialect) rebind(query string) string {
	if self != Postgres {
		return query
	}

	result := strings.Builder{}
	idx := 0
	for _, c := range query {
		if c == '?' {
			idx++
			fmt.Fprintf(&result, "$%d", idx)
			continue
		}
		result.WriteRune(c)
	}
	return result.String()
}

// A datastore on a single kv table in an SQL database.
type SQLDataStore struct {
	db      *sql.DB
	dialect SQLDialect
}

func NewSQLDataStore(dialect SQLDialect, dsn string) (*SQLDataStore, error) {
	db, err := sql.Open(dialect.driver(), dsn)
	if err != nil {
		return nil, err
	}

	// Each sqlite connection to :memory: is a separate database.
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec(dialect.schema())
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "NewSQLDataStore: creating schema")
	}

	return &SQLDataStore{db: db, dialect: dialect}, nil
}

func (self *SQLDataStore) query(query string, args ...interface{}) (
	[]*Record, error) {
	rows, err := self.db.Query(self.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*Record{}
	for rows.Next() {
		record := &Record{}
		err = rows.Scan(&record.Subject, &record.Attribute,
			&record.Timestamp, &record.Value)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func (self *SQLDataStore) exec(query string, args ...interface{}) error {
	_, err := self.db.Exec(self.dialect.rebind(query), args...)
	return err
}

func (self *SQLDataStore) Set(config_obj *config.Config,
	subject, attribute string, value []byte, timestamp int64) error {
	err := validateSubject(subject)
	if err != nil {
		return err
	}

	if value == nil {
		value = []byte{}
	}
	return self.exec(self.dialect.upsert(), subject, attribute, timestamp, value)
}

func (self *SQLDataStore) Resolve(config_obj *config.Config,
	subject, attribute string) (*Record, error) {
	records, err := self.query(`SELECT subject, attribute, ts, value FROM kv
WHERE subject = ? AND attribute = ?`, subject, attribute)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, notFoundError(subject, attribute)
	}
	return records[0], nil
}

func (self *SQLDataStore) ScanAttribute(config_obj *config.Config,
	subject_prefix, attribute, after_subject string,
	max_records int) ([]*Record, error) {
	query := `SELECT subject, attribute, ts, value FROM kv
WHERE attribute = ? AND subject >= ? AND subject > ?`
	args := []interface{}{attribute, subject_prefix, after_subject}

	upper := prefixUpperBound([]byte(subject_prefix))
	if upper != nil {
		query += " AND subject < ?"
		args = append(args, string(upper))
	}

	query += " ORDER BY subject"
	if max_records > 0 {
		query += fmt.Sprintf(" LIMIT %d", max_records)
	}

	return self.query(query, args...)
}

func (self *SQLDataStore) ResolvePrefix(config_obj *config.Config,
	subject, attribute_prefix string) ([]*Record, error) {
	query := `SELECT subject, attribute, ts, value FROM kv
WHERE subject = ? AND attribute >= ?`
	args := []interface{}{subject, attribute_prefix}

	upper := prefixUpperBound([]byte(attribute_prefix))
	if upper != nil {
		query += " AND attribute < ?"
		args = append(args, string(upper))
	}
	query += " ORDER BY attribute"

	return self.query(query, args...)
}

func (self *SQLDataStore) MultiResolve(config_obj *config.Config,
	subjects []string, attribute string) ([]*Record, error) {
	result := make([]*Record, 0, len(subjects))
	for _, subject := range subjects {
		records, err := self.query(`SELECT subject, attribute, ts, value FROM kv
WHERE subject = ? AND attribute = ?`, subject, attribute)
		if err != nil {
			return nil, err
		}
		result = append(result, records...)
	}
	return result, nil
}

func (self *SQLDataStore) DeleteAttributes(config_obj *config.Config,
	subject string, attributes []string) error {
	tx, err := self.db.Begin()
	if err != nil {
		return err
	}

	for _, attribute := range attributes {
		_, err = tx.Exec(self.dialect.rebind(
			`DELETE FROM kv WHERE subject = ? AND attribute = ?`),
			subject, attribute)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (self *SQLDataStore) DeleteSubject(
	config_obj *config.Config, subject string) error {
	return self.exec(`DELETE FROM kv WHERE subject = ?`, subject)
}

func (self *SQLDataStore) DeletePrefix(
	config_obj *config.Config, subject_prefix string) error {
	upper := prefixUpperBound([]byte(subject_prefix))
	if upper == nil {
		return self.exec(`DELETE FROM kv WHERE subject >= ?`, subject_prefix)
	}
	return self.exec(`DELETE FROM kv WHERE subject >= ? AND subject < ?`,
		subject_prefix, string(upper))
}

func (self *SQLDataStore) Close() {
	self.db.Close()
}
