package registry

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/eventseq/internal/model"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS model_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	backend       TEXT NOT NULL,
	spec_json     TEXT NOT NULL,
	encoding_json TEXT NOT NULL,
	fingerprint   TEXT NOT NULL,
	weights       BLOB,
	checkpoint    TEXT,
	metrics_json  TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES model_versions(version_id)
);

CREATE TABLE IF NOT EXISTS training_runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id    TEXT NOT NULL,
	trigger_type  TEXT NOT NULL,
	details_json  TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES model_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_model (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES model_versions(version_id)
);
`

// timeFormat is fixed-width so created_at sorts lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region store-struct
// Store manages versioned models in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. runlog).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region save-version
// SaveVersion inserts a version, assigning an id and timestamp when unset.
// With activate set, the active pointer moves to it in the same transaction.
func (s *Store) SaveVersion(rec ModelVersion, activate bool) (ModelVersion, error) {
	return s.SaveVersionWithRun(rec, activate, nil)
}

// SaveVersionWithRun is SaveVersion with record called inside the same
// transaction once the version row exists. If record fails, neither the
// version nor the active pointer change.
func (s *Store) SaveVersionWithRun(rec ModelVersion, activate bool, record func(tx *sql.Tx, saved ModelVersion) error) (ModelVersion, error) {
	if rec.VersionID == "" {
		rec.VersionID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	specJSON, err := json.Marshal(rec.Snapshot.Spec)
	if err != nil {
		return ModelVersion{}, fmt.Errorf("marshal spec: %w", err)
	}
	encJSON, err := json.Marshal(rec.Encoding)
	if err != nil {
		return ModelVersion{}, fmt.Errorf("marshal encoding: %w", err)
	}
	metricsJSON, err := json.Marshal(rec.Metrics)
	if err != nil {
		return ModelVersion{}, fmt.Errorf("marshal metrics: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return ModelVersion{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO model_versions (version_id, parent_id, backend, spec_json, encoding_json, fingerprint, weights, checkpoint, metrics_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, nullIfEmpty(rec.ParentID), string(rec.Snapshot.Backend), string(specJSON),
		string(encJSON), rec.Encoding.Fingerprint, encodeWeights(rec.Snapshot.Weights),
		nullIfEmpty(rec.Snapshot.Checkpoint), string(metricsJSON), rec.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return ModelVersion{}, fmt.Errorf("insert version: %w", err)
	}

	if activate {
		if err := setActive(tx, rec.VersionID); err != nil {
			return ModelVersion{}, err
		}
	}

	if record != nil {
		if err := record(tx, rec); err != nil {
			return ModelVersion{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return ModelVersion{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func setActive(tx *sql.Tx, id string) error {
	_, err := tx.Exec(
		`INSERT INTO active_model (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		id,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}

// #endregion save-version

// #region activate
// Activate points the active model at an existing version.
func (s *Store) Activate(versionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM model_versions WHERE version_id = ?`, versionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("activate %s: %w", versionID, ErrVersionNotFound)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := setActive(tx, versionID); err != nil {
		return err
	}
	return tx.Commit()
}

// ActiveID returns the active version id, or ErrNoActiveVersion.
func (s *Store) ActiveID() (string, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_model WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoActiveVersion
	}
	if err != nil {
		return "", fmt.Errorf("get active: %w", err)
	}
	return versionID, nil
}

// #endregion activate

// #region get-current
// GetCurrent reads the active model version.
func (s *Store) GetCurrent() (ModelVersion, error) {
	id, err := s.ActiveID()
	if err != nil {
		return ModelVersion{}, err
	}
	return s.GetVersion(id)
}

// #endregion get-current

// #region get-version
const versionColumns = `v.version_id, v.parent_id, v.backend, v.spec_json, v.encoding_json, v.weights, v.checkpoint, v.metrics_json, v.created_at`

// GetVersion retrieves a specific model version by id.
func (s *Store) GetVersion(id string) (ModelVersion, error) {
	row := s.db.QueryRow(`SELECT `+versionColumns+` FROM model_versions v WHERE v.version_id = ?`, id)
	rec, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelVersion{}, fmt.Errorf("get version %s: %w", id, ErrVersionNotFound)
	}
	if err != nil {
		return ModelVersion{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner, extra ...any) (ModelVersion, error) {
	var rec ModelVersion
	var parentID, checkpoint, metricsJSON sql.NullString
	var backend, specJSON, encJSON, createdStr string
	var weights []byte

	dest := append([]any{&rec.VersionID, &parentID, &backend, &specJSON, &encJSON, &weights, &checkpoint, &metricsJSON, &createdStr}, extra...)
	if err := row.Scan(dest...); err != nil {
		return ModelVersion{}, err
	}

	rec.ParentID = parentID.String
	rec.Snapshot.Backend = model.Backend(backend)
	rec.Snapshot.Checkpoint = checkpoint.String
	rec.Snapshot.Weights = decodeWeights(weights)
	if err := json.Unmarshal([]byte(specJSON), &rec.Snapshot.Spec); err != nil {
		return ModelVersion{}, fmt.Errorf("unmarshal spec: %w", err)
	}
	if err := json.Unmarshal([]byte(encJSON), &rec.Encoding); err != nil {
		return ModelVersion{}, fmt.Errorf("unmarshal encoding: %w", err)
	}
	if metricsJSON.Valid {
		if err := json.Unmarshal([]byte(metricsJSON.String), &rec.Metrics); err != nil {
			return ModelVersion{}, fmt.Errorf("unmarshal metrics: %w", err)
		}
	}
	rec.CreatedAt, _ = time.Parse(timeFormat, createdStr)
	return rec, nil
}

// #endregion get-version

// #region list-versions
// ListVersions returns the most recent versions with the decision of the
// run that produced them.
func (s *Store) ListVersions(limit int) ([]VersionWithRun, error) {
	active, err := s.ActiveID()
	if err != nil && !errors.Is(err, ErrNoActiveVersion) {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT `+versionColumns+`, r.trigger_type, r.decision, r.reason
		 FROM model_versions v
		 LEFT JOIN training_runs r ON r.id = (
			SELECT MAX(id) FROM training_runs WHERE version_id = v.version_id
		 )
		 ORDER BY v.created_at DESC, v.rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []VersionWithRun
	for rows.Next() {
		var trigger, decision, reason sql.NullString
		rec, err := scanVersion(rows, &trigger, &decision, &reason)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, VersionWithRun{
			ModelVersion: rec,
			Active:       rec.VersionID == active,
			Trigger:      trigger.String,
			Decision:     decision.String,
			Reason:       reason.String,
		})
	}
	return records, rows.Err()
}

// #endregion list-versions

// #region compatibility
// CheckCompatible fails with ErrIncompatible when rec was trained under
// settings that would encode inputs differently from want.
func CheckCompatible(rec ModelVersion, want EncodingInfo) error {
	got := rec.Encoding
	switch {
	case got.Fingerprint != want.Fingerprint:
		return fmt.Errorf("%w: version %s vocabulary %q, configured %q", ErrIncompatible, rec.VersionID, got.Fingerprint, want.Fingerprint)
	case got.MaxSteps != want.MaxSteps:
		return fmt.Errorf("%w: version %s max_steps %d, configured %d", ErrIncompatible, rec.VersionID, got.MaxSteps, want.MaxSteps)
	case got.Layout != want.Layout:
		return fmt.Errorf("%w: version %s layout %s, configured %s", ErrIncompatible, rec.VersionID, got.Layout, want.Layout)
	case got.LabelMode != want.LabelMode:
		return fmt.Errorf("%w: version %s label mode %s, configured %s", ErrIncompatible, rec.VersionID, got.LabelMode, want.LabelMode)
	}
	return nil
}

// #endregion compatibility

// #region weight-encoding
func encodeWeights(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeWeights(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion weight-encoding
