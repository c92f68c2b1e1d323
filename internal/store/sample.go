package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Sample is an extracted feature vector for one dataset image.
// Source is unique: the image path, with a "#mirror" suffix for the
// horizontally flipped copy.
type Sample struct {
	ID         string
	Label      string
	Source     string
	Size       int64
	ModTime    time.Time
	Mirrored   bool
	Handedness string
	Score      float64
	Vector     []float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Fresh reports whether the stored sample was extracted from a file with
// the given size and modification time.
func (s *Sample) Fresh(size int64, modTime time.Time) bool {
	return s.Size == size && s.ModTime.UnixNano() == modTime.UnixNano()
}

// SampleRepository provides CRUD operations for samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

const sampleColumns = `id, label, source, size, mod_time_ns, mirrored, handedness, score, vector, created_at, updated_at`

// Upsert inserts a sample or replaces the one with the same source.
// A missing ID is generated; the stored ID of an existing source is kept.
func (r *SampleRepository) Upsert(s *Sample) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	vector, err := json.Marshal(s.Vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}

	now := time.Now()
	s.UpdatedAt = now
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}

	_, err = r.db.Exec(
		`INSERT INTO samples (`+sampleColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source) DO UPDATE SET
			label = excluded.label,
			size = excluded.size,
			mod_time_ns = excluded.mod_time_ns,
			mirrored = excluded.mirrored,
			handedness = excluded.handedness,
			score = excluded.score,
			vector = excluded.vector,
			updated_at = excluded.updated_at`,
		s.ID, s.Label, s.Source, s.Size, s.ModTime.UnixNano(), s.Mirrored,
		s.Handedness, s.Score, string(vector), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return r.db.QueryRow(`SELECT id FROM samples WHERE source = ?`, s.Source).Scan(&s.ID)
}

// GetBySource retrieves the sample extracted from source.
func (r *SampleRepository) GetBySource(source string) (*Sample, error) {
	row := r.db.QueryRow(`SELECT `+sampleColumns+` FROM samples WHERE source = ?`, source)

	s, err := scanSample(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// List retrieves all samples ordered by label, then source.
func (r *SampleRepository) List() ([]*Sample, error) {
	return r.query(`SELECT ` + sampleColumns + ` FROM samples ORDER BY label, source`)
}

// ListByLabel retrieves the samples of one class ordered by source.
func (r *SampleRepository) ListByLabel(label string) ([]*Sample, error) {
	return r.query(`SELECT `+sampleColumns+` FROM samples WHERE label = ? ORDER BY source`, label)
}

// Counts returns the number of samples per label.
func (r *SampleRepository) Counts() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT label, COUNT(*) FROM samples GROUP BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}

	return counts, rows.Err()
}

// DeleteBySource removes the sample extracted from source.
func (r *SampleRepository) DeleteBySource(source string) error {
	result, err := r.db.Exec(`DELETE FROM samples WHERE source = ?`, source)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Prune deletes every sample whose source is not in keep and returns how
// many rows were removed.
func (r *SampleRepository) Prune(keep map[string]bool) (int, error) {
	rows, err := r.db.Query(`SELECT source FROM samples`)
	if err != nil {
		return 0, err
	}

	var stale []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			rows.Close()
			return 0, err
		}
		if !keep[source] {
			stale = append(stale, source)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`DELETE FROM samples WHERE source = ?`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, source := range stale {
		if _, err := stmt.Exec(source); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (r *SampleRepository) query(q string, args ...any) ([]*Sample, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSample(row scanner) (*Sample, error) {
	s := &Sample{}
	var modTimeNs int64
	var vector string

	err := row.Scan(&s.ID, &s.Label, &s.Source, &s.Size, &modTimeNs, &s.Mirrored,
		&s.Handedness, &s.Score, &vector, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.ModTime = time.Unix(0, modTimeNs)
	if err := json.Unmarshal([]byte(vector), &s.Vector); err != nil {
		return nil, fmt.Errorf("decode vector of %s: %w", s.Source, err)
	}
	return s, nil
}
