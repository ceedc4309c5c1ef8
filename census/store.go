package census

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id      TEXT PRIMARY KEY,
	image   TEXT NOT NULL,
	taken   INTEGER NOT NULL,
	objects INTEGER NOT NULL,
	words   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS counts (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	class     TEXT NOT NULL,
	instances INTEGER NOT NULL,
	words     INTEGER NOT NULL,
	PRIMARY KEY (run_id, class)
);
CREATE INDEX IF NOT EXISTS counts_class ON counts(class);
`

// Store persists census reports in a SQLite database.
type Store struct {
	db *sql.DB
}

// Run summarizes one stored census.
type Run struct {
	ID      string
	Image   string
	Taken   time.Time
	Objects int
	Words   int
}

// Sample is one class's count in one run.
type Sample struct {
	RunID     string
	Taken     time.Time
	Instances int
}

// OpenStore opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open census database %s", path)
	}
	// An in-memory database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create census schema")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records r and its entries in one transaction.
func (s *Store) Save(r *Report) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO runs (id, image, taken, objects, words) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Image, r.Taken.UnixNano(), r.Objects, r.Words); err != nil {
		return errors.Wrapf(err, "save run %s", r.ID)
	}
	stmt, err := tx.Prepare(`INSERT INTO counts (run_id, class, instances, words) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare counts")
	}
	defer stmt.Close()
	for _, e := range r.Entries {
		if _, err := stmt.Exec(r.ID, e.Class, e.Instances, e.Words); err != nil {
			return errors.Wrapf(err, "save count for %s", e.Class)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	log.Infof("stored census %s (%d classes)", r.ID, len(r.Entries))
	return nil
}

// Runs lists stored runs, newest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, image, taken, objects, words FROM runs ORDER BY taken DESC, id`)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var taken int64
		if err := rows.Scan(&run.ID, &run.Image, &taken, &run.Objects, &run.Words); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		run.Taken = time.Unix(0, taken).UTC()
		runs = append(runs, run)
	}
	return runs, errors.Wrap(rows.Err(), "list runs")
}

// Load reads back a stored report.
func (s *Store) Load(id string) (*Report, error) {
	r := &Report{ID: id}
	var taken int64
	err := s.db.QueryRow(`SELECT image, taken, objects, words FROM runs WHERE id = ?`, id).
		Scan(&r.Image, &taken, &r.Objects, &r.Words)
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("no census run %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load run %s", id)
	}
	r.Taken = time.Unix(0, taken).UTC()

	rows, err := s.db.Query(`SELECT class, instances, words FROM counts WHERE run_id = ?`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load counts for %s", id)
	}
	defer rows.Close()
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Class, &e.Instances, &e.Words); err != nil {
			return nil, errors.Wrap(err, "scan count")
		}
		r.Entries = append(r.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "load counts for %s", id)
	}
	r.sort()
	return r, nil
}

// History returns the instance counts of class across runs, oldest first.
func (s *Store) History(class string) ([]Sample, error) {
	rows, err := s.db.Query(`
		SELECT runs.id, runs.taken, counts.instances
		FROM counts JOIN runs ON runs.id = counts.run_id
		WHERE counts.class = ?
		ORDER BY runs.taken, runs.id`, class)
	if err != nil {
		return nil, errors.Wrapf(err, "history of %s", class)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var sm Sample
		var taken int64
		if err := rows.Scan(&sm.RunID, &taken, &sm.Instances); err != nil {
			return nil, errors.Wrap(err, "scan sample")
		}
		sm.Taken = time.Unix(0, taken).UTC()
		samples = append(samples, sm)
	}
	return samples, errors.Wrapf(rows.Err(), "history of %s", class)
}
