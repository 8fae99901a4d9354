package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store on an embedded SQLite database. It is the
// local/offline backend and the test backend (":memory:"). Edge merges run
// inside transactions so each merge is atomic.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and initializes
// the schema. dbPath may be ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrUnavailable, err)
	}

	// An in-memory database lives per connection; keep a single one so every
	// session sees the same graph.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		learning_style TEXT NOT NULL DEFAULT 'conceptual',
		detail_level TEXT NOT NULL DEFAULT 'standard',
		goals TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		last_active DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		category TEXT NOT NULL DEFAULT 'concept',
		difficulty INTEGER NOT NULL DEFAULT 3,
		summary TEXT NOT NULL DEFAULT '',
		prerequisites TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS concepts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		description TEXT NOT NULL DEFAULT '',
		complexity INTEGER NOT NULL DEFAULT 3,
		explanation TEXT NOT NULL DEFAULT '',
		misconceptions TEXT NOT NULL DEFAULT '',
		use_cases TEXT NOT NULL DEFAULT '',
		code_example TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS belongs_to (
		concept_id TEXT NOT NULL REFERENCES concepts(id),
		topic_id TEXT NOT NULL REFERENCES topics(id),
		is_primary INTEGER NOT NULL DEFAULT 0,
		importance REAL NOT NULL DEFAULT 0.5,
		PRIMARY KEY (concept_id, topic_id)
	);

	CREATE TABLE IF NOT EXISTS prerequisite_for (
		prereq_id TEXT NOT NULL REFERENCES concepts(id),
		concept_id TEXT NOT NULL REFERENCES concepts(id),
		strength REAL NOT NULL DEFAULT 0.5,
		explanation TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (prereq_id, concept_id)
	);

	CREATE TABLE IF NOT EXISTS related_to (
		from_id TEXT NOT NULL REFERENCES concepts(id),
		to_id TEXT NOT NULL REFERENCES concepts(id),
		rel_type TEXT NOT NULL DEFAULT 'similar',
		strength REAL NOT NULL DEFAULT 0.5,
		note TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (from_id, to_id)
	);

	CREATE TABLE IF NOT EXISTS knows (
		user_id TEXT NOT NULL REFERENCES users(id),
		concept_id TEXT NOT NULL REFERENCES concepts(id),
		proficiency REAL NOT NULL,
		confidence REAL NOT NULL,
		stage TEXT NOT NULL,
		evidence_count INTEGER NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		first_seen DATETIME NOT NULL,
		last_updated DATETIME NOT NULL,
		PRIMARY KEY (user_id, concept_id)
	);

	CREATE TABLE IF NOT EXISTS tracks (
		user_id TEXT NOT NULL REFERENCES users(id),
		topic_id TEXT NOT NULL REFERENCES topics(id),
		active INTEGER NOT NULL DEFAULT 1,
		priority INTEGER NOT NULL DEFAULT 3,
		goal TEXT NOT NULL DEFAULT '',
		since DATETIME NOT NULL,
		PRIMARY KEY (user_id, topic_id)
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		event_type TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS event_concepts (
		event_id TEXT NOT NULL REFERENCES events(id),
		concept_id TEXT NOT NULL REFERENCES concepts(id),
		PRIMARY KEY (event_id, concept_id)
	);

	CREATE INDEX IF NOT EXISTS idx_knows_user ON knows(user_id);
	CREATE INDEX IF NOT EXISTS idx_tracks_user ON tracks(user_id);
	CREATE INDEX IF NOT EXISTS idx_prereq_concept ON prerequisite_for(concept_id);
	CREATE INDEX IF NOT EXISTS idx_belongs_topic ON belongs_to(topic_id);
	CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// EnsureUser creates the user and its learning profile if absent and
// refreshes last_active. The 1:1 profile is folded into the users row, which
// keeps creation atomic.
func (s *SQLiteStore) EnsureUser(ctx context.Context, id, displayName string) (*User, error) {
	if displayName == "" {
		displayName = id
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, created_at, last_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_active = excluded.last_active
	`, id, displayName, now, now)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return s.GetUser(ctx, id)
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, learning_style, detail_level, goals, created_at, last_active
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.DisplayName, &u.LearningStyle, &u.DetailLevel, &u.Goals, &u.CreatedAt, &u.LastActive)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) SetLearningStyle(ctx context.Context, id string, style LearningStyle, detail DetailLevel) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET learning_style = ?, detail_level = ?, last_active = ? WHERE id = ?
	`, string(style), string(detail), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set learning style: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set learning style: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) EnsureTopic(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topics (id, name, summary, difficulty, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, uuid.New().String(), name, PlaceholderSummary, PlaceholderRank, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ensure topic: %w", err)
	}
	return nil
}

func (s *SQLiteStore) EnsureConcept(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO concepts (id, name, description, complexity, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, uuid.New().String(), name, PlaceholderDescription, PlaceholderRank, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ensure concept: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutTopic(ctx context.Context, t *Topic) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topics (id, name, category, difficulty, summary, prerequisites, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			category = excluded.category,
			difficulty = excluded.difficulty,
			summary = excluded.summary,
			prerequisites = excluded.prerequisites
	`, t.ID, t.Name, string(t.Category), t.Difficulty, t.Summary, strings.Join(t.Prerequisites, "\n"), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("put topic: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutConcept(ctx context.Context, c *Concept) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO concepts (id, name, description, complexity, explanation, misconceptions, use_cases, code_example, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			complexity = excluded.complexity,
			explanation = excluded.explanation,
			misconceptions = excluded.misconceptions,
			use_cases = excluded.use_cases,
			code_example = excluded.code_example
	`, c.ID, c.Name, c.Description, c.Complexity, c.Explanation, c.Misconceptions, c.UseCases, c.CodeExample, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("put concept: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TopicExists(ctx context.Context, name string) (bool, error) {
	return s.rowExists(ctx, `SELECT 1 FROM topics WHERE name = ?`, name)
}

func (s *SQLiteStore) ConceptExists(ctx context.Context, name string) (bool, error) {
	return s.rowExists(ctx, `SELECT 1 FROM concepts WHERE name = ?`, name)
}

func (s *SQLiteStore) rowExists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) conceptID(ctx context.Context, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM concepts WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("concept %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup concept: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) topicID(ctx context.Context, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM topics WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("topic %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup topic: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) LinkConceptToTopic(ctx context.Context, concept, topic string, attrs BelongsTo) error {
	if err := s.EnsureConcept(ctx, concept); err != nil {
		return err
	}
	if err := s.EnsureTopic(ctx, topic); err != nil {
		return err
	}
	cid, err := s.conceptID(ctx, concept)
	if err != nil {
		return err
	}
	tid, err := s.topicID(ctx, topic)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO belongs_to (concept_id, topic_id, is_primary, importance)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(concept_id, topic_id) DO UPDATE SET
			is_primary = excluded.is_primary,
			importance = excluded.importance
	`, cid, tid, boolToInt(attrs.Primary), attrs.Importance)
	if err != nil {
		return fmt.Errorf("link concept to topic: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LinkPrerequisite(ctx context.Context, prereq, concept string, attrs Prerequisite) error {
	if err := s.EnsureConcept(ctx, prereq); err != nil {
		return err
	}
	if err := s.EnsureConcept(ctx, concept); err != nil {
		return err
	}
	pid, err := s.conceptID(ctx, prereq)
	if err != nil {
		return err
	}
	cid, err := s.conceptID(ctx, concept)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prerequisite_for (prereq_id, concept_id, strength, explanation)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(prereq_id, concept_id) DO UPDATE SET
			strength = excluded.strength,
			explanation = excluded.explanation
	`, pid, cid, attrs.Strength, attrs.Explanation)
	if err != nil {
		return fmt.Errorf("link prerequisite: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LinkRelated(ctx context.Context, from, to string, attrs Related) error {
	if err := s.EnsureConcept(ctx, from); err != nil {
		return err
	}
	if err := s.EnsureConcept(ctx, to); err != nil {
		return err
	}
	fid, err := s.conceptID(ctx, from)
	if err != nil {
		return err
	}
	tid, err := s.conceptID(ctx, to)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO related_to (from_id, to_id, rel_type, strength, note)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id) DO UPDATE SET
			rel_type = excluded.rel_type,
			strength = excluded.strength,
			note = excluded.note
	`, fid, tid, string(attrs.Type), attrs.Strength, attrs.Note)
	if err != nil {
		return fmt.Errorf("link related: %w", err)
	}
	return nil
}

// MergeKnowledge applies the KNOWS merge inside a single transaction:
// proficiency only rises, evidence count only grows, first_seen is written
// once, the stage tracks the latest evidence, and notes accumulate.
func (s *SQLiteStore) MergeKnowledge(ctx context.Context, userID, concept string, ev Evidence) (*KnowledgeState, error) {
	if _, err := s.EnsureUser(ctx, userID, ""); err != nil {
		return nil, err
	}
	if err := s.EnsureConcept(ctx, concept); err != nil {
		return nil, err
	}
	cid, err := s.conceptID(ctx, concept)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var state KnowledgeState
	err = tx.QueryRowContext(ctx, `
		SELECT proficiency, confidence, stage, evidence_count, notes, first_seen
		FROM knows WHERE user_id = ? AND concept_id = ?
	`, userID, cid).Scan(&state.Proficiency, &state.Confidence, &state.Stage,
		&state.EvidenceCount, &state.Notes, &state.FirstSeen)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO knows (user_id, concept_id, proficiency, confidence, stage, evidence_count, notes, first_seen, last_updated)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
		`, userID, cid, ev.Proficiency, InitialConfidence, string(ev.Stage), ev.Details, now, now)
		if err != nil {
			return nil, fmt.Errorf("create knows edge: %w", err)
		}
		state = KnowledgeState{
			Concept:       concept,
			Proficiency:   ev.Proficiency,
			Confidence:    InitialConfidence,
			Stage:         ev.Stage,
			EvidenceCount: 1,
			Notes:         ev.Details,
			FirstSeen:     now,
			LastUpdated:   now,
		}
	case err != nil:
		return nil, fmt.Errorf("read knows edge: %w", err)
	default:
		prof := state.Proficiency
		if ev.Proficiency > prof {
			prof = ev.Proficiency
		}
		notes := state.Notes
		if ev.Details != "" {
			if notes != "" {
				notes += "\n"
			}
			notes += ev.Details
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE knows SET proficiency = ?, stage = ?, evidence_count = evidence_count + 1,
				notes = ?, last_updated = ?
			WHERE user_id = ? AND concept_id = ?
		`, prof, string(ev.Stage), notes, now, userID, cid)
		if err != nil {
			return nil, fmt.Errorf("update knows edge: %w", err)
		}
		state.Concept = concept
		state.Proficiency = prof
		state.Stage = ev.Stage
		state.EvidenceCount++
		state.Notes = notes
		state.LastUpdated = now
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}
	return &state, nil
}

func (s *SQLiteStore) TrackTopicsOf(ctx context.Context, userID, concept string) error {
	cid, err := s.conceptID(ctx, concept)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tracks (user_id, topic_id, active, priority, goal, since)
		SELECT ?, b.topic_id, 1, ?, ?, ?
		FROM belongs_to b WHERE b.concept_id = ?
		ON CONFLICT(user_id, topic_id) DO UPDATE SET active = 1
	`, userID, DefaultTrackPriority, DefaultTrackGoal, time.Now().UTC(), cid)
	if err != nil {
		return fmt.Errorf("track topics: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TrackTopic(ctx context.Context, userID, topic string, priority int, goal string) error {
	if err := s.EnsureTopic(ctx, topic); err != nil {
		return err
	}
	tid, err := s.topicID(ctx, topic)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tracks (user_id, topic_id, active, priority, goal, since)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(user_id, topic_id) DO UPDATE SET
			active = 1, priority = excluded.priority, goal = excluded.goal
	`, userID, tid, priority, goal, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("track topic: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, userID string, eventType EventType, details string, concepts []string) (string, error) {
	id := uuid.New().String()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin event: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, user_id, event_type, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, userID, string(eventType), details, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("record event: %w", err)
	}
	for _, name := range concepts {
		var cid string
		err := tx.QueryRowContext(ctx, `SELECT id FROM concepts WHERE name = ?`, name).Scan(&cid)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("record event concept: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO event_concepts (event_id, concept_id) VALUES (?, ?)
		`, id, cid); err != nil {
			return "", fmt.Errorf("record event concept: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit event: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) PrerequisitesOf(ctx context.Context, concept string) ([]PrereqEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pc.name, pc.description, p.strength, p.explanation
		FROM prerequisite_for p
		JOIN concepts c ON c.id = p.concept_id
		JOIN concepts pc ON pc.id = p.prereq_id
		WHERE c.name = ?
		ORDER BY pc.name
	`, concept)
	if err != nil {
		return nil, fmt.Errorf("prerequisites of: %w", err)
	}
	defer rows.Close()

	var edges []PrereqEdge
	for rows.Next() {
		var e PrereqEdge
		if err := rows.Scan(&e.Name, &e.Description, &e.Strength, &e.Explanation); err != nil {
			return nil, fmt.Errorf("scan prerequisite: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *SQLiteStore) ProficiencyFor(ctx context.Context, userID string, concepts []string) (map[string]float64, error) {
	result := make(map[string]float64, len(concepts))
	if len(concepts) == 0 {
		return result, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(concepts)), ",")
	args := make([]any, 0, len(concepts)+1)
	args = append(args, userID)
	for _, c := range concepts {
		args = append(args, c)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name, k.proficiency
		FROM knows k JOIN concepts c ON c.id = k.concept_id
		WHERE k.user_id = ? AND c.name IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("proficiency for: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var prof float64
		if err := rows.Scan(&name, &prof); err != nil {
			return nil, fmt.Errorf("scan proficiency: %w", err)
		}
		result[name] = prof
	}
	return result, rows.Err()
}

func (s *SQLiteStore) Candidates(ctx context.Context, userID, topic string) ([]Candidate, error) {
	var hasActiveTracks bool
	if topic == "" {
		ok, err := s.rowExists(ctx, `SELECT 1 FROM tracks WHERE user_id = ? AND active = 1 LIMIT 1`, userID)
		if err != nil {
			return nil, err
		}
		hasActiveTracks = ok
	}

	query := `
		SELECT c.name, c.description, c.complexity,
			COALESCE((
				SELECT MAX(t.priority) FROM tracks t
				JOIN belongs_to b ON b.topic_id = t.topic_id
				WHERE b.concept_id = c.id AND t.user_id = ?1 AND t.active = 1
			), 0) AS priority,
			(SELECT COUNT(*) FROM prerequisite_for p WHERE p.concept_id = c.id) AS prereq_count,
			(SELECT COUNT(*) FROM prerequisite_for p
				JOIN knows k ON k.concept_id = p.prereq_id AND k.user_id = ?1
				WHERE p.concept_id = c.id AND k.proficiency >= ?2) AS known_count
		FROM concepts c
		WHERE NOT EXISTS (
			SELECT 1 FROM knows k WHERE k.user_id = ?1 AND k.concept_id = c.id AND k.proficiency >= 4
		)`
	args := []any{userID, KnownThreshold}

	switch {
	case topic != "":
		query += `
		AND EXISTS (
			SELECT 1 FROM belongs_to b JOIN topics t ON t.id = b.topic_id
			WHERE b.concept_id = c.id AND t.name = ?3
		)`
		args = append(args, topic)
	case hasActiveTracks:
		query += `
		AND EXISTS (
			SELECT 1 FROM belongs_to b JOIN tracks tr ON tr.topic_id = b.topic_id
			WHERE b.concept_id = c.id AND tr.user_id = ?1 AND tr.active = 1
		)`
	}
	query += ` ORDER BY c.name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var priority int
		if err := rows.Scan(&c.Name, &c.Description, &c.Complexity, &priority, &c.PrereqCount, &c.KnownPrereqCount); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if priority > 0 {
			c.Tracked = true
			c.TopicPriority = priority
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TrackedTopics(ctx context.Context, userID string) ([]TrackedTopic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, t.category, tr.active, tr.priority, tr.goal, tr.since
		FROM tracks tr JOIN topics t ON t.id = tr.topic_id
		WHERE tr.user_id = ?
		ORDER BY tr.priority DESC, t.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("tracked topics: %w", err)
	}
	defer rows.Close()

	var out []TrackedTopic
	for rows.Next() {
		var t TrackedTopic
		if err := rows.Scan(&t.Name, &t.Category, &t.Active, &t.Priority, &t.Goal, &t.Since); err != nil {
			return nil, fmt.Errorf("scan tracked topic: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) KnownConcepts(ctx context.Context, userID string) ([]KnownConcept, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, k.proficiency, k.stage, k.evidence_count, k.last_updated
		FROM knows k JOIN concepts c ON c.id = k.concept_id
		WHERE k.user_id = ?
		ORDER BY k.proficiency DESC, c.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("known concepts: %w", err)
	}
	defer rows.Close()

	var out []KnownConcept
	var ids []string
	for rows.Next() {
		var kc KnownConcept
		var id string
		if err := rows.Scan(&id, &kc.Name, &kc.Proficiency, &kc.Stage, &kc.EvidenceCount, &kc.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan known concept: %w", err)
		}
		out = append(out, kc)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, id := range ids {
		topics, err := s.parentTopics(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i].Topics = topics
	}
	return out, nil
}

func (s *SQLiteStore) parentTopics(ctx context.Context, conceptID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name FROM belongs_to b JOIN topics t ON t.id = b.topic_id
		WHERE b.concept_id = ? ORDER BY t.name
	`, conceptID)
	if err != nil {
		return nil, fmt.Errorf("parent topics: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan parent topic: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) GetTopic(ctx context.Context, name string) (*Topic, error) {
	var t Topic
	var prereqs string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, difficulty, summary, prerequisites, created_at
		FROM topics WHERE name = ?
	`, name).Scan(&t.ID, &t.Name, &t.Category, &t.Difficulty, &t.Summary, &prereqs, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("topic %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	if prereqs != "" {
		t.Prerequisites = strings.Split(prereqs, "\n")
	}
	return &t, nil
}

func (s *SQLiteStore) TopicConcepts(ctx context.Context, topic string) ([]Concept, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.description, c.complexity, c.explanation, c.misconceptions, c.use_cases, c.code_example, c.created_at
		FROM concepts c
		JOIN belongs_to b ON b.concept_id = c.id
		JOIN topics t ON t.id = b.topic_id
		WHERE t.name = ?
		ORDER BY c.name
	`, topic)
	if err != nil {
		return nil, fmt.Errorf("topic concepts: %w", err)
	}
	defer rows.Close()

	var out []Concept
	for rows.Next() {
		var c Concept
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Complexity, &c.Explanation, &c.Misconceptions, &c.UseCases, &c.CodeExample, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan topic concept: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetConcepts(ctx context.Context, names []string) ([]ConceptDetail, error) {
	out := make([]ConceptDetail, 0, len(names))
	for _, name := range names {
		var d ConceptDetail
		err := s.db.QueryRowContext(ctx, `
			SELECT id, name, description, complexity, explanation, misconceptions, use_cases, code_example, created_at
			FROM concepts WHERE name = ?
		`, name).Scan(&d.ID, &d.Name, &d.Description, &d.Complexity, &d.Explanation, &d.Misconceptions, &d.UseCases, &d.CodeExample, &d.CreatedAt)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get concept: %w", err)
		}
		topics, err := s.parentTopics(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		d.Topics = topics
		out = append(out, d)
	}
	return out, nil
}

func (s *SQLiteStore) RelatedOf(ctx context.Context, concept string) ([]RelatedEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT other.name, other.description, r.rel_type, r.strength, r.note, (self.id = r.from_id) AS outgoing
		FROM related_to r
		JOIN concepts self ON self.id = r.from_id OR self.id = r.to_id
		JOIN concepts other ON other.id = CASE WHEN self.id = r.from_id THEN r.to_id ELSE r.from_id END
		WHERE self.name = ?
		ORDER BY r.strength DESC, other.name
	`, concept)
	if err != nil {
		return nil, fmt.Errorf("related of: %w", err)
	}
	defer rows.Close()

	var out []RelatedEdge
	for rows.Next() {
		var e RelatedEdge
		if err := rows.Scan(&e.Name, &e.Description, &e.Type, &e.Strength, &e.Note, &e.Outgoing); err != nil {
			return nil, fmt.Errorf("scan related: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecentEvents(ctx context.Context, userID string, limit int) ([]LearningEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, event_type, details, created_at
		FROM events WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var out []LearningEvent
	for rows.Next() {
		var e LearningEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		names, err := s.eventConcepts(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Concepts = names
	}
	return out, nil
}

func (s *SQLiteStore) eventConcepts(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name FROM event_concepts ec JOIN concepts c ON c.id = ec.concept_id
		WHERE ec.event_id = ? ORDER BY c.name
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("event concepts: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan event concept: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) Counts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, 4)
	for kind, table := range map[string]string{
		"users":    "users",
		"topics":   "topics",
		"concepts": "concepts",
		"events":   "events",
	} {
		var n int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", kind, err)
		}
		counts[kind] = n
	}
	return counts, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
