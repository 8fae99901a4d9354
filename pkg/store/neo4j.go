package store

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig carries connection settings for the Neo4j backend.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
	Timeout  time.Duration
	MaxPool  int
}

// Neo4jStore implements Store against a Neo4j database. Each operation opens
// a scoped session and releases it on return; edge merges use Cypher MERGE
// with conditional SET, which gives the per-edge atomicity the knowledge
// merge requires.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore connects to Neo4j, verifies connectivity and installs the
// uniqueness constraints (best effort; restricted users may not be allowed
// to create them).
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	if cfg.User == "" {
		cfg.User = "neo4j"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxPool <= 0 {
		cfg.MaxPool = 50
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPool
		c.SocketConnectTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init driver: %v", ErrUnavailable, err)
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: verify connectivity: %v", ErrUnavailable, err)
	}

	s := &Neo4jStore{driver: driver, database: cfg.Database}
	s.initConstraints(ctx)
	return s, nil
}

func (s *Neo4jStore) initConstraints(ctx context.Context) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range []string{
		`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
		`CREATE CONSTRAINT topic_name_unique IF NOT EXISTS FOR (t:Topic) REQUIRE t.name IS UNIQUE`,
		`CREATE CONSTRAINT concept_name_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.name IS UNIQUE`,
		`CREATE CONSTRAINT event_id_unique IF NOT EXISTS FOR (e:LearningEvent) REQUIRE e.id IS UNIQUE`,
	} {
		if res, err := session.Run(ctx, stmt, nil); err == nil {
			_, _ = res.Consume(ctx)
		}
	}
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

func (s *Neo4jStore) write(ctx context.Context, cypher string, params map[string]any) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Neo4jStore) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return records.([]*neo4j.Record), nil
}

func (s *Neo4jStore) EnsureUser(ctx context.Context, id, displayName string) (*User, error) {
	if displayName == "" {
		displayName = id
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	records, err := s.readWrite(ctx, `
MERGE (u:User {id: $id})
ON CREATE SET u.displayName = $name, u.createdAt = $now,
	u.learningStyle = 'conceptual', u.detailLevel = 'standard'
SET u.lastActive = $now
MERGE (u)-[:HAS_PROFILE]->(p:LearningProfile {userId: $id})
ON CREATE SET p.goals = '', p.updatedAt = $now
RETURN u.id AS id, u.displayName AS displayName, u.learningStyle AS learningStyle,
	u.detailLevel AS detailLevel, p.goals AS goals, u.createdAt AS createdAt, u.lastActive AS lastActive
`, map[string]any{"id": id, "name": displayName, "now": now})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	return userFromRecord(records[0]), nil
}

// readWrite runs a write statement that also returns rows.
func (s *Neo4jStore) readWrite(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	records, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return records.([]*neo4j.Record), nil
}

func (s *Neo4jStore) GetUser(ctx context.Context, id string) (*User, error) {
	records, err := s.read(ctx, `
MATCH (u:User {id: $id})-[:HAS_PROFILE]->(p:LearningProfile)
RETURN u.id AS id, u.displayName AS displayName, u.learningStyle AS learningStyle,
	u.detailLevel AS detailLevel, p.goals AS goals, u.createdAt AS createdAt, u.lastActive AS lastActive
`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	return userFromRecord(records[0]), nil
}

func (s *Neo4jStore) SetLearningStyle(ctx context.Context, id string, style LearningStyle, detail DetailLevel) error {
	records, err := s.readWrite(ctx, `
MATCH (u:User {id: $id})
SET u.learningStyle = $style, u.detailLevel = $detail, u.lastActive = $now
RETURN u.id AS id
`, map[string]any{
		"id": id, "style": string(style), "detail": string(detail),
		"now": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Neo4jStore) EnsureTopic(ctx context.Context, name string) error {
	return s.write(ctx, `
MERGE (t:Topic {name: $name})
ON CREATE SET t.id = randomUUID(), t.category = 'concept', t.difficulty = $rank,
	t.summary = $summary, t.prerequisites = [], t.createdAt = $now
`, map[string]any{
		"name": name, "rank": PlaceholderRank, "summary": PlaceholderSummary,
		"now": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Neo4jStore) EnsureConcept(ctx context.Context, name string) error {
	return s.write(ctx, `
MERGE (c:Concept {name: $name})
ON CREATE SET c.id = randomUUID(), c.description = $description, c.complexity = $rank,
	c.explanation = '', c.misconceptions = '', c.useCases = '', c.codeExample = '', c.createdAt = $now
`, map[string]any{
		"name": name, "rank": PlaceholderRank, "description": PlaceholderDescription,
		"now": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Neo4jStore) PutTopic(ctx context.Context, t *Topic) error {
	prereqs := t.Prerequisites
	if prereqs == nil {
		prereqs = []string{}
	}
	return s.write(ctx, `
MERGE (t:Topic {name: $name})
ON CREATE SET t.id = randomUUID(), t.createdAt = $now
SET t.category = $category, t.difficulty = $difficulty, t.summary = $summary, t.prerequisites = $prerequisites
`, map[string]any{
		"name": t.Name, "category": string(t.Category), "difficulty": t.Difficulty,
		"summary": t.Summary, "prerequisites": prereqs,
		"now": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Neo4jStore) PutConcept(ctx context.Context, c *Concept) error {
	return s.write(ctx, `
MERGE (c:Concept {name: $name})
ON CREATE SET c.id = randomUUID(), c.createdAt = $now
SET c.description = $description, c.complexity = $complexity, c.explanation = $explanation,
	c.misconceptions = $misconceptions, c.useCases = $useCases, c.codeExample = $codeExample
`, map[string]any{
		"name": c.Name, "description": c.Description, "complexity": c.Complexity,
		"explanation": c.Explanation, "misconceptions": c.Misconceptions,
		"useCases": c.UseCases, "codeExample": c.CodeExample,
		"now": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Neo4jStore) TopicExists(ctx context.Context, name string) (bool, error) {
	records, err := s.read(ctx, `MATCH (t:Topic {name: $name}) RETURN t.name AS name LIMIT 1`, map[string]any{"name": name})
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

func (s *Neo4jStore) ConceptExists(ctx context.Context, name string) (bool, error) {
	records, err := s.read(ctx, `MATCH (c:Concept {name: $name}) RETURN c.name AS name LIMIT 1`, map[string]any{"name": name})
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

func (s *Neo4jStore) LinkConceptToTopic(ctx context.Context, concept, topic string, attrs BelongsTo) error {
	if err := s.EnsureConcept(ctx, concept); err != nil {
		return err
	}
	if err := s.EnsureTopic(ctx, topic); err != nil {
		return err
	}
	return s.write(ctx, `
MATCH (c:Concept {name: $concept}), (t:Topic {name: $topic})
MERGE (c)-[b:BELONGS_TO]->(t)
SET b.primary = $primary, b.importance = $importance
`, map[string]any{
		"concept": concept, "topic": topic,
		"primary": attrs.Primary, "importance": attrs.Importance,
	})
}

func (s *Neo4jStore) LinkPrerequisite(ctx context.Context, prereq, concept string, attrs Prerequisite) error {
	if err := s.EnsureConcept(ctx, prereq); err != nil {
		return err
	}
	if err := s.EnsureConcept(ctx, concept); err != nil {
		return err
	}
	return s.write(ctx, `
MATCH (p:Concept {name: $prereq}), (c:Concept {name: $concept})
MERGE (p)-[r:PREREQUISITE_FOR]->(c)
SET r.strength = $strength, r.explanation = $explanation
`, map[string]any{
		"prereq": prereq, "concept": concept,
		"strength": attrs.Strength, "explanation": attrs.Explanation,
	})
}

func (s *Neo4jStore) LinkRelated(ctx context.Context, from, to string, attrs Related) error {
	if err := s.EnsureConcept(ctx, from); err != nil {
		return err
	}
	if err := s.EnsureConcept(ctx, to); err != nil {
		return err
	}
	return s.write(ctx, `
MATCH (a:Concept {name: $from}), (b:Concept {name: $to})
MERGE (a)-[r:RELATED_TO]->(b)
SET r.relationshipType = $type, r.strength = $strength, r.note = $note
`, map[string]any{
		"from": from, "to": to,
		"type": string(attrs.Type), "strength": attrs.Strength, "note": attrs.Note,
	})
}

func (s *Neo4jStore) MergeKnowledge(ctx context.Context, userID, concept string, ev Evidence) (*KnowledgeState, error) {
	if _, err := s.EnsureUser(ctx, userID, ""); err != nil {
		return nil, err
	}
	if err := s.EnsureConcept(ctx, concept); err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	records, err := s.readWrite(ctx, `
MATCH (:User {id: $user})-[:HAS_PROFILE]->(p:LearningProfile)
MATCH (c:Concept {name: $concept})
MERGE (p)-[k:KNOWS]->(c)
ON CREATE SET k.proficiency = $proficiency, k.confidence = $confidence, k.firstSeen = $now,
	k.evidenceCount = 1, k.knowledgeStage = $stage, k.notes = $details, k.lastUpdated = $now
ON MATCH SET
	k.proficiency = CASE WHEN k.proficiency < $proficiency THEN $proficiency ELSE k.proficiency END,
	k.evidenceCount = k.evidenceCount + 1,
	k.knowledgeStage = $stage,
	k.notes = CASE
		WHEN $details = '' THEN k.notes
		WHEN k.notes = '' THEN $details
		ELSE k.notes + '\n' + $details END,
	k.lastUpdated = $now
RETURN k.proficiency AS proficiency, k.confidence AS confidence, k.knowledgeStage AS stage,
	k.evidenceCount AS evidenceCount, k.notes AS notes, k.firstSeen AS firstSeen, k.lastUpdated AS lastUpdated
`, map[string]any{
		"user": userID, "concept": concept,
		"proficiency": ev.Proficiency, "confidence": InitialConfidence,
		"stage": string(ev.Stage), "details": ev.Details, "now": now,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("knowledge merge for %q: %w", concept, ErrNotFound)
	}
	rec := records[0]
	return &KnowledgeState{
		Concept:       concept,
		Proficiency:   recFloat(rec, "proficiency"),
		Confidence:    recFloat(rec, "confidence"),
		Stage:         Stage(recString(rec, "stage")),
		EvidenceCount: recInt(rec, "evidenceCount"),
		Notes:         recString(rec, "notes"),
		FirstSeen:     recTime(rec, "firstSeen"),
		LastUpdated:   recTime(rec, "lastUpdated"),
	}, nil
}

func (s *Neo4jStore) TrackTopicsOf(ctx context.Context, userID, concept string) error {
	return s.write(ctx, `
MATCH (:User {id: $user})-[:HAS_PROFILE]->(p:LearningProfile)
MATCH (:Concept {name: $concept})-[:BELONGS_TO]->(t:Topic)
MERGE (p)-[tr:TRACKS]->(t)
ON CREATE SET tr.active = true, tr.priority = $priority, tr.goal = $goal, tr.since = $now
ON MATCH SET tr.active = true
`, map[string]any{
		"user": userID, "concept": concept,
		"priority": DefaultTrackPriority, "goal": DefaultTrackGoal,
		"now": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Neo4jStore) TrackTopic(ctx context.Context, userID, topic string, priority int, goal string) error {
	return s.write(ctx, `
MATCH (:User {id: $user})-[:HAS_PROFILE]->(p:LearningProfile)
MERGE (t:Topic {name: $topic})
ON CREATE SET t.id = randomUUID(), t.category = 'concept', t.difficulty = $rank,
              t.summary = $summary, t.createdAt = $now
MERGE (p)-[tr:TRACKS]->(t)
ON CREATE SET tr.since = $now
SET tr.active = true, tr.priority = $priority, tr.goal = $goal
`, map[string]any{
		"user": userID, "topic": topic,
		"priority": priority, "goal": goal,
		"rank": PlaceholderRank, "summary": PlaceholderSummary,
		"now": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Neo4jStore) RecordEvent(ctx context.Context, userID string, eventType EventType, details string, concepts []string) (string, error) {
	records, err := s.readWrite(ctx, `
MATCH (u:User {id: $user})
CREATE (e:LearningEvent {id: randomUUID(), eventType: $eventType, details: $details, createdAt: $now})
CREATE (u)-[:EXPERIENCED]->(e)
WITH e
UNWIND $concepts AS name
MATCH (c:Concept {name: name})
CREATE (e)-[:INVOLVES]->(c)
RETURN DISTINCT e.id AS id
`, map[string]any{
		"user": userID, "eventType": string(eventType), "details": details,
		"concepts": concepts, "now": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		// No concepts matched the UNWIND; create the bare event.
		records, err = s.readWrite(ctx, `
MATCH (u:User {id: $user})
CREATE (e:LearningEvent {id: randomUUID(), eventType: $eventType, details: $details, createdAt: $now})
CREATE (u)-[:EXPERIENCED]->(e)
RETURN e.id AS id
`, map[string]any{
			"user": userID, "eventType": string(eventType), "details": details,
			"now": time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return "", err
		}
		if len(records) == 0 {
			return "", fmt.Errorf("user %q: %w", userID, ErrNotFound)
		}
	}
	return recString(records[0], "id"), nil
}

func (s *Neo4jStore) PrerequisitesOf(ctx context.Context, concept string) ([]PrereqEdge, error) {
	records, err := s.read(ctx, `
MATCH (p:Concept)-[r:PREREQUISITE_FOR]->(c:Concept {name: $concept})
RETURN p.name AS name, p.description AS description, r.strength AS strength, r.explanation AS explanation
ORDER BY p.name
`, map[string]any{"concept": concept})
	if err != nil {
		return nil, err
	}
	out := make([]PrereqEdge, 0, len(records))
	for _, rec := range records {
		out = append(out, PrereqEdge{
			Name:        recString(rec, "name"),
			Description: recString(rec, "description"),
			Strength:    recFloat(rec, "strength"),
			Explanation: recString(rec, "explanation"),
		})
	}
	return out, nil
}

func (s *Neo4jStore) ProficiencyFor(ctx context.Context, userID string, concepts []string) (map[string]float64, error) {
	result := make(map[string]float64, len(concepts))
	if len(concepts) == 0 {
		return result, nil
	}
	records, err := s.read(ctx, `
MATCH (:User {id: $user})-[:HAS_PROFILE]->(p:LearningProfile)-[k:KNOWS]->(c:Concept)
WHERE c.name IN $concepts
RETURN c.name AS name, k.proficiency AS proficiency
`, map[string]any{"user": userID, "concepts": concepts})
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		result[recString(rec, "name")] = recFloat(rec, "proficiency")
	}
	return result, nil
}

func (s *Neo4jStore) Candidates(ctx context.Context, userID, topic string) ([]Candidate, error) {
	var hasActiveTracks bool
	if topic == "" {
		records, err := s.read(ctx, `
MATCH (:User {id: $user})-[:HAS_PROFILE]->(:LearningProfile)-[tr:TRACKS]->(:Topic)
WHERE tr.active RETURN tr LIMIT 1
`, map[string]any{"user": userID})
		if err != nil {
			return nil, err
		}
		hasActiveTracks = len(records) > 0
	}

	restriction := ""
	params := map[string]any{"user": userID, "threshold": KnownThreshold}
	switch {
	case topic != "":
		restriction = `AND EXISTS { MATCH (c)-[:BELONGS_TO]->(:Topic {name: $topic}) }`
		params["topic"] = topic
	case hasActiveTracks:
		restriction = `AND EXISTS { MATCH (c)-[:BELONGS_TO]->(t0:Topic)<-[tr0:TRACKS]-(p0:LearningProfile {userId: $user}) WHERE tr0.active }`
	}

	records, err := s.read(ctx, fmt.Sprintf(`
MATCH (c:Concept)
OPTIONAL MATCH (:User {id: $user})-[:HAS_PROFILE]->(:LearningProfile)-[k:KNOWS]->(c)
WITH c, k
WHERE (k IS NULL OR k.proficiency < 4) %s
OPTIONAL MATCH (c)-[:BELONGS_TO]->(t:Topic)<-[tr:TRACKS]-(:LearningProfile {userId: $user})
WHERE tr.active
WITH c, max(tr.priority) AS priority
OPTIONAL MATCH (pr:Concept)-[:PREREQUISITE_FOR]->(c)
OPTIONAL MATCH (:LearningProfile {userId: $user})-[pk:KNOWS]->(pr)
WHERE pk.proficiency >= $threshold
WITH c, priority, count(DISTINCT pr) AS prereqCount,
	count(DISTINCT CASE WHEN pk IS NOT NULL THEN pr END) AS knownCount
RETURN c.name AS name, c.description AS description, c.complexity AS complexity,
	priority, prereqCount, knownCount
ORDER BY c.name
`, restriction), params)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(records))
	for _, rec := range records {
		c := Candidate{
			Name:             recString(rec, "name"),
			Description:      recString(rec, "description"),
			Complexity:       recInt(rec, "complexity"),
			PrereqCount:      recInt(rec, "prereqCount"),
			KnownPrereqCount: recInt(rec, "knownCount"),
		}
		if prio, ok := rec.Get("priority"); ok && prio != nil {
			c.Tracked = true
			c.TopicPriority = recInt(rec, "priority")
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Neo4jStore) TrackedTopics(ctx context.Context, userID string) ([]TrackedTopic, error) {
	records, err := s.read(ctx, `
MATCH (:User {id: $user})-[:HAS_PROFILE]->(:LearningProfile)-[tr:TRACKS]->(t:Topic)
RETURN t.name AS name, t.category AS category, tr.active AS active,
	tr.priority AS priority, tr.goal AS goal, tr.since AS since
ORDER BY tr.priority DESC, t.name
`, map[string]any{"user": userID})
	if err != nil {
		return nil, err
	}
	out := make([]TrackedTopic, 0, len(records))
	for _, rec := range records {
		out = append(out, TrackedTopic{
			Name:     recString(rec, "name"),
			Category: TopicCategory(recString(rec, "category")),
			Active:   recBool(rec, "active"),
			Priority: recInt(rec, "priority"),
			Goal:     recString(rec, "goal"),
			Since:    recTime(rec, "since"),
		})
	}
	return out, nil
}

func (s *Neo4jStore) KnownConcepts(ctx context.Context, userID string) ([]KnownConcept, error) {
	records, err := s.read(ctx, `
MATCH (:User {id: $user})-[:HAS_PROFILE]->(:LearningProfile)-[k:KNOWS]->(c:Concept)
OPTIONAL MATCH (c)-[:BELONGS_TO]->(t:Topic)
WITH c, k, collect(t.name) AS topics
RETURN c.name AS name, k.proficiency AS proficiency, k.knowledgeStage AS stage,
	k.evidenceCount AS evidenceCount, k.lastUpdated AS lastUpdated, topics
ORDER BY k.proficiency DESC, c.name
`, map[string]any{"user": userID})
	if err != nil {
		return nil, err
	}
	out := make([]KnownConcept, 0, len(records))
	for _, rec := range records {
		out = append(out, KnownConcept{
			Name:          recString(rec, "name"),
			Proficiency:   recFloat(rec, "proficiency"),
			Stage:         Stage(recString(rec, "stage")),
			EvidenceCount: recInt(rec, "evidenceCount"),
			LastUpdated:   recTime(rec, "lastUpdated"),
			Topics:        recStrings(rec, "topics"),
		})
	}
	return out, nil
}

func (s *Neo4jStore) GetTopic(ctx context.Context, name string) (*Topic, error) {
	records, err := s.read(ctx, `
MATCH (t:Topic {name: $name})
RETURN t.id AS id, t.name AS name, t.category AS category, t.difficulty AS difficulty,
	t.summary AS summary, t.prerequisites AS prerequisites, t.createdAt AS createdAt
`, map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("topic %q: %w", name, ErrNotFound)
	}
	rec := records[0]
	return &Topic{
		ID:            recString(rec, "id"),
		Name:          recString(rec, "name"),
		Category:      TopicCategory(recString(rec, "category")),
		Difficulty:    recInt(rec, "difficulty"),
		Summary:       recString(rec, "summary"),
		Prerequisites: recStrings(rec, "prerequisites"),
		CreatedAt:     recTime(rec, "createdAt"),
	}, nil
}

func (s *Neo4jStore) TopicConcepts(ctx context.Context, topic string) ([]Concept, error) {
	records, err := s.read(ctx, `
MATCH (c:Concept)-[:BELONGS_TO]->(:Topic {name: $topic})
RETURN c.id AS id, c.name AS name, c.description AS description, c.complexity AS complexity,
	c.explanation AS explanation, c.misconceptions AS misconceptions,
	c.useCases AS useCases, c.codeExample AS codeExample, c.createdAt AS createdAt
ORDER BY c.name
`, map[string]any{"topic": topic})
	if err != nil {
		return nil, err
	}
	out := make([]Concept, 0, len(records))
	for _, rec := range records {
		out = append(out, conceptFromRecord(rec))
	}
	return out, nil
}

func (s *Neo4jStore) GetConcepts(ctx context.Context, names []string) ([]ConceptDetail, error) {
	records, err := s.read(ctx, `
MATCH (c:Concept)
WHERE c.name IN $names
OPTIONAL MATCH (c)-[:BELONGS_TO]->(t:Topic)
WITH c, collect(t.name) AS topics
RETURN c.id AS id, c.name AS name, c.description AS description, c.complexity AS complexity,
	c.explanation AS explanation, c.misconceptions AS misconceptions,
	c.useCases AS useCases, c.codeExample AS codeExample, c.createdAt AS createdAt, topics
ORDER BY c.name
`, map[string]any{"names": names})
	if err != nil {
		return nil, err
	}
	out := make([]ConceptDetail, 0, len(records))
	for _, rec := range records {
		out = append(out, ConceptDetail{
			Concept: conceptFromRecord(rec),
			Topics:  recStrings(rec, "topics"),
		})
	}
	return out, nil
}

func (s *Neo4jStore) RelatedOf(ctx context.Context, concept string) ([]RelatedEdge, error) {
	records, err := s.read(ctx, `
MATCH (self:Concept {name: $concept})-[r:RELATED_TO]-(other:Concept)
RETURN other.name AS name, other.description AS description, r.relationshipType AS relType,
	r.strength AS strength, r.note AS note, startNode(r) = self AS outgoing
ORDER BY r.strength DESC, other.name
`, map[string]any{"concept": concept})
	if err != nil {
		return nil, err
	}
	out := make([]RelatedEdge, 0, len(records))
	for _, rec := range records {
		out = append(out, RelatedEdge{
			Name:        recString(rec, "name"),
			Description: recString(rec, "description"),
			Type:        RelatedType(recString(rec, "relType")),
			Strength:    recFloat(rec, "strength"),
			Note:        recString(rec, "note"),
			Outgoing:    recBool(rec, "outgoing"),
		})
	}
	return out, nil
}

func (s *Neo4jStore) RecentEvents(ctx context.Context, userID string, limit int) ([]LearningEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	records, err := s.read(ctx, `
MATCH (:User {id: $user})-[:EXPERIENCED]->(e:LearningEvent)
OPTIONAL MATCH (e)-[:INVOLVES]->(c:Concept)
WITH e, collect(c.name) AS concepts
RETURN e.id AS id, e.eventType AS eventType, e.details AS details, e.createdAt AS createdAt, concepts
ORDER BY e.createdAt DESC
LIMIT $limit
`, map[string]any{"user": userID, "limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]LearningEvent, 0, len(records))
	for _, rec := range records {
		out = append(out, LearningEvent{
			ID:        recString(rec, "id"),
			UserID:    userID,
			EventType: EventType(recString(rec, "eventType")),
			Details:   recString(rec, "details"),
			Concepts:  recStrings(rec, "concepts"),
			CreatedAt: recTime(rec, "createdAt"),
		})
	}
	return out, nil
}

func (s *Neo4jStore) Counts(ctx context.Context) (map[string]int64, error) {
	records, err := s.read(ctx, `
RETURN count { MATCH (u:User) RETURN u } AS users,
	count { MATCH (t:Topic) RETURN t } AS topics,
	count { MATCH (c:Concept) RETURN c } AS concepts,
	count { MATCH (e:LearningEvent) RETURN e } AS events
`, nil)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return map[string]int64{}, nil
	}
	rec := records[0]
	return map[string]int64{
		"users":    int64(recInt(rec, "users")),
		"topics":   int64(recInt(rec, "topics")),
		"concepts": int64(recInt(rec, "concepts")),
		"events":   int64(recInt(rec, "events")),
	}, nil
}

func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

func userFromRecord(rec *neo4j.Record) *User {
	return &User{
		ID:            recString(rec, "id"),
		DisplayName:   recString(rec, "displayName"),
		LearningStyle: LearningStyle(recString(rec, "learningStyle")),
		DetailLevel:   DetailLevel(recString(rec, "detailLevel")),
		Goals:         recString(rec, "goals"),
		CreatedAt:     recTime(rec, "createdAt"),
		LastActive:    recTime(rec, "lastActive"),
	}
}

func conceptFromRecord(rec *neo4j.Record) Concept {
	return Concept{
		ID:             recString(rec, "id"),
		Name:           recString(rec, "name"),
		Description:    recString(rec, "description"),
		Complexity:     recInt(rec, "complexity"),
		Explanation:    recString(rec, "explanation"),
		Misconceptions: recString(rec, "misconceptions"),
		UseCases:       recString(rec, "useCases"),
		CodeExample:    recString(rec, "codeExample"),
		CreatedAt:      recTime(rec, "createdAt"),
	}
}

func recString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func recInt(rec *neo4j.Record, key string) int {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func recFloat(rec *neo4j.Record, key string) float64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func recBool(rec *neo4j.Record, key string) bool {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func recTime(rec *neo4j.Record, key string) time.Time {
	s := recString(rec, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func recStrings(rec *neo4j.Record, key string) []string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
