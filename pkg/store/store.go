// Package store provides storage backends for the learner knowledge graph.
package store

import (
	"context"
	"errors"
	"time"
)

// LearningStyle is a user's preferred way of having things explained.
type LearningStyle string

const (
	StyleVisual     LearningStyle = "visual"
	StyleConceptual LearningStyle = "conceptual"
	StylePractical  LearningStyle = "practical"
	StyleAnalogical LearningStyle = "analogical"
)

// DetailLevel is a user's default explanation depth.
type DetailLevel string

const (
	DetailBeginner DetailLevel = "beginner"
	DetailStandard DetailLevel = "standard"
	DetailAdvanced DetailLevel = "advanced"
)

// TopicCategory classifies a topic node.
type TopicCategory string

const (
	CategoryLanguage  TopicCategory = "language"
	CategoryFramework TopicCategory = "framework"
	CategoryConcept   TopicCategory = "concept"
	CategoryParadigm  TopicCategory = "paradigm"
)

// RelatedType classifies a RELATED_TO edge between two concepts.
type RelatedType string

const (
	RelatedSimilar       RelatedType = "similar"
	RelatedBuildsOn      RelatedType = "builds_on"
	RelatedAlternativeTo RelatedType = "alternative_to"
	RelatedAppliedIn     RelatedType = "applied_in"
)

// EventType classifies a single observed learning signal.
type EventType string

const (
	EventLearned   EventType = "learned"
	EventPracticed EventType = "practiced"
	EventConfused  EventType = "confused"
	EventMastered  EventType = "mastered"
)

// Stage is the categorical knowledge stage derived from the most recent
// evidence. It is intentionally non-monotonic: a "confused" event moves a
// learner back to "learning" even though proficiency never decreases.
type Stage string

const (
	StageAware      Stage = "aware"
	StageLearning   Stage = "learning"
	StagePracticing Stage = "practicing"
	StageMastered   Stage = "mastered"
)

// User is a learner node. A LearningProfile is created atomically with the
// user and is never shared.
type User struct {
	ID            string
	DisplayName   string
	LearningStyle LearningStyle
	DetailLevel   DetailLevel
	Goals         string
	CreatedAt     time.Time
	LastActive    time.Time
}

// Topic is a subject area (a language, framework, concept family or paradigm).
type Topic struct {
	ID            string
	Name          string
	Category      TopicCategory
	Difficulty    int // 1-5
	Summary       string
	Prerequisites []string
	CreatedAt     time.Time
}

// Concept is a single learnable unit under one or more topics.
type Concept struct {
	ID             string
	Name           string
	Description    string
	Complexity     int // 1-5
	Explanation    string
	Misconceptions string
	UseCases       string
	CodeExample    string
	CreatedAt      time.Time
}

// LearningEvent is an immutable audit record. Events are append-only and are
// never updated or deleted.
type LearningEvent struct {
	ID        string
	UserID    string
	EventType EventType
	Details   string
	Concepts  []string
	CreatedAt time.Time
}

// BelongsTo carries the attributes of a Concept->Topic membership edge.
type BelongsTo struct {
	Primary    bool
	Importance float64 // 0-1
}

// Prerequisite carries the attributes of a Concept->Concept prerequisite edge.
type Prerequisite struct {
	Strength    float64 // 0-1
	Explanation string
}

// Related carries the attributes of a Concept<->Concept relatedness edge.
type Related struct {
	Type     RelatedType
	Strength float64 // 0-1
	Note     string
}

// Evidence is one merge-ready observation about a learner's grasp of a
// concept. Stage is derived from this evidence alone (latest-event rule)
// before the merge is issued; the store applies it unconditionally.
type Evidence struct {
	Proficiency float64 // 0-5
	EventType   EventType
	Stage       Stage
	Details     string
}

// KnowledgeState is the merged KNOWS edge for one (user, concept) pair.
type KnowledgeState struct {
	Concept       string
	Proficiency   float64
	Confidence    float64
	Stage         Stage
	EvidenceCount int
	Notes         string
	FirstSeen     time.Time
	LastUpdated   time.Time
}

// PrereqEdge is one incoming PREREQUISITE_FOR edge of a concept.
type PrereqEdge struct {
	Name        string
	Description string
	Strength    float64
	Explanation string
}

// Candidate is a recommendation candidate as fetched from the store. Scoring
// and eligibility filtering happen in the recommend package; the store only
// reports the raw counts.
type Candidate struct {
	Name             string
	Description      string
	Complexity       int
	TopicPriority    int  // highest priority among actively tracked parent topics
	Tracked          bool // true when linked to at least one actively tracked topic
	PrereqCount      int
	KnownPrereqCount int // prerequisites the user knows at or above the known threshold
}

// TrackedTopic is one TRACKS edge of a learning profile.
type TrackedTopic struct {
	Name     string
	Category TopicCategory
	Active   bool
	Priority int // 1-5
	Goal     string
	Since    time.Time
}

// KnownConcept is a per-concept knowledge summary for overview queries.
type KnownConcept struct {
	Name          string
	Proficiency   float64
	Stage         Stage
	EvidenceCount int
	LastUpdated   time.Time
	Topics        []string
}

// ConceptDetail is a concept together with the names of its parent topics.
type ConceptDetail struct {
	Concept
	Topics []string
}

// RelatedEdge is one RELATED_TO edge incident to a concept, in either
// direction.
type RelatedEdge struct {
	Name        string
	Description string
	Type        RelatedType
	Strength    float64
	Note        string
	Outgoing    bool
}

// ErrNotFound indicates a required entity (user, topic, concept) is absent.
// Callers treat it as a fallback signal, not an abort.
var ErrNotFound = errors.New("not found")

// ErrUnavailable indicates the underlying store could not be reached. It is
// surfaced to the caller without inline retries.
var ErrUnavailable = errors.New("store unavailable")

// KnownThreshold is the proficiency at which a concept counts as known when
// checking prerequisites (working knowledge on the 0-5 scale).
const KnownThreshold = 3.0

// Placeholder content written when an entity is referenced before it has been
// described. Deterministic so auto-created nodes are recognizable.
const (
	PlaceholderDescription = "Auto-created concept"
	PlaceholderSummary     = "Auto-created topic"
	PlaceholderRank        = 3

	DefaultTrackPriority = 3
	DefaultTrackGoal     = "Learning"
	InitialConfidence    = 0.8
)

// Store is the persistence contract for the knowledge graph. Association
// writes ensure both endpoints exist first, so callers never pre-create
// referenced entities. MergeKnowledge must be atomic per edge: concurrent
// merges on the same (user, concept) pair may interleave but each merge's
// read-modify-write is a single unit.
type Store interface {
	// EnsureUser creates the user and its learning profile if absent and
	// refreshes the last-active timestamp. displayName is only applied on
	// first creation; pass the user id when no better name is known.
	EnsureUser(ctx context.Context, id, displayName string) (*User, error)

	// GetUser returns ErrNotFound when the user does not exist.
	GetUser(ctx context.Context, id string) (*User, error)

	// SetLearningStyle updates the user's style and detail preferences.
	// Returns ErrNotFound for an unknown user.
	SetLearningStyle(ctx context.Context, id string, style LearningStyle, detail DetailLevel) error

	// EnsureTopic and EnsureConcept create placeholder nodes when the name is
	// not present. Existing nodes are left untouched.
	EnsureTopic(ctx context.Context, name string) error
	EnsureConcept(ctx context.Context, name string) error

	// PutTopic and PutConcept upsert full entity data by name.
	PutTopic(ctx context.Context, t *Topic) error
	PutConcept(ctx context.Context, c *Concept) error

	TopicExists(ctx context.Context, name string) (bool, error)
	ConceptExists(ctx context.Context, name string) (bool, error)

	// Association upserts. Re-applying overwrites the edge attributes; no
	// duplicate edges are ever created.
	LinkConceptToTopic(ctx context.Context, concept, topic string, attrs BelongsTo) error
	LinkPrerequisite(ctx context.Context, prereq, concept string, attrs Prerequisite) error
	LinkRelated(ctx context.Context, from, to string, attrs Related) error

	// MergeKnowledge upserts the KNOWS edge for (user, concept). On creation
	// it sets proficiency, confidence, firstSeen, evidenceCount=1, stage and
	// notes from the evidence. On update it raises proficiency to
	// max(existing, new), increments evidenceCount, overwrites the stage,
	// appends notes and refreshes lastUpdated. firstSeen is never changed.
	MergeKnowledge(ctx context.Context, userID, concept string, ev Evidence) (*KnowledgeState, error)

	// TrackTopicsOf upserts a TRACKS edge from the user's profile to every
	// topic the concept belongs to: created with default priority and goal,
	// or reactivated (active=true) leaving priority and goal untouched.
	TrackTopicsOf(ctx context.Context, userID, concept string) error

	// TrackTopic explicitly tracks a topic with the given priority and goal,
	// overwriting both on an existing edge. The topic is created if absent.
	TrackTopic(ctx context.Context, userID, topic string, priority int, goal string) error

	// RecordEvent appends an immutable learning event linked to the given
	// concepts and returns its id.
	RecordEvent(ctx context.Context, userID string, eventType EventType, details string, concepts []string) (string, error)

	PrerequisitesOf(ctx context.Context, concept string) ([]PrereqEdge, error)

	// ProficiencyFor returns the user's proficiency for each of the named
	// concepts. Concepts with no KNOWS edge are absent from the map.
	ProficiencyFor(ctx context.Context, userID string, concepts []string) (map[string]float64, error)

	// Candidates returns recommendation candidates: concepts the user does
	// not know well (no KNOWS edge or proficiency below 4), restricted to the
	// named topic when topic is non-empty, otherwise to actively tracked
	// topics when any exist, otherwise unrestricted.
	Candidates(ctx context.Context, userID, topic string) ([]Candidate, error)

	TrackedTopics(ctx context.Context, userID string) ([]TrackedTopic, error)
	KnownConcepts(ctx context.Context, userID string) ([]KnownConcept, error)

	// GetTopic returns ErrNotFound when the topic does not exist.
	GetTopic(ctx context.Context, name string) (*Topic, error)
	TopicConcepts(ctx context.Context, topic string) ([]Concept, error)

	// GetConcepts returns details for the named concepts that exist; unknown
	// names are skipped rather than failing the batch.
	GetConcepts(ctx context.Context, names []string) ([]ConceptDetail, error)

	RelatedOf(ctx context.Context, concept string) ([]RelatedEdge, error)

	// RecentEvents returns the user's events newest first, at most limit.
	RecentEvents(ctx context.Context, userID string, limit int) ([]LearningEvent, error)

	// Counts reports node counts by kind ("users", "topics", "concepts",
	// "events") for metrics gauges.
	Counts(ctx context.Context) (map[string]int64, error)

	Close() error
}
