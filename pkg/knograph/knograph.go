// Package knograph wires the knowledge graph, analysis and recommendation
// engines behind a single service facade.
package knograph

import (
	"context"
	"fmt"
	"time"

	"github.com/knograph/knograph/pkg/analysis"
	"github.com/knograph/knograph/pkg/knowledge"
	"github.com/knograph/knograph/pkg/llm"
	"github.com/knograph/knograph/pkg/logger"
	"github.com/knograph/knograph/pkg/metrics"
	"github.com/knograph/knograph/pkg/overview"
	"github.com/knograph/knograph/pkg/recommend"
	"github.com/knograph/knograph/pkg/store"
)

// Service is the main entry point. All operations are instrumented and safe
// for concurrent use; per-edge merge atomicity is delegated to the store.
type Service struct {
	store     store.Store
	analyzer  *analysis.Analyzer
	knowledge *knowledge.Engine
	recommend *recommend.Engine
	overview  *overview.Service
	metrics   metrics.Collector
	log       *logger.Logger
}

// New builds a service from config: Neo4j when a URI is configured, SQLite
// otherwise; OpenAI when an API key is configured, Ollama when a base URL is.
// Without either LLM provider the analysis operations return an error and
// everything else still works.
func New(cfg Config) (*Service, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var st store.Store
	if cfg.Neo4j.URI != "" {
		st, err = store.NewNeo4jStore(context.Background(), store.Neo4jConfig{
			URI:      cfg.Neo4j.URI,
			User:     cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
			Timeout:  cfg.StoreTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect neo4j: %w", err)
		}
		log.Info("using neo4j store", "uri", cfg.Neo4j.URI)
	} else {
		st, err = store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info("using sqlite store", "path", cfg.DBPath)
	}

	var client llm.Client
	switch {
	case cfg.OpenAI.APIKey != "":
		c := llm.NewOpenAIClient(cfg.OpenAI.APIKey)
		if cfg.OpenAI.Model != "" {
			c.Model = cfg.OpenAI.Model
		}
		client = c
	case cfg.Ollama.BaseURL != "":
		client = llm.NewOllamaClient(cfg.Ollama.BaseURL, cfg.Ollama.Model)
	default:
		log.Warn("no LLM provider configured, conversation analysis disabled")
	}

	return NewFromParts(st, client, metrics.NewCollector(), log), nil
}

// NewFromParts assembles a service from pre-built dependencies. client may be
// nil to disable analysis.
func NewFromParts(st store.Store, client llm.Client, collector metrics.Collector, log *logger.Logger) *Service {
	svc := &Service{
		store:     st,
		knowledge: knowledge.NewEngine(st, log),
		recommend: recommend.NewEngine(st, log),
		overview:  overview.New(st, log),
		metrics:   collector,
		log:       log,
	}
	if client != nil {
		svc.analyzer = analysis.NewAnalyzer(client, log)
	}
	return svc
}

func (s *Service) Close() error {
	s.log.Sync()
	return s.store.Close()
}

// observe records one operation's outcome in the metrics collector.
func (s *Service) observe(ctx context.Context, op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		s.metrics.RecordError(ctx, op, ClassifyError(err))
	}
	s.metrics.RecordOperation(ctx, op, status, time.Since(start).Milliseconds())
}

// AnalysisReport is the outcome of analyzing and recording a conversation.
type AnalysisReport struct {
	Relevant bool
	Analysis *analysis.Analysis
	EventID  string
	States   []*store.KnowledgeState
	Gaps     []recommend.Gap
}

// AnalyzeAndRecord gates the text on programming relevance, extracts concept
// findings, merges them into the user's knowledge state and reports any
// prerequisite gaps among the observed concepts. Irrelevant text returns a
// report with Relevant=false and touches nothing.
func (s *Service) AnalyzeAndRecord(ctx context.Context, userID, text, topicHint string) (report *AnalysisReport, err error) {
	defer func(start time.Time) { s.observe(ctx, "analyze_and_record", start, err) }(time.Now())

	if s.analyzer == nil {
		return nil, fmt.Errorf("no LLM provider configured")
	}

	relevant, err := s.analyzer.IsProgrammingRelated(ctx, text)
	if err != nil {
		return nil, err
	}
	if !relevant {
		return &AnalysisReport{Relevant: false}, nil
	}

	result, err := s.analyzer.AnalyzeConversation(ctx, text, topicHint)
	if err != nil {
		return nil, err
	}

	report = &AnalysisReport{Relevant: true, Analysis: result}
	if len(result.Concepts) == 0 {
		return report, nil
	}

	observations := make([]knowledge.Observation, len(result.Concepts))
	names := make([]string, len(result.Concepts))
	for i, f := range result.Concepts {
		observations[i] = knowledge.Observation{
			Concept:     f.Name,
			Proficiency: f.Proficiency,
			EventType:   store.EventType(f.EventType),
			Details:     f.Details,
		}
		names[i] = f.Name
	}

	details := "conversation analysis"
	if result.DetectedTopic != "" {
		details = fmt.Sprintf("conversation analysis: %s", result.DetectedTopic)
	}
	batch, err := s.knowledge.ApplyBatch(ctx, userID, store.EventLearned, details, observations)
	if err != nil {
		return nil, err
	}
	report.EventID = batch.EventID
	report.States = batch.States

	gaps, err := s.recommend.MissingPrerequisites(ctx, userID, names)
	if err != nil {
		// Gaps are advisory; the merge already happened.
		s.log.Warn("gap check failed after analysis", "user", userID, "error", err)
		return report, nil
	}
	report.Gaps = gaps
	return report, nil
}

// RecordLearning merges explicit observations and records one learning event
// covering them.
func (s *Service) RecordLearning(ctx context.Context, userID string, eventType store.EventType, details string, observations []knowledge.Observation) (result *knowledge.BatchResult, err error) {
	defer func(start time.Time) { s.observe(ctx, "record_learning", start, err) }(time.Now())
	return s.knowledge.ApplyBatch(ctx, userID, eventType, details, observations)
}

// KnowledgeGaps reports the prerequisites the user is missing for each of the
// target concepts.
func (s *Service) KnowledgeGaps(ctx context.Context, userID string, concepts []string) (gaps []recommend.Gap, err error) {
	defer func(start time.Time) { s.observe(ctx, "knowledge_gaps", start, err) }(time.Now())
	return s.recommend.MissingPrerequisites(ctx, userID, concepts)
}

// Recommendations suggests what the user should learn next, optionally scoped
// to one topic.
func (s *Service) Recommendations(ctx context.Context, userID, topic string) (recs []recommend.Recommendation, err error) {
	defer func(start time.Time) { s.observe(ctx, "recommendations", start, err) }(time.Now())
	return s.recommend.Next(ctx, userID, topic)
}

// LearningProgress returns the user's full progress snapshot.
func (s *Service) LearningProgress(ctx context.Context, userID string) (ov *overview.Overview, err error) {
	defer func(start time.Time) { s.observe(ctx, "learning_progress", start, err) }(time.Now())
	return s.overview.UserOverview(ctx, userID)
}

// TopicKnowledge returns a topic's concepts annotated with the user's
// standing on each.
func (s *Service) TopicKnowledge(ctx context.Context, userID, topic string) (tk *overview.TopicKnowledge, err error) {
	defer func(start time.Time) { s.observe(ctx, "topic_knowledge", start, err) }(time.Now())
	return s.overview.TopicKnowledge(ctx, userID, topic)
}

// ConceptDetails returns details for the named concepts, annotated with the
// user's proficiency when userID is non-empty.
func (s *Service) ConceptDetails(ctx context.Context, userID string, names []string) (details []overview.ConceptKnowledge, err error) {
	defer func(start time.Time) { s.observe(ctx, "concept_details", start, err) }(time.Now())
	return s.overview.Concepts(ctx, userID, names)
}

// RelatedConcepts partitions a concept's neighbours by whether the user
// knows them.
func (s *Service) RelatedConcepts(ctx context.Context, userID, concept string) (rel *overview.RelatedConcepts, err error) {
	defer func(start time.Time) { s.observe(ctx, "related_concepts", start, err) }(time.Now())
	return s.overview.Related(ctx, userID, concept)
}

// RecentEvents returns the user's learning history, newest first.
func (s *Service) RecentEvents(ctx context.Context, userID string, limit int) (events []store.LearningEvent, err error) {
	defer func(start time.Time) { s.observe(ctx, "recent_events", start, err) }(time.Now())
	return s.overview.RecentEvents(ctx, userID, limit)
}

// SetLearningStyle updates the user's explanation preferences, creating the
// user first if needed.
func (s *Service) SetLearningStyle(ctx context.Context, userID string, style store.LearningStyle, detail store.DetailLevel) (err error) {
	defer func(start time.Time) { s.observe(ctx, "set_learning_style", start, err) }(time.Now())
	if _, err = s.store.EnsureUser(ctx, userID, userID); err != nil {
		return err
	}
	return s.store.SetLearningStyle(ctx, userID, style, detail)
}

// AddTopic upserts full topic data.
func (s *Service) AddTopic(ctx context.Context, t *store.Topic) (err error) {
	defer func(start time.Time) { s.observe(ctx, "add_topic", start, err) }(time.Now())
	if t.Name == "" {
		return fmt.Errorf("topic name cannot be empty")
	}
	return s.store.PutTopic(ctx, t)
}

// AddConcept upserts full concept data and optionally links it to a topic.
func (s *Service) AddConcept(ctx context.Context, c *store.Concept, topic string, attrs store.BelongsTo) (err error) {
	defer func(start time.Time) { s.observe(ctx, "add_concept", start, err) }(time.Now())
	if c.Name == "" {
		return fmt.Errorf("concept name cannot be empty")
	}
	if err = s.store.PutConcept(ctx, c); err != nil {
		return err
	}
	if topic != "" {
		return s.store.LinkConceptToTopic(ctx, c.Name, topic, attrs)
	}
	return nil
}

// LinkPrerequisite declares that prereq should be learned before concept.
func (s *Service) LinkPrerequisite(ctx context.Context, prereq, concept string, attrs store.Prerequisite) (err error) {
	defer func(start time.Time) { s.observe(ctx, "link_prerequisite", start, err) }(time.Now())
	if prereq == "" || concept == "" {
		return fmt.Errorf("both concept names are required")
	}
	return s.store.LinkPrerequisite(ctx, prereq, concept, attrs)
}

// LinkRelated declares a relatedness edge between two concepts.
func (s *Service) LinkRelated(ctx context.Context, from, to string, attrs store.Related) (err error) {
	defer func(start time.Time) { s.observe(ctx, "link_related", start, err) }(time.Now())
	if from == "" || to == "" {
		return fmt.Errorf("both concept names are required")
	}
	return s.store.LinkRelated(ctx, from, to, attrs)
}

// TrackTopic explicitly tracks a topic for the user with a priority and goal.
func (s *Service) TrackTopic(ctx context.Context, userID, topic string, priority int, goal string) (err error) {
	defer func(start time.Time) { s.observe(ctx, "track_topic", start, err) }(time.Now())
	if priority < 1 || priority > 5 {
		return fmt.Errorf("priority must be between 1 and 5")
	}
	if _, err = s.store.EnsureUser(ctx, userID, userID); err != nil {
		return err
	}
	if goal == "" {
		goal = store.DefaultTrackGoal
	}
	return s.store.TrackTopic(ctx, userID, topic, priority, goal)
}

// RefreshGraphGauges pushes current node counts to the metrics gauges.
func (s *Service) RefreshGraphGauges(ctx context.Context) error {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return err
	}
	for kind, count := range counts {
		s.metrics.SetGraphCount(ctx, kind, count)
	}
	return nil
}
