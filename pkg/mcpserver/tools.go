package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/knograph/knograph/pkg/knowledge"
	"github.com/knograph/knograph/pkg/recommend"
	"github.com/knograph/knograph/pkg/store"
)

// conceptState is the wire form of a merged KNOWS edge.
type conceptState struct {
	Name          string  `json:"name"`
	Proficiency   float64 `json:"proficiency"`
	Stage         string  `json:"stage"`
	EvidenceCount int     `json:"evidence_count"`
}

type prereqOut struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Strength    float64 `json:"strength"`
	Explanation string  `json:"explanation,omitempty"`
}

type gapOut struct {
	Concept string      `json:"concept"`
	Missing []prereqOut `json:"missing_prerequisites"`
}

func toGapOut(gaps []recommend.Gap) []gapOut {
	out := make([]gapOut, 0, len(gaps))
	for _, g := range gaps {
		gg := gapOut{Concept: g.Concept}
		for _, m := range g.Missing {
			gg.Missing = append(gg.Missing, prereqOut{
				Name:        m.Name,
				Description: m.Description,
				Strength:    m.Strength,
				Explanation: m.Explanation,
			})
		}
		out = append(out, gg)
	}
	return out
}

func toStates(states []*store.KnowledgeState) []conceptState {
	out := make([]conceptState, 0, len(states))
	for _, st := range states {
		out = append(out, conceptState{
			Name:          st.Concept,
			Proficiency:   st.Proficiency,
			Stage:         string(st.Stage),
			EvidenceCount: st.EvidenceCount,
		})
	}
	return out
}

type analyzeIn struct {
	UserID    string `json:"user_id" jsonschema:"the learner's identifier"`
	Text      string `json:"text" jsonschema:"the conversation text to analyze"`
	TopicHint string `json:"topic_hint,omitempty" jsonschema:"optional topic the conversation is probably about"`
}

type analyzeOut struct {
	Relevant      bool           `json:"relevant"`
	DetectedTopic string         `json:"detected_topic,omitempty"`
	EventID       string         `json:"event_id,omitempty"`
	Concepts      []conceptState `json:"concepts,omitempty"`
	Gaps          []gapOut       `json:"gaps,omitempty"`
}

type conceptObservation struct {
	Name        string  `json:"name"`
	Proficiency float64 `json:"proficiency" jsonschema:"demonstrated proficiency from 0 to 5"`
	EventType   string  `json:"event_type,omitempty" jsonschema:"per-concept override of the batch event type"`
	Details     string  `json:"details,omitempty"`
}

type recordIn struct {
	UserID    string               `json:"user_id" jsonschema:"the learner's identifier"`
	EventType string               `json:"event_type" jsonschema:"one of learned, practiced, confused, mastered"`
	Details   string               `json:"details,omitempty" jsonschema:"what happened in this session"`
	Concepts  []conceptObservation `json:"concepts"`
}

type recordOut struct {
	EventID string         `json:"event_id"`
	States  []conceptState `json:"states"`
	Failed  []string       `json:"failed,omitempty"`
}

type gapsIn struct {
	UserID   string   `json:"user_id"`
	Concepts []string `json:"concepts" jsonschema:"target concepts to check prerequisites for"`
}

type gapsOut struct {
	Gaps []gapOut `json:"gaps"`
}

type recommendIn struct {
	UserID string `json:"user_id"`
	Topic  string `json:"topic,omitempty" jsonschema:"restrict recommendations to this topic"`
}

type recOut struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Complexity  int    `json:"complexity"`
	Score       int    `json:"score"`
	Tracked     bool   `json:"tracked"`
}

type recommendOut struct {
	Recommendations []recOut `json:"recommendations"`
}

type progressIn struct {
	UserID string `json:"user_id"`
}

type trackedTopicOut struct {
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Priority int    `json:"priority"`
	Goal     string `json:"goal,omitempty"`
}

type knownConceptOut struct {
	Name          string   `json:"name"`
	Proficiency   float64  `json:"proficiency"`
	Stage         string   `json:"stage"`
	EvidenceCount int      `json:"evidence_count"`
	Topics        []string `json:"topics,omitempty"`
}

type progressOut struct {
	DisplayName   string            `json:"display_name"`
	LearningStyle string            `json:"learning_style,omitempty"`
	DetailLevel   string            `json:"detail_level,omitempty"`
	TrackedTopics []trackedTopicOut `json:"tracked_topics"`
	KnownConcepts []knownConceptOut `json:"known_concepts"`
	StageCounts   map[string]int    `json:"stage_counts"`
}

type topicIn struct {
	UserID string `json:"user_id,omitempty" jsonschema:"include this learner's progress per concept"`
	Topic  string `json:"topic"`
}

type topicOut struct {
	Name       string            `json:"name"`
	Category   string            `json:"category"`
	Difficulty int               `json:"difficulty"`
	Summary    string            `json:"summary,omitempty"`
	KnownCount int               `json:"known_count"`
	Concepts   []topicConceptOut `json:"concepts"`
}

type topicConceptOut struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Complexity  int     `json:"complexity"`
	Proficiency float64 `json:"proficiency"`
	Known       bool    `json:"known"`
}

type relatedIn struct {
	UserID  string `json:"user_id,omitempty"`
	Concept string `json:"concept"`
}

type relatedEdgeOut struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
	Note     string  `json:"note,omitempty"`
}

type relatedOut struct {
	Concept string           `json:"concept"`
	Known   []relatedEdgeOut `json:"known"`
	Unknown []relatedEdgeOut `json:"unknown"`
}

type eventsIn struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum events to return, default 10"`
}

type eventOut struct {
	EventType string   `json:"event_type"`
	Details   string   `json:"details,omitempty"`
	Concepts  []string `json:"concepts,omitempty"`
	CreatedAt string   `json:"created_at"`
}

type eventsOut struct {
	Events []eventOut `json:"events"`
}

type styleIn struct {
	UserID      string `json:"user_id"`
	Style       string `json:"style" jsonschema:"one of visual, conceptual, practical, analogical"`
	DetailLevel string `json:"detail_level" jsonschema:"one of beginner, standard, advanced"`
}

type addTopicIn struct {
	Name       string `json:"name"`
	Category   string `json:"category" jsonschema:"one of language, framework, concept, paradigm"`
	Difficulty int    `json:"difficulty" jsonschema:"1 to 5"`
	Summary    string `json:"summary,omitempty"`
}

type addConceptIn struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Complexity  int     `json:"complexity" jsonschema:"1 to 5"`
	Explanation string  `json:"explanation,omitempty"`
	Topic       string  `json:"topic,omitempty" jsonschema:"topic to file this concept under"`
	Primary     bool    `json:"primary,omitempty"`
	Importance  float64 `json:"importance,omitempty" jsonschema:"0 to 1"`
}

type linkIn struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	LinkType string  `json:"link_type" jsonschema:"prerequisite, or one of similar, builds_on, alternative_to, applied_in"`
	Strength float64 `json:"strength" jsonschema:"0 to 1"`
	Note     string  `json:"note,omitempty"`
}

type trackIn struct {
	UserID   string `json:"user_id"`
	Topic    string `json:"topic"`
	Priority int    `json:"priority" jsonschema:"1 to 5"`
	Goal     string `json:"goal,omitempty"`
}

type ack struct {
	Status string `json:"status"`
}

var done = ack{Status: "ok"}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyze_conversation",
		Description: "Analyze a conversation for programming concepts and record what the learner demonstrated",
	}, s.analyzeConversation)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "record_learning",
		Description: "Record explicit learning observations for one or more concepts",
	}, s.recordLearning)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_knowledge_gaps",
		Description: "List the prerequisites the learner is missing for target concepts",
	}, s.knowledgeGaps)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_recommendations",
		Description: "Suggest which concepts the learner should study next",
	}, s.recommendations)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_learning_progress",
		Description: "Get the learner's full progress overview",
	}, s.learningProgress)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_topic_knowledge",
		Description: "Get a topic's concepts with the learner's standing on each",
	}, s.topicKnowledge)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_related_concepts",
		Description: "Get concepts related to one the learner knows, split by familiarity",
	}, s.relatedConcepts)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_recent_events",
		Description: "Get the learner's recent learning events, newest first",
	}, s.recentEvents)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "set_learning_style",
		Description: "Set how the learner prefers explanations",
	}, s.setLearningStyle)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "add_topic",
		Description: "Create or update a topic",
	}, s.addTopic)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "add_concept",
		Description: "Create or update a concept, optionally filing it under a topic",
	}, s.addConcept)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "link_concepts",
		Description: "Link two concepts with a prerequisite or relatedness edge",
	}, s.linkConcepts)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "track_topic",
		Description: "Track a topic for the learner with a priority and goal",
	}, s.trackTopic)
}

func (s *Server) analyzeConversation(ctx context.Context, req *mcp.CallToolRequest, in analyzeIn) (*mcp.CallToolResult, analyzeOut, error) {
	report, err := s.svc.AnalyzeAndRecord(ctx, in.UserID, in.Text, in.TopicHint)
	if err != nil {
		return nil, analyzeOut{}, err
	}
	out := analyzeOut{Relevant: report.Relevant}
	if report.Analysis != nil {
		out.DetectedTopic = report.Analysis.DetectedTopic
	}
	out.EventID = report.EventID
	out.Concepts = toStates(report.States)
	out.Gaps = toGapOut(report.Gaps)
	return nil, out, nil
}

func (s *Server) recordLearning(ctx context.Context, req *mcp.CallToolRequest, in recordIn) (*mcp.CallToolResult, recordOut, error) {
	if !validEventType(in.EventType) {
		return nil, recordOut{}, fmt.Errorf("invalid event type %q", in.EventType)
	}
	batchType := store.EventType(in.EventType)
	observations := make([]knowledge.Observation, 0, len(in.Concepts))
	for _, c := range in.Concepts {
		if c.EventType != "" && !validEventType(c.EventType) {
			return nil, recordOut{}, fmt.Errorf("invalid event type %q for concept %q", c.EventType, c.Name)
		}
		et := store.EventType(c.EventType)
		if c.EventType == "" {
			et = batchType
		}
		observations = append(observations, knowledge.Observation{
			Concept:     c.Name,
			Proficiency: c.Proficiency,
			EventType:   et,
			Details:     c.Details,
		})
	}

	result, err := s.svc.RecordLearning(ctx, in.UserID, batchType, in.Details, observations)
	if err != nil {
		return nil, recordOut{}, err
	}

	out := recordOut{EventID: result.EventID, States: toStates(result.States)}
	for name := range result.Failed {
		out.Failed = append(out.Failed, name)
	}
	return nil, out, nil
}

func validEventType(s string) bool {
	switch store.EventType(s) {
	case store.EventLearned, store.EventPracticed, store.EventConfused, store.EventMastered:
		return true
	default:
		return false
	}
}

func (s *Server) knowledgeGaps(ctx context.Context, req *mcp.CallToolRequest, in gapsIn) (*mcp.CallToolResult, gapsOut, error) {
	gaps, err := s.svc.KnowledgeGaps(ctx, in.UserID, in.Concepts)
	if err != nil {
		return nil, gapsOut{}, err
	}
	return nil, gapsOut{Gaps: toGapOut(gaps)}, nil
}

func (s *Server) recommendations(ctx context.Context, req *mcp.CallToolRequest, in recommendIn) (*mcp.CallToolResult, recommendOut, error) {
	recs, err := s.svc.Recommendations(ctx, in.UserID, in.Topic)
	if err != nil {
		return nil, recommendOut{}, err
	}
	var out recommendOut
	for _, r := range recs {
		out.Recommendations = append(out.Recommendations, recOut{r.Name, r.Description, r.Complexity, r.Score, r.Tracked})
	}
	return nil, out, nil
}

func (s *Server) learningProgress(ctx context.Context, req *mcp.CallToolRequest, in progressIn) (*mcp.CallToolResult, progressOut, error) {
	ov, err := s.svc.LearningProgress(ctx, in.UserID)
	if err != nil {
		return nil, progressOut{}, err
	}

	out := progressOut{
		DisplayName:   ov.User.DisplayName,
		LearningStyle: string(ov.User.LearningStyle),
		DetailLevel:   string(ov.User.DetailLevel),
		StageCounts:   map[string]int{},
	}
	for stage, n := range ov.StageCounts {
		out.StageCounts[string(stage)] = n
	}
	for _, t := range ov.TrackedTopics {
		out.TrackedTopics = append(out.TrackedTopics, trackedTopicOut{t.Name, t.Active, t.Priority, t.Goal})
	}
	for _, c := range ov.KnownConcepts {
		out.KnownConcepts = append(out.KnownConcepts, knownConceptOut{c.Name, c.Proficiency, string(c.Stage), c.EvidenceCount, c.Topics})
	}
	return nil, out, nil
}

func (s *Server) topicKnowledge(ctx context.Context, req *mcp.CallToolRequest, in topicIn) (*mcp.CallToolResult, topicOut, error) {
	tk, err := s.svc.TopicKnowledge(ctx, in.UserID, in.Topic)
	if err != nil {
		return nil, topicOut{}, err
	}

	out := topicOut{
		Name:       tk.Topic.Name,
		Category:   string(tk.Topic.Category),
		Difficulty: tk.Topic.Difficulty,
		Summary:    tk.Topic.Summary,
		KnownCount: tk.KnownCount,
	}
	for _, c := range tk.Concepts {
		out.Concepts = append(out.Concepts, topicConceptOut{c.Name, c.Description, c.Complexity, c.Proficiency, c.Known})
	}
	return nil, out, nil
}

func (s *Server) relatedConcepts(ctx context.Context, req *mcp.CallToolRequest, in relatedIn) (*mcp.CallToolResult, relatedOut, error) {
	rel, err := s.svc.RelatedConcepts(ctx, in.UserID, in.Concept)
	if err != nil {
		return nil, relatedOut{}, err
	}

	out := relatedOut{Concept: rel.Concept}
	for _, e := range rel.Known {
		out.Known = append(out.Known, relatedEdgeOut{e.Name, string(e.Type), e.Strength, e.Note})
	}
	for _, e := range rel.Unknown {
		out.Unknown = append(out.Unknown, relatedEdgeOut{e.Name, string(e.Type), e.Strength, e.Note})
	}
	return nil, out, nil
}

func (s *Server) recentEvents(ctx context.Context, req *mcp.CallToolRequest, in eventsIn) (*mcp.CallToolResult, eventsOut, error) {
	events, err := s.svc.RecentEvents(ctx, in.UserID, in.Limit)
	if err != nil {
		return nil, eventsOut{}, err
	}

	var out eventsOut
	for _, e := range events {
		out.Events = append(out.Events, eventOut{string(e.EventType), e.Details, e.Concepts, e.CreatedAt.Format(time.RFC3339)})
	}
	return nil, out, nil
}

func (s *Server) setLearningStyle(ctx context.Context, req *mcp.CallToolRequest, in styleIn) (*mcp.CallToolResult, ack, error) {
	switch store.LearningStyle(in.Style) {
	case store.StyleVisual, store.StyleConceptual, store.StylePractical, store.StyleAnalogical:
	default:
		return nil, ack{}, fmt.Errorf("invalid learning style %q", in.Style)
	}
	switch store.DetailLevel(in.DetailLevel) {
	case store.DetailBeginner, store.DetailStandard, store.DetailAdvanced:
	default:
		return nil, ack{}, fmt.Errorf("invalid detail level %q", in.DetailLevel)
	}

	if err := s.svc.SetLearningStyle(ctx, in.UserID, store.LearningStyle(in.Style), store.DetailLevel(in.DetailLevel)); err != nil {
		return nil, ack{}, err
	}
	return nil, done, nil
}

func (s *Server) addTopic(ctx context.Context, req *mcp.CallToolRequest, in addTopicIn) (*mcp.CallToolResult, ack, error) {
	if err := s.svc.AddTopic(ctx, &store.Topic{
		Name:       in.Name,
		Category:   store.TopicCategory(in.Category),
		Difficulty: in.Difficulty,
		Summary:    in.Summary,
	}); err != nil {
		return nil, ack{}, err
	}
	return nil, done, nil
}

func (s *Server) addConcept(ctx context.Context, req *mcp.CallToolRequest, in addConceptIn) (*mcp.CallToolResult, ack, error) {
	err := s.svc.AddConcept(ctx, &store.Concept{
		Name:        in.Name,
		Description: in.Description,
		Complexity:  in.Complexity,
		Explanation: in.Explanation,
	}, in.Topic, store.BelongsTo{Primary: in.Primary, Importance: in.Importance})
	if err != nil {
		return nil, ack{}, err
	}
	return nil, done, nil
}

func (s *Server) linkConcepts(ctx context.Context, req *mcp.CallToolRequest, in linkIn) (*mcp.CallToolResult, ack, error) {
	var err error
	switch in.LinkType {
	case "prerequisite":
		err = s.svc.LinkPrerequisite(ctx, in.From, in.To, store.Prerequisite{
			Strength:    in.Strength,
			Explanation: in.Note,
		})
	case string(store.RelatedSimilar), string(store.RelatedBuildsOn), string(store.RelatedAlternativeTo), string(store.RelatedAppliedIn):
		err = s.svc.LinkRelated(ctx, in.From, in.To, store.Related{
			Type:     store.RelatedType(in.LinkType),
			Strength: in.Strength,
			Note:     in.Note,
		})
	default:
		err = fmt.Errorf("invalid link type %q", in.LinkType)
	}
	if err != nil {
		return nil, ack{}, err
	}
	return nil, done, nil
}

func (s *Server) trackTopic(ctx context.Context, req *mcp.CallToolRequest, in trackIn) (*mcp.CallToolResult, ack, error) {
	if err := s.svc.TrackTopic(ctx, in.UserID, in.Topic, in.Priority, in.Goal); err != nil {
		return nil, ack{}, err
	}
	return nil, done, nil
}
