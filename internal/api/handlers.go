package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/abhisek/microtutor/internal/curriculum"
	"github.com/abhisek/microtutor/internal/domain"
	"github.com/abhisek/microtutor/internal/metrics"
	"github.com/abhisek/microtutor/internal/progress"
	"github.com/abhisek/microtutor/internal/store"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 500
)

var errRouteNotFound = errors.New("route not found")

func (s *Server) healthz(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		respondError(c, http.StatusServiceUnavailable, "unavailable", errors.New("database unreachable"))
		return
	}
	respondOK(c, gin.H{"status": "ok"})
}

type learnerRequest struct {
	Name  string `json:"name"`
	Grade string `json:"grade"`
	Board string `json:"board"`
}

func (s *Server) upsertLearner(c *gin.Context) {
	var body learnerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	l := &domain.Learner{
		ID:    c.Param(learnerParam),
		Name:  strings.TrimSpace(body.Name),
		Grade: strings.TrimSpace(body.Grade),
		Board: strings.TrimSpace(body.Board),
	}
	ctx := c.Request.Context()
	if err := s.store.Learners().Upsert(ctx, l); err != nil {
		s.respondServiceError(c, err)
		return
	}
	stored, err := s.store.Learners().Get(ctx, l.ID)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondOK(c, stored)
}

func (s *Server) getLearner(c *gin.Context) {
	l, err := s.store.Learners().Get(c.Request.Context(), c.Param(learnerParam))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondOK(c, l)
}

type subjectRequest struct {
	Name string `json:"name" binding:"required"`
}

// createSubject queues curriculum generation; the scheduler picks it up.
func (s *Server) createSubject(c *gin.Context) {
	var body subjectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	ctx := c.Request.Context()
	learner, err := s.store.Learners().Get(ctx, c.Param(learnerParam))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	if !learner.ProfileComplete() {
		s.respondServiceError(c, curriculum.ErrIncompleteProfile)
		return
	}

	subject := &domain.Subject{
		ID:        uuid.NewString(),
		LearnerID: learner.ID,
		Name:      strings.TrimSpace(body.Name),
		Status:    domain.SubjectPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Subjects().Create(ctx, subject); err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, subject)
}

func (s *Server) listSubjects(c *gin.Context) {
	subjects, err := s.store.Subjects().ListByLearner(c.Request.Context(), c.Param(learnerParam))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	if subjects == nil {
		subjects = []domain.Subject{}
	}
	respondOK(c, gin.H{"subjects": subjects})
}

type topicView struct {
	domain.Topic
	Goals []domain.Goal `json:"goals"`
}

type chapterView struct {
	domain.Chapter
	Topics []topicView `json:"topics"`
}

type subjectView struct {
	Subject  domain.Subject `json:"subject"`
	Chapters []chapterView  `json:"chapters"`
}

func (s *Server) getSubject(c *gin.Context) {
	ctx := c.Request.Context()
	subject, err := s.store.Subjects().Get(ctx, c.Param("subjectID"))
	if err == nil && subject.LearnerID != c.Param(learnerParam) {
		err = store.ErrNotFound
	}
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	view := subjectView{Subject: *subject, Chapters: []chapterView{}}
	chapters, err := s.store.Curriculum().ListChapters(ctx, subject.ID)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	for _, ch := range chapters {
		cv := chapterView{Chapter: ch, Topics: []topicView{}}
		topics, err := s.store.Curriculum().ListTopics(ctx, ch.ID)
		if err != nil {
			s.respondServiceError(c, err)
			return
		}
		for _, t := range topics {
			goals, err := s.store.Curriculum().ListGoals(ctx, t.ID)
			if err != nil {
				s.respondServiceError(c, err)
				return
			}
			cv.Topics = append(cv.Topics, topicView{Topic: t, Goals: goals})
		}
		view.Chapters = append(view.Chapters, cv)
	}
	respondOK(c, view)
}

// topic loads the path topic and checks it belongs to the path learner.
func (s *Server) topic(c *gin.Context) (*domain.Topic, bool) {
	t, err := s.store.Curriculum().GetTopic(c.Request.Context(), c.Param("topicID"))
	if err == nil && t.LearnerID != c.Param(learnerParam) {
		err = store.ErrNotFound
	}
	if err != nil {
		s.respondServiceError(c, err)
		return nil, false
	}
	return t, true
}

type messageRequest struct {
	Text string `json:"text"`
}

// postMessage runs one tutor turn. An empty body or text starts the
// conversation.
func (s *Server) postMessage(c *gin.Context) {
	var body messageRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	res, err := s.engine.Respond(c.Request.Context(), c.Param(learnerParam), c.Param("topicID"), body.Text)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondOK(c, res)
}

func (s *Server) listMessages(c *gin.Context) {
	topic, ok := s.topic(c)
	if !ok {
		return
	}
	limit, err := intQuery(c, "limit", defaultMessageLimit)
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	after, err := intQuery(c, "after", 0)
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	msgs, err := s.store.Messages().List(c.Request.Context(), topic.LearnerID, topic.ID, int64(after), min(limit, maxMessageLimit))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	respondOK(c, gin.H{"messages": msgs})
}

type goalProgressView struct {
	Goal     domain.Goal         `json:"goal"`
	Progress domain.GoalProgress `json:"progress"`
}

type progressView struct {
	TopicID           string             `json:"topicId"`
	CompletionPercent int                `json:"completionPercent"`
	TopicCompleted    bool               `json:"topicCompleted"`
	Goals             []goalProgressView `json:"goals"`
}

func (s *Server) getProgress(c *gin.Context) {
	topic, ok := s.topic(c)
	if !ok {
		return
	}
	goals, idx, err := s.tracker.Snapshot(c.Request.Context(), topic.LearnerID, topic.ID)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	view := progressView{
		TopicID:           topic.ID,
		CompletionPercent: progress.CompletionPercent(goals, idx),
		TopicCompleted:    topic.CompletedAt != nil,
		Goals:             make([]goalProgressView, 0, len(goals)),
	}
	for _, g := range goals {
		gp, ok := idx[g.ID]
		if !ok {
			gp = domain.GoalProgress{LearnerID: topic.LearnerID, GoalID: g.ID, TopicID: topic.ID}
		}
		view.Goals = append(view.Goals, goalProgressView{Goal: g, Progress: gp})
	}
	respondOK(c, view)
}

func (s *Server) getReport(c *gin.Context) {
	topic, ok := s.topic(c)
	if !ok {
		return
	}
	m, err := s.aggregator.Compute(c.Request.Context(), topic.LearnerID, topic.ID)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{
		"metrics": m,
		"report":  metrics.FormatReport(topic.Title, m),
	})
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
