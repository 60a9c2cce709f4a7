package service

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/peerlens-go-api/internal/dto"
	"github.com/noah-isme/peerlens-go-api/internal/models"
	"github.com/noah-isme/peerlens-go-api/internal/repository"
	"github.com/noah-isme/peerlens-go-api/pkg/events"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type memoryEvaluationRepo struct {
	evaluations map[uint]models.Evaluation
	nextID      uint
}

func newMemoryEvaluationRepo() *memoryEvaluationRepo {
	return &memoryEvaluationRepo{
		evaluations: make(map[uint]models.Evaluation),
		nextID:      1,
	}
}

func (m *memoryEvaluationRepo) List(ctx context.Context, filter repository.EvaluationFilter) ([]models.Evaluation, error) {
	results := make([]models.Evaluation, 0, len(m.evaluations))
	for _, evaluation := range m.evaluations {
		if filter.AssignmentID != nil && evaluation.AssignmentID != *filter.AssignmentID {
			continue
		}
		if filter.SubmissionID != nil && evaluation.SubmissionID != *filter.SubmissionID {
			continue
		}
		if filter.EvaluatorID != nil && evaluation.EvaluatorID != *filter.EvaluatorID {
			continue
		}
		if filter.Round != nil && evaluation.AssignmentRound != *filter.Round {
			continue
		}
		if filter.Status != nil && evaluation.Status != *filter.Status {
			continue
		}
		if filter.ActiveOnly && evaluation.Superseded {
			continue
		}
		results = append(results, evaluation)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *memoryEvaluationRepo) GetByID(ctx context.Context, id uint) (models.Evaluation, error) {
	evaluation, ok := m.evaluations[id]
	if !ok {
		return models.Evaluation{}, gorm.ErrRecordNotFound
	}
	return evaluation, nil
}

func (m *memoryEvaluationRepo) Create(ctx context.Context, evaluation *models.Evaluation) error {
	evaluation.ID = m.nextID
	m.evaluations[m.nextID] = *evaluation
	m.nextID++
	return nil
}

func (m *memoryEvaluationRepo) UpdateWithVersion(ctx context.Context, evaluation *models.Evaluation, expectedVersion uint) error {
	stored, ok := m.evaluations[evaluation.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	evaluation.Version = expectedVersion + 1
	m.evaluations[evaluation.ID] = *evaluation
	return nil
}

func (m *memoryEvaluationRepo) ActiveBySubmissionAndRound(ctx context.Context, submissionID uint, round int) (models.Evaluation, error) {
	for _, evaluation := range m.evaluations {
		if evaluation.SubmissionID == submissionID && evaluation.AssignmentRound == round && !evaluation.Superseded {
			return evaluation, nil
		}
	}
	return models.Evaluation{}, gorm.ErrRecordNotFound
}

func (m *memoryEvaluationRepo) PriorEvaluators(ctx context.Context, assignmentID uint) (map[uint][]uint, error) {
	prior := make(map[uint][]uint)
	for _, evaluation := range m.evaluations {
		if evaluation.AssignmentID != assignmentID || evaluation.Superseded {
			continue
		}
		prior[evaluation.SubmissionID] = append(prior[evaluation.SubmissionID], evaluation.EvaluatorID)
	}
	return prior, nil
}

func evaluationFilterForAssignment(assignmentID uint) repository.EvaluationFilter {
	id := assignmentID
	return repository.EvaluationFilter{AssignmentID: &id}
}

type capturingPublisher struct {
	published []events.Event
}

func (c *capturingPublisher) Publish(event events.Event) error {
	c.published = append(c.published, event)
	return nil
}

type activityRecorderStub struct {
	entries []ActivityEntry
}

func (a *activityRecorderStub) Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	a.entries = append(a.entries, entry)
	return dto.ActivityResponse{}, nil
}
