package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/peerlens-go-api/internal/models"
)

// ErrVersionConflict indicates a concurrent writer updated the record first.
var ErrVersionConflict = errors.New("evaluation version conflict")

// EvaluationFilter narrows evaluation queries.
type EvaluationFilter struct {
	AssignmentID *uint
	SubmissionID *uint
	EvaluatorID  *uint
	Round        *int
	Status       *models.EvaluationStatus
	ActiveOnly   bool
}

// EvaluationRepository persists evaluation records.
type EvaluationRepository interface {
	List(ctx context.Context, filter EvaluationFilter) ([]models.Evaluation, error)
	GetByID(ctx context.Context, id uint) (models.Evaluation, error)
	Create(ctx context.Context, evaluation *models.Evaluation) error
	// UpdateWithVersion writes the full record only if the stored version
	// still equals expectedVersion, bumping the version on success. A lost
	// race surfaces as ErrVersionConflict.
	UpdateWithVersion(ctx context.Context, evaluation *models.Evaluation, expectedVersion uint) error
	ActiveBySubmissionAndRound(ctx context.Context, submissionID uint, round int) (models.Evaluation, error)
	// PriorEvaluators returns, per submission, every evaluator already
	// holding an active evaluation for the assignment. Used to diversify
	// reviewers across rounds.
	PriorEvaluators(ctx context.Context, assignmentID uint) (map[uint][]uint, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository instantiates the repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) List(ctx context.Context, filter EvaluationFilter) ([]models.Evaluation, error) {
	query := r.db.WithContext(ctx).Model(&models.Evaluation{})

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}

	if filter.SubmissionID != nil {
		query = query.Where("submission_id = ?", *filter.SubmissionID)
	}

	if filter.EvaluatorID != nil {
		query = query.Where("evaluator_id = ?", *filter.EvaluatorID)
	}

	if filter.Round != nil {
		query = query.Where("assignment_round = ?", *filter.Round)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	if filter.ActiveOnly {
		query = query.Where("superseded = ?", false)
	}

	var evaluations []models.Evaluation
	if err := query.Order("assignment_round ASC, color_group ASC").Find(&evaluations).Error; err != nil {
		return nil, err
	}

	return evaluations, nil
}

func (r *evaluationRepository) GetByID(ctx context.Context, id uint) (models.Evaluation, error) {
	var evaluation models.Evaluation
	if err := r.db.WithContext(ctx).First(&evaluation, id).Error; err != nil {
		return models.Evaluation{}, err
	}

	return evaluation, nil
}

func (r *evaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	return r.db.WithContext(ctx).Create(evaluation).Error
}

func (r *evaluationRepository) UpdateWithVersion(ctx context.Context, evaluation *models.Evaluation, expectedVersion uint) error {
	evaluation.Version = expectedVersion + 1

	result := r.db.WithContext(ctx).
		Model(&models.Evaluation{}).
		Where("id = ? AND version = ?", evaluation.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(evaluation)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		evaluation.Version = expectedVersion
		return ErrVersionConflict
	}

	return nil
}

func (r *evaluationRepository) ActiveBySubmissionAndRound(ctx context.Context, submissionID uint, round int) (models.Evaluation, error) {
	var evaluation models.Evaluation
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Where("assignment_round = ?", round).
		Where("superseded = ?", false).
		First(&evaluation).Error; err != nil {
		return models.Evaluation{}, err
	}

	return evaluation, nil
}

func (r *evaluationRepository) PriorEvaluators(ctx context.Context, assignmentID uint) (map[uint][]uint, error) {
	type row struct {
		SubmissionID uint
		EvaluatorID  uint
	}

	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&models.Evaluation{}).
		Select("submission_id", "evaluator_id").
		Where("assignment_id = ?", assignmentID).
		Where("superseded = ?", false).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	prior := make(map[uint][]uint, len(rows))
	for _, r := range rows {
		prior[r.SubmissionID] = append(prior[r.SubmissionID], r.EvaluatorID)
	}

	return prior, nil
}
