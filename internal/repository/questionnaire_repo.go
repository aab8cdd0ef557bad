package repository

import (
	"context"

	"github.com/paulexconde/followup/internal/models"
	"github.com/paulexconde/followup/pkg/store"
)

const questionnaireColumns = "id, name, graph_id, flow"

type QuestionnaireRepo interface {
	Create(ctx context.Context, questionnaire models.Questionnaire) (*models.Questionnaire, error)
	GetByID(ctx context.Context, id string) (*models.Questionnaire, error)
	List(ctx context.Context) ([]models.Questionnaire, error)
}

type questionnaireRepo struct {
	datastore store.Datastorer[models.Questionnaire]
}

func NewQuestionnaireRepo(datastore store.Datastorer[models.Questionnaire]) QuestionnaireRepo {
	return &questionnaireRepo{datastore: datastore}
}

func (r *questionnaireRepo) Create(ctx context.Context, questionnaire models.Questionnaire) (*models.Questionnaire, error) {
	created, err := r.datastore.Create(ctx, questionnaire)
	if err != nil {
		return nil, err
	}
	model := created.(models.Questionnaire)
	return &model, nil
}

func (r *questionnaireRepo) GetByID(ctx context.Context, id string) (*models.Questionnaire, error) {
	return r.datastore.Get(ctx, "SELECT "+questionnaireColumns+" FROM questionnaires WHERE id=$1", id)
}

func (r *questionnaireRepo) List(ctx context.Context) ([]models.Questionnaire, error) {
	return r.datastore.Select(ctx, "SELECT "+questionnaireColumns+" FROM questionnaires ORDER BY name")
}
