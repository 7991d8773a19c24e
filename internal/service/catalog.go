package service

import (
	"context"

	"reflow_oven/internal/models"
	"reflow_oven/internal/repository"
)

const defaultRunLimit = 50

type CurveService struct {
	catalog CurveCatalog
}

func NewCurveService(catalog CurveCatalog) *CurveService {
	return &CurveService{catalog: catalog}
}

func (s *CurveService) ListCurves(context.Context) []models.ReflowCurve {
	return s.catalog.List()
}

func (s *CurveService) GetCurve(_ context.Context, name string) (models.ReflowCurve, error) {
	return s.catalog.Get(name)
}

// RunService reads reflow run history.
type RunService struct {
	runs repository.RunHistory
}

func NewRunService(runs repository.RunHistory) *RunService {
	return &RunService{runs: runs}
}

func (s *RunService) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	return s.runs.List(ctx, limit)
}

func (s *RunService) GetRun(ctx context.Context, id string) (models.RunRecord, error) {
	return s.runs.Get(ctx, id)
}
