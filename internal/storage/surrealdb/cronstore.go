package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
	"github.com/drewfallon/vigil/internal/storage"
)

// cronRow is the persisted shape of a cron job: the job itself travels as an
// opaque JSON data column so schedule/payload schema changes never require a
// table migration.
type cronRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Data        string `json:"data"`
	UpdatedAtMS int64  `json:"updated_at_ms"`
}

// CronStore implements interfaces.CronStore using SurrealDB.
type CronStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewCronStore(db *surrealdb.DB, logger *common.Logger) *CronStore {
	return &CronStore{db: db, logger: logger}
}

func (s *CronStore) List(ctx context.Context) ([]*models.CronJob, error) {
	sql := "SELECT * FROM cron_jobs ORDER BY name ASC"

	results, err := surrealdb.Query[[]cronRow](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list cron jobs: %w", err)
	}

	rows := firstResult(results)
	var jobs []*models.CronJob
	for i := range rows {
		job, err := models.DecodeCronJob(rows[i].Data)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", rows[i].ID).Msg("skipping undecodable cron job")
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *CronStore) Get(ctx context.Context, id string) (*models.CronJob, error) {
	row, err := surrealdb.Select[cronRow](ctx, s.db, surrealmodels.NewRecordID("cron_jobs", id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select cron job: %w", err)
	}
	if row == nil || row.Data == "" {
		return nil, storage.ErrNotFound
	}
	return models.DecodeCronJob(row.Data)
}

func (s *CronStore) Upsert(ctx context.Context, job *models.CronJob) error {
	data, err := models.EncodeCronJob(job)
	if err != nil {
		return err
	}

	row := cronRow{
		ID:          job.ID,
		Name:        job.Name,
		Enabled:     job.Enabled,
		Data:        data,
		UpdatedAtMS: job.UpdatedAtMS,
	}

	sql := "UPSERT $rid CONTENT $row"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("cron_jobs", job.ID),
		"row": row,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert cron job: %w", err)
	}
	return nil
}

func (s *CronStore) Delete(ctx context.Context, id string) error {
	_, err := surrealdb.Delete[cronRow](ctx, s.db, surrealmodels.NewRecordID("cron_jobs", id))
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete cron job: %w", err)
	}
	return nil
}

// Compile-time check
var _ interfaces.CronStore = (*CronStore)(nil)
