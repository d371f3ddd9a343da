package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"branchpay/internal/platform/querier"
)

const (
	JobPayrollGenerate = "payroll_generate"
	JobPayslipBatch    = "payslip_batch"

	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	ErrQueueFull   = errors.New("job queue full")
	ErrRunNotFound = errors.New("job run not found")
)

type RunFunc func(context.Context) (any, error)

type Run struct {
	ID          string          `json:"id"`
	JobType     string          `json:"jobType"`
	ActorID     string          `json:"actorId"`
	Status      string          `json:"status"`
	Details     json.RawMessage `json:"details,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

type Service struct {
	DB    querier.Querier
	queue chan job
}

type job struct {
	ID      string
	Type    string
	ActorID string
	Run     RunFunc
}

func New(db querier.Querier, queueSize int) *Service {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Service{DB: db, queue: make(chan job, queueSize)}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
}

// Enqueue records a queued run and hands it to the worker. The returned id
// can be polled with Get.
func (s *Service) Enqueue(ctx context.Context, jobType, actorID string, run RunFunc) (string, error) {
	runID, err := s.insertRun(ctx, jobType, actorID, StatusQueued)
	if err != nil {
		return "", err
	}
	select {
	case s.queue <- job{ID: runID, Type: jobType, ActorID: actorID, Run: run}:
		return runID, nil
	default:
		slog.Warn("job queue full", "jobType", jobType, "runId", runID)
		s.finish(ctx, runID, StatusFailed, nil, ErrQueueFull)
		return "", ErrQueueFull
	}
}

// RunNow executes run synchronously while still recording it in job_runs.
func (s *Service) RunNow(ctx context.Context, jobType, actorID string, run RunFunc) (any, error) {
	runID, err := s.insertRun(ctx, jobType, actorID, StatusRunning)
	if err != nil {
		slog.Warn("job run insert failed", "jobType", jobType, "err", err)
	}
	return s.execute(ctx, job{ID: runID, Type: jobType, ActorID: actorID, Run: run})
}

func (s *Service) Get(ctx context.Context, runID string) (Run, error) {
	if uuid.Validate(runID) != nil {
		return Run{}, ErrRunNotFound
	}
	var out Run
	var details []byte
	err := s.DB.QueryRow(ctx, `
    SELECT id, job_type, COALESCE(actor_user_id::text, ''), status, details_json, COALESCE(error, ''), created_at, completed_at
    FROM job_runs
    WHERE id = $1
  `, runID).Scan(&out.ID, &out.JobType, &out.ActorID, &out.Status, &details, &out.Error, &out.CreatedAt, &out.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}
	if len(details) > 0 {
		out.Details = json.RawMessage(details)
	}
	return out, nil
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			s.markRunning(ctx, j.ID)
			if _, err := s.execute(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "runId", j.ID, "err", err)
			}
		}
	}
}

func (s *Service) execute(ctx context.Context, j job) (details any, err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("job panicked", "jobType", j.Type, "runId", j.ID, "panic", p)
			err = errors.New("job panicked")
			s.finish(ctx, j.ID, StatusFailed, nil, err)
		}
	}()

	details, err = j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
	}
	s.finish(ctx, j.ID, status, details, err)
	return details, err
}

func (s *Service) insertRun(ctx context.Context, jobType, actorID, status string) (string, error) {
	var runID string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, actor_user_id, status)
    VALUES ($1, NULLIF($2, '')::uuid, $3)
    RETURNING id
  `, jobType, actorID, status).Scan(&runID)
	return runID, err
}

func (s *Service) markRunning(ctx context.Context, runID string) {
	if _, err := s.DB.Exec(ctx, `UPDATE job_runs SET status = $1 WHERE id = $2`, StatusRunning, runID); err != nil {
		slog.Warn("job run update failed", "runId", runID, "err", err)
	}
}

func (s *Service) finish(ctx context.Context, runID, status string, details any, runErr error) {
	if runID == "" {
		return
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		slog.Warn("job details marshal failed", "err", err)
		detailsJSON = []byte("{}")
	}
	var errText *string
	if runErr != nil {
		msg := runErr.Error()
		errText = &msg
	}
	if _, err := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, error = $3, completed_at = now()
    WHERE id = $4
  `, status, detailsJSON, errText, runID); err != nil {
		slog.Warn("job run update failed", "runId", runID, "err", err)
	}
}
