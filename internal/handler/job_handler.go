package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/scheduler"
)

// JobController 调度器
type JobController interface {
	GetJobStatus(ctx context.Context, name string) (*scheduler.JobStatus, error)
	ListJobStatus(ctx context.Context) ([]*scheduler.JobStatus, error)
	TriggerJob(name string) error
}

// JobHandler 定时任务运维接口
type JobHandler struct {
	jobs JobController
}

// NewJobHandler 创建任务处理器
func NewJobHandler(jobs JobController) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// ListJobs 所有任务状态
// GET /jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	statuses, err := h.jobs.ListJobStatus(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	out := make([]*dto.JobStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, newJobStatusResponse(s))
	}
	Success(c, out)
}

// GetJob 单个任务状态
// GET /jobs/:name
func (h *JobHandler) GetJob(c *gin.Context) {
	status, err := h.jobs.GetJobStatus(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.jobError(c, err)
		return
	}
	Success(c, newJobStatusResponse(status))
}

// TriggerJob 异步触发一次执行
// POST /jobs/:name/trigger
func (h *JobHandler) TriggerJob(c *gin.Context) {
	name := c.Param("name")
	if err := h.jobs.TriggerJob(name); err != nil {
		h.jobError(c, err)
		return
	}
	Success(c, gin.H{"job": name, "accepted": true})
}

func (h *JobHandler) jobError(c *gin.Context, err error) {
	if errors.Is(err, scheduler.ErrJobNotFound) {
		Error(c, dto.ErrJobNotFound)
		return
	}
	handleServiceError(c, err)
}

func newJobStatusResponse(s *scheduler.JobStatus) *dto.JobStatusResponse {
	resp := &dto.JobStatusResponse{
		Name:      s.Name,
		Enabled:   s.Enabled,
		Cron:      s.Cron,
		TimeoutMs: s.Timeout.Milliseconds(),
		IsLocked:  s.IsLocked,
	}
	if run := s.LastRun; run != nil {
		resp.LastRun = &dto.JobExecutionResponse{
			Status:     run.Status,
			StartedAt:  run.StartedAt.UnixMilli(),
			FinishedAt: run.FinishedAt.UnixMilli(),
			Error:      run.Error,
		}
		if run.Result != nil {
			resp.LastRun.ProcessedCount = run.Result.ProcessedCount
			resp.LastRun.AffectedCount = run.Result.AffectedCount
			resp.LastRun.Details = run.Result.Details
		}
	}
	return resp
}
