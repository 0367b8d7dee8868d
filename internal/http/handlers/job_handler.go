package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/freelance-marketplace/internal/http/response"
	"github.com/ignatzorin/freelance-marketplace/internal/service"
)

type JobHandler struct {
	jobs *service.JobService
}

func NewJobHandler(jobs *service.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// CreateJob POST /jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req service.CreateJobInput
	if !bindJSON(c, &req) {
		return
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, job)
}

// ListJobs GET /jobs?category=&status=
func (h *JobHandler) ListJobs(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	jobs, err := h.jobs.GetJobs(c.Request.Context(), actor, service.JobQuery{
		Category: c.Query("category"),
		Status:   c.Query("status"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, jobs)
}

// ListMyJobs GET /jobs/my
func (h *JobHandler) ListMyJobs(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	result, err := h.jobs.GetMyJobs(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// GetJob GET /jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	actor, jobID, ok := actorAndID(c, "id")
	if !ok {
		return
	}

	job, err := h.jobs.GetJobByID(c.Request.Context(), actor, jobID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, job)
}

// PublishJob PATCH /jobs/:id/publish
func (h *JobHandler) PublishJob(c *gin.Context) {
	actor, jobID, ok := actorAndID(c, "id")
	if !ok {
		return
	}

	job, err := h.jobs.PublishJob(c.Request.Context(), actor, jobID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, job)
}

// DeleteJob DELETE /jobs/:id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	actor, jobID, ok := actorAndID(c, "id")
	if !ok {
		return
	}

	if err := h.jobs.DeleteJob(c.Request.Context(), actor, jobID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": jobID})
}

// DeliverJob PATCH /jobs/:id/deliver
func (h *JobHandler) DeliverJob(c *gin.Context) {
	actor, jobID, ok := actorAndID(c, "id")
	if !ok {
		return
	}

	var req service.DeliverJobInput
	if !bindJSON(c, &req) {
		return
	}

	job, err := h.jobs.DeliverJob(c.Request.Context(), actor, jobID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, job)
}

// UpdateStatus PATCH /jobs/:id/status
func (h *JobHandler) UpdateStatus(c *gin.Context) {
	actor, jobID, ok := actorAndID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateStatusInput
	if !bindJSON(c, &req) {
		return
	}

	job, err := h.jobs.UpdateStatus(c.Request.Context(), actor, jobID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, job)
}

// CreateDispute POST /jobs/:id/dispute
func (h *JobHandler) CreateDispute(c *gin.Context) {
	actor, jobID, ok := actorAndID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if !bindJSON(c, &req) {
		return
	}

	job, err := h.jobs.CreateDispute(c.Request.Context(), actor, jobID, req.Description)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, job)
}

// CreateReview POST /jobs/:id/review
func (h *JobHandler) CreateReview(c *gin.Context) {
	actor, jobID, ok := actorAndID(c, "id")
	if !ok {
		return
	}

	var req service.ReviewInput
	if !bindJSON(c, &req) {
		return
	}

	job, err := h.jobs.CreateReview(c.Request.Context(), actor, jobID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, job)
}
