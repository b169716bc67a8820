package methods

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/clawgate/internal/cron"
	"github.com/nextlevelbuilder/clawgate/internal/gateway"
	"github.com/nextlevelbuilder/clawgate/pkg/protocol"
)

// CronMethods exposes cron job CRUD and execution over RPC.
type CronMethods struct {
	store     cron.Store
	scheduler *cron.Scheduler
}

// NewCronMethods creates the handler.
func NewCronMethods(store cron.Store, scheduler *cron.Scheduler) *CronMethods {
	return &CronMethods{store: store, scheduler: scheduler}
}

// Register registers all cron RPC methods.
func (m *CronMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodCronList, m.handleList)
	router.Register(protocol.MethodCronCreate, m.handleCreate)
	router.Register(protocol.MethodCronUpdate, m.handleUpdate)
	router.Register(protocol.MethodCronDelete, m.handleDelete)
	router.Register(protocol.MethodCronToggle, m.handleToggle)
	router.Register(protocol.MethodCronStatus, m.handleStatus)
	router.Register(protocol.MethodCronRun, m.handleRun)
}

func (m *CronMethods) handleList(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	jobs, err := m.store.List()
	if err != nil {
		slog.Error("cron.list", "error", err)
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to list cron jobs"))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"jobs": jobs}))
}

func (m *CronMethods) handleCreate(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		UserID         string `json:"user_id"`
		Name           string `json:"name"`
		Description    string `json:"description"`
		CronExpression string `json:"cron_expression"`
		Command        string `json:"command"`
		ChannelID      string `json:"channel_id"`
		Timezone       string `json:"timezone"`
		Enabled        *bool  `json:"enabled"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.Name == "" || params.CronExpression == "" || params.Command == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "name, cron_expression, and command are required"))
		return
	}

	enabled := true
	if params.Enabled != nil {
		enabled = *params.Enabled
	}

	now := time.Now().UTC()
	job := &cron.Job{
		ID:             uuid.NewString(),
		UserID:         params.UserID,
		Name:           params.Name,
		Description:    params.Description,
		CronExpression: params.CronExpression,
		Command:        params.Command,
		ChannelID:      params.ChannelID,
		Enabled:        enabled,
		Timezone:       params.Timezone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.Save(job); err != nil {
		slog.Error("cron.create", "error", err)
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to save cron job"))
		return
	}
	m.scheduler.Schedule(job)
	client.SendResponse(protocol.NewOKResponse(req.ID, job))
}

func (m *CronMethods) handleUpdate(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID             string  `json:"id"`
		Name           *string `json:"name"`
		Description    *string `json:"description"`
		CronExpression *string `json:"cron_expression"`
		Command        *string `json:"command"`
		ChannelID      *string `json:"channel_id"`
		Timezone       *string `json:"timezone"`
		Enabled        *bool   `json:"enabled"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	job, err := m.store.Get(params.ID)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, "cron job not found"))
		return
	}

	if params.Name != nil {
		job.Name = *params.Name
	}
	if params.Description != nil {
		job.Description = *params.Description
	}
	if params.CronExpression != nil {
		job.CronExpression = *params.CronExpression
	}
	if params.Command != nil {
		job.Command = *params.Command
	}
	if params.ChannelID != nil {
		job.ChannelID = *params.ChannelID
	}
	if params.Timezone != nil {
		job.Timezone = *params.Timezone
	}
	if params.Enabled != nil {
		job.Enabled = *params.Enabled
	}
	job.UpdatedAt = time.Now().UTC()

	if err := m.store.Save(job); err != nil {
		slog.Error("cron.update", "error", err)
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to save cron job"))
		return
	}

	m.scheduler.Unschedule(job.ID)
	m.scheduler.Schedule(job)
	client.SendResponse(protocol.NewOKResponse(req.ID, job))
}

func (m *CronMethods) handleDelete(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID string `json:"id"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	m.scheduler.Unschedule(params.ID)
	if err := m.store.Delete(params.ID); err != nil {
		if errors.Is(err, cron.ErrJobNotFound) {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, "cron job not found"))
			return
		}
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to delete cron job"))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"status": "deleted"}))
}

func (m *CronMethods) handleToggle(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID string `json:"id"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	job, err := m.store.Get(params.ID)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, "cron job not found"))
		return
	}

	job.Enabled = !job.Enabled
	job.UpdatedAt = time.Now().UTC()
	if err := m.store.Save(job); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to save cron job"))
		return
	}

	if job.Enabled {
		m.scheduler.Schedule(job)
	} else {
		m.scheduler.Unschedule(job.ID)
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, job))
}

func (m *CronMethods) handleStatus(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	jobs, err := m.store.List()
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "failed to list cron jobs"))
		return
	}
	enabled := 0
	for _, j := range jobs {
		if j.Enabled {
			enabled++
		}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"total":             len(jobs),
		"enabled":           enabled,
		"active_executions": m.scheduler.ActiveExecutions(),
	}))
}

func (m *CronMethods) handleRun(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID string `json:"id"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	if err := m.scheduler.RunNow(params.ID); err != nil {
		if errors.Is(err, cron.ErrJobNotFound) {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, "cron job not found"))
			return
		}
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"status": "started"}))
}
