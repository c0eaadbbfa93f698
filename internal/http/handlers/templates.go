package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zonia3000/regifair/internal/domain/event"
)

type TemplatesRepository interface {
	Create(ctx context.Context, req event.CreateTemplateRequest) (event.Template, error)
	GetByID(ctx context.Context, id int64) (event.Template, error)
	List(ctx context.Context) ([]event.Template, error)
	Update(ctx context.Context, id int64, req event.UpdateTemplateRequest) (event.Template, error)
	Delete(ctx context.Context, id int64) error
}

type TemplatesHandler struct {
	repo TemplatesRepository
}

func NewTemplatesHandler(repo TemplatesRepository) *TemplatesHandler {
	return &TemplatesHandler{repo: repo}
}

func (h *TemplatesHandler) CreateTemplate(ctx *gin.Context) {
	var req event.CreateTemplateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	t, err := h.repo.Create(ctx.Request.Context(), req)

	if err != nil {
		if isSchemaError(err) {
			RespondBadRequest(ctx, "Invalid form schema", gin.H{"reason": err.Error()})
			return
		}
		RespondInternal(ctx, "Could not create template")
		return
	}

	ctx.JSON(http.StatusCreated, t)
}

func (h *TemplatesHandler) ListTemplates(ctx *gin.Context) {
	templates, err := h.repo.List(ctx.Request.Context())

	if err != nil {
		RespondInternal(ctx, "Could not list templates")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": templates,
		"count": len(templates),
	})
}

func (h *TemplatesHandler) GetTemplate(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")

	if !ok {
		return
	}

	t, err := h.repo.GetByID(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, event.ErrTemplateNotFound) {
			RespondNotFound(ctx, "Template not found")
			return
		}
		RespondInternal(ctx, "Could not fetch template")
		return
	}

	ctx.JSON(http.StatusOK, t)
}

func (h *TemplatesHandler) UpdateTemplate(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")

	if !ok {
		return
	}

	var req event.UpdateTemplateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	t, err := h.repo.Update(ctx.Request.Context(), id, req)

	if err != nil {
		switch {
		case errors.Is(err, event.ErrTemplateNotFound):
			RespondNotFound(ctx, "Template not found")
		case isSchemaError(err):
			RespondBadRequest(ctx, "Invalid form schema", gin.H{"reason": err.Error()})
		default:
			RespondInternal(ctx, "Could not update template")
		}
		return
	}

	ctx.JSON(http.StatusOK, t)
}

func (h *TemplatesHandler) DeleteTemplate(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")

	if !ok {
		return
	}

	err := h.repo.Delete(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, event.ErrTemplateNotFound) {
			RespondNotFound(ctx, "Template not found")
			return
		}
		RespondInternal(ctx, "Could not delete template")
		return
	}

	ctx.Status(http.StatusNoContent)
}
