package api

import (
	"net/http"

	"fullsound/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listBeats(c *gin.Context) {
	beats, err := h.Catalog.ListBeats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, beats)
}

func (h *Handler) getBeat(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	beat, err := h.Catalog.GetBeat(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, beat)
}

func (h *Handler) getBeatBySlug(c *gin.Context) {
	beat, err := h.Catalog.GetBeatBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, beat)
}

func (h *Handler) recordPlay(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Catalog.RecordPlay(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) createBeat(c *gin.Context) {
	var in service.BeatInput
	if !bindJSON(c, &in) {
		return
	}
	beat, err := h.Catalog.CreateBeat(c.Request.Context(), &in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, beat)
}

func (h *Handler) updateBeat(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in service.BeatInput
	if !bindJSON(c, &in) {
		return
	}
	beat, err := h.Catalog.UpdateBeat(c.Request.Context(), id, &in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, beat)
}

func (h *Handler) deleteBeat(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Catalog.DeleteBeat(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
