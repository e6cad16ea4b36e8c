package api

import (
	"embed"
	"errors"
	"net/http"

	"dnicheck/internal/models"
	"dnicheck/internal/store"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

// UploadPage serves the batch upload form
func (h *Handler) UploadPage(c *gin.Context) {
	c.HTML(http.StatusOK, "upload.html", nil)
}

// LookupPage serves the single identifier lookup form
func (h *Handler) LookupPage(c *gin.Context) {
	c.HTML(http.StatusOK, "buscar.html", nil)
}

// ResultsPage renders the results table of a task. Unknown or unfinished
// tasks still render the page, with an error placeholder.
func (h *Handler) ResultsPage(c *gin.Context) {
	taskID := c.Param("task_id")

	job, err := h.queue.GetJob(c.Request.Context(), taskID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.HTML(http.StatusOK, "resultados.html", gin.H{"Error": msgTaskNotFound})
		return
	case err != nil:
		c.HTML(http.StatusInternalServerError, "resultados.html", gin.H{"Error": err.Error()})
		return
	case job.Status != models.JobStatusCompleted:
		c.HTML(http.StatusOK, "resultados.html", gin.H{"Error": msgNotCompleted})
		return
	}

	c.HTML(http.StatusOK, "resultados.html", gin.H{
		"TaskID":     taskID,
		"Resultados": job.Results,
	})
}
