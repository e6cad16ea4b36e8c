package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"dnicheck/internal/models"
	"dnicheck/internal/queue"
	"dnicheck/internal/spreadsheet"
	"dnicheck/internal/storage"
	"dnicheck/internal/store"
	"dnicheck/internal/verifier"
	"dnicheck/internal/websocket"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Error messages shown to API clients
const (
	msgNoFile         = "No se envió ningún archivo"
	msgNoFilename     = "Archivo sin nombre"
	msgBadExtension   = "Solo se permiten archivos Excel (.xls, .xlsx)"
	msgTaskNotFound   = "Tarea no encontrada"
	msgNotCompleted   = "Procesamiento no completado"
	msgDNIMissing     = "DNI no proporcionado"
	msgDNIInvalid     = "DNI inválido"
	msgServerBusy     = "Servidor ocupado, intente nuevamente"
	msgResultsMissing = "Archivo de resultados no disponible"
)

// Handler contains API handlers
type Handler struct {
	queue    *queue.Queue
	uploads  *storage.Storage
	verifier verifier.Verifier
	hub      *websocket.Hub
}

// NewHandler creates a new API handler
func NewHandler(q *queue.Queue, uploads *storage.Storage, v verifier.Verifier, hub *websocket.Hub) *Handler {
	return &Handler{
		queue:    q,
		uploads:  uploads,
		verifier: v,
		hub:      hub,
	}
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if h.hub != nil {
		resp["ws_clients"] = h.hub.ClientCount()
	}
	c.JSON(http.StatusOK, resp)
}

// Upload stores a spreadsheet and starts verifying it in the background
func (h *Handler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		// A part named "file" with an empty filename is parsed as a plain value
		if form := c.Request.MultipartForm; form != nil && len(form.Value["file"]) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgNoFilename})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoFile})
		return
	}
	if file.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoFilename})
		return
	}
	if !spreadsheet.IsSupported(file.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgBadExtension})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	ctx := c.Request.Context()
	taskID, err := h.queue.CreateJob(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	path, hash, size, err := h.uploads.SaveUpload(src, taskID, file.Filename)
	if err != nil {
		h.queue.FailJob(taskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Printf("Task %s received %s (%d bytes, sha256 %s)", taskID, file.Filename, size, hash)

	if err := h.queue.StartJob(taskID, path); err != nil {
		if rmErr := h.uploads.DeleteUpload(path); rmErr != nil {
			log.Printf("Failed to remove upload %s: %v", path, rmErr)
		}
		if errors.Is(err, queue.ErrPoolOverloaded) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgServerBusy})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"task_id": taskID})
}

// Progress returns the latest snapshot of a task
func (h *Handler) Progress(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job.Snapshot())
}

// Download streams the consolidated results of a completed task
func (h *Handler) Download(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	reader, err := h.queue.OpenArtifact(ctx, job)
	switch {
	case errors.Is(err, queue.ErrNotCompleted):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNotCompleted})
		return
	case errors.Is(err, storage.ErrArtifactNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msgResultsMissing})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer reader.Close()

	name := fmt.Sprintf("verificacion_dni_%s.xlsx", time.Now().Format("20060102_150405"))
	c.DataFromReader(http.StatusOK, -1, xlsxContentType, reader, map[string]string{
		"Content-Disposition": `attachment; filename="` + name + `"`,
	})
}

// VerifyDNI checks a single identifier synchronously
func (h *Handler) VerifyDNI(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgDNIMissing})
		return
	}

	var req map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil || req == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgDNIMissing})
		return
	}
	raw, ok := req["dni"]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgDNIMissing})
		return
	}

	dni := identifier(raw)
	if dni == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgDNIInvalid})
		return
	}

	outcome := h.verifier.Verify(c.Request.Context(), dni)
	detail := outcome.Detalle
	if detail == nil {
		detail = gin.H{}
	}
	c.JSON(http.StatusOK, gin.H{
		"DNI":       dni,
		"Resultado": outcome.Resultado,
		"Detalle":   detail,
	})
}

// lookup loads the task named in the path or answers 404
func (h *Handler) lookup(c *gin.Context) (models.Job, bool) {
	job, err := h.queue.GetJob(c.Request.Context(), c.Param("task_id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": msgTaskNotFound})
		return models.Job{}, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return models.Job{}, false
	}
	return job, true
}

// identifier renders a decoded JSON value as a trimmed identifier
func identifier(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
