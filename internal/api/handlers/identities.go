package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/coachwatch/internal/identity"
	"github.com/your-org/coachwatch/internal/roster"
	"github.com/your-org/coachwatch/pkg/dto"
)

const maxImageBytes = 10 << 20

// Roster is the enrollment surface used by IdentityHandler.
type Roster interface {
	EnrollImage(ctx context.Context, meta identity.Identity, image []byte, contentType string) (roster.EnrollResult, error)
	Remove(ctx context.Context, id string) (bool, error)
	List() []identity.Summary
	Get(id string) (identity.Summary, bool)
	Count() int
	Export() []identity.Record
	Import(ctx context.Context, records []identity.Record) identity.ImportResult
	Backup(ctx context.Context) (string, int, error)
	RestoreBackup(ctx context.Context, key string) (identity.ImportResult, error)
}

type IdentityHandler struct {
	roster Roster
}

func NewIdentityHandler(r Roster) *IdentityHandler {
	return &IdentityHandler{roster: r}
}

// Enroll accepts a multipart image upload plus identity metadata, embeds the
// best face and enrolls it.
func (h *IdentityHandler) Enroll(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}
	if len(imageData) > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	authorized, err := strconv.ParseBool(c.DefaultPostForm("authorized", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorized must be a boolean"})
		return
	}
	meta := identity.Identity{
		ID:              c.PostForm("identity_id"),
		DisplayName:     c.PostForm("display_name"),
		Authorized:      authorized,
		Role:            identity.Role(c.DefaultPostForm("role", string(identity.RolePassenger))),
		TicketReference: c.PostForm("ticket_reference"),
	}

	res, err := h.roster.EnrollImage(c.Request.Context(), meta, imageData, header.Header.Get("Content-Type"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.EnrollResponse{
		IdentityID: res.IdentityID,
		Embeddings: res.Embeddings,
		SourceKey:  res.SourceKey,
	})
}

func (h *IdentityHandler) List(c *gin.Context) {
	summaries := h.roster.List()
	resp := dto.IdentityListResponse{
		Identities: make([]dto.IdentityResponse, 0, len(summaries)),
		Total:      len(summaries),
		Embeddings: h.roster.Count(),
	}
	for _, s := range summaries {
		resp.Identities = append(resp.Identities, dto.IdentityResponse{Identity: s.Identity, Embeddings: s.Embeddings})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *IdentityHandler) Get(c *gin.Context) {
	s, ok := h.roster.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}
	c.JSON(http.StatusOK, dto.IdentityResponse{Identity: s.Identity, Embeddings: s.Embeddings})
}

func (h *IdentityHandler) Delete(c *gin.Context) {
	ok, err := h.roster.Remove(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Export returns every enrollment record. With backup=true the records are
// written to object storage instead and the key is returned.
func (h *IdentityHandler) Export(c *gin.Context) {
	if c.Query("backup") == "true" {
		key, n, err := h.roster.Backup(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, dto.BackupResponse{Key: key, Records: n})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": h.roster.Export()})
}

// Import enrolls the posted records, or restores a stored backup when
// backup_key is given.
func (h *IdentityHandler) Import(c *gin.Context) {
	var req dto.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var res identity.ImportResult
	if req.BackupKey != "" {
		var err error
		res, err = h.roster.RestoreBackup(c.Request.Context(), req.BackupKey)
		if err != nil {
			respondError(c, err)
			return
		}
	} else {
		res = h.roster.Import(c.Request.Context(), req.Records)
	}
	c.JSON(http.StatusOK, dto.ImportResponse{Imported: res.Imported, Failed: res.Failed})
}
