package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/queryview/internal/model"
)

func (s *Server) handleHealth(c *gin.Context) {
	queries, err := s.api.ListQueries(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read catalog"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"queries": len(queries),
	})
}

func (s *Server) handleListQueries(c *gin.Context) {
	queries, err := s.api.ListQueries(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if queries == nil {
		queries = []model.Query{}
	}
	c.JSON(http.StatusOK, queries)
}

func (s *Server) handleGetQuery(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	q, err := s.api.GetQuery(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) handleUpdateQuery(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var patch model.QueryPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	q, err := s.api.UpdateQuery(c.Request.Context(), id, patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) handleEmbedURL(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	vid, err := strconv.ParseInt(c.Query("visualization_id"), 10, 64)
	if err != nil || vid <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid visualization_id"})
		return
	}
	link, err := s.api.EmbedURL(c.Request.Context(), id, vid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link})
}

func (s *Server) handleGetDataSource(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ds, err := s.api.GetDataSource(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ds)
}

func (s *Server) handleExecute(c *gin.Context) {
	var req model.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.QueryID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing query_id"})
		return
	}
	res, err := s.api.Execute(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handlePollJob(c *gin.Context) {
	res, err := s.api.PollJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleCancelJob(c *gin.Context) {
	if err := s.api.CancelJob(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSaveVisualization(c *gin.Context) {
	var v model.Visualization
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if c.Param("id") != "" {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		v.ID = id
	} else {
		v.ID = 0
	}
	if v.QueryID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query_id"})
		return
	}

	saved, err := s.api.SaveVisualization(c.Request.Context(), v)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) handleDeleteVisualization(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.api.DeleteVisualization(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAddWidget(c *gin.Context) {
	var req struct {
		VisualizationID int64 `json:"visualization_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing visualization_id"})
		return
	}
	w, err := s.api.AddWidget(c.Request.Context(), strings.TrimSpace(c.Param("slug")), req.VisualizationID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// handleEmbed serves the public view of one visualization. The latest cached
// result is attached when one exists.
func (s *Server) handleEmbed(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	vid, ok := idParam(c, "vid")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	q, v, err := s.api.Embedded(ctx, c.Query("token"), id, vid)
	if err != nil {
		fail(c, err)
		return
	}

	body := gin.H{
		"query": gin.H{
			"id":          q.ID,
			"name":        q.Name,
			"description": q.Description,
			"updated_at":  q.UpdatedAt,
		},
		"visualization": v,
	}
	res, err := s.api.Execute(ctx, model.ExecuteRequest{QueryID: q.ID, MaxAge: -1})
	switch {
	case err != nil:
		log.Printf("httpserver: embed query %d: %v", q.ID, err)
	case res.Status == model.StatusDone:
		body["result"] = res
	default:
		body["job_id"] = res.JobID
	}
	c.JSON(http.StatusOK, body)
}
