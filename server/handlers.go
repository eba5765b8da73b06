package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"packchicken-service/core"
	"packchicken-service/normalize"
	"packchicken-service/workers/fulfillment"
	"packchicken-service/workers/fulfillment/models"
	"packchicken-service/workers/inbox"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const recentJobsLimit = 20

func (s *Server) dashboard(c *gin.Context) {
	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"OrdersDir": s.cfg.OrdersDir,
		"LabelDir":  s.cfg.LabelDir,
	})
}

// ingestOrder accepts an order pushed by an external mail parser. A message
// id that was already handled is acknowledged without a second job.
func (s *Server) ingestOrder(c *gin.Context) {
	if token := s.cfg.IngressToken; token != "" && c.GetHeader("Authorization") != "Bearer "+token {
		errorJSON(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var payload normalize.APIOrder
	if err := c.ShouldBindJSON(&payload); err != nil {
		errorJSON(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ctx := c.Request.Context()
	log := s.logger.With(zap.String("message_id", payload.MessageID), zap.String("ingress_source", payload.Source))

	if payload.MessageID != "" {
		seen, err := s.emails.Seen(ctx, payload.MessageID)
		if err != nil {
			_ = c.Error(err)
			errorJSON(c, http.StatusInternalServerError, "could not check message id")
			return
		}
		if seen {
			log.Info("Pushed order already received")
			c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
			return
		}
	}

	res, err := normalize.Normalize(payload)
	if err != nil {
		errorJSON(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	jobID, enqueued, err := s.intake.Submit(ctx, res)
	status := models.EmailOK
	switch {
	case err != nil:
		status = models.EmailDBError
	case !enqueued:
		status = models.EmailDuplicate
	}
	if payload.MessageID != "" {
		entry := &models.ProcessedEmail{
			MessageID:  payload.MessageID,
			ReceivedAt: time.Now().UTC(),
			Subject:    metaString(payload.RawEmailMeta, "subject"),
			FromAddr:   metaString(payload.RawEmailMeta, "from"),
			Status:     status,
		}
		if err != nil {
			entry.LastError = err.Error()
		}
		if recErr := s.emails.Record(ctx, entry); recErr != nil {
			log.Warn("Could not record pushed message", zap.Error(recErr))
		}
	}
	if err != nil {
		_ = c.Error(err)
		errorJSON(c, http.StatusInternalServerError, "could not enqueue order")
		return
	}

	log.Info("Pushed order accepted", zap.Uint("job_id", jobID), zap.String("order_id", res.OrderID), zap.Bool("enqueued", enqueued))
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

type jobView struct {
	*models.Job
	LabelURL  string `json:"label_url,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func formatTS(ts float64) string {
	if ts == 0 {
		return ""
	}
	sec := int64(ts)
	return time.Unix(sec, int64((ts-float64(sec))*1e9)).Format("2006-01-02 15:04:05")
}

func (s *Server) listJobs(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := s.jobs.Stats(ctx)
	if err != nil {
		_ = c.Error(err)
		errorJSON(c, http.StatusInternalServerError, "could not count jobs")
		return
	}
	recent, err := s.jobs.Recent(ctx, recentJobsLimit)
	if err != nil {
		_ = c.Error(err)
		errorJSON(c, http.StatusInternalServerError, "could not list jobs")
		return
	}

	views := make([]jobView, 0, len(recent))
	for i := range recent {
		j := &recent[i]
		v := jobView{Job: j, CreatedAt: formatTS(j.CreatedAt), UpdatedAt: formatTS(j.UpdatedAt)}
		if j.LabelPath != "" {
			v.LabelURL = "/labels/" + filepath.Base(j.LabelPath)
		}
		views = append(views, v)
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"stats":      stats,
		"jobs":       views,
		"orders_dir": s.cfg.OrdersDir,
		"label_dir":  s.cfg.LabelDir,
	})
}

func (s *Server) uploadOrders(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "no file in request")
		return
	}

	name := inbox.SafeFilename(filepath.Base(file.Filename))
	if strings.Trim(name, "._") == "" {
		errorJSON(c, http.StatusBadRequest, "invalid file name")
		return
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
	default:
		errorJSON(c, http.StatusBadRequest, "only CSV or XLSX files are supported")
		return
	}

	if err := os.MkdirAll(s.cfg.OrdersDir, 0o755); err != nil {
		_ = c.Error(err)
		errorJSON(c, http.StatusInternalServerError, "could not create orders directory")
		return
	}
	dest := filepath.Join(s.cfg.OrdersDir, name)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		_ = c.Error(err)
		errorJSON(c, http.StatusInternalServerError, "could not save upload")
		return
	}

	added, err := s.intake.SubmitFile(c.Request.Context(), dest)
	if err != nil {
		_ = c.Error(err)
		errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("could not enqueue file: %v", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"orders_added": added,
		"csv_path":     dest,
	})
}

type processResponse struct {
	OK bool `json:"ok"`
	*fulfillment.RunReport
	MergedLabelURL string `json:"merged_label_url,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (s *Server) process(c *gin.Context) {
	if s.runner == nil {
		msg := "booking is not configured"
		if s.runnerErr != nil {
			msg = s.runnerErr.Error()
		}
		errorJSON(c, http.StatusServiceUnavailable, msg)
		return
	}

	returnLabels, _ := strconv.ParseBool(c.DefaultQuery("return", "false"))
	report, err := s.runner.Run(c.Request.Context(), fulfillment.RunOptions{Return: returnLabels})
	if errors.Is(err, core.ErrRunInProgress) {
		errorJSON(c, http.StatusConflict, err.Error())
		return
	}
	if report == nil {
		_ = c.Error(err)
		errorJSON(c, http.StatusInternalServerError, fmt.Sprint(err))
		return
	}

	resp := processResponse{OK: err == nil, RunReport: report}
	if err != nil {
		resp.Error = err.Error()
	}
	if report.MergedLabel != "" {
		resp.MergedLabelURL = "/labels/" + filepath.Base(report.MergedLabel)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) serveLabel(c *gin.Context) {
	name := c.Param("name")
	if name != filepath.Base(name) || !strings.EqualFold(filepath.Ext(name), ".pdf") {
		errorJSON(c, http.StatusNotFound, "label not found")
		return
	}

	path := filepath.Join(s.cfg.LabelDir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		errorJSON(c, http.StatusNotFound, "label not found")
		return
	}
	c.File(path)
}
