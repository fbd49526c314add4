// Package api is the HTTP boundary around the agent core: thin,
// synchronous handlers over the blocking core calls, with concurrency
// orchestration left entirely to the HTTP server.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/icu-agent/icu-agent/agent"
)

// Server exposes prediction, training, and metrics over HTTP.
type Server struct {
	predictor *agent.Predictor
	trainer   *agent.Trainer
	engine    *gin.Engine
}

// TrainRequest bounds a synchronous training invocation.
type TrainRequest struct {
	Epochs int `json:"epochs" binding:"required,gt=0"`
}

// NewServer wires the routes. CORS admits the local dashboard origins.
func NewServer(predictor *agent.Predictor, trainer *agent.Trainer) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Content-Type"},
	}))

	s := &Server{predictor: predictor, trainer: trainer, engine: engine}
	engine.GET("/health", s.health)
	engine.POST("/predict", s.predict)
	engine.POST("/train", s.train)
	engine.GET("/metrics", s.metrics)
	return s
}

// Handler returns the underlying handler, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	logrus.Infof("serving on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) health(c *gin.Context) {
	status := s.trainer.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"model_loaded": s.predictor.Loaded(),
		"training":     status.Training,
	})
}

func (s *Server) predict(c *gin.Context) {
	var rec agent.PatientRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body: " + err.Error()})
		return
	}
	pred, err := s.predictor.Predict(rec)
	if err != nil {
		s.writePredictError(c, err)
		return
	}
	c.JSON(http.StatusOK, pred)
}

// writePredictError maps the error taxonomy onto HTTP statuses: bad
// input is a client error, a missing model is a server-side
// availability problem.
func (s *Server) writePredictError(c *gin.Context, err error) {
	var invalid *agent.InvalidRecordError
	var notLoaded *agent.ModelNotLoadedError
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error(), "field": invalid.Field})
	case errors.As(err, &notLoaded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": notLoaded.Error()})
	default:
		logrus.Errorf("prediction failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction failed"})
	}
}

func (s *Server) train(c *gin.Context) {
	var req TrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "epochs must be a positive integer"})
		return
	}
	result, err := s.trainer.Run(c.Request.Context(), req.Epochs)
	if err != nil {
		if errors.Is(err, agent.ErrTrainingInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		logrus.Errorf("training failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.trainer.Status())
}
