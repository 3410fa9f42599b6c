package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) putKey(c *gin.Context) {
	start := time.Now()
	key := c.Param("key")
	if key == "" {
		s.errorResponse(c, http.StatusBadRequest, "INVALID_KEY", "key must not be empty")
		return
	}

	var req PutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	err := s.store.Set(key, req.Value)
	s.mu.Unlock()
	if err != nil {
		s.errorResponse(c, http.StatusBadRequest, "SET_FAILED", err.Error())
		return
	}

	s.successResponse(c, http.StatusOK, KVEntry{
		Key:       key,
		Value:     req.Value,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, time.Since(start))
}

func (s *Server) getKey(c *gin.Context) {
	start := time.Now()
	key := c.Param("key")
	if key == "" {
		s.errorResponse(c, http.StatusBadRequest, "INVALID_KEY", "key must not be empty")
		return
	}

	s.mu.Lock()
	value, found, err := s.store.Get(key)
	s.mu.Unlock()
	if err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "GET_FAILED", err.Error())
		return
	}
	if !found {
		s.errorResponse(c, http.StatusNotFound, "KEY_NOT_FOUND", "no value for key "+key)
		return
	}

	s.successResponse(c, http.StatusOK, KVEntry{
		Key:   key,
		Value: value,
	}, time.Since(start))
}

func (s *Server) deleteKey(c *gin.Context) {
	start := time.Now()
	key := c.Param("key")
	if key == "" {
		s.errorResponse(c, http.StatusBadRequest, "INVALID_KEY", "key must not be empty")
		return
	}

	s.mu.Lock()
	deleted, err := s.store.Delete(key)
	s.mu.Unlock()
	if err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "DELETE_FAILED", err.Error())
		return
	}
	if !deleted {
		s.errorResponse(c, http.StatusNotFound, "KEY_NOT_FOUND", "no value for key "+key)
		return
	}

	s.successResponse(c, http.StatusOK, gin.H{
		"key":     key,
		"deleted": true,
	}, time.Since(start))
}

func (s *Server) successResponse(c *gin.Context, status int, data interface{}, duration time.Duration) {
	c.JSON(status, APIResponse{
		Status: "success",
		Data:   data,
		Metadata: &Metadata{
			Version:         "1.0",
			ExecutionTimeMs: float64(duration.Nanoseconds()) / 1e6,
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, APIResponse{
		Status: "error",
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Metadata: &Metadata{
			Version:   "1.0",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}
