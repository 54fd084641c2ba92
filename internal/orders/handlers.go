package orders

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/BaHoon/Careflow-sub002/pkg/monitoring"
	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

// setupRoutes configures HTTP routes for the order engine
func (s *Service) setupRoutes(router *mux.Router) {
	router.Use(monitoring.HTTPMetricsMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Order acknowledgement
	api.HandleFunc("/orders/acknowledge", s.acknowledgeOrdersHandler).Methods("POST")
	api.HandleFunc("/orders/reject", s.rejectOrdersHandler).Methods("POST")

	// Stop protocol
	api.HandleFunc("/orders/{id}/stop", s.stopOrderHandler).Methods("POST")
	api.HandleFunc("/orders/{id}/stop/withdraw", s.withdrawStopHandler).Methods("POST")
	api.HandleFunc("/orders/stop/acknowledge", s.acknowledgeStopsHandler).Methods("POST")
	api.HandleFunc("/orders/stop/reject", s.rejectStopsHandler).Methods("POST")

	// Terminal transitions
	api.HandleFunc("/orders/{id}/cancel", s.cancelOrderHandler).Methods("POST")
	api.HandleFunc("/orders/{id}/complete", s.completeOrderHandler).Methods("POST")

	// Inspection report attachment
	api.HandleFunc("/orders/{id}/report", s.attachReportHandler).Methods("POST")

	// Order queries
	api.HandleFunc("/orders/{id}/tasks", s.getOrderTasksHandler).Methods("GET")
	api.HandleFunc("/orders/{id}/history", s.getStatusHistoryHandler).Methods("GET")

	// Task execution
	api.HandleFunc("/tasks/{id}/start", s.startTaskHandler).Methods("POST")
	api.HandleFunc("/tasks/{id}/dispense", s.dispenseTaskHandler).Methods("POST")
	api.HandleFunc("/tasks/{id}/complete", s.completeTaskHandler).Methods("POST")

	// Health check and metrics
	api.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	router.Handle("/metrics", monitoring.MetricsHandler()).Methods("GET")

	s.logger.Info("Order engine routes configured")
}

// batchRequest carries a batch of order ids plus an optional reason
type batchRequest struct {
	OrderIDs []int64 `json:"order_ids"`
	Reason   string  `json:"reason"`
}

// stopRequest carries the stop parameters for one order
type stopRequest struct {
	Reason          string `json:"reason"`
	StopAfterTaskID int64  `json:"stop_after_task_id"`
}

// reasonRequest carries a bare mandatory reason
type reasonRequest struct {
	Reason string `json:"reason"`
}

// reportRequest carries an external report reference
type reportRequest struct {
	ReportRef string `json:"report_ref"`
}

// acknowledgeOrdersHandler handles batch order acknowledgement
func (s *Service) acknowledgeOrdersHandler(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	actor, err := s.actorFromRequest(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Invalid actor credentials", err)
		return
	}

	result, err := s.AcknowledgeOrders(actor, req.OrderIDs)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to acknowledge orders", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, result)
}

// rejectOrdersHandler handles batch order rejection back to draft
func (s *Service) rejectOrdersHandler(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	actor, err := s.actorFromRequest(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Invalid actor credentials", err)
		return
	}

	result, err := s.RejectOrders(actor, req.OrderIDs, req.Reason)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to reject orders", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, result)
}

// stopOrderHandler handles a physician stop request for one order
func (s *Service) stopOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid order id", err)
		return
	}

	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	actor, err := s.actorFromRequest(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Invalid actor credentials", err)
		return
	}

	result, err := s.StopOrder(actor, orderID, req.Reason, req.StopAfterTaskID)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to stop order", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, result)
}

// withdrawStopHandler handles a physician withdrawing a pending stop
func (s *Service) withdrawStopHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid order id", err)
		return
	}

	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	actor, err := s.actorFromRequest(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Invalid actor credentials", err)
		return
	}

	result, err := s.WithdrawStop(actor, orderID, req.Reason)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to withdraw stop", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, result)
}

// acknowledgeStopsHandler handles nurse confirmation of pending stops
func (s *Service) acknowledgeStopsHandler(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	actor, err := s.actorFromRequest(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Invalid actor credentials", err)
		return
	}

	result, err := s.AcknowledgeStops(actor, req.OrderIDs)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to acknowledge stops", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, result)
}

// rejectStopsHandler handles nurse rejection of pending stops
func (s *Service) rejectStopsHandler(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	actor, err := s.actorFromRequest(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Invalid actor credentials", err)
		return
	}

	result, err := s.RejectStop(actor, req.OrderIDs, req.Reason)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to reject stops", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, result)
}

// cancelOrderHandler handles order cancellation
func (s *Service) cancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid order id", err)
		return
	}

	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	actor, err := s.actorFromRequest(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Invalid actor credentials", err)
		return
	}

	if err := s.CancelOrder(actor, orderID, req.Reason); err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to cancel order", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"order_id": orderID,
		"status":   types.OrderCancelled,
	})
}

// completeOrderHandler handles order completion
func (s *Service) completeOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid order id", err)
		return
	}

	actor, err := s.actorFromRequest(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Invalid actor credentials", err)
		return
	}

	if err := s.CompleteOrder(actor, orderID); err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to complete order", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"order_id": orderID,
		"status":   types.OrderCompleted,
	})
}

// attachReportHandler handles report arrival for an inspection order
func (s *Service) attachReportHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid order id", err)
		return
	}

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	task, err := s.AttachInspectionReport(orderID, req.ReportRef)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to attach report", err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, task)
}

// getOrderTasksHandler handles task list retrieval for one order
func (s *Service) getOrderTasksHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid order id", err)
		return
	}

	tasks, err := s.GetOrderTasks(orderID)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to get order tasks", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"order_id": orderID,
		"tasks":    tasks,
		"count":    len(tasks),
	})
}

// getStatusHistoryHandler handles status history retrieval for one order
func (s *Service) getStatusHistoryHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid order id", err)
		return
	}

	history, err := s.GetStatusHistory(orderID)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to get status history", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"order_id": orderID,
		"history":  history,
		"count":    len(history),
	})
}

// startTaskHandler handles a nurse starting (or single-scan completing) a task
func (s *Service) startTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid task id", err)
		return
	}

	actor, err := s.actorFromRequest(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Invalid actor credentials", err)
		return
	}

	task, err := s.StartTask(actor, taskID)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to start task", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, task)
}

// dispenseTaskHandler handles the dispense step of duration tasks
func (s *Service) dispenseTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid task id", err)
		return
	}

	actor, err := s.actorFromRequest(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Invalid actor credentials", err)
		return
	}

	task, err := s.DispenseTask(actor, taskID)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to dispense task", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, task)
}

// completeTaskHandler handles task completion, with an optional result body
func (s *Service) completeTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid task id", err)
		return
	}

	// ContentLength is -1 on chunked requests, so decide off the body itself.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	var result *types.TaskResult
	if len(bytes.TrimSpace(body)) > 0 {
		result = &types.TaskResult{}
		if err := json.Unmarshal(body, result); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	actor, err := s.actorFromRequest(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Invalid actor credentials", err)
		return
	}

	task, err := s.CompleteTask(actor, taskID, result)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to complete task", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, task)
}

// healthCheckHandler handles health check requests
func (s *Service) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.db.Health(); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.writeJSONResponse(w, code, map[string]interface{}{
		"status":    status,
		"service":   "order-engine",
		"timestamp": time.Now().UTC(),
	})
}

// actorClaims are the staff identity claims issued by the auth gateway
type actorClaims struct {
	ActorID   int64  `json:"actor_id"`
	ActorType string `json:"actor_type"`
	ActorName string `json:"actor_name"`
	jwt.RegisteredClaims
}

// actorFromRequest resolves the acting staff member from the bearer token,
// falling back to the X-Actor headers set by the internal gateway
func (s *Service) actorFromRequest(r *http.Request) (types.Actor, error) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims := &actorClaims{}

		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(s.config.JWT.SecretKey), nil
		})
		if err != nil || !token.Valid {
			return types.Actor{}, fmt.Errorf("invalid token: %w", err)
		}

		return types.Actor{
			ID:   claims.ActorID,
			Type: types.ActorType(claims.ActorType),
			Name: claims.ActorName,
		}, nil
	}

	actorID, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	if err != nil {
		return types.Actor{}, fmt.Errorf("missing actor identity")
	}

	return types.Actor{
		ID:   actorID,
		Type: types.ActorType(r.Header.Get("X-Actor-Type")),
		Name: r.Header.Get("X-Actor-Name"),
	}, nil
}

// pathID extracts the numeric {id} path variable
func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// statusForError maps structured errors onto HTTP status codes
func statusForError(err error) int {
	var cfErr *types.CareflowError
	if errors.As(err, &cfErr) {
		switch cfErr.Type {
		case types.ErrorTypeValidation, types.ErrorTypePartialParse:
			return http.StatusBadRequest
		case types.ErrorTypeNotFound:
			return http.StatusNotFound
		case types.ErrorTypeInvalidState, types.ErrorTypeConflict:
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

// writeJSONResponse writes a JSON response
func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (s *Service) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	s.logger.WithError(err).Error(message)

	response := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}

	if err != nil {
		response["details"] = err.Error()
	}

	s.writeJSONResponse(w, statusCode, response)
}
