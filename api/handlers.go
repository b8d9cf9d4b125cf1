package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/cell"
	"github.com/ftl/cellbroadcast/engine"
)

const slotKey = "slot"

// ErrorResponse is returned with every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AreaInfoResponse represents the area info of one slot.
type AreaInfoResponse struct {
	Slot     int    `json:"slot"`
	AreaInfo string `json:"areaInfo"`
}

// SubmitPDURequest carries a PDU as hex string.
type SubmitPDURequest struct {
	PDU string `json:"pdu" binding:"required"`
}

// MessageResponse represents a message of the history.
type MessageResponse struct {
	ID                int64          `json:"id"`
	MessageIdentifier uint16         `json:"messageIdentifier"`
	SerialNumber      uint16         `json:"serialNumber"`
	ServiceCategory   int            `json:"serviceCategory"`
	PLMN              string         `json:"plmn"`
	LAC               int            `json:"lac"`
	CID               int            `json:"cid"`
	Language          string         `json:"language"`
	Body              string         `json:"body"`
	Geometries        [][][2]float64 `json:"geometries,omitempty"`
	MaximumWaitTime   string         `json:"maximumWaitTime,omitempty"`
	Slot              int            `json:"slot"`
	ReceivedAt        time.Time      `json:"receivedAt"`
	Delivered         bool           `json:"delivered"`
}

func toMessageResponse(record cb.Record) MessageResponse {
	msg := record.Message
	result := MessageResponse{
		ID:                record.ID,
		MessageIdentifier: msg.MessageIdentifier,
		SerialNumber:      msg.SerialNumber,
		ServiceCategory:   msg.ServiceCategory,
		PLMN:              msg.Location.PLMN,
		LAC:               msg.Location.LAC,
		CID:               msg.Location.CID,
		Language:          msg.Language,
		Body:              msg.Body,
		Slot:              msg.SlotIndex,
		ReceivedAt:        msg.ReceivedAt,
		Delivered:         record.Delivered,
	}
	if msg.MaximumWaitTime > 0 {
		result.MaximumWaitTime = msg.MaximumWaitTime.String()
	}
	for _, polygon := range msg.Geometries {
		vertices := make([][2]float64, 0, len(polygon))
		for _, vertex := range polygon {
			vertices = append(vertices, [2]float64{vertex.Lat, vertex.Lng})
		}
		result.Geometries = append(result.Geometries, vertices)
	}
	return result
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// slotParam validates the slot path parameter and stores it in the context.
func (s *Server) slotParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		slot, err := strconv.Atoi(c.Param("slot"))
		if err != nil || slot < 0 || slot >= s.slots {
			c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: "unknown slot " + c.Param("slot")})
			return
		}
		c.Set(slotKey, slot)
		c.Next()
	}
}

// getAreaInfo handles GET /v1/slots/:slot/area-info
func (s *Server) getAreaInfo(c *gin.Context) {
	slot := c.GetInt(slotKey)
	c.JSON(http.StatusOK, AreaInfoResponse{Slot: slot, AreaInfo: s.engine.AreaInfo(slot)})
}

// submitPDU handles POST /v1/slots/:slot/pdus and POST /v1/slots/:slot/triggers
func (s *Server) submitPDU(submit func(slot int, pdu []byte) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request SubmitPDURequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
			return
		}
		pdu, err := cell.HexToBinary(request.PDU)
		if err != nil || len(pdu) == 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "pdu must be a non-empty hex string"})
			return
		}

		slot := c.GetInt(slotKey)
		err = submit(slot, pdu)
		switch {
		case errors.Is(err, engine.ErrClosed):
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		case err != nil:
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		default:
			c.JSON(http.StatusAccepted, gin.H{"slot": slot, "bytes": len(pdu)})
		}
	}
}

// listMessages handles GET /v1/messages?since=<RFC3339 or duration>&limit=<n>, newest first.
func (s *Server) listMessages(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "no message history"})
		return
	}

	since := s.now().Add(-defaultRecentSince)
	if value := c.Query("since"); value != "" {
		parsed, err := parseSince(value, s.now())
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		since = parsed
	}
	limit := defaultRecentLimit
	if value := c.Query("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive number"})
			return
		}
		limit = min(parsed, maxRecentLimit)
	}

	records, err := s.history.Recent(c.Request.Context(), since, limit)
	if err != nil {
		if s.log != nil {
			s.log.Errorf("cannot list messages: %v", err)
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list messages"})
		return
	}

	response := make([]MessageResponse, len(records))
	for i, record := range records {
		response[i] = toMessageResponse(record)
	}
	c.JSON(http.StatusOK, response)
}

// parseSince accepts an RFC3339 timestamp or a duration relative to now.
func parseSince(value string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return time.Time{}, errors.New("since must be an RFC3339 timestamp or a positive duration")
	}
	return now.Add(-d), nil
}
