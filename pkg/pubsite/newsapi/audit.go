package newsapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Endpoint is the path recorded on every gateway audit row.
const Endpoint = "/api/v1/news"

const auditTimeout = 5 * time.Second

// auditEntry is acquired when a POST enters the pipeline and is written
// exactly once when the request leaves it, whatever the exit path.
type auditEntry struct {
	method    string
	ip        string
	userAgent string

	request  datatypes.JSON
	keyID    *uuid.UUID
	status   int
	response any
	// logged replaces response in the row when set
	logged any

	// release gives back rate-limit capacity when the request ends without 201
	release func()
}

func (a *auditEntry) row(now time.Time) (*models.APILog, error) {
	payload := a.response
	if a.logged != nil {
		payload = a.logged
	}
	response, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &models.APILog{
		Endpoint:       Endpoint,
		Method:         a.method,
		RequestData:    a.request,
		ResponseStatus: a.status,
		ResponseData:   datatypes.JSON(response),
		IPAddress:      a.ip,
		UserAgent:      a.userAgent,
		APIKeyID:       a.keyID,
		CreatedAt:      now,
	}, nil
}

// emit writes the audit row. It runs after the request context may have been
// cancelled, so it uses a detached context bounded by auditTimeout.
func (h *Handler) emit(ctx context.Context, a *auditEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	row, err := a.row(h.now())
	if err != nil {
		h.log.Error("Failed to encode api log", zap.Int("status", a.status), zap.Error(err))
		return
	}
	if err := h.db.WithContext(ctx).Create(row).Error; err != nil {
		h.log.Error("Failed to write api log",
			zap.Int("status", a.status),
			zap.Stringp("api_key_id", uuidString(a.keyID)),
			zap.Error(err),
		)
	}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
