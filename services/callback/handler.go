package callback

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"leadbroker/pkg/errutil"
	"leadbroker/pkg/signature"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Callback handles POST /advertiser_callback. The raw body is kept aside for
// signature verification; the JSON signed by the advertiser must be the exact
// bytes we verify.
func (h *Handler) Callback(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		_ = c.Error(errutil.BadRequest("failed to read request body", err))
		return
	}

	var req CallbackRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid callback payload", err))
		return
	}

	if req.TxID == "" {
		_ = c.Error(errutil.ValidationFailed("az_tx_id is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "az_tx_id", Message: "required"})))
		return
	}
	if req.Status == "" {
		_ = c.Error(errutil.ValidationFailed("status is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "status", Message: "required"})))
		return
	}

	if err := h.svc.Handle(
		c.Request.Context(),
		&req,
		rawBody,
		c.GetHeader(signature.HeaderSignature),
		c.GetHeader(signature.HeaderTimestamp),
	); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
