package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/try-veil/veil-gateway/internal/auth"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// KeyHandler handles API key management routes
type KeyHandler struct {
	keyService KeyServiceInterface
}

// NewKeyHandler creates a new KeyHandler
func NewKeyHandler(keyService KeyServiceInterface) *KeyHandler {
	return &KeyHandler{
		keyService: keyService,
	}
}

// CreateKey issues a new API key for the current user.
// The raw key is part of this response only.
func (h *KeyHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		utils.Unauthorized(w, constants.MsgAuthRequired)
		return
	}

	var req models.CreateAPIKeyRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	created, err := h.keyService.CreateKey(r.Context(), userID, &req)
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusCreated, created)
}

// ListKeys returns the current user's keys, paginated and filtered by status
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		utils.Unauthorized(w, constants.MsgAuthRequired)
		return
	}

	params := utils.GetPaginationParams(r)
	status := r.URL.Query().Get(constants.QueryParamStatus)

	keys, total, err := h.keyService.ListKeys(r.Context(), userID, status, params.Page, params.PageSize)
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.Paginated(w, constants.StatusOK, keys, params.Page, params.PageSize, total)
}

// GetKey returns one of the current user's keys
func (h *KeyHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		utils.Unauthorized(w, constants.MsgAuthRequired)
		return
	}

	key, err := h.keyService.GetKey(r.Context(), userID, auth.IsAdmin(r), chi.URLParam(r, constants.ParamKeyID))
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, key)
}

// UpdateKey changes the name, description, permissions or active flag of a key
func (h *KeyHandler) UpdateKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		utils.Unauthorized(w, constants.MsgAuthRequired)
		return
	}

	var req models.UpdateAPIKeyRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}
	if req.IsEmpty() {
		utils.BadRequest(w, "No fields to update", nil)
		return
	}

	key, err := h.keyService.UpdateKey(r.Context(), userID, auth.IsAdmin(r), chi.URLParam(r, constants.ParamKeyID), &req)
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, key)
}

// RegenerateKey replaces the secret of a key and returns the new raw key
func (h *KeyHandler) RegenerateKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		utils.Unauthorized(w, constants.MsgAuthRequired)
		return
	}

	var req models.KeyReasonRequest
	if err := decodeOptional(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	created, err := h.keyService.RegenerateKey(r.Context(), userID, auth.IsAdmin(r), chi.URLParam(r, constants.ParamKeyID), req.Reason)
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, created)
}

// RevokeKey deactivates a key. The record is kept for auditing.
func (h *KeyHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		utils.Unauthorized(w, constants.MsgAuthRequired)
		return
	}

	var req models.KeyReasonRequest
	if err := decodeOptional(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	if err := h.keyService.RevokeKey(r.Context(), userID, auth.IsAdmin(r), chi.URLParam(r, constants.ParamKeyID), req.Reason); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, map[string]string{
		"message": constants.MsgAPIKeyRevoked,
	})
}

// DeleteKey permanently removes one of the current user's keys
func (h *KeyHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		utils.Unauthorized(w, constants.MsgAuthRequired)
		return
	}

	if err := h.keyService.DeleteKey(r.Context(), userID, auth.IsAdmin(r), chi.URLParam(r, constants.ParamKeyID)); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, map[string]string{
		"message": constants.MsgAPIKeyDeleted,
	})
}

// GetKeyUsage reports how much of its quota one of the current user's keys has used
func (h *KeyHandler) GetKeyUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		utils.Unauthorized(w, constants.MsgAuthRequired)
		return
	}

	usage, err := h.keyService.GetKeyUsage(r.Context(), userID, auth.IsAdmin(r), chi.URLParam(r, constants.ParamKeyID))
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, usage)
}

// SearchKeys finds the current user's keys by name
func (h *KeyHandler) SearchKeys(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		utils.Unauthorized(w, constants.MsgAuthRequired)
		return
	}

	keys, err := h.keyService.SearchKeys(r.Context(), userID, r.URL.Query().Get(constants.QueryParamSearch))
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, keys)
}

// BulkOperation activates, deactivates or deletes several keys at once.
// Per-key failures are reported in the result, not as an error status.
func (h *KeyHandler) BulkOperation(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		utils.Unauthorized(w, constants.MsgAuthRequired)
		return
	}

	var req models.BulkKeyOperationRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	result, err := h.keyService.BulkOperation(r.Context(), userID, auth.IsAdmin(r), &req)
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, result)
}

// UpdateQuota sets the request limit of any key. Admin only.
func (h *KeyHandler) UpdateQuota(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateQuotaRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	key, err := h.keyService.UpdateQuota(r.Context(), chi.URLParam(r, constants.ParamKeyID), *req.RequestsLimit)
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, key)
}

// ResetUsage zeroes the used request count of any key. Admin only.
func (h *KeyHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	key, err := h.keyService.ResetUsage(r.Context(), chi.URLParam(r, constants.ParamKeyID))
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, key)
}

// UpdateSubscriptionStatus mirrors a subscription status change onto a key. Admin only.
func (h *KeyHandler) UpdateSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateSubscriptionStatusRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	key, err := h.keyService.UpdateSubscriptionStatus(r.Context(), chi.URLParam(r, constants.ParamKeyID), req.Status)
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, key)
}

// ValidateKey reports the identity behind the presented API key.
// It runs behind middleware.APIKeyAuth, which has already rejected bad keys.
func (h *KeyHandler) ValidateKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.GetPrincipal(r)
	if !ok {
		utils.Unauthorized(w, constants.MsgMissingAPIKey)
		return
	}

	utils.JSON(w, constants.StatusOK, models.NewValidateKeyResponse(principal))
}

// decodeOptional decodes and validates a JSON body when one was sent
func decodeOptional(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return utils.ValidateStruct(v)
	}
	return utils.DecodeAndValidate(r, v)
}
