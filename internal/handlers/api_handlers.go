package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/auth"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// APIHandler handles provider routes for onboarded APIs and their keys
type APIHandler struct {
	apiService APIServiceInterface
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(apiService APIServiceInterface) *APIHandler {
	return &APIHandler{
		apiService: apiService,
	}
}

// OnboardAPI registers an upstream API or replaces the one at the same path.
// Keys listed in the request are issued and returned once.
func (h *APIHandler) OnboardAPI(w http.ResponseWriter, r *http.Request) {
	var req models.OnboardAPIRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	resp, err := h.apiService.OnboardAPI(r.Context(), &req)
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	userID, _ := auth.GetUserID(r)
	log.Info().
		Int64(constants.LogFieldUserID, userID).
		Str(constants.LogFieldAPIPath, resp.API.Path).
		Int("issued_keys", len(resp.APIKeys)).
		Msg("API onboarded")

	utils.JSON(w, constants.StatusCreated, resp)
}

// ListAPIs returns every onboarded API, or the one at ?path= when given
func (h *APIHandler) ListAPIs(w http.ResponseWriter, r *http.Request) {
	if path := r.URL.Query().Get(constants.QueryParamPath); path != "" {
		api, err := h.apiService.GetAPIByPath(r.Context(), path)
		if err != nil {
			utils.ErrorFromAppError(w, utils.ParseError(err))
			return
		}
		utils.JSON(w, constants.StatusOK, api)
		return
	}

	apis, err := h.apiService.ListAPIs(r.Context())
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, apis)
}

// GetAPI returns one onboarded API by id
func (h *APIHandler) GetAPI(w http.ResponseWriter, r *http.Request) {
	id, ok := apiIDParam(w, r)
	if !ok {
		return
	}

	api, err := h.apiService.GetAPI(r.Context(), id)
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, api)
}

// DeleteAPI removes an onboarded API together with its rules and keys
func (h *APIHandler) DeleteAPI(w http.ResponseWriter, r *http.Request) {
	id, ok := apiIDParam(w, r)
	if !ok {
		return
	}

	if err := h.apiService.DeleteAPI(r.Context(), id); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, &models.APIResponseDTO{
		Status:  constants.ResponseStatusSuccess,
		Message: constants.MsgAPIDeleted,
	})
}

// AddKeys issues keys bound to an onboarded API
func (h *APIHandler) AddKeys(w http.ResponseWriter, r *http.Request) {
	var req models.APIKeysRequestDTO
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	resp, err := h.apiService.AddKeys(r.Context(), &req)
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusCreated, resp)
}

// SetKeyStatus activates or deactivates one key of an onboarded API
func (h *APIHandler) SetKeyStatus(w http.ResponseWriter, r *http.Request) {
	var req models.APIKeyStatusRequestDTO
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	if err := h.apiService.SetKeyStatus(r.Context(), &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, &models.APIResponseDTO{
		Status:  constants.ResponseStatusSuccess,
		Message: constants.MsgAPIKeyStatusUpdated,
	})
}

// DeleteKey deletes one key of an onboarded API
func (h *APIHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	var req models.APIKeyDeleteRequestDTO
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	if err := h.apiService.DeleteKey(r.Context(), &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, constants.StatusOK, &models.APIResponseDTO{
		Status:  constants.ResponseStatusSuccess,
		Message: constants.MsgAPIKeyDeleted,
	})
}

// apiIDParam parses the {apiID} URL parameter, writing a 400 when it is not a positive integer
func apiIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, constants.ParamAPIID), 10, 64)
	if err != nil || id <= 0 {
		utils.BadRequest(w, "Invalid API ID", nil)
		return 0, false
	}
	return id, true
}
