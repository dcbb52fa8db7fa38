package account

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"account-service/internal/auth"
	"account-service/internal/httputil"
	"account-service/internal/logging"
	"account-service/internal/user"
	"account-service/internal/validate"
)

// maxSelfieSize bounds the multipart memory use for KYC uploads.
const maxSelfieSize = 10 << 20 // 10 MB

var allowedSelfieTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Handler contains HTTP handlers for the authenticated account endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// ChangePasswordRequest represents the change password request body
type ChangePasswordRequest struct {
	OldPassword     string `json:"old_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// UpdateProfileRequest represents the profile update request body.
// Absent fields are left untouched.
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,min=2,max=100"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,min=2,max=100"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,min=7,max=20"`
}

// DeleteAccountRequest represents the account deletion request body
type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

// ProfileResponse wraps a user in API responses
type ProfileResponse struct {
	User *user.User `json:"user"`
}

// KYCResponse represents a successful KYC submission
type KYCResponse struct {
	User    *user.User `json:"user"`
	Message string     `json:"message"`
}

// GetProfile returns the authenticated user's profile
// @Summary      Get profile
// @Description  Return the authenticated user's profile
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} ProfileResponse
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /profile [get]
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			logger.Warn("profile fetch failed: user not found", "user_id", userID)
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("profile fetch failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to fetch profile", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, ProfileResponse{User: profile}, http.StatusOK)
}

// ChangePassword replaces the caller's password
// @Summary      Change password
// @Description  Replace the password after re-verifying the old one
// @Tags         account
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ChangePasswordRequest true "Old and new passwords"
// @Success      200 {object} map[string]string
// @Failure      400 {object} httputil.ErrorResponse "Validation error or wrong old password"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Router       /change-password [put]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid change password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if fields := validate.Struct(req); fields != nil {
		logger.Warn("change password failed: validation error")
		httputil.RespondValidationErrors(w, fields)
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, ErrWrongPassword) {
			logger.Warn("change password failed: wrong old password", "user_id", userID)
			httputil.RespondErrorWithCode(w, "old password is incorrect", httputil.CodeWrongPassword, http.StatusBadRequest)
			return
		}
		if errors.Is(err, user.ErrNotFound) {
			logger.Warn("change password failed: user not found", "user_id", userID)
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("change password failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to change password", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("password changed successfully", "user_id", userID)

	httputil.RespondJSON(w, map[string]string{"message": "password changed successfully"}, http.StatusOK)
}

// UpdateProfile applies a partial profile update
// @Summary      Update profile
// @Description  Update the supplied profile fields only
// @Tags         account
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdateProfileRequest true "Fields to update"
// @Success      200 {object} ProfileResponse
// @Failure      400 {object} httputil.ErrorResponse "No fields supplied"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /update-profile [put]
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid update profile request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if fields := validate.Struct(req); fields != nil {
		logger.Warn("update profile failed: validation error")
		httputil.RespondValidationErrors(w, fields)
		return
	}

	update := user.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}

	updated, err := h.service.UpdateProfile(r.Context(), userID, update)
	if err != nil {
		if errors.Is(err, ErrNoFieldsToUpdate) {
			logger.Warn("update profile failed: no fields supplied", "user_id", userID)
			httputil.RespondErrorWithCode(w, "at least one field must be supplied", httputil.CodeNoFieldsToUpdate, http.StatusBadRequest)
			return
		}
		if errors.Is(err, user.ErrNotFound) {
			logger.Warn("update profile failed: user not found", "user_id", userID)
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("update profile failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to update profile", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("profile updated successfully", "user_id", userID)

	httputil.RespondJSON(w, ProfileResponse{User: updated}, http.StatusOK)
}

// DeleteAccount removes the caller's account
// @Summary      Delete account
// @Description  Delete the account after re-authenticating with the current password
// @Tags         account
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body DeleteAccountRequest true "Current password"
// @Success      200 {object} map[string]string
// @Failure      400 {object} httputil.ErrorResponse "Wrong password"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Router       /delete-account [delete]
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req DeleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid delete account request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if fields := validate.Struct(req); fields != nil {
		httputil.RespondValidationErrors(w, fields)
		return
	}

	if err := h.service.DeleteAccount(r.Context(), userID, req.Password); err != nil {
		if errors.Is(err, ErrWrongPassword) {
			logger.Warn("delete account failed: wrong password", "user_id", userID)
			httputil.RespondErrorWithCode(w, "password is incorrect", httputil.CodeWrongPassword, http.StatusBadRequest)
			return
		}
		if errors.Is(err, user.ErrNotFound) {
			logger.Warn("delete account failed: user not found", "user_id", userID)
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("delete account failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to delete account", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("account deleted", "user_id", userID)

	httputil.RespondJSON(w, map[string]string{"message": "account deleted successfully"}, http.StatusOK)
}

// SubmitKYC handles the KYC submission: BVN form field plus a selfie file
// @Summary      Submit KYC
// @Description  Submit the BVN and a selfie image for identity verification
// @Tags         account
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        bvn formData string true "11-digit BVN"
// @Param        selfie formData file true "Selfie image (jpeg or png)"
// @Success      200 {object} KYCResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing or invalid fields"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Router       /kyc [post]
func (h *Handler) SubmitKYC(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxSelfieSize); err != nil {
		logger.Warn("kyc submission failed: bad multipart form", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid multipart form data", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	bvn := r.FormValue("bvn")
	if fields := validate.Struct(struct {
		BVN string `validate:"required,len=11,numeric"`
	}{BVN: bvn}); fields != nil {
		logger.Warn("kyc submission failed: invalid bvn", "user_id", userID)
		httputil.RespondValidationErrors(w, fields)
		return
	}

	file, header, err := r.FormFile("selfie")
	if err != nil {
		logger.Warn("kyc submission failed: selfie missing", "user_id", userID)
		httputil.RespondErrorWithCode(w, "selfie file is required", httputil.CodeSelfieRequired, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size == 0 {
		logger.Warn("kyc submission failed: empty selfie", "user_id", userID)
		httputil.RespondErrorWithCode(w, "selfie file must not be empty", httputil.CodeSelfieRequired, http.StatusBadRequest)
		return
	}

	// Sniff the real content type before anything touches the network
	head := make([]byte, 512)
	n, err := file.Read(head)
	if err != nil && err != io.EOF {
		logger.Error("kyc submission failed: unreadable selfie", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to read selfie file", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	if !allowedSelfieTypes[contentType] {
		logger.Warn("kyc submission failed: unsupported file type", "user_id", userID, "content_type", contentType)
		httputil.RespondErrorWithCode(w, "selfie must be a jpeg or png image", httputil.CodeUnsupportedFileType, http.StatusBadRequest)
		return
	}

	selfie := &Selfie{
		Reader:      io.MultiReader(bytes.NewReader(head), file),
		Size:        header.Size,
		Filename:    header.Filename,
		ContentType: contentType,
	}

	updated, err := h.service.SubmitKYC(r.Context(), userID, bvn, selfie)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidBVN):
			httputil.RespondValidationErrors(w, []httputil.FieldError{
				{Field: "bvn", Message: "must be exactly 11 digits"},
			})
		case errors.Is(err, ErrMissingSelfie):
			httputil.RespondErrorWithCode(w, "selfie file is required", httputil.CodeSelfieRequired, http.StatusBadRequest)
		case errors.Is(err, user.ErrNotFound):
			logger.Warn("kyc submission failed: user not found", "user_id", userID)
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
		default:
			logger.Error("kyc submission failed: internal error", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to submit kyc", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("kyc submitted successfully", "user_id", userID)

	httputil.RespondJSON(w, KYCResponse{
		User:    updated,
		Message: "KYC submitted successfully",
	}, http.StatusOK)
}
