package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/receipt-tax-tracker/backend/internal/auth"
	"example.com/receipt-tax-tracker/backend/internal/models"
	"example.com/receipt-tax-tracker/backend/internal/preferences"
	"example.com/receipt-tax-tracker/backend/internal/repository"
)

// PreferenceStore хранит анкету пользователя.
type PreferenceStore interface {
	Save(ctx context.Context, userID uuid.UUID, profile repository.ProfileUpdate, answers map[string]string) (models.User, []models.UserPreference, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.UserPreference, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

type PreferenceHandler struct {
	Preferences PreferenceStore
	Users       UserLookup
	Logger      *slog.Logger
}

// NewPreferenceHandler создает обработчик анкеты.
func NewPreferenceHandler(prefs PreferenceStore, users UserLookup, logger *slog.Logger) *PreferenceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PreferenceHandler{Preferences: prefs, Users: users, Logger: logger}
}

type PreferenceRequest struct {
	BusinessMeals      *string         `json:"businessMeals" validate:"omitempty,max=255"`
	BusinessTravel     *string         `json:"businessTravel" validate:"omitempty,max=255"`
	NRIC               *string         `json:"nric" validate:"omitempty,max=20"`
	NRICName           *string         `json:"nricName" validate:"omitempty,max=100"`
	PersonalDeductions json.RawMessage `json:"personalDeductions"`
	PhoneNumber        *string         `json:"phoneNumber" validate:"omitempty,max=20"`
	Profession         *string         `json:"profession" validate:"omitempty,max=255"`
	StatementMethod    *string         `json:"statementMethod" validate:"omitempty,max=255"`
	TIN                *string         `json:"tin" validate:"omitempty,max=20"`
	WorkLocation       *string         `json:"workLocation" validate:"omitempty,max=255"`
}

type PreferenceUserData struct {
	NRIC        *string `json:"nric"`
	NRICName    *string `json:"nric_name"`
	PhoneNumber *string `json:"phone_number"`
	TIN         *string `json:"tin"`
}

type SavePreferencesResponse struct {
	Message     string             `json:"message"`
	UserData    PreferenceUserData `json:"user_data"`
	Preferences map[string]string  `json:"preferences"`
}

// Store сохраняет анкету и поля профиля.
func (h *PreferenceHandler) Store(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequest(c, "invalid request body")
	}

	var req PreferenceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			errs := FieldErrors{}
			errs.Add(typeErr.Field, fmt.Sprintf("The %s field must be a string.", typeErr.Field))
			return unprocessable(c, errs)
		}
		return badRequest(c, "invalid request body")
	}

	errs := FieldErrors{}
	if err := errs.Merge(c.Validate(&req)); err != nil {
		return internalError(c, h.Logger, "validate preferences", err)
	}

	answers, err := collectAnswers(req)
	if err != nil {
		errs.Add("personalDeductions", "The personalDeductions field must be valid JSON.")
	}
	if len(errs) > 0 {
		return unprocessable(c, errs)
	}

	user, _, err := h.Preferences.Save(c.Request().Context(), userID, repository.ProfileUpdate{
		Name:        trimmedOrNil(req.NRICName),
		NRIC:        trimmedOrNil(req.NRIC),
		PhoneNumber: trimmedOrNil(req.PhoneNumber),
		TIN:         trimmedOrNil(req.TIN),
	}, answers)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "user not found")
		}
		return internalError(c, h.Logger, "save preferences", err)
	}

	return c.JSON(http.StatusOK, SavePreferencesResponse{
		Message: "User preferences saved successfully",
		UserData: PreferenceUserData{
			NRIC:        user.NRIC,
			NRICName:    user.Name,
			PhoneNumber: user.PhoneNumber,
			TIN:         user.TIN,
		},
		Preferences: answers,
	})
}

// Show возвращает поля профиля вместе с ответами анкеты.
func (h *PreferenceHandler) Show(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	ctx := c.Request().Context()
	user, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "user not found")
		}
		return internalError(c, h.Logger, "load user", err)
	}

	stored, err := h.Preferences.List(ctx, userID)
	if err != nil {
		return internalError(c, h.Logger, "list preferences", err)
	}

	return c.JSON(http.StatusOK, mergePreferences(user, stored))
}

// collectAnswers отбирает ответы анкеты; пустые значения пропускаются.
func collectAnswers(req PreferenceRequest) (map[string]string, error) {
	answers := make(map[string]string)
	text := map[string]*string{
		"businessMeals":   req.BusinessMeals,
		"businessTravel":  req.BusinessTravel,
		"profession":      req.Profession,
		"statementMethod": req.StatementMethod,
		"workLocation":    req.WorkLocation,
	}
	for question, answer := range text {
		if answer != nil {
			answers[question] = *answer
		}
	}

	answer, ok, err := preferences.EncodeAnswer(req.PersonalDeductions)
	if err != nil {
		return nil, err
	}
	if ok {
		answers["personalDeductions"] = answer
	}

	return answers, nil
}

func mergePreferences(user models.User, stored []models.UserPreference) map[string]any {
	response := map[string]any{
		"nric":        user.NRIC,
		"nricName":    user.Name,
		"phoneNumber": user.PhoneNumber,
		"tin":         user.TIN,
	}
	for _, pref := range stored {
		response[pref.Question] = preferences.DecodeAnswer(pref.Answer)
	}
	return response
}
