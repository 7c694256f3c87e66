package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/chepyr/go-task-api/internal/models"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 1000
	maxTagNameLen     = 50
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names instead of Go ones
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage turns the first failed rule into a client-facing message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}

// convert various user inputs to standard status values
func normalizeStatus(s string) models.TaskStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return models.TaskStatusPending
	case "in-progress", "in_progress", "inprogress", "in progress":
		return models.TaskStatusInProgress
	case "completed", "done":
		return models.TaskStatusCompleted
	case "cancelled", "canceled":
		return models.TaskStatusCancelled
	default:
		return ""
	}
}

func parsePriority(s string) (models.TaskPriority, bool) {
	switch p := models.TaskPriority(strings.ToLower(strings.TrimSpace(s))); p {
	case models.TaskPriorityLow, models.TaskPriorityMedium, models.TaskPriorityHigh, models.TaskPriorityUrgent:
		return p, true
	default:
		return "", false
	}
}

// parseExpiresAt accepts an RFC 3339 timestamp or a plain date.
func parseExpiresAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.New("expiresAt must be an RFC 3339 timestamp or YYYY-MM-DD date")
	}
	return t.UTC(), nil
}

// normalizeTagNames trims names and drops repeats, keeping first occurrences in
// order. The result is never nil, so an empty input still means "no tags".
func normalizeTagNames(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, errors.New("tag names must not be empty")
		}
		if utf8.RuneCountInString(name) > maxTagNameLen {
			return nil, fmt.Errorf("tag name too long (max %d chars)", maxTagNameLen)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}
