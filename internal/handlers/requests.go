package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// formText accepts a JSON string or number, since goal targets and progress
// are typed as text but API clients often send numbers.
type formText string

func (t *formText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = formText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = formText(n.String())
	return nil
}

type startRequest struct {
	ActivityTypeID string   `json:"activityTypeId" validate:"required,uuid"`
	Title          string   `json:"title" validate:"max=120"`
	Description    string   `json:"description" validate:"max=2000"`
	Visibility     string   `json:"visibility" validate:"omitempty,oneof=PUBLIC PRIVATE"`
	GoalType       string   `json:"goalType" validate:"omitempty,oneof=NONE TIME METRIC none time metric"`
	GoalTarget     formText `json:"goalTarget"`
	GoalNote       string   `json:"goalNote" validate:"max=255"`
}

type goalRequest struct {
	GoalType   string   `json:"goalType" validate:"omitempty,oneof=NONE TIME METRIC none time metric"`
	GoalTarget formText `json:"goalTarget"`
	GoalNote   string   `json:"goalNote" validate:"max=255"`
}

type goalPreviewRequest struct {
	goalRequest
	ActivityTypeID string `json:"activityTypeId" validate:"omitempty,uuid"`
}

type progressRequest struct {
	MetricCurrentValue formText `json:"metricCurrentValue" validate:"required"`
}

type stopRequest struct {
	MetricValue *float64 `json:"metricValue" validate:"omitempty,gte=0"`
}

// decodeRequest decodes and validates a JSON body. With allowEmpty an empty
// body leaves dst at its zero value. The returned fields are nil on success.
func decodeRequest(r *http.Request, dst interface{}, allowEmpty bool) (string, map[string]string) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return "Invalid request body", map[string]string{}
		}
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return "Invalid request body", map[string]string{}
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return "Validation failed", fields
	}

	return "", nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "uuid":
		return fe.Field() + " must be a valid UUID"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return fe.Field() + " must be one of " + strings.Join(uniqueUpper(strings.Fields(fe.Param())), ", ")
	case "gte":
		return fe.Field() + " must be at least " + fe.Param()
	}
	return fe.Field() + " is invalid"
}

func uniqueUpper(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToUpper(v)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
