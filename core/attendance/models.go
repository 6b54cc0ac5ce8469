package attendance

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/kwanza/darasa/core"
)

// Statuses
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"
)

var AllStatuses = []string{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

// DateFormat is the calendar-day key format used in record IDs.
const DateFormat = "2006-01-02"

// Record is one user's attendance for one day. Records are upsert-only and
// keyed by "<date>_<userID>": re-marking fully replaces the prior status
// (last-writer-wins, no history).
type Record struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Date     string    `json:"date"`
	Status   string    `json:"status"`
	MarkedBy string    `json:"marked_by"`
	MarkedAt time.Time `json:"marked_at"` // UTC
}

// RecordID builds the natural key for a (date, user) pair.
func RecordID(date, userID string) string {
	return date + "_" + userID
}

// Mark is a single user's status in a bulk marking request.
type Mark struct {
	UserID string `json:"user_id" validate:"required"`
	Status string `json:"status" validate:"required,attstatus"`
}

// BulkMark marks attendance for a set of users on one day.
type BulkMark struct {
	Date  string `json:"date" validate:"required,dateday"`
	Marks []Mark `json:"marks" validate:"required,min=1,dive"`
}

func (bm *BulkMark) Validate(validate *validator.Validate) error {
	bm.Date = core.CleanString(bm.Date)
	return validate.Struct(bm)
}

var (
	statusTag  = "attstatus"
	statusText = "status must be one of: present, absent, late, excused"

	dateDayTag  = "dateday"
	dateDayText = "date must be formatted as YYYY-MM-DD"
)

// InitValidators registers attendance-specific validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	_ = validate.RegisterValidation(dateDayTag, dateDayValidation)
	core.RegisterCustomTranslation(validate, translator, dateDayTag, dateDayText)
}

func statusValidation(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	for _, s := range AllStatuses {
		if val == s {
			return true
		}
	}
	return false
}

func dateDayValidation(fl validator.FieldLevel) bool {
	_, err := time.Parse(DateFormat, fl.Field().String())
	return err == nil
}
