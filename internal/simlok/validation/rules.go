package validation

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"github.com/go-playground/validator/v10"
)

// ReviewInput is the reviewer's side payload for a submit-review transition.
type ReviewInput struct {
	Outcome                 entity.ReviewStatus `json:"review_status"`
	NoteForApprover         string              `json:"note_for_approver"`
	NoteForVendor           string              `json:"note_for_vendor"`
	ImplementationStartDate entity.Date         `json:"implementation_start_date"`
	ImplementationEndDate   entity.Date         `json:"implementation_end_date"`
	WorkingHours            string              `json:"working_hours"`
	HolidayWorkingHours     string              `json:"holiday_working_hours"`
	ContentTemplate         string              `json:"content_template"`
}

// Normalize trims text and drops the note and holiday hours that the outcome and the
// date range do not call for, so exactly one note travels with the review.
func (in ReviewInput) Normalize() ReviewInput {
	in.NoteForApprover = strings.TrimSpace(in.NoteForApprover)
	in.NoteForVendor = strings.TrimSpace(in.NoteForVendor)
	in.WorkingHours = strings.TrimSpace(in.WorkingHours)
	in.HolidayWorkingHours = strings.TrimSpace(in.HolidayWorkingHours)
	switch in.Outcome {
	case entity.ReviewStatusMeets:
		in.NoteForVendor = ""
	case entity.ReviewStatusNotMeets:
		in.NoteForApprover = ""
	}
	if !in.ImplementationStartDate.IsZero() && !in.ImplementationEndDate.IsZero() &&
		!SpansWeekend(in.ImplementationStartDate, in.ImplementationEndDate) {
		in.HolidayWorkingHours = ""
	}
	return in
}

// ValidateReviewSubmission checks a submit-review (or re-review) payload.
func ValidateReviewSubmission(in ReviewInput) Result {
	var r Result
	switch in.Outcome {
	case entity.ReviewStatusMeets:
		if blank(in.NoteForApprover) {
			r.add("note_for_approver", "note_for_approver is required when the submission meets requirements")
		}
	case entity.ReviewStatusNotMeets:
		if blank(in.NoteForVendor) {
			r.add("note_for_vendor", "note_for_vendor is required when the submission does not meet requirements")
		}
	default:
		r.add("review_status", "review_status must be MEETS_REQUIREMENTS or NOT_MEETS_REQUIREMENTS")
	}
	r.merge(ValidateSchedule(in.ImplementationStartDate, in.ImplementationEndDate, in.WorkingHours, in.HolidayWorkingHours))
	return r
}

// ValidateSchedule checks the implementation window and working hours.
func ValidateSchedule(start, end entity.Date, workingHours, holidayHours string) Result {
	var r Result
	if start.IsZero() {
		r.add("implementation_start_date", "implementation_start_date is required")
	}
	if end.IsZero() {
		r.add("implementation_end_date", "implementation_end_date is required")
	}
	if !start.IsZero() && !end.IsZero() {
		if end.Before(start) {
			r.add("implementation_end_date", "implementation_end_date must not be before implementation_start_date")
		} else if SpansWeekend(start, end) && blank(holidayHours) {
			r.add("holiday_working_hours", "holiday_working_hours is required because the implementation period includes a Saturday or Sunday")
		}
	}
	if blank(workingHours) {
		r.add("working_hours", "working_hours is required")
	}
	return r
}

// SpansWeekend reports whether [start, end] contains at least one Saturday or Sunday.
// An inverted range contains no days.
func SpansWeekend(start, end entity.Date) bool {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return false
	}
	day := start.Time
	last := end.Time
	for i := 0; i < 7 && !day.After(last); i++ {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return true
		}
		day = day.AddDate(0, 0, 1)
	}
	return false
}

// ApprovalInput is the approver's decision payload.
type ApprovalInput struct {
	Decision      entity.ApprovalStatus `json:"approval_status"`
	SimlokNumber  string                `json:"simlok_number"`
	SimlokDate    entity.Date           `json:"simlok_date"`
	NoteForVendor string                `json:"note_for_vendor"`
}

// ValidateApprovalDecision checks an approve/reject payload.
func ValidateApprovalDecision(in ApprovalInput) Result {
	var r Result
	switch in.Decision {
	case entity.ApprovalStatusApproved:
		if blank(in.SimlokNumber) {
			r.add("simlok_number", "simlok_number is required to approve")
		}
		if in.SimlokDate.IsZero() {
			r.add("simlok_date", "simlok_date is required to approve")
		}
	case entity.ApprovalStatusRejected:
	default:
		r.add("approval_status", "approval_status must be APPROVED or REJECTED")
	}
	return r
}

// ValidateDocumentGroup applies the all-or-nothing rule to an optional document group:
// an entry with none of number/date/upload is absent and ignored, an entry with some but
// not all of them fails.
func ValidateDocumentGroup(category entity.DocumentCategory, docs []entity.SupportDocument) Result {
	var r Result
	prefix := category.FieldKey()
	for i, d := range docs {
		n := d.FilledFields()
		if n == 0 || n == 3 {
			continue
		}
		field := prefix
		if len(docs) > 1 {
			field = fmt.Sprintf("%s[%d]", prefix, i)
		}
		if blank(d.Number) {
			r.add(field+".number", fmt.Sprintf("%s.number is required once any %s field is filled", field, prefix))
		}
		if d.Date.IsZero() {
			r.add(field+".date", fmt.Sprintf("%s.date is required once any %s field is filled", field, prefix))
		}
		if blank(d.Upload) {
			r.add(field+".upload", fmt.Sprintf("%s.upload is required once any %s field is filled", field, prefix))
		}
	}
	return r
}

// ValidateCoreDocuments requires at least one complete SIMJA and one complete SIKA
// entry; the SIKA entry additionally needs a subtype.
func ValidateCoreDocuments(sub *entity.Submission) Result {
	var r Result
	simjaOK := false
	for _, d := range sub.DocumentsOf(entity.DocumentSIMJA) {
		if d.Complete() {
			simjaOK = true
			break
		}
	}
	if !simjaOK {
		r.add("documents.simja", "at least one SIMJA document with number, date and upload is required")
	}

	sika := sub.DocumentsOf(entity.DocumentSIKA)
	sikaOK := false
	sikaSubtypeMissing := false
	for _, d := range sika {
		if !d.Complete() {
			continue
		}
		if blank(d.Subtype) {
			sikaSubtypeMissing = true
			continue
		}
		sikaOK = true
		break
	}
	if !sikaOK {
		if sikaSubtypeMissing {
			r.add("documents.sika.subtype", "SIKA document subtype is required")
		} else {
			r.add("documents.sika", "at least one SIKA document with number, date and upload is required")
		}
	}
	return r
}

var (
	workerValidate = newWorkerValidator()

	workerFieldNames = map[string]string{
		"Name":              "worker_name",
		"Photo":             "worker_photo",
		"HSSEPassNumber":    "hsse_pass_number",
		"HSSEPassValidThru": "hsse_pass_valid_thru",
		"HSSEPassDocument":  "hsse_pass_document_upload",
	}
)

func newWorkerValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(entity.Date); ok {
			return d.String()
		}
		return nil
	}, entity.Date{})
	return v
}

// ValidateWorkerEntry requires every field of a roster entry; partial entries fail.
func ValidateWorkerEntry(w entity.Worker) Result {
	return validateWorker("", w)
}

func validateWorker(prefix string, w entity.Worker) Result {
	var r Result
	w.Name = strings.TrimSpace(w.Name)
	w.Photo = strings.TrimSpace(w.Photo)
	w.HSSEPassNumber = strings.TrimSpace(w.HSSEPassNumber)
	w.HSSEPassDocument = strings.TrimSpace(w.HSSEPassDocument)
	err := workerValidate.Struct(w)
	if err == nil {
		return r
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		r.add(prefix+"worker", err.Error())
		return r
	}
	for _, fe := range fieldErrs {
		name, ok := workerFieldNames[fe.StructField()]
		if !ok {
			name = strings.ToLower(fe.StructField())
		}
		label := name
		if w.Name != "" && name != "worker_name" {
			label = fmt.Sprintf("%s for worker %q", name, w.Name)
		}
		r.add(prefix+name, label+" is required")
	}
	return r
}

// ValidateRoster checks every roster entry; field ids are indexed, e.g. workers[1].worker_photo.
func ValidateRoster(workers []entity.Worker) Result {
	var r Result
	if len(workers) == 0 {
		r.add("workers", "at least one worker is required")
		return r
	}
	for i, w := range workers {
		r.merge(validateWorker(fmt.Sprintf("workers[%d].", i), w))
	}
	return r
}

// ValidateSubmissionForCreate enforces the create-time invariants: vendor identity,
// core documents, optional document groups, roster entries and the date window.
func ValidateSubmissionForCreate(sub *entity.Submission) Result {
	var r Result
	if blank(sub.VendorName) {
		r.add("vendor_name", "vendor_name is required")
	}
	if blank(sub.JobDescription) {
		r.add("job_description", "job_description is required")
	}
	if blank(sub.WorkLocation) {
		r.add("work_location", "work_location is required")
	}
	if !sub.ImplementationStartDate.IsZero() && !sub.ImplementationEndDate.IsZero() &&
		sub.ImplementationEndDate.Before(sub.ImplementationStartDate) {
		r.add("implementation_end_date", "implementation_end_date must not be before implementation_start_date")
	}
	r.merge(ValidateCoreDocuments(sub))
	for _, c := range entity.OptionalDocumentCategories {
		r.merge(ValidateDocumentGroup(c, sub.DocumentsOf(c)))
	}
	r.merge(ValidateRoster(sub.Workers))
	if sub.WorkerCount < 0 {
		r.add("worker_count", "worker_count must not be negative")
	}
	return r
}
