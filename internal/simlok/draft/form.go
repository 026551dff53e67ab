package draft

import (
	"strings"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
)

// Form is the whole in-progress create form.
type Form struct {
	VendorName              string                   `json:"vendor_name"`
	VendorEmail             string                   `json:"vendor_email"`
	VendorPhone             string                   `json:"vendor_phone"`
	OfficerName             string                   `json:"officer_name"`
	JobDescription          string                   `json:"job_description"`
	WorkLocation            string                   `json:"work_location"`
	WorkFacilities          string                   `json:"work_facilities"`
	ImplementationStartDate entity.Date              `json:"implementation_start_date"`
	ImplementationEndDate   entity.Date              `json:"implementation_end_date"`
	WorkingHours            string                   `json:"working_hours"`
	WorkerCount             int                      `json:"worker_count"`
	Documents               []entity.SupportDocument `json:"documents"`
	Workers                 []entity.Worker          `json:"workers"`
}

// DefaultForm is the empty form: one blank roster entry.
func DefaultForm() Form {
	return Form{
		WorkerCount: 1,
		Workers:     []entity.Worker{{}},
	}
}

// HasContent reports whether the draft is worth offering a delete for: any worker
// photo, any HSSE document, any optional document group touched, or more than one
// roster entry.
func (f Form) HasContent() bool {
	if len(f.Workers) > 1 {
		return true
	}
	for _, w := range f.Workers {
		if strings.TrimSpace(w.Photo) != "" || strings.TrimSpace(w.HSSEPassDocument) != "" {
			return true
		}
	}
	for _, d := range f.Documents {
		optional := false
		for _, c := range entity.OptionalDocumentCategories {
			if d.Category == c {
				optional = true
				break
			}
		}
		if optional && d.FilledFields() > 0 {
			return true
		}
	}
	return false
}

// Submission builds the create payload from the form.
func (f Form) Submission() *entity.Submission {
	return &entity.Submission{
		VendorName:              f.VendorName,
		VendorEmail:             f.VendorEmail,
		VendorPhone:             f.VendorPhone,
		OfficerName:             f.OfficerName,
		JobDescription:          f.JobDescription,
		WorkLocation:            f.WorkLocation,
		WorkFacilities:          f.WorkFacilities,
		ImplementationStartDate: f.ImplementationStartDate,
		ImplementationEndDate:   f.ImplementationEndDate,
		WorkingHours:            f.WorkingHours,
		WorkerCount:             f.WorkerCount,
		ReviewStatus:            entity.ReviewStatusPending,
		ApprovalStatus:          entity.ApprovalStatusPending,
		Documents:               append([]entity.SupportDocument(nil), f.Documents...),
		Workers:                 append([]entity.Worker(nil), f.Workers...),
	}
}

func (f Form) clone() Form {
	f.Documents = append([]entity.SupportDocument(nil), f.Documents...)
	f.Workers = append([]entity.Worker(nil), f.Workers...)
	return f
}
