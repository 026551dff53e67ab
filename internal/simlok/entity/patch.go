package entity

// SubmissionPatch 通用字段更新（PATCH /submissions/{id}），nil 字段不修改
type SubmissionPatch struct {
	ImplementationStartDate *Date    `json:"implementation_start_date,omitempty"`
	ImplementationEndDate   *Date    `json:"implementation_end_date,omitempty"`
	WorkingHours            *string  `json:"working_hours,omitempty"`
	HolidayWorkingHours     *string  `json:"holiday_working_hours,omitempty"`
	ContentTemplate         *string  `json:"content_template,omitempty"`
	WorkerCount             *int     `json:"worker_count,omitempty"`
	Workers                 []Worker `json:"workers,omitempty"`
}

// Empty 是否没有任何字段需要更新
func (p SubmissionPatch) Empty() bool {
	return p.ImplementationStartDate == nil && p.ImplementationEndDate == nil &&
		p.WorkingHours == nil && p.HolidayWorkingHours == nil && p.ContentTemplate == nil &&
		p.WorkerCount == nil && p.Workers == nil
}

// Apply 将非空字段写入申请
func (p SubmissionPatch) Apply(s *Submission) {
	if p.ImplementationStartDate != nil {
		s.ImplementationStartDate = *p.ImplementationStartDate
	}
	if p.ImplementationEndDate != nil {
		s.ImplementationEndDate = *p.ImplementationEndDate
	}
	if p.WorkingHours != nil {
		s.WorkingHours = *p.WorkingHours
	}
	if p.HolidayWorkingHours != nil {
		s.HolidayWorkingHours = *p.HolidayWorkingHours
	}
	if p.ContentTemplate != nil {
		s.ContentTemplate = *p.ContentTemplate
	}
	if p.WorkerCount != nil {
		s.WorkerCount = *p.WorkerCount
	}
	if p.Workers != nil {
		s.Workers = append([]Worker(nil), p.Workers...)
	}
}
