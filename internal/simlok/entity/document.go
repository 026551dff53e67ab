package entity

import (
	"strings"
	"time"
)

// DocumentCategory 支持文件类别
type DocumentCategory string

const (
	DocumentSIMJA         DocumentCategory = "SIMJA"
	DocumentSIKA          DocumentCategory = "SIKA"
	DocumentWorkOrder     DocumentCategory = "WORK_ORDER"
	DocumentLaborContract DocumentCategory = "KONTRAK_KERJA"
	DocumentJSA           DocumentCategory = "JSA"
)

// OptionalDocumentCategories 可选文件组：任一字段填写则三项必须全部填写
var OptionalDocumentCategories = []DocumentCategory{
	DocumentWorkOrder,
	DocumentLaborContract,
	DocumentJSA,
}

// FieldKey 校验错误使用的字段前缀
func (c DocumentCategory) FieldKey() string {
	switch c {
	case DocumentSIMJA:
		return "documents.simja"
	case DocumentSIKA:
		return "documents.sika"
	case DocumentWorkOrder:
		return "documents.work_order"
	case DocumentLaborContract:
		return "documents.labor_contract"
	case DocumentJSA:
		return "documents.jsa"
	}
	return "documents." + string(c)
}

// SupportDocument 支持文件（编号 + 日期 + 上传引用）
type SupportDocument struct {
	ID           string           `json:"id" gorm:"primaryKey;size:36"`
	SubmissionID string           `json:"submission_id" gorm:"size:36;not null;index"`
	Category     DocumentCategory `json:"document_type" gorm:"size:30;not null"`
	Subtype      string           `json:"document_subtype" gorm:"size:100"`
	Number       string           `json:"document_number" gorm:"size:100"`
	Date         Date             `json:"document_date"`
	Upload       string           `json:"document_upload" gorm:"size:512"`
	CreatedAt    time.Time        `json:"created_at"`
}

func (SupportDocument) TableName() string {
	return "simlok_support_documents"
}

// FilledFields 已填写的字段数（编号/日期/上传），只含空白视为未填
func (d SupportDocument) FilledFields() int {
	n := 0
	if strings.TrimSpace(d.Number) != "" {
		n++
	}
	if !d.Date.IsZero() {
		n++
	}
	if strings.TrimSpace(d.Upload) != "" {
		n++
	}
	return n
}

// Complete 三项是否全部填写
func (d SupportDocument) Complete() bool {
	return d.FilledFields() == 3
}
