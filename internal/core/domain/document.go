package domain

import "time"

type DocumentType string

const (
	DocW2           DocumentType = "W2"
	Doc1099INT      DocumentType = "1099_INT"
	Doc1099NEC      DocumentType = "1099_NEC"
	DocBalanceSheet DocumentType = "balance_sheet"
	DocProfitLoss   DocumentType = "profit_loss"
	DocReceipts     DocumentType = "receipts"
	DocPriorReturn  DocumentType = "prior_return"
	DocUnclassified DocumentType = "unclassified"
)

type DocumentStatus string

const (
	DocPending    DocumentStatus = "pending"
	DocProcessing DocumentStatus = "processing"
	DocReviewed   DocumentStatus = "reviewed"
	DocApproved   DocumentStatus = "approved"
	DocMissing    DocumentStatus = "missing"
)

// Document is owned by exactly one workflow and never outlives it. The
// deadline is inherited from the parent on upload.
type Document struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflow_id"`
	Name         string         `json:"name"`
	Type         DocumentType   `json:"type"`
	Status       DocumentStatus `json:"status"`
	BlobRef      string         `json:"blob_ref,omitempty"`
	DeadlineDate time.Time      `json:"deadline_date"`
	UploadedAt   time.Time      `json:"uploaded_at"`
	ClassifiedAt *time.Time     `json:"classified_at,omitempty"`
}
