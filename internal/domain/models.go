package domain

import "time"

// Kind selects the template family and with it the field mapping table.
type Kind string

const (
	KindContract Kind = "contract"
	KindBudget   Kind = "budget"
)

func (k Kind) Valid() bool { return k == KindContract || k == KindBudget }

// Status is the advisory business status of a document. The generation
// pipeline never reads it.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusCompleted Status = "completed"
	StatusSigned    Status = "signed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusCompleted, StatusSigned:
		return true
	}
	return false
}

// GenerationStatus is the observable state of the background PDF task.
// The empty value means generation was never scheduled.
type GenerationStatus string

const (
	GenerationPending   GenerationStatus = "pending"
	GenerationSucceeded GenerationStatus = "succeeded"
	GenerationFailed    GenerationStatus = "failed"
)

// Template points at a fillable PDF. Immutable once a document uses it.
type Template struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	SourceURL string    `json:"source_url"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerationState is the slice of a document the task runner writes.
type GenerationState struct {
	Status   GenerationStatus `json:"generation_status"`
	Error    string           `json:"generation_error,omitempty"`
	Attempts int              `json:"generation_attempts"`
}

// FilledDocument is a contract or budget: raw values plus the pointer to
// the last generated PDF.
type FilledDocument struct {
	ID              string     `json:"id"`
	Kind            Kind       `json:"kind"`
	TemplateID      string     `json:"template_id"`
	EventID         *string    `json:"event_id"`
	FilledData      FilledData `json:"filled_data"`
	Status          Status     `json:"status"`
	GeneratedPDFURL *string    `json:"generated_pdf_url"`
	GeneratedAt     *time.Time `json:"generated_at"`
	Notes           string     `json:"notes"`
	GenerationState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasDocument reports the generated state of the document state machine.
func (d *FilledDocument) HasDocument() bool {
	return d.GeneratedPDFURL != nil && *d.GeneratedPDFURL != ""
}
