package domain

// TimeLayout is the fixed-width UTC layout used for stored timestamps so that
// text ordering matches chronological ordering.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

type ConversationStatus string

const (
	StatusCreated   ConversationStatus = "CREATED"
	StatusOngoing   ConversationStatus = "ONGOING"
	StatusCompleted ConversationStatus = "COMPLETED"
)

// Statuses lists every known conversation status in lifecycle order.
var Statuses = []ConversationStatus{StatusCreated, StatusOngoing, StatusCompleted}

// NonTerminal reports whether a conversation in this status is still in progress.
func (s ConversationStatus) NonTerminal() bool {
	return s == StatusCreated || s == StatusOngoing
}

func (s ConversationStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus accepts the exact upper-case token only.
func ParseStatus(raw string) (ConversationStatus, bool) {
	s := ConversationStatus(raw)
	return s, s.Valid()
}

type Candidate struct {
	ID           string `json:"id"`
	PhoneNumber  string `json:"phoneNumber"`
	EmailAddress string `json:"emailAddress"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	CreatedAt    string `json:"createdAt" format:"date-time"`
}

type Conversation struct {
	ID          string             `json:"id"`
	CandidateID string             `json:"candidateId"`
	JobID       string             `json:"jobId"`
	Status      ConversationStatus `json:"status" enum:"CREATED,ONGOING,COMPLETED"`
	CreatedAt   string             `json:"createdAt" format:"date-time"`
	UpdatedAt   string             `json:"updatedAt" format:"date-time"`
	Candidate   *Candidate         `json:"candidate,omitempty"`
}

// CandidateDTO is the identity payload nested in an application event.
type CandidateDTO struct {
	PhoneNumber  string `json:"phone_number"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	EmailAddress string `json:"email_address"`
}

// ApplicationEvent is the inbound webhook body announcing a job application.
type ApplicationEvent struct {
	ID          string       `json:"id"`
	JobID       string       `json:"job_id"`
	CandidateID string       `json:"candidate_id"`
	Candidate   CandidateDTO `json:"candidate"`
}

type Event struct {
	ID         string `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
