package domain

// Signal is the literal line written to the sorter over the serial link.
type Signal string

const (
	SignalPlastic   Signal = "PLASTIC"
	SignalCan       Signal = "CAN"
	SignalRejected  Signal = "REJECTED"
	SignalError     Signal = "ERROR"
	SignalNoSession Signal = "NO_SESSION"
)

// SignalFor maps a material reported by the server to the sorter signal.
// Anything unrecognized is rejected so the item is returned to the customer.
func SignalFor(material Material) Signal {
	switch material {
	case MaterialPlastic:
		return SignalPlastic
	case MaterialNonPlastic:
		return SignalCan
	default:
		return SignalRejected
	}
}

type ClassifyRequestDTO struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
	MachineID   int    `json:"machine_id"`
}

type ClassifyResponseDTO struct {
	MaterialType  Material        `json:"material_type"`
	Confidence    float64         `json:"confidence"`
	PointsEarned  int             `json:"points_earned"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Labels        []DetectedLabel `json:"labels"`
}

type SessionStatusDTO struct {
	HasSession bool           `json:"has_session"`
	UserID     int            `json:"user_id,omitempty"`
	ExpiresAt  string         `json:"expires_at,omitempty"`
	Session    *SessionRecord `json:"-"`
}

type ActiveTokenDTO struct {
	Status  string `json:"status"` // "success" or "error"
	Token   string `json:"token,omitempty"`
	UserID  int    `json:"user_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// SortCommandPayload is published to the machine's IoT command topic.
type SortCommandPayload struct {
	Command   string   `json:"command"` // always "SORT"
	Material  Material `json:"material"`
	RequestID string   `json:"request_id,omitempty"`
}

type SortCommandDTO struct {
	MachineID int      `json:"machine_id" binding:"required"`
	Material  Material `json:"material" binding:"required,oneof=PLASTIC NON_PLASTIC REJECTED"`
}

// DetectionEvent is pushed to the customer's websocket after every classification.
type DetectionEvent struct {
	Type    string                `json:"type"` // "detection"
	UserID  int                   `json:"user_id"`
	Entry   DetectionHistoryEntry `json:"entry"`
	Labels  []DetectedLabel       `json:"labels,omitempty"`
	Message string                `json:"message,omitempty"`
}
