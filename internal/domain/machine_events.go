package domain

import (
	"encoding/json"
	"time"
)

// GenericMachineEvent is parsed first to find the message_type; the IoT rule
// adds the topic and client id before forwarding to SQS.
type GenericMachineEvent struct {
	MachineID         int             `json:"machine_id"`
	ThingName         string          `json:"device_id"`
	MessageType       string          `json:"message_type"`
	Timestamp         string          `json:"timestamp"`
	ReceivedMqttTopic string          `json:"received_mqtt_topic,omitempty"`
	ClientIDFromIoT   string          `json:"client_id_iot,omitempty"`
	RawPayload        json.RawMessage `json:"-"`
}

type MachineHeartbeatEvent struct {
	GenericMachineEvent
	FirmwareVersion string `json:"firmware_version"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	WifiRSSI        int    `json:"wifi_rssi"`
}

type MachineBinLevelEvent struct {
	GenericMachineEvent
	FillPercent int  `json:"fill_percent"`
	IsFull      bool `json:"is_full"`
}

type MachineStatusEvent struct {
	GenericMachineEvent
	Status MachineStatus `json:"status"`
}

type MachineErrorEvent struct {
	GenericMachineEvent
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// MachineEventLog is the raw telemetry row kept for troubleshooting.
type MachineEventLog struct {
	ID              int64           `json:"id"`
	ReceivedAt      time.Time       `json:"received_at"`
	MachineID       int             `json:"machine_id"`
	ThingName       string          `json:"thing_name"`
	MqttTopic       string          `json:"mqtt_topic"`
	MessageType     string          `json:"message_type"`
	Payload         json.RawMessage `json:"payload"`
	ProcessedStatus string          `json:"processed_status"` // "pending", "processed", "error"
	ProcessingNotes string          `json:"processing_notes,omitempty"`
}
