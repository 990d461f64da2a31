package postgresql

import (
	"context"
	"database/sql"
	"fmt"

	"vendotrash/internal/domain"
	"vendotrash/internal/repository"
)

type pgMachineEventsLogRepository struct {
	db *sql.DB
}

func NewPgMachineEventsLogRepository(db *sql.DB) repository.MachineEventsLogRepository {
	return &pgMachineEventsLogRepository{db: db}
}

func (r *pgMachineEventsLogRepository) Create(ctx context.Context, event *domain.MachineEventLog) error {
	query := `INSERT INTO machine_events_log
                (received_at, machine_id, thing_name, mqtt_topic, message_type, payload, processed_status, processing_notes)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`

	var payloadToStore []byte
	if event.Payload != nil {
		payloadToStore = event.Payload
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		event.ReceivedAt,
		sql.NullInt64{Int64: int64(event.MachineID), Valid: event.MachineID != 0},
		sql.NullString{String: event.ThingName, Valid: event.ThingName != ""},
		sql.NullString{String: event.MqttTopic, Valid: event.MqttTopic != ""},
		sql.NullString{String: event.MessageType, Valid: event.MessageType != ""},
		payloadToStore,
		sql.NullString{String: event.ProcessedStatus, Valid: event.ProcessedStatus != ""},
		sql.NullString{String: event.ProcessingNotes, Valid: event.ProcessingNotes != ""},
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("MachineEventsLogRepository.Create: %w", err)
	}
	event.ID = id
	return nil
}
