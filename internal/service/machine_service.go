package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/google/uuid"
	"gopkg.in/guregu/null.v4"

	"vendotrash/internal/domain"
	"vendotrash/internal/repository"
)

var ErrMachineNotFound = errors.New("machine not found")
var ErrMachineExists = errors.New("machine already exists")
var ErrInvalidMachineStatus = errors.New("invalid machine status")
var ErrCommandUnavailable = errors.New("IoT command channel not configured")

type iotPublisher interface {
	Publish(ctx context.Context, params *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
}

// MachineService manages vending machines, consumes their telemetry from SQS
// and publishes sorter commands to them over IoT Core.
type MachineService struct {
	machineRepo   repository.MachineRepository
	eventLogRepo  repository.MachineEventsLogRepository
	iotDataClient iotPublisher
	topicPrefix   string
	now           func() time.Time
}

func NewMachineService(
	machineRepo repository.MachineRepository,
	eventLogRepo repository.MachineEventsLogRepository,
	iotDataClient *iotdataplane.Client,
	topicPrefix string,
) *MachineService {
	s := &MachineService{
		machineRepo:  machineRepo,
		eventLogRepo: eventLogRepo,
		topicPrefix:  strings.TrimSuffix(topicPrefix, "/"),
		now:          time.Now,
	}
	if iotDataClient != nil {
		s.iotDataClient = iotDataClient
	}
	return s
}

func (s *MachineService) Create(ctx context.Context, dto domain.MachineDTO) (*domain.Machine, error) {
	m := &domain.Machine{
		Name:        dto.Name,
		Location:    dto.Location,
		Status:      domain.MachineOffline,
		ThingName:   null.NewString(dto.ThingName, dto.ThingName != ""),
		BinCapacity: dto.BinCapacity,
	}
	created, err := s.machineRepo.Create(ctx, m)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, fmt.Errorf("%w: %v", ErrMachineExists, err)
		}
		return nil, fmt.Errorf("MachineService.Create: %w", err)
	}
	return created, nil
}

func (s *MachineService) Get(ctx context.Context, id int) (*domain.Machine, error) {
	m, err := s.machineRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMachineNotFound
		}
		return nil, fmt.Errorf("MachineService.Get: %w", err)
	}
	return m, nil
}

func (s *MachineService) List(ctx context.Context) ([]domain.Machine, error) {
	machines, err := s.machineRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("MachineService.List: %w", err)
	}
	if machines == nil {
		machines = []domain.Machine{}
	}
	return machines, nil
}

func (s *MachineService) UpdateStatus(ctx context.Context, id int, status domain.MachineStatus) (*domain.Machine, error) {
	if !status.Valid() {
		return nil, ErrInvalidMachineStatus
	}
	if err := s.machineRepo.UpdateStatus(ctx, id, status, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMachineNotFound
		}
		return nil, fmt.Errorf("MachineService.UpdateStatus: %w", err)
	}
	return s.Get(ctx, id)
}

// SendSortCommand publishes a SORT command to <prefix>/<machineID>/sort.
func (s *MachineService) SendSortCommand(ctx context.Context, machineID int, material domain.Material) (string, error) {
	if s.iotDataClient == nil {
		return "", ErrCommandUnavailable
	}

	requestID := uuid.NewString()
	payloadBytes, err := json.Marshal(domain.SortCommandPayload{
		Command:   "SORT",
		Material:  material,
		RequestID: requestID,
	})
	if err != nil {
		return "", fmt.Errorf("MachineService.SendSortCommand: encoding payload: %w", err)
	}

	topic := fmt.Sprintf("%s/%d/sort", s.topicPrefix, machineID)
	_, err = s.iotDataClient.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(topic),
		Qos:     1,
		Payload: payloadBytes,
	})
	if err != nil {
		return "", fmt.Errorf("MachineService.SendSortCommand: publishing to %s: %w", topic, err)
	}

	log.Printf("MachineService: sent SORT %s (req %s) to %s", material, requestID, topic)
	return requestID, nil
}

// HandleDeviceEvent processes one telemetry message from the SQS queue. A nil
// return lets the consumer delete the message.
func (s *MachineService) HandleDeviceEvent(ctx context.Context, sqsMessageBody string) error {
	receivedAt := s.now().UTC()

	var genericEvent domain.GenericMachineEvent
	if err := json.Unmarshal([]byte(sqsMessageBody), &genericEvent); err != nil {
		log.Printf("MachineService: unreadable event: %v. Body: %s", err, sqsMessageBody)
		s.logEvent(ctx, &domain.MachineEventLog{
			ReceivedAt:      receivedAt,
			Payload:         toRawJSON(sqsMessageBody),
			ProcessedStatus: "error",
			ProcessingNotes: fmt.Sprintf("failed to unmarshal event: %v", err),
		})
		// redelivery will not fix a malformed body
		return nil
	}
	genericEvent.RawPayload = json.RawMessage(sqsMessageBody)

	logEntry := &domain.MachineEventLog{
		ReceivedAt:  receivedAt,
		ThingName:   firstNonEmpty(genericEvent.ThingName, genericEvent.ClientIDFromIoT),
		MqttTopic:   genericEvent.ReceivedMqttTopic,
		MessageType: genericEvent.MessageType,
		Payload:     genericEvent.RawPayload,
	}

	machine, err := s.resolveMachine(ctx, genericEvent)
	if err != nil {
		if errors.Is(err, ErrMachineNotFound) {
			log.Printf("MachineService: event %s from unknown machine (id=%d, thing=%s), ignoring",
				genericEvent.MessageType, genericEvent.MachineID, logEntry.ThingName)
			logEntry.ProcessedStatus = "error"
			logEntry.ProcessingNotes = "unknown machine"
			s.logEvent(ctx, logEntry)
			return nil
		}
		return err
	}
	logEntry.MachineID = machine.ID

	var processingError error
	switch genericEvent.MessageType {
	case "heartbeat":
		var event domain.MachineHeartbeatEvent
		if err := json.Unmarshal(genericEvent.RawPayload, &event); err == nil {
			processingError = s.machineRepo.UpdateStatus(ctx, machine.ID, domain.MachineOnline, receivedAt)
		} else {
			processingError = fmt.Errorf("unmarshal heartbeat event: %w", err)
		}
	case "bin_level":
		var event domain.MachineBinLevelEvent
		if err := json.Unmarshal(genericEvent.RawPayload, &event); err == nil {
			processingError = s.machineRepo.UpdateBinLevel(ctx, machine.ID, clampPercent(event.FillPercent), receivedAt)
			if processingError == nil && event.IsFull {
				log.Printf("MachineService: machine %d (%s) reports a full bin", machine.ID, machine.Name)
			}
		} else {
			processingError = fmt.Errorf("unmarshal bin_level event: %w", err)
		}
	case "status":
		var event domain.MachineStatusEvent
		if err := json.Unmarshal(genericEvent.RawPayload, &event); err == nil {
			if !event.Status.Valid() {
				processingError = fmt.Errorf("%w: %q", ErrInvalidMachineStatus, event.Status)
			} else {
				processingError = s.machineRepo.UpdateStatus(ctx, machine.ID, event.Status, receivedAt)
			}
		} else {
			processingError = fmt.Errorf("unmarshal status event: %w", err)
		}
	case "error":
		var event domain.MachineErrorEvent
		if err := json.Unmarshal(genericEvent.RawPayload, &event); err == nil {
			log.Printf("MachineService: machine %d reported error %d: %s", machine.ID, event.ErrorCode, event.ErrorMessage)
			logEntry.ProcessingNotes = event.ErrorMessage
			processingError = s.machineRepo.Touch(ctx, machine.ID, receivedAt)
		} else {
			processingError = fmt.Errorf("unmarshal error event: %w", err)
		}
	default:
		log.Printf("MachineService: unhandled message_type %q from machine %d", genericEvent.MessageType, machine.ID)
		logEntry.ProcessingNotes = "unhandled message type"
	}

	if processingError != nil {
		logEntry.ProcessedStatus = "error"
		logEntry.ProcessingNotes = processingError.Error()
		s.logEvent(ctx, logEntry)
		// invalid content is final; only storage failures are retried
		if errors.Is(processingError, ErrInvalidMachineStatus) || isDecodeError(processingError) {
			return nil
		}
		return fmt.Errorf("MachineService.HandleDeviceEvent: %w", processingError)
	}

	logEntry.ProcessedStatus = "processed"
	s.logEvent(ctx, logEntry)
	return nil
}

func (s *MachineService) resolveMachine(ctx context.Context, ev domain.GenericMachineEvent) (*domain.Machine, error) {
	if ev.MachineID != 0 {
		return s.Get(ctx, ev.MachineID)
	}
	thing := firstNonEmpty(ev.ThingName, ev.ClientIDFromIoT)
	if thing == "" {
		return nil, ErrMachineNotFound
	}
	m, err := s.machineRepo.FindByThingName(ctx, thing)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMachineNotFound
		}
		return nil, fmt.Errorf("MachineService.resolveMachine: %w", err)
	}
	return m, nil
}

func (s *MachineService) logEvent(ctx context.Context, entry *domain.MachineEventLog) {
	if s.eventLogRepo == nil {
		return
	}
	if err := s.eventLogRepo.Create(ctx, entry); err != nil {
		log.Printf("MachineService: failed to write event log: %v", err)
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func toRawJSON(body string) json.RawMessage {
	if json.Valid([]byte(body)) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(body)
	return quoted
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// MarkSilentOffline flips Online machines to Offline when nothing has been
// heard from them for longer than silence. It returns how many were changed.
func (s *MachineService) MarkSilentOffline(ctx context.Context, silence time.Duration) (int, error) {
	machines, err := s.machineRepo.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("MachineService.MarkSilentOffline: %w", err)
	}
	cutoff := s.now().UTC().Add(-silence)
	changed := 0
	for _, m := range machines {
		if m.Status != domain.MachineOnline {
			continue
		}
		last := m.CreatedAt
		if m.LastActivity.Valid {
			last = m.LastActivity.Time
		}
		if last.After(cutoff) {
			continue
		}
		if err := s.machineRepo.UpdateStatus(ctx, m.ID, domain.MachineOffline, s.now().UTC()); err != nil {
			return changed, fmt.Errorf("MachineService.MarkSilentOffline: machine %d: %w", m.ID, err)
		}
		log.Printf("MachineService: machine %d silent since %s, marked Offline", m.ID, last.Format(time.RFC3339))
		changed++
	}
	return changed, nil
}
