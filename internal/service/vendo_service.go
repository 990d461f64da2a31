package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gopkg.in/guregu/null.v4"

	"vendotrash/internal/classifier"
	"vendotrash/internal/domain"
	"vendotrash/internal/session"
)

var ErrNoActiveSession = errors.New("no active insert session")
var ErrEmptyImage = errors.New("image is empty")
var ErrNotActiveCustomer = errors.New("user is not the machine's current customer")

// responseLabels caps the labels echoed back to clients.
const responseLabels = 5

// DetectionNotifier pushes live detection results to a customer's open sockets.
type DetectionNotifier interface {
	NotifyUser(userID int, event domain.DetectionEvent)
}

// SortCommander tells a machine's sorter where to drop the item.
type SortCommander interface {
	SendSortCommand(ctx context.Context, machineID int, material domain.Material) (string, error)
}

type VendoService struct {
	gate             *session.Gate
	history          *session.History
	detector         LabelDetector
	classifier       *classifier.Classifier
	ledger           *LedgerService
	notifier         DetectionNotifier
	sorter           SortCommander
	defaultMachineID int
}

func NewVendoService(
	gate *session.Gate,
	history *session.History,
	detector LabelDetector,
	cls *classifier.Classifier,
	ledger *LedgerService,
	notifier DetectionNotifier,
	sorter SortCommander,
	defaultMachineID int,
) *VendoService {
	return &VendoService{
		gate:             gate,
		history:          history,
		detector:         detector,
		classifier:       cls,
		ledger:           ledger,
		notifier:         notifier,
		sorter:           sorter,
		defaultMachineID: defaultMachineID,
	}
}

// PrepareInsert opens the customer's insert window. The token is handed to
// the bridge so it can classify on the customer's behalf.
func (s *VendoService) PrepareInsert(ctx context.Context, userID int, token string) (*domain.SessionRecord, error) {
	rec, err := s.gate.Prepare(ctx, userID, token)
	if err != nil {
		return nil, fmt.Errorf("VendoService.PrepareInsert: %w", err)
	}
	return rec, nil
}

func (s *VendoService) EndInsert(ctx context.Context, userID int) (bool, error) {
	ended, err := s.gate.End(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("VendoService.EndInsert: %w", err)
	}
	return ended, nil
}

func (s *VendoService) UserSession(ctx context.Context, userID int) (domain.SessionStatusDTO, error) {
	rec, err := s.gate.Get(ctx, userID)
	if err != nil {
		return domain.SessionStatusDTO{}, fmt.Errorf("VendoService.UserSession: %w", err)
	}
	return sessionStatus(rec), nil
}

// SessionStatus reports whether any customer is currently at the machine.
func (s *VendoService) SessionStatus(ctx context.Context) (domain.SessionStatusDTO, error) {
	rec, err := s.gate.ActiveCustomer(ctx)
	if err != nil {
		return domain.SessionStatusDTO{}, fmt.Errorf("VendoService.SessionStatus: %w", err)
	}
	return sessionStatus(rec), nil
}

func (s *VendoService) ActiveToken(ctx context.Context) (domain.ActiveTokenDTO, error) {
	rec, err := s.gate.ActiveCustomer(ctx)
	if err != nil {
		return domain.ActiveTokenDTO{}, fmt.Errorf("VendoService.ActiveToken: %w", err)
	}
	if rec == nil {
		return domain.ActiveTokenDTO{Status: "error", Message: "no active session"}, nil
	}
	return domain.ActiveTokenDTO{Status: "success", Token: rec.Token, UserID: rec.UserID}, nil
}

func sessionStatus(rec *domain.SessionRecord) domain.SessionStatusDTO {
	if rec == nil {
		return domain.SessionStatusDTO{HasSession: false}
	}
	return domain.SessionStatusDTO{
		HasSession: true,
		UserID:     rec.UserID,
		ExpiresAt:  rec.ExpiresAt.UTC().Format(time.RFC3339),
		Session:    rec,
	}
}

// CaptureAndClassify runs one deposit through vision, the classifier and the
// ledger. The user must have an open insert window.
func (s *VendoService) CaptureAndClassify(ctx context.Context, userID, machineID int, image []byte) (*domain.ClassifyResponseDTO, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	active, err := s.gate.IsActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("VendoService.CaptureAndClassify: %w", err)
	}
	if !active {
		return nil, ErrNoActiveSession
	}
	if machineID == 0 {
		machineID = s.defaultMachineID
	}

	labels, err := s.detector.DetectLabels(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("VendoService.CaptureAndClassify: %w", err)
	}

	result := s.classifier.Evaluate(labels)
	verdict := result.Verdict
	log.Printf("VendoService: user %d machine %d -> %s (%.2f) rule=%s label=%q [%s]",
		userID, machineID, verdict.Material, verdict.Confidence, result.Rule, result.BestLabel, describeDecisions(result.Decisions))

	entry := domain.DetectionHistoryEntry{
		Material:   verdict.Material,
		Confidence: verdict.Confidence,
		Status:     domain.DetectionRejected,
	}
	resp := &domain.ClassifyResponseDTO{
		MaterialType: verdict.Material,
		Confidence:   verdict.Confidence,
		Labels:       labels.Top(responseLabels),
	}

	if verdict.Accepted() {
		tx, err := s.ledger.Record(ctx, userID, machineID, verdict.Material)
		if err != nil {
			return nil, fmt.Errorf("VendoService.CaptureAndClassify: %w", err)
		}
		entry.Status = domain.DetectionCompleted
		entry.PointsEarned = tx.PointsEarned
		entry.TransactionID = null.StringFrom(tx.ID.String())
		entry.Timestamp = tx.CreatedAt
		resp.PointsEarned = tx.PointsEarned
		resp.TransactionID = tx.ID.String()
	}

	if err := s.history.Append(ctx, userID, entry); err != nil {
		log.Printf("VendoService: could not append history for user %d: %v", userID, err)
	}

	if s.notifier != nil {
		s.notifier.NotifyUser(userID, domain.DetectionEvent{
			Type:   "detection",
			UserID: userID,
			Entry:  entry,
			Labels: resp.Labels,
		})
	}

	if s.sorter != nil {
		if _, err := s.sorter.SendSortCommand(ctx, machineID, verdict.Material); err != nil && !errors.Is(err, ErrCommandUnavailable) {
			log.Printf("VendoService: sort command for machine %d failed: %v", machineID, err)
		}
	}

	return resp, nil
}

// CaptureForActiveCustomer is the bridge's entry point. The bridge acts on a
// token it fetched earlier, so the deposit is only credited while that user is
// still the customer standing at the machine.
func (s *VendoService) CaptureForActiveCustomer(ctx context.Context, userID, machineID int, image []byte) (*domain.ClassifyResponseDTO, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	rec, err := s.gate.ActiveCustomer(ctx)
	if err != nil {
		return nil, fmt.Errorf("VendoService.CaptureForActiveCustomer: %w", err)
	}
	if rec == nil {
		return nil, ErrNoActiveSession
	}
	if rec.UserID != userID {
		log.Printf("VendoService: bridge token for user %d but user %d is at the machine", userID, rec.UserID)
		return nil, ErrNotActiveCustomer
	}
	return s.CaptureAndClassify(ctx, userID, machineID, image)
}

func (s *VendoService) History(ctx context.Context, userID int) ([]domain.DetectionHistoryEntry, error) {
	entries, err := s.history.Read(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("VendoService.History: %w", err)
	}
	return entries, nil
}

func (s *VendoService) ClearHistory(ctx context.Context, userID int) error {
	if _, err := s.history.Clear(ctx, userID); err != nil {
		return fmt.Errorf("VendoService.ClearHistory: %w", err)
	}
	return nil
}

func describeDecisions(decisions []domain.LabelDecision) string {
	parts := make([]string, 0, len(decisions))
	for _, d := range decisions {
		parts = append(parts, fmt.Sprintf("%s:%.2f:%s", d.Name, d.Confidence, d.Outcome))
	}
	return strings.Join(parts, ", ")
}
