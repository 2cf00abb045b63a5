package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Ash-Blanc/migru/internal/insighttext"
	"github.com/Ash-Blanc/migru/internal/models"
	"github.com/Ash-Blanc/migru/internal/security"
	"github.com/Ash-Blanc/migru/internal/services"
)

const (
	contextUserKey = "user_id"

	defaultRecentEventsWindow = 24 * time.Hour
)

// AnalyticsService is the slice of services.Analytics the handlers call.
type AnalyticsService interface {
	RecordEvent(ctx context.Context, userID string, input services.EventInput) (models.EventID, error)
	Range(ctx context.Context, userID string, from time.Time, to time.Time) []models.Event
	RecentEvents(ctx context.Context, userID string, window time.Duration, eventType models.EventType) []models.Event
	GetTemporalPatterns(ctx context.Context, userID string) map[models.WindowKind]map[int]int64
	GetReliefPatterns(ctx context.Context, userID string) map[models.WindowKind]map[int]int64
	GetEnvironmentalCorrelation(ctx context.Context, userID string) services.Correlation
	GetConfirmedTriggers(ctx context.Context, userID string) []string
	RecordConversation(ctx context.Context, userID string, conversationCount int)
	SharingPhase(ctx context.Context, userID string) string
	CheckForInsight(ctx context.Context, userID string, conversationCount int, language string) *models.Insight
	MarkInsightShared(ctx context.Context, userID string, insightID string) error
	DeleteUserData(ctx context.Context, userID string) error
}

type Handler struct {
	analytics AnalyticsService
	catalog   *insighttext.Catalog
	secretKey []byte
	logger    *slog.Logger
	tagger    *security.UserTagger
	now       func() time.Time
}

type HandlerOptions struct {
	Logger *slog.Logger
	Tagger *security.UserTagger
	Now    func() time.Time
}

func NewHandler(analytics AnalyticsService, catalog *insighttext.Catalog, secretKey string, options HandlerOptions) (*Handler, error) {
	if analytics == nil {
		return nil, errors.New("analytics service is required")
	}
	if catalog == nil {
		return nil, errors.New("insight text catalog is required")
	}
	if err := security.ValidateSecretKey(secretKey); err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}

	return &Handler{
		analytics: analytics,
		catalog:   catalog,
		secretKey: []byte(secretKey),
		logger:    logger.With("component", "api"),
		tagger:    options.Tagger,
		now:       now,
	}, nil
}

type eventPayload struct {
	Type       string         `json:"type"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata"`
	OccurredAt *time.Time     `json:"occurred_at"`
}

type insightCheckPayload struct {
	ConversationCount *int `json:"conversation_count"`
}
