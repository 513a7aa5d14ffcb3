package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dennismathu/moomarket/internal/config"
	"github.com/dennismathu/moomarket/internal/models"
)

// INotificationService exposes derived notifications and unread counts to
// the presentation layer. Clients poll the count endpoint periodically; the
// short-TTL Redis cache keeps that cheap.
type INotificationService interface {
	ListForUser(ctx context.Context, userID primitive.ObjectID) ([]Notification, error)
	UnreadCountForUser(ctx context.Context, userID primitive.ObjectID) (int, error)
	InvalidateUnreadCount(ctx context.Context, userIDs ...primitive.ObjectID)
	SetInspectionService(svc IInspectionService)
}

// notificationService implements INotificationService.
type notificationService struct {
	cfg         *config.Config
	rdb         *redis.Client // may be nil (tests)
	inspections IInspectionService
}

// NewNotificationService creates a new NotificationService. The inspection
// service is attached afterwards via SetInspectionService because the two
// services reference each other.
func NewNotificationService(cfg *config.Config, rdb *redis.Client) INotificationService {
	return &notificationService{cfg: cfg, rdb: rdb}
}

func (s *notificationService) SetInspectionService(svc IInspectionService) {
	s.inspections = svc
}

// ListForUser derives notifications from all requests the user is party to,
// action-required first, then most recently updated.
func (s *notificationService) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]Notification, error) {
	reqs, err := s.requestsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	loc := s.cfg.Location()

	updatedAt := make(map[primitive.ObjectID]time.Time, len(reqs))
	notifications := make([]Notification, 0, len(reqs))
	for i := range reqs {
		if n, ok := DeriveNotification(&reqs[i], userID, now, loc); ok {
			notifications = append(notifications, *n)
			updatedAt[reqs[i].ID] = reqs[i].UpdatedAt
		}
	}

	sort.SliceStable(notifications, func(i, j int) bool {
		if notifications[i].ActionRequired != notifications[j].ActionRequired {
			return notifications[i].ActionRequired
		}
		return updatedAt[notifications[i].RequestID].After(updatedAt[notifications[j].RequestID])
	})

	return notifications, nil
}

// UnreadCountForUser returns the cached unread count, recomputing on miss.
func (s *notificationService) UnreadCountForUser(ctx context.Context, userID primitive.ObjectID) (int, error) {
	key := unreadCountKey(userID)

	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, key).Result()
		if err == nil {
			if count, convErr := strconv.Atoi(cached); convErr == nil {
				return count, nil
			}
		} else if err != redis.Nil {
			log.Printf("Error reading unread count cache for %s: %v", userID.Hex(), err)
		}
	}

	reqs, err := s.requestsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	count := UnreadCount(reqs, userID, time.Now(), s.cfg.Location())

	if s.rdb != nil {
		if err := s.rdb.Set(ctx, key, count, s.cfg.GetCacheTTL).Err(); err != nil {
			log.Printf("Error caching unread count for %s: %v", userID.Hex(), err)
		}
	}

	return count, nil
}

// InvalidateUnreadCount drops cached counts after a mutating inspection
// operation. Best effort; a stale count self-heals when the TTL expires.
func (s *notificationService) InvalidateUnreadCount(ctx context.Context, userIDs ...primitive.ObjectID) {
	if s.rdb == nil {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, unreadCountKey(id))
	}
	if len(keys) == 0 {
		return
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Printf("Error invalidating unread count cache: %v", err)
	}
}

func (s *notificationService) requestsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.InspectionRequest, error) {
	asBuyer, err := s.inspections.FindByBuyer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load buyer-side requests: %w", err)
	}
	asSeller, err := s.inspections.FindBySeller(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load seller-side requests: %w", err)
	}
	return append(asBuyer, asSeller...), nil
}

func unreadCountKey(userID primitive.ObjectID) string {
	return fmt.Sprintf("unread_count:%s", userID.Hex())
}
