// Package repository persists visitor-facing state in a single DynamoDB
// table: profiles (nickname), in-app notifications, and completed-trip
// records written at the terminal handoff. Chat transcripts are never
// persisted; they live only in session memory.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"dcode-agent/internal/domain"
)

const (
	skProfile     = "PROFILE#"
	skPrefixNotif = "NOTIF#"
	skPrefixTrip  = "TRIP#"
	skLatestTrip  = "TRIP#LATEST"

	// Notifications and trips expire; profiles do not.
	ttlDuration = 90 * 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by Store.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store wraps the DynamoDB table.
type Store struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new Store.
func New(api dynamodbAPI, tableName string) (*Store, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Store{api: api, tableName: tableName}, nil
}

// userPK returns the partition key for a visitor.
func userPK(userID string) string {
	return "USER#" + userID
}

func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ---------------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------------

// GetProfile loads a visitor profile; the bool reports existence.
func (s *Store) GetProfile(ctx context.Context, userID string) (domain.UserProfile, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skProfile},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("repository: GetProfile get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.UserProfile{}, false, nil
	}

	profile, err := itemToProfile(out.Item)
	if err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("repository: GetProfile decode: %w", err)
	}
	return profile, true, nil
}

// SaveNickname creates or updates the visitor profile with the given
// nickname. CreatedAt is set only on first write.
func (s *Store) SaveNickname(ctx context.Context, userID, nickname string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("repository: SaveNickname: user id is required")
	}
	if strings.TrimSpace(nickname) == "" {
		return errors.New("repository: SaveNickname: nickname is required")
	}

	existing, found, err := s.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("repository: SaveNickname: %w", err)
	}

	now := nowRFC3339()
	profile := domain.UserProfile{
		PK:          userPK(userID),
		SK:          skProfile,
		UserID:      userID,
		Nickname:    nickname,
		CreatedAt:   now,
		LastLoginAt: now,
	}
	if found {
		profile.CreatedAt = existing.CreatedAt
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      profileItem(profile),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveNickname put: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

// seedNotifications mirrors the default notification list the mobile
// app shipped with; stable sort keys keep seeding idempotent.
var seedNotifications = []struct {
	sk      string
	title   string
	message string
	kind    string
	read    bool
}{
	{skPrefixNotif + "seed-1", "Arrival alert", "You have arrived at Daejeon Station. Head to your next destination.", "info", false},
	{skPrefixNotif + "seed-2", "New recommended route", "A new route is recommended based on your current location.", "success", false},
	{skPrefixNotif + "seed-3", "Weather alert", "Rain is expected this afternoon. Bring an umbrella.", "warning", true},
	{skPrefixNotif + "seed-4", "D-CODE update", "New features have been added. Take a look!", "info", true},
}

// SeedNotifications writes the default notifications for a visitor.
// Already-seeded entries are left untouched.
func (s *Store) SeedNotifications(ctx context.Context, userID string) error {
	for _, seed := range seedNotifications {
		n := domain.Notification{
			PK:      userPK(userID),
			SK:      seed.sk,
			UserID:  userID,
			Title:   seed.title,
			Message: seed.message,
			Kind:    seed.kind,
			Read:    seed.read,
			TTL:     ttlValue(),
		}
		_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tableName),
			Item:                notificationItem(n),
			ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
		})
		if err != nil {
			var conditionFailed *types.ConditionalCheckFailedException
			if errors.As(err, &conditionFailed) {
				continue
			}
			return fmt.Errorf("repository: SeedNotifications put: %w", err)
		}
	}
	return nil
}

// ListNotifications returns a visitor's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixNotif},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListNotifications query: %w", err)
	}

	notifs := make([]domain.Notification, 0, len(out.Items))
	for _, item := range out.Items {
		n, err := itemToNotification(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListNotifications decode: %w", err)
		}
		notifs = append(notifs, n)
	}
	return notifs, nil
}

// CountUnread counts the unread notifications in a list.
func CountUnread(notifs []domain.Notification) int {
	count := 0
	for _, n := range notifs {
		if !n.Read {
			count++
		}
	}
	return count
}

// AddNotification appends a new notification for a visitor.
func (s *Store) AddNotification(ctx context.Context, userID, title, message, kind string) error {
	n := domain.Notification{
		PK:      userPK(userID),
		SK:      fmt.Sprintf("%s%s#%s", skPrefixNotif, time.Now().UTC().Format(time.RFC3339Nano), uuid.NewString()),
		UserID:  userID,
		Title:   title,
		Message: message,
		Kind:    kind,
		TTL:     ttlValue(),
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      notificationItem(n),
	})
	if err != nil {
		return fmt.Errorf("repository: AddNotification put: %w", err)
	}
	return nil
}

// MarkNotificationRead flips one notification to read. The public
// notification ID is its sort key.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: MarkNotificationRead get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return fmt.Errorf("repository: MarkNotificationRead: notification %q not found", id)
	}

	n, err := itemToNotification(out.Item)
	if err != nil {
		return fmt.Errorf("repository: MarkNotificationRead decode: %w", err)
	}
	n.Read = true

	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      notificationItem(n),
	}); err != nil {
		return fmt.Errorf("repository: MarkNotificationRead put: %w", err)
	}
	return nil
}

// MarkAllNotificationsRead flips every notification for a visitor.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	notifs, err := s.ListNotifications(ctx, userID)
	if err != nil {
		return fmt.Errorf("repository: MarkAllNotificationsRead: %w", err)
	}
	for _, n := range notifs {
		if n.Read {
			continue
		}
		n.Read = true
		if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      notificationItem(n),
		}); err != nil {
			return fmt.Errorf("repository: MarkAllNotificationsRead put: %w", err)
		}
	}
	return nil
}

// DeleteNotification removes one notification by its sort key.
func (s *Store) DeleteNotification(ctx context.Context, userID, id string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteNotification: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Trips
// ---------------------------------------------------------------------------

// NewTrip constructs a completed-trip record for the terminal handoff.
func NewTrip(userID, nickname string, visitedPlaces []string, scanArtifact string) domain.Trip {
	now := time.Now().UTC()
	return domain.Trip{
		PK:            userPK(userID),
		SK:            skPrefixTrip + now.Format(time.RFC3339Nano),
		TripID:        uuid.NewString(),
		UserID:        userID,
		Nickname:      nickname,
		VisitedPlaces: append([]string(nil), visitedPlaces...),
		ScanArtifact:  scanArtifact,
		CompletedAt:   now.Format(time.RFC3339),
		TTL:           ttlValue(),
	}
}

// SaveCompletedTrip writes the trip record and the latest-trip pointer
// in one transaction so the ending screen always sees a consistent
// pair.
func (s *Store) SaveCompletedTrip(ctx context.Context, trip domain.Trip) error {
	if trip.PK == "" || trip.SK == "" {
		return errors.New("repository: SaveCompletedTrip: trip PK and SK are required")
	}
	if len(trip.VisitedPlaces) == 0 {
		return errors.New("repository: SaveCompletedTrip: visited places must not be empty")
	}

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                tripItem(trip),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(s.tableName),
					Item:      latestTripItem(trip),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveCompletedTrip: %w", err)
	}
	return nil
}

// GetLatestTrip returns the most recently completed trip for a visitor;
// the bool reports existence.
func (s *Store) GetLatestTrip(ctx context.Context, userID string) (domain.Trip, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skLatestTrip},
		},
	})
	if err != nil {
		return domain.Trip{}, false, fmt.Errorf("repository: GetLatestTrip get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Trip{}, false, nil
	}

	trip, err := itemToTrip(out.Item)
	if err != nil {
		return domain.Trip{}, false, fmt.Errorf("repository: GetLatestTrip decode: %w", err)
	}
	return trip, true, nil
}

// ---------------------------------------------------------------------------
// Attribute marshalling
// ---------------------------------------------------------------------------

func profileItem(p domain.UserProfile) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: p.PK},
		"SK":          &types.AttributeValueMemberS{Value: p.SK},
		"userId":      &types.AttributeValueMemberS{Value: p.UserID},
		"nickname":    &types.AttributeValueMemberS{Value: p.Nickname},
		"createdAt":   &types.AttributeValueMemberS{Value: p.CreatedAt},
		"lastLoginAt": &types.AttributeValueMemberS{Value: p.LastLoginAt},
	}
}

func notificationItem(n domain.Notification) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":      &types.AttributeValueMemberS{Value: n.PK},
		"SK":      &types.AttributeValueMemberS{Value: n.SK},
		"userId":  &types.AttributeValueMemberS{Value: n.UserID},
		"title":   &types.AttributeValueMemberS{Value: n.Title},
		"message": &types.AttributeValueMemberS{Value: n.Message},
		"kind":    &types.AttributeValueMemberS{Value: n.Kind},
		"read":    &types.AttributeValueMemberBOOL{Value: n.Read},
		"ttl":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", n.TTL)},
	}
}

func tripItem(t domain.Trip) map[string]types.AttributeValue {
	places := make([]types.AttributeValue, 0, len(t.VisitedPlaces))
	for _, p := range t.VisitedPlaces {
		places = append(places, &types.AttributeValueMemberS{Value: p})
	}
	return map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: t.PK},
		"SK":            &types.AttributeValueMemberS{Value: t.SK},
		"tripId":        &types.AttributeValueMemberS{Value: t.TripID},
		"userId":        &types.AttributeValueMemberS{Value: t.UserID},
		"nickname":      &types.AttributeValueMemberS{Value: t.Nickname},
		"visitedPlaces": &types.AttributeValueMemberL{Value: places},
		"scanArtifact":  &types.AttributeValueMemberS{Value: t.ScanArtifact},
		"completedAt":   &types.AttributeValueMemberS{Value: t.CompletedAt},
		"ttl":           &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", t.TTL)},
	}
}

func latestTripItem(t domain.Trip) map[string]types.AttributeValue {
	item := tripItem(t)
	item["SK"] = &types.AttributeValueMemberS{Value: skLatestTrip}
	return item
}

func itemToProfile(item map[string]types.AttributeValue) (domain.UserProfile, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.UserProfile{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.UserProfile{}, err
	}
	nickname, err := strAttr(item, "nickname")
	if err != nil {
		return domain.UserProfile{}, err
	}
	userID, _ := strAttr(item, "userId")         // allow empty
	createdAt, _ := strAttr(item, "createdAt")   // allow empty
	lastLogin, _ := strAttr(item, "lastLoginAt") // allow empty

	return domain.UserProfile{
		PK:          pk,
		SK:          sk,
		UserID:      userID,
		Nickname:    nickname,
		CreatedAt:   createdAt,
		LastLoginAt: lastLogin,
	}, nil
}

func itemToNotification(item map[string]types.AttributeValue) (domain.Notification, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Notification{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Notification{}, err
	}
	title, err := strAttr(item, "title")
	if err != nil {
		return domain.Notification{}, err
	}
	message, err := strAttr(item, "message")
	if err != nil {
		return domain.Notification{}, err
	}
	kind, _ := strAttr(item, "kind")
	userID, _ := strAttr(item, "userId")
	read := boolAttr(item, "read")

	return domain.Notification{
		PK:      pk,
		SK:      sk,
		UserID:  userID,
		Title:   title,
		Message: message,
		Kind:    kind,
		Read:    read,
	}, nil
}

func itemToTrip(item map[string]types.AttributeValue) (domain.Trip, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Trip{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Trip{}, err
	}
	tripID, _ := strAttr(item, "tripId")
	userID, _ := strAttr(item, "userId")
	nickname, _ := strAttr(item, "nickname")
	artifact, _ := strAttr(item, "scanArtifact")
	completedAt, _ := strAttr(item, "completedAt")

	return domain.Trip{
		PK:            pk,
		SK:            sk,
		TripID:        tripID,
		UserID:        userID,
		Nickname:      nickname,
		VisitedPlaces: strListAttr(item, "visitedPlaces"),
		ScanArtifact:  artifact,
		CompletedAt:   completedAt,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) bool {
	v, ok := item[key]
	if !ok {
		return false
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false
	}
	return b.Value
}

func strListAttr(item map[string]types.AttributeValue, key string) []string {
	v, ok := item[key]
	if !ok {
		return nil
	}
	l, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(l.Value))
	for _, elem := range l.Value {
		if s, ok := elem.(*types.AttributeValueMemberS); ok {
			out = append(out, s.Value)
		}
	}
	return out
}
