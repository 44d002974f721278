package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

type PeerReviewQueuePostgreSQL struct {
	db *gorm.DB
}

func NewPeerReviewQueuePostgreSQL(db *gorm.DB) repositories.PeerReviewQueueRepository {
	return &PeerReviewQueuePostgreSQL{db: db}
}

func (q *PeerReviewQueuePostgreSQL) Get(ctx context.Context, userID, exerciseID, courseInstanceID uuid.UUID) (*models.PeerReviewQueueEntry, error) {
	var entry models.PeerReviewQueueEntry
	if err := q.db.WithContext(ctx).
		Where("user_id = ? AND exercise_id = ? AND course_instance_id = ?", userID, exerciseID, courseInstanceID).
		First(&entry).Error; err != nil {
		return nil, notFoundOr(err, "peer review queue entry")
	}
	return &entry, nil
}

func (q *PeerReviewQueuePostgreSQL) GetBySlideSubmissionID(ctx context.Context, slideSubmissionID uuid.UUID) (*models.PeerReviewQueueEntry, error) {
	var entry models.PeerReviewQueueEntry
	if err := q.db.WithContext(ctx).
		Unscoped().
		Where("receiving_peer_reviews_exercise_slide_submission_id = ?", slideSubmissionID).
		Order("created_at DESC").
		First(&entry).Error; err != nil {
		return nil, notFoundOr(err, "peer review queue entry")
	}
	return &entry, nil
}

func (q *PeerReviewQueuePostgreSQL) Upsert(ctx context.Context, entry *models.PeerReviewQueueEntry) (*models.PeerReviewQueueEntry, error) {
	if err := q.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "exercise_id"}, {Name: "course_instance_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"received_enough_peer_reviews": gorm.Expr("peer_review_queue_entries.received_enough_peer_reviews OR EXCLUDED.received_enough_peer_reviews"),
			"peer_review_priority":         entry.PeerReviewPriority,
			"deleted_at":                   nil,
			"updated_at":                   time.Now().UTC(),
		}),
	}).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to upsert peer review queue entry: %w", err)
	}
	return q.Get(ctx, entry.UserID, entry.ExerciseID, entry.CourseInstanceID)
}

func (q *PeerReviewQueuePostgreSQL) MarkReceivedEnough(ctx context.Context, id uuid.UUID) error {
	if err := q.db.WithContext(ctx).
		Model(&models.PeerReviewQueueEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"received_enough_peer_reviews": true,
			"updated_at":                   time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("failed to mark queue entry as received enough: %w", err)
	}
	return nil
}

// GetCandidates orders by priority first so answers that have waited longest are offered first.
func (q *PeerReviewQueuePostgreSQL) GetCandidates(ctx context.Context, filter repositories.PeerReviewCandidateFilter) ([]*models.PeerReviewQueueEntry, error) {
	query := q.db.WithContext(ctx).
		Scopes(excludeIDs("receiving_peer_reviews_exercise_slide_submission_id", filter.ExcludedSubmissionIDs)).
		Where("exercise_id = ? AND user_id <> ?", filter.ExerciseID, filter.ExcludedUserID).
		Where("removed_from_queue_for_unusual_reason = ?", false)
	if filter.OnlyNeedingReviews {
		query = query.Where("received_enough_peer_reviews = ?", false)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []*models.PeerReviewQueueEntry
	if err := query.
		Order("peer_review_priority DESC").
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to get peer review candidates: %w", err)
	}
	return entries, nil
}

func (q *PeerReviewQueuePostgreSQL) GetAllNeedingReviews(ctx context.Context, exerciseID uuid.UUID) ([]*models.PeerReviewQueueEntry, error) {
	var entries []*models.PeerReviewQueueEntry
	if err := q.db.WithContext(ctx).
		Where("exercise_id = ? AND received_enough_peer_reviews = ?", exerciseID, false).
		Where("removed_from_queue_for_unusual_reason = ?", false).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to get queue entries needing reviews: %w", err)
	}
	return entries, nil
}

func (q *PeerReviewQueuePostgreSQL) DeleteBySlideSubmissionID(ctx context.Context, slideSubmissionID uuid.UUID) error {
	if err := q.db.WithContext(ctx).
		Where("receiving_peer_reviews_exercise_slide_submission_id = ?", slideSubmissionID).
		Delete(&models.PeerReviewQueueEntry{}).Error; err != nil {
		return fmt.Errorf("failed to delete peer review queue entry: %w", err)
	}
	return nil
}

func (q *PeerReviewQueuePostgreSQL) GetReservation(ctx context.Context, exerciseID, reviewerID uuid.UUID, notBefore time.Time) (*models.OfferedAnswerToPeerReview, error) {
	var reservation models.OfferedAnswerToPeerReview
	if err := q.db.WithContext(ctx).
		Where("exercise_id = ? AND reviewer_user_id = ?", exerciseID, reviewerID).
		Where("updated_at >= ?", notBefore).
		First(&reservation).Error; err != nil {
		return nil, notFoundOr(err, "peer review reservation")
	}
	return &reservation, nil
}

// SaveReservation replaces whatever the reviewer had reserved for the exercise.
func (q *PeerReviewQueuePostgreSQL) SaveReservation(ctx context.Context, reservation *models.OfferedAnswerToPeerReview) error {
	if err := q.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "exercise_id"}, {Name: "reviewer_user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"exercise_slide_submission_id": reservation.ExerciseSlideSubmissionID,
			"course_instance_id":           reservation.CourseInstanceID,
			"deleted_at":                   nil,
			"updated_at":                   time.Now().UTC(),
		}),
	}).Create(reservation).Error; err != nil {
		return fmt.Errorf("failed to save peer review reservation: %w", err)
	}
	return nil
}

func (q *PeerReviewQueuePostgreSQL) DeleteReservation(ctx context.Context, exerciseID, reviewerID uuid.UUID) error {
	if err := q.db.WithContext(ctx).
		Unscoped().
		Where("exercise_id = ? AND reviewer_user_id = ?", exerciseID, reviewerID).
		Delete(&models.OfferedAnswerToPeerReview{}).Error; err != nil {
		return fmt.Errorf("failed to delete peer review reservation: %w", err)
	}
	return nil
}
