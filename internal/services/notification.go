package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bookcircle/internal/apperr"
	"bookcircle/internal/models"
	"bookcircle/internal/storage"

	"gorm.io/gorm"
)

// SenderPlaceholder is replaced by the actor's name when a message is rendered.
const SenderPlaceholder = "{sender}"

const (
	broadcastBatchSize = 200
	broadcastTimeout   = 2 * time.Minute
	maxNotifications   = 100
)

// Message templates for the events that fan out notifications.
const (
	TemplateBookUpload   = SenderPlaceholder + ` uploaded a new book: "%s"`
	TemplateBookComment  = SenderPlaceholder + ` commented on your book "%s"`
	TemplateCommentReply = SenderPlaceholder + ` replied to your comment on "%s"`
)

// Render substitutes senderName into template. It runs once at write time so
// later name changes never rewrite stored messages.
func Render(template, senderName string) string {
	if strings.TrimSpace(senderName) == "" {
		senderName = "Someone"
	}
	return strings.Replace(template, SenderPlaceholder, senderName, 1)
}

type broadcastJob struct {
	actorID uint
	bookID  uint
	title   string
}

// NotificationService is the only writer of the notifications table.
// Book upload broadcasts run on a small pool of background workers.
type NotificationService struct {
	db    *gorm.DB
	store storage.ObjectStore

	queue   chan broadcastJob
	pending sync.WaitGroup
	workers sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

func NewNotificationService(db *gorm.DB, store storage.ObjectStore, workers, queueSize int) *NotificationService {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	s := &NotificationService{
		db:    db,
		store: store,
		queue: make(chan broadcastJob, queueSize),
	}
	for i := 0; i < workers; i++ {
		s.workers.Add(1)
		go s.worker()
	}
	return s
}

// Notify writes one notification for recipientID. It never fails the caller:
// errors are logged and dropped. Actors are never notified of their own actions.
func (s *NotificationService) Notify(ctx context.Context, recipientID, actorID uint, template string, typ models.NotificationType, relatedID *uint) {
	if recipientID == actorID {
		return
	}
	name, err := s.senderName(ctx, actorID)
	if err != nil {
		slog.Warn("notification sender lookup failed", "actor_id", actorID, "error", err)
	}
	n := models.Notification{
		UserID:    recipientID,
		Message:   Render(template, name),
		Type:      typ,
		RelatedID: relatedID,
	}
	if actorID != 0 {
		n.SenderID = &actorID
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		slog.Error("create notification failed", "recipient_id", recipientID, "type", typ, "error", err)
	}
}

// BroadcastBookUpload tells every user except the uploader about a new book.
// The work happens off the request path.
func (s *NotificationService) BroadcastBookUpload(actorID, bookID uint, title string) {
	job := broadcastJob{actorID: actorID, bookID: bookID, title: title}
	s.pending.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		select {
		case s.queue <- job:
			return
		default:
			slog.Warn("broadcast queue full, running detached", "book_id", bookID)
		}
	}
	go func() {
		defer s.pending.Done()
		s.runBroadcast(job)
	}()
}

// Wait blocks until every broadcast accepted so far has been written.
func (s *NotificationService) Wait() {
	s.pending.Wait()
}

// Close stops accepting queued work, drains the queue and stops the workers.
func (s *NotificationService) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.workers.Wait()
	s.pending.Wait()
}

func (s *NotificationService) worker() {
	defer s.workers.Done()
	for job := range s.queue {
		s.runBroadcast(job)
		s.pending.Done()
	}
}

func (s *NotificationService) runBroadcast(job broadcastJob) {
	ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
	defer cancel()

	name, err := s.senderName(ctx, job.actorID)
	if err != nil {
		slog.Warn("notification sender lookup failed", "actor_id", job.actorID, "error", err)
	}
	message := Render(fmt.Sprintf(TemplateBookUpload, job.title), name)
	actorID, bookID := job.actorID, job.bookID

	var sent int
	var recipients []models.User
	res := s.db.WithContext(ctx).Model(&models.User{}).Select("id").Where("id <> ?", actorID).
		FindInBatches(&recipients, broadcastBatchSize, func(tx *gorm.DB, batch int) error {
			rows := make([]models.Notification, 0, len(recipients))
			for _, u := range recipients {
				rows = append(rows, models.Notification{
					UserID:    u.ID,
					SenderID:  &actorID,
					Message:   message,
					Type:      models.NotificationTypeBookUpload,
					RelatedID: &bookID,
				})
			}
			if err := s.db.WithContext(ctx).CreateInBatches(&rows, broadcastBatchSize).Error; err != nil {
				return err
			}
			sent += len(rows)
			return nil
		})
	if res.Error != nil {
		slog.Error("book upload broadcast failed", "book_id", bookID, "sent", sent, "error", res.Error)
		return
	}
	slog.Info("book upload broadcast done", "book_id", bookID, "recipients", sent)
}

func (s *NotificationService) senderName(ctx context.Context, actorID uint) (string, error) {
	if actorID == 0 {
		return "", nil
	}
	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "full_name").First(&user, actorID).Error; err != nil {
		return "", err
	}
	return user.FullName, nil
}

// NotificationView is a notification joined with its sender's display fields.
type NotificationView struct {
	ID         uint                    `json:"id"`
	Message    string                  `json:"message"`
	Type       models.NotificationType `json:"type"`
	RelatedID  *uint                   `json:"related_id"`
	IsRead     bool                    `json:"is_read"`
	CreatedAt  time.Time               `json:"created_at"`
	SenderID   *uint                   `json:"sender_id"`
	SenderName string                  `json:"sender_name"`
	SenderPic  string                  `json:"sender_pic"`
}

type notificationRow struct {
	models.Notification
	SenderName string
	SenderPic  string
}

// List returns the newest notifications for userID, optionally unread only.
func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool) ([]NotificationView, error) {
	q := s.db.WithContext(ctx).Table("notifications n").
		Select("n.*, u.full_name AS sender_name, u.profile_pic AS sender_pic").
		Joins("LEFT JOIN users u ON u.id = n.sender_id").
		Where("n.user_id = ?", userID)
	if unreadOnly {
		q = q.Where("n.is_read = ?", false)
	}
	var rows []notificationRow
	if err := q.Order("n.created_at DESC, n.id DESC").Limit(maxNotifications).Scan(&rows).Error; err != nil {
		return nil, serviceErr("list notifications", err)
	}
	out := make([]NotificationView, len(rows))
	for i, r := range rows {
		out[i] = NotificationView{
			ID:         r.ID,
			Message:    r.Message,
			Type:       r.Type,
			RelatedID:  r.RelatedID,
			IsRead:     r.IsRead,
			CreatedAt:  r.CreatedAt,
			SenderID:   r.SenderID,
			SenderName: r.SenderName,
			SenderPic:  mediaURL(ctx, s.store, r.SenderPic),
		}
	}
	return out, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, serviceErr("count unread notifications", err)
}

// MarkRead flags one of userID's notifications as read. Notifications owned
// by someone else are reported as missing.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID uint) error {
	var n models.Notification
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", notificationID, userID).First(&n).Error
	if err != nil {
		return serviceErr("mark notification read", notFoundOr(err, "notification not found"))
	}
	if n.IsRead {
		return nil
	}
	err = s.db.WithContext(ctx).Model(&n).Update("is_read", true).Error
	return serviceErr("mark notification read", err)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, serviceErr("mark all notifications read", res.Error)
}

func (s *NotificationService) Delete(ctx context.Context, notificationID, userID uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", notificationID, userID).Delete(&models.Notification{})
	if res.Error != nil {
		return serviceErr("delete notification", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("notification not found")
	}
	return nil
}

// deleteNotificationsTx removes notifications pointing at books or comments
// that are being deleted inside tx.
func deleteNotificationsTx(tx *gorm.DB, bookIDs, commentIDs []uint) error {
	if len(bookIDs) > 0 {
		err := tx.Where("type IN ? AND related_id IN ?",
			[]models.NotificationType{models.NotificationTypeBookUpload, models.NotificationTypeBookComment}, bookIDs).
			Delete(&models.Notification{}).Error
		if err != nil {
			return err
		}
	}
	if len(commentIDs) > 0 {
		err := tx.Where("type = ? AND related_id IN ?", models.NotificationTypeCommentReply, commentIDs).
			Delete(&models.Notification{}).Error
		if err != nil {
			return err
		}
	}
	return nil
}
