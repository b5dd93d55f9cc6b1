package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/scoutbase/recruiting-api/databases"
	templates "github.com/scoutbase/recruiting-api/templates/html"
)

// purgeAfter is how long a conversation soft-deleted by both participants
// lingers before its records are removed for good
const purgeAfter = 30 * 24 * time.Hour

// digestAfter is how long a message sits unread before it counts toward the
// daily digest email
const digestAfter = 24 * time.Hour

// Scheduler handles periodic background jobs for the messaging subsystem
type Scheduler struct {
	cron *cron.Cron
	CDB  databases.ConversationDatabase
	MDB  databases.MessageDatabase
	UDB  databases.UserDatabase
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cDB databases.ConversationDatabase, mDB databases.MessageDatabase, uDB databases.UserDatabase) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
		CDB:  cDB,
		MDB:  mDB,
		UDB:  uDB,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// Email unread digests daily at 3 AM UTC
	_, err := s.cron.AddFunc("0 3 * * *", s.sendUnreadDigests)
	if err != nil {
		zap.S().Errorw("failed to register unread digest job", "error", err)
	}

	// Purge conversations both sides deleted, daily at 4 AM UTC
	_, err = s.cron.AddFunc("0 4 * * *", s.purgeDeletedConversations)
	if err != nil {
		zap.S().Errorw("failed to register purge job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("Messaging scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("Messaging scheduler stopped")
}

// sendUnreadDigests emails each user a summary of conversations holding
// messages unread for more than a day. Fresher messages are left to the
// real-time surfaces.
func (s *Scheduler) sendUnreadDigests() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	zap.S().Info("Running unread digest job")

	cutoff := primitive.NewDateTimeFromTime(time.Now().Add(-digestAfter))
	unread, err := s.MDB.Find(ctx, bson.M{
		"isRead":    false,
		"createdAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		zap.S().Errorw("failed to find unread messages", "error", err)
		return
	}
	if len(unread) == 0 {
		return
	}

	// per receiver: distinct conversations and total unread
	type digest struct {
		conversations map[string]struct{}
		total         int
	}
	digests := make(map[string]*digest)
	for _, msg := range unread {
		d, ok := digests[msg.ReceiverID]
		if !ok {
			d = &digest{conversations: make(map[string]struct{})}
			digests[msg.ReceiverID] = d
		}
		d.conversations[msg.ConversationID] = struct{}{}
		d.total++
	}

	for userID, d := range digests {
		user, err := s.UDB.FindOne(ctx, bson.M{"_id": userID})
		if err != nil {
			zap.S().Warnw("skipping digest for unknown user", "userId", userID)
			continue
		}
		body := fmt.Sprintf(
			"Hi %s,\n\nYou have %d unread message(s) across %d conversation(s) waiting for you.\n\nOpen the app to catch up.",
			user.Details.FirstName, d.total, len(d.conversations),
		)
		s.sendEmail(user.Details.FirstName, user.Details.Email, "You have unread messages", body)
	}

	zap.S().Infow("Unread digest job finished", "recipients", len(digests))
}

// purgeDeletedConversations removes conversations (and their messages) that
// both participants soft-deleted and that have been idle past the retention
// window
func (s *Scheduler) purgeDeletedConversations() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := primitive.NewDateTimeFromTime(time.Now().Add(-purgeAfter))
	// deletedFor.1 existing means both participants deleted
	filter := bson.M{
		"deletedFor.1": bson.M{"$exists": true},
		"updatedAt":    bson.M{"$lt": cutoff},
	}

	stale, err := s.CDB.Find(ctx, filter)
	if err != nil {
		zap.S().Errorw("failed to find purgeable conversations", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	// messages go first; a conversation only joins the delete batch once its
	// messages are gone, so a failed purge retries on the next run
	ids := make([]primitive.ObjectID, 0, len(stale))
	var purgedMessages int64
	for _, conversation := range stale {
		n, err := s.MDB.DeleteMany(ctx, bson.M{"conversationID": conversation.ID.Hex()})
		if err != nil {
			zap.S().Errorw("failed to purge messages", "conversationId", conversation.ID.Hex(), "error", err)
			continue
		}
		purgedMessages += n
		ids = append(ids, conversation.ID)
	}
	if len(ids) == 0 {
		return
	}

	purged, err := s.CDB.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		zap.S().Errorw("failed to purge conversations", "error", err)
		return
	}

	zap.S().Infow("Purge job finished",
		"conversations", purged,
		"messages", purgedMessages)
}

// sendEmail delivers a branded email through SendGrid. Failures are logged
// and never propagated.
func (s *Scheduler) sendEmail(toName, toEmail, subject, plainText string) {
	if toEmail == "" {
		return
	}
	htmlContent := templates.RenderGenericEmail(subject, plainText)
	from := mail.NewEmail("ScoutBase", "no-reply@scoutbase.app")
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)
	client := sendgrid.NewSendClient(os.Getenv("SENDGRID_API_KEY"))
	response, err := client.Send(message)
	if err != nil {
		zap.S().Errorw("failed to send email", "to", toEmail, "error", err)
		return
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
	}
}
