package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dennismathu/moomarket/internal/config"
	"github.com/dennismathu/moomarket/internal/email"
	"github.com/dennismathu/moomarket/internal/models"
	"github.com/dennismathu/moomarket/internal/services"
	"github.com/dennismathu/moomarket/internal/storage"
	"github.com/dennismathu/moomarket/internal/utils"
)

// Task types.
const (
	TypeEmailDelivery      = "email:deliver"
	TypeImageProcess       = "image:process"
	TypeInspectionReminder = "inspection:reminder"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks. It holds the dependencies
// needed by the task handlers.
type TaskProcessor struct {
	cfg               *config.Config
	emailSender       email.Sender
	storageService    storage.IS3Storage
	listingService    services.IListingService
	inspectionService services.IInspectionService
	userService       services.IUserService
	taskClient        *asynq.Client
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	storageService storage.IS3Storage,
	listingService services.IListingService,
	inspectionService services.IInspectionService,
	userService services.IUserService,
	taskClient *asynq.Client,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:               cfg,
		emailSender:       emailSender,
		storageService:    storageService,
		listingService:    listingService,
		inspectionService: inspectionService,
		userService:       userService,
		taskClient:        taskClient,
	}
}

// SetupServer configures and runs an Asynq server, registering handlers
// according to the worker mode. Returns nil in API mode.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isImageWorker bool, isBgWorker bool) *asynq.Server {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
				"images":   5,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	if isBgWorker {
		mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
		mux.HandleFunc(TypeInspectionReminder, processor.HandleInspectionReminderTask)
		log.Println("Registered background task handlers.")
	}

	if isImageWorker {
		mux.HandleFunc(TypeImageProcess, processor.HandleImageProcessTask)
		log.Println("Registered image processing task handlers.")
	}

	if !isBgWorker && !isImageWorker {
		log.Println("Running in API mode, no task server started.")
		return nil
	}

	if err := srv.Start(mux); err != nil {
		log.Fatalf("Could not start Asynq server: %v", err)
	}

	return srv
}

// --- Task Handlers ---

// EmailTaskPayload carries a fully composed email. Handlers enqueue it with
// the subject and body already rendered; the worker only adds headers and
// delivers.
type EmailTaskPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewEmailDeliveryTask builds an email delivery task.
func NewEmailDeliveryTask(to, subject, body string) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(EmailTaskPayload{To: to, Subject: subject, Body: body})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal email task payload: %w", err)
	}
	return asynq.NewTask(TypeEmailDelivery, payloadBytes), nil
}

func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s for email to %s", fromAddress, payload.To)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", payload.To))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", fromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", payload.Subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(payload.Body)
	sb.WriteString("\r\n")

	if err := p.emailSender.Send(ctx, []string{payload.To}, payload.Subject, []byte(sb.String())); err != nil {
		log.Printf("Email sending failed for %s: %v", payload.To, err)
		return err
	}
	return nil
}

// ImageTaskPayload identifies a raw photo upload awaiting processing.
type ImageTaskPayload struct {
	S3Key     string `json:"s3_key"`
	ListingID string `json:"listing_id"`
}

// NewImageProcessTask builds an image processing task. Queued on the
// dedicated images queue.
func NewImageProcessTask(s3Key string, listingID primitive.ObjectID) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(ImageTaskPayload{S3Key: s3Key, ListingID: listingID.Hex()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image task payload: %w", err)
	}
	return asynq.NewTask(TypeImageProcess, payloadBytes, asynq.Queue("images")), nil
}

// HandleImageProcessTask downloads a raw photo, shrinks it to the configured
// bound, re-uploads it, and attaches the key to the listing.
func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}

	listingID, err := primitive.ObjectIDFromHex(payload.ListingID)
	if err != nil {
		log.Printf("Invalid ListingID in image task payload: %s", payload.ListingID)
		return fmt.Errorf("invalid listing ID in payload: %w", asynq.SkipRetry)
	}

	getObjectOutput, err := p.storageService.GetObject(ctx, payload.S3Key)
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			log.Printf("S3 object %s not found, likely upload failed or key incorrect.", payload.S3Key)
			return fmt.Errorf("s3 object not found: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to download photo from S3: %w", err)
	}
	defer getObjectOutput.Body.Close()

	imgData, err := io.ReadAll(getObjectOutput.Body)
	if err != nil {
		return fmt.Errorf("failed to read photo data for key %s: %w", payload.S3Key, err)
	}

	maxSizeBytes := int64(p.cfg.PhotoMaxSizeMB) * 1024 * 1024
	if int64(len(imgData)) > maxSizeBytes {
		log.Printf("Photo %s exceeds max size (%d > %d bytes). Skipping.", payload.S3Key, len(imgData), maxSizeBytes)
		return fmt.Errorf("photo exceeds max size: %w", asynq.SkipRetry)
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		log.Printf("Error decoding photo for key %s: %v", payload.S3Key, err)
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}
	log.Printf("Decoded photo %s, format: %s, size: %dx%d", payload.S3Key, format, img.Bounds().Dx(), img.Bounds().Dy())

	maxDim := uint(p.cfg.PhotoMaxDimension)
	needsResize := uint(img.Bounds().Dx()) > maxDim || uint(img.Bounds().Dy()) > maxDim

	processedData := imgData
	contentType := "image/" + format
	if getObjectOutput.ContentType != nil {
		contentType = *getObjectOutput.ContentType
	}

	if needsResize {
		resizedImg := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
		var buf bytes.Buffer
		if err = jpeg.Encode(&buf, resizedImg, &jpeg.Options{Quality: 85}); err != nil {
			return fmt.Errorf("failed to re-encode resized photo: %w", err)
		}
		processedData = buf.Bytes()
		contentType = "image/jpeg"

		if int64(len(processedData)) > maxSizeBytes {
			log.Printf("Resized photo %s still exceeds max size. Skipping.", payload.S3Key)
			return fmt.Errorf("resized photo still exceeds max size: %w", asynq.SkipRetry)
		}
	}

	processedKey := strings.Replace(payload.S3Key, "uploads/", "photos/", 1)
	if err := p.storageService.PutObject(ctx, processedKey, contentType, processedData); err != nil {
		return fmt.Errorf("failed to upload processed photo: %w", err)
	}

	if err := p.listingService.AddPhotoToListing(ctx, listingID, processedKey); err != nil {
		return fmt.Errorf("failed to attach processed photo to listing: %w", err)
	}

	if processedKey != payload.S3Key {
		if err := p.storageService.DeleteObject(ctx, payload.S3Key); err != nil {
			log.Printf("Failed to delete raw upload %s after processing: %v", payload.S3Key, err)
		}
	}

	log.Printf("Photo task processed: Key=%s, ListingID=%s", processedKey, payload.ListingID)
	return nil
}

// NewInspectionReminderTask builds the daily reminder sweep task. Scheduled
// by the background worker itself when it starts, and re-enqueued after
// every run.
func NewInspectionReminderTask() *asynq.Task {
	return asynq.NewTask(TypeInspectionReminder, nil)
}

// HandleInspectionReminderTask emails both parties of every viewing
// confirmed for tomorrow in the market timezone, honoring notification
// preferences, then re-enqueues itself for the next day's reminder hour.
func (p *TaskProcessor) HandleInspectionReminderTask(ctx context.Context, t *asynq.Task) error {
	loc := p.cfg.Location()
	now := time.Now()
	tomorrow := utils.DateOnly(now.In(loc).AddDate(0, 0, 1))

	reqs, err := p.inspectionService.FindConfirmedOnDate(ctx, tomorrow)
	if err != nil {
		return fmt.Errorf("failed to load confirmed viewings for %s: %w", tomorrow.Format("2006-01-02"), err)
	}

	sent := 0
	for i := range reqs {
		req := &reqs[i]
		listing, err := p.listingService.FindListingByID(ctx, req.ListingID)
		title := "your listed animal"
		if err == nil {
			title = listing.Title
		}

		for _, userID := range []primitive.ObjectID{req.BuyerID, req.SellerID} {
			user, err := p.userService.FindUserByID(ctx, userID)
			if err != nil {
				log.Printf("Reminder sweep: failed to load user %s: %v", userID.Hex(), err)
				continue
			}
			if !user.WantsEmail(func(prefs *models.NotificationPreferences) bool { return prefs.InspectionReminder }) {
				continue
			}

			subject := fmt.Sprintf("Reminder: viewing tomorrow for %s", title)
			body := fmt.Sprintf("Hello %s,\n\nThis is a reminder that a viewing of %q is scheduled for tomorrow, %s.\n\n%s",
				user.Name, title, tomorrow.Format("Monday, 2 January 2006"), p.cfg.AppName)
			emailTask, err := NewEmailDeliveryTask(user.Email, subject, body)
			if err != nil {
				log.Printf("Reminder sweep: failed to build email task for %s: %v", user.Email, err)
				continue
			}
			if _, err := p.taskClient.EnqueueContext(ctx, emailTask); err != nil {
				log.Printf("Reminder sweep: failed to enqueue email for %s: %v", user.Email, err)
				continue
			}
			sent++
		}
	}
	log.Printf("Reminder sweep for %s finished: %d viewings, %d emails enqueued.", tomorrow.Format("2006-01-02"), len(reqs), sent)

	// Schedule the next sweep at the configured local hour tomorrow.
	nextRun := time.Date(now.In(loc).Year(), now.In(loc).Month(), now.In(loc).Day()+1,
		p.cfg.InspectionReminderHour, 0, 0, 0, loc)
	if _, err := p.taskClient.EnqueueContext(ctx, NewInspectionReminderTask(), asynq.ProcessAt(nextRun)); err != nil {
		log.Printf("Failed to re-enqueue reminder sweep: %v", err)
		return err
	}
	return nil
}
