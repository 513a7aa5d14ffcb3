package services

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dennismathu/moomarket/internal/models"
	"github.com/dennismathu/moomarket/internal/utils"
)

// Notification is a read-only projection derived from an inspection request
// plus the viewing user and the current date. Never persisted; recomputed on
// every fetch.
type Notification struct {
	RequestID      primitive.ObjectID `json:"request_id"`
	ListingID      primitive.ObjectID `json:"listing_id"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Urgency        string             `json:"urgency"` // "high" or "normal"
	Icon           string             `json:"icon"`
	ActionRequired bool               `json:"action_required"`
	Reminder       bool               `json:"reminder"`
	Updated        bool               `json:"updated"`
	Countdown      utils.Countdown    `json:"countdown"`
}

const (
	IconCalendar  = "calendar"
	IconConfirmed = "check"
	IconDone      = "flag"
	IconSent      = "clock"
	IconReminder  = "alarm"
)

// DeriveNotification computes the badge for one request as seen by viewerID
// at "now". Pure: identical inputs always yield identical output. The second
// return is false when no notification applies (viewer is neither party, or
// no rule matches).
//
// Rules are evaluated in priority order; the first match wins. Independent of
// the matched rule, a request whose date is local-tomorrow is tagged as a
// reminder (icon override only) unless already completed, and a request
// modified after creation carries the updated tag.
func DeriveNotification(req *models.InspectionRequest, viewerID primitive.ObjectID, now time.Time, loc *time.Location) (*Notification, bool) {
	party := req.PartyOf(viewerID)
	if party == models.PartyNone {
		return nil, false
	}

	days := utils.DaysUntil(req.PreferredDate, now, loc)
	countdown := utils.ClassifyCountdown(days)

	n := &Notification{
		RequestID: req.ID,
		ListingID: req.ListingID,
		Updated:   req.WasEdited,
		Countdown: countdown,
	}

	switch {
	case party == models.PartySeller && req.RescheduledBy == models.PartyBuyer:
		n.Title = "Buyer Rescheduled Viewing"
		n.Description = fmt.Sprintf("The buyer suggested a new viewing date (%s). Please respond.", countdown.Label)
		n.ActionRequired = true
		n.Icon = IconCalendar

	case party == models.PartyBuyer && req.RescheduledBy == models.PartySeller:
		n.Title = "Farmer Suggested New Date"
		n.Description = fmt.Sprintf("The farmer suggested a new viewing date (%s). Please respond.", countdown.Label)
		n.ActionRequired = true
		n.Icon = IconCalendar

	case party == models.PartySeller && req.Status == models.InspectionPending && req.RescheduledBy == models.PartyNone:
		n.Title = "New Viewing Request"
		n.Description = fmt.Sprintf("A buyer wants to view your animal (%s).", countdown.Label)
		n.ActionRequired = true
		n.Icon = IconCalendar

	case party == models.PartyBuyer && req.Status == models.InspectionConfirmed:
		n.Title = "Viewing Confirmed!"
		n.Description = fmt.Sprintf("Your viewing is confirmed (%s).", countdown.Label)
		n.Icon = IconConfirmed

	case party == models.PartySeller && req.Status == models.InspectionConfirmed:
		n.Title = "Viewing Confirmed"
		n.Description = fmt.Sprintf("You confirmed this viewing (%s).", countdown.Label)
		n.Icon = IconConfirmed

	case req.Status == models.InspectionCompleted:
		n.Title = "Viewing Completed"
		n.Description = "This viewing has taken place."
		n.Icon = IconDone

	case party == models.PartyBuyer && req.Status == models.InspectionPending && req.RescheduledBy == models.PartyNone:
		n.Title = "Request Sent"
		n.Description = fmt.Sprintf("Waiting for the farmer to confirm (%s).", countdown.Label)
		n.Icon = IconSent

	default:
		return nil, false
	}

	if days == 1 && req.Status != models.InspectionCompleted {
		n.Reminder = true
		n.Icon = IconReminder
	}

	if n.ActionRequired {
		n.Urgency = "high"
	} else {
		n.Urgency = "normal"
	}

	return n, true
}

// UnreadCount is the number of requests needing the viewer's attention:
// those requiring action, plus next-day reminders.
func UnreadCount(reqs []models.InspectionRequest, viewerID primitive.ObjectID, now time.Time, loc *time.Location) int {
	count := 0
	for i := range reqs {
		n, ok := DeriveNotification(&reqs[i], viewerID, now, loc)
		if !ok {
			continue
		}
		if n.ActionRequired || n.Reminder {
			count++
		}
	}
	return count
}
