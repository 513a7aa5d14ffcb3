package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dennismathu/moomarket/internal/models"
	"github.com/dennismathu/moomarket/internal/utils"
)

var (
	notifBuyerID    = primitive.NewObjectID()
	notifSellerID   = primitive.NewObjectID()
	notifStrangerID = primitive.NewObjectID()
)

func notifLocation(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	require.NoError(t, err)
	return loc
}

// notifRequest builds a request whose preferred date is daysAhead days from
// "now" in the given location.
func notifRequest(status models.InspectionStatus, rescheduledBy models.Party, wasEdited bool, now time.Time, loc *time.Location, daysAhead int) *models.InspectionRequest {
	local := now.In(loc).AddDate(0, 0, daysAhead)
	return &models.InspectionRequest{
		ID:            primitive.NewObjectID(),
		ListingID:     primitive.NewObjectID(),
		BuyerID:       notifBuyerID,
		SellerID:      notifSellerID,
		PreferredDate: utils.DateOnly(local),
		Status:        status,
		RescheduledBy: rescheduledBy,
		WasEdited:     wasEdited,
	}
}

func TestDeriveNotification_RulePriority(t *testing.T) {
	loc := notifLocation(t)
	now := time.Date(2026, 9, 10, 14, 0, 0, 0, loc)

	cases := []struct {
		name           string
		req            *models.InspectionRequest
		viewer         primitive.ObjectID
		wantTitle      string
		wantIcon       string
		wantAction     bool
		wantUrgency    string
	}{
		{
			name:        "seller sees buyer reschedule",
			req:         notifRequest(models.InspectionPending, models.PartyBuyer, true, now, loc, 5),
			viewer:      notifSellerID,
			wantTitle:   "Buyer Rescheduled Viewing",
			wantIcon:    IconCalendar,
			wantAction:  true,
			wantUrgency: "high",
		},
		{
			name:        "buyer sees seller reschedule",
			req:         notifRequest(models.InspectionPending, models.PartySeller, true, now, loc, 5),
			viewer:      notifBuyerID,
			wantTitle:   "Farmer Suggested New Date",
			wantIcon:    IconCalendar,
			wantAction:  true,
			wantUrgency: "high",
		},
		{
			name:        "seller sees fresh pending request",
			req:         notifRequest(models.InspectionPending, models.PartyNone, false, now, loc, 5),
			viewer:      notifSellerID,
			wantTitle:   "New Viewing Request",
			wantIcon:    IconCalendar,
			wantAction:  true,
			wantUrgency: "high",
		},
		{
			name:        "buyer sees confirmation",
			req:         notifRequest(models.InspectionConfirmed, models.PartyNone, true, now, loc, 5),
			viewer:      notifBuyerID,
			wantTitle:   "Viewing Confirmed!",
			wantIcon:    IconConfirmed,
			wantUrgency: "normal",
		},
		{
			name:        "seller sees own confirmation",
			req:         notifRequest(models.InspectionConfirmed, models.PartyNone, true, now, loc, 5),
			viewer:      notifSellerID,
			wantTitle:   "Viewing Confirmed",
			wantIcon:    IconConfirmed,
			wantUrgency: "normal",
		},
		{
			name:        "buyer sees completed",
			req:         notifRequest(models.InspectionCompleted, models.PartyNone, true, now, loc, -2),
			viewer:      notifBuyerID,
			wantTitle:   "Viewing Completed",
			wantIcon:    IconDone,
			wantUrgency: "normal",
		},
		{
			name:        "seller sees completed",
			req:         notifRequest(models.InspectionCompleted, models.PartyNone, true, now, loc, -2),
			viewer:      notifSellerID,
			wantTitle:   "Viewing Completed",
			wantIcon:    IconDone,
			wantUrgency: "normal",
		},
		{
			name:        "buyer sees request sent",
			req:         notifRequest(models.InspectionPending, models.PartyNone, false, now, loc, 5),
			viewer:      notifBuyerID,
			wantTitle:   "Request Sent",
			wantIcon:    IconSent,
			wantUrgency: "normal",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, ok := DeriveNotification(tc.req, tc.viewer, now, loc)
			require.True(t, ok)
			assert.Equal(t, tc.wantTitle, n.Title)
			assert.Equal(t, tc.wantIcon, n.Icon)
			assert.Equal(t, tc.wantAction, n.ActionRequired)
			assert.Equal(t, tc.wantUrgency, n.Urgency)
			assert.Equal(t, tc.req.ID, n.RequestID)
			assert.Equal(t, tc.req.ListingID, n.ListingID)
		})
	}
}

func TestDeriveNotification_NonPartyViewer(t *testing.T) {
	loc := notifLocation(t)
	now := time.Date(2026, 9, 10, 14, 0, 0, 0, loc)
	req := notifRequest(models.InspectionPending, models.PartyNone, false, now, loc, 3)

	n, ok := DeriveNotification(req, notifStrangerID, now, loc)
	assert.False(t, ok)
	assert.Nil(t, n)
}

func TestDeriveNotification_ProposerAwaitsResponse(t *testing.T) {
	loc := notifLocation(t)
	now := time.Date(2026, 9, 10, 14, 0, 0, 0, loc)

	// The party whose own proposal is outstanding is waiting on the other
	// side: no badge, no unread count.
	sellerProposed := notifRequest(models.InspectionPending, models.PartySeller, true, now, loc, 5)
	n, ok := DeriveNotification(sellerProposed, notifSellerID, now, loc)
	assert.False(t, ok)
	assert.Nil(t, n)
	assert.Equal(t, 0, UnreadCount([]models.InspectionRequest{*sellerProposed}, notifSellerID, now, loc))

	buyerProposed := notifRequest(models.InspectionPending, models.PartyBuyer, true, now, loc, 5)
	n, ok = DeriveNotification(buyerProposed, notifBuyerID, now, loc)
	assert.False(t, ok)
	assert.Nil(t, n)
	assert.Equal(t, 0, UnreadCount([]models.InspectionRequest{*buyerProposed}, notifBuyerID, now, loc))

	// The counterparty still sees the reschedule.
	n, ok = DeriveNotification(sellerProposed, notifBuyerID, now, loc)
	require.True(t, ok)
	assert.Equal(t, "Farmer Suggested New Date", n.Title)
	n, ok = DeriveNotification(buyerProposed, notifSellerID, now, loc)
	require.True(t, ok)
	assert.Equal(t, "Buyer Rescheduled Viewing", n.Title)
}

func TestDeriveNotification_ReminderOverride(t *testing.T) {
	loc := notifLocation(t)
	now := time.Date(2026, 9, 10, 14, 0, 0, 0, loc)

	// Viewing tomorrow: reminder tag plus the alarm icon, but the title still
	// comes from the matched rule.
	req := notifRequest(models.InspectionConfirmed, models.PartyNone, true, now, loc, 1)
	n, ok := DeriveNotification(req, notifBuyerID, now, loc)
	require.True(t, ok)
	assert.True(t, n.Reminder)
	assert.Equal(t, IconReminder, n.Icon)
	assert.Equal(t, "Viewing Confirmed!", n.Title)

	// Same for an action-required rule.
	req = notifRequest(models.InspectionPending, models.PartyNone, false, now, loc, 1)
	n, ok = DeriveNotification(req, notifSellerID, now, loc)
	require.True(t, ok)
	assert.True(t, n.Reminder)
	assert.True(t, n.ActionRequired)
	assert.Equal(t, IconReminder, n.Icon)

	// Completed viewings never get the reminder tag.
	req = notifRequest(models.InspectionCompleted, models.PartyNone, true, now, loc, 1)
	n, ok = DeriveNotification(req, notifBuyerID, now, loc)
	require.True(t, ok)
	assert.False(t, n.Reminder)
	assert.Equal(t, IconDone, n.Icon)

	// Two days out: no reminder.
	req = notifRequest(models.InspectionConfirmed, models.PartyNone, true, now, loc, 2)
	n, ok = DeriveNotification(req, notifBuyerID, now, loc)
	require.True(t, ok)
	assert.False(t, n.Reminder)
	assert.Equal(t, IconConfirmed, n.Icon)
}

func TestDeriveNotification_UpdatedFlag(t *testing.T) {
	loc := notifLocation(t)
	now := time.Date(2026, 9, 10, 14, 0, 0, 0, loc)

	fresh := notifRequest(models.InspectionPending, models.PartyNone, false, now, loc, 5)
	n, ok := DeriveNotification(fresh, notifBuyerID, now, loc)
	require.True(t, ok)
	assert.False(t, n.Updated)

	edited := notifRequest(models.InspectionPending, models.PartyNone, true, now, loc, 5)
	n, ok = DeriveNotification(edited, notifBuyerID, now, loc)
	require.True(t, ok)
	assert.True(t, n.Updated)
}

func TestDeriveNotification_Countdown(t *testing.T) {
	loc := notifLocation(t)
	now := time.Date(2026, 9, 10, 14, 0, 0, 0, loc)

	cases := []struct {
		daysAhead int
		tier      utils.CountdownTier
	}{
		{-1, utils.TierOverdue},
		{0, utils.TierToday},
		{1, utils.TierTomorrow},
		{4, utils.TierSoon},
		{10, utils.TierLater},
	}
	for _, tc := range cases {
		req := notifRequest(models.InspectionConfirmed, models.PartyNone, true, now, loc, tc.daysAhead)
		n, ok := DeriveNotification(req, notifBuyerID, now, loc)
		require.True(t, ok)
		assert.Equal(t, tc.daysAhead, n.Countdown.Days)
		assert.Equal(t, tc.tier, n.Countdown.Tier)
	}
}

func TestUnreadCount(t *testing.T) {
	loc := notifLocation(t)
	now := time.Date(2026, 9, 10, 14, 0, 0, 0, loc)

	reqs := []models.InspectionRequest{
		// Seller action required: counts for seller, not buyer.
		*notifRequest(models.InspectionPending, models.PartyNone, false, now, loc, 5),
		// Confirmed tomorrow: reminder, counts for both parties.
		*notifRequest(models.InspectionConfirmed, models.PartyNone, true, now, loc, 1),
		// Confirmed next week: counts for nobody.
		*notifRequest(models.InspectionConfirmed, models.PartyNone, true, now, loc, 6),
		// Completed: counts for nobody.
		*notifRequest(models.InspectionCompleted, models.PartyNone, true, now, loc, -1),
	}

	assert.Equal(t, 2, UnreadCount(reqs, notifSellerID, now, loc))
	assert.Equal(t, 1, UnreadCount(reqs, notifBuyerID, now, loc))
	assert.Equal(t, 0, UnreadCount(reqs, notifStrangerID, now, loc))
}
