package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/skillswap-api/internal/models"
)

// fixture wires every marketplace service over one memStore with a shared, movable clock.
type fixture struct {
	t        *testing.T
	store    *memStore
	now      time.Time
	provider *fakeProvider
	notifier *recordingNotifier
	marker   *memMarker

	enrollments *EnrollmentService
	bookings    *BookingService
	schedule    *ScheduleService
	catalog     *CatalogService
	reviews     *ReviewService
	payments    *PaymentService
	trades      *TradeService
	messaging   *MessagingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	f := &fixture{
		t:        t,
		store:    store,
		now:      time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC),
		provider: newFakeProvider(),
		notifier: &recordingNotifier{},
		marker:   newMemMarker(),
	}
	clock := func() time.Time { return f.now }

	f.enrollments = NewEnrollmentService(store, memEnrollments{store}, memBookings{store}, nil, nil, nil)
	f.enrollments.now = clock
	f.bookings = NewBookingService(store, memBookings{store}, memSlots{store}, f.enrollments, nil, nil)
	f.bookings.now = clock
	exporter := NewExportService(nil)
	exporter.now = clock
	f.schedule = NewScheduleService(store, memSlots{store}, memCatalog{store}, memBookings{store}, exporter, nil, nil)
	f.schedule.now = clock
	f.catalog = NewCatalogService(store, memCatalog{store}, nil, "usd", func(err error) bool {
		return errors.Is(err, errMemForeignKey)
	}, nil, nil)
	f.reviews = NewReviewService(store, memReviews{store}, memCatalog{store}, nil, nil, nil)
	f.payments = NewPaymentService(PaymentDeps{
		Tx:          store,
		Provider:    f.provider,
		Payments:    memPayments{store},
		Events:      f.marker,
		Catalog:     memCatalog{store},
		Users:       memUsers{store},
		Slots:       memSlots{store},
		Enrollments: f.enrollments,
		Bookings:    f.bookings,
	}, PaymentConfig{PublicBaseURL: "https://skillswap.test"})
	f.payments.now = clock
	f.trades = NewTradeService(store, memTrades{store}, memCatalog{store}, f.enrollments, f.notifier, 0, nil, nil, nil)
	f.trades.now = clock
	f.messaging = NewMessagingService(store, memConversations{store}, nil)
	return f
}

func (f *fixture) user(name string) string {
	id := uuid.NewString()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.users[id] = models.User{ID: id, FullName: name, Email: name + "@example.com", Role: models.RoleMember, Active: true}
	return id
}

func (f *fixture) claims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleMember}
}

func (f *fixture) admin() *models.JWTClaims {
	return &models.JWTClaims{UserID: f.user("admin"), Role: models.RoleAdmin}
}

func (f *fixture) entry(teacherID, title string) models.CatalogEntry {
	entry := &models.CatalogEntry{
		TeacherID:       teacherID,
		Title:           title,
		PriceCents:      2500,
		Currency:        "usd",
		DurationMinutes: 60,
		Difficulty:      models.DifficultyBeginner,
		IsTradeable:     true,
		IsPublished:     true,
	}
	require.NoError(f.t, memCatalog{f.store}.Create(context.Background(), entry))
	return *entry
}

func (f *fixture) slot(entryID string, startIn time.Duration, maxStudents int) string {
	slot := &models.TimeSlot{
		CatalogEntryID: entryID,
		StartTime:      f.now.Add(startIn),
		EndTime:        f.now.Add(startIn + time.Hour),
		MaxStudents:    maxStudents,
		IsActive:       true,
	}
	require.NoError(f.t, memSlots{f.store}.Create(context.Background(), slot))
	return slot.ID
}

func (f *fixture) enroll(userID, entryID string) *models.Enrollment {
	enrollment, err := f.enrollments.Grant(context.Background(), userID, entryID, models.GrantedViaPurchase, "pi_"+uuid.NewString())
	require.NoError(f.t, err)
	return enrollment
}

// classroom is a teacher with one published entry and an enrolled student.
type classroom struct {
	teacher    string
	student    string
	entry      models.CatalogEntry
	enrollment *models.Enrollment
}

func (f *fixture) classroom() classroom {
	teacher := f.user("teacher")
	student := f.user("student")
	entry := f.entry(teacher, "Intro to Go")
	return classroom{teacher: teacher, student: student, entry: entry, enrollment: f.enroll(student, entry.ID)}
}
