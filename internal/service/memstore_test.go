package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/skillswap-api/internal/models"
)

// memStore is an in-memory stand-in for PostgreSQL. WithinTx serialises transactions with a
// mutex and restores a snapshot when fn fails, so rollbacks behave like the real store.
type memStore struct {
	mu sync.Mutex

	users         map[string]models.User
	entries       map[string]models.CatalogEntry
	slots         map[string]models.TimeSlot
	enrollments   map[string]models.Enrollment
	bookings      map[string]models.Booking
	trades        map[string]models.TradeOffer
	payments      map[string]models.Payment
	reviews       map[string]models.Review
	conversations map[string][]string
	messages      []models.Message

	seq   int
	fail  map[string]error
	calls map[string]int
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		users:         map[string]models.User{},
		entries:       map[string]models.CatalogEntry{},
		slots:         map[string]models.TimeSlot{},
		enrollments:   map[string]models.Enrollment{},
		bookings:      map[string]models.Booking{},
		trades:        map[string]models.TradeOffer{},
		payments:      map[string]models.Payment{},
		reviews:       map[string]models.Review{},
		conversations: map[string][]string{},
		fail:          map[string]error{},
		calls:         map[string]int{},
	}
}

type memSnapshot struct {
	entries       map[string]models.CatalogEntry
	slots         map[string]models.TimeSlot
	enrollments   map[string]models.Enrollment
	bookings      map[string]models.Booking
	trades        map[string]models.TradeOffer
	payments      map[string]models.Payment
	reviews       map[string]models.Review
	conversations map[string][]string
	messages      []models.Message
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := memSnapshot{
		entries:       maps.Clone(m.entries),
		slots:         maps.Clone(m.slots),
		enrollments:   maps.Clone(m.enrollments),
		bookings:      maps.Clone(m.bookings),
		trades:        maps.Clone(m.trades),
		payments:      maps.Clone(m.payments),
		reviews:       maps.Clone(m.reviews),
		conversations: maps.Clone(m.conversations),
		messages:      append([]models.Message(nil), m.messages...),
	}
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.entries, m.slots, m.enrollments = snap.entries, snap.slots, snap.enrollments
		m.bookings, m.trades, m.payments = snap.bookings, snap.trades, snap.payments
		m.reviews, m.conversations, m.messages = snap.reviews, snap.conversations, snap.messages
		return err
	}
	return nil
}

// guard locks the store for calls made outside a transaction.
func (m *memStore) guard(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// failAfter makes the n-th following call of op return err.
func (m *memStore) failAfter(op string, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = err
	m.calls[op] = -n
}

func (m *memStore) injected(op string) error {
	err, ok := m.fail[op]
	if !ok {
		return nil
	}
	m.calls[op]++
	if m.calls[op] == 0 {
		delete(m.fail, op)
		return err
	}
	return nil
}

func (m *memStore) stamp() time.Time {
	m.seq++
	return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Millisecond)
}

func (m *memStore) activeBookings(slotID string) int {
	n := 0
	for _, b := range m.bookings {
		if b.TimeSlotID == slotID && b.Status.HoldsSeat() {
			n++
		}
	}
	return n
}

func (m *memStore) detail(b models.Booking) models.BookingDetail {
	slot := m.slots[b.TimeSlotID]
	entry := m.entries[slot.CatalogEntryID]
	return models.BookingDetail{
		Booking:        b,
		CatalogEntryID: entry.ID,
		EntryTitle:     entry.Title,
		TeacherID:      entry.TeacherID,
		StartTime:      slot.StartTime,
		EndTime:        slot.EndTime,
		StudentName:    m.users[b.StudentID].FullName,
	}
}

// Direct accessors used by assertions.

func (m *memStore) enrollmentFor(userID, entryID string) (models.Enrollment, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found models.Enrollment
	count := 0
	for _, e := range m.enrollments {
		if e.UserID == userID && e.CatalogEntryID == entryID {
			found = e
			count++
		}
	}
	return found, count
}

func (m *memStore) bookingsFor(slotID, studentID string) []models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.TimeSlotID == slotID && (studentID == "" || b.StudentID == studentID) {
			out = append(out, b)
		}
	}
	return out
}

func (m *memStore) booking(id string) models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookings[id]
}

func (m *memStore) trade(id string) models.TradeOffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trades[id]
}

func (m *memStore) payment(sessionID string) (models.Payment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[sessionID]
	return p, ok
}

// memCatalog implements the catalog repository contracts.
type memCatalog struct{ *memStore }

func (r memCatalog) List(ctx context.Context, filter models.CatalogFilter) ([]models.CatalogEntry, int, error) {
	defer r.guard(ctx)()
	var out []models.CatalogEntry
	for _, e := range r.entries {
		if !filter.IncludeDrafts && !e.IsPublished {
			continue
		}
		if filter.TeacherID != "" && e.TeacherID != filter.TeacherID {
			continue
		}
		if filter.Difficulty != "" && e.Difficulty != filter.Difficulty {
			continue
		}
		if filter.TradeableOnly && !e.IsTradeable {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r memCatalog) FindByID(ctx context.Context, id string) (*models.CatalogEntry, error) {
	defer r.guard(ctx)()
	e, ok := r.entries[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (r memCatalog) LockByID(ctx context.Context, id string) (*models.CatalogEntry, error) {
	return r.FindByID(ctx, id)
}

func (r memCatalog) Create(ctx context.Context, entry *models.CatalogEntry) error {
	defer r.guard(ctx)()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = r.stamp()
	entry.UpdatedAt = entry.CreatedAt
	r.entries[entry.ID] = *entry
	return nil
}

func (r memCatalog) Update(ctx context.Context, entry *models.CatalogEntry) error {
	defer r.guard(ctx)()
	if _, ok := r.entries[entry.ID]; !ok {
		return sql.ErrNoRows
	}
	entry.UpdatedAt = r.stamp()
	r.entries[entry.ID] = *entry
	return nil
}

func (r memCatalog) References(ctx context.Context, id string) (models.CatalogReferences, error) {
	defer r.guard(ctx)()
	var refs models.CatalogReferences
	for _, e := range r.enrollments {
		if e.CatalogEntryID == id && (e.Status == models.EnrollmentStatusActive || e.Status == models.EnrollmentStatusPending) {
			refs.OpenEnrollments++
		}
	}
	for _, b := range r.bookings {
		if r.slots[b.TimeSlotID].CatalogEntryID == id && b.Status.HoldsSeat() {
			refs.OpenBookings++
		}
	}
	for _, t := range r.trades {
		if (t.OfferedEntryID == id || t.RequestedEntryID == id) && t.Status == models.TradeStatusPending {
			refs.PendingTrades++
		}
	}
	for _, p := range r.payments {
		if p.CatalogEntryID == id && p.Status == models.PaymentStatusOpen {
			refs.OpenPayments++
		}
	}
	return refs, nil
}

var errMemForeignKey = errors.New("foreign key violation")

func (r memCatalog) Delete(ctx context.Context, id string) error {
	defer r.guard(ctx)()
	booked := map[string]bool{}
	for _, b := range r.bookings {
		booked[b.TimeSlotID] = true
	}
	for slotID, s := range r.slots {
		if s.CatalogEntryID == id && !booked[slotID] {
			delete(r.slots, slotID)
		}
	}
	for _, s := range r.slots {
		if s.CatalogEntryID == id {
			return errMemForeignKey
		}
	}
	for _, e := range r.enrollments {
		if e.CatalogEntryID == id {
			return errMemForeignKey
		}
	}
	for _, p := range r.payments {
		if p.CatalogEntryID == id {
			return errMemForeignKey
		}
	}
	delete(r.entries, id)
	return nil
}

func (r memCatalog) RefreshRating(ctx context.Context, id string) error {
	defer r.guard(ctx)()
	entry, ok := r.entries[id]
	if !ok {
		return sql.ErrNoRows
	}
	total, count := 0, 0
	for _, rv := range r.reviews {
		if rv.CatalogEntryID == id {
			total += rv.Rating
			count++
		}
	}
	entry.ReviewsCount = count
	entry.AvgRating = 0
	if count > 0 {
		entry.AvgRating = float64(int(float64(total)/float64(count)*100+0.5)) / 100
	}
	r.entries[id] = entry
	return nil
}

// memReviews implements the review repository.
type memReviews struct{ *memStore }

func (r memReviews) Upsert(ctx context.Context, review *models.Review) error {
	defer r.guard(ctx)()
	key := review.CatalogEntryID + "/" + review.ReviewerID
	if existing, ok := r.reviews[key]; ok {
		review.ID = existing.ID
		review.CreatedAt = existing.CreatedAt
	} else {
		review.ID = uuid.NewString()
		review.CreatedAt = r.stamp()
	}
	review.UpdatedAt = r.stamp()
	r.reviews[key] = *review
	return nil
}

func (r memReviews) ListByEntry(ctx context.Context, entryID string) ([]models.Review, error) {
	defer r.guard(ctx)()
	var out []models.Review
	for _, rv := range r.reviews {
		if rv.CatalogEntryID == entryID {
			out = append(out, rv)
		}
	}
	return out, nil
}

// memSlots implements the time slot repository.
type memSlots struct{ *memStore }

func (r memSlots) Create(ctx context.Context, slot *models.TimeSlot) error {
	defer r.guard(ctx)()
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	slot.CreatedAt = r.stamp()
	r.slots[slot.ID] = *slot
	return nil
}

func (r memSlots) FindByID(ctx context.Context, id string) (*models.TimeSlotAvailability, error) {
	defer r.guard(ctx)()
	s, ok := r.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.TimeSlotAvailability{TimeSlot: s, ActiveBookings: r.activeBookings(id)}, nil
}

func (r memSlots) LockByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	defer r.guard(ctx)()
	s, ok := r.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (r memSlots) CountActiveBookings(ctx context.Context, id string) (int, error) {
	defer r.guard(ctx)()
	return r.activeBookings(id), nil
}

func (r memSlots) ListByEntry(ctx context.Context, entryID string, availableFrom *time.Time) ([]models.TimeSlotAvailability, error) {
	defer r.guard(ctx)()
	var out []models.TimeSlotAvailability
	for _, s := range r.slots {
		if s.CatalogEntryID != entryID {
			continue
		}
		a := models.TimeSlotAvailability{TimeSlot: s, ActiveBookings: r.activeBookings(s.ID)}
		if availableFrom != nil && (!s.IsActive || s.StartTime.Before(*availableFrom) || a.ActiveBookings >= s.MaxStudents) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r memSlots) SetActive(ctx context.Context, id string, active bool) error {
	defer r.guard(ctx)()
	s, ok := r.slots[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.IsActive = active
	r.slots[id] = s
	return nil
}

func (r memSlots) Delete(ctx context.Context, id string) error {
	defer r.guard(ctx)()
	for bid, b := range r.bookings {
		if b.TimeSlotID == id {
			delete(r.bookings, bid)
		}
	}
	delete(r.slots, id)
	return nil
}

// memEnrollments implements the enrollment repository.
type memEnrollments struct{ *memStore }

func (r memEnrollments) LockByID(ctx context.Context, id string) (*models.Enrollment, error) {
	defer r.guard(ctx)()
	e, ok := r.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (r memEnrollments) FindByUserAndEntry(ctx context.Context, userID, entryID string) (*models.Enrollment, error) {
	defer r.guard(ctx)()
	for _, e := range r.enrollments {
		if e.UserID == userID && e.CatalogEntryID == entryID {
			return &e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memEnrollments) LockByUserAndEntry(ctx context.Context, userID, entryID string) (*models.Enrollment, error) {
	return r.FindByUserAndEntry(ctx, userID, entryID)
}

func (r memEnrollments) InsertIfAbsent(ctx context.Context, enrollment *models.Enrollment) (bool, error) {
	defer r.guard(ctx)()
	if err := r.injected("enrollments.insert"); err != nil {
		return false, err
	}
	for _, e := range r.enrollments {
		if e.UserID == enrollment.UserID && e.CatalogEntryID == enrollment.CatalogEntryID {
			return false, nil
		}
	}
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	enrollment.CreatedAt = r.stamp()
	enrollment.UpdatedAt = enrollment.CreatedAt
	r.enrollments[enrollment.ID] = *enrollment
	return true, nil
}

func (r memEnrollments) Update(ctx context.Context, enrollment *models.Enrollment) error {
	defer r.guard(ctx)()
	enrollment.UpdatedAt = r.stamp()
	r.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (r memEnrollments) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	defer r.guard(ctx)()
	e, ok := r.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = status
	e.UpdatedAt = r.stamp()
	r.enrollments[id] = e
	return nil
}

func (r memEnrollments) Delete(ctx context.Context, id string) error {
	defer r.guard(ctx)()
	delete(r.enrollments, id)
	for bid, b := range r.bookings {
		if b.EnrollmentID != nil && *b.EnrollmentID == id {
			b.EnrollmentID = nil
			r.bookings[bid] = b
		}
	}
	return nil
}

func (r memEnrollments) ListByPurchaseID(ctx context.Context, purchaseID string) ([]models.Enrollment, error) {
	defer r.guard(ctx)()
	var out []models.Enrollment
	for _, e := range r.enrollments {
		if e.PurchaseID == purchaseID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memEnrollments) ListByUser(ctx context.Context, userID string) ([]models.EnrollmentWithEntry, error) {
	defer r.guard(ctx)()
	var out []models.EnrollmentWithEntry
	for _, e := range r.enrollments {
		if e.UserID == userID {
			entry := r.entries[e.CatalogEntryID]
			out = append(out, models.EnrollmentWithEntry{Enrollment: e, EntryTitle: entry.Title, TeacherID: entry.TeacherID})
		}
	}
	return out, nil
}

// memBookings implements the booking repository.
type memBookings struct{ *memStore }

func (r memBookings) FindDetailByID(ctx context.Context, id string) (*models.BookingDetail, error) {
	defer r.guard(ctx)()
	b, ok := r.bookings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := r.detail(b)
	return &d, nil
}

func (r memBookings) LockByID(ctx context.Context, id string) (*models.Booking, error) {
	defer r.guard(ctx)()
	b, ok := r.bookings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (r memBookings) LockBySlotAndStudent(ctx context.Context, slotID, studentID string) (*models.Booking, error) {
	defer r.guard(ctx)()
	for _, b := range r.bookings {
		if b.TimeSlotID == slotID && b.StudentID == studentID {
			return &b, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memBookings) Create(ctx context.Context, booking *models.Booking) error {
	defer r.guard(ctx)()
	for _, b := range r.bookings {
		if b.TimeSlotID == booking.TimeSlotID && b.StudentID == booking.StudentID {
			return fmt.Errorf("duplicate booking for slot %s", booking.TimeSlotID)
		}
	}
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	booking.CreatedAt = r.stamp()
	booking.UpdatedAt = booking.CreatedAt
	r.bookings[booking.ID] = *booking
	return nil
}

func (r memBookings) Update(ctx context.Context, booking *models.Booking) error {
	defer r.guard(ctx)()
	if _, ok := r.bookings[booking.ID]; !ok {
		return sql.ErrNoRows
	}
	booking.UpdatedAt = r.stamp()
	r.bookings[booking.ID] = *booking
	return nil
}

func (r memBookings) ListByStudent(ctx context.Context, studentID string) ([]models.BookingDetail, error) {
	defer r.guard(ctx)()
	var out []models.BookingDetail
	for _, b := range r.bookings {
		if b.StudentID == studentID {
			out = append(out, r.detail(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r memBookings) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Booking, error) {
	defer r.guard(ctx)()
	var out []models.Booking
	for _, b := range r.bookings {
		if b.EnrollmentID != nil && *b.EnrollmentID == enrollmentID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r memBookings) ListByEntry(ctx context.Context, entryID string) ([]models.BookingDetail, error) {
	defer r.guard(ctx)()
	var out []models.BookingDetail
	for _, b := range r.bookings {
		if r.slots[b.TimeSlotID].CatalogEntryID == entryID {
			out = append(out, r.detail(b))
		}
	}
	return out, nil
}

// memTrades implements the trade offer repository.
type memTrades struct{ *memStore }

func (r memTrades) Create(ctx context.Context, offer *models.TradeOffer) error {
	defer r.guard(ctx)()
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	offer.CreatedAt = r.stamp()
	r.trades[offer.ID] = *offer
	return nil
}

func (r memTrades) LockByID(ctx context.Context, id string) (*models.TradeOffer, error) {
	defer r.guard(ctx)()
	t, ok := r.trades[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (r memTrades) FindPending(ctx context.Context, proposerID, offeredID, requestedID string, now time.Time) (*models.TradeOffer, error) {
	defer r.guard(ctx)()
	for _, t := range r.trades {
		if t.ProposerID == proposerID && t.OfferedEntryID == offeredID && t.RequestedEntryID == requestedID &&
			t.Status == models.TradeStatusPending && t.ExpiresAt.After(now) {
			return &t, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memTrades) List(ctx context.Context, filter models.TradeFilter) ([]models.TradeOffer, error) {
	defer r.guard(ctx)()
	var out []models.TradeOffer
	for _, t := range r.trades {
		if !t.Involves(filter.UserID) {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memTrades) UpdateStatus(ctx context.Context, id string, status models.TradeStatus, decidedAt time.Time) error {
	defer r.guard(ctx)()
	t, ok := r.trades[id]
	if !ok {
		return sql.ErrNoRows
	}
	t.Status = status
	t.DecidedAt = &decidedAt
	r.trades[id] = t
	return nil
}

func (r memTrades) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	defer r.guard(ctx)()
	var n int64
	for id, t := range r.trades {
		if t.Status == models.TradeStatusPending && !t.ExpiresAt.After(now) {
			t.Status = models.TradeStatusExpired
			decided := now
			t.DecidedAt = &decided
			r.trades[id] = t
			n++
		}
	}
	return n, nil
}

// memPayments implements the payment repository keyed by session id.
type memPayments struct{ *memStore }

func (r memPayments) Create(ctx context.Context, payment *models.Payment) error {
	defer r.guard(ctx)()
	if existing, ok := r.payments[payment.SessionID]; ok {
		payment.ID = existing.ID
		return nil
	}
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.CreatedAt = r.stamp()
	payment.UpdatedAt = payment.CreatedAt
	r.payments[payment.SessionID] = *payment
	return nil
}

func (r memPayments) LockBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	defer r.guard(ctx)()
	p, ok := r.payments[sessionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (r memPayments) ListOpenByUserEntry(ctx context.Context, userID, entryID string, since time.Time) ([]models.Payment, error) {
	defer r.guard(ctx)()
	var out []models.Payment
	for _, p := range r.payments {
		if p.UserID == userID && p.CatalogEntryID == entryID && p.Status == models.PaymentStatusOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memPayments) MarkStatus(ctx context.Context, sessionID string, status models.PaymentStatus, paymentIntentID string) error {
	defer r.guard(ctx)()
	p, ok := r.payments[sessionID]
	if !ok {
		return nil
	}
	p.Status = status
	if paymentIntentID != "" {
		p.PaymentIntentID = paymentIntentID
	}
	r.payments[sessionID] = p
	return nil
}

func (r memPayments) MarkStatusByPurchase(ctx context.Context, purchaseID string, status models.PaymentStatus) (int64, error) {
	defer r.guard(ctx)()
	var n int64
	for id, p := range r.payments {
		if p.PaymentIntentID == purchaseID || p.SessionID == purchaseID {
			p.Status = status
			r.payments[id] = p
			n++
		}
	}
	return n, nil
}

func (r memPayments) ListByPaymentIntent(ctx context.Context, paymentIntentID string) ([]models.Payment, error) {
	defer r.guard(ctx)()
	var out []models.Payment
	for _, p := range r.payments {
		if p.PaymentIntentID == paymentIntentID {
			out = append(out, p)
		}
	}
	return out, nil
}

// memUsers implements the user lookups.
type memUsers struct{ *memStore }

func (r memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	defer r.guard(ctx)()
	u, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

// memConversations implements the conversation repository.
type memConversations struct{ *memStore }

func (r memConversations) FindDirect(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	defer r.guard(ctx)()
	for id, members := range r.conversations {
		if len(members) == 2 && ((members[0] == userA && members[1] == userB) || (members[0] == userB && members[1] == userA)) {
			return &models.Conversation{ID: id}, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memConversations) Create(ctx context.Context, conv *models.Conversation, participants ...string) error {
	defer r.guard(ctx)()
	conv.ID = uuid.NewString()
	conv.CreatedAt = r.stamp()
	r.conversations[conv.ID] = append([]string(nil), participants...)
	return nil
}

func (r memConversations) AddMessage(ctx context.Context, msg *models.Message) error {
	defer r.guard(ctx)()
	msg.ID = uuid.NewString()
	msg.CreatedAt = r.stamp()
	r.messages = append(r.messages, *msg)
	return nil
}

// memMarker stands in for the Redis replay markers.
type memMarker struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemMarker() *memMarker {
	return &memMarker{keys: map[string]bool{}}
}

func (m *memMarker) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memMarker) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

// fakeProvider is a scripted checkout backend.
type fakeProvider struct {
	mu        sync.Mutex
	sessions  map[string]*models.CheckoutSession
	created   []models.CheckoutRequest
	createErr error
	lists     int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: map[string]*models.CheckoutSession{}}
}

func (p *fakeProvider) CreateCheckoutSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, req)
	id := fmt.Sprintf("cs_test_%d", len(p.created))
	session := &models.CheckoutSession{
		ID:            id,
		URL:           "https://checkout.test/" + id,
		PaymentStatus: "unpaid",
		Status:        "open",
		AmountTotal:   req.AmountCents,
		Currency:      req.Currency,
		Metadata:      req.Metadata,
		Created:       time.Now().UTC(),
	}
	p.sessions[id] = session
	return session, nil
}

func (p *fakeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such checkout session: %s", sessionID)
	}
	copied := *s
	return &copied, nil
}

func (p *fakeProvider) ListCheckoutSessions(ctx context.Context, createdAfter time.Time) ([]models.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists++
	var out []models.CheckoutSession
	for _, s := range p.sessions {
		out = append(out, *s)
	}
	return out, nil
}

// ParseWebhook accepts the JSON encoding of models.WebhookEvent; the signature "bad" fails.
func (p *fakeProvider) ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	if signature == "bad" {
		return nil, errors.New("signature mismatch")
	}
	var event models.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// pay marks a session paid with the given payment intent.
func (p *fakeProvider) pay(sessionID, paymentIntentID string) *models.CheckoutSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.sessions[sessionID]
	s.PaymentStatus = "paid"
	s.Status = "complete"
	s.PaymentIntentID = paymentIntentID
	copied := *s
	return &copied
}

// recordingNotifier captures notifications synchronously.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, note models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, note := range n.sent {
		out = append(out, note.Kind)
	}
	return out
}
