package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marge-app/booking/internal/availability"
	"github.com/marge-app/booking/internal/model"
)

// fakeStore is an in-memory Store. InTx serializes transactions under one
// mutex and rolls back by snapshot, so the slot uniqueness check inside
// CreateAppointment is a real store-level arbiter for the concurrency tests.
type fakeStore struct {
	mu         sync.Mutex
	businesses map[string]model.Business
	clients    map[string]model.Client
	appts      map[string]model.Appointment
	events     []fakeEvent
	nextID     int
}

type fakeEvent struct {
	eventType   string
	aggregateID string
	payload     []byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		businesses: make(map[string]model.Business),
		clients:    make(map[string]model.Client),
		appts:      make(map[string]model.Appointment),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) GetBusiness(ctx context.Context, businessID string) (model.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	biz, ok := f.businesses[businessID]
	if !ok {
		return model.Business{}, ErrBusinessNotFound
	}
	return biz, nil
}

func (f *fakeStore) OccupiedTimes(ctx context.Context, businessID, date string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	occupied := make(map[string]struct{})
	for _, a := range f.appts {
		if a.BusinessID == businessID && a.Date == date && a.Status.Occupies() {
			occupied[a.Time] = struct{}{}
		}
	}
	return occupied, nil
}

func (f *fakeStore) SlotTaken(ctx context.Context, businessID, date, tm string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slotTakenLocked(businessID, date, tm), nil
}

func (f *fakeStore) slotTakenLocked(businessID, date, tm string) bool {
	for _, a := range f.appts {
		if a.BusinessID == businessID && a.Date == date && a.Time == tm && a.Status.Occupies() {
			return true
		}
	}
	return false
}

func (f *fakeStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	clients := make(map[string]model.Client, len(f.clients))
	for k, v := range f.clients {
		clients[k] = v
	}
	appts := make(map[string]model.Appointment, len(f.appts))
	for k, v := range f.appts {
		appts[k] = v
	}
	events := append([]fakeEvent(nil), f.events...)

	if err := fn(&fakeTx{store: f}); err != nil {
		f.clients = clients
		f.appts = appts
		f.events = events
		return err
	}
	return nil
}

func (f *fakeStore) FindClientByEmail(ctx context.Context, businessID, email string) (model.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findClientLocked(businessID, email)
}

func (f *fakeStore) findClientLocked(businessID, email string) (model.Client, error) {
	for _, c := range f.clients {
		if c.BusinessID == businessID && strings.EqualFold(c.Email, email) {
			return c, nil
		}
	}
	return model.Client{}, ErrClientNotFound
}

func (f *fakeStore) RecomputeClientStats(ctx context.Context, clientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[clientID]
	if !ok {
		return nil
	}
	total := 0
	last := ""
	for _, a := range f.appts {
		if a.ClientID == clientID && a.Status.Occupies() {
			total++
			if a.Date > last {
				last = a.Date
			}
		}
	}
	c.TotalAppointments = total
	c.LastVisit = last
	f.clients[clientID] = c
	return nil
}

func (f *fakeStore) ListUpcomingByClient(ctx context.Context, clientID, fromDate string) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Appointment
	for _, a := range f.appts {
		if a.ClientID == clientID && a.Status.Occupies() && a.Date >= fromDate {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (f *fakeStore) ListByBusiness(ctx context.Context, businessID, date string, status model.AppointmentStatus) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Appointment
	for _, a := range f.appts {
		if a.BusinessID != businessID {
			continue
		}
		if date != "" && a.Date != date {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}
	sortAppointments(out)
	return out, nil
}

func (f *fakeStore) ListClients(ctx context.Context, businessID, search string) ([]model.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Client
	for _, c := range f.clients {
		if c.BusinessID != businessID {
			continue
		}
		if search != "" {
			needle := strings.ToLower(search)
			if !strings.Contains(strings.ToLower(c.Name), needle) &&
				!strings.Contains(strings.ToLower(c.Email), needle) {
				continue
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func sortAppointments(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		return appts[i].Time < appts[j].Time
	})
}

// fakeTx runs with the store mutex already held by InTx.
type fakeTx struct {
	store *fakeStore
}

func (t *fakeTx) SlotTaken(ctx context.Context, businessID, date, tm string) (bool, error) {
	return t.store.slotTakenLocked(businessID, date, tm), nil
}

func (t *fakeTx) FindClientByEmail(ctx context.Context, businessID, email string) (model.Client, error) {
	return t.store.findClientLocked(businessID, email)
}

func (t *fakeTx) UpsertClient(ctx context.Context, c model.Client) (model.Client, error) {
	if existing, err := t.store.findClientLocked(c.BusinessID, c.Email); err == nil {
		existing.Name = c.Name
		t.store.clients[existing.ID] = existing
		return existing, nil
	}
	c.ID = t.store.id("client")
	c.CreatedAt = time.Now()
	t.store.clients[c.ID] = c
	return c, nil
}

func (t *fakeTx) UpdateClientContact(ctx context.Context, clientID, name, phone string) error {
	c, ok := t.store.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	c.Name = name
	c.Phone = phone
	t.store.clients[clientID] = c
	return nil
}

func (t *fakeTx) CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	if t.store.slotTakenLocked(a.BusinessID, a.Date, a.Time) {
		return model.Appointment{}, ErrSlotUnavailable
	}
	a.ID = t.store.id("appt")
	a.CreatedAt = time.Now()
	t.store.appts[a.ID] = a
	return a, nil
}

func (t *fakeTx) AppointmentForUpdate(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	a, ok := t.store.appts[appointmentID]
	if !ok || a.BusinessID != businessID {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	return a, nil
}

func (t *fakeTx) NextUpcomingForClient(ctx context.Context, clientID, fromDate string) (model.Appointment, error) {
	var candidates []model.Appointment
	for _, a := range t.store.appts {
		if a.ClientID == clientID && a.Status.Occupies() && a.Date >= fromDate {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return model.Appointment{}, ErrNoUpcomingAppointment
	}
	sortAppointments(candidates)
	return candidates[0], nil
}

func (t *fakeTx) CancelAppointment(ctx context.Context, appointmentID, reason string) (model.Appointment, error) {
	a, ok := t.store.appts[appointmentID]
	if !ok {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	now := time.Now()
	a.Status = model.StatusCancelled
	a.CancelledAt = &now
	a.CancelReason = reason
	t.store.appts[appointmentID] = a
	return a, nil
}

func (t *fakeTx) UpdateAppointmentStatus(ctx context.Context, businessID, appointmentID string, status model.AppointmentStatus) (model.Appointment, error) {
	a, ok := t.store.appts[appointmentID]
	if !ok || a.BusinessID != businessID {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	a.Status = status
	t.store.appts[appointmentID] = a
	return a, nil
}

func (t *fakeTx) AppendEvent(ctx context.Context, eventType, aggregateID string, payload []byte) error {
	t.store.events = append(t.store.events, fakeEvent{
		eventType:   eventType,
		aggregateID: aggregateID,
		payload:     payload,
	})
	return nil
}

const testBusinessID = "biz-1"

// 2025-03-10 is a Monday.
var testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func weekdayHours() model.WeekSchedule {
	var week model.WeekSchedule
	week[time.Sunday] = "closed"
	week[time.Monday] = "09:00-17:00"
	week[time.Tuesday] = "09:00-17:00"
	week[time.Wednesday] = "09:00-17:00"
	week[time.Thursday] = "09:00-17:00"
	week[time.Friday] = "09:00-17:00"
	week[time.Saturday] = "10:00-14:00"
	return week
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	store.businesses[testBusinessID] = model.Business{
		ID:    testBusinessID,
		Name:  "Test Salon",
		Hours: weekdayHours(),
	}
	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return testNow }
	return svc, store
}

func mustBook(t *testing.T, svc *Service, date, tm, email string) model.Appointment {
	t.Helper()
	appt, err := svc.Book(context.Background(), BookingRequest{
		BusinessID:  testBusinessID,
		Date:        date,
		Time:        tm,
		ClientName:  "Jamie Lee",
		ClientEmail: email,
		ClientPhone: "555-0100",
	})
	if err != nil {
		t.Fatalf("Book(%s %s): %v", date, tm, err)
	}
	return appt
}

func TestAvailableSlotsFullDay(t *testing.T) {
	svc, _ := newTestService(t)

	slots, err := svc.AvailableSlots(context.Background(), testBusinessID, "2025-03-10", availability.PreferenceAny)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(slots) != 8 {
		t.Fatalf("got %d slots, want 8: %v", len(slots), slots)
	}
	if slots[0] != "09:00" || slots[7] != "16:00" {
		t.Errorf("got range %s..%s, want 09:00..16:00", slots[0], slots[7])
	}
}

func TestAvailableSlotsExcludesBooked(t *testing.T) {
	svc, _ := newTestService(t)
	mustBook(t, svc, "2025-03-10", "10:00", "jamie@example.com")

	slots, err := svc.AvailableSlots(context.Background(), testBusinessID, "2025-03-10", availability.PreferenceAny)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(slots) != 7 {
		t.Fatalf("got %d slots, want 7: %v", len(slots), slots)
	}
	for _, s := range slots {
		if s == "10:00" {
			t.Error("booked slot 10:00 still offered")
		}
	}
}

func TestAvailableSlotsClosedDay(t *testing.T) {
	svc, _ := newTestService(t)

	slots, err := svc.AvailableSlots(context.Background(), testBusinessID, "2025-03-16", availability.PreferenceAny)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("closed Sunday offered slots: %v", slots)
	}
}

func TestAvailableSlotsMalformedHours(t *testing.T) {
	svc, store := newTestService(t)
	biz := store.businesses[testBusinessID]
	biz.Hours[time.Monday] = "whenever"
	store.businesses[testBusinessID] = biz

	slots, err := svc.AvailableSlots(context.Background(), testBusinessID, "2025-03-10", availability.PreferenceAny)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("malformed hours offered slots: %v", slots)
	}
}

func TestAvailableSlotsPreference(t *testing.T) {
	svc, _ := newTestService(t)

	slots, err := svc.AvailableSlots(context.Background(), testBusinessID, "2025-03-10", availability.PreferenceMorning)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	want := []string{"09:00", "10:00", "11:00"}
	if len(slots) != len(want) {
		t.Fatalf("got %v, want %v", slots, want)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("got %v, want %v", slots, want)
		}
	}
}

func TestAvailableSlotsUnknownBusiness(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AvailableSlots(context.Background(), "nope", "2025-03-10", availability.PreferenceAny)
	if !errors.Is(err, ErrBusinessNotFound) {
		t.Fatalf("got %v, want ErrBusinessNotFound", err)
	}
}

func TestBookCreatesClientAndEvent(t *testing.T) {
	svc, store := newTestService(t)

	appt := mustBook(t, svc, "2025-03-10", "10:00", "jamie@example.com")
	if appt.Status != model.StatusScheduled {
		t.Errorf("status = %s, want scheduled", appt.Status)
	}
	if appt.DurationMins != SlotDurationMins {
		t.Errorf("duration = %d, want %d", appt.DurationMins, SlotDurationMins)
	}

	client, err := store.FindClientByEmail(context.Background(), testBusinessID, "jamie@example.com")
	if err != nil {
		t.Fatalf("client not created: %v", err)
	}
	if client.FirstVisit != "2025-03-10" {
		t.Errorf("first_visit = %q, want 2025-03-10", client.FirstVisit)
	}
	if client.TotalAppointments != 1 {
		t.Errorf("total_appointments = %d, want 1", client.TotalAppointments)
	}
	if client.LastVisit != "2025-03-10" {
		t.Errorf("last_visit = %q, want 2025-03-10", client.LastVisit)
	}

	if len(store.events) != 1 {
		t.Fatalf("got %d events, want 1", len(store.events))
	}
	if store.events[0].eventType != EventAppointmentScheduled {
		t.Errorf("event type = %s, want %s", store.events[0].eventType, EventAppointmentScheduled)
	}
	if store.events[0].aggregateID != appt.ID {
		t.Errorf("event aggregate = %s, want %s", store.events[0].aggregateID, appt.ID)
	}
}

func TestBookOccupiedSlot(t *testing.T) {
	svc, _ := newTestService(t)
	mustBook(t, svc, "2025-03-10", "10:00", "first@example.com")

	_, err := svc.Book(context.Background(), BookingRequest{
		BusinessID:  testBusinessID,
		Date:        "2025-03-10",
		Time:        "10:00",
		ClientName:  "Sam Reyes",
		ClientEmail: "second@example.com",
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("got %v, want ErrSlotUnavailable", err)
	}
}

func TestBookConcurrentSingleWinner(t *testing.T) {
	svc, store := newTestService(t)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), BookingRequest{
				BusinessID:  testBusinessID,
				Date:        "2025-03-10",
				Time:        "14:00",
				ClientName:  fmt.Sprintf("Caller %d", i),
				ClientEmail: fmt.Sprintf("caller%d@example.com", i),
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrSlotUnavailable):
		default:
			t.Errorf("caller %d: unexpected error %v", i, err)
		}
	}
	if winners != 1 {
		t.Errorf("got %d winning bookings, want exactly 1", winners)
	}

	active := 0
	for _, a := range store.appts {
		if a.Date == "2025-03-10" && a.Time == "14:00" && a.Status.Occupies() {
			active++
		}
	}
	if active != 1 {
		t.Errorf("got %d active appointments in slot, want exactly 1", active)
	}
}

func TestBookUpdatesClientContact(t *testing.T) {
	svc, store := newTestService(t)
	mustBook(t, svc, "2025-03-10", "10:00", "jamie@example.com")

	_, err := svc.Book(context.Background(), BookingRequest{
		BusinessID:  testBusinessID,
		Date:        "2025-03-11",
		Time:        "10:00",
		ClientName:  "Jamie L. Lee",
		ClientEmail: "jamie@example.com",
		ClientPhone: "555-0199",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	client, err := store.FindClientByEmail(context.Background(), testBusinessID, "jamie@example.com")
	if err != nil {
		t.Fatalf("FindClientByEmail: %v", err)
	}
	if client.Phone != "555-0199" {
		t.Errorf("phone = %q, want 555-0199", client.Phone)
	}
	if client.Name != "Jamie L. Lee" {
		t.Errorf("name = %q, want Jamie L. Lee", client.Name)
	}
	if client.TotalAppointments != 2 {
		t.Errorf("total_appointments = %d, want 2", client.TotalAppointments)
	}
	if client.LastVisit != "2025-03-11" {
		t.Errorf("last_visit = %q, want 2025-03-11", client.LastVisit)
	}
	if len(store.clients) != 1 {
		t.Errorf("got %d clients, want 1", len(store.clients))
	}
}

func TestBookNormalizesTime(t *testing.T) {
	svc, _ := newTestService(t)

	appt, err := svc.Book(context.Background(), BookingRequest{
		BusinessID:  testBusinessID,
		Date:        "2025-03-10",
		Time:        "9:00",
		ClientName:  "Jamie Lee",
		ClientEmail: "jamie@example.com",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if appt.Time != "09:00" {
		t.Errorf("time = %q, want 09:00", appt.Time)
	}
}

func TestBookRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Book(context.Background(), BookingRequest{
		BusinessID: testBusinessID, Date: "03/10/2025", Time: "10:00",
		ClientName: "A", ClientEmail: "a@example.com",
	}); err == nil {
		t.Error("bad date accepted")
	}
	if _, err := svc.Book(context.Background(), BookingRequest{
		BusinessID: testBusinessID, Date: "2025-03-10", Time: "ten",
		ClientName: "A", ClientEmail: "a@example.com",
	}); err == nil {
		t.Error("bad time accepted")
	}
}

func TestCancelByID(t *testing.T) {
	svc, store := newTestService(t)
	appt := mustBook(t, svc, "2025-03-10", "10:00", "jamie@example.com")

	cancelled, err := svc.Cancel(context.Background(), testBusinessID, "", appt.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancelReason != "Cancelled by client via chat" {
		t.Errorf("reason = %q", cancelled.CancelReason)
	}
	if cancelled.CancelledAt == nil {
		t.Error("cancelled_at not set")
	}

	client, _ := store.FindClientByEmail(context.Background(), testBusinessID, "jamie@example.com")
	if client.TotalAppointments != 0 {
		t.Errorf("total_appointments = %d, want 0 after cancel", client.TotalAppointments)
	}

	if len(store.events) != 2 || store.events[1].eventType != EventAppointmentCancelled {
		t.Errorf("cancellation event not appended: %+v", store.events)
	}

	if _, err := svc.Cancel(context.Background(), testBusinessID, "", appt.ID); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("got %v, want ErrAlreadyCancelled", err)
	}
}

func TestCancelUnknownAppointment(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Cancel(context.Background(), testBusinessID, "", "missing")
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("got %v, want ErrAppointmentNotFound", err)
	}
}

func TestCancelByEmailPicksSoonest(t *testing.T) {
	svc, _ := newTestService(t)
	later := mustBook(t, svc, "2025-03-12", "10:00", "jamie@example.com")
	soonest := mustBook(t, svc, "2025-03-11", "09:00", "jamie@example.com")

	cancelled, err := svc.Cancel(context.Background(), testBusinessID, "jamie@example.com", "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.ID != soonest.ID {
		t.Errorf("cancelled %s (%s %s), want soonest %s", cancelled.ID, cancelled.Date, cancelled.Time, soonest.ID)
	}

	remaining, err := svc.Find(context.Background(), testBusinessID, "jamie@example.com")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != later.ID {
		t.Errorf("remaining = %+v, want only %s", remaining, later.ID)
	}
}

func TestCancelByEmailErrors(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Cancel(context.Background(), testBusinessID, "stranger@example.com", "")
	if !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("got %v, want ErrClientNotFound", err)
	}

	appt := mustBook(t, svc, "2025-03-10", "10:00", "jamie@example.com")
	if _, err := svc.Cancel(context.Background(), testBusinessID, "", appt.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	_, err = svc.Cancel(context.Background(), testBusinessID, "jamie@example.com", "")
	if !errors.Is(err, ErrNoUpcomingAppointment) {
		t.Fatalf("got %v, want ErrNoUpcomingAppointment", err)
	}
}

func TestCancelFreesSlot(t *testing.T) {
	svc, _ := newTestService(t)
	appt := mustBook(t, svc, "2025-03-10", "10:00", "jamie@example.com")

	if _, err := svc.Cancel(context.Background(), testBusinessID, "", appt.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	free, err := svc.IsSlotAvailable(context.Background(), testBusinessID, "2025-03-10", "10:00")
	if err != nil {
		t.Fatalf("IsSlotAvailable: %v", err)
	}
	if !free {
		t.Error("cancelled slot still reported taken")
	}

	mustBook(t, svc, "2025-03-10", "10:00", "other@example.com")
}

func TestFind(t *testing.T) {
	svc, _ := newTestService(t)
	mustBook(t, svc, "2025-03-12", "10:00", "jamie@example.com")
	mustBook(t, svc, "2025-03-11", "09:00", "jamie@example.com")

	appts, err := svc.Find(context.Background(), testBusinessID, "jamie@example.com")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("got %d appointments, want 2", len(appts))
	}
	if appts[0].Date != "2025-03-11" || appts[1].Date != "2025-03-12" {
		t.Errorf("not in ascending order: %s, %s", appts[0].Date, appts[1].Date)
	}

	_, err = svc.Find(context.Background(), testBusinessID, "stranger@example.com")
	if !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("got %v, want ErrClientNotFound", err)
	}
}

func TestFindKnownClientNothingUpcoming(t *testing.T) {
	svc, _ := newTestService(t)
	appt := mustBook(t, svc, "2025-03-10", "10:00", "jamie@example.com")
	if _, err := svc.Cancel(context.Background(), testBusinessID, "", appt.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	appts, err := svc.Find(context.Background(), testBusinessID, "jamie@example.com")
	if err != nil {
		t.Fatalf("known client with no upcoming appointments: %v", err)
	}
	if len(appts) != 0 {
		t.Errorf("got %d appointments, want 0", len(appts))
	}
}

func TestUpdateStatus(t *testing.T) {
	svc, _ := newTestService(t)
	appt := mustBook(t, svc, "2025-03-10", "10:00", "jamie@example.com")

	updated, err := svc.UpdateStatus(context.Background(), testBusinessID, appt.ID, model.StatusConfirmed)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != model.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", updated.Status)
	}

	if _, err := svc.UpdateStatus(context.Background(), testBusinessID, appt.ID, model.StatusCancelled); !errors.Is(err, ErrStatusNotAllowed) {
		t.Fatalf("cancel via status change: got %v, want ErrStatusNotAllowed", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), testBusinessID, appt.ID, "archived"); !errors.Is(err, ErrStatusNotAllowed) {
		t.Fatalf("unknown status: got %v, want ErrStatusNotAllowed", err)
	}

	if _, err := svc.Cancel(context.Background(), testBusinessID, "", appt.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), testBusinessID, appt.ID, model.StatusCompleted); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("got %v, want ErrAlreadyCancelled", err)
	}
}

func TestListAppointmentsFilters(t *testing.T) {
	svc, _ := newTestService(t)
	mustBook(t, svc, "2025-03-10", "10:00", "a@example.com")
	b := mustBook(t, svc, "2025-03-11", "10:00", "b@example.com")
	if _, err := svc.Cancel(context.Background(), testBusinessID, "", b.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	all, err := svc.ListAppointments(context.Background(), testBusinessID, "", "")
	if err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d appointments, want 2", len(all))
	}

	byDate, err := svc.ListAppointments(context.Background(), testBusinessID, "2025-03-10", "")
	if err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	if len(byDate) != 1 || byDate[0].Date != "2025-03-10" {
		t.Errorf("date filter returned %+v", byDate)
	}

	cancelledOnly, err := svc.ListAppointments(context.Background(), testBusinessID, "", model.StatusCancelled)
	if err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	if len(cancelledOnly) != 1 || cancelledOnly[0].ID != b.ID {
		t.Errorf("status filter returned %+v", cancelledOnly)
	}

	if _, err := svc.ListAppointments(context.Background(), testBusinessID, "next tuesday", ""); err == nil {
		t.Error("bad date filter accepted")
	}
	if _, err := svc.ListAppointments(context.Background(), testBusinessID, "", "archived"); err == nil {
		t.Error("bad status filter accepted")
	}
}

func TestListClientsSearch(t *testing.T) {
	svc, _ := newTestService(t)
	mustBook(t, svc, "2025-03-10", "10:00", "jamie@example.com")
	if _, err := svc.Book(context.Background(), BookingRequest{
		BusinessID:  testBusinessID,
		Date:        "2025-03-10",
		Time:        "11:00",
		ClientName:  "Sam Reyes",
		ClientEmail: "sam@example.com",
	}); err != nil {
		t.Fatalf("Book: %v", err)
	}

	all, err := svc.ListClients(context.Background(), testBusinessID, "")
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d clients, want 2", len(all))
	}

	matched, err := svc.ListClients(context.Background(), testBusinessID, "sam")
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(matched) != 1 || matched[0].Email != "sam@example.com" {
		t.Errorf("search returned %+v", matched)
	}
}
