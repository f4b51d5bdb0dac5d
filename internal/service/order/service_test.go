package order

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/procure/internal/entity"
	"github.com/Additional-Code/procure/internal/identity"
	repo "github.com/Additional-Code/procure/internal/repository/order"
	"github.com/Additional-Code/procure/pkg/errorbank"
)

var numberPattern = regexp.MustCompile(`^ORD-\d{8}-\d{4}$`)

type fakeStore struct {
	mu      sync.Mutex
	seq     int64
	histSeq int64
	orders  map[int64]*entity.Order
	history []*entity.OrderStatusHistory

	// failCreates forces the next N commits to report a duplicate number,
	// simulating a unique-index race.
	failCreates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[int64]*entity.Order)}
}

func (f *fakeStore) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.Deleted() {
		return nil, repo.ErrNotFound
	}
	return copyOrder(order), nil
}

func (f *fakeStore) GetDetailed(ctx context.Context, id int64) (*entity.Order, error) {
	order, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	order.History, _ = f.ListHistory(ctx, id)
	return order, nil
}

func (f *fakeStore) List(ctx context.Context) ([]*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Order
	for _, order := range f.orders {
		if !order.Deleted() {
			out = append(out, copyOrder(order))
		}
	}
	return out, nil
}

func (f *fakeStore) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.orders)), nil
}

func (f *fakeStore) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.OrderNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateWithHistory(ctx context.Context, order *entity.Order, entry *entity.OrderStatusHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates > 0 {
		f.failCreates--
		return repo.ErrDuplicateNumber
	}
	for _, existing := range f.orders {
		if existing.OrderNumber == order.OrderNumber {
			return repo.ErrDuplicateNumber
		}
	}
	f.seq++
	order.ID = f.seq
	for _, item := range order.Items {
		item.OrderID = order.ID
	}
	entry.OrderID = order.ID
	f.orders[order.ID] = copyOrder(order)
	f.appendEntry(entry)
	return nil
}

func (f *fakeStore) Update(ctx context.Context, order *entity.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.orders[order.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if stored.Status == entity.StatusApproved {
		return repo.ErrStatusConflict
	}
	f.orders[order.ID] = copyOrder(order)
	return nil
}

func (f *fakeStore) UpdateWithHistory(ctx context.Context, order *entity.Order, entry *entity.OrderStatusHistory, from entity.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.orders[order.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if stored.Status != from {
		return repo.ErrStatusConflict
	}
	entry.OrderID = order.ID
	f.orders[order.ID] = copyOrder(order)
	f.appendEntry(entry)
	return nil
}

func (f *fakeStore) ListHistory(ctx context.Context, orderID int64) ([]*entity.OrderStatusHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.OrderStatusHistory
	for _, entry := range f.history {
		if entry.OrderID == orderID {
			clone := *entry
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeStore) SoftDelete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.Deleted() {
		return repo.ErrNotFound
	}
	order.DeletedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) Restore(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || !order.Deleted() {
		return repo.ErrNotFound
	}
	order.DeletedAt = time.Time{}
	return nil
}

func (f *fakeStore) appendEntry(entry *entity.OrderStatusHistory) {
	f.histSeq++
	clone := *entry
	clone.ID = f.histSeq
	f.history = append(f.history, &clone)
}

func copyOrder(o *entity.Order) *entity.Order {
	clone := *o
	clone.Items = append([]*entity.OrderItem(nil), o.Items...)
	clone.History = nil
	return &clone
}

type fakeResolver struct {
	users map[int64]*entity.User
}

func (f fakeResolver) Resolve(ctx context.Context, actorID int64) (*entity.User, error) {
	if user, ok := f.users[actorID]; ok {
		return user, nil
	}
	return nil, identity.ErrUnknownActor
}

func newTestService(store Repository) *Service {
	return &Service{
		store: store,
		actors: fakeResolver{users: map[int64]*entity.User{
			1: {ID: 1, Name: "Alice Admin", Email: "alice@example.com"},
			2: {ID: 2, Name: "Bob Buyer", Email: "bob@example.com"},
		}},
		logger:    zap.NewNop(),
		threshold: decimal.RequireFromString("1000.00"),
	}
}

func item(name string, qty int, price string) ItemInput {
	return ItemInput{ProductName: name, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func requireAppError(t *testing.T, err error, kind errorbank.Kind, code string) {
	t.Helper()
	var appErr *errorbank.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, kind, appErr.Kind())
	if code != "" {
		require.Equal(t, code, appErr.Details()["code"])
	}
}

func TestCreateOrder(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		Notes:   "office kit",
		ActorID: 2,
		Items: []ItemInput{
			item("Laptop", 2, "100.00"),
			item("Mouse", 1, "50.00"),
		},
	})
	require.NoError(t, err)
	require.Regexp(t, numberPattern, order.OrderNumber)
	require.Equal(t, entity.StatusDraft, order.Status)
	require.Equal(t, "250.00", order.TotalAmount.StringFixed(2))
	require.Equal(t, int64(2), order.CreatedBy)

	entries, err := store.ListHistory(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Nil(t, entries[0].FromStatus)
	require.Equal(t, entity.StatusDraft, entries[0].ToStatus)
	require.Equal(t, int64(2), entries[0].ChangedBy)
}

func TestCreateGeneratesDistinctNumbers(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		order, err := svc.Create(context.Background(), CreateInput{
			ActorID: 1,
			Items:   []ItemInput{item("Widget", 1, "10.00")},
		})
		require.NoError(t, err)
		require.False(t, seen[order.OrderNumber], "number %s reused", order.OrderNumber)
		seen[order.OrderNumber] = true
	}
}

func TestCreateConcurrentDistinctNumbers(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	// Each racer can lose the commit at most once per order another racer
	// created, so createAttempts goroutines always terminate within budget.
	const racers = createAttempts

	start := make(chan struct{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	numbers := make(map[string]int)
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			<-start
			order, err := svc.Create(context.Background(), CreateInput{
				ActorID: 1,
				Items:   []ItemInput{item("Widget", 1, "10.00")},
			})
			if err != nil {
				errs[slot] = err
				return
			}
			mu.Lock()
			numbers[order.OrderNumber]++
			mu.Unlock()
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, numbers, racers)
	for number, count := range numbers {
		require.Equal(t, 1, count, "number %s assigned more than once", number)
	}
}

func TestConcurrentApproveRejectOneWins(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		ActorID: 2,
		Items:   []ItemInput{item("Server", 1, "1500.00")},
	})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), order.ID, 2)
	require.NoError(t, err)

	start := make(chan struct{})
	var wg sync.WaitGroup
	var approveErr, rejectErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, approveErr = svc.Approve(context.Background(), order.ID, 1, "fine")
	}()
	go func() {
		defer wg.Done()
		<-start
		_, rejectErr = svc.Reject(context.Background(), order.ID, 1, "too expensive")
	}()
	close(start)
	wg.Wait()

	require.True(t, (approveErr == nil) != (rejectErr == nil),
		"exactly one transition must commit: approve=%v reject=%v", approveErr, rejectErr)

	stored, err := store.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	if approveErr == nil {
		require.Equal(t, entity.StatusApproved, stored.Status)
		requireAppError(t, rejectErr, errorbank.KindConflict, "invalid_transition")
	} else {
		require.Equal(t, entity.StatusRejected, stored.Status)
		requireAppError(t, approveErr, errorbank.KindConflict, "invalid_transition")
	}

	entries, err := store.ListHistory(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3, "the losing transition must not reach the ledger")
}

func TestCreateRejectsEmptyItems(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.Create(context.Background(), CreateInput{ActorID: 1})
	requireAppError(t, err, errorbank.KindUnprocessableEntity, "order_empty")
}

func TestCreateUnknownActor(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.Create(context.Background(), CreateInput{
		ActorID: 99,
		Items:   []ItemInput{item("Widget", 1, "10.00")},
	})
	requireAppError(t, err, errorbank.KindBadRequest, "unknown_actor")
}

func TestCreateRetriesOnDuplicateNumber(t *testing.T) {
	store := newFakeStore()
	store.failCreates = 1
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		ActorID: 1,
		Items:   []ItemInput{item("Widget", 1, "10.00")},
	})
	require.NoError(t, err)
	require.Regexp(t, numberPattern, order.OrderNumber)
}

func TestCreateGivesUpAfterRepeatedConflicts(t *testing.T) {
	store := newFakeStore()
	store.failCreates = createAttempts
	svc := newTestService(store)

	_, err := svc.Create(context.Background(), CreateInput{
		ActorID: 1,
		Items:   []ItemInput{item("Widget", 1, "10.00")},
	})
	requireAppError(t, err, errorbank.KindConflict, "order_number_conflict")
}

func TestSubmitBelowThresholdAutoApproves(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		ActorID: 2,
		Items:   []ItemInput{item("Chair", 1, "500.00")},
	})
	require.NoError(t, err)

	order, err = svc.Submit(context.Background(), order.ID, 2)
	require.NoError(t, err)
	require.Equal(t, entity.StatusApproved, order.Status)
	require.NotNil(t, order.ApprovedBy)
	require.Equal(t, int64(2), *order.ApprovedBy)
	require.NotNil(t, order.ApprovedAt)

	entries, err := store.ListHistory(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, entity.StatusDraft, *entries[1].FromStatus)
	require.Equal(t, entity.StatusApproved, entries[1].ToStatus)
}

func TestSubmitAtThresholdRequiresApproval(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		ActorID: 2,
		Items:   []ItemInput{item("Display", 1, "1000.00")},
	})
	require.NoError(t, err)

	order, err = svc.Submit(context.Background(), order.ID, 2)
	require.NoError(t, err)
	require.Equal(t, entity.StatusPendingApproval, order.Status)
	require.Nil(t, order.ApprovedBy)
}

func TestApproveWritesLedgerInOrder(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		ActorID: 2,
		Items:   []ItemInput{item("Server", 1, "1500.00")},
	})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), order.ID, 2)
	require.NoError(t, err)

	order, err = svc.Approve(context.Background(), order.ID, 1, "looks good")
	require.NoError(t, err)
	require.Equal(t, entity.StatusApproved, order.Status)
	require.Equal(t, int64(1), *order.ApprovedBy)

	entries, err := svc.History(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Nil(t, entries[0].FromStatus)
	require.Equal(t, entity.StatusDraft, entries[0].ToStatus)
	require.Equal(t, entity.StatusDraft, *entries[1].FromStatus)
	require.Equal(t, entity.StatusPendingApproval, entries[1].ToStatus)
	require.Equal(t, entity.StatusPendingApproval, *entries[2].FromStatus)
	require.Equal(t, entity.StatusApproved, entries[2].ToStatus)
	require.Equal(t, "looks good", entries[2].Comment)
}

func TestRejectRequiresComment(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		ActorID: 2,
		Items:   []ItemInput{item("Server", 1, "1500.00")},
	})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), order.ID, 2)
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), order.ID, 1, "")
	requireAppError(t, err, errorbank.KindBadRequest, "comment_required")

	stored, err := store.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusPendingApproval, stored.Status)

	entries, err := store.ListHistory(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRejectRecordsComment(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		ActorID: 2,
		Items:   []ItemInput{item("Server", 1, "1500.00")},
	})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), order.ID, 2)
	require.NoError(t, err)

	order, err = svc.Reject(context.Background(), order.ID, 1, "over budget")
	require.NoError(t, err)
	require.Equal(t, entity.StatusRejected, order.Status)

	entries, err := store.ListHistory(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, "over budget", entries[len(entries)-1].Comment)
}

func TestIllegalTransitionLeavesOrderUntouched(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		ActorID: 2,
		Items:   []ItemInput{item("Widget", 1, "10.00")},
	})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), order.ID, 1, "")
	requireAppError(t, err, errorbank.KindConflict, "invalid_transition")

	stored, err := store.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusDraft, stored.Status)

	entries, err := store.ListHistory(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestResubmitIsRejectedAfterApproval(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		ActorID: 2,
		Items:   []ItemInput{item("Chair", 1, "500.00")},
	})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), order.ID, 2)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), order.ID, 2)
	requireAppError(t, err, errorbank.KindConflict, "invalid_transition")
}

func TestUpdateReplacesItemsAndTotal(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		ActorID: 2,
		Items:   []ItemInput{item("Widget", 1, "10.00")},
	})
	require.NoError(t, err)

	order, err = svc.Update(context.Background(), UpdateInput{
		OrderID: order.ID,
		Notes:   "revised",
		ActorID: 2,
		Items: []ItemInput{
			item("Widget", 3, "10.00"),
			item("Gadget", 1, "5.50"),
		},
	})
	require.NoError(t, err)
	require.Equal(t, "35.50", order.TotalAmount.StringFixed(2))
	require.Equal(t, "revised", order.Notes)
	require.Equal(t, entity.StatusDraft, order.Status)

	entries, err := store.ListHistory(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1, "content edits must not extend the ledger")
}

func TestUpdateApprovedOrderFails(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		ActorID: 2,
		Items:   []ItemInput{item("Chair", 1, "500.00")},
	})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), order.ID, 2)
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), UpdateInput{
		OrderID: order.ID,
		ActorID: 2,
		Items:   []ItemInput{item("Chair", 2, "500.00")},
	})
	requireAppError(t, err, errorbank.KindConflict, "order_immutable")
}

func TestRejectedOrderStaysEditable(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		ActorID: 2,
		Items:   []ItemInput{item("Server", 1, "1500.00")},
	})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), order.ID, 2)
	require.NoError(t, err)
	_, err = svc.Reject(context.Background(), order.ID, 1, "too expensive")
	require.NoError(t, err)

	order, err = svc.Update(context.Background(), UpdateInput{
		OrderID: order.ID,
		ActorID: 2,
		Items:   []ItemInput{item("Server", 1, "900.00")},
	})
	require.NoError(t, err)
	require.Equal(t, entity.StatusRejected, order.Status)
	require.Equal(t, "900.00", order.TotalAmount.StringFixed(2))
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.Get(context.Background(), 404)
	requireAppError(t, err, errorbank.KindNotFound, "")
}

func TestDeleteAndRestore(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	order, err := svc.Create(context.Background(), CreateInput{
		ActorID: 2,
		Items:   []ItemInput{item("Widget", 1, "10.00")},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), order.ID))

	_, err = svc.Get(context.Background(), order.ID)
	requireAppError(t, err, errorbank.KindNotFound, "")

	require.NoError(t, svc.Restore(context.Background(), order.ID))

	restored, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, order.OrderNumber, restored.OrderNumber)
}

func TestDeleteMissingOrder(t *testing.T) {
	svc := newTestService(newFakeStore())

	err := svc.Delete(context.Background(), 404)
	requireAppError(t, err, errorbank.KindNotFound, "")
}
