package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/piescrow/piescrow-backend/internal/comments"
	"github.com/piescrow/piescrow-backend/internal/notifications"
	"github.com/piescrow/piescrow-backend/pkg/config"
	"github.com/piescrow/piescrow-backend/pkg/db/models"
	"github.com/piescrow/piescrow-backend/pkg/enums"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
	"github.com/piescrow/piescrow-backend/pkg/logger"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeRepository struct {
	orders   map[string]*models.Order
	createFn func(ctx context.Context, order *models.Order) error
}

func newFakeRepository(orders ...*models.Order) *fakeRepository {
	repo := &fakeRepository{orders: map[string]*models.Order{}}
	for _, o := range orders {
		repo.orders[o.OrderNo] = o
	}
	return repo
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, order *models.Order) error {
	if f.createFn != nil {
		return f.createFn(ctx, order)
	}
	if _, exists := f.orders[order.OrderNo]; exists {
		return errors.New(`duplicate key value violates unique constraint "orders_order_no_key"`)
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	f.orders[order.OrderNo] = order
	return nil
}

func (f *fakeRepository) FindByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	if order, ok := f.orders[orderNo]; ok {
		return order, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	for _, o := range f.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (f *fakeRepository) FindByU2APaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	for _, o := range f.orders {
		if o.U2APaymentID != nil && *o.U2APaymentID == paymentID {
			return o, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (f *fakeRepository) Save(ctx context.Context, order *models.Order) error {
	f.orders[order.OrderNo] = order
	return nil
}

func (f *fakeRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	for _, o := range f.orders {
		if o.SenderID == userID || o.ReceiverID == userID {
			rows = append(rows, *o)
		}
	}
	return rows, nil
}

func (f *fakeRepository) MarkReleased(ctx context.Context, ids []uuid.UUID, a2uPaymentID string, completedAt time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeRepository) ExpireStaleBefore(ctx context.Context, statuses []enums.OrderStatus, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeSequence struct {
	numbers []string
	calls   int
}

func (f *fakeSequence) NextOrderNo(ctx context.Context, tx *gorm.DB) (string, error) {
	if f.calls >= len(f.numbers) {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "sequence exhausted")
	}
	no := f.numbers[f.calls]
	f.calls++
	return no, nil
}

type fakeComments struct {
	added []comments.AddParams
	fail  bool
}

func (f *fakeComments) Add(ctx context.Context, tx *gorm.DB, params comments.AddParams) (*models.Comment, error) {
	if f.fail {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "comment insert failed")
	}
	f.added = append(f.added, params)
	return &models.Comment{ID: uuid.New(), OrderID: params.OrderID, OrderNo: params.OrderNo, Body: params.Body, Author: params.Author}, nil
}

func (f *fakeComments) ListByOrderNo(ctx context.Context, orderNo string) ([]models.Comment, error) {
	var rows []models.Comment
	for _, p := range f.added {
		if p.OrderNo == orderNo {
			rows = append(rows, models.Comment{OrderNo: p.OrderNo, Body: p.Body, Author: p.Author})
		}
	}
	return rows, nil
}

type fakeNotifier struct {
	notices []string
	targets []string
}

func (f *fakeNotifier) Notify(ctx context.Context, piUID, reason string) {
	f.targets = append(f.targets, piUID)
	f.notices = append(f.notices, reason)
}

func (f *fakeNotifier) Add(ctx context.Context, piUID, reason string) (*models.Notification, error) {
	f.Notify(ctx, piUID, reason)
	return &models.Notification{PiUID: piUID, Reason: reason}, nil
}

func (f *fakeNotifier) List(ctx context.Context, params notifications.ListParams) ([]models.Notification, error) {
	return nil, nil
}

func (f *fakeNotifier) ToggleStatus(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	return nil, nil
}

func (f *fakeNotifier) PurgeCleared(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
}

type testEnv struct {
	svc      Service
	repo     *fakeRepository
	seq      *fakeSequence
	comments *fakeComments
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T, orders ...*models.Order) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     newFakeRepository(orders...),
		seq:      &fakeSequence{numbers: []string{"ORD-20260226-00001", "ORD-20260226-00002", "ORD-20260226-00003"}},
		comments: &fakeComments{},
		notifier: &fakeNotifier{},
	}
	svc, err := NewService(ServiceParams{
		Tx:       fakeTxRunner{},
		Repo:     env.repo,
		Sequence: env.seq,
		Comments: env.comments,
		Notifier: env.notifier,
		Config:   config.OrdersConfig{CreateAttempts: 3},
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	env.svc = svc
	return env
}

func testUsers() (*models.User, *models.User) {
	sender := &models.User{ID: uuid.New(), PiUID: "uid-sender", PiUsername: "alice"}
	receiver := &models.User{ID: uuid.New(), PiUID: "uid-receiver", PiUsername: "bob"}
	return sender, receiver
}

func testOrder(sender, receiver *models.User, status enums.OrderStatus) *models.Order {
	return &models.Order{
		ID:               uuid.New(),
		OrderNo:          "ORD-20260226-00042",
		SenderID:         sender.ID,
		ReceiverID:       receiver.ID,
		SenderPiUID:      sender.PiUID,
		ReceiverPiUID:    receiver.PiUID,
		SenderUsername:   sender.PiUsername,
		ReceiverUsername: receiver.PiUsername,
		Amount:           decimal.NewFromInt(10),
		Status:           status,
	}
}

func TestCreate_PersistsOrderWithInitiatedComment(t *testing.T) {
	env := newTestEnv(t)
	sender, receiver := testUsers()

	orderNo, err := env.svc.Create(context.Background(), CreateParams{
		Sender:   sender,
		Receiver: receiver,
		Amount:   decimal.NewFromInt(10),
		Actor:    Actor{PiUID: sender.PiUID, Username: sender.PiUsername},
		Comment:  "for the rug",
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if orderNo != "ORD-20260226-00001" {
		t.Fatalf("unexpected order number %q", orderNo)
	}

	order := env.repo.orders[orderNo]
	if order == nil || order.Status != enums.OrderStatusInitiated {
		t.Fatalf("order not persisted as initiated: %+v", order)
	}
	if len(env.comments.added) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(env.comments.added))
	}
	want := "alice has initiated a new payment.\nfor the rug"
	if env.comments.added[0].Body != want {
		t.Fatalf("unexpected comment body %q", env.comments.added[0].Body)
	}
	if len(env.notifier.targets) != 1 || env.notifier.targets[0] != receiver.PiUID {
		t.Fatalf("expected counterparty notification, got %v", env.notifier.targets)
	}
}

func TestCreate_RetriesOrderNumberCollision(t *testing.T) {
	env := newTestEnv(t)
	sender, receiver := testUsers()

	// First allocation collides with a pre-existing order.
	existing := testOrder(sender, receiver, enums.OrderStatusInitiated)
	existing.OrderNo = "ORD-20260226-00001"
	env.repo.orders[existing.OrderNo] = existing

	orderNo, err := env.svc.Create(context.Background(), CreateParams{
		Sender:   sender,
		Receiver: receiver,
		Amount:   decimal.NewFromInt(5),
		Actor:    Actor{PiUID: sender.PiUID, Username: sender.PiUsername},
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if orderNo != "ORD-20260226-00002" {
		t.Fatalf("expected fresh number on retry, got %q", orderNo)
	}
	if env.seq.calls != 2 {
		t.Fatalf("expected 2 allocations, got %d", env.seq.calls)
	}
}

func TestCreate_ExhaustsRetries(t *testing.T) {
	env := newTestEnv(t)
	sender, receiver := testUsers()
	env.repo.createFn = func(ctx context.Context, order *models.Order) error {
		return errors.New("UNIQUE constraint failed: orders.order_no")
	}

	_, err := env.svc.Create(context.Background(), CreateParams{
		Sender:   sender,
		Receiver: receiver,
		Amount:   decimal.NewFromInt(5),
		Actor:    Actor{PiUID: sender.PiUID},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict after exhaustion, got %v", err)
	}
	if env.seq.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", env.seq.calls)
	}
}

func TestCreate_ValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	sender, receiver := testUsers()

	_, err := env.svc.Create(context.Background(), CreateParams{Sender: sender, Receiver: receiver, Amount: decimal.Zero})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}

	_, err = env.svc.Create(context.Background(), CreateParams{Sender: sender, Receiver: sender, Amount: decimal.NewFromInt(1)})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for same parties, got %v", err)
	}
}

func TestUpdateStatus_RequestedPaidBecomesFulfilled(t *testing.T) {
	sender, receiver := testUsers()
	order := testOrder(sender, receiver, enums.OrderStatusRequested)
	env := newTestEnv(t, order)

	paymentID := "pay_u2a_1"
	paidAt := time.Now().UTC()
	result, err := env.svc.UpdateStatus(context.Background(), UpdateParams{
		OrderNo:         order.OrderNo,
		RequestedStatus: enums.OrderStatusPaid,
		U2APaymentID:    &paymentID,
		U2ACompletedAt:  &paidAt,
	})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if result.Order.Status != enums.OrderStatusFulfilled {
		t.Fatalf("expected fulfilled, got %s", result.Order.Status)
	}
	if result.Order.U2APaymentID == nil || *result.Order.U2APaymentID != paymentID {
		t.Fatal("u2a payment id not applied")
	}
	if len(env.notifier.notices) != 1 {
		t.Fatalf("expected status notification, got %v", env.notifier.notices)
	}
}

func TestUpdateStatus_PassthroughForOtherStates(t *testing.T) {
	sender, receiver := testUsers()
	order := testOrder(sender, receiver, enums.OrderStatusInitiated)
	env := newTestEnv(t, order)

	result, err := env.svc.UpdateStatus(context.Background(), UpdateParams{
		OrderNo:         order.OrderNo,
		RequestedStatus: enums.OrderStatusPaid,
	})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if result.Order.Status != enums.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", result.Order.Status)
	}
	if result.Comment == nil || result.Comment.Body != "System has marked the order as paid." {
		t.Fatalf("unexpected comment %+v", result.Comment)
	}
}

func TestUpdateStatus_RejectsPaymentIDCollision(t *testing.T) {
	sender, receiver := testUsers()
	order := testOrder(sender, receiver, enums.OrderStatusPaid)
	u2a := "pay_same"
	order.U2APaymentID = &u2a
	env := newTestEnv(t, order)

	a2u := "pay_same"
	_, err := env.svc.UpdateStatus(context.Background(), UpdateParams{
		OrderNo:         order.OrderNo,
		RequestedStatus: enums.OrderStatusReleased,
		A2UPaymentID:    &a2u,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for colliding payment ids, got %v", err)
	}
}

func TestUpdateStatus_OrderNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.UpdateStatus(context.Background(), UpdateParams{
		OrderNo:         "ORD-MISSING",
		RequestedStatus: enums.OrderStatusPaid,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveNextStatus(t *testing.T) {
	if got := resolveNextStatus(enums.OrderStatusRequested, enums.OrderStatusPaid); got != enums.OrderStatusFulfilled {
		t.Fatalf("requested+paid should be fulfilled, got %s", got)
	}
	if got := resolveNextStatus(enums.OrderStatusInitiated, enums.OrderStatusPaid); got != enums.OrderStatusPaid {
		t.Fatalf("initiated+paid should stay paid, got %s", got)
	}
	if got := resolveNextStatus(enums.OrderStatusPaid, enums.OrderStatusReleased); got != enums.OrderStatusReleased {
		t.Fatalf("paid+released should stay released, got %s", got)
	}
}

func TestBuildStatusComment_Templates(t *testing.T) {
	cases := []struct {
		status enums.OrderStatus
		actor  string
		want   string
	}{
		{enums.OrderStatusInitiated, "alice", "alice has initiated a new payment."},
		{enums.OrderStatusRequested, "bob", "bob has requested a new payment."},
		{enums.OrderStatusPaid, "alice", "System has marked the order as paid."},
		{enums.OrderStatusReleased, "bob", "System has confirmed this order as completed."},
		{enums.OrderStatusCancelled, "alice", "alice has marked the order as cancelled."},
		{enums.OrderStatusExpired, "", "System has marked the order as expired."},
	}
	for _, tc := range cases {
		if got := buildStatusComment(tc.actor, tc.status, ""); got != tc.want {
			t.Fatalf("status %s: expected %q, got %q", tc.status, tc.want, got)
		}
	}

	withNote := buildStatusComment("alice", enums.OrderStatusRequested, "  please pay soon  ")
	if withNote != "alice has requested a new payment.\nplease pay soon" {
		t.Fatalf("unexpected note concatenation %q", withNote)
	}
}
