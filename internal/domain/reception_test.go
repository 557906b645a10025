package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

func TestApplyReceptionPromotesSelectedDrafts(t *testing.T) {
	order := makeOrder()
	order.DraftProducts = []domain.DraftProduct{
		{
			ID:   domain.PermanentID(900),
			Name: "Gorra",
			Variants: []domain.DraftSubVariant{
				{Attributes: map[string]string{"Color": "Rojo"}, Quantity: 2, UnitPrice: decimal.NewFromInt(4)},
				{Attributes: map[string]string{"Color": "Azul"}, Quantity: 1, UnitPrice: decimal.NewFromInt(4)},
			},
		},
	}
	revised := decimal.NewFromInt(12)
	at := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	next, err := domain.ApplyReception(order, domain.ReceptionSubmission{
		OrderID:    order.ID,
		Lines:      []domain.ReceivedLine{{LineID: "line-1", Received: 2, RevisedCost: &revised}},
		Promotions: []domain.PromotionResult{{DraftID: domain.PermanentID(900), Kind: domain.ItemDraftProduct, ProductID: 77, VariantIDs: []int64{78, 79}}},
		Notes:      "caja dañada",
		Actor:      domain.Actor{ID: 3, Name: "ana"},
		Total:      decimal.NewFromInt(66),
		ReceivedAt: at,
	}, nil)
	if err != nil {
		t.Fatalf("apply reception: %v", err)
	}

	if next.Status != domain.OrderStatusReceived || next.ReceivedAt == nil || !next.ReceivedAt.Equal(at) {
		t.Fatalf("unexpected status/received_at: %s %v", next.Status, next.ReceivedAt)
	}
	if next.Version != order.Version+1 {
		t.Fatalf("expected version bump, got %d", next.Version)
	}
	if len(next.DraftProducts) != 0 {
		t.Fatalf("promoted draft product must leave the draft list, got %d", len(next.DraftProducts))
	}
	if len(next.DraftVariants) != 1 {
		t.Fatal("unselected draft variant must remain a draft")
	}
	if len(next.Lines) != 3 {
		t.Fatalf("expected original line plus two promoted variants, got %d", len(next.Lines))
	}
	if id, _ := next.Lines[2].VariantID.Permanent(); id != 79 {
		t.Fatalf("expected second promoted variant 79, got %d", id)
	}

	actual := next.Reception.Lines[0]
	if !actual.PriceChanged || actual.ReceivedQty != 2 || !actual.Subtotal.Equal(decimal.NewFromInt(24)) {
		t.Fatalf("unexpected line actual: %+v", actual)
	}
	if order.Lines[0].Quantity != 3 || len(order.Lines) != 1 {
		t.Fatal("original order must not be mutated")
	}
}

func TestApplyReceptionRejectsNonPending(t *testing.T) {
	order := makeOrder()
	order.Status = domain.OrderStatusReceived

	_, err := domain.ApplyReception(order, domain.ReceptionSubmission{OrderID: order.ID}, nil)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestApplyReceptionCollectsErrors(t *testing.T) {
	order := makeOrder()
	zero := decimal.Zero

	_, err := domain.ApplyReception(order, domain.ReceptionSubmission{
		Lines: []domain.ReceivedLine{
			{LineID: "missing", Received: 1},
			{LineID: "line-1", Received: -1, RevisedCost: &zero},
		},
		Promotions: []domain.PromotionResult{{DraftID: domain.TemporaryID("t")}},
	}, nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Fields) != 4 {
		t.Fatalf("expected 4 collected errors, got %v", verr.Fields)
	}
}

func TestApplyReceptionAssignsPermanentIDsToNewItems(t *testing.T) {
	order := makeOrder()
	var issued int64 = 40

	next, err := domain.ApplyReception(order, domain.ReceptionSubmission{
		OrderID: order.ID,
		NewItems: []domain.NewItem{
			{ID: domain.NewTemporaryID(), Name: "Bufanda", Quantity: 1, UnitPrice: decimal.NewFromInt(3)},
			{ID: domain.PermanentID(7), Name: "Guantes", Quantity: 2, UnitPrice: decimal.NewFromInt(2)},
		},
	}, func() (int64, error) {
		issued++
		return issued, nil
	})
	if err != nil {
		t.Fatalf("apply reception: %v", err)
	}

	items := next.Reception.NewItems
	if len(items) != 2 {
		t.Fatalf("expected 2 new items, got %d", len(items))
	}
	for _, item := range items {
		if item.ID.IsTemporary() {
			t.Fatalf("new item %q kept temporary id %s", item.Name, item.ID)
		}
	}
	if id, _ := items[0].ID.Permanent(); id != 41 {
		t.Fatalf("expected issued id 41, got %d", id)
	}
	if id, _ := items[1].ID.Permanent(); id != 7 {
		t.Fatalf("permanent id must be kept, got %d", id)
	}
}

func TestApplyReceptionNewItemIDFailures(t *testing.T) {
	order := makeOrder()
	sub := domain.ReceptionSubmission{
		OrderID:  order.ID,
		NewItems: []domain.NewItem{{ID: domain.NewTemporaryID(), Name: "Bufanda", Quantity: 1}},
	}

	if _, err := domain.ApplyReception(order, sub, nil); !errors.Is(err, domain.ErrTemporaryReference) {
		t.Fatalf("expected ErrTemporaryReference without id source, got %v", err)
	}

	boom := errors.New("sequence unavailable")
	_, err := domain.ApplyReception(order, sub, func() (int64, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected sequence error, got %v", err)
	}
}

func TestResolveActions(t *testing.T) {
	oracle := permissionSet{domain.PermissionReceiveOrder: true, domain.PermissionRegisterItems: true}
	actions := domain.ResolveActions(oracle)
	if !actions.ReceiveOrder || !actions.PromoteDrafts || actions.CreateOrder {
		t.Fatalf("unexpected actions: %+v", actions)
	}
	if domain.ResolveActions(nil) != (domain.AllowedActions{}) {
		t.Fatal("nil oracle must grant nothing")
	}
}

type permissionSet map[string]bool

func (p permissionSet) HasPermission(name string) bool { return p[name] }
