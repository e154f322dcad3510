package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/ec-storefront/internal/order"
	"github.com/shopspring/decimal"
)

const (
	dynamoUserIndex   = "gsi1"
	dynamoOutboxIndex = "outbox"
	dynamoOutboxKey   = "PENDING"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoOrderStore
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoOrderStore keeps orders in a single DynamoDB table.
//
//	ORDER#<id>      order with its lines embedded; gsi1pk=USER#<uid> for account orders
//	PROVIDER#<ref>  provider reference -> order id, guards against duplicate refs
//	EVENT#<id>      outbox event; outbox_pk is set until the relay publishes it
type DynamoOrderStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

type dynamoLine struct {
	ItemID    string `dynamodbav:"item_id"`
	Quantity  int    `dynamodbav:"quantity"`
	UnitPrice string `dynamodbav:"unit_price"`
	Subtotal  string `dynamodbav:"subtotal"`
}

type dynamoOrder struct {
	PK          string             `dynamodbav:"pk"`
	OrderID     string             `dynamodbav:"order_id"`
	ProviderRef string             `dynamodbav:"provider_ref,omitempty"`
	UserID      *int64             `dynamodbav:"user_id,omitempty"`
	GuestEmail  *string            `dynamodbav:"guest_email,omitempty"`
	Status      string             `dynamodbav:"status"`
	TotalPrice  string             `dynamodbav:"total_price"`
	Shipping    order.ShippingInfo `dynamodbav:"shipping"`
	Lines       []dynamoLine       `dynamodbav:"lines"`
	CreatedAt   string             `dynamodbav:"created_at"`
	UpdatedAt   string             `dynamodbav:"updated_at"`
	GSI1PK      string             `dynamodbav:"gsi1pk,omitempty"`
}

type dynamoRef struct {
	PK      string `dynamodbav:"pk"`
	OrderID string `dynamodbav:"order_id"`
}

type dynamoOutboxEvent struct {
	PK            string `dynamodbav:"pk"`
	ID            string `dynamodbav:"id"`
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	Data          string `dynamodbav:"data"`
	CreatedAt     string `dynamodbav:"created_at"`
	OutboxPK      string `dynamodbav:"outbox_pk,omitempty"`
}

func NewDynamoOrderStore(client DynamoAPI, tableName string) *DynamoOrderStore {
	return &DynamoOrderStore{client: client, tableName: tableName, now: time.Now}
}

func orderKey(id string) string { return "ORDER#" + id }
func refKey(ref string) string  { return "PROVIDER#" + ref }
func eventKey(id string) string { return "EVENT#" + id }
func userKey(uid int64) string  { return fmt.Sprintf("USER#%d", uid) }

func pkAttr(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: pk}}
}

func toDynamoOrder(o *order.Order) dynamoOrder {
	item := dynamoOrder{
		PK:          orderKey(o.ID),
		OrderID:     o.ID,
		ProviderRef: o.Reference(),
		UserID:      o.UserID,
		GuestEmail:  o.GuestEmail,
		Status:      string(o.Status),
		TotalPrice:  o.TotalPrice.StringFixed(2),
		Shipping:    o.Shipping,
		CreatedAt:   o.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if o.UserID != nil {
		item.GSI1PK = userKey(*o.UserID)
	}
	for _, l := range o.Lines {
		item.Lines = append(item.Lines, dynamoLine{
			ItemID:    l.ItemID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Subtotal:  l.Subtotal.StringFixed(2),
		})
	}
	return item
}

func fromDynamoOrder(item dynamoOrder) (*order.Order, error) {
	total, err := decimal.NewFromString(item.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid total for order %s: %w", item.OrderID, err)
	}
	created, _ := time.Parse(time.RFC3339Nano, item.CreatedAt)
	updated, _ := time.Parse(time.RFC3339Nano, item.UpdatedAt)

	o := &order.Order{
		ID:         item.OrderID,
		UserID:     item.UserID,
		GuestEmail: item.GuestEmail,
		Status:     order.Status(item.Status),
		TotalPrice: total,
		Shipping:   item.Shipping,
		CreatedAt:  created,
		UpdatedAt:  updated,
	}
	if item.ProviderRef != "" {
		ref := item.ProviderRef
		o.ProviderRef = &ref
	}
	for _, l := range item.Lines {
		unit, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return nil, err
		}
		sub, err := decimal.NewFromString(l.Subtotal)
		if err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, order.Line{
			OrderID:   o.ID,
			ItemID:    l.ItemID,
			Quantity:  l.Quantity,
			UnitPrice: unit,
			Subtotal:  sub,
		})
	}
	return o, nil
}

func (s *DynamoOrderStore) eventPut(ev order.Event) (types.TransactWriteItem, error) {
	av, err := attributevalue.MarshalMap(dynamoOutboxEvent{
		PK:            eventKey(ev.ID),
		ID:            ev.ID,
		AggregateID:   ev.AggregateID,
		AggregateType: ev.AggregateType,
		EventType:     ev.EventType,
		Data:          string(ev.Data),
		CreatedAt:     ev.Timestamp.UTC().Format(time.RFC3339Nano),
		OutboxPK:      dynamoOutboxKey,
	})
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return types.TransactWriteItem{Put: &types.Put{TableName: aws.String(s.tableName), Item: av}}, nil
}

// conditionFailed reports whether the transaction was cancelled by a failed
// condition on the item at index i.
func conditionFailed(err error, i int) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) || i >= len(tce.CancellationReasons) {
		return false
	}
	return aws.ToString(tce.CancellationReasons[i].Code) == "ConditionalCheckFailed"
}

// Create writes the order, its provider reference guard and the OrderPlaced
// event in one TransactWriteItems call.
func (s *DynamoOrderStore) Create(ctx context.Context, o *order.Order) error {
	ev, err := order.PlacedEvent(o)
	if err != nil {
		return err
	}

	orderAV, err := attributevalue.MarshalMap(toDynamoOrder(o))
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	evPut, err := s.eventPut(ev)
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(s.tableName),
			Item:                orderAV,
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		},
	}}
	if ref := o.Reference(); ref != "" {
		refAV, err := attributevalue.MarshalMap(dynamoRef{PK: refKey(ref), OrderID: o.ID})
		if err != nil {
			return fmt.Errorf("failed to marshal provider ref: %w", err)
		}
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName:           aws.String(s.tableName),
			Item:                refAV,
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		}})
	}
	items = append(items, evPut)

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		if o.Reference() != "" && conditionFailed(err, 1) {
			return order.ErrDuplicateReference
		}
		return fmt.Errorf("failed to write order: %w", err)
	}
	return nil
}

func (s *DynamoOrderStore) FindByID(ctx context.Context, id string) (*order.Order, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            pkAttr(orderKey(id)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, order.ErrOrderNotFound
	}

	var item dynamoOrder
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return fromDynamoOrder(item)
}

func (s *DynamoOrderStore) resolveRef(ctx context.Context, ref string) (string, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            pkAttr(refKey(ref)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get provider ref: %w", err)
	}
	if len(out.Item) == 0 {
		return "", order.ErrOrderNotFound
	}
	var item dynamoRef
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", err
	}
	return item.OrderID, nil
}

func (s *DynamoOrderStore) FindByProviderRef(ctx context.Context, ref string) (*order.Order, error) {
	id, err := s.resolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

// transition conditionally moves an order from one status to another and
// records ev alongside. It returns false when the condition did not hold.
func (s *DynamoOrderStore) transition(ctx context.Context, id string, from, to order.Status, now time.Time, ev order.Event) (bool, error) {
	evPut, err := s.eventPut(ev)
	if err != nil {
		return false, err
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName:           aws.String(s.tableName),
					Key:                 pkAttr(orderKey(id)),
					UpdateExpression:    aws.String("SET #s = :to, updated_at = :now"),
					ConditionExpression: aws.String("#s = :from"),
					ExpressionAttributeNames: map[string]string{
						"#s": "status",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":to":   &types.AttributeValueMemberS{Value: string(to)},
						":from": &types.AttributeValueMemberS{Value: string(from)},
						":now":  &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
					},
				},
			},
			evPut,
		},
	})
	if err != nil {
		if conditionFailed(err, 0) {
			return false, nil
		}
		return false, fmt.Errorf("failed to update order %s: %w", id, err)
	}
	return true, nil
}

func (s *DynamoOrderStore) MarkProcessing(ctx context.Context, ref string) (*order.Order, bool, error) {
	o, err := s.FindByProviderRef(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	if o.Status != order.StatusPending {
		return o, false, nil
	}

	now := s.now()
	o.Status = order.StatusProcessing
	o.UpdatedAt = now
	ev, err := order.PaidEvent(o, now)
	if err != nil {
		return nil, false, err
	}

	changed, err := s.transition(ctx, o.ID, order.StatusPending, order.StatusProcessing, now, ev)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		// lost a race with another capture of the same order
		current, err := s.FindByID(ctx, o.ID)
		return current, false, err
	}
	return o, true, nil
}

func (s *DynamoOrderStore) UpdateStatus(ctx context.Context, id string, to order.Status) (*order.Order, error) {
	o, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if err := order.ValidateAdminTransition(from, to); err != nil {
		return nil, err
	}

	now := s.now()
	ev, err := order.StatusChangedEvent(id, from, to, now)
	if err != nil {
		return nil, err
	}
	changed, err := s.transition(ctx, id, from, to, now, ev)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("%w: order %s changed concurrently", order.ErrInvalidStatus, id)
	}

	o.Status = to
	o.UpdatedAt = now
	return o, nil
}

func (s *DynamoOrderStore) ListByUser(ctx context.Context, userID int64) ([]*order.Order, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(dynamoUserIndex),
		KeyConditionExpression: aws.String("gsi1pk = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userKey(userID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query user orders: %w", err)
	}

	orders, err := s.unmarshalOrders(out.Items)
	if err != nil {
		return nil, err
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (s *DynamoOrderStore) ListStalePending(ctx context.Context, cutoff time.Time) ([]*order.Order, error) {
	var (
		items []map[string]types.AttributeValue
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.tableName),
			FilterExpression: aws.String("begins_with(pk, :p) AND #s = :pending AND created_at < :cutoff"),
			ExpressionAttributeNames: map[string]string{
				"#s": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":p":       &types.AttributeValueMemberS{Value: "ORDER#"},
				":pending": &types.AttributeValueMemberS{Value: string(order.StatusPending)},
				":cutoff":  &types.AttributeValueMemberS{Value: cutoff.UTC().Format(time.RFC3339Nano)},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending orders: %w", err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	return s.unmarshalOrders(items)
}

func (s *DynamoOrderStore) unmarshalOrders(items []map[string]types.AttributeValue) ([]*order.Order, error) {
	var raw []dynamoOrder
	if err := attributevalue.UnmarshalListOfMaps(items, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal orders: %w", err)
	}
	orders := make([]*order.Order, 0, len(raw))
	for _, item := range raw {
		o, err := fromDynamoOrder(item)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// FetchUnpublished reads the sparse outbox index, oldest first
func (s *DynamoOrderStore) FetchUnpublished(ctx context.Context, limit int) ([]order.Event, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(dynamoOutboxIndex),
		KeyConditionExpression: aws.String("outbox_pk = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: dynamoOutboxKey},
		},
		ScanIndexForward: aws.Bool(true),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}

	var raw []dynamoOutboxEvent
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &raw); err != nil {
		return nil, err
	}
	events := make([]order.Event, 0, len(raw))
	for _, r := range raw {
		ts, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
		events = append(events, order.Event{
			ID:            r.ID,
			AggregateID:   r.AggregateID,
			AggregateType: r.AggregateType,
			EventType:     r.EventType,
			Data:          []byte(r.Data),
			Timestamp:     ts,
		})
	}
	return events, nil
}

// MarkPublished drops the event from the outbox index
func (s *DynamoOrderStore) MarkPublished(ctx context.Context, eventID string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              pkAttr(eventKey(eventID)),
		UpdateExpression: aws.String("REMOVE outbox_pk SET published_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339Nano)},
		},
	})
	return err
}
