package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"symphainy-foundation/internal/errors"
	"symphainy-foundation/internal/observability"
)

// Single-table layout:
//
//	PK                SK                       GSI1PK         GSI1SK
//	TENANT#<id>       META                     TENANTS        <id>
//	TENANT#<id>       MEMBER#<userID>          USER#<userID>  TENANT#<id>
//	TENANT#<id>       AUDIT#<rfc3339nano>#<n>  -              -
const (
	skMeta         = "META"
	skMemberPrefix = "MEMBER#"
	skAuditPrefix  = "AUDIT#"
	gsi1TenantsPK  = "TENANTS"
	gsi1IndexName  = "GSI1"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore is the DynamoDB-backed Store. Per-tenant serialization comes
// from conditional writes; a circuit breaker keeps a degraded backend from
// blocking the caller.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	breaker   *gobreaker.CircuitBreaker
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *observability.Collector
}

// DynamoStoreConfig configures a DynamoStore.
type DynamoStoreConfig struct {
	TableName      string
	CallTimeout    time.Duration
	BreakerTimeout time.Duration

	// Metrics, when set, records per-call counters and latencies.
	Metrics *observability.Collector
}

// NewDynamoStore creates a Store backed by the given DynamoDB table.
func NewDynamoStore(client DynamoAPI, cfg DynamoStoreConfig, logger *zap.Logger) *DynamoStore {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 10 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "tenant-dynamodb",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Constraint violations are caller errors, not backend health.
			if errors.Is(err, errors.KindDuplicateTenant) || errors.Is(err, errors.KindTenantNotFound) {
				return true
			}
			return err == nil
		},
	})
	return &DynamoStore{
		client:    client,
		tableName: cfg.TableName,
		breaker:   cb,
		timeout:   cfg.CallTimeout,
		logger:    logger,
		metrics:   cfg.Metrics,
	}
}

// execute runs one backend call through the breaker with a bounded deadline.
func (s *DynamoStore) execute(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	started := time.Now()
	out, err := s.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return fn(callCtx)
	})
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordStoreOp(op, status, time.Since(started))
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, errors.New(errors.KindUtilityUnavailable, "tenant store rejecting requests").
			WithResource(op).WithCause(err)
	}
	return out, err
}

func tenantPK(tenantID string) string { return "TENANT#" + tenantID }

func (s *DynamoStore) key(tenantID, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func (s *DynamoStore) CreateTenant(ctx context.Context, t *Tenant) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal tenant: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: tenantPK(t.ID)}
	item["SK"] = &types.AttributeValueMemberS{Value: skMeta}
	item["GSI1PK"] = &types.AttributeValueMemberS{Value: gsi1TenantsPK}
	item["GSI1SK"] = &types.AttributeValueMemberS{Value: t.ID}

	_, err = s.execute(ctx, "CreateTenant", func(ctx context.Context) (any, error) {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		})
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, errors.New(errors.KindDuplicateTenant, "tenant %q already exists", t.ID)
		}
		return nil, err
	})
	return err
}

func (s *DynamoStore) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	out, err := s.execute(ctx, "GetTenant", func(ctx context.Context) (any, error) {
		resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.tableName),
			Key:       s.key(tenantID, skMeta),
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Item) == 0 {
			return (*Tenant)(nil), nil
		}
		var t Tenant
		if err := attributevalue.UnmarshalMap(resp.Item, &t); err != nil {
			return nil, fmt.Errorf("unmarshal tenant: %w", err)
		}
		return &t, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Tenant), nil
}

func (s *DynamoStore) UpdateTenant(ctx context.Context, t *Tenant) error {
	features, err := attributevalue.Marshal(t.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	metadata, err := attributevalue.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.execute(ctx, "UpdateTenant", func(ctx context.Context) (any, error) {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(s.tableName),
			Key:                 s.key(t.ID, skMeta),
			ConditionExpression: aws.String("attribute_exists(PK)"),
			UpdateExpression:    aws.String("SET #name = :name, #status = :status, Features = :features, Metadata = :metadata, UpdatedAt = :now"),
			ExpressionAttributeNames: map[string]string{
				"#name":   "Name",
				"#status": "Status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":name":     &types.AttributeValueMemberS{Value: t.Name},
				":status":   &types.AttributeValueMemberS{Value: string(t.Status)},
				":features": features,
				":metadata": metadata,
				":now":      &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
			},
		})
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, errors.New(errors.KindTenantNotFound, "tenant %q not found", t.ID)
		}
		return nil, err
	})
	return err
}

func (s *DynamoStore) DeleteTenant(ctx context.Context, tenantID string) error {
	_, err := s.execute(ctx, "DeleteTenant", func(ctx context.Context) (any, error) {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(s.tableName),
			Key:                 s.key(tenantID, skMeta),
			ConditionExpression: aws.String("attribute_exists(PK) AND #status <> :deleted"),
			UpdateExpression:    aws.String("SET #status = :deleted, UpdatedAt = :now"),
			ExpressionAttributeNames: map[string]string{
				"#status": "Status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":deleted": &types.AttributeValueMemberS{Value: string(StatusDeleted)},
				":now":     &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
			},
		})
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, errors.New(errors.KindTenantNotFound, "tenant %q not found", tenantID)
		}
		return nil, err
	})
	return err
}

func (s *DynamoStore) ListTenants(ctx context.Context) ([]*Tenant, error) {
	out, err := s.execute(ctx, "ListTenants", func(ctx context.Context) (any, error) {
		var tenants []*Tenant
		var startKey map[string]types.AttributeValue
		for {
			resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
				TableName:              aws.String(s.tableName),
				IndexName:              aws.String(gsi1IndexName),
				KeyConditionExpression: aws.String("GSI1PK = :pk"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":pk": &types.AttributeValueMemberS{Value: gsi1TenantsPK},
				},
				ExclusiveStartKey: startKey,
			})
			if err != nil {
				return nil, err
			}
			for _, item := range resp.Items {
				var t Tenant
				if err := attributevalue.UnmarshalMap(item, &t); err != nil {
					return nil, fmt.Errorf("unmarshal tenant: %w", err)
				}
				tenants = append(tenants, &t)
			}
			if resp.LastEvaluatedKey == nil {
				break
			}
			startKey = resp.LastEvaluatedKey
		}
		return tenants, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]*Tenant), nil
}

func (s *DynamoStore) UpsertMembership(ctx context.Context, m *Membership) error {
	cp := *m
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	item, err := attributevalue.MarshalMap(&cp)
	if err != nil {
		return fmt.Errorf("marshal membership: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: tenantPK(m.TenantID)}
	item["SK"] = &types.AttributeValueMemberS{Value: skMemberPrefix + m.UserID}
	item["GSI1PK"] = &types.AttributeValueMemberS{Value: "USER#" + m.UserID}
	item["GSI1SK"] = &types.AttributeValueMemberS{Value: tenantPK(m.TenantID)}

	_, err = s.execute(ctx, "UpsertMembership", func(ctx context.Context) (any, error) {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      item,
		})
		return nil, err
	})
	return err
}

func (s *DynamoStore) RemoveMembership(ctx context.Context, tenantID, userID string) error {
	_, err := s.execute(ctx, "RemoveMembership", func(ctx context.Context) (any, error) {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key:       s.key(tenantID, skMemberPrefix+userID),
		})
		return nil, err
	})
	return err
}

func (s *DynamoStore) GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	out, err := s.execute(ctx, "GetMembership", func(ctx context.Context) (any, error) {
		resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.tableName),
			Key:       s.key(tenantID, skMemberPrefix+userID),
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Item) == 0 {
			return (*Membership)(nil), nil
		}
		var m Membership
		if err := attributevalue.UnmarshalMap(resp.Item, &m); err != nil {
			return nil, fmt.Errorf("unmarshal membership: %w", err)
		}
		return &m, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Membership), nil
}

func (s *DynamoStore) ListMemberships(ctx context.Context, tenantID string) ([]*Membership, error) {
	out, err := s.execute(ctx, "ListMemberships", func(ctx context.Context) (any, error) {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
				":sk": &types.AttributeValueMemberS{Value: skMemberPrefix},
			},
		})
		if err != nil {
			return nil, err
		}
		members := make([]*Membership, 0, len(resp.Items))
		for _, item := range resp.Items {
			var m Membership
			if err := attributevalue.UnmarshalMap(item, &m); err != nil {
				return nil, fmt.Errorf("unmarshal membership: %w", err)
			}
			members = append(members, &m)
		}
		return members, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]*Membership), nil
}

func (s *DynamoStore) ListUserTenants(ctx context.Context, userID string) ([]string, error) {
	out, err := s.execute(ctx, "ListUserTenants", func(ctx context.Context) (any, error) {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String(gsi1IndexName),
			KeyConditionExpression: aws.String("GSI1PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: "USER#" + userID},
			},
		})
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(resp.Items))
		for _, item := range resp.Items {
			var m Membership
			if err := attributevalue.UnmarshalMap(item, &m); err != nil {
				return nil, fmt.Errorf("unmarshal membership: %w", err)
			}
			ids = append(ids, m.TenantID)
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]string), nil
}

func (s *DynamoStore) AppendAudit(ctx context.Context, rec AuditRecord) error {
	item, err := attributevalue.MarshalMap(&rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: tenantPK(rec.TenantID)}
	item["SK"] = &types.AttributeValueMemberS{
		Value: skAuditPrefix + rec.At.UTC().Format(time.RFC3339Nano) + "#" + rec.ID,
	}

	_, err = s.execute(ctx, "AppendAudit", func(ctx context.Context) (any, error) {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      item,
		})
		return nil, err
	})
	return err
}

func (s *DynamoStore) QueryAudit(ctx context.Context, tenantID string, since time.Time) ([]AuditRecord, error) {
	out, err := s.execute(ctx, "QueryAudit", func(ctx context.Context) (any, error) {
		var records []AuditRecord
		var startKey map[string]types.AttributeValue
		for {
			// "AUDIT$" sorts after every "AUDIT#..." key, bounding the range
			// below META and MEMBER# items.
			resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
				TableName:              aws.String(s.tableName),
				KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :lo AND :hi"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":pk": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
					":lo": &types.AttributeValueMemberS{Value: skAuditPrefix + since.UTC().Format(time.RFC3339Nano)},
					":hi": &types.AttributeValueMemberS{Value: "AUDIT$"},
				},
				ExclusiveStartKey: startKey,
			})
			if err != nil {
				return nil, err
			}
			for _, item := range resp.Items {
				var rec AuditRecord
				if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
					return nil, fmt.Errorf("unmarshal audit record: %w", err)
				}
				records = append(records, rec)
			}
			if resp.LastEvaluatedKey == nil {
				break
			}
			startKey = resp.LastEvaluatedKey
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]AuditRecord), nil
}

var _ Store = (*DynamoStore)(nil)
