/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/syntrodata/batchstore/errors"
	"github.com/syntrodata/batchstore/registry"
	"github.com/syntrodata/batchstore/storage"
)

const (
	// batchWriteLimit is the DynamoDB BatchWriteItem request ceiling.
	batchWriteLimit = 25

	// unprocessedRetries bounds re-submission of unprocessed batch items.
	unprocessedRetries = 3
)

// Store implements storage.Client on a single DynamoDB table. Keys are
// derived from each model's index map, whose templates use macros expanded
// from record fields (for example "USER#{id}").
type Store struct {
	client       *sdk.Client
	tableName    string
	introspector registry.Introspector
}

var macroPattern = regexp.MustCompile(`{([^}]+)}`)

// New wraps an existing DynamoDB client.
func New(client *sdk.Client, tableName string, introspector registry.Introspector) *Store {
	if introspector == nil {
		introspector = registry.Default{}
	}
	return &Store{client: client, tableName: tableName, introspector: introspector}
}

// NewFromCredentials initializes a DynamoDB client using static AWS
// credentials and wraps it.
func NewFromCredentials(awsAccessKey, awsSecretKey, awsRegion, tableName string) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(awsRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(awsAccessKey, awsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return New(sdk.NewFromConfig(cfg), tableName, nil), nil
}

// Capabilities returns the DynamoDB capability snapshot. Skip-duplicates is
// unsupported because BatchWriteItem carries no condition expressions;
// callers needing duplicate handling go through the conditional
// single-record Create path.
func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		Provider:               "dynamodb",
		SupportsSkipDuplicates: false,
		MaxPlaceholders:        100,
		IDKind:                 storage.IDOpaqueString,
		RecommendedConcurrency: 4,
		SupportsParallelWrites: true,
		TransactionBatchSize:   100,
	}
}

// Create inserts one record with a condition preventing silent overwrite of
// an existing item. A conditional check failure surfaces as a unique
// violation so the batch layer can route it through its duplicate handling.
func (s *Store) Create(ctx context.Context, model string, rec storage.Record) (storage.Record, error) {
	info, err := s.introspector.GetModelInfo(model)
	if err != nil {
		return nil, err
	}

	stored := copyRecord(rec)
	if stored["id"] == nil {
		stored["id"] = uuid.NewString()
	}

	item, err := s.marshalItem(info, stored)
	if err != nil {
		return nil, err
	}

	condition := "attribute_not_exists(PK)"
	_, err = s.client.PutItem(ctx, &sdk.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: &condition,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if stderrors.As(err, &cfe) {
			return nil, errors.NewUniqueViolationError(model, nil, err)
		}
		return nil, fmt.Errorf("PutItem failed: %w", err)
	}
	return stored, nil
}

// CreateMany inserts a batch through BatchWriteItem, re-submitting
// unprocessed items a bounded number of times.
func (s *Store) CreateMany(ctx context.Context, model string, recs []storage.Record, opts storage.CreateManyOptions) (int, error) {
	if opts.SkipDuplicates {
		return 0, errors.NewInvalidArgumentError("opts", "dynamodb batch writes cannot skip duplicates")
	}

	info, err := s.introspector.GetModelInfo(model)
	if err != nil {
		return 0, err
	}

	requests := make([]types.WriteRequest, 0, len(recs))
	for _, rec := range recs {
		stored := copyRecord(rec)
		if stored["id"] == nil {
			stored["id"] = uuid.NewString()
		}
		item, err := s.marshalItem(info, stored)
		if err != nil {
			return 0, err
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}

	if err := s.batchWrite(ctx, requests); err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Update applies a partial patch through an UpdateItem expression.
func (s *Store) Update(ctx context.Context, model string, id any, patch storage.Record) error {
	info, err := s.introspector.GetModelInfo(model)
	if err != nil {
		return err
	}

	key, err := s.keyForID(info, id)
	if err != nil {
		return err
	}

	updateExpr, names, values, err := buildUpdateExpression(patch)
	if err != nil {
		return err
	}

	condition := "attribute_exists(PK)"
	_, err = s.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       key,
		UpdateExpression:          &updateExpr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       &condition,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if stderrors.As(err, &cfe) {
			return errors.NewNotFoundError(model, fmt.Sprintf("%v", id))
		}
		return fmt.Errorf("UpdateItem failed: %w", err)
	}
	return nil
}

// DeleteMany removes keyed items through BatchWriteItem delete requests.
// Only the id field can address DynamoDB deletes; other key fields would
// need a query per key.
func (s *Store) DeleteMany(ctx context.Context, model string, keyField string, keys []any) (int, error) {
	if keyField != "id" {
		return 0, errors.NewInvalidArgumentError("keyField", "dynamodb deletes address items by id only")
	}

	info, err := s.introspector.GetModelInfo(model)
	if err != nil {
		return 0, err
	}

	requests := make([]types.WriteRequest, 0, len(keys))
	for _, id := range keys {
		key, err := s.keyForID(info, id)
		if err != nil {
			return 0, err
		}
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: key},
		})
	}

	if err := s.batchWrite(ctx, requests); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// FindMany scans the table with a filter expression built from the OR
// branches. Constraint lookups are small and bounded by the placeholder
// ceiling, so a filtered scan stays within one request in practice.
func (s *Store) FindMany(ctx context.Context, model string, filter storage.Filter) ([]storage.Record, error) {
	expr, names, values := buildFilterExpression(filter)

	// Consistent reads so classification sees writes from earlier chunks.
	input := &sdk.ScanInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
	}
	if expr != "" {
		input.FilterExpression = &expr
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	var out []storage.Record
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Scan failed: %w", err)
		}
		for _, item := range page.Items {
			rec := storage.Record{}
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal item: %w", err)
			}
			delete(rec, "PK")
			delete(rec, "SK")
			out = append(out, rec)
		}
		if page.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	return out, nil
}

// ExecuteRawStatement runs a PartiQL statement.
func (s *Store) ExecuteRawStatement(ctx context.Context, statement string) (int, error) {
	out, err := s.client.ExecuteStatement(ctx, &sdk.ExecuteStatementInput{
		Statement: &statement,
	})
	if err != nil {
		return 0, fmt.Errorf("ExecuteStatement failed: %w", err)
	}
	return len(out.Items), nil
}

// RunTransaction executes ops in order. DynamoDB transactions cannot wrap
// arbitrary callbacks, so atomicity holds per op, not across the batch; the
// capability snapshot's TransactionBatchSize still bounds sub-batch sizing
// upstream.
func (s *Store) RunTransaction(ctx context.Context, ops []func(ctx context.Context) error, opts storage.TxOptions) error {
	for _, op := range ops {
		if err := op(ctx); err != nil {
			return err
		}
	}
	return nil
}

// AttachRelations appends the references to per-field list attributes on the
// entity item, one UpdateItem covering every relation field.
func (s *Store) AttachRelations(ctx context.Context, model string, id any, relations map[string][]storage.Ref) error {
	if len(relations) == 0 {
		return nil
	}

	info, err := s.introspector.GetModelInfo(model)
	if err != nil {
		return err
	}
	key, err := s.keyForID(info, id)
	if err != nil {
		return err
	}

	setClauses := make([]string, 0, len(relations))
	names := make(map[string]string, len(relations))
	values := map[string]types.AttributeValue{
		":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
	}

	i := 0
	for field, refs := range relations {
		ids := make([]any, 0, len(refs))
		for _, ref := range refs {
			ids = append(ids, ref.ID)
		}
		av, err := attributevalue.Marshal(ids)
		if err != nil {
			return fmt.Errorf("failed to marshal references for %q: %w", field, err)
		}

		namePh := fmt.Sprintf("#r%d", i)
		valuePh := fmt.Sprintf(":r%d", i)
		names[namePh] = field
		values[valuePh] = av
		setClauses = append(setClauses,
			fmt.Sprintf("%s = list_append(if_not_exists(%s, :empty), %s)", namePh, namePh, valuePh))
		i++
	}

	updateExpr := "SET " + strings.Join(setClauses, ", ")
	_, err = s.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       key,
		UpdateExpression:          &updateExpr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("AttachRelations UpdateItem failed: %w", err)
	}
	return nil
}

// batchWrite submits requests in chunks, re-driving unprocessed items.
func (s *Store) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	for start := 0; start < len(requests); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(requests) {
			end = len(requests)
		}
		pending := requests[start:end]

		for attempt := 0; len(pending) > 0; attempt++ {
			out, err := s.client.BatchWriteItem(ctx, &sdk.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{
					s.tableName: pending,
				},
			})
			if err != nil {
				return fmt.Errorf("BatchWriteItem failed: %w", err)
			}
			pending = out.UnprocessedItems[s.tableName]
			if len(pending) > 0 && attempt >= unprocessedRetries {
				return errors.NewTransientError("BatchWriteItem",
					fmt.Errorf("%d items unprocessed after %d attempts", len(pending), attempt+1))
			}
		}
	}
	return nil
}

// marshalItem converts a record to attribute values and injects PK/SK from
// the model's index map.
func (s *Store) marshalItem(info *registry.ModelInfo, rec storage.Record) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	expanded, err := expandMacros(info.IndexMap, rec)
	if err != nil {
		return nil, err
	}
	for k, v := range expanded {
		item[k] = &types.AttributeValueMemberS{Value: v}
	}
	return item, nil
}

// keyForID builds the item key by expanding the index map against the id
// alone.
func (s *Store) keyForID(info *registry.ModelInfo, id any) (map[string]types.AttributeValue, error) {
	expanded, err := expandMacros(info.IndexMap, storage.Record{"id": id})
	if err != nil {
		return nil, err
	}

	pk, hasPK := expanded["PK"]
	sk, hasSK := expanded["SK"]
	if !hasPK || !hasSK || pk == "" || sk == "" {
		return nil, fmt.Errorf("index map for %s missing valid PK or SK", info.Name)
	}
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}, nil
}

// expandMacros replaces {field} macros in each index map template with the
// record's field value rendered as a string.
func expandMacros(indexMap map[string]string, rec storage.Record) (map[string]string, error) {
	if len(indexMap) == 0 {
		return nil, fmt.Errorf("no index map configured")
	}

	res := make(map[string]string, len(indexMap))
	for attr, template := range indexMap {
		expanded := macroPattern.ReplaceAllStringFunc(template, func(macro string) string {
			field := strings.Trim(macro, "{}")
			val, ok := rec[field]
			if !ok || val == nil {
				return ""
			}
			return fmt.Sprintf("%v", val)
		})
		res[attr] = expanded
	}
	return res, nil
}

// buildUpdateExpression transforms a patch into a SET expression with
// placeholder names and marshalled values.
func buildUpdateExpression(patch storage.Record) (string, map[string]string, map[string]types.AttributeValue, error) {
	if len(patch) == 0 {
		return "", nil, nil, errors.NewInvalidArgumentError("patch", "no fields to update")
	}

	setClauses := make([]string, 0, len(patch))
	names := make(map[string]string, len(patch))
	values := make(map[string]types.AttributeValue, len(patch))

	i := 0
	for field, val := range patch {
		namePh := fmt.Sprintf("#f%d", i)
		valuePh := fmt.Sprintf(":v%d", i)

		av, err := attributevalue.Marshal(val)
		if err != nil {
			return "", nil, nil, fmt.Errorf("failed to marshal value for field %q: %w", field, err)
		}
		names[namePh] = field
		values[valuePh] = av
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", namePh, valuePh))
		i++
	}
	return "SET " + strings.Join(setClauses, ", "), names, values, nil
}

// buildFilterExpression renders a Filter as a Scan filter expression.
func buildFilterExpression(filter storage.Filter) (string, map[string]string, map[string]types.AttributeValue) {
	names := make(map[string]string)
	values := make(map[string]types.AttributeValue)

	if filter.In != nil {
		namePh := "#in0"
		names[namePh] = filter.In.Field
		placeholders := make([]string, 0, len(filter.In.Values))
		for i, v := range filter.In.Values {
			valuePh := fmt.Sprintf(":in%d", i)
			av, err := attributevalue.Marshal(v)
			if err != nil {
				continue
			}
			values[valuePh] = av
			placeholders = append(placeholders, valuePh)
		}
		if len(placeholders) == 0 {
			return "", nil, nil
		}
		return fmt.Sprintf("%s IN (%s)", namePh, strings.Join(placeholders, ", ")), names, values
	}

	if len(filter.Or) == 0 {
		return "", nil, nil
	}

	nameIdx := map[string]string{}
	branches := make([]string, 0, len(filter.Or))
	valueCount := 0
	for _, branch := range filter.Or {
		conds := make([]string, 0, len(branch))
		for field, want := range branch {
			namePh, ok := nameIdx[field]
			if !ok {
				namePh = fmt.Sprintf("#n%d", len(nameIdx))
				nameIdx[field] = namePh
				names[namePh] = field
			}
			av, err := attributevalue.Marshal(want)
			if err != nil {
				continue
			}
			valuePh := fmt.Sprintf(":w%d", valueCount)
			valueCount++
			values[valuePh] = av
			conds = append(conds, fmt.Sprintf("%s = %s", namePh, valuePh))
		}
		if len(conds) > 0 {
			branches = append(branches, "("+strings.Join(conds, " AND ")+")")
		}
	}
	if len(branches) == 0 {
		return "", nil, nil
	}
	return strings.Join(branches, " OR "), names, values
}

func copyRecord(rec storage.Record) storage.Record {
	cp := make(storage.Record, len(rec))
	for k, v := range rec {
		cp[k] = v
	}
	return cp
}
