package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"flanner/internal/domain"
)

const (
	pkRecipes     = "CATALOG#recipes"
	pkIngredients = "CATALOG#ingredients"
	skPrefixItem  = "ITEM#"
	skState       = "STATE#"
	skLock        = "LOCK#"
	// skTimeLayout keeps every timestamp the same width so keys sort by time.
	skTimeLayout = "2006-01-02T15:04:05.000000000Z"
	stateTTL     = 30 * 24 * time.Hour // 30-day TTL

	// maxTransactItems is the DynamoDB limit for TransactWriteItems.
	maxTransactItems = 100
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores the recipe and ingredient collections in one DynamoDB table.
// Each collection lives under its own partition key and is read back in
// insertion order.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// itemSK orders items by insertion time, then by position within one batch.
func itemSK(ts time.Time, pos int) string {
	return fmt.Sprintf("%s%s#%04d#%s", skPrefixItem, ts.UTC().Format(skTimeLayout), pos, uuid.NewString())
}

// InsertRecipes writes all recipes in a single transaction.
func (c *Client) InsertRecipes(ctx context.Context, recipes []domain.Recipe) error {
	items := make([]map[string]types.AttributeValue, 0, len(recipes))
	for _, r := range recipes {
		items = append(items, recipeItem(r))
	}
	if err := c.insertAll(ctx, pkRecipes, items); err != nil {
		return fmt.Errorf("repository: InsertRecipes: %w", err)
	}
	return nil
}

// InsertIngredients writes all ingredients in a single transaction.
func (c *Client) InsertIngredients(ctx context.Context, ingredients []domain.Ingredient) error {
	items := make([]map[string]types.AttributeValue, 0, len(ingredients))
	for _, ing := range ingredients {
		items = append(items, ingredientItem(ing))
	}
	if err := c.insertAll(ctx, pkIngredients, items); err != nil {
		return fmt.Errorf("repository: InsertIngredients: %w", err)
	}
	return nil
}

func (c *Client) insertAll(ctx context.Context, pk string, items []map[string]types.AttributeValue) error {
	if len(items) == 0 {
		return nil
	}
	if len(items) > maxTransactItems {
		return fmt.Errorf("%d items exceed the transaction limit of %d", len(items), maxTransactItems)
	}
	now := c.now()
	tx := make([]types.TransactWriteItem, 0, len(items))
	for i, item := range items {
		item["PK"] = &types.AttributeValueMemberS{Value: pk}
		item["SK"] = &types.AttributeValueMemberS{Value: itemSK(now, i)}
		item["createdAt"] = &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)}
		tx = append(tx, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(c.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			},
		})
	}
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: tx})
	return err
}

// FindRecipes returns every stored recipe in insertion order.
func (c *Client) FindRecipes(ctx context.Context) ([]domain.Recipe, error) {
	items, err := c.queryAll(ctx, pkRecipes)
	if err != nil {
		return nil, fmt.Errorf("repository: FindRecipes query: %w", err)
	}
	out := make([]domain.Recipe, 0, len(items))
	for _, item := range items {
		r, err := itemToRecipe(item)
		if err != nil {
			return nil, fmt.Errorf("repository: FindRecipes unmarshal: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// FindIngredients returns every stored ingredient in insertion order.
func (c *Client) FindIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	items, err := c.queryAll(ctx, pkIngredients)
	if err != nil {
		return nil, fmt.Errorf("repository: FindIngredients query: %w", err)
	}
	out := make([]domain.Ingredient, 0, len(items))
	for _, item := range items {
		ing, err := itemToIngredient(item)
		if err != nil {
			return nil, fmt.Errorf("repository: FindIngredients unmarshal: %w", err)
		}
		out = append(out, ing)
	}
	return out, nil
}

func (c *Client) queryAll(ctx context.Context, pk string) ([]map[string]types.AttributeValue, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: pk},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixItem},
		},
		ScanIndexForward: aws.Bool(true),
	}
	var items []map[string]types.AttributeValue
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// ChatStateStore keeps dialogue state in DynamoDB so several processes can
// serve the same chats.
type ChatStateStore struct {
	c *Client
}

func NewChatStateStore(api dynamodbAPI, tableName string) (*ChatStateStore, error) {
	c, err := New(api, tableName)
	if err != nil {
		return nil, err
	}
	return &ChatStateStore{c: c}, nil
}

// chatPK returns the DynamoDB partition key for a chat.
func chatPK(chatID int64) string {
	return "CHAT#" + strconv.FormatInt(chatID, 10)
}

// Get returns the stored conversation, or a fresh one when none exists.
func (s *ChatStateStore) Get(ctx context.Context, chatID int64) (domain.Conversation, error) {
	out, err := s.c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: chatPK(chatID)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetState get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.NewConversation(chatID, s.c.now()), nil
	}
	conv, err := itemToConversation(chatID, out.Item)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetState decode: %w", err)
	}
	return conv, nil
}

// Set records the conversation state, keeping the first creation time.
func (s *ChatStateStore) Set(ctx context.Context, chatID int64, st domain.State) error {
	if !st.Valid() {
		return fmt.Errorf("repository: SetState: invalid state %q", st)
	}
	now := s.c.now().UTC()
	_, err := s.c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: chatPK(chatID)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
		UpdateExpression: aws.String("SET #state = :state, lastActive = :now, createdAt = if_not_exists(createdAt, :now), #ttl = :ttl"),
		ExpressionAttributeNames: map[string]string{
			"#state": "state",
			"#ttl":   "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":state": &types.AttributeValueMemberS{Value: string(st)},
			":now":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(stateTTL).Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SetState: %w", err)
	}
	return nil
}

// ErrChatLocked is returned by Lock while another worker holds the chat.
var ErrChatLocked = errors.New("repository: chat is locked by another worker")

// Lock takes a lease on chatID for owner. It succeeds when the chat is free,
// the previous lease has expired, or owner already holds it.
func (s *ChatStateStore) Lock(ctx context.Context, chatID int64, owner string, lease time.Duration) error {
	if strings.TrimSpace(owner) == "" {
		return errors.New("repository: Lock: owner must not be empty")
	}
	if lease <= 0 {
		return errors.New("repository: Lock: lease must be positive")
	}
	now := s.c.now().UTC()
	expires := now.Add(lease)
	_, err := s.c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: chatPK(chatID)},
			"SK": &types.AttributeValueMemberS{Value: skLock},
		},
		UpdateExpression:    aws.String("SET #owner = :owner, expiresAt = :exp, #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_not_exists(PK) OR expiresAt < :now OR #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "owner",
			"#ttl":   "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
			":exp":   &types.AttributeValueMemberN{Value: strconv.FormatInt(expires.UnixMilli(), 10)},
			":now":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
			":ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(expires.Add(time.Hour).Unix(), 10)},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrChatLocked
	}
	if err != nil {
		return fmt.Errorf("repository: Lock: %w", err)
	}
	return nil
}

// Unlock releases owner's lease. A lease already taken over by another
// worker is left alone.
func (s *ChatStateStore) Unlock(ctx context.Context, chatID int64, owner string) error {
	_, err := s.c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: chatPK(chatID)},
			"SK": &types.AttributeValueMemberS{Value: skLock},
		},
		ConditionExpression:      aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{"#owner": "owner"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("repository: Unlock: %w", err)
	}
	return nil
}

func recipeItem(r domain.Recipe) map[string]types.AttributeValue {
	ings := make([]types.AttributeValue, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		ings = append(ings, &types.AttributeValueMemberM{Value: ingredientItem(ing)})
	}
	return map[string]types.AttributeValue{
		"name":        &types.AttributeValueMemberS{Value: r.Name},
		"ingredients": &types.AttributeValueMemberL{Value: ings},
	}
}

func ingredientItem(ing domain.Ingredient) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"name": &types.AttributeValueMemberS{Value: ing.Name},
	}
	if ing.Amount != nil {
		item["amount"] = &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"unit":  &types.AttributeValueMemberS{Value: string(ing.Amount.Unit)},
			"value": &types.AttributeValueMemberN{Value: strconv.FormatUint(ing.Amount.Value, 10)},
		}}
	}
	return item
}

func itemToRecipe(item map[string]types.AttributeValue) (domain.Recipe, error) {
	name, err := strAttr(item, "name")
	if err != nil {
		return domain.Recipe{}, err
	}
	r := domain.Recipe{Name: name, Ingredients: []domain.Ingredient{}}
	raw, ok := item["ingredients"]
	if !ok {
		return r, nil
	}
	list, ok := raw.(*types.AttributeValueMemberL)
	if !ok {
		return domain.Recipe{}, errors.New("repository: attribute \"ingredients\" is not a list")
	}
	for _, v := range list.Value {
		m, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return domain.Recipe{}, errors.New("repository: ingredient entry is not a map")
		}
		ing, err := itemToIngredient(m.Value)
		if err != nil {
			return domain.Recipe{}, err
		}
		r.Ingredients = append(r.Ingredients, ing)
	}
	return r, nil
}

func itemToIngredient(item map[string]types.AttributeValue) (domain.Ingredient, error) {
	name, err := strAttr(item, "name")
	if err != nil {
		return domain.Ingredient{}, err
	}
	ing := domain.Ingredient{Name: name}
	raw, ok := item["amount"]
	if !ok {
		return ing, nil
	}
	m, ok := raw.(*types.AttributeValueMemberM)
	if !ok {
		return domain.Ingredient{}, errors.New("repository: attribute \"amount\" is not a map")
	}
	unit, _ := strAttr(m.Value, "unit") // missing unit decodes as count
	value, err := uintAttr(m.Value, "value")
	if err != nil {
		return domain.Ingredient{}, err
	}
	ing.Amount = &domain.Amount{Unit: domain.ParseUnit(unit), Value: value}
	return ing, nil
}

func itemToConversation(chatID int64, item map[string]types.AttributeValue) (domain.Conversation, error) {
	st, err := strAttr(item, "state")
	if err != nil {
		return domain.Conversation{}, err
	}
	conv := domain.Conversation{ChatID: chatID, State: domain.State(st)}
	if !conv.State.Valid() {
		conv.State = domain.StateStart
	}
	if v, err := strAttr(item, "createdAt"); err == nil {
		conv.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v, err := strAttr(item, "lastActive"); err == nil {
		conv.LastActiveAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return conv, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func uintAttr(item map[string]types.AttributeValue, key string) (uint64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseUint(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
