package pipefy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/canectors/fundsync/internal/logger"
	"github.com/canectors/fundsync/pkg/connector"
)

// cardResponseFields is the selection set requested for created cards.
const cardResponseFields = "card { id title }"

// Literal renders v as a GraphQL input literal: object keys are written bare
// and every scalar is JSON-encoded, so strings are quoted and escaped.
//
//	[]FieldAttribute{{"cnpj", "1"}} => [{field_id: "cnpj", field_value: "1"}]
func Literal(v interface{}) (string, error) {
	var b strings.Builder
	if err := writeLiteral(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeLiteral(b *strings.Builder, v interface{}) error {
	switch t := v.(type) {
	case []connector.FieldAttribute:
		b.WriteByte('[')
		for i, attr := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := writeObject(b, []string{"field_id", "field_value"}, map[string]interface{}{
				"field_id":    attr.FieldID,
				"field_value": attr.FieldValue,
			}); err != nil {
				return err
			}
		}
		b.WriteByte(']')
		return nil

	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for key := range t {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return writeObject(b, keys, t)

	case []interface{}:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := writeLiteral(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
		return nil

	case []string:
		items := make([]interface{}, len(t))
		for i, s := range t {
			items[i] = s
		}
		return writeLiteral(b, items)

	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encoding graphql value: %w", err)
		}
		b.Write(encoded)
		return nil
	}
}

func writeObject(b *strings.Builder, keys []string, values map[string]interface{}) error {
	b.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(key)
		b.WriteString(": ")
		if err := writeLiteral(b, values[key]); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

// CreateCardMutation builds the createCard mutation document.
func CreateCardMutation(pipeID string, fields []connector.FieldAttribute, parentIDs []string) (string, error) {
	pipe, err := json.Marshal(pipeID)
	if err != nil {
		return "", fmt.Errorf("encoding pipe id: %w", err)
	}

	attributes, err := Literal(fields)
	if err != nil {
		return "", err
	}

	parents := make([]string, 0, len(parentIDs))
	for _, id := range parentIDs {
		encoded, err := json.Marshal(id)
		if err != nil {
			return "", fmt.Errorf("encoding parent id: %w", err)
		}
		parents = append(parents, string(encoded))
	}

	return fmt.Sprintf(
		"mutation { createCard( input: { pipe_id: %s fields_attributes: %s parent_ids: [ %s ] } ) { %s } }",
		pipe, attributes, strings.Join(parents, ", "), cardResponseFields,
	), nil
}

// CreateCard creates one card in pipeID and returns data.createCard.card.
// A response without a card yields an empty Card and no error; callers
// decide whether a missing identifier is fatal.
func (c *Client) CreateCard(ctx context.Context, pipeID string, fields []connector.FieldAttribute, parentIDs []string) (connector.Card, error) {
	query, err := CreateCardMutation(pipeID, fields, parentIDs)
	if err != nil {
		return connector.Card{}, err
	}

	response, err := c.Do(ctx, query, nil)
	if err != nil {
		return connector.Card{}, err
	}

	card := extractCard(response)
	logger.Debug("createCard completed",
		slog.String("pipe_id", pipeID),
		slog.String("card_id", card.ID),
	)
	return card, nil
}

func extractCard(response map[string]interface{}) connector.Card {
	data, _ := response["data"].(map[string]interface{})
	createCard, _ := data["createCard"].(map[string]interface{})
	card, _ := createCard["card"].(map[string]interface{})
	return connector.Card{
		ID:    scalarString(card["id"]),
		Title: scalarString(card["title"]),
	}
}

// scalarString renders ids that may arrive as strings or numbers.
func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
