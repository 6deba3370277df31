package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"storico/internal/core"
)

// amount is a decimal that the API sends either as a JSON number or a string.
type amount string

func (a *amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amount(strings.TrimSpace(s))
		return nil
	}
	*a = amount(data)
	return nil
}

// quantity tolerates numbers, numeric strings and null. Anything that is not a
// whole number decodes as 0 and is later skipped by the aggregator.
type quantity int

func (q *quantity) UnmarshalJSON(data []byte) error {
	var s amount
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	n, err := strconv.Atoi(string(s))
	if err != nil {
		*q = 0
		return nil
	}
	*q = quantity(n)
	return nil
}

type lineItemDTO struct {
	ProductID   string   `json:"product_id"`
	ProductName string   `json:"product_name"`
	Quantity    quantity `json:"quantity"`
	UnitPrice   amount   `json:"unit_price" validate:"omitempty,decimal"`
}

type saleDTO struct {
	ID        string        `json:"id" validate:"required,max=128"`
	ClientID  string        `json:"client_id" validate:"omitempty,max=128"`
	CreatedAt string        `json:"created_at" validate:"required,timestamp"`
	Total     amount        `json:"total" validate:"required,decimal"`
	Items     []lineItemDTO `json:"items" validate:"dive"`
}

type envelope struct {
	Data []saleDTO `json:"data"`
}

// Layouts accepted for created_at, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", core.ErrInvalidDate, s)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		_, err := core.ParseDecimalToCents(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("timestamp", func(fl validator.FieldLevel) bool {
		_, err := parseTimestamp(fl.Field().String(), time.UTC)
		return err == nil
	})
	return v
}

// decodeSales accepts either {"data":[...]} or a bare array.
func decodeSales(body []byte) ([]saleDTO, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}
	if body[0] == '[' {
		var list []saleDTO
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// toSale validates a decoded sale and converts it to the domain type. Line
// item quantities are passed through unchanged; the aggregator skips bad ones.
func (c *Client) toSale(dto saleDTO, clientID string) (core.Sale, error) {
	if err := c.validate.Struct(dto); err != nil {
		return core.Sale{}, err
	}
	if dto.ClientID != "" && dto.ClientID != clientID {
		return core.Sale{}, fmt.Errorf("sale belongs to client %q", dto.ClientID)
	}
	createdAt, err := parseTimestamp(dto.CreatedAt, c.location)
	if err != nil {
		return core.Sale{}, err
	}
	total, err := core.ParseDecimalToCents(string(dto.Total))
	if err != nil {
		return core.Sale{}, fmt.Errorf("total: %w", err)
	}

	sale := core.Sale{
		ID:        strings.TrimSpace(dto.ID),
		ClientID:  clientID,
		CreatedAt: createdAt,
		Total:     core.Money{Cents: total},
		Items:     make([]core.LineItem, 0, len(dto.Items)),
	}
	for _, it := range dto.Items {
		var price int64
		if it.UnitPrice != "" {
			price, _ = core.ParseDecimalToCents(string(it.UnitPrice))
		}
		sale.Items = append(sale.Items, core.LineItem{
			ProductID:   strings.TrimSpace(it.ProductID),
			ProductName: strings.TrimSpace(it.ProductName),
			Quantity:    int(it.Quantity),
			UnitPrice:   core.Money{Cents: price},
		})
	}
	return sale, nil
}
