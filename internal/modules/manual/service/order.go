package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"

	"aster_bot/internal/models"
)

// Ошибки разбора входящего ордера; тексты уходят клиенту как есть.
var (
	ErrMissingSymbol = errors.New("Missing required field: symbol")
	ErrMissingSide   = errors.New("Missing required field: side")
	ErrInvalidSide   = errors.New("Invalid side, must be LONG or SHORT")
)

// InvalidParamError — поле есть, но значение не годится.
type InvalidParamError struct {
	Field string
	Err   error
}

func (e *InvalidParamError) Error() string {
	return fmt.Sprintf("Invalid parameter: %s: %v", e.Field, e.Err)
}

func (e *InvalidParamError) Unwrap() error { return e.Err }

// orderInput — уже приведённые значения, до проверки диапазонов.
type orderInput struct {
	Symbol            string   `validate:"required,alphanum"`
	Quantity          *float64 `validate:"omitempty,gt=0"`
	Leverage          *int     `validate:"omitempty,min=1,max=125"`
	StopLossPercent   *float64 `validate:"omitempty,gt=0,lt=100"`
	TakeProfitPercent *float64 `validate:"omitempty,gt=0"`
	Note              string   `validate:"max=512"`
}

var validate = validator.New()

// DecodeOrder собирает ManualOrder из JSON-объекта (тело /order, элемент файла, сообщение /ws).
// Числа принимаются и строками; null и 0 — поле не задано, берётся значение по умолчанию.
func DecodeOrder(raw map[string]any, source models.OrderSource, now time.Time) (models.ManualOrder, error) {
	symbol := strings.ToUpper(strings.TrimSpace(cast.ToString(raw["symbol"])))
	if symbol == "" {
		return models.ManualOrder{}, ErrMissingSymbol
	}
	sideRaw, ok := raw["side"]
	if !ok || sideRaw == nil {
		return models.ManualOrder{}, ErrMissingSide
	}
	side := models.ManualSide(strings.ToUpper(strings.TrimSpace(cast.ToString(sideRaw))))
	if !side.Valid() {
		return models.ManualOrder{}, ErrInvalidSide
	}

	in := orderInput{Symbol: symbol, Note: cast.ToString(raw["note"])}
	var err error
	if in.Quantity, err = optFloat(raw, "quantity"); err != nil {
		return models.ManualOrder{}, err
	}
	if in.Leverage, err = optInt(raw, "leverage"); err != nil {
		return models.ManualOrder{}, err
	}
	if in.StopLossPercent, err = optFloat(raw, "stop_loss_percent"); err != nil {
		return models.ManualOrder{}, err
	}
	if in.TakeProfitPercent, err = optFloat(raw, "take_profit_percent"); err != nil {
		return models.ManualOrder{}, err
	}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return models.ManualOrder{}, &InvalidParamError{Field: verrs[0].Field(), Err: fmt.Errorf("failed %q check", verrs[0].Tag())}
		}
		return models.ManualOrder{}, &InvalidParamError{Field: "order", Err: err}
	}

	ts := now
	if v, ok := raw["timestamp"]; ok && v != nil {
		if t, err := cast.ToTimeE(v); err == nil {
			ts = t
		}
	}

	return models.ManualOrder{
		Symbol:            in.Symbol,
		Side:              side,
		Quantity:          in.Quantity,
		Leverage:          in.Leverage,
		StopLossPercent:   in.StopLossPercent,
		TakeProfitPercent: in.TakeProfitPercent,
		Note:              in.Note,
		Source:            source,
		Timestamp:         ts,
	}, nil
}

// EncodeOrder — обратное представление для файла очереди.
func EncodeOrder(o models.ManualOrder) map[string]any {
	m := map[string]any{
		"symbol":    o.Symbol,
		"side":      string(o.Side),
		"source":    string(o.Source),
		"timestamp": o.Timestamp.Format(time.RFC3339),
		"processed": false,
	}
	if o.Quantity != nil {
		m["quantity"] = *o.Quantity
	}
	if o.Leverage != nil {
		m["leverage"] = *o.Leverage
	}
	if o.StopLossPercent != nil {
		m["stop_loss_percent"] = *o.StopLossPercent
	}
	if o.TakeProfitPercent != nil {
		m["take_profit_percent"] = *o.TakeProfitPercent
	}
	if o.Note != "" {
		m["note"] = o.Note
	}
	return m
}

func optFloat(raw map[string]any, key string) (*float64, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, &InvalidParamError{Field: key, Err: err}
	}
	if f == 0 {
		return nil, nil
	}
	return &f, nil
}

func optInt(raw map[string]any, key string) (*int, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, &InvalidParamError{Field: key, Err: err}
	}
	if f == 0 {
		return nil, nil
	}
	if f != float64(int(f)) {
		return nil, &InvalidParamError{Field: key, Err: fmt.Errorf("not an integer: %v", v)}
	}
	i := int(f)
	return &i, nil
}
