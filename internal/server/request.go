package server

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"

	"seatmanager/internal/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *loginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Password, validation.Required),
	)
}

type tablesQuery struct {
	Filter  string `query:"filter"`
	Query   string `query:"q"`
	Page    int    `query:"page"`
	Refresh bool   `query:"refresh"`
}

func (r *tablesQuery) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Filter, validation.In(string(model.FilterAll), string(model.FilterAvailable), string(model.FilterTaken))),
		validation.Field(&r.Query, validation.Length(0, 100)),
		validation.Field(&r.Page, validation.Min(0)),
	)
}

type pageRequest struct {
	Action string `json:"action"`
	Page   int    `json:"page"`
}

func (r *pageRequest) Validate() error {
	if r.Action == "" && r.Page == 0 {
		return validation.Errors{"action": errors.New("action or page is required")}
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.Action, validation.In("next", "prev")),
		validation.Field(&r.Page, validation.Min(0)),
	)
}

type viewModeRequest struct {
	ViewMode string `json:"view_mode"`
}

func (r *viewModeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ViewMode, validation.Required, validation.In(string(model.ViewGrid), string(model.ViewList))),
	)
}

type tableRequest struct {
	TableID string `json:"table_id"`
}

func (r *tableRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.TableID, validation.Required),
	)
}

type seatRequest struct {
	SeatID string `json:"seat_id"`
}

func (r *seatRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.SeatID, validation.Required),
	)
}

type inputRequest struct {
	Text string `json:"text"`
}

func (r *inputRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Text, validation.Length(0, 120)),
	)
}
