package mirror

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/matrix-tang/ex-rs/internal/model"
	"github.com/matrix-tang/ex-rs/pkg/exception"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const saveBatchSize = 500

// PriceRecord is one persisted PriceState: symbol -> JSON value.
type PriceRecord struct {
	Symbol    string `gorm:"column:symbol;primaryKey;size:64"`
	Value     string `gorm:"column:value;type:text;not null"`
	EventTime int64  `gorm:"column:event_time;not null;default:0"`
}

func (PriceRecord) TableName() string {
	return "price_states"
}

// PriceStore keeps PriceState rows in a SQL table.
type PriceStore struct {
	db *gorm.DB
}

// NewPriceStore migrates the price table and returns a store on top of db.
func NewPriceStore(db *gorm.DB) (*PriceStore, error) {
	if db == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "new price store")
	}
	if err := db.AutoMigrate(&PriceRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate price_states")
	}
	return &PriceStore{db: db}, nil
}

// Save upserts the given records.
func (s *PriceStore) Save(ctx context.Context, prices map[string]model.PriceState) error {
	if len(prices) == 0 {
		return nil
	}

	records := make([]PriceRecord, 0, len(prices))
	for symbol, p := range prices {
		value, err := sonic.Marshal(p)
		if err != nil {
			return errors.Wrap(err, "marshal price state").With("symbol", symbol)
		}
		records = append(records, PriceRecord{
			Symbol:    symbol,
			Value:     string(value),
			EventTime: p.UpdatedAt,
		})
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "event_time"}),
		}).
		CreateInBatches(records, saveBatchSize).Error
	if err != nil {
		return errors.Wrap(err, "upsert price_states").With("rows", len(records))
	}
	return nil
}

// Load reads every persisted record. Rows that fail to decode are skipped.
func (s *PriceStore) Load(ctx context.Context) (map[string]model.PriceState, error) {
	var records []PriceRecord
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "select price_states")
	}

	result := make(map[string]model.PriceState, len(records))
	for _, r := range records {
		p, err := r.decode()
		if err != nil {
			continue
		}
		result[r.Symbol] = p
	}
	return result, nil
}

func (r PriceRecord) decode() (model.PriceState, error) {
	var p model.PriceState
	if err := sonic.UnmarshalString(r.Value, &p); err != nil {
		return model.PriceState{}, errors.Wrap(err, "unmarshal price state").With("symbol", r.Symbol)
	}
	price, err := decimal.New(string(p.Price))
	if err != nil {
		return model.PriceState{}, errors.Wrap(err, "parse price").With("symbol", r.Symbol)
	}
	p.Price = price
	return p, nil
}
