package pricing

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

// Sheet is the on-disk price sheet format:
//
//	fallback = "20"
//
//	[crops.wheat]
//	price = "22"
//	[crops.wheat.mandis]
//	M1 = "23.50"
type Sheet struct {
	Fallback string               `toml:"fallback"`
	Crops    map[string]SheetCrop `toml:"crops"`
}

// SheetCrop holds the prices of one crop type.
type SheetCrop struct {
	Price  string            `toml:"price"`
	Mandis map[string]string `toml:"mandis"`
}

// LoadSheet decodes a TOML price sheet from path.
func LoadSheet(path string) (*Sheet, error) {
	var s Sheet
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, fmt.Errorf("decode price sheet %s: %w", path, err)
	}
	if err := rejectUndecoded(md); err != nil {
		return nil, fmt.Errorf("price sheet %s: %w", path, err)
	}
	return &s, nil
}

// ParseSheet decodes a TOML price sheet from a string. Unknown keys are
// rejected, as in LoadSheet.
func ParseSheet(data string) (*Sheet, error) {
	var s Sheet
	md, err := toml.Decode(data, &s)
	if err != nil {
		return nil, fmt.Errorf("decode price sheet: %w", err)
	}
	if err := rejectUndecoded(md); err != nil {
		return nil, fmt.Errorf("price sheet: %w", err)
	}
	return &s, nil
}

func rejectUndecoded(md toml.MetaData) error {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	return nil
}

// Apply overlays the sheet onto t. Every price must be a positive decimal;
// on error t is left unchanged.
func (s *Sheet) Apply(t *Table) error {
	type mandiPrice struct {
		crop, mandi string
		price       decimal.Decimal
	}
	var (
		fallback *decimal.Decimal
		crops    = make(map[string]decimal.Decimal)
		mandis   []mandiPrice
	)
	if s.Fallback != "" {
		p, err := parsePrice(s.Fallback)
		if err != nil {
			return fmt.Errorf("fallback: %w", err)
		}
		fallback = &p
	}
	for crop, c := range s.Crops {
		if c.Price != "" {
			p, err := parsePrice(c.Price)
			if err != nil {
				return fmt.Errorf("crops.%s.price: %w", crop, err)
			}
			crops[crop] = p
		}
		for mandi, raw := range c.Mandis {
			p, err := parsePrice(raw)
			if err != nil {
				return fmt.Errorf("crops.%s.mandis.%s: %w", crop, mandi, err)
			}
			mandis = append(mandis, mandiPrice{crop, mandi, p})
		}
	}

	if fallback != nil {
		t.SetFallback(*fallback)
	}
	for crop, p := range crops {
		t.Set(crop, p)
	}
	for _, mp := range mandis {
		t.SetMandi(mp.crop, mp.mandi, mp.price)
	}
	return nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", raw, err)
	}
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("price %q must be positive", raw)
	}
	return p, nil
}
