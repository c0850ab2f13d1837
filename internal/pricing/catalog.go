package pricing

import (
	"errors"
	"sort"

	"creditengine/internal/config"
)

var (
	ErrInvalidGiftType    = errors.New("不支持的礼物类型")
	ErrInvalidPackage     = errors.New("不支持的积分套餐")
	ErrInvalidBanDuration = errors.New("不支持的封禁时长")
)

// Catalog 礼物、积分套餐和解封价格的只读目录
type Catalog struct {
	gifts    map[string]config.GiftItem
	packages map[string]config.CreditPackage
	unban    map[string]int64
}

func NewCatalog(e config.EconomyConfig) *Catalog {
	return &Catalog{
		gifts:    e.Gifts,
		packages: e.CreditPackages,
		unban:    e.UnbanPrices,
	}
}

func (c *Catalog) Gift(giftType string) (config.GiftItem, error) {
	g, ok := c.gifts[giftType]
	if !ok {
		return config.GiftItem{}, ErrInvalidGiftType
	}
	return g, nil
}

// GiftTypes 礼物类型，按字典序
func (c *Catalog) GiftTypes() []string {
	types := make([]string, 0, len(c.gifts))
	for t := range c.gifts {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (c *Catalog) Package(id string) (config.CreditPackage, error) {
	p, ok := c.packages[id]
	if !ok {
		return config.CreditPackage{}, ErrInvalidPackage
	}
	return p, nil
}

func (c *Catalog) UnbanPrice(duration string) (int64, error) {
	price, ok := c.unban[duration]
	if !ok {
		return 0, ErrInvalidBanDuration
	}
	return price, nil
}
