package timeframe

import (
	"strconv"
	"strings"
	"time"
)

// FetchPlan 描述某个周期键对应的取数与聚合方案。
type FetchPlan struct {
	PeriodKey        string
	Category         Category
	ProviderPeriod   string
	ProviderInterval string
	TargetPoints     int
	// AggregateFactor 为 0 表示不聚合，≥2 表示按该倍数重采样。
	AggregateFactor int
}

// categoryDefault 为计划表未覆盖的周期键提供兜底窗口。
type categoryDefault struct {
	providerPeriod   string
	providerInterval string
}

const defaultTargetPoints = 60

var categoryDefaults = map[Category]categoryDefault{
	CategoryScalping:   {providerPeriod: "1d", providerInterval: "1m"},
	CategoryIntraday:   {providerPeriod: "5d", providerInterval: "1h"},
	CategorySwing:      {providerPeriod: "1mo", providerInterval: "1d"},
	CategoryPosition:   {providerPeriod: "1y", providerInterval: "1w"},
	CategoryInvestment: {providerPeriod: "5y", providerInterval: "1M"},
}

// planTable 是周期键到取数方案的静态映射，键统一为大写。
var planTable = map[string]FetchPlan{
	"1M":  {Category: CategoryScalping, ProviderPeriod: "12h", ProviderInterval: "1m", TargetPoints: 195},
	"5M":  {Category: CategoryScalping, ProviderPeriod: "1d", ProviderInterval: "5m", TargetPoints: 144},
	"15M": {Category: CategoryScalping, ProviderPeriod: "3d", ProviderInterval: "15m", TargetPoints: 224},

	"30M": {Category: CategoryIntraday, ProviderPeriod: "5d", ProviderInterval: "30m", TargetPoints: 240},
	"1H":  {Category: CategoryIntraday, ProviderPeriod: "5d", ProviderInterval: "1h", TargetPoints: 120},
	"2H":  {Category: CategoryIntraday, ProviderPeriod: "10d", ProviderInterval: "1h", TargetPoints: 120, AggregateFactor: 2},
	"3H":  {Category: CategoryIntraday, ProviderPeriod: "15d", ProviderInterval: "1h", TargetPoints: 120, AggregateFactor: 3},
	"4H":  {Category: CategoryIntraday, ProviderPeriod: "20d", ProviderInterval: "1h", TargetPoints: 120, AggregateFactor: 4},
	"6H":  {Category: CategoryIntraday, ProviderPeriod: "1mo", ProviderInterval: "1h", TargetPoints: 120, AggregateFactor: 6},

	"1D": {Category: CategorySwing, ProviderPeriod: "2mo", ProviderInterval: "1d", TargetPoints: 60},
	"2D": {Category: CategorySwing, ProviderPeriod: "3mo", ProviderInterval: "1d", TargetPoints: 45, AggregateFactor: 2},
	"3D": {Category: CategorySwing, ProviderPeriod: "4mo", ProviderInterval: "1d", TargetPoints: 40, AggregateFactor: 3},
	"5D": {Category: CategorySwing, ProviderPeriod: "6mo", ProviderInterval: "1d", TargetPoints: 36, AggregateFactor: 5},
	"1W": {Category: CategorySwing, ProviderPeriod: "1y", ProviderInterval: "1w", TargetPoints: 52},

	"2W": {Category: CategoryPosition, ProviderPeriod: "6mo", ProviderInterval: "1w", TargetPoints: 26, AggregateFactor: 2},

	"1Y": {Category: CategoryInvestment, ProviderPeriod: "1y", ProviderInterval: "1w", TargetPoints: 52},
	"2Y": {Category: CategoryInvestment, ProviderPeriod: "2y", ProviderInterval: "1w", TargetPoints: 104, AggregateFactor: 2},
	"3Y": {Category: CategoryInvestment, ProviderPeriod: "3y", ProviderInterval: "1M", TargetPoints: 36},
	"5Y": {Category: CategoryInvestment, ProviderPeriod: "5y", ProviderInterval: "1M", TargetPoints: 60},
}

// Classifier 负责周期键分类、取数方案解析与分类参数查询。
type Classifier struct {
	bundles map[Category]ParameterBundle
}

// NewClassifier 基于默认参数和配置覆盖构建分类器。
func NewClassifier(overrides map[Category]Override) (*Classifier, error) {
	bundles, err := buildBundles(overrides)
	if err != nil {
		return nil, err
	}
	return &Classifier{bundles: bundles}, nil
}

// Bundle 返回分类对应的指标参数。
func (c *Classifier) Bundle(category Category) ParameterBundle {
	return c.bundles[category]
}

// Classify 将周期键映射为交易风格分类。
// 先查静态计划表，未命中时按"数字+单位字母"启发式解析，无法解析时归入 swing。
func (c *Classifier) Classify(periodKey string) Category {
	key := normalizeKey(periodKey)

	if plan, ok := planTable[key]; ok {
		return plan.Category
	}

	count, unit, ok := splitKey(key)
	if !ok {
		return CategorySwing
	}

	switch unit {
	case 'M':
		switch {
		case count <= 15:
			return CategoryScalping
		case count <= 240:
			return CategoryIntraday
		default:
			return CategorySwing
		}
	case 'H':
		if count <= 4 {
			return CategoryIntraday
		}
		return CategorySwing
	case 'D':
		if count <= 7 {
			return CategorySwing
		}
		return CategoryPosition
	case 'W':
		if count <= 4 {
			return CategorySwing
		}
		return CategoryPosition
	case 'Y':
		return CategoryInvestment
	default:
		return CategorySwing
	}
}

// ResolvePlan 返回周期键的取数方案；计划表未命中时退回分类默认窗口。
func (c *Classifier) ResolvePlan(periodKey string) FetchPlan {
	key := normalizeKey(periodKey)

	if plan, ok := planTable[key]; ok {
		plan.PeriodKey = key
		return plan
	}

	category := c.Classify(key)
	fallback := categoryDefaults[category]
	return FetchPlan{
		PeriodKey:        key,
		Category:         category,
		ProviderPeriod:   fallback.providerPeriod,
		ProviderInterval: fallback.providerInterval,
		TargetPoints:     defaultTargetPoints,
	}
}

func normalizeKey(periodKey string) string {
	return strings.ToUpper(strings.TrimSpace(periodKey))
}

// splitKey 将 "240M" 之类的键拆成数量与单位字母。
func splitKey(key string) (int, byte, bool) {
	if len(key) < 2 {
		return 0, 0, false
	}

	unit := key[len(key)-1]
	count, err := strconv.Atoi(key[:len(key)-1])
	if err != nil || count <= 0 {
		return 0, 0, false
	}
	return count, unit, true
}

// IntervalDuration 将 ccxt 风格的K线间隔转换为时长，月按30天近似。
func IntervalDuration(interval string) (time.Duration, bool) {
	if interval == "" {
		return 0, false
	}

	unit := interval[len(interval)-1]
	count, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || count <= 0 {
		return 0, false
	}

	base := time.Duration(count)
	switch unit {
	case 'm':
		return base * time.Minute, true
	case 'h':
		return base * time.Hour, true
	case 'd':
		return base * 24 * time.Hour, true
	case 'w':
		return base * 7 * 24 * time.Hour, true
	case 'M':
		return base * 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// PeriodDuration 将 "10d"/"2mo"/"1y" 这类数据窗口转换为时长。
func PeriodDuration(period string) (time.Duration, bool) {
	p := strings.ToLower(strings.TrimSpace(period))
	if p == "" {
		return 0, false
	}

	var (
		numPart  string
		unitPart string
	)
	for i := 0; i < len(p); i++ {
		if p[i] < '0' || p[i] > '9' {
			numPart, unitPart = p[:i], p[i:]
			break
		}
	}
	if numPart == "" || unitPart == "" {
		return 0, false
	}

	count, err := strconv.Atoi(numPart)
	if err != nil || count <= 0 {
		return 0, false
	}

	base := time.Duration(count)
	switch unitPart {
	case "h":
		return base * time.Hour, true
	case "d":
		return base * 24 * time.Hour, true
	case "w":
		return base * 7 * 24 * time.Hour, true
	case "mo":
		return base * 30 * 24 * time.Hour, true
	case "y":
		return base * 365 * 24 * time.Hour, true
	default:
		return 0, false
	}
}
