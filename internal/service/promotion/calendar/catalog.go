package calendar

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"campusnexus/internal/service/promotion/domain"
)

const dateLayout = "2006-01-02"

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Heuristic 是一条分类启发式规则：When 为规则表达式，命中时输出 Message。
type Heuristic struct {
	Name    string
	When    string
	Message string
}

// Catalog 是一个版本化、加载后不可变的日历目录。
// Events、Seasons、Heuristics 都保留文件中的声明顺序。
type Catalog struct {
	Version    string
	Events     []domain.CampusEvent
	Seasons    []domain.SeasonalPattern
	Heuristics []Heuristic
}

type catalogFile struct {
	Version    string          `yaml:"version"`
	Events     []eventFile     `yaml:"events"`
	Seasons    []seasonFile    `yaml:"seasons"`
	Heuristics []heuristicFile `yaml:"heuristics"`
}

type eventFile struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"`
	Categories []string `yaml:"categories"`
	Start      string   `yaml:"start"`
	End        string   `yaml:"end"`
	Impact     string   `yaml:"impact"`
	Behavior   string   `yaml:"behavior"`
}

type seasonFile struct {
	Name             string   `yaml:"name"`
	Months           []int    `yaml:"months"`
	OrderIncreasePct float64  `yaml:"order_increase_pct"`
	PeakDays         []string `yaml:"peak_days"`
	Categories       []string `yaml:"categories"`
}

type heuristicFile struct {
	Name    string `yaml:"name"`
	When    string `yaml:"when"`
	Message string `yaml:"message"`
}

// DefaultCatalogYAML 返回内置目录的原始内容。
func DefaultCatalogYAML() []byte {
	return defaultCatalogYAML
}

// DefaultCatalog 加载内置目录。
func DefaultCatalog(rules domain.RuleEngine) (*Catalog, error) {
	return LoadCatalog(defaultCatalogYAML, rules)
}

// LoadCatalog 解析并校验 YAML 目录。rules 不为 nil 时会预编译所有启发式表达式。
func LoadCatalog(data []byte, rules domain.RuleEngine) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(domain.ErrInvalidCatalog, err.Error())
	}
	if strings.TrimSpace(file.Version) == "" {
		return nil, errors.Wrap(domain.ErrInvalidCatalog, "version is required")
	}

	catalog := &Catalog{Version: file.Version}

	seen := make(map[string]struct{}, len(file.Events))
	for _, ef := range file.Events {
		event, err := ef.toDomain()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[event.ID]; dup {
			return nil, errors.Wrapf(domain.ErrInvalidCatalog, "duplicate event id %q", event.ID)
		}
		seen[event.ID] = struct{}{}
		catalog.Events = append(catalog.Events, event)
	}

	for _, sf := range file.Seasons {
		season, err := sf.toDomain()
		if err != nil {
			return nil, err
		}
		catalog.Seasons = append(catalog.Seasons, season)
	}

	for _, hf := range file.Heuristics {
		if hf.Name == "" || hf.When == "" || hf.Message == "" {
			return nil, errors.Wrapf(domain.ErrInvalidCatalog, "heuristic %q needs name, when and message", hf.Name)
		}
		if rules != nil {
			if err := rules.Compile(hf.When); err != nil {
				return nil, errors.Wrapf(domain.ErrInvalidCatalog, "heuristic %q: %v", hf.Name, err)
			}
		}
		catalog.Heuristics = append(catalog.Heuristics, Heuristic(hf))
	}

	return catalog, nil
}

func (ef eventFile) toDomain() (domain.CampusEvent, error) {
	if ef.ID == "" || ef.Name == "" {
		return domain.CampusEvent{}, errors.Wrap(domain.ErrInvalidCatalog, "event id and name are required")
	}
	start, err := time.Parse(dateLayout, ef.Start)
	if err != nil {
		return domain.CampusEvent{}, errors.Wrapf(domain.ErrInvalidCatalog, "event %q start: %v", ef.ID, err)
	}
	end, err := time.Parse(dateLayout, ef.End)
	if err != nil {
		return domain.CampusEvent{}, errors.Wrapf(domain.ErrInvalidCatalog, "event %q end: %v", ef.ID, err)
	}
	if end.Before(start) {
		return domain.CampusEvent{}, errors.Wrapf(domain.ErrInvalidCatalog, "event %q ends before it starts", ef.ID)
	}
	categories, err := parseCategories(ef.Categories)
	if err != nil {
		return domain.CampusEvent{}, errors.Wrapf(err, "event %q", ef.ID)
	}

	kind := domain.EventKind(ef.Kind)
	if kind == "" {
		kind = domain.EventKindOther
	}
	impact := domain.ImpactTier(ef.Impact)
	switch impact {
	case domain.ImpactHigh, domain.ImpactMedium, domain.ImpactLow:
	case "":
		impact = domain.ImpactLow
	default:
		return domain.CampusEvent{}, errors.Wrapf(domain.ErrInvalidCatalog, "event %q has unknown impact %q", ef.ID, ef.Impact)
	}

	return domain.CampusEvent{
		ID:         ef.ID,
		Name:       ef.Name,
		Kind:       kind,
		Categories: categories,
		Start:      start,
		End:        end,
		Impact:     impact,
		Behavior:   ef.Behavior,
	}, nil
}

func (sf seasonFile) toDomain() (domain.SeasonalPattern, error) {
	if sf.Name == "" || len(sf.Months) == 0 {
		return domain.SeasonalPattern{}, errors.Wrap(domain.ErrInvalidCatalog, "season name and months are required")
	}
	months := make([]time.Month, 0, len(sf.Months))
	for _, m := range sf.Months {
		if m < 1 || m > 12 {
			return domain.SeasonalPattern{}, errors.Wrapf(domain.ErrInvalidCatalog, "season %q has month %d", sf.Name, m)
		}
		months = append(months, time.Month(m))
	}
	days := make([]time.Weekday, 0, len(sf.PeakDays))
	for _, d := range sf.PeakDays {
		day, err := parseWeekday(d)
		if err != nil {
			return domain.SeasonalPattern{}, errors.Wrapf(err, "season %q", sf.Name)
		}
		days = append(days, day)
	}
	categories, err := parseCategories(sf.Categories)
	if err != nil {
		return domain.SeasonalPattern{}, errors.Wrapf(err, "season %q", sf.Name)
	}
	return domain.SeasonalPattern{
		Name:             sf.Name,
		Months:           months,
		OrderIncreasePct: sf.OrderIncreasePct,
		PeakDays:         days,
		Categories:       categories,
	}, nil
}

func parseCategories(raw []string) ([]domain.Category, error) {
	out := make([]domain.Category, 0, len(raw))
	for _, s := range raw {
		c := domain.Category(strings.ToLower(strings.TrimSpace(s)))
		if !c.Valid() {
			return nil, errors.Wrapf(domain.ErrInvalidCatalog, "unknown category %q", s)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", domain.ErrInvalidCatalog, s)
}
